package cache

import (
	"context"
	"sync"

	"github.com/brandpulse-io/adconnect/domain"
)

// MemoryConnectionStore implements ConnectionStore with a mutex-guarded
// map. Used in tests and single-process setups without persistence.
type MemoryConnectionStore struct {
	mu      sync.RWMutex
	records map[domain.Platform]domain.ConnectionRecord
}

func NewMemoryConnectionStore() *MemoryConnectionStore {
	return &MemoryConnectionStore{
		records: make(map[domain.Platform]domain.ConnectionRecord),
	}
}

func (s *MemoryConnectionStore) Get(_ context.Context, platform domain.Platform) (domain.ConnectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[platform]
	if !ok {
		return domain.ConnectionRecord{}, ErrConnectionNotFound
	}
	return record, nil
}

func (s *MemoryConnectionStore) Put(_ context.Context, record domain.ConnectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Platform] = record
	return nil
}
