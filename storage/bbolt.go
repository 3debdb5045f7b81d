// Package storage provides the local persistent ConnectionStore, backed
// by bbolt. This is the default backend for single-operator deployments:
// one file on disk, one bucket, one key per platform, each write its own
// transaction so persistence is atomic per key and last-write-wins.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/brandpulse-io/adconnect/cache"
	"github.com/brandpulse-io/adconnect/domain"
)

const connectionsBucket = "connections"

// BoltConnectionStore implements cache.ConnectionStore on a bbolt file.
type BoltConnectionStore struct {
	db *bbolt.DB
}

// NewBoltConnectionStore opens (creating if needed) the database at dbPath
// and ensures the connections bucket exists.
func NewBoltConnectionStore(dbPath string) (*BoltConnectionStore, error) {
	dir := filepath.Dir(dbPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db at %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(connectionsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure connections bucket: %w", err)
	}

	return &BoltConnectionStore{db: db}, nil
}

func (s *BoltConnectionStore) Get(_ context.Context, platform domain.Platform) (domain.ConnectionRecord, error) {
	var record domain.ConnectionRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(connectionsBucket)).Get([]byte(platform))
		if raw == nil {
			return cache.ErrConnectionNotFound
		}
		return json.Unmarshal(raw, &record)
	})
	if err != nil {
		return domain.ConnectionRecord{}, err
	}
	return record, nil
}

func (s *BoltConnectionStore) Put(_ context.Context, record domain.ConnectionRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal connection record: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(connectionsBucket)).Put([]byte(record.Platform), raw)
	})
}

// Close closes the underlying database file.
func (s *BoltConnectionStore) Close() error {
	return s.db.Close()
}
