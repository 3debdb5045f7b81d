package vault

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/brandpulse-io/adconnect/log"
)

// Sealed implements Vault with ChaCha20-Poly1305. Ciphertexts are
// nonce||box, hex-encoded. Unlike Obfuscator the output is randomized, so
// equal plaintexts produce distinct ciphertexts.
type Sealed struct {
	key    [chacha20poly1305.KeySize]byte
	logger log.Logger
}

// NewSealed derives a 256-bit key from the secret and returns a sealing
// vault. The secret must be non-empty.
func NewSealed(secret string, logger log.Logger) *Sealed {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Sealed{key: sha256.Sum256([]byte(secret)), logger: logger}
}

func (s *Sealed) Encrypt(plaintext string) string {
	if plaintext == "" {
		return ""
	}
	aead, err := chacha20poly1305.New(s.key[:])
	if err != nil {
		s.logger.Error(context.Background(), "vault: sealed cipher init failed", err)
		return ""
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		s.logger.Error(context.Background(), "vault: nonce generation failed", err)
		return ""
	}
	box := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(box)
}

func (s *Sealed) Decrypt(ciphertext string) string {
	if ciphertext == "" {
		return ""
	}
	box, err := hex.DecodeString(ciphertext)
	if err != nil {
		s.logger.Warn(context.Background(), "vault: malformed sealed ciphertext", nil)
		return ""
	}
	aead, err := chacha20poly1305.New(s.key[:])
	if err != nil {
		s.logger.Error(context.Background(), "vault: sealed cipher init failed", err)
		return ""
	}
	if len(box) < aead.NonceSize() {
		s.logger.Warn(context.Background(), "vault: sealed ciphertext shorter than nonce", nil)
		return ""
	}
	nonce, sealed := box[:aead.NonceSize()], box[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		s.logger.Warn(context.Background(), "vault: sealed ciphertext failed authentication", nil)
		return ""
	}
	return string(plain)
}
