// Package vault reversibly protects credentials and tokens before they
// touch persistent storage.
//
// Two implementations exist. Obfuscator is the legacy XOR scheme carried
// over from the dashboard: a fixed key compiled into the binary provides
// no real confidentiality, only keeps tokens from sitting in storage as
// plain text. Sealed is authenticated encryption (ChaCha20-Poly1305) and
// is what production deployments should configure.
package vault

import (
	"context"
	"encoding/base64"
	"encoding/hex"

	"github.com/brandpulse-io/adconnect/log"
)

// Vault encrypts and decrypts short secrets. Both operations are total:
// empty input maps to empty output, and malformed ciphertext decrypts to
// the empty string after logging, never an error. Callers treat an empty
// decryption of a non-empty value as "credential unavailable".
type Vault interface {
	Encrypt(plaintext string) string
	Decrypt(ciphertext string) string
}

// Obfuscator is the XOR+base64+hex scheme. Deterministic and reversible:
// Decrypt(Encrypt(x)) == x for every string x.
type Obfuscator struct {
	key    []byte
	logger log.Logger
}

// NewObfuscator creates an Obfuscator over the given key. An empty key
// falls back to the historical default so existing stored blobs stay
// readable.
func NewObfuscator(key string, logger log.Logger) *Obfuscator {
	if key == "" {
		key = "your-secret-key"
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Obfuscator{key: []byte(key), logger: logger}
}

// Encrypt base64-encodes the plaintext, XORs each byte against the key
// cycling by index, and hex-encodes the result.
func (o *Obfuscator) Encrypt(plaintext string) string {
	if plaintext == "" {
		return ""
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(plaintext))
	masked := make([]byte, len(encoded))
	for i := 0; i < len(encoded); i++ {
		masked[i] = encoded[i] ^ o.key[i%len(o.key)]
	}
	return hex.EncodeToString(masked)
}

// Decrypt is the exact inverse of Encrypt. Malformed input (odd-length or
// non-hex, or masked bytes that are not valid base64) yields "".
func (o *Obfuscator) Decrypt(ciphertext string) string {
	if ciphertext == "" {
		return ""
	}
	masked, err := hex.DecodeString(ciphertext)
	if err != nil {
		o.logger.Warn(context.Background(), "vault: malformed hex ciphertext", map[string]interface{}{
			"length": len(ciphertext),
		})
		return ""
	}
	encoded := make([]byte, len(masked))
	for i := 0; i < len(masked); i++ {
		encoded[i] = masked[i] ^ o.key[i%len(o.key)]
	}
	plain, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		o.logger.Warn(context.Background(), "vault: ciphertext did not unmask to base64", nil)
		return ""
	}
	return string(plain)
}
