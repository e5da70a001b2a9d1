// Package crypto holds the primitives for the key lifecycle: secret
// generation, the one-way lookup digest, the at-rest AEAD, and the
// session-derived cipher used by reveal.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/keyward/keyward/internal/errs"
)

const (
	// LivePrefix and TestPrefix make the environment of a leaked secret
	// inspectable without any lookup.
	LivePrefix = "sk_live_"
	TestPrefix = "sk_test_"

	secretBytes = 32
	// DisplayPrefixLen is how much of a raw secret is safe to echo back in
	// listings for identification.
	DisplayPrefixLen = 12
)

// GenerateSecret returns a new random API key secret for the environment
// ("live" or "test").
func GenerateSecret(environment string) (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand failed: %w", err)
	}
	prefix := TestPrefix
	if environment == "live" {
		prefix = LivePrefix
	}
	return prefix + hex.EncodeToString(b), nil
}

// SecretHash returns the hex-encoded SHA-256 digest of a raw secret. The
// digest is deterministic so it can serve as the O(1) lookup index key; it is
// never reversible.
func SecretHash(rawSecret string) string {
	h := sha256.Sum256([]byte(rawSecret))
	return hex.EncodeToString(h[:])
}

// DisplayPrefix returns the identifying prefix of a secret for listings.
func DisplayPrefix(rawSecret string) string {
	if len(rawSecret) <= DisplayPrefixLen {
		return rawSecret
	}
	return rawSecret[:DisplayPrefixLen] + "..."
}

// Cipher is an AEAD boundary over a single 32-byte key. The server-held
// instance protects secrets at rest; session-derived instances protect the
// reveal response in transit. The two layers compose and neither may be
// bypassed.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errs.NewEncryption("encryption_failed", "failed to encrypt secret")
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any tampering or key mismatch fails without
// disclosing why.
func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(sealed) < c.aead.NonceSize() {
		return nil, errs.NewEncryption("decryption_failed", "failed to decrypt secret")
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errs.NewEncryption("decryption_failed", "failed to decrypt secret")
	}
	return plaintext, nil
}

// NewSessionCipher derives a Cipher from the caller's raw session token via
// HKDF-SHA256. Binding the reveal response to the live session means the
// payload is unreadable without the caller's own session material, even if
// outer transport protection is bypassed.
func NewSessionCipher(sessionToken string) (*Cipher, error) {
	kdf := hkdf.New(sha256.New, []byte(sessionToken), []byte("keyward-reveal-v1"), nil)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, errs.NewEncryption("key_derivation_failed", "failed to derive session key")
	}
	return NewCipher(key)
}
