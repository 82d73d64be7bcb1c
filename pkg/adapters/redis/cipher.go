package redis

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// ErrDecrypt is returned when an entry cannot be opened with any known key.
var ErrDecrypt = errors.New("decryption failed with all available keys")

// Encryption holds the keys used to seal history entries at rest.
type Encryption struct {
	// ActiveKey seals new entries. Must be 32 bytes (AES-256).
	ActiveKey []byte

	// FallbackKeys are tried, in order, on entries the active key cannot
	// open. They allow rotating keys without rewriting history.
	FallbackKeys [][]byte
}

// Validate checks key sizes.
func (e Encryption) Validate() error {
	if len(e.ActiveKey) != 32 {
		return fmt.Errorf("active key must be 32 bytes (AES-256), got %d", len(e.ActiveKey))
	}
	for i, k := range e.FallbackKeys {
		if len(k) != 32 {
			return fmt.Errorf("fallback key %d must be 32 bytes (AES-256), got %d", i, len(k))
		}
	}
	return nil
}

// WithEncryption seals every entry with AES-GCM before it reaches Redis.
// It panics on invalid keys; call Encryption.Validate first when keys come
// from user input.
func WithEncryption(enc Encryption) Option {
	if err := enc.Validate(); err != nil {
		panic(err)
	}
	return func(s *Store) {
		s.encryption = &enc
	}
}

func (e *Encryption) seal(plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(e.ActiveKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *Encryption) open(ciphertext []byte) ([]byte, error) {
	if plain, err := openWith(ciphertext, e.ActiveKey); err == nil {
		return plain, nil
	}
	for _, key := range e.FallbackKeys {
		if plain, err := openWith(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, ErrDecrypt
}

func openWith(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
