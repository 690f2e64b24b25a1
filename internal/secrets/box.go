// Package secrets seals OAuth credentials and session records before they
// leave process memory (SQLite rows, Valkey values).
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// sealedPrefix marks payloads written by an enabled Box.
const sealedPrefix = "v1:"

// ErrKeyRequired is returned when a sealed payload is read without a key.
var ErrKeyRequired = errors.New("payload is encrypted but no encryption key is configured")

// Box seals payloads with AES-256-GCM. The output is
// "v1:" + base64(nonce || ciphertext || tag).
//
// A Box built without a key is a passthrough: Seal returns the plaintext
// and Open accepts only unsealed input.
type Box struct {
	aead cipher.AEAD
}

// New returns a Box for key. An empty key disables encryption.
func New(key []byte) (*Box, error) {
	if len(key) == 0 {
		return &Box{}, nil
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes, got %d bytes", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Box{aead: aead}, nil
}

// Enabled reports whether the Box encrypts.
func (b *Box) Enabled() bool {
	return b != nil && b.aead != nil
}

// Seal encrypts plaintext. Every call draws a fresh random nonce.
func (b *Box) Seal(plaintext []byte) (string, error) {
	if !b.Enabled() {
		return string(plaintext), nil
	}

	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := b.aead.Seal(nonce, nonce, plaintext, nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (b *Box) Open(payload string) ([]byte, error) {
	sealed := strings.HasPrefix(payload, sealedPrefix)

	if !b.Enabled() {
		if sealed {
			return nil, ErrKeyRequired
		}
		return []byte(payload), nil
	}
	if !sealed {
		return nil, fmt.Errorf("payload is not encrypted")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(payload, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := b.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	plaintext, err := b.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// GenerateKey returns a random key suitable for New.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return key, nil
}

// KeyFromBase64 decodes a base64 key as passed on the command line
// (openssl rand -base64 32). An empty string yields a nil key.
func KeyFromBase64(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d bytes", KeySize, len(key))
	}
	return key, nil
}
