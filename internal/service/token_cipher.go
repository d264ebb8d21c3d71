package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// TokenCipher seals provider credentials before they reach the key-value store.
type TokenCipher struct {
	key [32]byte
}

// NewTokenCipher derives the sealing key from secret.
func NewTokenCipher(secret string) (*TokenCipher, error) {
	if secret == "" {
		return nil, errors.New("token encryption secret is empty")
	}
	return &TokenCipher{key: sha256.Sum256([]byte(secret))}, nil
}

// Seal encrypts plaintext and returns nonce and box as base64.
func (c *TokenCipher) Seal(plaintext []byte) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], plaintext, &nonce, &c.key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

// Open reverses Seal.
func (c *TokenCipher) Open(sealed string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decode sealed token: %w", err)
	}
	if len(raw) < 24+secretbox.Overhead {
		return nil, errors.New("sealed token is truncated")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &c.key)
	if !ok {
		return nil, errors.New("sealed token failed authentication")
	}
	return plain, nil
}
