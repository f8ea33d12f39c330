package cryptoutil

// Package cryptoutil seals persisted auth sessions so refresh tokens are not
// stored in the clear.

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Encryptor seals and opens payloads. aad is bound to the ciphertext and must
// match on Open, which ties a sealed session to the key it was stored under.
type Encryptor interface {
	Seal(plaintext, aad []byte) (string, error)
	Open(sealed string, aad []byte) ([]byte, error)
}

// AESGCMEncryptor implements Encryptor using AES-256-GCM.
type AESGCMEncryptor struct {
	aead cipher.AEAD
}

// sealedPrefixV1 versions the format so keys or algorithms can rotate later.
const sealedPrefixV1 = "v1:"

// ErrNotSealed is returned by Open for payloads without a known version prefix.
var ErrNotSealed = errors.New("payload is not sealed")

// NewAESGCMEncryptor constructs an AESGCMEncryptor. Key must be 32 bytes (AES-256).
func NewAESGCMEncryptor(key []byte) (*AESGCMEncryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-gcm key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &AESGCMEncryptor{aead: aead}, nil
}

// NewFromPassphrase derives the AES key from passphrase. A 64-character hex
// string is used as the raw key; anything else is hashed with SHA-256.
func NewFromPassphrase(passphrase string) (*AESGCMEncryptor, error) {
	passphrase = strings.TrimSpace(passphrase)
	if passphrase == "" {
		return nil, errors.New("encryption key is required")
	}
	if decoded, err := hex.DecodeString(passphrase); err == nil && len(decoded) == 32 {
		return NewAESGCMEncryptor(decoded)
	}
	sum := sha256.Sum256([]byte(passphrase))
	return NewAESGCMEncryptor(sum[:])
}

// Seal encrypts plaintext with a random nonce and returns a versioned base64 string
// holding nonce||ciphertext.
func (e *AESGCMEncryptor) Seal(plaintext, aad []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	out := e.aead.Seal(nonce, nonce, plaintext, aad)
	return sealedPrefixV1 + base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a string produced by Seal with the same aad.
func (e *AESGCMEncryptor) Open(sealed string, aad []byte) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, ErrNotSealed
	}
	data, err := base64.StdEncoding.DecodeString(sealed[len(sealedPrefixV1):])
	if err != nil {
		return nil, fmt.Errorf("decode sealed payload: %w", err)
	}
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("sealed payload too short")
	}
	pt, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("open sealed payload: %w", err)
	}
	return pt, nil
}

// IsSealed reports whether payload carries a known sealed-format prefix.
func IsSealed(payload string) bool {
	return strings.HasPrefix(payload, sealedPrefixV1)
}
