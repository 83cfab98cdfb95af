// Package crypt provides authenticated field-level encryption for
// structured payloads. Values are serialized to canonical JSON and sealed
// with AES-256-GCM using a fresh random nonce per call.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrDecryptionFailed is returned when the authentication tag does not
// verify or the payload is malformed. The caller never sees partial or
// corrupted plaintext.
var ErrDecryptionFailed = errors.New("decryption failed")

// EncryptedPayload is the opaque output of Encrypt. The GCM tag is carried
// separately so a store can index or validate payload shape without
// touching ciphertext.
type EncryptedPayload struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	AuthTag    []byte `json:"auth_tag"`
}

// FieldService encrypts and decrypts structured payloads with a single
// injected 256-bit key. Key management and rotation live outside this
// package.
type FieldService struct {
	aead cipher.AEAD
}

// NewFieldService creates a field encryption service.
// key must be exactly 32 bytes for AES-256.
func NewFieldService(key []byte) (*FieldService, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &FieldService{aead: gcm}, nil
}

// Encrypt serializes v to JSON and seals it under a fresh random nonce.
func (s *FieldService) Encrypt(v any) (*EncryptedPayload, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nil, nonce, plaintext, nil)

	// gcm.Seal appends the 16-byte tag to the ciphertext; split it out.
	tagStart := len(sealed) - s.aead.Overhead()
	return &EncryptedPayload{
		Ciphertext: sealed[:tagStart],
		Nonce:      nonce,
		AuthTag:    sealed[tagStart:],
	}, nil
}

// Decrypt opens a payload and parses the plaintext into out. Any tampering
// with ciphertext, nonce or tag yields ErrDecryptionFailed.
func (s *FieldService) Decrypt(p *EncryptedPayload, out any) error {
	if p == nil || len(p.Nonce) != s.aead.NonceSize() || len(p.AuthTag) != s.aead.Overhead() {
		return ErrDecryptionFailed
	}

	sealed := make([]byte, 0, len(p.Ciphertext)+len(p.AuthTag))
	sealed = append(sealed, p.Ciphertext...)
	sealed = append(sealed, p.AuthTag...)

	plaintext, err := s.aead.Open(nil, p.Nonce, sealed, nil)
	if err != nil {
		return ErrDecryptionFailed
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return ErrDecryptionFailed
	}
	return nil
}
