// Package encryption provides AEAD envelope encryption for secret tool
// environment-variable values at rest (spec §6: "secret fields are
// encrypted at rest with a process-level encryption service... an AEAD
// symmetric scheme, keyed per deployment").
//
// Grounded on evalgo-org-eve/security/enc_dec_env.go's AES-256-GCM usage —
// the only AEAD example in the retrieved pack — adapted from file-oriented
// password encryption to an in-memory service keyed from deployment
// configuration, matching hitl_tool_handler.py's
// encryption_service.encrypt(value) call site.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrCiphertextTooShort is returned when decrypting a value shorter than a
// nonce, which can never be a value this service produced.
var ErrCiphertextTooShort = errors.New("encryption: ciphertext too short")

// Service encrypts and decrypts tool environment-variable values with a
// single deployment-wide AES-256-GCM key.
type Service struct {
	aead cipher.AEAD
}

// NewService derives an AES-256 key from key material (a deployment secret,
// typically sourced from config/Vault/KMS — not a user password) and
// constructs the AEAD cipher. key must be non-empty; it is hashed with
// SHA-256 to produce exactly 32 bytes regardless of its original length.
func NewService(key []byte) (*Service, error) {
	if len(key) == 0 {
		return nil, errors.New("encryption: key must not be empty")
	}
	derived := sha256.Sum256(key)
	block, err := aes.NewCipher(derived[:])
	if err != nil {
		return nil, fmt.Errorf("encryption: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("encryption: new gcm: %w", err)
	}
	return &Service{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce prepended to the
// ciphertext, returning raw bytes suitable for the ToolEnvVar.encrypted_value
// column.
func (s *Service) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("encryption: read nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens ciphertext produced by Encrypt, verifying authenticity and
// integrity. Returns ErrCiphertextTooShort if ciphertext cannot possibly
// contain a nonce.
func (s *Service) Decrypt(ciphertext []byte) (string, error) {
	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrCiphertextTooShort
	}
	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("encryption: open: %w", err)
	}
	return string(plaintext), nil
}

// EncryptToString is a convenience wrapper returning base64 text instead of
// raw bytes, for call sites that need a string (e.g. logging-safe display,
// JSON transport of an already-encrypted value).
func (s *Service) EncryptToString(plaintext string) (string, error) {
	raw, err := s.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecryptFromString is the inverse of EncryptToString.
func (s *Service) DecryptFromString(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("encryption: decode base64: %w", err)
	}
	return s.Decrypt(raw)
}
