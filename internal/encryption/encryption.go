// Package encryption provides at-rest encryption for stored conversation
// content: AES-256-GCM with a key derived from a user passphrase via scrypt.
// With no passphrase configured the service is a pass-through and data is
// stored in plaintext.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/scrypt"
)

// Sentinel errors returned by the service.
var (
	ErrDecryptionFailed = errors.New("encryption: decryption failed - wrong passphrase or corrupted data")
	ErrKeyDerivation    = errors.New("encryption: key derivation failed")
)

// ciphertextPrefix marks encrypted values so plaintext rows written before
// encryption was enabled still read back correctly, and so double-encryption
// is detectable.
const ciphertextPrefix = "enc:v1:"

// scrypt parameters: 32-byte key, interactive-login cost.
const (
	scryptN      = 1 << 14
	scryptR      = 8
	scryptP      = 1
	keyLength    = 32
	saltLength   = 32
	saltFileMode = 0600
)

// Service encrypts and decrypts strings at rest. A nil or disabled Service
// passes data through unchanged, so callers never branch on whether
// encryption is configured.
type Service struct {
	aead   cipher.AEAD
	logger *zap.Logger
}

// New derives an AES-256 key from passphrase and salt and returns a ready
// Service. An empty passphrase returns a disabled (pass-through) Service.
func New(passphrase string, salt []byte, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if passphrase == "" {
		logger.Info("no encryption passphrase provided, storing data in plaintext")
		return &Service{logger: logger}, nil
	}
	if len(salt) != saltLength {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrKeyDerivation, saltLength, len(salt))
	}

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}

	logger.Info("encryption service initialized")
	return &Service{aead: aead, logger: logger}, nil
}

// Enabled reports whether a key is loaded.
func (s *Service) Enabled() bool {
	return s != nil && s.aead != nil
}

// Encrypt returns the prefixed base64 ciphertext of data, or data unchanged
// when the service is disabled. Already-encrypted input is returned as-is.
func (s *Service) Encrypt(data string) (string, error) {
	if !s.Enabled() || data == "" {
		return data, nil
	}
	if strings.HasPrefix(data, ciphertextPrefix) {
		return data, nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("encryption: generating nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(data), nil)
	return ciphertextPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Input without the ciphertext prefix is returned
// unchanged, so rows written before encryption was enabled remain readable.
func (s *Service) Decrypt(data string) (string, error) {
	if !strings.HasPrefix(data, ciphertextPrefix) {
		return data, nil
	}
	if !s.Enabled() {
		return "", ErrDecryptionFailed
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(data, ciphertextPrefix))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	if len(raw) < s.aead.NonceSize() {
		return "", ErrDecryptionFailed
	}

	nonce, sealed := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// LoadOrCreateSalt reads the key-derivation salt from path, generating and
// persisting a fresh one (owner-only permissions) on first run. The salt is
// not secret, but losing it makes existing ciphertext unrecoverable.
func LoadOrCreateSalt(path string) ([]byte, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return nil, err
	}

	if raw, err := os.ReadFile(expanded); err == nil {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil || len(decoded) != saltLength {
			return nil, fmt.Errorf("encryption: salt file %s is corrupt", expanded)
		}
		return decoded, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("encryption: reading salt file: %w", err)
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("encryption: generating salt: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0700); err != nil {
		return nil, fmt.Errorf("encryption: creating salt directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(salt)
	if err := os.WriteFile(expanded, []byte(encoded+"\n"), saltFileMode); err != nil {
		return nil, fmt.Errorf("encryption: writing salt file: %w", err)
	}
	return salt, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
