package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/cuemby/labdeck/pkg/types"
)

// ErrNoCredentials is returned when an instance carries no stored password
var ErrNoCredentials = errors.New("instance has no stored credentials")

// SecretsManager encrypts instance credentials at rest with AES-256-GCM
type SecretsManager struct {
	aead cipher.AEAD
}

// NewSecretsManager creates a new secrets manager with the given encryption key
// The key should be 32 bytes for AES-256-GCM
func NewSecretsManager(key []byte) (*SecretsManager, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &SecretsManager{aead: gcm}, nil
}

// NewSecretsManagerFromPassword creates a secrets manager using a password
// The password is hashed with SHA-256 to derive the encryption key
func NewSecretsManagerFromPassword(password string) (*SecretsManager, error) {
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}

	hash := sha256.Sum256([]byte(password))
	return NewSecretsManager(hash[:])
}

// Encrypt seals plaintext and returns it with the nonce prepended
func (sm *SecretsManager) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("cannot encrypt empty data")
	}

	nonce := make([]byte, sm.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return sm.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt
func (sm *SecretsManager) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("cannot decrypt empty data")
	}

	nonceSize := sm.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := sm.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// SealInstancePassword encrypts password into inst. An empty password
// clears any stored credential.
func (sm *SecretsManager) SealInstancePassword(inst *types.Instance, password string) error {
	if inst == nil {
		return fmt.Errorf("instance cannot be nil")
	}
	if password == "" {
		inst.Password = nil
		return nil
	}

	sealed, err := sm.Encrypt([]byte(password))
	if err != nil {
		return fmt.Errorf("failed to seal password for instance %q: %w", inst.Name, err)
	}
	inst.Password = sealed
	return nil
}

// InstancePassword returns the plaintext password of inst
func (sm *SecretsManager) InstancePassword(inst *types.Instance) (string, error) {
	if inst == nil {
		return "", fmt.Errorf("instance cannot be nil")
	}
	if len(inst.Password) == 0 {
		return "", ErrNoCredentials
	}

	plaintext, err := sm.Decrypt(inst.Password)
	if err != nil {
		return "", fmt.Errorf("instance %d: %w", inst.ID, err)
	}
	return string(plaintext), nil
}
