package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/viper"
)

// Service encrypts field-level PII (phone numbers, license numbers) before
// it reaches the row store.
type Service interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
	EncryptString(plaintext string) (string, error)
	DecryptString(ciphertext string) (string, error)
}

type service struct {
	gcm cipher.AEAD
}

// NewService builds an AES-256-GCM service. The key is taken from the
// ENCRYPTION_KEY environment variable (hex), then from the
// security.encryption.key config entry, and finally generated at random.
// A generated key only survives the process, which is acceptable for
// development and tests.
func NewService() (Service, error) {
	key, err := loadKey()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &service{gcm: gcm}, nil
}

func (s *service) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := s.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *service) Decrypt(encodedCiphertext string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encodedCiphertext)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < s.gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:s.gcm.NonceSize()]
	ciphertext = ciphertext[s.gcm.NonceSize():]

	return s.gcm.Open(nil, nonce, ciphertext, nil)
}

// EncryptString encrypts a string field, passing empty values through so
// optional columns stay empty rather than becoming ciphertext of "".
func (s *service) EncryptString(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return s.Encrypt([]byte(plaintext))
}

func (s *service) DecryptString(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	plaintext, err := s.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func loadKey() ([]byte, error) {
	encoded := os.Getenv("ENCRYPTION_KEY")
	if encoded == "" {
		encoded = viper.GetString("security.encryption.key")
	}

	if encoded != "" {
		key, err := hex.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be a valid hex string: %v", err)
		}
		if len(key) != 32 {
			return nil, errors.New("ENCRYPTION_KEY must be exactly 32 bytes (64 hex characters) for AES-256")
		}
		return key, nil
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
