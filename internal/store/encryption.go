package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// EncryptionKeyEnvVar is the environment variable for the record
	// encryption key.
	EncryptionKeyEnvVar = "LAKEKIT_RECORDS_ENCRYPTION_KEY"

	encryptedHeader = "# LAKEKIT_ENCRYPTED_RECORDS\n"
)

// EncryptRecords encrypts record content using AES-256-GCM with a key from
// the environment. Returns the original content if no key is configured.
func EncryptRecords(content []byte) ([]byte, error) {
	key := getEncryptionKey()
	if key == nil {
		return content, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, content, nil)
	encoded := base64.StdEncoding.EncodeToString(ciphertext)

	return []byte(encryptedHeader + encoded + "\n"), nil
}

// DecryptRecords decrypts record content if it is encrypted.
func DecryptRecords(content []byte) ([]byte, error) {
	if !IsEncrypted(content) {
		return content, nil
	}

	key := getEncryptionKey()
	if key == nil {
		return nil, fmt.Errorf("record file is encrypted but %s is not set", EncryptionKeyEnvVar)
	}

	encoded := strings.TrimPrefix(string(content), encryptedHeader)
	encoded = strings.TrimSpace(encoded)

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted records: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt records (wrong key?): %w", err)
	}

	return plaintext, nil
}

// IsEncrypted checks if record content is encrypted.
func IsEncrypted(content []byte) bool {
	return strings.HasPrefix(string(content), encryptedHeader)
}

// getEncryptionKey returns the 32-byte AES key from environment, or nil.
func getEncryptionKey() []byte {
	keyStr := os.Getenv(EncryptionKeyEnvVar)
	if keyStr == "" {
		return nil
	}

	// Key must be exactly 32 bytes for AES-256: pad or truncate.
	key := make([]byte, 32)
	copy(key, []byte(keyStr))
	return key
}
