package totp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	AESKeySize = 32 // Required key size for AES-256 (256 bits / 8 = 32 bytes)

	// hkdfInfo separates keys derived for TOTP secrets from other uses of the same master key.
	hkdfInfo = "mfakit-totp-secret-v1"
)

// SecretCipher seals TOTP secrets with AES-256-GCM before they reach storage.
// Ciphertext layout is base64(nonce || sealed || tag).
type SecretCipher struct {
	aead cipher.AEAD
}

// NewSecretCipher builds a cipher from a 32-byte key.
func NewSecretCipher(key []byte) (*SecretCipher, error) {
	if len(key) != AESKeySize {
		return nil, ErrInvalidEncryptionKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadEncryptionKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadEncryptionKey, err)
	}
	return &SecretCipher{aead: aead}, nil
}

// NewSecretCipherFromBase64 decodes a base64 master key, derives the TOTP key
// from it with HKDF-SHA256 and returns the cipher.
func NewSecretCipherFromBase64(encoded string) (*SecretCipher, error) {
	if encoded == "" {
		return nil, ErrFailedToLoadEncryptionKey
	}
	master, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadEncryptionKey, err)
	}
	if len(master) != AESKeySize {
		return nil, errors.Join(ErrFailedToLoadEncryptionKey, ErrInvalidEncryptionKeyLength)
	}
	key, err := DeriveKey(master)
	if err != nil {
		return nil, err
	}
	return NewSecretCipher(key)
}

// DeriveKey expands a master key into the key used for TOTP secrets.
func DeriveKey(master []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(hkdfInfo))
	key := make([]byte, AESKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Join(ErrFailedToLoadEncryptionKey, err)
	}
	return key, nil
}

// Encrypt seals the plain secret.
func (c *SecretCipher) Encrypt(plainText string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Join(ErrFailedToEncryptSecret, err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a secret produced by Encrypt.
func (c *SecretCipher) Decrypt(cipherTextBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(cipherTextBase64)
	if err != nil {
		return "", errors.Join(ErrFailedToDecryptSecret, err)
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", errors.Join(ErrFailedToDecryptSecret, ErrInvalidCipherTooShort)
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errors.Join(ErrFailedToDecryptSecret, err)
	}
	return string(plain), nil
}

// GenerateEncodedEncryptionKey returns a random 32-byte key encoded as base64,
// suitable for the MFA_TOTP_ENCRYPTION_KEY variable.
func GenerateEncodedEncryptionKey() (string, error) {
	key := make([]byte, AESKeySize)
	if _, err := rand.Read(key); err != nil {
		return "", errors.Join(ErrFailedToGenerateEncryptionKey, err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
