// Package payload decrypts bulk export files: an AES-256-GCM encrypted body
// whose key is wrapped with RSA-OAEP for the requesting client.
package payload

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Layout of an encrypted file: nonce | ciphertext | tag.
const (
	NonceSize = 12
	TagSize   = 16
	KeySize   = 32
)

var (
	ErrInvalidFilename     = errors.New("file name does not appear to be valid, use the exact file name from the job status endpoint (<UUID>.ndjson)")
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	ErrInvalidUTF8         = errors.New("decrypted payload is not valid UTF-8")
)

var fileUUID = regexp.MustCompile(`(?i)^[a-f0-9]{8}-?[a-f0-9]{4}-?4[a-f0-9]{3}-?[89ab][a-f0-9]{3}-?[a-f0-9]{12}$`)

// ValidFilename reports whether the base name of path, up to its first dot,
// is a version 4 UUID.
func ValidFilename(path string) bool {
	name := filepath.Base(path)
	id, _, _ := strings.Cut(name, ".")
	return fileUUID.MatchString(id)
}

// ParsePrivateKey reads the first PEM block of data as a PKCS#1 or PKCS#8
// RSA private key.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found in private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, not RSA", parsed)
	}
	return key, nil
}

// LoadPrivateKey reads a PEM private key file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	return ParsePrivateKey(data)
}

// DecryptFile decrypts the file at path. hexKey is the wrapped symmetric key
// as handed out with the job status; it is unwrapped with the file's base
// name as OAEP label. The file name is validated before anything is read.
func DecryptFile(pk *rsa.PrivateKey, hexKey, path string) ([]byte, error) {
	if !ValidFilename(path) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrInvalidFilename)
	}

	wrapped, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}

	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encrypted file: %w", err)
	}

	return Decrypt(pk, wrapped, filepath.Base(path), ciphertext)
}

// Decrypt unwraps key with label and opens ciphertext. The plaintext must be
// valid UTF-8.
func Decrypt(pk *rsa.PrivateKey, key []byte, label string, ciphertext []byte) ([]byte, error) {
	symmetric, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, pk, key, []byte(label))
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap key: %w", err)
	}

	if len(ciphertext) < NonceSize+TagSize {
		return nil, ErrMalformedCiphertext
	}
	gcm, err := newGCM(symmetric)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, ciphertext[:NonceSize], ciphertext[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if !utf8.Valid(plaintext) {
		return nil, ErrInvalidUTF8
	}
	return plaintext, nil
}

// Encrypt seals plaintext with a fresh AES-256 key and wraps that key for pub
// with label. It produces what Decrypt consumes.
func Encrypt(pub *rsa.PublicKey, plaintext []byte, label string) (ciphertext, key []byte, err error) {
	symmetric := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, symmetric); err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}

	gcm, err := newGCM(symmetric)
	if err != nil {
		return nil, nil, err
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext = gcm.Seal(nonce, nonce, plaintext, nil)

	key, err = rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, symmetric, []byte(label))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to wrap key: %w", err)
	}
	return ciphertext, key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid symmetric key: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, NonceSize)
}
