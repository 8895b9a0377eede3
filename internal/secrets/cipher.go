// Package secrets seals and opens credential material. Plaintext secrets
// exist only transiently, on their way into a collector's environment.
package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the secretbox key length in bytes.
const KeySize = 32

const nonceSize = 24

// ErrDecryptFailed is returned when a ciphertext cannot be opened — wrong
// key or tampered data.
var ErrDecryptFailed = errors.New("secrets: decryption failed")

// Cipher seals and opens secrets with a fixed symmetric key.
type Cipher struct {
	key [KeySize]byte
}

// NewCipher creates a Cipher from a raw 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("NewCipher: key must be %d bytes, got %d", KeySize, len(key))
	}
	c := &Cipher{}
	copy(c.key[:], key)
	return c, nil
}

// NewCipherFromHex creates a Cipher from a hex-encoded key, the format the
// key is carried in via environment configuration.
func NewCipherFromHex(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("NewCipherFromHex: %w", err)
	}
	return NewCipher(key)
}

// Seal encrypts plaintext under a fresh random nonce.
func (c *Cipher) Seal(plaintext []byte) (ciphertext, nonce []byte, err error) {
	var n [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, n[:]); err != nil {
		return nil, nil, fmt.Errorf("Seal: nonce: %w", err)
	}
	ciphertext = secretbox.Seal(nil, plaintext, &n, &c.key)
	return ciphertext, n[:], nil
}

// Open decrypts a ciphertext sealed by Seal.
func (c *Cipher) Open(ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != nonceSize {
		return nil, fmt.Errorf("Open: nonce must be %d bytes, got %d", nonceSize, len(nonce))
	}
	var n [nonceSize]byte
	copy(n[:], nonce)
	plaintext, ok := secretbox.Open(nil, ciphertext, &n, &c.key)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
