// Package cryptox seals backup archives with a user passphrase.
//
// Archive layout:
//
//	magic (4 bytes "MMB1") | salt (16 bytes) | nonce (12 bytes) | AES-256-GCM ciphertext
//
// The key is derived from the passphrase and salt with argon2id.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
)

var magic = []byte("MMB1")

var (
	ErrMalformedArchive = errors.New("malformed archive")
	ErrDecrypt          = errors.New("decryption failed (wrong passphrase?)")
)

// DeriveKey derives a 256-bit key from password and salt with argon2id.
func DeriveKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, keySize)
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Seal encrypts plaintext with a key derived from passphrase. Every call
// uses a fresh salt and nonce.
func Seal(plaintext, passphrase []byte) ([]byte, error) {
	salt, err := RandomBytes(saltSize)
	if err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	nonce, err := RandomBytes(nonceSize)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	aead, err := newGCM(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(magic)+saltSize+nonceSize+len(plaintext)+aead.Overhead())
	out = append(out, magic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, magic), nil
}

// Open reverses Seal.
func Open(archive, passphrase []byte) ([]byte, error) {
	header := len(magic) + saltSize + nonceSize
	if len(archive) < header || !bytes.Equal(archive[:len(magic)], magic) {
		return nil, ErrMalformedArchive
	}

	salt := archive[len(magic) : len(magic)+saltSize]
	nonce := archive[len(magic)+saltSize : header]

	aead, err := newGCM(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, archive[header:], magic)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
