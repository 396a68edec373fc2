// Package cryptox holds the crypto primitives used by the scanner engine:
// AES-GCM sealing of JSON-serializable values and argon2id key derivation
// for the file-backed secret store.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// gcmNonceSize is the standard 96-bit GCM nonce length.
const gcmNonceSize = 12

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// DeriveKey derives a 256-bit key from a secret and salt using argon2id.
func DeriveKey(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

// SealValue serializes v to JSON and encrypts it with AES-GCM under key.
//
// The key must be a valid AES key length (16, 24, or 32 bytes). A fresh
// random 12-byte nonce is generated per call and prepended to the returned
// blob, so the result is self-contained: nonce || ciphertext || tag.
func SealValue(v any, key []byte) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return Seal(plaintext, key)
}

// OpenValue decrypts a blob produced by SealValue and unmarshals the
// plaintext JSON into v. Tag mismatch surfaces as the underlying cipher
// error; it never yields garbage output.
func OpenValue(blob, key []byte, v any) error {
	plaintext, err := Open(blob, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}

// Seal encrypts plaintext with AES-GCM, returning nonce || ciphertext || tag.
func Seal(plaintext, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal.
func Open(blob, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < gcmNonceSize {
		return nil, ErrCiphertextTooShort
	}
	return aesgcm.Open(nil, blob[:gcmNonceSize], blob[gcmNonceSize:], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
