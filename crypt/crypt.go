// Package crypt provides the block decryption used for encrypted entries.
//
// Key material is supplied by the caller; this package neither derives nor
// recovers keys.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput is returned for keys, IVs or ciphertexts of the wrong size.
var ErrInvalidInput = errors.New("crypt: invalid input")

// AESCBC decrypts AES-CBC ciphertext without removing padding.
//
// The key length selects AES-128, AES-192 or AES-256.
type AESCBC struct{}

// Decrypt returns the plaintext of ciphertext under key and iv. The
// ciphertext must be a whole number of blocks.
func (AESCBC) Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv length %d", ErrInvalidInput, len(iv))
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of %d",
			ErrInvalidInput, len(ciphertext), aes.BlockSize)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

// ParseHexKey decodes a hex string, ignoring spaces, colons and an optional
// 0x prefix.
func ParseHexKey(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return b, nil
}
