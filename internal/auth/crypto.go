// Package auth implements L4 O5LOGON authentication: phase-1 identity
// exchange, phase-2 verifier generation (11g SHA1, 12c PBKDF2-SHA512), and
// FastAuth's coalesced single round trip.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// encryptCBC seals a payload the way O5LOGON expects: AES-CBC with a fixed
// zero IV and padding that always adds between 1 and 16 bytes (even on an
// exact block boundary, a full padding block is appended), never PKCS7's
// "no padding on a multiple" shortcut.
func encryptCBC(key, plaintext []byte) ([]byte, error) {
	block, err := newAESBlock(key)
	if err != nil {
		return nil, err
	}
	padded := addAuthPadding(plaintext, block.BlockSize())
	iv := make([]byte, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func decryptCBC(key, ciphertext []byte) ([]byte, error) {
	block, err := newAESBlock(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("auth: ciphertext is not a multiple of the block size")
	}
	iv := make([]byte, block.BlockSize())
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

func newAESBlock(key []byte) (cipher.Block, error) {
	switch len(key) {
	case 16, 24, 32:
		return aes.NewCipher(key)
	default:
		return nil, fmt.Errorf("auth: unsupported AES key length %d", len(key))
	}
}

// addAuthPadding zero-pads plaintext to a full block, always adding a full
// extra block when the input already sits on a boundary.
func addAuthPadding(plaintext []byte, blockSize int) []byte {
	padLen := blockSize - len(plaintext)%blockSize
	if padLen == 0 {
		padLen = blockSize
	}
	return append(append([]byte{}, plaintext...), make([]byte, padLen)...)
}

func derivePBKDF2SHA512(password, salt []byte, length, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, length, sha512.New)
}

func sha512Sum(b []byte) []byte {
	sum := sha512.Sum512(b)
	return sum[:]
}

func sha1Sum(b []byte) []byte {
	sum := sha1.Sum(b)
	return sum[:]
}

func md5Sum(b []byte) []byte {
	sum := md5.Sum(b)
	return sum[:]
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func hexUpper(b []byte) string { return strings.ToUpper(hex.EncodeToString(b)) }

func hexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }
