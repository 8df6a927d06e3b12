// Package cryptox encrypts and decrypts note bodies with AES-256-GCM and
// derives the per-user keys used by encryption version 2.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notevault/internal/common"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the GCM nonce length. Notes use 16 bytes, not the GCM default of 12.
	IVSize = 16
	// TagSize is the GCM authentication tag length.
	TagSize = 16
)

// Sealed is the ciphertext triple produced by Encrypt. All fields are
// hex-encoded.
type Sealed struct {
	Content string
	IV      string
	Tag     string
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, IVSize)
}

// Encrypt seals plaintext under key with a fresh random IV.
//
// The tag is split off the GCM output so the three parts can be stored in
// separate columns. A key that is not 32 bytes yields a Crypto error.
func Encrypt(plaintext string, key []byte) (Sealed, error) {
	const op = "cryptox.Encrypt"

	aead, err := newGCM(key)
	if err != nil {
		return Sealed{}, common.E(common.KindCrypto, op, err)
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return Sealed{}, common.E(common.KindCrypto, op, err)
	}

	out := aead.Seal(nil, iv, []byte(plaintext), nil)
	split := len(out) - TagSize

	return Sealed{
		Content: hex.EncodeToString(out[:split]),
		IV:      hex.EncodeToString(iv),
		Tag:     hex.EncodeToString(out[split:]),
	}, nil
}

// Decrypt opens a triple produced by Encrypt.
//
// Any integrity problem (tag mismatch, undecodable hex, wrong IV or tag
// length) is reported as AuthenticationFailed; no partial plaintext is ever
// returned. A malformed key is a Crypto error.
func Decrypt(s Sealed, key []byte) (string, error) {
	const op = "cryptox.Decrypt"

	aead, err := newGCM(key)
	if err != nil {
		return "", common.E(common.KindCrypto, op, err)
	}

	ct, err := hex.DecodeString(s.Content)
	if err != nil {
		return "", common.E(common.KindAuthenticationFailed, op, fmt.Errorf("content: %w", err))
	}
	iv, err := hex.DecodeString(s.IV)
	if err != nil || len(iv) != IVSize {
		return "", common.E(common.KindAuthenticationFailed, op, errors.New("malformed iv"))
	}
	tag, err := hex.DecodeString(s.Tag)
	if err != nil || len(tag) != TagSize {
		return "", common.E(common.KindAuthenticationFailed, op, errors.New("malformed tag"))
	}

	buf := make([]byte, 0, len(ct)+len(tag))
	buf = append(buf, ct...)
	buf = append(buf, tag...)

	plaintext, err := aead.Open(nil, iv, buf, nil)
	if err != nil {
		return "", common.E(common.KindAuthenticationFailed, op, err)
	}

	return string(plaintext), nil
}

// ParseMasterKey decodes the configured master key, which must be exactly
// 64 hex characters.
func ParseMasterKey(s string) ([]byte, error) {
	const op = "cryptox.ParseMasterKey"

	if s == "" {
		return nil, common.E(common.KindCrypto, op, errors.New("master key is not set"))
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, common.E(common.KindCrypto, op, errors.New("master key is not valid hex"))
	}
	if len(key) != KeySize {
		return nil, common.E(common.KindCrypto, op, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(key)))
	}
	return key, nil
}

// GenerateSalt returns 32 random bytes, hex-encoded, for a user's v2 key.
func GenerateSalt() (string, error) {
	return common.MakeRandHexString(32)
}
