package cryptox

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/dmitrijs2005/notevault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = ScryptParams{N: 1 << 10, R: 8, P: 1}

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, KeySize)
}

func flipBit(t *testing.T, h string, byteIdx int) string {
	t.Helper()
	b, err := hex.DecodeString(h)
	require.NoError(t, err)
	b[byteIdx] ^= 0x01
	return hex.EncodeToString(b)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := testKey()
	inputs := []string{"", "hello", "юникод ✓ 🙂", strings.Repeat("long note ", 5000)}

	for _, p := range inputs {
		s, err := Encrypt(p, key)
		require.NoError(t, err)

		iv, err := hex.DecodeString(s.IV)
		require.NoError(t, err)
		assert.Len(t, iv, IVSize)

		tag, err := hex.DecodeString(s.Tag)
		require.NoError(t, err)
		assert.Len(t, tag, TagSize)

		got, err := Decrypt(s, key)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestEncrypt_FreshIVPerCall(t *testing.T) {
	key := testKey()
	a, err := Encrypt("same", key)
	require.NoError(t, err)
	b, err := Encrypt("same", key)
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Content+a.Tag, b.Content+b.Tag)
}

func TestEncrypt_BadKey(t *testing.T) {
	_, err := Encrypt("x", []byte("short"))
	assert.ErrorIs(t, err, common.ErrCrypto)

	_, err = Decrypt(Sealed{}, make([]byte, 31))
	assert.ErrorIs(t, err, common.ErrCrypto)
}

func TestDecrypt_TamperDetection(t *testing.T) {
	key := testKey()
	s, err := Encrypt("top secret content", key)
	require.NoError(t, err)

	ctLen := len(s.Content) / 2
	for i := 0; i < ctLen; i++ {
		bad := s
		bad.Content = flipBit(t, s.Content, i)
		_, err := Decrypt(bad, key)
		require.ErrorIs(t, err, common.ErrAuthenticationFailed, "ciphertext byte %d", i)
	}
	for i := 0; i < TagSize; i++ {
		bad := s
		bad.Tag = flipBit(t, s.Tag, i)
		_, err := Decrypt(bad, key)
		require.ErrorIs(t, err, common.ErrAuthenticationFailed, "tag byte %d", i)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	s, err := Encrypt("payload", testKey())
	require.NoError(t, err)

	other := bytes.Repeat([]byte{0x24}, KeySize)
	_, err = Decrypt(s, other)
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)
}

func TestDecrypt_MalformedFields(t *testing.T) {
	key := testKey()
	s, err := Encrypt("payload", key)
	require.NoError(t, err)

	tests := []struct {
		name string
		mut  func(*Sealed)
	}{
		{"content not hex", func(x *Sealed) { x.Content = "zz" }},
		{"iv not hex", func(x *Sealed) { x.IV = "nothex" }},
		{"iv short", func(x *Sealed) { x.IV = x.IV[:8] }},
		{"tag short", func(x *Sealed) { x.Tag = x.Tag[:10] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := s
			tt.mut(&bad)
			_, err := Decrypt(bad, key)
			assert.ErrorIs(t, err, common.ErrAuthenticationFailed)
		})
	}
}

func TestParseMasterKey(t *testing.T) {
	good := strings.Repeat("ab", KeySize)
	key, err := ParseMasterKey(good)
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	for _, bad := range []string{"", "xyz", strings.Repeat("ab", 16)} {
		_, err := ParseMasterKey(bad)
		assert.ErrorIs(t, err, common.ErrCrypto, bad)
	}
}

func TestGenerateSalt(t *testing.T) {
	s, err := GenerateSalt()
	require.NoError(t, err)
	assert.Len(t, s, 64)
}
