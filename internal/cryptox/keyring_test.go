package cryptox

import (
	"bytes"
	"testing"

	"github.com/dmitrijs2005/notevault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type owner struct {
	id      string
	salt    string
	version int
}

func (o owner) KeyOwnerID() string { return o.id }
func (o owner) KeySalt() string    { return o.salt }
func (o owner) KeyVersion() int    { return o.version }

func newTestKeyring(t *testing.T) *Keyring {
	t.Helper()
	k, err := NewKeyring(testKey(), testParams)
	require.NoError(t, err)
	return k
}

func TestNewKeyring_RejectsShortKey(t *testing.T) {
	_, err := NewKeyring([]byte("short"), testParams)
	assert.ErrorIs(t, err, common.ErrCrypto)
}

func TestDeriveUserKey_Deterministic(t *testing.T) {
	k := newTestKeyring(t)
	salt := "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

	k1, err := k.DeriveUserKey("user-1", salt)
	require.NoError(t, err)
	k2, err := k.DeriveUserKey("user-1", salt)
	require.NoError(t, err)

	assert.Len(t, k1, KeySize)
	assert.True(t, bytes.Equal(k1, k2), "same inputs must give the same key")
	assert.False(t, bytes.Equal(k1, k.MasterKey()))
}

func TestDeriveUserKey_InputsMatter(t *testing.T) {
	k := newTestKeyring(t)
	saltA := "aa" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddee"
	saltB := "bb" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddee"

	a, err := k.DeriveUserKey("user-1", saltA)
	require.NoError(t, err)
	b, err := k.DeriveUserKey("user-1", saltB)
	require.NoError(t, err)
	c, err := k.DeriveUserKey("user-2", saltA)
	require.NoError(t, err)

	assert.False(t, bytes.Equal(a, b), "different salts")
	assert.False(t, bytes.Equal(a, c), "different users")
}

func TestDeriveUserKey_BadSalt(t *testing.T) {
	k := newTestKeyring(t)

	_, err := k.DeriveUserKey("u", "")
	assert.ErrorIs(t, err, common.ErrCrypto)

	_, err = k.DeriveUserKey("u", "not-hex")
	assert.ErrorIs(t, err, common.ErrCrypto)
}

func TestKeyFor_SelectsByVersion(t *testing.T) {
	k := newTestKeyring(t)
	salt, err := GenerateSalt()
	require.NoError(t, err)

	v1, err := k.KeyFor(owner{id: "u", salt: salt, version: VersionMaster})
	require.NoError(t, err)
	assert.Equal(t, k.MasterKey(), v1)

	v2, err := k.KeyFor(owner{id: "u", salt: salt, version: VersionDerived})
	require.NoError(t, err)
	assert.NotEqual(t, k.MasterKey(), v2)

	_, err = k.KeyFor(owner{id: "u", version: VersionDerived})
	assert.ErrorIs(t, err, common.ErrCrypto, "v2 without salt")

	_, err = k.KeyFor(owner{id: "u", salt: salt, version: 7})
	assert.ErrorIs(t, err, common.ErrCrypto)
}

func TestKeyFor_V1KeyIsACopy(t *testing.T) {
	k := newTestKeyring(t)
	key, err := k.KeyFor(owner{version: VersionMaster})
	require.NoError(t, err)

	common.WipeByteArray(key)
	assert.Equal(t, testKey(), k.MasterKey(), "wiping a handed-out key must not touch the master key")
}

func TestV1ToV2_ReEncryption(t *testing.T) {
	k := newTestKeyring(t)
	salt, err := GenerateSalt()
	require.NoError(t, err)
	o := owner{id: "user-9", salt: salt, version: VersionMaster}

	v1Key, err := k.KeyForVersion(o, VersionMaster)
	require.NoError(t, err)
	sealed, err := Encrypt("migrate me", v1Key)
	require.NoError(t, err)

	plain, err := Decrypt(sealed, v1Key)
	require.NoError(t, err)

	v2Key, err := k.KeyForVersion(o, VersionDerived)
	require.NoError(t, err)
	resealed, err := Encrypt(plain, v2Key)
	require.NoError(t, err)

	_, err = Decrypt(resealed, v1Key)
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)

	got, err := Decrypt(resealed, v2Key)
	require.NoError(t, err)
	assert.Equal(t, "migrate me", got)
}
