package cryptox

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notevault/internal/common"
	"golang.org/x/crypto/scrypt"
)

const (
	// VersionMaster encrypts every user's notes with the shared master key.
	VersionMaster = 1
	// VersionDerived encrypts with a per-user key derived by scrypt.
	VersionDerived = 2
)

// ScryptParams are the cost parameters of the v2 key derivation.
type ScryptParams struct {
	N int
	R int
	P int
}

// DefaultScryptParams is the production cost (about 32 MiB of memory per derivation).
var DefaultScryptParams = ScryptParams{N: 1 << 15, R: 8, P: 1}

// KeyOwner is what the keyring needs to know about a user.
type KeyOwner interface {
	KeyOwnerID() string
	KeySalt() string
	KeyVersion() int
}

// Keyring owns the master key and hands out content keys per encryption
// version. Derived keys are computed on every call and never cached.
type Keyring struct {
	master []byte
	params ScryptParams
}

// NewKeyring copies master, which must be 32 bytes.
func NewKeyring(master []byte, params ScryptParams) (*Keyring, error) {
	if len(master) != KeySize {
		return nil, common.E(common.KindCrypto, "cryptox.NewKeyring",
			fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(master)))
	}
	k := make([]byte, KeySize)
	copy(k, master)
	return &Keyring{master: k, params: params}, nil
}

// MasterKey returns the v1 key.
func (k *Keyring) MasterKey() []byte {
	return k.master
}

// DeriveUserKey computes the v2 key from the master key, the user's salt and
// the user id. Same inputs always give the same key.
func (k *Keyring) DeriveUserKey(userID, salt string) ([]byte, error) {
	const op = "cryptox.DeriveUserKey"

	if salt == "" {
		return nil, common.E(common.KindCrypto, op, errors.New("user has no encryption salt"))
	}
	rawSalt, err := hex.DecodeString(salt)
	if err != nil {
		return nil, common.E(common.KindCrypto, op, errors.New("user salt is not valid hex"))
	}

	input := make([]byte, 0, len(rawSalt)+len(userID))
	input = append(input, rawSalt...)
	input = append(input, userID...)

	key, err := scrypt.Key(k.master, input, k.params.N, k.params.R, k.params.P, KeySize)
	if err != nil {
		return nil, common.E(common.KindCrypto, op, err)
	}
	return key, nil
}

// KeyFor returns the content key for the owner's current encryption version.
// The returned slice belongs to the caller; v2 keys should be wiped after use.
func (k *Keyring) KeyFor(o KeyOwner) ([]byte, error) {
	return k.KeyForVersion(o, o.KeyVersion())
}

// KeyForVersion is KeyFor with an explicit version, used by the migration job
// to read with v1 and write with v2.
func (k *Keyring) KeyForVersion(o KeyOwner, version int) ([]byte, error) {
	switch version {
	case VersionMaster:
		key := make([]byte, KeySize)
		copy(key, k.master)
		return key, nil
	case VersionDerived:
		return k.DeriveUserKey(o.KeyOwnerID(), o.KeySalt())
	}
	return nil, common.E(common.KindCrypto, "cryptox.KeyFor", fmt.Errorf("unknown encryption version %d", version))
}
