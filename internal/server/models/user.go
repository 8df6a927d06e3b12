package models

import "time"

// User is the identity anchor. Name and email come from the identity
// provider; EncryptionSalt and EncryptionVersion are owned by this store.
type User struct {
	ID                string
	Name              string
	Email             string
	EncryptionSalt    *string
	EncryptionVersion int
	CreatedAt         time.Time
}

// HasSalt reports whether a v2 salt has been provisioned.
func (u *User) HasSalt() bool {
	return u.EncryptionSalt != nil && *u.EncryptionSalt != ""
}

func (u *User) KeyOwnerID() string { return u.ID }

func (u *User) KeySalt() string {
	if u.EncryptionSalt == nil {
		return ""
	}
	return *u.EncryptionSalt
}

func (u *User) KeyVersion() int { return u.EncryptionVersion }
