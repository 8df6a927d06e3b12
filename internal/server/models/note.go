// Package models defines the rows persisted by the notevault store.
package models

import (
	"errors"
	"strings"
	"time"
)

// MaxEncryptedContentSize caps the stored (hex) ciphertext, matching the
// check constraint on notes.content.
const MaxEncryptedContentSize = 4 * 1024 * 1024

// ErrPartialCiphertext marks a triple with some fields set and others empty.
var ErrPartialCiphertext = errors.New("ciphertext triple is partially set")

// EncryptedContent is the stored ciphertext triple, hex-encoded. It is either
// all empty (no content) or all present.
type EncryptedContent struct {
	Content string
	IV      string
	Tag     string
}

// IsEmpty reports whether no field is set.
func (c EncryptedContent) IsEmpty() bool {
	return c.Content == "" && c.IV == "" && c.Tag == ""
}

// IsComplete reports whether every field is set.
func (c EncryptedContent) IsComplete() bool {
	return c.Content != "" && c.IV != "" && c.Tag != ""
}

// Validate rejects partially set triples.
func (c EncryptedContent) Validate() error {
	if c.IsEmpty() || c.IsComplete() {
		return nil
	}
	return ErrPartialCiphertext
}

// Note is a leaf item in exactly one folder.
type Note struct {
	ID         string
	Title      string
	Encrypted  EncryptedContent
	FolderID   string
	UserID     string
	IsFavorite bool
	Tags       []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// NormalizeTags trims each tag, drops blanks and removes duplicates, keeping
// the first occurrence. The result is never nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
