package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/notevault/internal/codec"
	"github.com/dmitrijs2005/notevault/internal/common"
	"github.com/dmitrijs2005/notevault/internal/cryptox"
	"github.com/dmitrijs2005/notevault/internal/dbx"
	"github.com/dmitrijs2005/notevault/internal/logging"
	"github.com/dmitrijs2005/notevault/internal/naming"
	"github.com/dmitrijs2005/notevault/internal/server/config"
	"github.com/dmitrijs2005/notevault/internal/server/models"
	"github.com/dmitrijs2005/notevault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// DefaultNoteTitle is used when a note is created without a title.
const DefaultNoteTitle = "Untitled"

// ContentInput is note content as received from the transport. When
// Compressed is set, Text is base64(gzip(plaintext)).
type ContentInput struct {
	Text       string
	Compressed bool
}

// NoteUpdate holds optional changes. A nil field is left untouched; in
// particular a nil Content keeps the stored ciphertext, while an empty
// Content clears it.
type NoteUpdate struct {
	Title      *string
	FolderID   *string
	IsFavorite *bool
	Tags       *[]string
	Content    *ContentInput
}

// PlainNote is a note together with its decrypted content.
type PlainNote struct {
	Note    *models.Note
	Content string
}

// NoteService stores notes encrypted under the owner's current key and keeps
// titles unique within a folder.
type NoteService struct {
	base
	hardDelete bool
}

func NewNoteService(db *sql.DB, m repomanager.RepositoryManager, kr *cryptox.Keyring, log logging.Logger, cfg *config.Config) *NoteService {
	return &NoteService{base: newBase(db, m, kr, log, cfg), hardDelete: cfg.HardDeleteNotes}
}

// seal turns transport content into a ciphertext triple for the user. Empty
// plaintext yields the empty triple.
func (s *NoteService) seal(user *models.User, in *ContentInput) (models.EncryptedContent, string, error) {
	const op = "services.seal"

	plaintext, err := codec.DecompressCapped(in.Text, in.Compressed, codec.MaxRawContentSize)
	if err != nil {
		return models.EncryptedContent{}, "", err
	}
	if plaintext == "" {
		return models.EncryptedContent{}, "", nil
	}

	key, err := s.keyring.KeyFor(user)
	if err != nil {
		return models.EncryptedContent{}, "", err
	}
	defer common.WipeByteArray(key)

	sealed, err := cryptox.Encrypt(plaintext, key)
	if err != nil {
		return models.EncryptedContent{}, "", err
	}
	if len(sealed.Content) > models.MaxEncryptedContentSize {
		return models.EncryptedContent{}, "", common.E(common.KindPayloadTooLarge, op,
			fmt.Errorf("encrypted content exceeds %d bytes", models.MaxEncryptedContentSize))
	}
	return models.EncryptedContent{Content: sealed.Content, IV: sealed.IV, Tag: sealed.Tag}, plaintext, nil
}

// open decrypts the stored triple; the empty triple is empty content.
func (s *NoteService) open(user *models.User, c models.EncryptedContent) (string, error) {
	if c.IsEmpty() {
		return "", nil
	}
	if err := c.Validate(); err != nil {
		return "", err
	}

	key, err := s.keyring.KeyFor(user)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(key)

	return cryptox.Decrypt(cryptox.Sealed{Content: c.Content, IV: c.IV, Tag: c.Tag}, key)
}

func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultNoteTitle
	}
	return title
}

// CreateNote adds a note to folderID (the root when empty). The title gets a
// numeric suffix if a sibling already uses it; content, when given, is
// decompressed if marked and then encrypted.
func (s *NoteService) CreateNote(ctx context.Context, userID, folderID, title string, content *ContentInput) (*PlainNote, error) {
	const op = "services.CreateNote"

	if folderID == "" {
		root, err := s.ensureRoot(ctx, userID)
		if err != nil {
			return nil, err
		}
		folderID = root.ID
	} else if err := checkID(op, "folder", folderID); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.repomanager.Folders(s.db).GetByID(ctx, userID, folderID); err != nil {
		return nil, s.fail(ctx, op, err, "user_id", userID, "folder_id", folderID)
	}

	n := &models.Note{UserID: userID, FolderID: folderID, Tags: []string{}}
	var plaintext string
	if content != nil {
		user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
		if err != nil {
			return nil, s.fail(ctx, op, err, "user_id", userID)
		}
		n.Encrypted, plaintext, err = s.seal(user, content)
		if err != nil {
			return nil, s.fail(ctx, op, err, "user_id", userID)
		}
	}

	intended := normalizeTitle(title)
	notes := s.repomanager.Notes(s.db)
	err := retryOnConflict(func() error {
		existing, err := notes.SiblingTitles(ctx, userID, folderID, intended, "")
		if err != nil {
			return err
		}
		n.ID = uuid.NewString()
		n.Title = naming.Resolve(intended, existing)
		return notes.Create(ctx, n)
	})
	if err != nil {
		return nil, s.fail(ctx, op, err, "user_id", userID, "folder_id", folderID)
	}
	return &PlainNote{Note: n, Content: plaintext}, nil
}

// GetNote returns the decrypted note, or nil, nil when it does not exist or
// was deleted.
func (s *NoteService) GetNote(ctx context.Context, userID, noteID string) (*PlainNote, error) {
	const op = "services.GetNote"
	if checkID(op, "note", noteID) != nil {
		return nil, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.repomanager.Notes(s.db).GetByID(ctx, userID, noteID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, s.fail(ctx, op, err, "user_id", userID, "note_id", noteID)
	}

	plaintext, err := s.decryptFor(ctx, userID, n)
	if err != nil {
		return nil, s.fail(ctx, op, err, "user_id", userID, "note_id", noteID)
	}
	return &PlainNote{Note: n, Content: plaintext}, nil
}

func (s *NoteService) decryptFor(ctx context.Context, userID string, n *models.Note) (string, error) {
	if n.Encrypted.IsEmpty() {
		return "", nil
	}
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.open(user, n.Encrypted)
}

// CopyNote duplicates a note in its folder under a suffixed title. Content is
// re-encrypted with a fresh IV and the copy is never a favorite.
func (s *NoteService) CopyNote(ctx context.Context, userID, noteID string) (*PlainNote, error) {
	const op = "services.CopyNote"
	if err := checkID(op, "note", noteID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	notes := s.repomanager.Notes(s.db)
	src, err := notes.GetByID(ctx, userID, noteID)
	if err != nil {
		return nil, s.fail(ctx, op, err, "user_id", userID, "note_id", noteID)
	}

	cp := &models.Note{
		UserID:   userID,
		FolderID: src.FolderID,
		Tags:     append([]string{}, src.Tags...),
	}

	var plaintext string
	if !src.Encrypted.IsEmpty() {
		user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
		if err != nil {
			return nil, s.fail(ctx, op, err, "user_id", userID)
		}
		plaintext, err = s.open(user, src.Encrypted)
		if err != nil {
			return nil, s.fail(ctx, op, err, "user_id", userID, "note_id", noteID)
		}
		cp.Encrypted, _, err = s.seal(user, &ContentInput{Text: plaintext})
		if err != nil {
			return nil, s.fail(ctx, op, err, "user_id", userID, "note_id", noteID)
		}
	}

	err = retryOnConflict(func() error {
		existing, err := notes.SiblingTitles(ctx, userID, src.FolderID, src.Title, "")
		if err != nil {
			return err
		}
		cp.ID = uuid.NewString()
		cp.Title = naming.Resolve(src.Title, existing)
		return notes.Create(ctx, cp)
	})
	if err != nil {
		return nil, s.fail(ctx, op, err, "user_id", userID, "note_id", noteID)
	}
	return &PlainNote{Note: cp, Content: plaintext}, nil
}

// UpdateNote applies upd in one transaction. The title is re-resolved only
// when the title or the folder changes; tags are normalized whenever given.
// The whole row, ciphertext included, is written by a single statement.
func (s *NoteService) UpdateNote(ctx context.Context, userID, noteID string, upd NoteUpdate) (*PlainNote, error) {
	const op = "services.UpdateNote"
	if err := checkID(op, "note", noteID); err != nil {
		return nil, err
	}
	if upd.FolderID != nil {
		if err := checkID(op, "folder", *upd.FolderID); err != nil {
			return nil, err
		}
	}

	if upd.Title != nil {
		trimmed := strings.TrimSpace(*upd.Title)
		if trimmed == "" {
			return nil, common.E(common.KindValidation, op, errors.New("note title is required"))
		}
		upd.Title = &trimmed
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var user *models.User
	var sealed models.EncryptedContent
	var plaintext string
	if upd.Content != nil {
		var err error
		user, err = s.repomanager.Users(s.db).GetByID(ctx, userID)
		if err != nil {
			return nil, s.fail(ctx, op, err, "user_id", userID)
		}
		sealed, plaintext, err = s.seal(user, upd.Content)
		if err != nil {
			return nil, s.fail(ctx, op, err, "user_id", userID, "note_id", noteID)
		}
	}

	var n *models.Note
	err := retryOnConflict(func() error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			var err error
			n, err = s.applyUpdate(ctx, tx, userID, noteID, upd, sealed)
			return err
		})
	})
	if err != nil {
		return nil, s.fail(ctx, op, err, "user_id", userID, "note_id", noteID)
	}

	if upd.Content == nil {
		plaintext, err = s.decryptFor(ctx, userID, n)
		if err != nil {
			return nil, s.fail(ctx, op, err, "user_id", userID, "note_id", noteID)
		}
	}
	return &PlainNote{Note: n, Content: plaintext}, nil
}

func (s *NoteService) applyUpdate(ctx context.Context, tx dbx.DBTX, userID, noteID string, upd NoteUpdate, sealed models.EncryptedContent) (*models.Note, error) {
	notes := s.repomanager.Notes(tx)

	n, err := notes.GetByID(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}

	changed := false

	folderID := n.FolderID
	if upd.FolderID != nil && *upd.FolderID != n.FolderID {
		if _, err := s.repomanager.Folders(tx).GetByID(ctx, userID, *upd.FolderID); err != nil {
			return nil, err
		}
		folderID = *upd.FolderID
	}

	title := n.Title
	if upd.Title != nil {
		title = *upd.Title
	}

	if folderID != n.FolderID || title != n.Title {
		existing, err := notes.SiblingTitles(ctx, userID, folderID, title, n.ID)
		if err != nil {
			return nil, err
		}
		n.Title = naming.Resolve(title, existing)
		n.FolderID = folderID
		changed = true
	}

	if upd.IsFavorite != nil && *upd.IsFavorite != n.IsFavorite {
		n.IsFavorite = *upd.IsFavorite
		changed = true
	}
	if upd.Tags != nil {
		n.Tags = models.NormalizeTags(*upd.Tags)
		changed = true
	}
	if upd.Content != nil {
		n.Encrypted = sealed
		changed = true
	}

	if !changed {
		return n, nil
	}
	if err := notes.Update(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// MoveNote puts a note into folderID. Moving to the current folder is a
// no-op; the title is suffixed if it collides in the destination.
func (s *NoteService) MoveNote(ctx context.Context, userID, noteID, folderID string) (*models.Note, error) {
	const op = "services.MoveNote"
	if err := checkID(op, "note", noteID); err != nil {
		return nil, err
	}
	if err := checkID(op, "folder", folderID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n *models.Note
	err := retryOnConflict(func() error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			var err error
			n, err = s.applyUpdate(ctx, tx, userID, noteID, NoteUpdate{FolderID: &folderID}, models.EncryptedContent{})
			return err
		})
	})
	if err != nil {
		return nil, s.fail(ctx, op, err, "user_id", userID, "note_id", noteID, "folder_id", folderID)
	}
	return n, nil
}

// ToggleFavorite flips the favorite flag and returns the note's metadata.
func (s *NoteService) ToggleFavorite(ctx context.Context, userID, noteID string) (*models.Note, error) {
	const op = "services.ToggleFavorite"
	if err := checkID(op, "note", noteID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n *models.Note
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		notes := s.repomanager.Notes(tx)
		var err error
		n, err = notes.GetByID(ctx, userID, noteID)
		if err != nil {
			return err
		}
		n.IsFavorite = !n.IsFavorite
		return notes.Update(ctx, n)
	})
	if err != nil {
		return nil, s.fail(ctx, op, err, "user_id", userID, "note_id", noteID)
	}
	return n, nil
}

// DeleteNote marks the note deleted, or removes the row when the store is
// configured for hard deletes.
func (s *NoteService) DeleteNote(ctx context.Context, userID, noteID string) error {
	const op = "services.DeleteNote"
	if err := checkID(op, "note", noteID); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	notes := s.repomanager.Notes(s.db)
	var err error
	if s.hardDelete {
		err = notes.Delete(ctx, userID, noteID)
	} else {
		err = notes.SoftDelete(ctx, userID, noteID)
	}
	if err != nil {
		return s.fail(ctx, op, err, "user_id", userID, "note_id", noteID)
	}
	return nil
}

// ListNotes returns metadata of the live notes in a folder.
func (s *NoteService) ListNotes(ctx context.Context, userID, folderID string) ([]*models.Note, error) {
	const op = "services.ListNotes"
	if err := checkID(op, "folder", folderID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.repomanager.Folders(s.db).GetByID(ctx, userID, folderID); err != nil {
		return nil, s.fail(ctx, op, err, "user_id", userID, "folder_id", folderID)
	}
	list, err := s.repomanager.Notes(s.db).ListByFolder(ctx, userID, folderID)
	if err != nil {
		return nil, s.fail(ctx, op, err, "user_id", userID, "folder_id", folderID)
	}
	if list == nil {
		list = []*models.Note{}
	}
	return list, nil
}
