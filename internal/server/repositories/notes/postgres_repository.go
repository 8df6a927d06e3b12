// Package notes provides the PostgreSQL repository for notes. Content is
// stored only as the hex ciphertext triple (content, iv, tag).
package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notevault/internal/common"
	"github.com/dmitrijs2005/notevault/internal/dbx"
	"github.com/dmitrijs2005/notevault/internal/naming"
	"github.com/dmitrijs2005/notevault/internal/server/models"
	"github.com/lib/pq"
)

// PostgresRepository implements note storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const (
	noteColumns = `id, title, content, iv, tag, folder_id, user_id, is_favorite, tags, created_at, updated_at, deleted_at`
	// listings skip the ciphertext; trees and folder views show metadata only.
	summaryColumns = `id, title, '', '', '', folder_id, user_id, is_favorite, tags, created_at, updated_at, deleted_at`

	contentSizeConstraint = "notes_content_size"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*models.Note, error) {
	n := &models.Note{}
	var deleted sql.NullTime
	err := s.Scan(&n.ID, &n.Title, &n.Encrypted.Content, &n.Encrypted.IV, &n.Encrypted.Tag,
		&n.FolderID, &n.UserID, &n.IsFavorite, pq.Array(&n.Tags), &n.CreatedAt, &n.UpdatedAt, &deleted)
	if err != nil {
		return nil, err
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	if deleted.Valid {
		n.DeletedAt = &deleted.Time
	}
	return n, nil
}

func tagsArg(tags []string) any {
	if tags == nil {
		tags = []string{}
	}
	return pq.Array(tags)
}

func writeError(op string, err error) error {
	switch {
	case dbx.IsUniqueViolation(err):
		return common.E(common.KindConflict, op, err)
	case dbx.IsCheckViolation(err) && dbx.ConstraintName(err) == contentSizeConstraint:
		return common.E(common.KindPayloadTooLarge, op, err)
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) Create(ctx context.Context, note *models.Note) error {
	query := `
		INSERT INTO notes (id, title, content, iv, tag, folder_id, user_id, is_favorite, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		note.ID, note.Title, note.Encrypted.Content, note.Encrypted.IV, note.Encrypted.Tag,
		note.FolderID, note.UserID, note.IsFavorite, tagsArg(note.Tags),
	).Scan(&note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return writeError("notes.Create", err)
	}
	return nil
}

// GetByID returns a live (not soft-deleted) note of the user.
func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`

	n, err := scanNote(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Note, error) {
	query := `SELECT ` + summaryColumns + ` FROM notes
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id`
	return r.list(ctx, query, userID)
}

func (r *PostgresRepository) ListByFolder(ctx context.Context, userID, folderID string) ([]*models.Note, error) {
	query := `SELECT ` + summaryColumns + ` FROM notes
		WHERE user_id = $1 AND folder_id = $2 AND deleted_at IS NULL
		ORDER BY created_at, id`
	return r.list(ctx, query, userID, folderID)
}

func (r *PostgresRepository) ListBatch(ctx context.Context, userID, afterID string, limit int) ([]*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE user_id = $1 AND id::text > $2
		ORDER BY id::text
		LIMIT $3`
	return r.list(ctx, query, userID, afterID, limit)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Note, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	var result []*models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SiblingTitles returns live note titles in folderID that equal intended or
// start with "intended ", skipping excludeID.
func (r *PostgresRepository) SiblingTitles(ctx context.Context, userID, folderID, intended, excludeID string) ([]string, error) {
	query := `
		SELECT title FROM notes
		WHERE user_id = $1 AND folder_id = $2 AND deleted_at IS NULL
			AND id::text <> $3
			AND (title = $4 OR starts_with(title, $5))`

	rows, err := r.db.QueryContext(ctx, query, userID, folderID, excludeID, intended, naming.Prefix(intended))
	if err != nil {
		return nil, fmt.Errorf("failed to select sibling titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return titles, nil
}

// Update writes every mutable column in one statement, so the ciphertext
// triple is replaced atomically together with the metadata.
func (r *PostgresRepository) Update(ctx context.Context, note *models.Note) error {
	query := `
		UPDATE notes SET
			title = $3, folder_id = $4, is_favorite = $5, tags = $6,
			content = $7, iv = $8, tag = $9, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		note.ID, note.UserID, note.Title, note.FolderID, note.IsFavorite, tagsArg(note.Tags),
		note.Encrypted.Content, note.Encrypted.IV, note.Encrypted.Tag,
	).Scan(&note.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		return writeError("notes.Update", err)
	}
	return nil
}

// UpdateCiphertext replaces only the triple. updated_at is left alone since
// re-encryption is not a user edit.
func (r *PostgresRepository) UpdateCiphertext(ctx context.Context, id string, content models.EncryptedContent) error {
	query := `UPDATE notes SET content = $2, iv = $3, tag = $4 WHERE id = $1`
	return r.execOne(ctx, "notes.UpdateCiphertext", query, id, content.Content, content.IV, content.Tag)
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	query := `DELETE FROM notes WHERE id = $1 AND user_id = $2`
	return r.execOne(ctx, "notes.Delete", query, id, userID)
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, userID, id string) error {
	query := `UPDATE notes SET deleted_at = NOW() WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	return r.execOne(ctx, "notes.SoftDelete", query, id, userID)
}

func (r *PostgresRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return writeError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
