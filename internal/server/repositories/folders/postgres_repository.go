// Package folders provides the PostgreSQL repository for the folder tree.
// Rows form an adjacency list through parent_folder_id; descendant folders
// and their notes are removed by ON DELETE CASCADE.
package folders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notevault/internal/common"
	"github.com/dmitrijs2005/notevault/internal/dbx"
	"github.com/dmitrijs2005/notevault/internal/naming"
	"github.com/dmitrijs2005/notevault/internal/server/models"
)

// PostgresRepository implements folder storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const folderColumns = `id, name, parent_folder_id, is_root, user_id, created_at, updated_at, deleted_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanFolder(s scanner) (*models.Folder, error) {
	f := &models.Folder{}
	var deleted sql.NullTime
	if err := s.Scan(&f.ID, &f.Name, &f.ParentFolderID, &f.IsRoot, &f.UserID, &f.CreatedAt, &f.UpdatedAt, &deleted); err != nil {
		return nil, err
	}
	if deleted.Valid {
		f.DeletedAt = &deleted.Time
	}
	return f, nil
}

func writeError(op string, err error) error {
	if dbx.IsUniqueViolation(err) {
		return common.E(common.KindConflict, op, err)
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) Create(ctx context.Context, folder *models.Folder) error {
	query := `
		INSERT INTO folders (id, name, parent_folder_id, is_root, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		folder.ID, folder.Name, folder.ParentFolderID, folder.IsRoot, folder.UserID,
	).Scan(&folder.CreatedAt, &folder.UpdatedAt)
	if err != nil {
		return writeError("folders.Create", err)
	}
	return nil
}

// CreateRoot inserts a self-parented root unless the user already has one.
// It reports whether this call created the row; losing a concurrent race is
// not an error.
func (r *PostgresRepository) CreateRoot(ctx context.Context, folder *models.Folder) (bool, error) {
	query := `
		INSERT INTO folders (id, name, parent_folder_id, is_root, user_id)
		VALUES ($1, $2, $1, TRUE, $3)
		ON CONFLICT (user_id) WHERE is_root DO NOTHING
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, folder.ID, folder.Name, folder.UserID).
		Scan(&folder.CreatedAt, &folder.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	folder.ParentFolderID = folder.ID
	folder.IsRoot = true
	return true, nil
}

func (r *PostgresRepository) GetRoot(ctx context.Context, userID string) (*models.Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders WHERE user_id = $1 AND is_root`
	return r.getOne(ctx, query, userID)
}

func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*models.Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	return r.getOne(ctx, query, id, userID)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Folder, error) {
	f, err := scanFolder(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select folders: %w", err)
	}
	defer rows.Close()

	var result []*models.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SiblingNames returns the names under parentID that equal intended or start
// with "intended ", skipping excludeID (the folder being renamed or moved).
func (r *PostgresRepository) SiblingNames(ctx context.Context, userID, parentID, intended, excludeID string) ([]string, error) {
	query := `
		SELECT name FROM folders
		WHERE user_id = $1 AND parent_folder_id = $2
			AND NOT is_root AND deleted_at IS NULL
			AND id::text <> $3
			AND (name = $4 OR starts_with(name, $5))`

	rows, err := r.db.QueryContext(ctx, query, userID, parentID, excludeID, intended, naming.Prefix(intended))
	if err != nil {
		return nil, fmt.Errorf("failed to select sibling names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// Update writes name and parent of a non-root folder.
func (r *PostgresRepository) Update(ctx context.Context, folder *models.Folder) error {
	query := `
		UPDATE folders SET name = $3, parent_folder_id = $4, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND NOT is_root AND deleted_at IS NULL
		RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query, folder.ID, folder.UserID, folder.Name, folder.ParentFolderID).
		Scan(&folder.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		return writeError("folders.Update", err)
	}
	return nil
}

// Delete removes a non-root folder; the schema cascades to its subtree.
func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	query := `DELETE FROM folders WHERE id = $1 AND user_id = $2 AND NOT is_root`

	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
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
