// Package users provides the PostgreSQL repository for user rows. Users are
// created by the identity provider integration; this store only reads them
// and manages their encryption salt and version.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notevault/internal/common"
	"github.com/dmitrijs2005/notevault/internal/dbx"
	"github.com/dmitrijs2005/notevault/internal/server/models"
)

// PostgresRepository implements user storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, name, email, encryption_salt, encryption_version, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*models.User, error) {
	u := &models.User{}
	var salt sql.NullString
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &salt, &u.EncryptionVersion, &u.CreatedAt); err != nil {
		return nil, err
	}
	if salt.Valid {
		u.EncryptionSalt = &salt.String
	}
	return u, nil
}

// Upsert inserts the user or refreshes name and email of an existing one, and
// loads the stored encryption fields back into user.
func (r *PostgresRepository) Upsert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email
		RETURNING ` + userColumns

	got, err := scanUser(r.db.QueryRowContext(ctx, query, user.ID, user.Name, user.Email))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	*user = *got
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// SetSalt stores salt only if the user has none yet. It reports whether the
// row was updated, so concurrent provisioning never overwrites a salt.
func (r *PostgresRepository) SetSalt(ctx context.Context, id, salt string) (bool, error) {
	query := `UPDATE users SET encryption_salt = $2 WHERE id = $1 AND encryption_salt IS NULL`

	res, err := r.db.ExecContext(ctx, query, id, salt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) SetEncryptionVersion(ctx context.Context, id string, version int) error {
	query := `UPDATE users SET encryption_version = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, version)
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

func (r *PostgresRepository) ListWithoutSalt(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE encryption_salt IS NULL ORDER BY id`
	return r.list(ctx, query)
}

func (r *PostgresRepository) ListByEncryptionVersion(ctx context.Context, version int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE encryption_version = $1 ORDER BY id`
	return r.list(ctx, query, version)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select users: %w", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
