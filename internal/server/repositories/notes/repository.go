package notes

import (
	"context"

	"github.com/dmitrijs2005/notevault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, note *models.Note) error
	GetByID(ctx context.Context, userID, id string) (*models.Note, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Note, error)
	ListByFolder(ctx context.Context, userID, folderID string) ([]*models.Note, error)
	SiblingTitles(ctx context.Context, userID, folderID, intended, excludeID string) ([]string, error)
	Update(ctx context.Context, note *models.Note) error
	Delete(ctx context.Context, userID, id string) error
	SoftDelete(ctx context.Context, userID, id string) error

	// ListBatch pages through every note of a user, soft-deleted ones
	// included, ordered by id and starting after afterID.
	ListBatch(ctx context.Context, userID, afterID string, limit int) ([]*models.Note, error)
	UpdateCiphertext(ctx context.Context, id string, content models.EncryptedContent) error
}
