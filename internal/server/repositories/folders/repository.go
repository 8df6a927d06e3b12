package folders

import (
	"context"

	"github.com/dmitrijs2005/notevault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, folder *models.Folder) error
	CreateRoot(ctx context.Context, folder *models.Folder) (bool, error)
	GetRoot(ctx context.Context, userID string) (*models.Folder, error)
	GetByID(ctx context.Context, userID, id string) (*models.Folder, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Folder, error)
	SiblingNames(ctx context.Context, userID, parentID, intended, excludeID string) ([]string, error)
	Update(ctx context.Context, folder *models.Folder) error
	Delete(ctx context.Context, userID, id string) error
}
