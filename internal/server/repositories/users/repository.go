package users

import (
	"context"

	"github.com/dmitrijs2005/notevault/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	SetSalt(ctx context.Context, id, salt string) (bool, error)
	SetEncryptionVersion(ctx context.Context, id string, version int) error
	ListWithoutSalt(ctx context.Context) ([]*models.User, error)
	ListByEncryptionVersion(ctx context.Context, version int) ([]*models.User, error)
}
