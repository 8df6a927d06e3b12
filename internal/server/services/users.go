package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/notevault/internal/cryptox"
	"github.com/dmitrijs2005/notevault/internal/logging"
	"github.com/dmitrijs2005/notevault/internal/server/config"
	"github.com/dmitrijs2005/notevault/internal/server/models"
	"github.com/dmitrijs2005/notevault/internal/server/repositories/repomanager"
)

// Identity is what the external identity provider hands over for a
// validated session.
type Identity struct {
	UserID string
	Name   string
	Email  string
}

// UserService mirrors identity-provider users into the users table so
// folders and notes can reference them.
type UserService struct {
	base
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, kr *cryptox.Keyring, log logging.Logger, cfg *config.Config) *UserService {
	return &UserService{base: newBase(db, m, kr, log, cfg)}
}

// SyncUser inserts the user or refreshes name and email. Encryption salt and
// version are never touched here.
func (s *UserService) SyncUser(ctx context.Context, id Identity) (*models.User, error) {
	const op = "services.SyncUser"
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	u := &models.User{ID: id.UserID, Name: id.Name, Email: id.Email}
	if err := s.repomanager.Users(s.db).Upsert(ctx, u); err != nil {
		return nil, s.fail(ctx, op, err, "user_id", id.UserID)
	}
	return u, nil
}
