// Package services contains the store's business logic: folder tree
// invariants, note encryption and naming, and user provisioning. Services are
// stateless; all state lives in PostgreSQL behind the repository manager.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/notevault/internal/common"
	"github.com/dmitrijs2005/notevault/internal/cryptox"
	"github.com/dmitrijs2005/notevault/internal/logging"
	"github.com/dmitrijs2005/notevault/internal/naming"
	"github.com/dmitrijs2005/notevault/internal/server/config"
	"github.com/dmitrijs2005/notevault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// base carries the dependencies every service shares.
type base struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	keyring     *cryptox.Keyring
	log         logging.Logger
	timeout     time.Duration
}

func newBase(db *sql.DB, m repomanager.RepositoryManager, kr *cryptox.Keyring, log logging.Logger, cfg *config.Config) base {
	return base{
		db:          db,
		repomanager: m,
		keyring:     kr,
		log:         log,
		timeout:     cfg.OperationTimeout,
	}
}

// withTimeout applies the configured operation timeout unless the caller
// already set a deadline.
func (b *base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

// fail passes classified errors through and turns anything else into an
// Internal error, logging it with the operation and ids.
func (b *base) fail(ctx context.Context, op string, err error, args ...any) error {
	var e *common.Error
	if errors.As(err, &e) && e.Kind != common.KindInternal {
		return err
	}
	b.log.Error(ctx, "store operation failed", append([]any{"op", op, "error", err}, args...)...)
	if e != nil {
		return err
	}
	return common.E(common.KindInternal, op, err)
}

// retryOnConflict reruns fn while it fails with a unique violation, which
// means a concurrent writer took the name fn resolved.
func retryOnConflict(fn func() error) error {
	var err error
	for attempt := 0; attempt < naming.MaxAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, common.ErrConflict) {
			return err
		}
	}
	return err
}

// checkID rejects folder and note ids that cannot name a stored row. Those
// columns are uuids, so anything else would reach the database only to fail
// with a type error instead of NotFound.
func checkID(op, what, id string) error {
	if len(id) != 36 || uuid.Validate(id) != nil {
		return common.E(common.KindNotFound, op, fmt.Errorf("%s %q not found", what, id))
	}
	return nil
}
