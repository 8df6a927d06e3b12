package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/notevault/internal/dbx"
	"github.com/dmitrijs2005/notevault/internal/server/repositories/folders"
	"github.com/dmitrijs2005/notevault/internal/server/repositories/notes"
	"github.com/dmitrijs2005/notevault/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to either the pool or a
// transaction, so services can run several repositories in one dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Folders(db dbx.DBTX) folders.Repository
	Notes(db dbx.DBTX) notes.Repository
}
