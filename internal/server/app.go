// Package server wires the notevault store: configuration, logging, the
// PostgreSQL connection and schema, the keyring and the services built on
// top of them. Transport layers embed an App and call its services.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/notevault/internal/common"
	"github.com/dmitrijs2005/notevault/internal/cryptox"
	"github.com/dmitrijs2005/notevault/internal/dbx"
	"github.com/dmitrijs2005/notevault/internal/logging"
	"github.com/dmitrijs2005/notevault/internal/server/config"
	"github.com/dmitrijs2005/notevault/internal/server/reencrypt"
	"github.com/dmitrijs2005/notevault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/notevault/internal/server/services"
)

// Seams for tests.
var (
	openDB               = dbx.Open
	newRepositoryManager = repomanager.NewPostgresRepositoryManager
	logOutput            = io.Writer(os.Stdout)
	scryptParams         = cryptox.DefaultScryptParams
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	keyring     *cryptox.Keyring

	Users   *services.UserService
	Folders *services.FolderService
	Notes   *services.NoteService
}

// NewApp validates c, connects to the database, applies pending schema
// migrations and builds the services. A missing or malformed master key
// fails here, before any connection is made.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(c.LogBackend, logOutput)
	if err != nil {
		return nil, err
	}

	master, err := cryptox.ParseMasterKey(c.MasterKey)
	if err != nil {
		return nil, err
	}
	keyring, err := cryptox.NewKeyring(master, scryptParams)
	common.WipeByteArray(master)
	if err != nil {
		return nil, err
	}

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m := newRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		repomanager: m,
		keyring:     keyring,
		Users:       services.NewUserService(db, m, keyring, logger, c),
		Folders:     services.NewFolderService(db, m, keyring, logger, c),
		Notes:       services.NewNoteService(db, m, keyring, logger, c),
	}, nil
}

func (app *App) Logger() logging.Logger {
	return app.logger
}

// Reencrypt runs the v1 -> v2 migration job once.
func (app *App) Reencrypt(ctx context.Context) (*reencrypt.Report, error) {
	job := reencrypt.NewJob(app.db, app.repomanager, app.keyring, app.logger, app.config)
	return job.Run(ctx)
}

func (app *App) Close() error {
	return app.db.Close()
}

// WithSignals returns a context cancelled on SIGINT, SIGTERM or SIGQUIT.
func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
}
