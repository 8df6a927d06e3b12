// Package reencrypt moves users from the shared master key (version 1) to
// per-user derived keys (version 2).
//
// The job is offline maintenance: it must not run alongside live writes for
// the same users. Each note is rewritten at most once per run and a user is
// flipped to version 2 only after every one of their notes succeeded, so a
// user with failures keeps version 1 and its already rewritten notes must be
// audited before any rerun.
package reencrypt

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/notevault/internal/common"
	"github.com/dmitrijs2005/notevault/internal/cryptox"
	"github.com/dmitrijs2005/notevault/internal/logging"
	"github.com/dmitrijs2005/notevault/internal/server/config"
	"github.com/dmitrijs2005/notevault/internal/server/models"
	"github.com/dmitrijs2005/notevault/internal/server/repositories/repomanager"
	"golang.org/x/sync/errgroup"
)

// State is where a user stands in the migration.
type State int

const (
	StateNeedsSalt State = iota
	StateHasSaltV1
	StateMigrating
	StateV2Complete
)

func (s State) String() string {
	switch s {
	case StateNeedsSalt:
		return "NEEDS_SALT"
	case StateHasSaltV1:
		return "HAS_SALT_V1"
	case StateMigrating:
		return "MIGRATING"
	case StateV2Complete:
		return "V2_COMPLETE"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// StateOf derives the resting state of a user row. Migrating is only ever
// observed while Run works on the user.
func StateOf(u *models.User) State {
	switch {
	case u.EncryptionVersion == cryptox.VersionDerived:
		return StateV2Complete
	case !u.HasSalt():
		return StateNeedsSalt
	default:
		return StateHasSaltV1
	}
}

// Report summarizes a run.
type Report struct {
	SaltsGenerated int
	UsersMigrated  int
	UsersFailed    int
	NotesMigrated  int
	NotesSkipped   int
	NoteErrors     int
}

// Failed reports whether operators need to audit the run.
func (r *Report) Failed() bool {
	return r.NoteErrors > 0 || r.UsersFailed > 0
}

type Job struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	keyring     *cryptox.Keyring
	log         logging.Logger
	batchSize   int
	workers     int

	mu     sync.Mutex
	report Report
}

func NewJob(db *sql.DB, m repomanager.RepositoryManager, kr *cryptox.Keyring, log logging.Logger, cfg *config.Config) *Job {
	batch := cfg.MigrationBatchSize
	if batch <= 0 {
		batch = 100
	}
	workers := cfg.MigrationWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Job{db: db, repomanager: m, keyring: kr, log: log, batchSize: batch, workers: workers}
}

// Run provisions missing salts, then re-encrypts the notes of every version 1
// user. Per-note failures are logged and counted, not returned; the error is
// reserved for failures that stop the run (listing users, cancellation).
func (j *Job) Run(ctx context.Context) (*Report, error) {
	j.report = Report{}

	if err := j.provisionSalts(ctx); err != nil {
		return j.snapshot(), err
	}

	pending, err := j.repomanager.Users(j.db).ListByEncryptionVersion(ctx, cryptox.VersionMaster)
	if err != nil {
		return j.snapshot(), fmt.Errorf("list version 1 users: %w", err)
	}
	j.log.Info(ctx, "re-encryption started", "users", len(pending), "workers", j.workers, "batch_size", j.batchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.workers)
	for _, u := range pending {
		userID := u.ID
		g.Go(func() error {
			return j.migrateUser(gctx, userID)
		})
	}
	err = g.Wait()

	r := j.snapshot()
	j.log.Info(ctx, "re-encryption finished",
		"users_migrated", r.UsersMigrated, "users_failed", r.UsersFailed,
		"notes_migrated", r.NotesMigrated, "notes_skipped", r.NotesSkipped, "note_errors", r.NoteErrors)
	return r, err
}

func (j *Job) snapshot() *Report {
	j.mu.Lock()
	defer j.mu.Unlock()
	r := j.report
	return &r
}

func (j *Job) add(fn func(r *Report)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.report)
}

func (j *Job) provisionSalts(ctx context.Context) error {
	users := j.repomanager.Users(j.db)

	needSalt, err := users.ListWithoutSalt(ctx)
	if err != nil {
		return fmt.Errorf("list users without salt: %w", err)
	}
	for _, u := range needSalt {
		salt, err := cryptox.GenerateSalt()
		if err != nil {
			return err
		}
		set, err := users.SetSalt(ctx, u.ID, salt)
		if err != nil {
			return fmt.Errorf("set salt for %s: %w", u.ID, err)
		}
		if set {
			j.add(func(r *Report) { r.SaltsGenerated++ })
			j.log.Info(ctx, "salt generated", "user_id", u.ID, "state", StateHasSaltV1.String())
		}
	}
	return nil
}

// migrateUser returns an error only when the run must stop. A user whose
// keys cannot be built, or who had note failures, is counted as failed.
func (j *Job) migrateUser(ctx context.Context, userID string) error {
	users := j.repomanager.Users(j.db)
	log := j.log.With("user_id", userID)

	u, err := users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}
	if StateOf(u) != StateHasSaltV1 {
		log.Warn(ctx, "user skipped", "state", StateOf(u).String())
		return nil
	}
	log.Info(ctx, "user migrating", "state", StateMigrating.String())

	oldKey, err := j.keyring.KeyForVersion(u, cryptox.VersionMaster)
	if err != nil {
		return j.userFailed(ctx, log, err)
	}
	defer common.WipeByteArray(oldKey)
	newKey, err := j.keyring.KeyForVersion(u, cryptox.VersionDerived)
	if err != nil {
		return j.userFailed(ctx, log, err)
	}
	defer common.WipeByteArray(newKey)

	noteErrors, err := j.migrateNotes(ctx, log, userID, oldKey, newKey)
	if err != nil {
		return err
	}
	if noteErrors > 0 {
		log.Error(ctx, "user left on version 1", "note_errors", noteErrors)
		j.add(func(r *Report) { r.UsersFailed++ })
		return nil
	}

	if err := users.SetEncryptionVersion(ctx, userID, cryptox.VersionDerived); err != nil {
		return j.userFailed(ctx, log, err)
	}
	j.add(func(r *Report) { r.UsersMigrated++ })
	log.Info(ctx, "user migrated", "state", StateV2Complete.String())
	return nil
}

func (j *Job) userFailed(ctx context.Context, log logging.Logger, err error) error {
	log.Error(ctx, "user migration failed", "error", err)
	j.add(func(r *Report) { r.UsersFailed++ })
	return nil
}

// migrateNotes walks the user's notes by id in batches, deleted ones
// included, and returns how many failed.
func (j *Job) migrateNotes(ctx context.Context, log logging.Logger, userID string, oldKey, newKey []byte) (int, error) {
	notes := j.repomanager.Notes(j.db)
	failed := 0
	after := ""

	for {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		batch, err := notes.ListBatch(ctx, userID, after, j.batchSize)
		if err != nil {
			return failed, fmt.Errorf("list notes of %s: %w", userID, err)
		}

		for _, n := range batch {
			after = n.ID
			if !n.Encrypted.IsComplete() {
				j.add(func(r *Report) { r.NotesSkipped++ })
				continue
			}
			if err := j.migrateNote(ctx, n, oldKey, newKey); err != nil {
				failed++
				j.add(func(r *Report) { r.NoteErrors++ })
				log.Error(ctx, "note re-encryption failed", "note_id", n.ID, "error", err)
				continue
			}
			j.add(func(r *Report) { r.NotesMigrated++ })
		}

		if len(batch) < j.batchSize {
			return failed, nil
		}
	}
}

func (j *Job) migrateNote(ctx context.Context, n *models.Note, oldKey, newKey []byte) error {
	plaintext, err := cryptox.Decrypt(cryptox.Sealed{Content: n.Encrypted.Content, IV: n.Encrypted.IV, Tag: n.Encrypted.Tag}, oldKey)
	if err != nil {
		return err
	}
	sealed, err := cryptox.Encrypt(plaintext, newKey)
	if err != nil {
		return err
	}
	return j.repomanager.Notes(j.db).UpdateCiphertext(ctx, n.ID,
		models.EncryptedContent{Content: sealed.Content, IV: sealed.IV, Tag: sealed.Tag})
}
