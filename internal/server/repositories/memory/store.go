// Package memory is an in-process implementation of the repository manager.
// It enforces the same uniqueness rules as the PostgreSQL schema and is used
// to exercise services without a database. Transactions are not isolated:
// every DBTX handed to the manager sees the same state.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/notevault/internal/common"
	"github.com/dmitrijs2005/notevault/internal/dbx"
	"github.com/dmitrijs2005/notevault/internal/naming"
	"github.com/dmitrijs2005/notevault/internal/server/models"
	"github.com/dmitrijs2005/notevault/internal/server/repositories/folders"
	"github.com/dmitrijs2005/notevault/internal/server/repositories/notes"
	"github.com/dmitrijs2005/notevault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/notevault/internal/server/repositories/users"
)

// Store holds all rows. Its exported hooks let callers inject failures.
type Store struct {
	mu sync.Mutex

	users   map[string]*models.User
	folders map[string]*models.Folder
	notes   map[string]*models.Note
	seq     map[string]int

	// FailCiphertextFor makes UpdateCiphertext fail for the given note ids.
	FailCiphertextFor map[string]error
	// InjectConflicts makes the next N folder or note Create calls fail
	// with a Conflict, as if a concurrent writer had taken the name.
	InjectConflicts int

	clock int64
}

func NewStore() *Store {
	return &Store{
		users:             map[string]*models.User{},
		folders:           map[string]*models.Folder{},
		notes:             map[string]*models.Note{},
		seq:               map[string]int{},
		FailCiphertextFor: map[string]error{},
	}
}

var _ repomanager.RepositoryManager = (*Manager)(nil)

// Manager adapts a Store to repomanager.RepositoryManager.
type Manager struct {
	Store *Store
}

func NewManager(s *Store) *Manager {
	return &Manager{Store: s}
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *Manager) Users(dbx.DBTX) users.Repository     { return &Users{s: m.Store} }
func (m *Manager) Folders(dbx.DBTX) folders.Repository { return &Folders{s: m.Store} }
func (m *Manager) Notes(dbx.DBTX) notes.Repository     { return &Notes{s: m.Store} }

// now returns strictly increasing timestamps so insertion order is stable.
func (s *Store) now() time.Time {
	s.clock++
	return time.Unix(1_700_000_000, s.clock).UTC()
}

func (s *Store) order(id string) int {
	if _, ok := s.seq[id]; !ok {
		s.seq[id] = len(s.seq)
	}
	return s.seq[id]
}

func (s *Store) injected(op string) error {
	if s.InjectConflicts > 0 {
		s.InjectConflicts--
		return conflict(op, "name (injected)")
	}
	return nil
}

func conflict(op, what string) error {
	return common.E(common.KindConflict, op, fmt.Errorf("duplicate %s", what))
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.EncryptionSalt != nil {
		salt := *u.EncryptionSalt
		c.EncryptionSalt = &salt
	}
	return &c
}

func cloneFolder(f *models.Folder) *models.Folder {
	c := *f
	return &c
}

func cloneNote(n *models.Note) *models.Note {
	c := *n
	c.Tags = append([]string{}, n.Tags...)
	return &c
}

// PutUser inserts or replaces a user row as is.
func (s *Store) PutUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.EncryptionVersion == 0 {
		u.EncryptionVersion = 1
	}
	s.users[u.ID] = cloneUser(u)
}

// PutNote inserts or replaces a note row as is, bypassing uniqueness checks.
func (s *Store) PutNote(n *models.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order(n.ID)
	s.notes[n.ID] = cloneNote(n)
}

// Note returns a copy of any note row, deleted or not.
func (s *Store) Note(id string) (*models.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return nil, false
	}
	return cloneNote(n), true
}

// User returns a copy of a user row.
func (s *Store) User(id string) (*models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	return cloneUser(u), true
}

// CountRoots returns how many root folders the user has.
func (s *Store) CountRoots(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.folders {
		if f.UserID == userID && f.IsRoot {
			n++
		}
	}
	return n
}

// Users

type Users struct{ s *Store }

func (r *Users) Upsert(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cur, ok := r.s.users[u.ID]; ok {
		cur.Name, cur.Email = u.Name, u.Email
		*u = *cloneUser(cur)
		return nil
	}
	u.EncryptionVersion = 1
	u.EncryptionSalt = nil
	u.CreatedAt = r.s.now()
	r.s.users[u.ID] = cloneUser(u)
	return nil
}

func (r *Users) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *Users) SetSalt(_ context.Context, id, salt string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || u.EncryptionSalt != nil {
		return false, nil
	}
	u.EncryptionSalt = &salt
	return true, nil
}

func (r *Users) SetEncryptionVersion(_ context.Context, id string, version int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.EncryptionVersion = version
	return nil
}

func (r *Users) ListWithoutSalt(context.Context) ([]*models.User, error) {
	return r.list(func(u *models.User) bool { return u.EncryptionSalt == nil }), nil
}

func (r *Users) ListByEncryptionVersion(_ context.Context, version int) ([]*models.User, error) {
	return r.list(func(u *models.User) bool { return u.EncryptionVersion == version }), nil
}

func (r *Users) list(keep func(*models.User) bool) []*models.User {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.User
	for _, u := range r.s.users {
		if keep(u) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Folders

type Folders struct{ s *Store }

func (r *Folders) siblingTaken(f *models.Folder) bool {
	for _, o := range r.s.folders {
		if o.ID != f.ID && !o.IsRoot && o.UserID == f.UserID &&
			o.ParentFolderID == f.ParentFolderID && o.Name == f.Name {
			return true
		}
	}
	return false
}

func (r *Folders) Create(_ context.Context, f *models.Folder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("memory.Folders.Create"); err != nil {
		return err
	}
	if _, ok := r.s.folders[f.ID]; ok {
		return conflict("memory.Folders.Create", "folder id")
	}
	if r.siblingTaken(f) {
		return conflict("memory.Folders.Create", "folder name")
	}
	f.CreatedAt = r.s.now()
	f.UpdatedAt = f.CreatedAt
	r.s.order(f.ID)
	r.s.folders[f.ID] = cloneFolder(f)
	return nil
}

func (r *Folders) CreateRoot(_ context.Context, f *models.Folder) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.folders {
		if o.UserID == f.UserID && o.IsRoot {
			return false, nil
		}
	}
	f.IsRoot = true
	f.ParentFolderID = f.ID
	f.CreatedAt = r.s.now()
	f.UpdatedAt = f.CreatedAt
	r.s.order(f.ID)
	r.s.folders[f.ID] = cloneFolder(f)
	return true, nil
}

func (r *Folders) GetRoot(_ context.Context, userID string) (*models.Folder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range r.s.folders {
		if f.UserID == userID && f.IsRoot {
			return cloneFolder(f), nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *Folders) GetByID(_ context.Context, userID, id string) (*models.Folder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.folders[id]
	if !ok || f.UserID != userID || f.DeletedAt != nil {
		return nil, common.ErrNotFound
	}
	return cloneFolder(f), nil
}

func (r *Folders) ListByUser(_ context.Context, userID string) ([]*models.Folder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Folder
	for _, f := range r.s.folders {
		if f.UserID == userID && f.DeletedAt == nil {
			out = append(out, cloneFolder(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.s.seq[out[i].ID] < r.s.seq[out[j].ID] })
	return out, nil
}

func (r *Folders) SiblingNames(_ context.Context, userID, parentID, intended, excludeID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var names []string
	for _, f := range r.s.folders {
		if f.UserID == userID && f.ParentFolderID == parentID && !f.IsRoot &&
			f.DeletedAt == nil && f.ID != excludeID {
			names = append(names, f.Name)
		}
	}
	return naming.Candidates(names, intended), nil
}

func (r *Folders) Update(_ context.Context, f *models.Folder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.folders[f.ID]
	if !ok || cur.UserID != f.UserID || cur.IsRoot || cur.DeletedAt != nil {
		return common.ErrNotFound
	}
	if r.siblingTaken(f) {
		return conflict("memory.Folders.Update", "folder name")
	}
	cur.Name = f.Name
	cur.ParentFolderID = f.ParentFolderID
	cur.UpdatedAt = r.s.now()
	f.UpdatedAt = cur.UpdatedAt
	return nil
}

// Delete removes the folder and cascades to its subtree and notes, as the
// foreign keys do in PostgreSQL.
func (r *Folders) Delete(_ context.Context, userID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.folders[id]
	if !ok || f.UserID != userID || f.IsRoot {
		return common.ErrNotFound
	}

	doomed := map[string]struct{}{id: {}}
	for grew := true; grew; {
		grew = false
		for _, o := range r.s.folders {
			if _, in := doomed[o.ID]; in || o.IsRoot {
				continue
			}
			if _, parentIn := doomed[o.ParentFolderID]; parentIn {
				doomed[o.ID] = struct{}{}
				grew = true
			}
		}
	}
	for fid := range doomed {
		delete(r.s.folders, fid)
	}
	for nid, n := range r.s.notes {
		if _, in := doomed[n.FolderID]; in {
			delete(r.s.notes, nid)
		}
	}
	return nil
}

// Notes

type Notes struct{ s *Store }

func (r *Notes) titleTaken(n *models.Note) bool {
	for _, o := range r.s.notes {
		if o.ID != n.ID && o.DeletedAt == nil && o.UserID == n.UserID &&
			o.FolderID == n.FolderID && o.Title == n.Title {
			return true
		}
	}
	return false
}

func (r *Notes) checkWrite(op string, n *models.Note) error {
	if err := n.Encrypted.Validate(); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if len(n.Encrypted.Content) > models.MaxEncryptedContentSize {
		return common.E(common.KindPayloadTooLarge, op, errors.New("content too large"))
	}
	if r.titleTaken(n) {
		return conflict(op, "note title")
	}
	return nil
}

func (r *Notes) Create(_ context.Context, n *models.Note) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("memory.Notes.Create"); err != nil {
		return err
	}
	if _, ok := r.s.notes[n.ID]; ok {
		return conflict("memory.Notes.Create", "note id")
	}
	if f, ok := r.s.folders[n.FolderID]; !ok || f.UserID != n.UserID {
		return fmt.Errorf("db error: folder %s missing", n.FolderID)
	}
	if err := r.checkWrite("memory.Notes.Create", n); err != nil {
		return err
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	n.CreatedAt = r.s.now()
	n.UpdatedAt = n.CreatedAt
	r.s.order(n.ID)
	r.s.notes[n.ID] = cloneNote(n)
	return nil
}

func (r *Notes) GetByID(_ context.Context, userID, id string) (*models.Note, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notes[id]
	if !ok || n.UserID != userID || n.DeletedAt != nil {
		return nil, common.ErrNotFound
	}
	return cloneNote(n), nil
}

func (r *Notes) collect(keep func(*models.Note) bool, withContent bool) []*models.Note {
	var out []*models.Note
	for _, n := range r.s.notes {
		if !keep(n) {
			continue
		}
		c := cloneNote(n)
		if !withContent {
			c.Encrypted = models.EncryptedContent{}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return r.s.seq[out[i].ID] < r.s.seq[out[j].ID] })
	return out
}

func (r *Notes) ListByUser(_ context.Context, userID string) ([]*models.Note, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.collect(func(n *models.Note) bool {
		return n.UserID == userID && n.DeletedAt == nil
	}, false), nil
}

func (r *Notes) ListByFolder(_ context.Context, userID, folderID string) ([]*models.Note, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.collect(func(n *models.Note) bool {
		return n.UserID == userID && n.FolderID == folderID && n.DeletedAt == nil
	}, false), nil
}

func (r *Notes) SiblingTitles(_ context.Context, userID, folderID, intended, excludeID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var titles []string
	for _, n := range r.s.notes {
		if n.UserID == userID && n.FolderID == folderID && n.DeletedAt == nil && n.ID != excludeID {
			titles = append(titles, n.Title)
		}
	}
	return naming.Candidates(titles, intended), nil
}

func (r *Notes) Update(_ context.Context, n *models.Note) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.notes[n.ID]
	if !ok || cur.UserID != n.UserID || cur.DeletedAt != nil {
		return common.ErrNotFound
	}
	if err := r.checkWrite("memory.Notes.Update", n); err != nil {
		return err
	}
	created := cur.CreatedAt
	*cur = *cloneNote(n)
	cur.CreatedAt = created
	cur.UpdatedAt = r.s.now()
	if cur.Tags == nil {
		cur.Tags = []string{}
	}
	n.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r *Notes) Delete(_ context.Context, userID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notes[id]
	if !ok || n.UserID != userID {
		return common.ErrNotFound
	}
	delete(r.s.notes, id)
	return nil
}

func (r *Notes) SoftDelete(_ context.Context, userID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notes[id]
	if !ok || n.UserID != userID || n.DeletedAt != nil {
		return common.ErrNotFound
	}
	t := r.s.now()
	n.DeletedAt = &t
	return nil
}

// ListBatch orders by id, like the keyset query it stands in for.
func (r *Notes) ListBatch(_ context.Context, userID, afterID string, limit int) ([]*models.Note, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.collect(func(n *models.Note) bool {
		return n.UserID == userID && n.ID > afterID
	}, true)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Notes) UpdateCiphertext(_ context.Context, id string, c models.EncryptedContent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err, ok := r.s.FailCiphertextFor[id]; ok {
		return err
	}
	n, ok := r.s.notes[id]
	if !ok {
		return common.ErrNotFound
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n.Encrypted = c
	return nil
}
