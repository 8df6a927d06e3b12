package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/notevault/internal/common"
	"github.com/dmitrijs2005/notevault/internal/cryptox"
	"github.com/dmitrijs2005/notevault/internal/dbx"
	"github.com/dmitrijs2005/notevault/internal/logging"
	"github.com/dmitrijs2005/notevault/internal/naming"
	"github.com/dmitrijs2005/notevault/internal/server/config"
	"github.com/dmitrijs2005/notevault/internal/server/foldertree"
	"github.com/dmitrijs2005/notevault/internal/server/models"
	"github.com/dmitrijs2005/notevault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// RootFolderName is the display name of every user's root folder.
const RootFolderName = "Root"

// FolderUpdate holds optional changes; nil fields are left as they are.
type FolderUpdate struct {
	Name           *string
	ParentFolderID *string
}

// FolderService maintains each user's folder tree: a single self-parented
// root, no cycles, and unique names among siblings.
type FolderService struct {
	base
}

func NewFolderService(db *sql.DB, m repomanager.RepositoryManager, kr *cryptox.Keyring, log logging.Logger, cfg *config.Config) *FolderService {
	return &FolderService{base: newBase(db, m, kr, log, cfg)}
}

// EnsureRootFolder returns the user's root, creating it on first access.
// Concurrent calls for one user converge on a single row.
func (s *FolderService) EnsureRootFolder(ctx context.Context, userID string) (*models.Folder, error) {
	return s.ensureRoot(ctx, userID)
}

// ensureRoot finds or creates the root. A user who gets a root here has no
// notes yet, so a missing salt is provisioned and the user starts on the
// derived-key scheme.
func (b *base) ensureRoot(ctx context.Context, userID string) (*models.Folder, error) {
	const op = "services.EnsureRootFolder"
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var root *models.Folder
	err := dbx.WithTx(ctx, b.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		folders := b.repomanager.Folders(tx)

		existing, err := folders.GetRoot(ctx, userID)
		if err == nil {
			root = existing
			return nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return err
		}

		candidate := &models.Folder{ID: uuid.NewString(), Name: RootFolderName, UserID: userID, IsRoot: true}
		candidate.ParentFolderID = candidate.ID
		created, err := folders.CreateRoot(ctx, candidate)
		if err != nil {
			return err
		}
		if !created {
			root, err = folders.GetRoot(ctx, userID)
			return err
		}
		root = candidate
		return b.provisionKey(ctx, tx, userID)
	})
	if err != nil {
		return nil, b.fail(ctx, op, err, "user_id", userID)
	}
	return root, nil
}

func (b *base) provisionKey(ctx context.Context, tx dbx.DBTX, userID string) error {
	users := b.repomanager.Users(tx)
	u, err := users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.HasSalt() {
		salt, err := cryptox.GenerateSalt()
		if err != nil {
			return err
		}
		if _, err := users.SetSalt(ctx, userID, salt); err != nil {
			return err
		}
	}
	if u.EncryptionVersion != cryptox.VersionDerived {
		return users.SetEncryptionVersion(ctx, userID, cryptox.VersionDerived)
	}
	return nil
}

// GetFolder returns a folder owned by the user or NotFound.
func (s *FolderService) GetFolder(ctx context.Context, userID, folderID string) (*models.Folder, error) {
	const op = "services.GetFolder"
	if err := checkID(op, "folder", folderID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	f, err := s.repomanager.Folders(s.db).GetByID(ctx, userID, folderID)
	if err != nil {
		return nil, s.fail(ctx, op, err, "user_id", userID, "folder_id", folderID)
	}
	return f, nil
}

// CreateFolder adds a non-root folder under parentFolderID (the root when
// empty). The name gets a numeric suffix if a sibling already uses it.
func (s *FolderService) CreateFolder(ctx context.Context, userID, parentFolderID, name string) (*models.Folder, error) {
	const op = "services.CreateFolder"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, common.E(common.KindValidation, op, errors.New("folder name is required"))
	}

	if parentFolderID == "" {
		root, err := s.ensureRoot(ctx, userID)
		if err != nil {
			return nil, err
		}
		parentFolderID = root.ID
	} else if err := checkID(op, "folder", parentFolderID); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	folders := s.repomanager.Folders(s.db)
	if _, err := folders.GetByID(ctx, userID, parentFolderID); err != nil {
		return nil, s.fail(ctx, op, err, "user_id", userID, "parent_id", parentFolderID)
	}

	f := &models.Folder{UserID: userID, ParentFolderID: parentFolderID}
	err := retryOnConflict(func() error {
		existing, err := folders.SiblingNames(ctx, userID, parentFolderID, name, "")
		if err != nil {
			return err
		}
		f.ID = uuid.NewString()
		f.Name = naming.Resolve(name, existing)
		return folders.Create(ctx, f)
	})
	if err != nil {
		return nil, s.fail(ctx, op, err, "user_id", userID, "parent_id", parentFolderID)
	}
	return f, nil
}

// MoveFolder re-parents a folder. Moving to the current parent is a no-op;
// moving under itself or one of its descendants is CycleDetected. The name is
// suffixed if it collides in the destination.
func (s *FolderService) MoveFolder(ctx context.Context, userID, folderID, newParentFolderID string) (*models.Folder, error) {
	return s.UpdateFolder(ctx, userID, folderID, FolderUpdate{ParentFolderID: &newParentFolderID})
}

// UpdateFolder renames and/or re-parents a folder in one transaction. The
// root can never be updated.
func (s *FolderService) UpdateFolder(ctx context.Context, userID, folderID string, upd FolderUpdate) (*models.Folder, error) {
	const op = "services.UpdateFolder"
	if err := checkID(op, "folder", folderID); err != nil {
		return nil, err
	}
	if upd.ParentFolderID != nil {
		if err := checkID(op, "folder", *upd.ParentFolderID); err != nil {
			return nil, err
		}
	}

	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, common.E(common.KindValidation, op, errors.New("folder name is required"))
		}
		upd.Name = &trimmed
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var result *models.Folder
	err := retryOnConflict(func() error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			f, err := s.applyUpdate(ctx, tx, userID, folderID, upd)
			result = f
			return err
		})
	})
	if err != nil {
		return nil, s.fail(ctx, op, err, "user_id", userID, "folder_id", folderID)
	}
	return result, nil
}

func (s *FolderService) applyUpdate(ctx context.Context, tx dbx.DBTX, userID, folderID string, upd FolderUpdate) (*models.Folder, error) {
	folders := s.repomanager.Folders(tx)

	f, err := folders.GetByID(ctx, userID, folderID)
	if err != nil {
		return nil, err
	}
	if f.IsRoot {
		return nil, common.E(common.KindInvalidOperation, "", errors.New("the root folder cannot be modified"))
	}

	parentID := f.ParentFolderID
	if upd.ParentFolderID != nil && *upd.ParentFolderID != f.ParentFolderID {
		parentID = *upd.ParentFolderID
		if _, err := folders.GetByID(ctx, userID, parentID); err != nil {
			return nil, err
		}
		all, err := folders.ListByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		inside, err := descendantOf(all, f.ID, parentID)
		if err != nil {
			return nil, err
		}
		if inside {
			return nil, common.E(common.KindCycleDetected, "", fmt.Errorf("folder %s cannot move under its own subtree", f.ID))
		}
	}

	name := f.Name
	if upd.Name != nil {
		name = *upd.Name
	}

	if parentID == f.ParentFolderID && name == f.Name {
		return f, nil
	}

	existing, err := folders.SiblingNames(ctx, userID, parentID, name, f.ID)
	if err != nil {
		return nil, err
	}
	f.Name = naming.Resolve(name, existing)
	f.ParentFolderID = parentID

	if err := folders.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// DeleteFolder removes a folder; the database cascades to its subtree and
// notes.
func (s *FolderService) DeleteFolder(ctx context.Context, userID, folderID string) error {
	const op = "services.DeleteFolder"
	if err := checkID(op, "folder", folderID); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	folders := s.repomanager.Folders(s.db)
	f, err := folders.GetByID(ctx, userID, folderID)
	if err != nil {
		return s.fail(ctx, op, err, "user_id", userID, "folder_id", folderID)
	}
	if f.IsRoot {
		return common.E(common.KindInvalidOperation, op, errors.New("the root folder cannot be deleted"))
	}
	if err := folders.Delete(ctx, userID, folderID); err != nil {
		return s.fail(ctx, op, err, "user_id", userID, "folder_id", folderID)
	}
	return nil
}

// GetWithNestedItems loads every folder and note of the user and returns the
// subtree rooted at folderID, or at the user's root when folderID is empty.
// It returns nil, nil when the folder does not exist. Notes carry metadata
// only.
func (s *FolderService) GetWithNestedItems(ctx context.Context, userID, folderID string) (*foldertree.Node, error) {
	const op = "services.GetWithNestedItems"

	if folderID == "" {
		root, err := s.ensureRoot(ctx, userID)
		if err != nil {
			return nil, err
		}
		folderID = root.ID
	} else if checkID(op, "folder", folderID) != nil {
		return nil, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var tree *foldertree.Node
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		folders, err := s.repomanager.Folders(tx).ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		notes, err := s.repomanager.Notes(tx).ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		tree = foldertree.Build(folders, notes, folderID)
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, op, err, "user_id", userID, "folder_id", folderID)
	}
	return tree, nil
}

// IsDescendant reports whether nodeID is folderID itself or lies anywhere in
// folderID's subtree. It walks parent links upward from nodeID and stops at
// the root's self-loop.
func (s *FolderService) IsDescendant(ctx context.Context, userID, folderID, nodeID string) (bool, error) {
	const op = "services.IsDescendant"
	for _, id := range []string{folderID, nodeID} {
		if err := checkID(op, "folder", id); err != nil {
			return false, err
		}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	all, err := s.repomanager.Folders(s.db).ListByUser(ctx, userID)
	if err != nil {
		return false, s.fail(ctx, op, err, "user_id", userID)
	}
	inside, err := descendantOf(all, folderID, nodeID)
	if err != nil {
		return false, s.fail(ctx, op, err, "user_id", userID, "folder_id", folderID, "node_id", nodeID)
	}
	return inside, nil
}

// descendantOf walks from nodeID to the root. A node seen twice means the
// stored tree is corrupt; that is reported instead of looping.
func descendantOf(all []*models.Folder, folderID, nodeID string) (bool, error) {
	parent := make(map[string]*models.Folder, len(all))
	for _, f := range all {
		parent[f.ID] = f
	}

	visited := make(map[string]struct{}, len(all))
	for cur := nodeID; ; {
		if cur == folderID {
			return true, nil
		}
		f, ok := parent[cur]
		if !ok {
			return false, common.E(common.KindNotFound, "", fmt.Errorf("folder %s not found", cur))
		}
		if f.IsRoot || f.ParentFolderID == f.ID {
			return false, nil
		}
		if _, seen := visited[cur]; seen {
			return false, fmt.Errorf("folder cycle through %s", cur)
		}
		visited[cur] = struct{}{}
		cur = f.ParentFolderID
	}
}
