package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrijs2005/notevault/internal/common"
	"github.com/dmitrijs2005/notevault/internal/cryptox"
	"github.com/dmitrijs2005/notevault/internal/logging"
	"github.com/dmitrijs2005/notevault/internal/server/foldertree"
	"github.com/dmitrijs2005/notevault/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureRootFolder_IdempotentAndProvisionsKey(t *testing.T) {
	e := newTestEnv(t)
	root := e.withUser(t, "u1")

	assert.True(t, root.IsRoot)
	assert.Equal(t, root.ID, root.ParentFolderID)
	assert.Equal(t, RootFolderName, root.Name)

	again, err := e.folders.EnsureRootFolder(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, root.ID, again.ID)

	u, ok := e.store.User("u1")
	require.True(t, ok)
	assert.True(t, u.HasSalt())
	assert.Equal(t, cryptox.VersionDerived, u.EncryptionVersion)
}

func TestEnsureRootFolder_Concurrent(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.users.SyncUser(context.Background(), Identity{UserID: "u1"})
	require.NoError(t, err)

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			root, err := e.folders.EnsureRootFolder(context.Background(), "u1")
			if assert.NoError(t, err) {
				ids[i] = root.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, e.store.CountRoots("u1"))
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestEnsureRootFolder_KeepsExistingSalt(t *testing.T) {
	e := newTestEnv(t)
	salt := "abcd"
	e.store.PutUser(&models.User{ID: "u1", EncryptionSalt: &salt, EncryptionVersion: 1})

	_, err := e.folders.EnsureRootFolder(context.Background(), "u1")
	require.NoError(t, err)

	u, _ := e.store.User("u1")
	assert.Equal(t, "abcd", u.KeySalt())
	assert.Equal(t, cryptox.VersionDerived, u.EncryptionVersion)
}

func TestCreateFolder_Naming(t *testing.T) {
	e := newTestEnv(t)
	root := e.withUser(t, "u1")
	ctx := context.Background()

	repo := memoryFolders(e)
	for i, name := range []string{"Untitled", "Untitled 1", "Untitled 3", "Untitled x"} {
		require.NoError(t, repo.Create(ctx, &models.Folder{
			ID: "seed" + string(rune('a'+i)), Name: name, ParentFolderID: root.ID, UserID: "u1",
		}))
	}

	f := e.mkdir(t, "u1", root.ID, "Untitled")
	assert.Equal(t, "Untitled 4", f.Name)
	assert.False(t, f.IsRoot)

	g := e.mkdir(t, "u1", "", "Draft")
	assert.Equal(t, "Draft", g.Name)
	assert.Equal(t, root.ID, g.ParentFolderID)

	// same name in another scope is fine
	h := e.mkdir(t, "u1", g.ID, "Untitled")
	assert.Equal(t, "Untitled", h.Name)
}

func TestCreateFolder_Errors(t *testing.T) {
	e := newTestEnv(t)
	e.withUser(t, "u1")
	other := e.withUser(t, "u2")
	ctx := context.Background()

	_, err := e.folders.CreateFolder(ctx, "u1", "missing", "x")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = e.folders.CreateFolder(ctx, "u1", other.ID, "x")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = e.folders.CreateFolder(ctx, "u1", "", "   ")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestCreateFolder_RetriesOnConflict(t *testing.T) {
	e := newTestEnv(t)
	root := e.withUser(t, "u1")

	e.store.InjectConflicts = 2
	f := e.mkdir(t, "u1", root.ID, "Work")
	assert.Equal(t, "Work", f.Name)

	e.store.InjectConflicts = 3
	_, err := e.folders.CreateFolder(context.Background(), "u1", root.ID, "Other")
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestMoveFolder_CyclePrevention(t *testing.T) {
	e := newTestEnv(t)
	root := e.withUser(t, "u1")
	a := e.mkdir(t, "u1", root.ID, "A")
	b := e.mkdir(t, "u1", a.ID, "B")
	ctx := context.Background()

	got, err := e.folders.MoveFolder(ctx, "u1", b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ParentFolderID)
	assert.Equal(t, b.UpdatedAt, got.UpdatedAt)

	_, err = e.folders.MoveFolder(ctx, "u1", a.ID, b.ID)
	assert.ErrorIs(t, err, common.ErrCycleDetected)

	_, err = e.folders.MoveFolder(ctx, "u1", a.ID, a.ID)
	assert.ErrorIs(t, err, common.ErrCycleDetected)

	_, err = e.folders.MoveFolder(ctx, "u1", a.ID, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = e.folders.MoveFolder(ctx, "u1", "missing", root.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	moved, err := e.folders.MoveFolder(ctx, "u1", b.ID, root.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, moved.ParentFolderID)
}

func TestMoveFolder_RenamesOnCollision(t *testing.T) {
	e := newTestEnv(t)
	root := e.withUser(t, "u1")
	a := e.mkdir(t, "u1", root.ID, "A")
	e.mkdir(t, "u1", root.ID, "Docs")
	inner := e.mkdir(t, "u1", a.ID, "Docs")

	moved, err := e.folders.MoveFolder(context.Background(), "u1", inner.ID, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "Docs 1", moved.Name)
}

func TestRootImmutability(t *testing.T) {
	e := newTestEnv(t)
	root := e.withUser(t, "u1")
	x := e.mkdir(t, "u1", root.ID, "X")
	ctx := context.Background()

	assert.ErrorIs(t, e.folders.DeleteFolder(ctx, "u1", root.ID), common.ErrInvalidOperation)

	for _, dest := range []string{x.ID, root.ID} {
		_, err := e.folders.MoveFolder(ctx, "u1", root.ID, dest)
		assert.ErrorIs(t, err, common.ErrInvalidOperation)
	}

	name := "x"
	_, err := e.folders.UpdateFolder(ctx, "u1", root.ID, FolderUpdate{Name: &name})
	assert.ErrorIs(t, err, common.ErrInvalidOperation)
}

func TestUpdateFolder(t *testing.T) {
	e := newTestEnv(t)
	root := e.withUser(t, "u1")
	a := e.mkdir(t, "u1", root.ID, "A")
	b := e.mkdir(t, "u1", root.ID, "B")
	c := e.mkdir(t, "u1", a.ID, "C")
	ctx := context.Background()

	t.Run("rename collides", func(t *testing.T) {
		name := "A"
		got, err := e.folders.UpdateFolder(ctx, "u1", b.ID, FolderUpdate{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "A 1", got.Name)
	})

	t.Run("same name is a no-op", func(t *testing.T) {
		name := "A"
		got, err := e.folders.UpdateFolder(ctx, "u1", a.ID, FolderUpdate{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "A", got.Name)
	})

	t.Run("rename and move together", func(t *testing.T) {
		name, parent := "Moved", root.ID
		got, err := e.folders.UpdateFolder(ctx, "u1", c.ID, FolderUpdate{Name: &name, ParentFolderID: &parent})
		require.NoError(t, err)
		assert.Equal(t, "Moved", got.Name)
		assert.Equal(t, root.ID, got.ParentFolderID)
	})

	t.Run("parent change checks cycles", func(t *testing.T) {
		d := e.mkdir(t, "u1", a.ID, "D")
		parent := d.ID
		_, err := e.folders.UpdateFolder(ctx, "u1", a.ID, FolderUpdate{ParentFolderID: &parent})
		assert.ErrorIs(t, err, common.ErrCycleDetected)
	})

	t.Run("blank name", func(t *testing.T) {
		name := " "
		_, err := e.folders.UpdateFolder(ctx, "u1", a.ID, FolderUpdate{Name: &name})
		assert.ErrorIs(t, err, common.ErrValidation)
	})
}

func TestDeleteFolder(t *testing.T) {
	e := newTestEnv(t)
	root := e.withUser(t, "u1")
	a := e.mkdir(t, "u1", root.ID, "A")
	b := e.mkdir(t, "u1", a.ID, "B")
	ctx := context.Background()

	n, err := e.notes.CreateNote(ctx, "u1", b.ID, "inside", nil)
	require.NoError(t, err)

	require.NoError(t, e.folders.DeleteFolder(ctx, "u1", a.ID))

	_, err = e.folders.GetFolder(ctx, "u1", b.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	got, err := e.notes.GetNote(ctx, "u1", n.Note.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, e.folders.DeleteFolder(ctx, "u1", a.ID), common.ErrNotFound)
}

func TestGetWithNestedItems(t *testing.T) {
	e := newTestEnv(t)
	root := e.withUser(t, "u1")
	a := e.mkdir(t, "u1", root.ID, "A")
	b := e.mkdir(t, "u1", a.ID, "B")
	ctx := context.Background()

	_, err := e.notes.CreateNote(ctx, "u1", root.ID, "top", &ContentInput{Text: "secret"})
	require.NoError(t, err)
	_, err = e.notes.CreateNote(ctx, "u1", b.ID, "deep", nil)
	require.NoError(t, err)

	tree, err := e.folders.GetWithNestedItems(ctx, "u1", "")
	require.NoError(t, err)
	require.NotNil(t, tree)
	assert.Equal(t, root.ID, tree.Folder.ID)
	require.Len(t, tree.Notes, 1)
	assert.True(t, tree.Notes[0].Encrypted.IsEmpty(), "tree carries metadata only")
	require.Len(t, tree.Folders, 1)
	assert.Equal(t, "B", tree.Folders[0].Folders[0].Folder.Name)
	assert.Equal(t, "deep", tree.Folders[0].Folders[0].Notes[0].Title)

	sub, err := e.folders.GetWithNestedItems(ctx, "u1", a.ID)
	require.NoError(t, err)
	count := 0
	sub.Walk(func(*foldertree.Node) { count++ })
	assert.Equal(t, 2, count)

	missing, err := e.folders.GetWithNestedItems(ctx, "u1", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIsDescendant(t *testing.T) {
	e := newTestEnv(t)
	root := e.withUser(t, "u1")
	a := e.mkdir(t, "u1", root.ID, "A")
	b := e.mkdir(t, "u1", a.ID, "B")
	c := e.mkdir(t, "u1", root.ID, "C")
	ctx := context.Background()

	tests := []struct {
		folder, node string
		want         bool
	}{
		{a.ID, b.ID, true},
		{a.ID, a.ID, true},
		{root.ID, b.ID, true},
		{b.ID, a.ID, false},
		{a.ID, c.ID, false},
		{a.ID, root.ID, false},
	}
	for _, tt := range tests {
		got, err := e.folders.IsDescendant(ctx, "u1", tt.folder, tt.node)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "folder=%s node=%s", tt.folder, tt.node)
	}
}

func TestDescendantOf_CorruptCycleTerminates(t *testing.T) {
	all := []*models.Folder{
		{ID: "root", ParentFolderID: "root", IsRoot: true},
		{ID: "x", ParentFolderID: "y"},
		{ID: "y", ParentFolderID: "x"},
	}
	_, err := descendantOf(all, "root", "x")
	require.Error(t, err)
	assert.Equal(t, common.KindInternal, common.KindOf(err))
}

func TestFail_ClassifiesUnknownErrors(t *testing.T) {
	b := &base{log: logging.Nop()}
	ctx := context.Background()

	err := b.fail(ctx, "op", errors.New("db error: boom"))
	assert.ErrorIs(t, err, common.ErrInternal)

	assert.Same(t, common.ErrNotFound, b.fail(ctx, "op", common.ErrNotFound))
}
