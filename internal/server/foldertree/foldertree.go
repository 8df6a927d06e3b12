// Package foldertree assembles a user's flat folder and note rows into a
// nested tree.
package foldertree

import "github.com/dmitrijs2005/notevault/internal/server/models"

// Node is a folder with its direct notes and child folders.
type Node struct {
	Folder  *models.Folder
	Notes   []*models.Note
	Folders []*Node
}

// Build indexes every folder by id, then links each folder and note to its
// parent in a second pass. Children keep the order of the input slices.
// It returns nil when rootID is not among folders.
//
// A folder whose parent is itself (the user root) or missing from the input
// is not linked anywhere, so only the subtree of rootID is reachable.
func Build(folders []*models.Folder, notes []*models.Note, rootID string) *Node {
	index := make(map[string]*Node, len(folders))
	for _, f := range folders {
		index[f.ID] = &Node{Folder: f, Notes: []*models.Note{}, Folders: []*Node{}}
	}

	top, ok := index[rootID]
	if !ok {
		return nil
	}

	for _, f := range folders {
		if f.ParentFolderID == f.ID {
			continue
		}
		parent, ok := index[f.ParentFolderID]
		if !ok {
			continue
		}
		parent.Folders = append(parent.Folders, index[f.ID])
	}

	for _, n := range notes {
		if parent, ok := index[n.FolderID]; ok {
			parent.Notes = append(parent.Notes, n)
		}
	}

	return top
}

// Walk visits the tree depth-first, parents before children.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Folders {
		c.Walk(fn)
	}
}
