package api

import (
	"time"

	"github.com/dmitrijs2005/notevault/internal/server/foldertree"
	"github.com/dmitrijs2005/notevault/internal/server/models"
	"github.com/dmitrijs2005/notevault/internal/server/services"
)

// Note is the JSON shape of a note. Content is omitted in tree and list
// responses, which carry metadata only.
type Note struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	FolderID   string    `json:"folderId"`
	UserID     string    `json:"userId"`
	IsFavorite bool      `json:"isFavorite"`
	Tags       []string  `json:"tags"`
	Content    *string   `json:"content,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// FolderWithItems is a folder with its notes and child folders, recursively.
type FolderWithItems struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	ParentFolderID string             `json:"parentFolderId"`
	IsRoot         bool               `json:"isRoot"`
	UserID         string             `json:"userId"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
	Notes          []Note             `json:"notes"`
	Folders        []*FolderWithItems `json:"folders"`
}

func NoteMetadata(n *models.Note) Note {
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	return Note{
		ID:         n.ID,
		Title:      n.Title,
		FolderID:   n.FolderID,
		UserID:     n.UserID,
		IsFavorite: n.IsFavorite,
		Tags:       tags,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}
}

func NoteWithContent(p *services.PlainNote) Note {
	out := NoteMetadata(p.Note)
	content := p.Content
	out.Content = &content
	return out
}

func NoteList(notes []*models.Note) []Note {
	out := make([]Note, 0, len(notes))
	for _, n := range notes {
		out = append(out, NoteMetadata(n))
	}
	return out
}

// FromTree converts an assembled tree. A nil tree gives nil.
func FromTree(node *foldertree.Node) *FolderWithItems {
	if node == nil {
		return nil
	}
	f := node.Folder
	out := &FolderWithItems{
		ID:             f.ID,
		Name:           f.Name,
		ParentFolderID: f.ParentFolderID,
		IsRoot:         f.IsRoot,
		UserID:         f.UserID,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
		Notes:          NoteList(node.Notes),
		Folders:        make([]*FolderWithItems, 0, len(node.Folders)),
	}
	for _, c := range node.Folders {
		out.Folders = append(out.Folders, FromTree(c))
	}
	return out
}
