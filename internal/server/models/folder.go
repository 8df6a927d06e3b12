package models

import "time"

// Folder is a node of a user's folder tree. The root folder is its own
// parent.
type Folder struct {
	ID             string
	Name           string
	ParentFolderID string
	IsRoot         bool
	UserID         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}
