// Package domain defines the folder tree of an environment.
//
// Every environment has a single root folder named "root" that is never deleted,
// renamed or moved. Sibling names are unique.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RootFolderName is the name of the root folder of every environment.
const RootFolderName = "root"

// Folder is one node of an environment's folder tree.
type Folder struct {
	ID            uuid.UUID
	ProjectID     uuid.UUID
	EnvironmentID uuid.UUID
	// ParentID is nil only for the root folder.
	ParentID *uuid.UUID
	Name     string
	// Version starts at 1 and is bumped by every rename or move.
	Version   uint
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRoot reports whether f is the root folder of its environment.
func (f *Folder) IsRoot() bool {
	return f.ParentID == nil
}

// Clone returns a copy of f that shares no pointers with it.
func (f *Folder) Clone() *Folder {
	c := *f
	if f.ParentID != nil {
		parentID := *f.ParentID
		c.ParentID = &parentID
	}
	return &c
}
