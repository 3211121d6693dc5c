package domain

import (
	"github.com/allisson/envsafe/internal/errors"
)

// Folder-specific error definitions.
var (
	// ErrFolderNotFound indicates a folder id or path segment does not exist in the environment.
	ErrFolderNotFound = errors.Wrap(errors.ErrNotFound, "folder not found")

	// ErrFolderExists indicates a sibling with the same name already exists.
	ErrFolderExists = errors.Wrap(errors.ErrConflict, "folder already exists")

	// ErrFolderModified indicates the folder changed between read and write.
	ErrFolderModified = errors.Wrap(errors.ErrConflict, "folder was modified concurrently")

	// ErrRootFolderImmutable indicates an attempt to delete, rename or move the root folder.
	ErrRootFolderImmutable = errors.Wrap(errors.ErrInvalidInput, "root folder cannot be changed")

	// ErrFolderCycle indicates a move would place a folder under itself or one of its descendants.
	ErrFolderCycle = errors.Wrap(errors.ErrInvalidInput, "folder cannot be moved into its own subtree")

	// ErrInvalidPath indicates a folder path with relative segments.
	ErrInvalidPath = errors.Wrap(errors.ErrInvalidInput, "invalid folder path")

	// ErrEnvironmentInitialized indicates the environment already has a root folder.
	ErrEnvironmentInitialized = errors.Wrap(errors.ErrConflict, "environment already initialized")
)
