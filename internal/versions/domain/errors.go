package domain

import (
	"github.com/allisson/envsafe/internal/errors"
)

// Versioning error definitions.
var (
	// ErrVersionConflict indicates a concurrent writer already claimed the version.
	// The whole operation should be retried.
	ErrVersionConflict = errors.Wrap(errors.ErrConflict, "version conflict")

	// ErrSecretVersionNotFound indicates the secret version does not exist.
	ErrSecretVersionNotFound = errors.Wrap(errors.ErrNotFound, "secret version not found")

	// ErrFolderVersionNotFound indicates the folder version does not exist.
	ErrFolderVersionNotFound = errors.Wrap(errors.ErrNotFound, "folder version not found")
)
