// Package domain defines core domain models and errors for secrets.
package domain

import (
	"github.com/allisson/envsafe/internal/errors"
)

// Secret-specific error definitions.
var (
	// ErrSecretNotFound indicates the secret does not exist in the scope.
	ErrSecretNotFound = errors.Wrap(errors.ErrNotFound, "secret not found")

	// ErrDuplicateSecret indicates another secret in the same folder has the same
	// blind index, meaning it resolves to the same name.
	ErrDuplicateSecret = errors.Wrap(errors.ErrConflict, "secret already exists in folder")

	// ErrSecretModified indicates the optimistic version predicate of an update or
	// delete matched no row because another writer got there first.
	ErrSecretModified = errors.Wrap(errors.ErrConflict, "secret was modified concurrently")
)
