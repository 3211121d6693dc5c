// Package commands contains CLI command implementations for the application.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/google/uuid"

	"github.com/allisson/envsafe/internal/app"
	"github.com/allisson/envsafe/internal/scope"
)

// IOTuple holds reader and writer for commands, allowing for testing.
type IOTuple struct {
	Reader io.Reader
	Writer io.Writer
}

// DefaultIO returns an IOTuple with os.Stdin and os.Stdout.
func DefaultIO() IOTuple {
	return IOTuple{
		Reader: os.Stdin,
		Writer: os.Stdout,
	}
}

// ScopeArgs carries the raw --project-id, --environment-id, --actor-kind and
// --actor-id flags shared by the environment commands.
type ScopeArgs struct {
	ProjectID     string
	EnvironmentID string
	ActorKind     string
	ActorID       string
}

// Scope parses the flags into a validated scope.Scope.
func (a ScopeArgs) Scope() (scope.Scope, error) {
	projectID, err := parseID("project-id", a.ProjectID)
	if err != nil {
		return scope.Scope{}, err
	}
	environmentID, err := parseID("environment-id", a.EnvironmentID)
	if err != nil {
		return scope.Scope{}, err
	}
	actorID, err := parseID("actor-id", a.ActorID)
	if err != nil {
		return scope.Scope{}, err
	}
	actor, err := scope.ParseActor(a.ActorKind, actorID)
	if err != nil {
		return scope.Scope{}, fmt.Errorf("invalid actor: %w", err)
	}
	return scope.New(actor, projectID, environmentID), nil
}

// parseID parses a required UUID flag.
func parseID(flag, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", flag, err)
	}
	return id, nil
}

// validateFormat rejects output formats other than text and json.
func validateFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format: %s (valid options: text, json)", format)
	}
	return nil
}

// writeJSON writes result as indented JSON.
func writeJSON(writer io.Writer, result any) error {
	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, _ = fmt.Fprintln(writer, string(jsonBytes))
	return nil
}

// closeContainer closes all resources in the container and logs any errors.
func closeContainer(container *app.Container, logger *slog.Logger) {
	if err := container.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shutdown container", slog.Any("error", err))
	}
}

// closeMigrate closes the migration instance and logs any errors.
func closeMigrate(migrate *migrate.Migrate, logger *slog.Logger) {
	sourceError, databaseError := migrate.Close()
	if sourceError != nil || databaseError != nil {
		logger.Error(
			"failed to close the migrate",
			slog.Any("source_error", sourceError),
			slog.Any("database_error", databaseError),
		)
	}
}
