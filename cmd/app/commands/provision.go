package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
	cryptoUseCase "github.com/allisson/envsafe/internal/crypto/usecase"
)

// keyOutput is the JSON form of a provisioned or rotated key. Key material is
// never part of it.
type keyOutput struct {
	ID        string    `json:"id"`
	ScopeType string    `json:"scope_type"`
	ScopeID   string    `json:"scope_id"`
	Version   uint      `json:"version"`
	Algorithm string    `json:"algorithm"`
	CreatedAt time.Time `json:"created_at"`
}

func newKeyOutput(key *cryptoDomain.KmsKey) keyOutput {
	return keyOutput{
		ID:        key.ID.String(),
		ScopeType: string(key.ScopeType),
		ScopeID:   key.ScopeID.String(),
		Version:   key.Version,
		Algorithm: string(key.Algorithm),
		CreatedAt: key.CreatedAt,
	}
}

// RunProvisionOrganization creates version 1 of an organization key. A new
// organization id is generated when organizationIDStr is empty.
func RunProvisionOrganization(
	ctx context.Context,
	kms cryptoUseCase.KMSUseCase,
	logger *slog.Logger,
	writer io.Writer,
	organizationIDStr, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	organizationID := uuid.Must(uuid.NewV7())
	if organizationIDStr != "" {
		var err error
		if organizationID, err = parseID("organization-id", organizationIDStr); err != nil {
			return err
		}
	}

	key, err := kms.ProvisionOrganization(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("failed to provision organization: %w", err)
	}

	logger.Info("organization provisioned",
		slog.String("organization_id", organizationID.String()),
		slog.String("kms_key_id", key.ID.String()),
	)

	return writeKey(writer, format, "Organization key provisioned successfully!", key)
}

// RunProvisionProject creates version 1 of a project key under the organization
// key, together with the project's blind index salt. A new project id is
// generated when projectIDStr is empty.
func RunProvisionProject(
	ctx context.Context,
	kms cryptoUseCase.KMSUseCase,
	logger *slog.Logger,
	writer io.Writer,
	organizationIDStr, projectIDStr, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	organizationID, err := parseID("organization-id", organizationIDStr)
	if err != nil {
		return err
	}

	projectID := uuid.Must(uuid.NewV7())
	if projectIDStr != "" {
		if projectID, err = parseID("project-id", projectIDStr); err != nil {
			return err
		}
	}

	key, err := kms.ProvisionProject(ctx, organizationID, projectID)
	if err != nil {
		return fmt.Errorf("failed to provision project: %w", err)
	}

	logger.Info("project provisioned",
		slog.String("organization_id", organizationID.String()),
		slog.String("project_id", projectID.String()),
		slog.String("kms_key_id", key.ID.String()),
	)

	return writeKey(writer, format, "Project key provisioned successfully!", key)
}

// RunRotateKey creates version N+1 of an organization or project key and
// retires version N. Data sealed under older versions stays readable; run
// rewrap-secrets afterwards to move a project's secrets onto the new version.
func RunRotateKey(
	ctx context.Context,
	kms cryptoUseCase.KMSUseCase,
	logger *slog.Logger,
	writer io.Writer,
	scopeTypeStr, scopeIDStr, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	scopeType, err := cryptoDomain.ParseScopeType(scopeTypeStr)
	if err != nil {
		return fmt.Errorf("invalid scope: %w", err)
	}
	scopeID, err := parseID("id", scopeIDStr)
	if err != nil {
		return err
	}
	keyScope := cryptoDomain.KeyScope{Type: scopeType, ID: scopeID}

	key, err := kms.RotateKey(ctx, keyScope)
	if err != nil {
		return fmt.Errorf("failed to rotate key: %w", err)
	}

	logger.Info("key rotated",
		slog.String("scope", keyScope.String()),
		slog.Uint64("version", uint64(key.Version)),
	)

	return writeKey(writer, format, "Key rotated successfully!", key)
}

func writeKey(writer io.Writer, format, headline string, key *cryptoDomain.KmsKey) error {
	if format == "json" {
		return writeJSON(writer, newKeyOutput(key))
	}
	_, _ = fmt.Fprintln(writer, headline)
	_, _ = fmt.Fprintf(writer, "Key ID: %s\n", key.ID)
	_, _ = fmt.Fprintf(writer, "Scope: %s\n", key.Scope())
	_, _ = fmt.Fprintf(writer, "Version: %d\n", key.Version)
	_, _ = fmt.Fprintf(writer, "Algorithm: %s\n", key.Algorithm)
	return nil
}
