// Package mocks provides mock implementations of the secret use cases for testing.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/envsafe/internal/scope"
	secretsDomain "github.com/allisson/envsafe/internal/secrets/domain"
)

// MockSecretUseCase is a mock implementation of SecretUseCase for testing.
type MockSecretUseCase struct {
	mock.Mock
}

func secretResult(args mock.Arguments) (*secretsDomain.Secret, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*secretsDomain.Secret), args.Error(1)
}

// Create mocks the Create method.
func (m *MockSecretUseCase) Create(
	ctx context.Context,
	s scope.Scope,
	input *secretsDomain.CreateSecretInput,
) (*secretsDomain.Secret, error) {
	return secretResult(m.Called(ctx, s, input))
}

// Update mocks the Update method.
func (m *MockSecretUseCase) Update(
	ctx context.Context,
	s scope.Scope,
	secretID uuid.UUID,
	input *secretsDomain.UpdateSecretInput,
) (*secretsDomain.Secret, error) {
	return secretResult(m.Called(ctx, s, secretID, input))
}

// Delete mocks the Delete method.
func (m *MockSecretUseCase) Delete(ctx context.Context, s scope.Scope, secretID uuid.UUID) error {
	args := m.Called(ctx, s, secretID)
	return args.Error(0)
}

// Get mocks the Get method.
func (m *MockSecretUseCase) Get(ctx context.Context, s scope.Scope, secretID uuid.UUID) (*secretsDomain.Secret, error) {
	return secretResult(m.Called(ctx, s, secretID))
}

// ListByFolder mocks the ListByFolder method.
func (m *MockSecretUseCase) ListByFolder(
	ctx context.Context,
	s scope.Scope,
	folderID uuid.UUID,
) ([]*secretsDomain.Secret, error) {
	args := m.Called(ctx, s, folderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*secretsDomain.Secret), args.Error(1)
}

// FindByName mocks the FindByName method.
func (m *MockSecretUseCase) FindByName(
	ctx context.Context,
	s scope.Scope,
	folderID uuid.UUID,
	name string,
) (*secretsDomain.Secret, error) {
	return secretResult(m.Called(ctx, s, folderID, name))
}

// Reveal mocks the Reveal method.
func (m *MockSecretUseCase) Reveal(
	ctx context.Context,
	s scope.Scope,
	secretID uuid.UUID,
) (*secretsDomain.RevealedSecret, error) {
	args := m.Called(ctx, s, secretID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*secretsDomain.RevealedSecret), args.Error(1)
}

// RevealAll mocks the RevealAll method.
func (m *MockSecretUseCase) RevealAll(
	ctx context.Context,
	s scope.Scope,
	folderID uuid.UUID,
) ([]*secretsDomain.RevealedSecret, error) {
	args := m.Called(ctx, s, folderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*secretsDomain.RevealedSecret), args.Error(1)
}

// PurgeFolder mocks the PurgeFolder method.
func (m *MockSecretUseCase) PurgeFolder(ctx context.Context, s scope.Scope, folderID uuid.UUID) (int, error) {
	args := m.Called(ctx, s, folderID)
	return args.Int(0), args.Error(1)
}

// Rewrap mocks the Rewrap method.
func (m *MockSecretUseCase) Rewrap(
	ctx context.Context,
	projectID uuid.UUID,
	actor scope.Actor,
	afterID uuid.UUID,
	batchSize int,
) (*secretsDomain.RewrapResult, error) {
	args := m.Called(ctx, projectID, actor, afterID, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*secretsDomain.RewrapResult), args.Error(1)
}
