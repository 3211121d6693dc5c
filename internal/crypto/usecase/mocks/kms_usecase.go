// Package mocks provides mock implementations of the key hierarchy use cases for testing.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
)

// MockKMSUseCase is a mock implementation of KMSUseCase for testing.
type MockKMSUseCase struct {
	mock.Mock
}

// ProvisionOrganization mocks the ProvisionOrganization method of KMSUseCase.
func (m *MockKMSUseCase) ProvisionOrganization(
	ctx context.Context,
	organizationID uuid.UUID,
) (*cryptoDomain.KmsKey, error) {
	args := m.Called(ctx, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.KmsKey), args.Error(1)
}

// ProvisionProject mocks the ProvisionProject method of KMSUseCase.
func (m *MockKMSUseCase) ProvisionProject(
	ctx context.Context,
	organizationID, projectID uuid.UUID,
) (*cryptoDomain.KmsKey, error) {
	args := m.Called(ctx, organizationID, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.KmsKey), args.Error(1)
}

// ActiveKey mocks the ActiveKey method of KMSUseCase.
func (m *MockKMSUseCase) ActiveKey(ctx context.Context, scope cryptoDomain.KeyScope) (*cryptoDomain.KmsKey, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.KmsKey), args.Error(1)
}

// GenerateDataKey mocks the GenerateDataKey method of KMSUseCase.
func (m *MockKMSUseCase) GenerateDataKey(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
) ([]byte, *cryptoDomain.WrappedDataKey, error) {
	args := m.Called(ctx, scope)
	var plain []byte
	if args.Get(0) != nil {
		plain = args.Get(0).([]byte)
	}
	var wrapped *cryptoDomain.WrappedDataKey
	if args.Get(1) != nil {
		wrapped = args.Get(1).(*cryptoDomain.WrappedDataKey)
	}
	return plain, wrapped, args.Error(2)
}

// EncryptWithScopeKey mocks the EncryptWithScopeKey method of KMSUseCase.
func (m *MockKMSUseCase) EncryptWithScopeKey(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
	plaintext []byte,
) ([]byte, error) {
	args := m.Called(ctx, scope, plaintext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// DecryptWithScopeKey mocks the DecryptWithScopeKey method of KMSUseCase.
func (m *MockKMSUseCase) DecryptWithScopeKey(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
	data []byte,
) ([]byte, error) {
	args := m.Called(ctx, scope, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// RewrapBlob mocks the RewrapBlob method of KMSUseCase.
func (m *MockKMSUseCase) RewrapBlob(
	ctx context.Context,
	scope cryptoDomain.KeyScope,
	data []byte,
) ([]byte, bool, error) {
	args := m.Called(ctx, scope, data)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

// RotateKey mocks the RotateKey method of KMSUseCase.
func (m *MockKMSUseCase) RotateKey(ctx context.Context, scope cryptoDomain.KeyScope) (*cryptoDomain.KmsKey, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.KmsKey), args.Error(1)
}

// WithBlindIndexSalt mocks the WithBlindIndexSalt method of KMSUseCase. When the
// first return value is a []byte it is passed to fn as the salt.
func (m *MockKMSUseCase) WithBlindIndexSalt(
	ctx context.Context,
	projectID uuid.UUID,
	fn func(salt []byte) error,
) error {
	args := m.Called(ctx, projectID, fn)
	if salt, ok := args.Get(0).([]byte); ok {
		if err := fn(salt); err != nil {
			return err
		}
	}
	return args.Error(1)
}
