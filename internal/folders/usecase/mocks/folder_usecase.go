// Package mocks provides mock implementations of the folder use cases for testing.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
	"github.com/allisson/envsafe/internal/scope"
)

// MockFolderUseCase is a mock implementation of FolderUseCase for testing.
type MockFolderUseCase struct {
	mock.Mock
}

func (m *MockFolderUseCase) folder(args mock.Arguments) (*foldersDomain.Folder, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*foldersDomain.Folder), args.Error(1)
}

// InitEnvironment mocks the InitEnvironment method.
func (m *MockFolderUseCase) InitEnvironment(ctx context.Context, s scope.Scope) (*foldersDomain.Folder, error) {
	return m.folder(m.Called(ctx, s))
}

// Create mocks the Create method.
func (m *MockFolderUseCase) Create(
	ctx context.Context,
	s scope.Scope,
	parentID uuid.UUID,
	name string,
) (*foldersDomain.Folder, error) {
	return m.folder(m.Called(ctx, s, parentID, name))
}

// Rename mocks the Rename method.
func (m *MockFolderUseCase) Rename(
	ctx context.Context,
	s scope.Scope,
	folderID uuid.UUID,
	name string,
) (*foldersDomain.Folder, error) {
	return m.folder(m.Called(ctx, s, folderID, name))
}

// Move mocks the Move method.
func (m *MockFolderUseCase) Move(
	ctx context.Context,
	s scope.Scope,
	folderID, newParentID uuid.UUID,
) (*foldersDomain.Folder, error) {
	return m.folder(m.Called(ctx, s, folderID, newParentID))
}

// Delete mocks the Delete method.
func (m *MockFolderUseCase) Delete(ctx context.Context, s scope.Scope, folderID uuid.UUID) error {
	args := m.Called(ctx, s, folderID)
	return args.Error(0)
}

// Get mocks the Get method.
func (m *MockFolderUseCase) Get(ctx context.Context, s scope.Scope, folderID uuid.UUID) (*foldersDomain.Folder, error) {
	return m.folder(m.Called(ctx, s, folderID))
}

// ResolvePath mocks the ResolvePath method.
func (m *MockFolderUseCase) ResolvePath(ctx context.Context, s scope.Scope, path string) (*foldersDomain.Folder, error) {
	return m.folder(m.Called(ctx, s, path))
}

// Path mocks the Path method.
func (m *MockFolderUseCase) Path(ctx context.Context, s scope.Scope, folderID uuid.UUID) (string, error) {
	args := m.Called(ctx, s, folderID)
	return args.String(0), args.Error(1)
}

// Tree mocks the Tree method.
func (m *MockFolderUseCase) Tree(ctx context.Context, s scope.Scope, folderID uuid.UUID) (*foldersDomain.Tree, error) {
	args := m.Called(ctx, s, folderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*foldersDomain.Tree), args.Error(1)
}
