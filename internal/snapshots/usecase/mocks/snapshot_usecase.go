// Package mocks provides mock implementations of the snapshot use cases for testing.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/envsafe/internal/scope"
	snapshotsDomain "github.com/allisson/envsafe/internal/snapshots/domain"
)

// MockSnapshotUseCase is a mock implementation of SnapshotUseCase for testing.
type MockSnapshotUseCase struct {
	mock.Mock
}

func (m *MockSnapshotUseCase) snapshot(args mock.Arguments) (*snapshotsDomain.Snapshot, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*snapshotsDomain.Snapshot), args.Error(1)
}

// Capture mocks the Capture method.
func (m *MockSnapshotUseCase) Capture(
	ctx context.Context,
	s scope.Scope,
	folderPath string,
) (*snapshotsDomain.Snapshot, error) {
	return m.snapshot(m.Called(ctx, s, folderPath))
}

// Rollback mocks the Rollback method.
func (m *MockSnapshotUseCase) Rollback(
	ctx context.Context,
	s scope.Scope,
	snapshotID uuid.UUID,
) (*snapshotsDomain.RollbackResult, error) {
	args := m.Called(ctx, s, snapshotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*snapshotsDomain.RollbackResult), args.Error(1)
}

// Get mocks the Get method.
func (m *MockSnapshotUseCase) Get(
	ctx context.Context,
	s scope.Scope,
	snapshotID uuid.UUID,
) (*snapshotsDomain.Snapshot, error) {
	return m.snapshot(m.Called(ctx, s, snapshotID))
}

// List mocks the List method.
func (m *MockSnapshotUseCase) List(ctx context.Context, s scope.Scope) ([]*snapshotsDomain.Snapshot, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*snapshotsDomain.Snapshot), args.Error(1)
}
