package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	foldersDomain "github.com/allisson/envsafe/internal/folders/domain"
	foldersUsecaseMocks "github.com/allisson/envsafe/internal/folders/usecase/mocks"
	"github.com/allisson/envsafe/internal/scope"
)

// mockBusinessMetrics is a mock implementation of metrics.BusinessMetrics for testing.
type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

func TestFolderMetricsDecorator_Create(t *testing.T) {
	ctx := context.Background()
	s := scope.New(scope.UserActor(uuid.New()), uuid.New(), uuid.New())
	parentID := uuid.New()

	t.Run("Success_RecordsSuccessMetrics", func(t *testing.T) {
		mockUseCase := &foldersUsecaseMocks.MockFolderUseCase{}
		mockMetrics := &mockBusinessMetrics{}
		folder := &foldersDomain.Folder{ID: uuid.New(), ParentID: &parentID, Name: "api", Version: 1}

		mockUseCase.On("Create", ctx, s, parentID, "api").Return(folder, nil).Once()
		mockMetrics.On("RecordOperation", ctx, "folders", "folder_create", "success").Once()
		mockMetrics.On("RecordDuration", ctx, "folders", "folder_create", mock.AnythingOfType("time.Duration"), "success").
			Once()

		got, err := NewFolderUseCaseWithMetrics(mockUseCase, mockMetrics).Create(ctx, s, parentID, "api")

		assert.NoError(t, err)
		assert.Equal(t, folder, got)
		mockUseCase.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("Error_RecordsErrorMetrics", func(t *testing.T) {
		mockUseCase := &foldersUsecaseMocks.MockFolderUseCase{}
		mockMetrics := &mockBusinessMetrics{}

		mockUseCase.On("Create", ctx, s, parentID, "api").Return(nil, foldersDomain.ErrFolderExists).Once()
		mockMetrics.On("RecordOperation", ctx, "folders", "folder_create", "conflict").Once()
		mockMetrics.On("RecordDuration", ctx, "folders", "folder_create", mock.AnythingOfType("time.Duration"), "conflict").
			Once()

		got, err := NewFolderUseCaseWithMetrics(mockUseCase, mockMetrics).Create(ctx, s, parentID, "api")

		assert.ErrorIs(t, err, foldersDomain.ErrFolderExists)
		assert.Nil(t, got)
		mockUseCase.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})
}

func TestFolderMetricsDecorator_Delete(t *testing.T) {
	ctx := context.Background()
	s := scope.New(scope.IdentityActor(uuid.New()), uuid.New(), uuid.New())
	folderID := uuid.New()

	mockUseCase := &foldersUsecaseMocks.MockFolderUseCase{}
	mockMetrics := &mockBusinessMetrics{}

	mockUseCase.On("Delete", ctx, s, folderID).Return(foldersDomain.ErrRootFolderImmutable).Once()
	mockMetrics.On("RecordOperation", ctx, "folders", "folder_delete", "invalid_input").Once()
	mockMetrics.On("RecordDuration", ctx, "folders", "folder_delete", mock.AnythingOfType("time.Duration"), "invalid_input").
		Once()

	err := NewFolderUseCaseWithMetrics(mockUseCase, mockMetrics).Delete(ctx, s, folderID)

	assert.ErrorIs(t, err, foldersDomain.ErrRootFolderImmutable)
	mockUseCase.AssertExpectations(t)
	mockMetrics.AssertExpectations(t)
}

func TestFolderMetricsDecorator_ReadsAreNotRecorded(t *testing.T) {
	ctx := context.Background()
	s := scope.New(scope.UserActor(uuid.New()), uuid.New(), uuid.New())
	folderID := uuid.New()

	mockUseCase := &foldersUsecaseMocks.MockFolderUseCase{}
	mockMetrics := &mockBusinessMetrics{}
	tree := &foldersDomain.Tree{Nodes: []foldersDomain.TreeNode{{FolderID: folderID, Parent: foldersDomain.NoParent}}}

	mockUseCase.On("Path", ctx, s, folderID).Return("/api", nil).Once()
	mockUseCase.On("Tree", ctx, s, folderID).Return(tree, nil).Once()

	decorator := NewFolderUseCaseWithMetrics(mockUseCase, mockMetrics)
	path, err := decorator.Path(ctx, s, folderID)
	assert.NoError(t, err)
	assert.Equal(t, "/api", path)

	got, err := decorator.Tree(ctx, s, folderID)
	assert.NoError(t, err)
	assert.Same(t, tree, got)

	mockUseCase.AssertExpectations(t)
	mockMetrics.AssertNotCalled(t, "RecordOperation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
