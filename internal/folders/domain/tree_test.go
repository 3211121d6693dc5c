package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFolder(name string, parent *Folder) *Folder {
	f := &Folder{ID: uuid.Must(uuid.NewV7()), Name: name, Version: 1}
	if parent != nil {
		f.ParentID = &parent.ID
	}
	return f
}

func TestBuildTree(t *testing.T) {
	root := newFolder(RootFolderName, nil)
	b := newFolder("backend", root)
	a := newFolder("api", root)
	db := newFolder("db", b)
	other := newFolder("other", nil)

	t.Run("whole environment", func(t *testing.T) {
		tree, err := BuildTree([]*Folder{db, b, root, a, other}, root.ID)
		require.NoError(t, err)

		require.Equal(t, 4, tree.Len())
		assert.Equal(t, root.ID, tree.Root().FolderID)
		assert.Equal(t, NoParent, tree.Root().Parent)
		// Children are ordered by name.
		assert.Equal(t, "api", tree.Nodes[tree.Nodes[0].Children[0]].Name)
		assert.Equal(t, "backend", tree.Nodes[tree.Nodes[0].Children[1]].Name)
		assert.Equal(t, []uuid.UUID{root.ID, a.ID, b.ID, db.ID}, tree.FolderIDs())
		assert.False(t, tree.Contains(other.ID))

		idx, ok := tree.Find(db.ID)
		require.True(t, ok)
		assert.Equal(t, "/backend/db", tree.Path(idx))
		assert.Equal(t, "/", tree.Path(0))
	})

	t.Run("subtree", func(t *testing.T) {
		tree, err := BuildTree([]*Folder{root, a, b, db}, b.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{b.ID, db.ID}, tree.FolderIDs())

		idx, ok := tree.Child(0, "db")
		require.True(t, ok)
		assert.Equal(t, "/db", tree.Path(idx))

		_, ok = tree.Child(0, "missing")
		assert.False(t, ok)
	})

	t.Run("missing root", func(t *testing.T) {
		_, err := BuildTree([]*Folder{a}, root.ID)
		assert.ErrorIs(t, err, ErrFolderNotFound)
	})

	t.Run("cycle", func(t *testing.T) {
		x := newFolder("x", nil)
		y := newFolder("y", x)
		x.ParentID = &y.ID

		_, err := BuildTree([]*Folder{x, y}, x.ID)
		assert.ErrorIs(t, err, ErrFolderCycle)
	})

	t.Run("equal is order independent", func(t *testing.T) {
		first, err := BuildTree([]*Folder{root, a, b, db}, root.ID)
		require.NoError(t, err)
		second, err := BuildTree([]*Folder{db, b, a, root}, root.ID)
		require.NoError(t, err)
		assert.True(t, first.Equal(second))

		renamed := a.Clone()
		renamed.Name = "zeta"
		third, err := BuildTree([]*Folder{root, renamed, b, db}, root.ID)
		require.NoError(t, err)
		assert.False(t, first.Equal(third))
	})
}

func TestTree_Walk(t *testing.T) {
	root := newFolder(RootFolderName, nil)
	a := newFolder("a", root)
	aa := newFolder("aa", a)

	tree, err := BuildTree([]*Folder{root, a, aa}, root.ID)
	require.NoError(t, err)

	var visited []string
	err = tree.Walk(func(idx int, node TreeNode) error {
		visited = append(visited, tree.Path(idx))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/a", "/a/aa"}, visited)

	err = tree.Walk(func(idx int, node TreeNode) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		path     string
		expected []string
		wantErr  bool
	}{
		{path: "", expected: nil},
		{path: "/", expected: nil},
		{path: "/app", expected: []string{"app"}},
		{path: "app/db/", expected: []string{"app", "db"}},
		{path: "//app//db", expected: []string{"app", "db"}},
		{path: "/app/../db", wantErr: true},
		{path: "./app", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			segments, err := ParsePath(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, segments)
		})
	}

	assert.Equal(t, "/", JoinPath(nil))
	assert.Equal(t, "/app/db", JoinPath([]string{"app", "db"}))
}

func TestFolder_Clone(t *testing.T) {
	root := newFolder(RootFolderName, nil)
	child := newFolder("child", root)

	assert.True(t, root.IsRoot())
	assert.False(t, child.IsRoot())

	c := child.Clone()
	*c.ParentID = uuid.Nil
	assert.Equal(t, root.ID, *child.ParentID)
}
