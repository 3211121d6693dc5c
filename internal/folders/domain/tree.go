package domain

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// NoParent is the Parent index of the subtree root node.
const NoParent = -1

// TreeNode is a folder inside a Tree arena. Parent and Children are indexes into
// Tree.Nodes.
type TreeNode struct {
	FolderID uuid.UUID `json:"folder_id"`
	Name     string    `json:"name"`
	Parent   int       `json:"parent"`
	Children []int     `json:"children"`
}

// Tree is a folder subtree stored as an arena. Nodes[0] is the subtree root and
// children are listed in name order, so two trees of the same shape compare equal.
type Tree struct {
	Nodes []TreeNode
}

// BuildTree builds the subtree rooted at rootID from a flat list of folders of one
// environment. Folders outside the subtree are ignored.
func BuildTree(folders []*Folder, rootID uuid.UUID) (*Tree, error) {
	children := make(map[uuid.UUID][]*Folder, len(folders))
	var root *Folder
	for _, f := range folders {
		if f.ID == rootID {
			root = f
		}
		if f.ParentID != nil {
			children[*f.ParentID] = append(children[*f.ParentID], f)
		}
	}
	if root == nil {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, rootID)
	}

	tree := &Tree{Nodes: []TreeNode{{FolderID: root.ID, Name: root.Name, Parent: NoParent}}}
	// Breadth-first over the arena itself; the slice grows as children are appended.
	for i := 0; i < len(tree.Nodes); i++ {
		kids := children[tree.Nodes[i].FolderID]
		slices.SortFunc(kids, func(a, b *Folder) int { return strings.Compare(a.Name, b.Name) })
		for _, kid := range kids {
			if len(tree.Nodes) > len(folders) {
				return nil, fmt.Errorf("%w: folder graph is not a tree", ErrFolderCycle)
			}
			tree.Nodes[i].Children = append(tree.Nodes[i].Children, len(tree.Nodes))
			tree.Nodes = append(tree.Nodes, TreeNode{FolderID: kid.ID, Name: kid.Name, Parent: i})
		}
	}
	return tree, nil
}

// Root returns the subtree root node.
func (t *Tree) Root() TreeNode {
	return t.Nodes[0]
}

// Len returns the number of folders in the tree.
func (t *Tree) Len() int {
	return len(t.Nodes)
}

// Find returns the index of the node for folderID.
func (t *Tree) Find(folderID uuid.UUID) (int, bool) {
	for i := range t.Nodes {
		if t.Nodes[i].FolderID == folderID {
			return i, true
		}
	}
	return 0, false
}

// Contains reports whether folderID is in the subtree.
func (t *Tree) Contains(folderID uuid.UUID) bool {
	_, ok := t.Find(folderID)
	return ok
}

// Child returns the index of the child of node idx named name.
func (t *Tree) Child(idx int, name string) (int, bool) {
	for _, c := range t.Nodes[idx].Children {
		if t.Nodes[c].Name == name {
			return c, true
		}
	}
	return 0, false
}

// Path returns the slash separated path of node idx relative to the subtree root.
// The root itself is "/".
func (t *Tree) Path(idx int) string {
	var segments []string
	for i := idx; i > 0; i = t.Nodes[i].Parent {
		segments = append(segments, t.Nodes[i].Name)
	}
	slices.Reverse(segments)
	return JoinPath(segments)
}

// Walk visits nodes breadth-first, parents before children. Returning an error
// from fn stops the walk.
func (t *Tree) Walk(fn func(idx int, node TreeNode) error) error {
	for i := range t.Nodes {
		if err := fn(i, t.Nodes[i]); err != nil {
			return err
		}
	}
	return nil
}

// FolderIDs returns every folder id in breadth-first order.
func (t *Tree) FolderIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(t.Nodes))
	for i := range t.Nodes {
		ids[i] = t.Nodes[i].FolderID
	}
	return ids
}

// Equal reports whether both trees have the same folders in the same shape.
func (t *Tree) Equal(other *Tree) bool {
	return slices.EqualFunc(t.Nodes, other.Nodes, func(a, b TreeNode) bool {
		return a.FolderID == b.FolderID && a.Name == b.Name && a.Parent == b.Parent &&
			slices.Equal(a.Children, b.Children)
	})
}

// ParsePath splits a slash separated folder path into segments. Empty segments are
// ignored, so "", "/" and "//" all address the root.
func ParsePath(path string) ([]string, error) {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		switch s {
		case "":
			continue
		case ".", "..":
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
		segments = append(segments, s)
	}
	return segments, nil
}

// JoinPath is the inverse of ParsePath.
func JoinPath(segments []string) string {
	return "/" + strings.Join(segments, "/")
}
