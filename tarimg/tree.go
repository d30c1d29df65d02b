package tarimg

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
)

// Tree is a node in the directory index: either a file leaf holding a content
// slice or a directory mapping names to children.
//
// The zero value is an empty file, the "not yet populated" sentinel. Inserting
// a path through an empty file silently promotes it to a directory; inserting
// through a non-empty file is a structural conflict.
type Tree struct {
	data     []byte
	children map[string]*Tree
}

// ConflictError reports a path that is used both as a file and as a
// directory.
type ConflictError struct {
	// Path is the prefix that names an existing non-empty file.
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("tarimg: file %q overridden with directory", e.Path)
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// IsDir reports whether the node is a directory.
func (t *Tree) IsDir() bool {
	return t.children != nil
}

// Data returns the content of a file node. It is nil for directories and
// empty files.
func (t *Tree) Data() []byte {
	return t.data
}

// Insert sets path to a file leaf holding data, creating directories for
// every intermediate component. An existing entry at path is replaced,
// whatever it was: archives may contain duplicate names and the last entry
// wins.
//
// Inserting through an existing non-empty file returns a *ConflictError
// naming the offending prefix.
func (t *Tree) Insert(path string, data []byte) error {
	parts := components(NormalizePath(path))
	node := t
	for i, part := range parts {
		if !node.IsDir() {
			if len(node.data) != 0 {
				return &ConflictError{Path: strings.Join(parts[:i], "/")}
			}
			node.children = make(map[string]*Tree)
			node.data = nil
		}
		child, ok := node.children[part]
		if !ok {
			child = &Tree{}
			node.children[part] = child
		}
		node = child
	}
	*node = Tree{data: data}
	return nil
}

// Resolve walks the tree along path. ok is false as soon as a component does
// not exist or the walk would descend into a file.
func (t *Tree) Resolve(path string) (node *Tree, ok bool) {
	node = t
	for _, part := range components(NormalizePath(path)) {
		if !node.IsDir() {
			return nil, false
		}
		child, ok := node.children[part]
		if !ok {
			return nil, false
		}
		node = child
	}
	return node, true
}

// Entries returns an iterator over the children of a directory node in
// lexical name order. It yields nothing for file nodes.
func (t *Tree) Entries() iter.Seq2[string, *Tree] {
	return func(yield func(string, *Tree) bool) {
		for _, name := range slices.Sorted(maps.Keys(t.children)) {
			if !yield(name, t.children[name]) {
				return
			}
		}
	}
}

// FromImage builds a directory index from every regular file in the archive.
//
// The tree borrows content slices from the archive buffer.
func FromImage(image []byte) (*Tree, error) {
	root := NewTree()
	for file, err := range NewParser(image).Files() {
		if err != nil {
			return nil, err
		}
		if err := root.Insert(file.Name, file.Data); err != nil {
			return nil, err
		}
	}
	return root, nil
}
