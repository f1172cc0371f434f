package tree

import "bytes"

type DiffType string

const (
	DiffTypeAdded   DiffType = "added"
	DiffTypeRemoved DiffType = "removed"
	DiffTypeChanged DiffType = "changed"
)

// Mismatch locates the topmost differing node. ID is taken from the side
// that has the node (A when both do).
type Mismatch struct {
	ID   int64
	Type DiffType
}

// Compare walks both forests from their roots and reports the topmost
// differing subtrees. Identical subtrees are skipped by hash.
func Compare(a, b *Forest) []Mismatch {
	var differences []Mismatch
	compareRecursive(a.Root(), b.Root(), &differences)
	return differences
}

// Equal reports whether two forests hold the same tree.
func Equal(a, b *Forest) bool {
	return len(Compare(a, b)) == 0
}

func compareRecursive(nodeA, nodeB *Node, differences *[]Mismatch) {
	if nodeA == nil && nodeB == nil {
		return
	}

	// only in B (added)
	if nodeA == nil {
		*differences = append(*differences, Mismatch{ID: nodeB.Data().ID, Type: DiffTypeAdded})
		return
	}

	// only in A (removed)
	if nodeB == nil {
		*differences = append(*differences, Mismatch{ID: nodeA.Data().ID, Type: DiffTypeRemoved})
		return
	}

	// both non-nil: if hashes equal, subtrees identical
	if bytes.Equal(nodeA.Hash(), nodeB.Hash()) {
		return
	}

	// Own content differs, or both are leaves with different hashes
	if !sameContent(nodeA, nodeB) || (nodeA.IsLeaf() && nodeB.IsLeaf()) {
		*differences = append(*differences, Mismatch{ID: nodeA.Data().ID, Type: DiffTypeChanged})
		return
	}

	// otherwise recurse down, pairing children by position
	n := max(len(nodeA.children), len(nodeB.children))
	for i := 0; i < n; i++ {
		compareRecursive(childAt(nodeA, i), childAt(nodeB, i), differences)
	}
}

func childAt(n *Node, i int) *Node {
	if i < len(n.children) {
		return n.children[i]
	}
	return nil
}

func sameContent(a, b *Node) bool {
	leafA := &Node{data: a.data}
	leafB := &Node{data: b.data}
	return bytes.Equal(leafA.Hash(), leafB.Hash())
}
