package tree

import (
	"fmt"
	"strings"
)

// Forest collects the geometry rows of one root id into a tree.
// Rows may arrive in any order; a child arriving first creates an unresolved
// placeholder for its parent.
type Forest struct {
	nodes    map[int64]*Node
	root     int64
	implicit bool
}

// NewForest creates an empty forest. Implicit forests are built from the
// implicit_geometry column.
func NewForest(implicit bool) *Forest {
	return &Forest{
		nodes:    make(map[int64]*Node),
		implicit: implicit,
	}
}

// Implicit reports whether the forest reads implicit geometry payloads.
func (f *Forest) Implicit() bool {
	return f.implicit
}

// Insert adds one row to the forest.
//
// Only hierarchy nodes and the root are registered for lookup; polygon leaves
// are reachable through their parent's child list only. Rows are unique per
// id, so a leaf is never inserted twice.
func (f *Forest) Insert(d Data) {
	if d.ParentID == 0 {
		f.root = d.ID
	}

	node, ok := f.nodes[d.ID]
	switch {
	case ok && node.Resolved():
		return
	case ok:
		node.resolve(d)
	default:
		node = newNode(d)
		if !d.HasPayload() || d.ParentID == 0 {
			f.nodes[d.ID] = node
		}
	}

	if d.ParentID != 0 {
		parent, ok := f.nodes[d.ParentID]
		if !ok {
			parent = newPlaceholder()
			f.nodes[d.ParentID] = parent
		}
		parent.children = append(parent.children, node)
	}
}

// Root returns the root node, or nil if no root row has been inserted.
func (f *Forest) Root() *Node {
	if f.root == 0 {
		return nil
	}
	return f.nodes[f.root]
}

// RootID returns the id of the root row, 0 if none was seen.
func (f *Forest) RootID() int64 {
	return f.root
}

// Node returns a registered node by id.
func (f *Forest) Node(id int64) *Node {
	return f.nodes[id]
}

// Len returns the number of registered nodes.
func (f *Forest) Len() int {
	return len(f.nodes)
}

// Unresolved returns the ids of placeholders whose rows never arrived.
func (f *Forest) Unresolved() []int64 {
	var ids []int64
	for id, n := range f.nodes {
		if !n.Resolved() {
			ids = append(ids, id)
		}
	}
	return ids
}

// String implements fmt.Stringer and returns a depth-first textual
// representation of the tree starting from the root.
func (f *Forest) String() string {
	if f == nil || f.Root() == nil {
		return ""
	}
	var b strings.Builder
	recursivePrint(&b, f.Root(), 0)
	return b.String()
}

func recursivePrint(b *strings.Builder, n *Node, depth int) {
	d := n.Data()
	indent := strings.Repeat("  ", depth)
	switch {
	case !n.Resolved():
		fmt.Fprintf(b, "%s<unresolved> children=%d\n", indent, len(n.children))
	case d.HasPayload():
		fmt.Fprintf(b, "%s%d %q polygon rings=%d reverse=%v\n", indent, d.ID, d.GmlID, len(d.Rings), d.IsReverse)
	default:
		fmt.Fprintf(b, "%s%d %q solid=%v composite=%v triangulated=%v xlink=%v reverse=%v\n",
			indent, d.ID, d.GmlID, d.IsSolid, d.IsComposite, d.IsTriangulated, d.IsXlink, d.IsReverse)
	}
	for _, c := range n.children {
		recursivePrint(b, c, depth+1)
	}
}
