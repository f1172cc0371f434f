package tree

import (
	"github.com/BryceDouglasJames/surfacegeom/internal/fingerprint"
	"github.com/BryceDouglasJames/surfacegeom/pkg/hasher"
	"github.com/BryceDouglasJames/surfacegeom/pkg/types"
)

// Data is the content of a resolved node: the row flags plus decoded rings.
type Data struct {
	ID       int64
	GmlID    string
	ParentID int64

	IsSolid        bool
	IsComposite    bool
	IsTriangulated bool
	IsXlink        bool
	IsReverse      bool

	// Rings holds the polygon rings as flat XYZ coordinates, ring 0 being
	// the exterior. Nil for hierarchy nodes.
	Rings [][]float64
}

// DataFromRow copies the row flags and attaches the decoded rings.
func DataFromRow(row types.GeometryRow, rings [][]float64) Data {
	return Data{
		ID:             row.ID,
		GmlID:          row.GmlID,
		ParentID:       row.ParentID,
		IsSolid:        row.IsSolid,
		IsComposite:    row.IsComposite,
		IsTriangulated: row.IsTriangulated,
		IsXlink:        row.IsXlink,
		IsReverse:      row.IsReverse,
		Rings:          rings,
	}
}

// HasPayload reports whether the node is a polygon leaf.
func (d Data) HasPayload() bool {
	return d.Rings != nil
}

// Node is a geometry tree node. It starts either resolved, or unresolved when
// a child row arrived before the node's own row.
type Node struct {
	data     *Data // nil while unresolved
	children []*Node
}

func newNode(d Data) *Node {
	return &Node{data: &d}
}

func newPlaceholder() *Node {
	return &Node{}
}

// Resolved reports whether the node's own row has been inserted.
func (n *Node) Resolved() bool {
	return n.data != nil
}

// resolve moves an unresolved node to the resolved state. Children collected
// while unresolved are kept.
func (n *Node) resolve(d Data) {
	n.data = &d
}

// Data returns the node content. The zero Data is returned for unresolved nodes.
func (n *Node) Data() Data {
	if n.data == nil {
		return Data{}
	}
	return *n.data
}

// Children returns the child nodes in insertion order.
func (n *Node) Children() []*Node {
	return n.children
}

func (n *Node) IsLeaf() bool {
	return len(n.children) == 0
}

// Relabel turns an xlink node into a regular node with a new identifier.
func (n *Node) Relabel(gmlID string) {
	if n.data == nil {
		return
	}
	n.data.GmlID = gmlID
	n.data.IsXlink = false
}

// Hash returns a fingerprint of the node's content and its subtree.
// Two subtrees with equal hashes have equal rows in the same child order.
func (n *Node) Hash() []byte {
	return n.hash(&hasher.SHA256Hasher{}, fingerprint.NewSerializer())
}

func (n *Node) hash(h hasher.Hasher, s *fingerprint.Serializer) []byte {
	var own []byte
	if d := n.data; d != nil {
		own = s.Serialize(d.ID, d.GmlID, d.ParentID,
			d.IsSolid, d.IsComposite, d.IsTriangulated, d.IsXlink, d.IsReverse,
			d.Rings)
	} else {
		own = s.Serialize(nil)
	}

	parts := make([][]byte, 0, len(n.children)+1)
	parts = append(parts, own)
	for _, c := range n.children {
		parts = append(parts, c.hash(h, s))
	}
	return hasher.Combine(h, parts...)
}
