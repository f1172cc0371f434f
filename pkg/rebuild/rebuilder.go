// Package rebuild turns a geometry forest into typed surface geometries.
//
// Each node is classified from its flags and children, rebuilt recursively,
// and checked against the session's xlink ledger. Children that cannot be
// rebuilt are dropped from their parent; only a failing root yields nil.
package rebuild

import (
	"context"
	"strconv"

	"github.com/BryceDouglasJames/surfacegeom/pkg/geometry"
	"github.com/BryceDouglasJames/surfacegeom/pkg/tree"
	"github.com/BryceDouglasJames/surfacegeom/pkg/xlink"
)

// AppearanceQueue receives ids of geometries that may carry textures.
// *appearance.Writer implements it.
type AppearanceQueue interface {
	Add(ctx context.Context, id int64) error
}

// Options controls xlink and appearance behaviour.
type Options struct {
	// UseXLink emits repeated xlink geometries as references. When false,
	// they are written again under a fresh identifier.
	UseXLink bool

	// AppendOldID appends the original gml:id to freshly minted ones.
	AppendOldID bool

	// IDPrefix prefixes freshly minted gml:ids.
	IDPrefix string
}

// Rebuilder rebuilds geometry trees. It is not safe for concurrent use; the
// ledger it holds may be shared.
type Rebuilder struct {
	opts       Options
	ledger     *xlink.Ledger
	ids        xlink.IDGenerator
	appearance AppearanceQueue

	ctx context.Context
	err error
}

// New creates a Rebuilder. A nil ids generator defaults to xlink.UUIDGenerator;
// a nil appearance queue disables the appearance side channel.
func New(opts Options, ledger *xlink.Ledger, ids xlink.IDGenerator, appearance AppearanceQueue) *Rebuilder {
	if ids == nil {
		ids = xlink.UUIDGenerator{}
	}
	if opts.IDPrefix == "" {
		opts.IDPrefix = xlink.DefaultIDPrefix
	}
	return &Rebuilder{
		opts:       opts,
		ledger:     ledger,
		ids:        ids,
		appearance: appearance,
	}
}

// Classify determines the structural kind of a node. KindUnknown marks a node
// that cannot be rebuilt: unresolved, or without payload and children.
func Classify(n *tree.Node) geometry.Kind {
	if n == nil || !n.Resolved() {
		return geometry.KindUnknown
	}

	d := n.Data()
	switch {
	case d.HasPayload():
		return geometry.KindPolygon
	case n.IsLeaf():
		return geometry.KindUnknown
	case d.IsTriangulated:
		return geometry.KindTriangulatedSurface
	case !d.IsSolid && d.IsComposite:
		return geometry.KindCompositeSurface
	case d.IsSolid && !d.IsComposite:
		return geometry.KindSolid
	case d.IsSolid && d.IsComposite:
		return geometry.KindCompositeSolid
	}

	for _, c := range n.Children() {
		if !c.Resolved() || !c.Data().IsSolid {
			return geometry.KindMultiSurface
		}
	}
	return geometry.KindMultiSolid
}

// Rebuild rebuilds the tree below root. It returns nil when the root cannot
// be rebuilt. A non-nil error comes from the appearance queue and is fatal.
func (r *Rebuilder) Rebuild(ctx context.Context, root *tree.Node) (*geometry.Geometry, error) {
	r.ctx, r.err = ctx, nil
	defer func() { r.ctx = nil }()

	g := r.rebuild(root, false, false)
	if r.err != nil {
		return nil, r.err
	}
	return g, nil
}

func (r *Rebuilder) rebuild(n *tree.Node, reversed, viaXlink bool) *geometry.Geometry {
	if r.err != nil {
		return nil
	}

	kind := Classify(n)
	if kind == geometry.KindUnknown {
		return nil
	}
	d := n.Data()

	if d.GmlID != "" {
		if d.IsXlink && r.ledger.LookupAndPut(d.GmlID, d.ID) {
			if r.opts.UseXLink {
				return &geometry.Geometry{
					Kind:     kind,
					Href:     "#" + d.GmlID,
					Reversed: d.IsReverse != reversed,
				}
			}

			gmlID := r.ids.Generate(r.opts.IDPrefix)
			if r.opts.AppendOldID {
				gmlID += "-" + d.GmlID
			}
			n.Relabel(gmlID)
			return r.rebuild(n, reversed, true)
		}

		if r.appearance != nil && !viaXlink {
			if err := r.appearance.Add(r.ctx, d.ID); err != nil {
				r.err = err
				return nil
			}
		}
	}

	g := &geometry.Geometry{
		ID:       d.GmlID,
		Kind:     kind,
		Reversed: d.IsReverse != reversed,
	}
	childReversed := reversed || d.IsReverse

	switch kind {
	case geometry.KindPolygon:
		r.buildPolygon(g, d)
		return g

	case geometry.KindCompositeSurface, geometry.KindMultiSurface:
		g.Members = r.members(n, childReversed, viaXlink, (*geometry.Geometry).IsSurfaceMember)

	case geometry.KindCompositeSolid, geometry.KindMultiSolid:
		g.Members = r.members(n, childReversed, viaXlink, (*geometry.Geometry).IsSolidMember)

	case geometry.KindSolid:
		// Only an exterior shell is supported; interior shells are not.
		if children := n.Children(); len(children) == 1 {
			if shell := r.rebuild(children[0], childReversed, viaXlink); shell.IsSurfaceMember() {
				g.Shell = shell
			}
		}
		if g.Shell == nil {
			return nil
		}
		return g

	case geometry.KindTriangulatedSurface:
		for _, c := range n.Children() {
			m := r.rebuild(c, childReversed, viaXlink)
			if m == nil || m.IsReference() || m.Reversed || m.Kind != geometry.KindPolygon || m.Exterior == nil {
				continue
			}
			g.Triangles = append(g.Triangles, *m.Exterior)
		}
		if len(g.Triangles) == 0 {
			return nil
		}
		return g
	}

	if len(g.Members) == 0 {
		return nil
	}
	return g
}

func (r *Rebuilder) members(n *tree.Node, reversed, viaXlink bool, accept func(*geometry.Geometry) bool) []*geometry.Geometry {
	var members []*geometry.Geometry
	for _, c := range n.Children() {
		if m := r.rebuild(c, reversed, viaXlink); m != nil && accept(m) {
			members = append(members, m)
		}
	}
	return members
}

// buildPolygon fills exterior and interior rings. Ring ids are only
// generated when the polygon has an id.
func (r *Rebuilder) buildPolygon(g *geometry.Geometry, d tree.Data) {
	for i, coords := range d.Rings {
		ring := geometry.LinearRing{Coords: coords}
		if d.IsReverse {
			ring.Coords = ReverseRing(coords)
		}
		if d.GmlID != "" {
			ring.ID = d.GmlID + "_" + strconv.Itoa(i) + "_"
		}

		if i == 0 {
			g.Exterior = &ring
		} else {
			g.Interiors = append(g.Interiors, ring)
		}
	}
}

// ReverseRing returns the XYZ positions of coords in reverse order.
// Trailing ordinates that do not form a full position are dropped.
func ReverseRing(coords []float64) []float64 {
	reversed := make([]float64, 0, len(coords))
	for i := len(coords) - len(coords)%3 - 3; i >= 0; i -= 3 {
		reversed = append(reversed, coords[i], coords[i+1], coords[i+2])
	}
	return reversed
}
