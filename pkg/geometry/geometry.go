// Package geometry defines the typed surface geometries rebuilt from the
// surface_geometry table.
package geometry

// Kind identifies the structural type of a rebuilt geometry.
type Kind int

const (
	KindUnknown Kind = iota
	KindPolygon
	KindCompositeSurface
	KindMultiSurface
	KindSolid
	KindCompositeSolid
	KindMultiSolid
	KindTriangulatedSurface
)

func (k Kind) String() string {
	switch k {
	case KindPolygon:
		return "Polygon"
	case KindCompositeSurface:
		return "CompositeSurface"
	case KindMultiSurface:
		return "MultiSurface"
	case KindSolid:
		return "Solid"
	case KindCompositeSolid:
		return "CompositeSolid"
	case KindMultiSolid:
		return "MultiSolid"
	case KindTriangulatedSurface:
		return "TriangulatedSurface"
	default:
		return "Unknown"
	}
}

// MarshalText renders the kind by name in JSON output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsSurface reports whether k can be used as a surface member or a solid shell.
// A MultiSurface is an aggregate, not a surface.
func (k Kind) IsSurface() bool {
	switch k {
	case KindPolygon, KindCompositeSurface, KindTriangulatedSurface:
		return true
	}
	return false
}

// IsSolid reports whether k can be used as a solid member.
func (k Kind) IsSolid() bool {
	return k == KindSolid || k == KindCompositeSolid
}

// LinearRing is a closed ring of XYZ coordinates stored flat (stride 3).
type LinearRing struct {
	ID     string    `json:"id,omitempty"`
	Coords []float64 `json:"coords"`
}

// NumPoints returns the number of XYZ positions in the ring.
func (r LinearRing) NumPoints() int {
	return len(r.Coords) / 3
}

// Geometry is a tagged variant over the surface geometry kinds.
//
// ID and Reversed form the header shared by all kinds. Reversed marks a
// geometry whose orientation is flipped relative to its parent; for surfaces
// this corresponds to an OrientableSurface with a negative sign.
//
// A geometry with a non-empty Href is a reference to a geometry emitted
// earlier in the export session and carries no content.
type Geometry struct {
	ID       string `json:"id,omitempty"`
	Kind     Kind   `json:"kind"`
	Reversed bool   `json:"reversed,omitempty"`
	Href     string `json:"href,omitempty"`

	// Polygon
	Exterior  *LinearRing  `json:"exterior,omitempty"`
	Interiors []LinearRing `json:"interiors,omitempty"`

	// Solid
	Shell *Geometry `json:"shell,omitempty"`

	// CompositeSurface, MultiSurface, CompositeSolid, MultiSolid
	Members []*Geometry `json:"members,omitempty"`

	// TriangulatedSurface
	Triangles []LinearRing `json:"triangles,omitempty"`
}

// IsReference reports whether g only points to another geometry.
func (g *Geometry) IsReference() bool {
	return g != nil && g.Href != ""
}

// IsSurfaceMember reports whether g may be placed in a surface aggregate
// or used as a solid shell.
func (g *Geometry) IsSurfaceMember() bool {
	return g != nil && (g.IsReference() || g.Kind.IsSurface())
}

// IsSolidMember reports whether g may be placed in a solid aggregate.
func (g *Geometry) IsSolidMember() bool {
	return g != nil && (g.IsReference() || g.Kind.IsSolid())
}

// Walk visits g and all nested geometries depth-first.
// Returning false from fn stops the descent below the current geometry.
func Walk(g *Geometry, fn func(*Geometry) bool) {
	if g == nil || !fn(g) {
		return
	}
	if g.Shell != nil {
		Walk(g.Shell, fn)
	}
	for _, m := range g.Members {
		Walk(m, fn)
	}
}

// Stats summarizes a geometry tree.
type Stats struct {
	Polygons   int `json:"polygons"`
	Triangles  int `json:"triangles"`
	References int `json:"references"`
	Reversed   int `json:"reversed"`
}

// Summarize counts the leaves and references below g.
func Summarize(g *Geometry) Stats {
	var s Stats
	Walk(g, func(n *Geometry) bool {
		if n.Reversed {
			s.Reversed++
		}
		switch {
		case n.IsReference():
			s.References++
		case n.Kind == KindPolygon:
			s.Polygons++
		case n.Kind == KindTriangulatedSurface:
			s.Triangles += len(n.Triangles)
		}
		return true
	})
	return s
}
