package types

// GeometryRow is one row of the surface_geometry table.
// Flags and payloads are read as stored; decoding happens in the exporter.
type GeometryRow struct {
	ID       int64
	GmlID    string // empty when the row has no gml:id
	ParentID int64  // 0 marks the root of a geometry tree
	RootID   int64

	IsSolid        bool
	IsComposite    bool
	IsTriangulated bool
	IsXlink        bool
	IsReverse      bool

	// Payload holds the encoded polygon of a leaf row, nil for hierarchy rows.
	Payload []byte

	// ImplicitPayload holds the polygon of an implicit (prototype) geometry.
	ImplicitPayload []byte
}

// HasGmlID reports whether the row carries an identifier.
func (r GeometryRow) HasGmlID() bool {
	return r.GmlID != ""
}

// RowReader is the iterator interface for geometry row sources.
// Follows the standard Go pattern (like sql.Rows, bufio.Scanner).
type RowReader interface {
	// Next advances to the next row.
	Next() bool

	// Row returns the current row.
	Row() GeometryRow

	// Err returns any error encountered during iteration.
	Err() error

	// Close releases any resources.
	Close() error
}
