package reader

import (
	"context"

	"github.com/BryceDouglasJames/surfacegeom/pkg/types"
)

// Re-export shared types
type (
	GeometryRow = types.GeometryRow
	RowReader   = types.RowReader
)

// Source fetches surface_geometry rows by root id and decodes their payloads.
type Source interface {
	// Query returns every row whose root id is in rootIDs, in no particular
	// order. A single id uses a plain equality query; several ids share
	// one set-membership query.
	Query(ctx context.Context, rootIDs []int64) (RowReader, error)

	// Decode converts a polygon payload into rings of flat XYZ coordinates.
	Decode(payload []byte) ([][]float64, error)

	// MaxBatchSize is the largest number of root ids or cache inserts the
	// backend accepts in one round trip.
	MaxBatchSize() int
}

// CollectRows drains a RowReader into a slice.
func CollectRows(r RowReader) ([]GeometryRow, error) {
	var rows []GeometryRow
	for r.Next() {
		rows = append(rows, r.Row())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
