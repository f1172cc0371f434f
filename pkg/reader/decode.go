package reader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// ErrEmptyPolygon is returned for payloads without any ring.
var ErrEmptyPolygon = errors.New("polygon has no rings")

// DecodeEWKB decodes a PostGIS EWKB polygon.
func DecodeEWKB(payload []byte) ([][]float64, error) {
	g, err := ewkb.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EWKB: %w", err)
	}
	return polygonRings(g)
}

// DecodeWKB decodes an ISO WKB polygon.
func DecodeWKB(payload []byte) ([][]float64, error) {
	g, err := wkb.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode WKB: %w", err)
	}
	return polygonRings(g)
}

// EncodeWKB encodes rings of flat XYZ coordinates as an ISO WKB polygon.
func EncodeWKB(rings [][]float64) ([]byte, error) {
	var flat []float64
	ends := make([]int, 0, len(rings))
	for _, r := range rings {
		if len(r)%3 != 0 {
			return nil, fmt.Errorf("ring with %d ordinates is not XYZ", len(r))
		}
		flat = append(flat, r...)
		ends = append(ends, len(flat))
	}
	poly := geom.NewPolygonFlat(geom.XYZ, flat, ends)
	return wkb.Marshal(poly, binary.LittleEndian)
}

// polygonRings flattens a polygon to XYZ rings. 2D input gets z = 0 and
// measure ordinates are dropped.
func polygonRings(g geom.T) ([][]float64, error) {
	poly, ok := g.(*geom.Polygon)
	if !ok {
		return nil, fmt.Errorf("expected polygon, got %T", g)
	}
	if poly.NumLinearRings() == 0 {
		return nil, ErrEmptyPolygon
	}

	stride := poly.Layout().Stride()
	zIndex := poly.Layout().ZIndex()

	rings := make([][]float64, poly.NumLinearRings())
	for i := range rings {
		flat := poly.LinearRing(i).FlatCoords()
		ring := make([]float64, 0, len(flat)/stride*3)
		for j := 0; j+stride <= len(flat); j += stride {
			z := 0.0
			if zIndex >= 0 {
				z = flat[j+zIndex]
			}
			ring = append(ring, flat[j], flat[j+1], z)
		}
		rings[i] = ring
	}
	return rings, nil
}
