package reader

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkb"
)

var square = [][]float64{
	{0, 0, 10, 4, 0, 10, 4, 4, 10, 0, 4, 10, 0, 0, 10},
	{1, 1, 10, 1, 2, 10, 2, 2, 10, 1, 1, 10},
}

func equalRings(a, b [][]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

func TestDecodeWKB_RoundTrip(t *testing.T) {
	payload, err := EncodeWKB(square)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	rings, err := DecodeWKB(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !equalRings(rings, square) {
		t.Fatalf("expected %v, got %v", square, rings)
	}
}

func TestDecodeEWKB_Polygon(t *testing.T) {
	poly := geom.NewPolygonFlat(geom.XYZ, append(append([]float64{}, square[0]...), square[1]...),
		[]int{len(square[0]), len(square[0]) + len(square[1])}).SetSRID(25832)

	payload, err := ewkb.Marshal(poly, binary.LittleEndian)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	rings, err := DecodeEWKB(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !equalRings(rings, square) {
		t.Fatalf("expected %v, got %v", square, rings)
	}
}

func TestDecode_2DGetsZeroHeight(t *testing.T) {
	poly := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, []int{8})
	payload, err := wkb.Marshal(poly, binary.LittleEndian)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	rings, err := DecodeWKB(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := [][]float64{{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 0, 0}}
	if !equalRings(rings, want) {
		t.Fatalf("expected %v, got %v", want, rings)
	}
}

func TestDecode_RejectsNonPolygon(t *testing.T) {
	payload, err := wkb.Marshal(geom.NewPointFlat(geom.XYZ, []float64{1, 2, 3}), binary.LittleEndian)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if _, err := DecodeWKB(payload); err == nil {
		t.Fatalf("expected error for point payload")
	}
}

func TestDecode_RejectsEmptyPolygon(t *testing.T) {
	payload, err := wkb.Marshal(geom.NewPolygon(geom.XYZ), binary.LittleEndian)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if _, err := DecodeWKB(payload); !errors.Is(err, ErrEmptyPolygon) {
		t.Fatalf("expected ErrEmptyPolygon, got %v", err)
	}
}

func TestDecode_Garbage(t *testing.T) {
	if _, err := DecodeWKB([]byte{0x01, 0x02}); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}
