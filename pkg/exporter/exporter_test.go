package exporter

import (
	"context"
	"errors"
	"sort"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BryceDouglasJames/surfacegeom/pkg/appearance"
	"github.com/BryceDouglasJames/surfacegeom/pkg/geometry"
	"github.com/BryceDouglasJames/surfacegeom/pkg/reader"
	"github.com/BryceDouglasJames/surfacegeom/pkg/rebuild"
	"github.com/BryceDouglasJames/surfacegeom/pkg/types"
	"github.com/BryceDouglasJames/surfacegeom/pkg/xlink"
)

var square = [][]float64{{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 0, 0, 0}}

func mustWKB(t *testing.T, rings [][]float64) []byte {
	t.Helper()
	b, err := reader.EncodeWKB(rings)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

// openSource creates an in-memory database with three trees: a multi surface
// (root 1), a solid (root 10) and a single polygon (root 20).
func openSource(t *testing.T) *reader.SQLiteSource {
	t.Helper()
	ctx := context.Background()

	src, err := reader.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { src.Close() })

	if err := src.EnsureSchema(ctx); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	rows := []types.GeometryRow{
		// children first
		{ID: 2, RootID: 1, ParentID: 1, GmlID: "p2", Payload: mustWKB(t, square)},
		{ID: 3, RootID: 1, ParentID: 1, IsReverse: true, Payload: mustWKB(t, square)},
		{ID: 1, RootID: 1, GmlID: "ms1"},
		{ID: 10, RootID: 10, GmlID: "solid10", IsSolid: true},
		{ID: 11, RootID: 10, ParentID: 10, IsComposite: true},
		{ID: 12, RootID: 10, ParentID: 11, GmlID: "p12", Payload: mustWKB(t, square)},
		{ID: 13, RootID: 10, ParentID: 11, Payload: mustWKB(t, square)},
		{ID: 20, RootID: 20, GmlID: "p20", Payload: mustWKB(t, square)},
	}
	if err := src.InsertRows(ctx, rows); err != nil {
		t.Fatalf("failed to insert rows: %v", err)
	}
	return src
}

func insertRows(t *testing.T, src *reader.SQLiteSource, rows ...types.GeometryRow) {
	t.Helper()
	if err := src.InsertRows(context.Background(), rows); err != nil {
		t.Fatalf("failed to insert rows: %v", err)
	}
}

type collected map[int64]*geometry.Geometry

func (c collected) handler(id int64) Handler {
	return func(g *geometry.Geometry) { c[id] = g }
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestExport_Single(t *testing.T) {
	src := openSource(t)
	e := New(src, xlink.NewLedger(), Options{Rebuild: rebuild.Options{UseXLink: true}}, nil)

	g, err := e.Export(context.Background(), 10)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if g == nil || g.Kind != geometry.KindSolid || g.ID != "solid10" {
		t.Fatalf("expected solid10, got %+v", g)
	}
	if stats := geometry.Summarize(g); stats.Polygons != 2 {
		t.Fatalf("expected 2 polygons, got %+v", stats)
	}
}

func TestExecuteBatch_SingleRequest(t *testing.T) {
	src := openSource(t)
	e := New(src, xlink.NewLedger(), Options{}, nil)
	got := collected{}

	e.AddBatch(20, got.handler(20))
	if err := e.ExecuteBatch(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	g := got[20]
	if g == nil || g.Kind != geometry.KindPolygon || g.Exterior.ID != "p20_0_" {
		t.Fatalf("expected polygon p20, got %+v", g)
	}
	if e.Pending() != 0 {
		t.Fatalf("expected empty queue, got %d", e.Pending())
	}
}

func TestExecuteBatch_Bulk(t *testing.T) {
	src := openSource(t)
	logger, logs := observedLogger()
	e := New(src, xlink.NewLedger(), Options{}, logger)
	got := collected{}

	for _, id := range []int64{1, 10, 20, 99} {
		e.AddBatch(id, got.handler(id))
	}
	if err := e.ExecuteBatch(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 handled geometries, got %d", len(got))
	}
	if g := got[1]; g.Kind != geometry.KindMultiSurface || len(g.Members) != 2 {
		t.Fatalf("expected multi surface with 2 members, got %+v", g)
	}
	if !got[1].Members[1].Reversed && !got[1].Members[0].Reversed {
		t.Fatalf("expected one reversed member in root 1")
	}
	if got[10].Kind != geometry.KindSolid || got[20].Kind != geometry.KindPolygon {
		t.Fatalf("unexpected kinds: %s, %s", got[10].Kind, got[20].Kind)
	}
	if _, ok := got[99]; ok {
		t.Fatalf("handler for missing root must not be invoked")
	}

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning for missing root, got %d", len(warnings))
	}
	if id := warnings[0].ContextMap()["root_id"]; id != int64(99) {
		t.Fatalf("expected warning for root 99, got %v", id)
	}
}

func TestExecuteBatch_RoutesRowsByRoot(t *testing.T) {
	src := openSource(t)
	e := New(src, xlink.NewLedger(), Options{}, nil)
	got := collected{}

	e.AddBatch(1, got.handler(1))
	e.AddBatch(20, got.handler(20))
	if err := e.ExecuteBatch(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if s := geometry.Summarize(got[1]); s.Polygons != 2 {
		t.Fatalf("root 1 must only hold its own polygons, got %+v", s)
	}
	if s := geometry.Summarize(got[20]); s.Polygons != 1 {
		t.Fatalf("root 20 must only hold its own polygon, got %+v", s)
	}
}

func TestExecuteBatch_FailOnError(t *testing.T) {
	src := openSource(t)
	e := New(src, xlink.NewLedger(), Options{FailOnError: true}, nil)
	got := collected{}

	e.AddBatch(20, got.handler(20))
	e.AddBatch(99, got.handler(99))
	err := e.ExecuteBatch(context.Background())

	var itemErr *ItemError
	if !errors.As(err, &itemErr) {
		t.Fatalf("expected *ItemError, got %v", err)
	}
	if itemErr.RootID != 99 || itemErr.GeometryID != 0 {
		t.Fatalf("unexpected item error: %+v", itemErr)
	}
	if e.Pending() != 0 {
		t.Fatalf("queue must be cleared after a failed batch, got %d", e.Pending())
	}
}

func TestExecuteBatch_SkipsUndecodablePolygon(t *testing.T) {
	src := openSource(t)
	insertRows(t, src,
		types.GeometryRow{ID: 30, RootID: 30, IsComposite: true},
		types.GeometryRow{ID: 31, RootID: 30, ParentID: 30, Payload: []byte{0x01, 0x02}},
		types.GeometryRow{ID: 32, RootID: 30, ParentID: 30, Payload: mustWKB(t, square)},
	)

	t.Run("logged", func(t *testing.T) {
		logger, logs := observedLogger()
		e := New(src, xlink.NewLedger(), Options{}, logger)

		g, err := e.Export(context.Background(), 30)
		if err != nil {
			t.Fatalf("export: %v", err)
		}
		if g == nil || len(g.Members) != 1 {
			t.Fatalf("expected composite with the decodable polygon only, got %+v", g)
		}
		if logs.FilterField(zap.Int64("geometry_id", 31)).Len() != 1 {
			t.Fatalf("expected warning for geometry 31")
		}
	})

	t.Run("strict", func(t *testing.T) {
		e := New(src, xlink.NewLedger(), Options{FailOnError: true}, nil)

		_, err := e.Export(context.Background(), 30)
		var itemErr *ItemError
		if !errors.As(err, &itemErr) || itemErr.GeometryID != 31 {
			t.Fatalf("expected item error for geometry 31, got %v", err)
		}
	})
}

func TestExecuteBatch_EmptyTree(t *testing.T) {
	src := openSource(t)
	insertRows(t, src, types.GeometryRow{ID: 40, RootID: 40, GmlID: "empty"})

	e := New(src, xlink.NewLedger(), Options{FailOnError: true}, nil)
	_, err := e.Export(context.Background(), 40)

	var itemErr *ItemError
	if !errors.As(err, &itemErr) || itemErr.RootID != 40 {
		t.Fatalf("expected item error for empty root, got %v", err)
	}
}

func TestExecuteBatch_Implicit(t *testing.T) {
	src := openSource(t)
	insertRows(t, src,
		types.GeometryRow{ID: 50, RootID: 50, IsComposite: true},
		types.GeometryRow{ID: 51, RootID: 50, ParentID: 50, ImplicitPayload: mustWKB(t, square)},
	)
	e := New(src, xlink.NewLedger(), Options{}, nil)

	g, err := e.ExportImplicit(context.Background(), 50)
	if err != nil {
		t.Fatalf("export implicit: %v", err)
	}
	if g == nil || len(g.Members) != 1 {
		t.Fatalf("expected implicit polygon, got %+v", g)
	}

	// the same tree read through the geometry column has no polygons
	g, err = e.Export(context.Background(), 50)
	if err != nil || g != nil {
		t.Fatalf("expected logged failure for explicit read, got %+v, %v", g, err)
	}
}

func TestExecuteBatch_SharedLedger(t *testing.T) {
	src := openSource(t)
	insertRows(t, src,
		types.GeometryRow{ID: 60, RootID: 60, IsComposite: true},
		types.GeometryRow{ID: 61, RootID: 60, ParentID: 60, GmlID: "X1", IsXlink: true, Payload: mustWKB(t, square)},
		types.GeometryRow{ID: 70, RootID: 70, IsComposite: true},
		types.GeometryRow{ID: 71, RootID: 70, ParentID: 70, GmlID: "X1", IsXlink: true, Payload: mustWKB(t, square)},
	)

	ledger := xlink.NewLedger()
	opts := Options{Rebuild: rebuild.Options{UseXLink: true}}
	first := New(src, ledger, opts, nil)
	second := New(src, ledger, opts, nil)

	a, err := first.Export(context.Background(), 60)
	if err != nil {
		t.Fatalf("export 60: %v", err)
	}
	b, err := second.Export(context.Background(), 70)
	if err != nil {
		t.Fatalf("export 70: %v", err)
	}

	if a.Members[0].IsReference() {
		t.Fatalf("first occurrence must be complete")
	}
	if ref := b.Members[0]; !ref.IsReference() || ref.Href != "#X1" {
		t.Fatalf("expected reference to X1, got %+v", ref)
	}
}

func TestClose_FlushesAppearanceCache(t *testing.T) {
	ctx := context.Background()
	src := openSource(t)

	if _, err := src.DB().ExecContext(ctx,
		`INSERT INTO textureparam (surface_geometry_id, surface_data_id) VALUES (2, 1), (12, 1), (20, 2)`); err != nil {
		t.Fatalf("failed to insert texture params: %v", err)
	}

	sink := appearance.NewSQLSink(src.DB(), appearance.NewCacheTable("", ""))
	if err := sink.EnsureTable(ctx); err != nil {
		t.Fatalf("ensure table: %v", err)
	}
	writer := appearance.NewWriter(sink, appearance.BatchThreshold(src.MaxBatchSize(), 2))

	e := New(src, xlink.NewLedger(), Options{Appearance: writer}, nil)
	for _, id := range []int64{1, 10, 20} {
		e.AddBatch(id, nil)
	}
	if err := e.ExecuteBatch(ctx); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := e.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if writer.Pending() != 0 {
		t.Fatalf("expected no pending ids after close, got %d", writer.Pending())
	}

	rows, err := src.DB().QueryContext(ctx, "SELECT id FROM "+appearance.DefaultTableName)
	if err != nil {
		t.Fatalf("query cache: %v", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	want := []int64{2, 12, 20}
	if len(ids) != len(want) {
		t.Fatalf("expected cache ids %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected cache ids %v, got %v", want, ids)
		}
	}
}

type failingSource struct{ reader.Source }

func (failingSource) Query(context.Context, []int64) (types.RowReader, error) {
	return nil, errors.New("connection refused")
}

func TestExecuteBatch_QueryErrorClearsQueue(t *testing.T) {
	e := New(failingSource{}, xlink.NewLedger(), Options{}, nil)
	e.AddBatch(1, nil)
	e.AddBatch(2, nil)

	if err := e.ExecuteBatch(context.Background()); err == nil {
		t.Fatalf("expected query error")
	}
	if e.Pending() != 0 {
		t.Fatalf("expected cleared queue, got %d", e.Pending())
	}
}
