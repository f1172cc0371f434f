// Package exporter loads surface geometry trees by root id and hands the
// rebuilt geometries to per-request handlers.
//
// Requests are queued with AddBatch and resolved together by ExecuteBatch:
// a single request uses a plain root id query, several requests share one
// bulk query whose rows are routed to per-root forests.
package exporter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BryceDouglasJames/surfacegeom/pkg/appearance"
	"github.com/BryceDouglasJames/surfacegeom/pkg/geometry"
	"github.com/BryceDouglasJames/surfacegeom/pkg/reader"
	"github.com/BryceDouglasJames/surfacegeom/pkg/rebuild"
	"github.com/BryceDouglasJames/surfacegeom/pkg/tree"
	"github.com/BryceDouglasJames/surfacegeom/pkg/types"
	"github.com/BryceDouglasJames/surfacegeom/pkg/xlink"
)

// Handler receives a rebuilt geometry. It is not invoked when the
// reconstruction failed.
type Handler func(g *geometry.Geometry)

// Options configures an Exporter.
type Options struct {
	Rebuild rebuild.Options

	// Appearance receives ids of exported geometries carrying a gml:id.
	// Nil disables the appearance cache.
	Appearance *appearance.Writer

	// FailOnError turns per-item failures into errors instead of log entries.
	FailOnError bool

	// IDs mints gml:ids for duplicated xlink geometries. Defaults to UUIDs.
	IDs xlink.IDGenerator
}

// ItemError reports a geometry that could not be exported.
type ItemError struct {
	RootID     int64
	GeometryID int64 // 0 when the failure concerns the whole tree
	Reason     string
}

func (e *ItemError) Error() string {
	if e.GeometryID != 0 {
		return fmt.Sprintf("surface geometry %d (root %d): %s", e.GeometryID, e.RootID, e.Reason)
	}
	return fmt.Sprintf("surface geometry root %d: %s", e.RootID, e.Reason)
}

type request struct {
	id       int64
	implicit bool
	handler  Handler
}

// Exporter is owned by a single export worker. Workers of one export session
// share the xlink ledger.
type Exporter struct {
	source     reader.Source
	rebuilder  *rebuild.Rebuilder
	appearance *appearance.Writer
	opts       Options
	logger     *zap.Logger

	batch []request
}

// New creates an Exporter reading from source. A nil logger discards output.
func New(source reader.Source, ledger *xlink.Ledger, opts Options, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Avoid storing a typed nil in the queue interface.
	var queue rebuild.AppearanceQueue
	if opts.Appearance != nil {
		queue = opts.Appearance
	}

	return &Exporter{
		source:     source,
		rebuilder:  rebuild.New(opts.Rebuild, ledger, opts.IDs, queue),
		appearance: opts.Appearance,
		opts:       opts,
		logger:     logger,
	}
}

// AddBatch queues the geometry tree rooted at id.
func (e *Exporter) AddBatch(id int64, handler Handler) {
	e.batch = append(e.batch, request{id: id, handler: handler})
}

// AddImplicitBatch queues an implicit geometry tree, whose polygons are read
// from the implicit_geometry column.
func (e *Exporter) AddImplicitBatch(id int64, handler Handler) {
	e.batch = append(e.batch, request{id: id, implicit: true, handler: handler})
}

// Pending returns the number of queued requests.
func (e *Exporter) Pending() int {
	return len(e.batch)
}

// ExecuteBatch resolves all queued requests. The queue is cleared even when
// an error is returned.
func (e *Exporter) ExecuteBatch(ctx context.Context) error {
	batch := e.batch
	e.batch = nil

	switch len(batch) {
	case 0:
		return nil
	case 1:
		req := batch[0]
		g, err := e.export(ctx, req.id, req.implicit)
		if err != nil {
			return err
		}
		if g != nil && req.handler != nil {
			req.handler(g)
		}
		return nil
	}

	ids := make([]int64, 0, len(batch))
	forests := make(map[int64]*tree.Forest, len(batch))
	for _, req := range batch {
		if _, ok := forests[req.id]; ok {
			continue
		}
		ids = append(ids, req.id)
		forests[req.id] = tree.NewForest(req.implicit)
	}

	rows, err := e.source.Query(ctx, ids)
	if err != nil {
		return err
	}
	err = e.fill(rows, func(row types.GeometryRow) *tree.Forest {
		return forests[row.RootID]
	})
	if err != nil {
		return err
	}

	e.logger.Debug("Loaded surface geometry batch",
		zap.Int("requests", len(batch)),
		zap.Int("roots", len(ids)))

	for _, req := range batch {
		g, err := e.rebuild(ctx, req.id, forests[req.id])
		if err != nil {
			return err
		}
		if g != nil && req.handler != nil {
			req.handler(g)
		}
	}
	return nil
}

// Export loads and rebuilds a single geometry tree immediately. A nil
// geometry with a nil error means the failure was logged.
func (e *Exporter) Export(ctx context.Context, id int64) (*geometry.Geometry, error) {
	return e.export(ctx, id, false)
}

// ExportImplicit is Export for implicit geometry trees.
func (e *Exporter) ExportImplicit(ctx context.Context, id int64) (*geometry.Geometry, error) {
	return e.export(ctx, id, true)
}

// Close flushes the appearance cache. Queued requests are discarded.
func (e *Exporter) Close(ctx context.Context) error {
	e.batch = nil
	if e.appearance == nil {
		return nil
	}
	if err := e.appearance.Close(ctx); err != nil {
		return fmt.Errorf("failed to close appearance writer: %w", err)
	}
	return nil
}

func (e *Exporter) export(ctx context.Context, id int64, implicit bool) (*geometry.Geometry, error) {
	rows, err := e.source.Query(ctx, []int64{id})
	if err != nil {
		return nil, err
	}

	forest := tree.NewForest(implicit)
	err = e.fill(rows, func(types.GeometryRow) *tree.Forest {
		return forest
	})
	if err != nil {
		return nil, err
	}
	return e.rebuild(ctx, id, forest)
}

// fill drains rows into the forests returned by route. The reader is closed
// before returning so that the appearance sink can use the connection.
func (e *Exporter) fill(rows types.RowReader, route func(types.GeometryRow) *tree.Forest) (err error) {
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close surface geometry rows: %w", cerr)
		}
	}()

	for rows.Next() {
		row := rows.Row()
		forest := route(row)
		if forest == nil {
			continue
		}
		if err := e.insert(forest, row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (e *Exporter) insert(forest *tree.Forest, row types.GeometryRow) error {
	payload := row.Payload
	if forest.Implicit() {
		payload = row.ImplicitPayload
	}

	var rings [][]float64
	if len(payload) > 0 {
		decoded, err := e.source.Decode(payload)
		if err != nil {
			return e.reportf(row.RootID, row.ID, "skipping polygon: %v", err)
		}
		rings = decoded
	}

	forest.Insert(tree.DataFromRow(row, rings))
	return nil
}

func (e *Exporter) rebuild(ctx context.Context, id int64, forest *tree.Forest) (*geometry.Geometry, error) {
	root := forest.Root()
	if root == nil {
		return nil, e.reportf(id, 0, "failed to read surface geometry")
	}

	g, err := e.rebuilder.Rebuild(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild surface geometry %d: %w", id, err)
	}
	if g == nil {
		return nil, e.reportf(id, 0, "geometry tree has no valid content")
	}
	return g, nil
}

// reportf logs a per-item failure, or returns it as *ItemError when
// FailOnError is set.
func (e *Exporter) reportf(rootID, geometryID int64, format string, args ...any) error {
	itemErr := &ItemError{
		RootID:     rootID,
		GeometryID: geometryID,
		Reason:     fmt.Sprintf(format, args...),
	}
	if e.opts.FailOnError {
		return itemErr
	}

	fields := []zap.Field{zap.Int64("root_id", rootID)}
	if geometryID != 0 {
		fields = append(fields, zap.Int64("geometry_id", geometryID))
	}
	e.logger.Warn(itemErr.Reason, fields...)
	return nil
}
