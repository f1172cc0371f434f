package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BryceDouglasJames/surfacegeom/internal/binary"
	"github.com/BryceDouglasJames/surfacegeom/internal/config"
	"github.com/BryceDouglasJames/surfacegeom/pkg/appearance"
	"github.com/BryceDouglasJames/surfacegeom/pkg/exporter"
	"github.com/BryceDouglasJames/surfacegeom/pkg/geometry"
	"github.com/BryceDouglasJames/surfacegeom/pkg/reader"
	"github.com/BryceDouglasJames/surfacegeom/pkg/rebuild"
	"github.com/BryceDouglasJames/surfacegeom/pkg/xlink"
)

// ExportResult represents the output for JSON mode
type ExportResult struct {
	Source     string             `json:"source"`
	Requested  int                `json:"requested"`
	Exported   int                `json:"exported"`
	Failed     []int64            `json:"failed,omitempty"`
	XLinks     int                `json:"xlinks"`
	Batches    int                `json:"batches"`
	Duration   string             `json:"duration"`
	Geometries []ExportedGeometry `json:"geometries"`
	Summary    geometry.Stats     `json:"summary"`
}

type ExportedGeometry struct {
	RootID   int64              `json:"root_id"`
	Kind     geometry.Kind      `json:"kind"`
	Stats    geometry.Stats     `json:"stats"`
	Geometry *geometry.Geometry `json:"geometry,omitempty"`
}

// exportJob describes one export session over a source.
type exportJob struct {
	name   string
	source reader.Source
	sink   appearance.Sink // nil disables the appearance cache
	cfg    config.Config
	logger *zap.Logger
}

// run exports ids with cfg.Export.Workers workers. Each worker owns an
// exporter and an appearance writer; all of them share one xlink ledger.
func (j exportJob) run(ctx context.Context, ids []int64) (ExportResult, error) {
	start := time.Now()
	maxBatch := j.source.MaxBatchSize()
	chunks := binary.NewChunker[int64](binary.ChunkSize(j.cfg.Export.BatchSize, maxBatch)).Chunk(ids)

	ledger := xlink.NewLedger()
	opts := exporter.Options{
		Rebuild: rebuild.Options{
			UseXLink:    j.cfg.XLink.Reference,
			AppendOldID: j.cfg.XLink.AppendID,
			IDPrefix:    j.cfg.XLink.IDPrefix,
		},
		FailOnError: j.cfg.Export.FailOnError,
	}

	var (
		mu       sync.Mutex
		exported = make(map[int64]*geometry.Geometry, len(ids))
	)

	jobs := make(chan []int64)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, chunk := range chunks {
			select {
			case jobs <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	workers := min(j.cfg.Export.Workers, len(chunks))
	for w := 0; w < workers; w++ {
		logger := j.logger.With(zap.Int("worker", w))

		g.Go(func() (err error) {
			workerOpts := opts
			if j.sink != nil {
				workerOpts.Appearance = appearance.NewWriter(j.sink, appearance.BatchThreshold(maxBatch, j.cfg.Appearance.BatchSize))
			}
			e := exporter.New(j.source, ledger, workerOpts, logger)
			defer func() {
				if cerr := e.Close(ctx); cerr != nil && err == nil {
					err = cerr
				}
			}()

			for chunk := range jobs {
				for _, id := range chunk {
					id := id
					handler := func(geom *geometry.Geometry) {
						mu.Lock()
						exported[id] = geom
						mu.Unlock()
					}
					if j.cfg.Export.Implicit {
						e.AddImplicitBatch(id, handler)
					} else {
						e.AddBatch(id, handler)
					}
				}
				if err := e.ExecuteBatch(ctx); err != nil {
					return fmt.Errorf("failed to export batch of %d root ids: %w", len(chunk), err)
				}
				logger.Debug("Exported batch", zap.Int("roots", len(chunk)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return ExportResult{}, err
	}

	result := ExportResult{
		Source:    j.name,
		Requested: len(ids),
		XLinks:    ledger.Len(),
		Batches:   len(chunks),
		Duration:  time.Since(start).Round(time.Millisecond).String(),
	}

	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		geom, ok := exported[id]
		if !ok {
			result.Failed = append(result.Failed, id)
			continue
		}
		stats := geometry.Summarize(geom)
		result.Geometries = append(result.Geometries, ExportedGeometry{
			RootID:   id,
			Kind:     geom.Kind,
			Stats:    stats,
			Geometry: geom,
		})
		result.Summary.Polygons += stats.Polygons
		result.Summary.Triangles += stats.Triangles
		result.Summary.References += stats.References
		result.Summary.Reversed += stats.Reversed
	}
	result.Exported = len(result.Geometries)

	sort.Slice(result.Geometries, func(a, b int) bool {
		return result.Geometries[a].RootID < result.Geometries[b].RootID
	})
	sort.Slice(result.Failed, func(a, b int) bool { return result.Failed[a] < result.Failed[b] })

	j.logger.Info("Export complete",
		zap.String("source", j.name),
		zap.Int("requested", result.Requested),
		zap.Int("exported", result.Exported),
		zap.Int("failed", len(result.Failed)),
		zap.Int("xlinks", result.XLinks),
		zap.String("duration", result.Duration))

	return result, nil
}
