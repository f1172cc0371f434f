// Package appearance records surface geometry ids that may carry textures
// into a cache table, so appearances can be resolved after the geometry export.
package appearance

import (
	"context"
	"fmt"
)

// Sink writes one batch of geometry ids to the cache table.
type Sink interface {
	Flush(ctx context.Context, ids []int64) error
}

// BatchThreshold returns the flush threshold: override when it lies in
// (0, maxBatchSize], maxBatchSize otherwise.
func BatchThreshold(maxBatchSize, override int) int {
	if override > 0 && override <= maxBatchSize {
		return override
	}
	return maxBatchSize
}

// Writer batches geometry ids and hands them to a Sink once the threshold is
// reached. It is owned by a single export worker.
type Writer struct {
	sink      Sink
	threshold int
	pending   []int64
	flushes   int
}

// NewWriter creates a Writer. A non-positive threshold flushes every id.
func NewWriter(sink Sink, threshold int) *Writer {
	if threshold <= 0 {
		threshold = 1
	}
	return &Writer{
		sink:      sink,
		threshold: threshold,
		pending:   make([]int64, 0, threshold),
	}
}

// Add queues the pair (id, id). The batch is flushed when it reaches the threshold.
func (w *Writer) Add(ctx context.Context, id int64) error {
	w.pending = append(w.pending, id)
	if len(w.pending) == w.threshold {
		return w.flush(ctx)
	}
	return nil
}

// Pending returns the number of queued ids.
func (w *Writer) Pending() int {
	return len(w.pending)
}

// Flushes returns how many batches were written so far.
func (w *Writer) Flushes() int {
	return w.flushes
}

// Threshold returns the configured batch size.
func (w *Writer) Threshold() int {
	return w.threshold
}

// Close writes any remaining ids.
func (w *Writer) Close(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	return w.flush(ctx)
}

func (w *Writer) flush(ctx context.Context) error {
	if err := w.sink.Flush(ctx, w.pending); err != nil {
		return fmt.Errorf("failed to write %d appearance cache entries: %w", len(w.pending), err)
	}
	w.flushes++
	w.pending = w.pending[:0]
	return nil
}
