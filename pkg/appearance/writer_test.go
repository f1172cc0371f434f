package appearance

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type recordingSink struct {
	batches [][]int64
	err     error
}

func (s *recordingSink) Flush(_ context.Context, ids []int64) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]int64(nil), ids...))
	return nil
}

func TestBatchThreshold(t *testing.T) {
	cases := []struct {
		max, override, want int
	}{
		{max: 100, override: 0, want: 100},
		{max: 100, override: 20, want: 20},
		{max: 100, override: 100, want: 100},
		{max: 100, override: 500, want: 100},
		{max: 100, override: -3, want: 100},
	}
	for _, c := range cases {
		if got := BatchThreshold(c.max, c.override); got != c.want {
			t.Errorf("BatchThreshold(%d, %d) = %d, want %d", c.max, c.override, got, c.want)
		}
	}
}

func TestWriter_ExactThreshold(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	w := NewWriter(sink, 3)

	for id := int64(1); id <= 3; id++ {
		if err := w.Add(ctx, id); err != nil {
			t.Fatalf("add %d: %v", id, err)
		}
	}

	if len(sink.batches) != 1 {
		t.Fatalf("expected exactly 1 flush, got %d", len(sink.batches))
	}
	if w.Pending() != 0 {
		t.Fatalf("expected 0 pending, got %d", w.Pending())
	}

	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("close with nothing pending must not flush, got %d flushes", len(sink.batches))
	}
}

func TestWriter_ThresholdPlusOne(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	w := NewWriter(sink, 3)

	for id := int64(1); id <= 4; id++ {
		if err := w.Add(ctx, id); err != nil {
			t.Fatalf("add %d: %v", id, err)
		}
	}

	if w.Pending() != 1 {
		t.Fatalf("expected 1 pending before close, got %d", w.Pending())
	}

	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(sink.batches) != 2 {
		t.Fatalf("expected 2 flushes, got %d", len(sink.batches))
	}
	if last := sink.batches[1]; len(last) != 1 || last[0] != 4 {
		t.Fatalf("expected remainder [4], got %v", last)
	}
	if w.Flushes() != 2 {
		t.Fatalf("expected Flushes() = 2, got %d", w.Flushes())
	}
}

func TestWriter_SinkError(t *testing.T) {
	sink := &recordingSink{err: errors.New("connection reset")}
	w := NewWriter(sink, 1)

	err := w.Add(context.Background(), 7)
	if err == nil || !errors.Is(err, sink.err) {
		t.Fatalf("expected wrapped sink error, got %v", err)
	}
}

func TestCacheTable_SQL(t *testing.T) {
	table := NewCacheTable("citydb", "")

	if table.Name != DefaultTableName {
		t.Fatalf("expected default name, got %q", table.Name)
	}

	pg := table.InsertSQL(DialectPostgres)
	if !strings.Contains(pg, "citydb.textureparam") || !strings.Contains(pg, "$2") {
		t.Fatalf("unexpected postgres insert: %s", pg)
	}

	lite := NewCacheTable("", "cache").InsertSQL(DialectSQLite)
	if strings.Contains(lite, "$") || !strings.Contains(lite, "FROM textureparam") {
		t.Fatalf("unexpected sqlite insert: %s", lite)
	}
}
