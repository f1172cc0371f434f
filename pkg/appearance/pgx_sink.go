package appearance

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxConn is implemented by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PgxSink writes cache entries to PostgreSQL with one pgx batch per flush.
type PgxSink struct {
	conn   PgxConn
	table  CacheTable
	insert string
}

func NewPgxSink(conn PgxConn, table CacheTable) *PgxSink {
	return &PgxSink{
		conn:   conn,
		table:  table,
		insert: table.InsertSQL(DialectPostgres),
	}
}

// EnsureTable creates the cache table and its index if missing.
func (s *PgxSink) EnsureTable(ctx context.Context) error {
	for _, stmt := range []string{s.table.CreateSQL(), s.table.IndexSQL()} {
		if _, err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create cache table %s: %w", s.table.Name, err)
		}
	}
	return nil
}

// Flush queues one insert per id and sends them in a single round trip.
func (s *PgxSink) Flush(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(s.insert, id, id)
	}

	results := s.conn.SendBatch(ctx, batch)
	for range ids {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to execute cache insert: %w", err)
		}
	}
	return results.Close()
}

// Compile-time interface check
var _ Sink = (*PgxSink)(nil)
