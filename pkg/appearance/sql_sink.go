package appearance

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLSink writes cache entries through database/sql, one transaction per flush.
type SQLSink struct {
	db     *sql.DB
	table  CacheTable
	insert string
}

func NewSQLSink(db *sql.DB, table CacheTable) *SQLSink {
	return &SQLSink{
		db:     db,
		table:  table,
		insert: table.InsertSQL(DialectSQLite),
	}
}

// EnsureTable creates the cache table and its index if missing.
func (s *SQLSink) EnsureTable(ctx context.Context) error {
	for _, stmt := range []string{s.table.CreateSQL(), s.table.IndexSQL()} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create cache table %s: %w", s.table.Name, err)
		}
	}
	return nil
}

func (s *SQLSink) Flush(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.insert)
	if err != nil {
		return fmt.Errorf("failed to prepare cache insert: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, id); err != nil {
			return fmt.Errorf("failed to execute cache insert: %w", err)
		}
	}
	return tx.Commit()
}

// Compile-time interface check
var _ Sink = (*SQLSink)(nil)
