package reader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/BryceDouglasJames/surfacegeom/pkg/types"
)

// SQLiteMaxBatchSize stays below SQLite's default bind-variable limit.
const SQLiteMaxBatchSize = 999

const sqliteSelect = `SELECT id, gmlid, COALESCE(parent_id, 0), COALESCE(root_id, 0),
	is_solid, is_composite, is_triangulated, is_xlink, is_reverse,
	geometry, implicit_geometry
FROM surface_geometry`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS surface_geometry (
	id                INTEGER PRIMARY KEY,
	gmlid             TEXT,
	parent_id         INTEGER,
	root_id           INTEGER,
	is_solid          INTEGER NOT NULL DEFAULT 0,
	is_composite      INTEGER NOT NULL DEFAULT 0,
	is_triangulated   INTEGER NOT NULL DEFAULT 0,
	is_xlink          INTEGER NOT NULL DEFAULT 0,
	is_reverse        INTEGER NOT NULL DEFAULT 0,
	geometry          BLOB,
	implicit_geometry BLOB
);
CREATE INDEX IF NOT EXISTS surface_geom_root_idx ON surface_geometry (root_id);
CREATE TABLE IF NOT EXISTS textureparam (
	surface_geometry_id INTEGER NOT NULL,
	surface_data_id     INTEGER
);
`

// SQLiteSource reads surface geometries from a SQLite file that mirrors the
// surface_geometry table with WKB payloads. It backs offline exports and tests.
type SQLiteSource struct {
	db     *sql.DB
	ownsDB bool
}

// OpenSQLite opens a SQLite database on a single connection: in-memory
// databases are per connection, and appearance cache writes must not race
// concurrent readers for the file lock.
func OpenSQLite(ctx context.Context, path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite %s: %w", path, err)
	}

	s := NewSQLiteSource(db)
	s.ownsDB = true
	return s, nil
}

// NewSQLiteSource wraps an existing handle. The handle is not closed by Close.
func NewSQLiteSource(db *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

// DB returns the underlying handle.
func (s *SQLiteSource) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates the surface_geometry and textureparam tables.
func (s *SQLiteSource) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return nil
}

// InsertRows stores rows in one transaction.
func (s *SQLiteSource) InsertRows(ctx context.Context, rows []types.GeometryRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO surface_geometry
	(id, gmlid, parent_id, root_id, is_solid, is_composite, is_triangulated, is_xlink, is_reverse, geometry, implicit_geometry)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		var gmlID, parentID any
		if r.GmlID != "" {
			gmlID = r.GmlID
		}
		if r.ParentID != 0 {
			parentID = r.ParentID
		}
		_, err := stmt.ExecContext(ctx, r.ID, gmlID, parentID, r.RootID,
			boolInt(r.IsSolid), boolInt(r.IsComposite), boolInt(r.IsTriangulated),
			boolInt(r.IsXlink), boolInt(r.IsReverse), nullBytes(r.Payload), nullBytes(r.ImplicitPayload))
		if err != nil {
			return fmt.Errorf("failed to insert surface geometry %d: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Query fetches all rows of the given root ids.
func (s *SQLiteSource) Query(ctx context.Context, rootIDs []int64) (types.RowReader, error) {
	var (
		query string
		args  []any
	)
	switch len(rootIDs) {
	case 0:
		return nil, errors.New("no root ids given")
	case 1:
		query = sqliteSelect + " WHERE root_id = ?"
		args = []any{rootIDs[0]}
	default:
		query = sqliteSelect + " WHERE root_id IN (?" + strings.Repeat(", ?", len(rootIDs)-1) + ")"
		args = make([]any, len(rootIDs))
		for i, id := range rootIDs {
			args[i] = id
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query surface geometries: %w", err)
	}
	return &SQLReader{rows: rows}, nil
}

// Decode decodes ISO WKB payloads.
func (s *SQLiteSource) Decode(payload []byte) ([][]float64, error) {
	return DecodeWKB(payload)
}

func (s *SQLiteSource) MaxBatchSize() int {
	return SQLiteMaxBatchSize
}

// Close closes the database if the source opened it.
func (s *SQLiteSource) Close() error {
	if s.ownsDB && s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SQLReader iterates over surface_geometry rows returned by database/sql.
type SQLReader struct {
	rows *sql.Rows

	// Iterator state
	currentRow types.GeometryRow
	err        error
	done       bool
}

// Next advances to the next row.
func (r *SQLReader) Next() bool {
	if r.done || r.err != nil {
		return false
	}

	if !r.rows.Next() {
		r.done = true
		if err := r.rows.Err(); err != nil {
			r.err = fmt.Errorf("failed to read surface geometries: %w", err)
		}
		return false
	}

	var (
		row                                        types.GeometryRow
		gmlID                                      sql.NullString
		solid, composite, triangulated, xlink, rev int64
	)
	err := r.rows.Scan(&row.ID, &gmlID, &row.ParentID, &row.RootID,
		&solid, &composite, &triangulated, &xlink, &rev,
		&row.Payload, &row.ImplicitPayload)
	if err != nil {
		r.err = fmt.Errorf("failed to scan surface geometry row: %w", err)
		return false
	}

	row.GmlID = gmlID.String
	row.IsSolid = solid != 0
	row.IsComposite = composite != 0
	row.IsTriangulated = triangulated != 0
	row.IsXlink = xlink != 0
	row.IsReverse = rev != 0

	r.currentRow = row
	return true
}

// Row returns the current row.
func (r *SQLReader) Row() types.GeometryRow {
	return r.currentRow
}

// Err returns any error encountered during iteration.
func (r *SQLReader) Err() error {
	return r.err
}

// Close releases the result set.
func (r *SQLReader) Close() error {
	if r.rows != nil {
		return r.rows.Close()
	}
	return nil
}

// nullBytes stores empty payloads as NULL.
func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time interface checks
var (
	_ Source          = (*SQLiteSource)(nil)
	_ types.RowReader = (*SQLReader)(nil)
)
