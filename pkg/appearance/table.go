package appearance

import "fmt"

// Dialect selects the placeholder style of generated statements.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// CacheTable describes the table receiving geometry ids. It is constructed by
// the caller and passed to the sinks.
type CacheTable struct {
	// Schema of the 3D City Database (holds textureparam). Empty for SQLite.
	Schema string

	// Name of the cache table.
	Name string
}

// DefaultTableName is the cache table used when none is configured.
const DefaultTableName = "tmp_appearance_geometry"

// NewCacheTable creates a table model, falling back to DefaultTableName.
func NewCacheTable(schema, name string) CacheTable {
	if name == "" {
		name = DefaultTableName
	}
	return CacheTable{Schema: schema, Name: name}
}

func (t CacheTable) qualify(name string) string {
	if t.Schema == "" {
		return name
	}
	return t.Schema + "." + name
}

// CreateSQL returns the statement creating the cache table.
func (t CacheTable) CreateSQL() string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id BIGINT)", t.Name)
}

// IndexSQL returns the statement indexing the cache table.
func (t CacheTable) IndexSQL() string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s ON %s (id)", t.Name, t.Name)
}

// InsertSQL returns the statement inserting one id if a texture parameter
// references that surface geometry.
func (t CacheTable) InsertSQL(d Dialect) string {
	p1, p2 := "$1", "$2"
	if d == DialectSQLite {
		p1, p2 = "?", "?"
	}
	return fmt.Sprintf("INSERT INTO %s SELECT %s WHERE EXISTS (SELECT 1 FROM %s WHERE surface_geometry_id = %s)",
		t.Name, p1, t.qualify("textureparam"), p2)
}
