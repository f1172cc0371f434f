// Package xlink tracks geometry identifiers already written during an export
// session so that repeated geometries can be emitted as references.
package xlink

import (
	"sync"

	"github.com/google/uuid"
)

// Ledger maps gml:ids to the geometry id that first emitted them.
// It is safe for concurrent use by several export workers.
type Ledger struct {
	mu  sync.Mutex
	ids map[string]int64
}

func NewLedger() *Ledger {
	return &Ledger{ids: make(map[string]int64)}
}

// LookupAndPut reports whether gmlID was already registered. If it was not,
// it is registered with id in the same critical section.
func (l *Ledger) LookupAndPut(gmlID string, id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.ids[gmlID]; ok {
		return true
	}
	l.ids[gmlID] = id
	return false
}

// Lookup returns the geometry id registered for gmlID.
func (l *Ledger) Lookup(gmlID string) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.ids[gmlID]
	return id, ok
}

// Len returns the number of registered identifiers.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}

// IDGenerator mints fresh gml:ids for geometries that are duplicated
// instead of referenced.
type IDGenerator interface {
	Generate(prefix string) string
}

// UUIDGenerator creates ids of the form <prefix><uuid>.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate(prefix string) string {
	return prefix + uuid.NewString()
}

// DefaultIDPrefix is used when no prefix is configured.
const DefaultIDPrefix = "UUID_"
