package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Config is the minimal configuration needed to open a Sink.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Sink is the database export target for an expanded person table.
//
// Each backend implements idempotency on person_id in its own way
// (Postgres ON CONFLICT, SQLite OR IGNORE, SQL Server NOT EXISTS), so running
// the same export twice inserts nothing the second time.
type Sink interface {
	// Close releases connections. Call once.
	Close()

	// EnsureTable creates the person table if it does not exist.
	EnsureTable(ctx context.Context, table string) error

	// InsertPersons inserts rows laid out as PersonColumns and reports how
	// many rows were new. All rows land in one transaction.
	InsertPersons(ctx context.Context, table string, rows [][]any) (int64, error)
}

type factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
// Call it from an init() function in the backend package.
//
// Panics if kind is empty, f is nil, or kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Sink using the registered backend factory.
func New(ctx context.Context, cfg Config) (Sink, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing sink kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported sink kind=%s (registered: %s)", cfg.Kind, strings.Join(Kinds(), ", "))
	}
	return f(ctx, cfg)
}

// Kinds lists registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
