package storage

import (
	"context"
	"fmt"
	"sync"

	"mdload/internal/record"
)

// Config is the minimal configuration needed to create a destination.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string `yaml:"kind"`
	DSN  string `yaml:"dsn"`
}

// UpsertUnit is one table's admissible rows, committed as a single write unit.
// The whole unit succeeds or the whole unit is rejected; partial salvage is
// deliberately not attempted.
type UpsertUnit struct {
	Table string

	// KeyColumns is the business key. Existing key means update only the
	// columns present in the row; absent key means insert.
	KeyColumns []string

	Rows []record.Row
}

// UpsertResult carries the per-unit insert/update counts.
type UpsertResult struct {
	Inserted int64
	Updated  int64
}

// Destination is a backend-agnostic interface over the committed state of the
// relational store.
//
// IMPORTANT: This interface is intentionally minimal and focused on the
// operations the load engine needs. Each backend implements the upsert
// semantics in its own idiomatic way (Postgres ON CONFLICT, SQLite
// select-then-write, MSSQL update-then-insert). Destinations never create
// tables; schema DDL is owned elsewhere.
type Destination interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// Ping reports whether the destination is still reachable. The
	// orchestrator uses it to distinguish a per-table commit failure from
	// total loss of connectivity.
	Ping(ctx context.Context) error

	// TableEmpty reports whether the destination table currently has no rows.
	TableEmpty(ctx context.Context, table string) (bool, error)

	// KeySet returns the distinct non-null committed values of table.column
	// in canonical form (see NormalizeValue). It must reflect committed state
	// only, including tables committed earlier in the same run.
	KeySet(ctx context.Context, table, column string) (map[string]struct{}, error)

	// MaxSequence returns the current max integer value of table.column,
	// or 0 when the table is empty or the column is all NULL.
	MaxSequence(ctx context.Context, table, column string) (int64, error)

	// Apply upserts the unit's rows by business key inside one transaction,
	// released on every exit path. A returned error means the whole unit was
	// rolled back.
	Apply(ctx context.Context, unit UpsertUnit) (UpsertResult, error)
}

// ---- destination factories ----

type factory func(ctx context.Context, cfg Config) (Destination, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]factory{}
)

// RegisterDestination registers a backend under a kind (e.g. "postgres").
//
// Call from an init() function in a backend package. Registering the same
// kind twice panics; this is intentional to fail fast and avoid ambiguous
// backend selection.
func RegisterDestination(kind string, f factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	if kind == "" {
		panic("storage: RegisterDestination called with empty kind")
	}
	if f == nil {
		panic("storage: RegisterDestination called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: destination factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Destination using the registered backend factory.
//
// Errors:
//   - if cfg.Kind is empty or unsupported
//   - whatever error the registered factory returns
func New(ctx context.Context, cfg Config) (Destination, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing storage.kind")
	}

	factoryMu.RLock()
	f := factories[cfg.Kind]
	factoryMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
