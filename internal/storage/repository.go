// Package storage defines the warehouse repository contract, the backend
// registry, and the backend-agnostic table sync used to mirror the lake tables
// into a SQL database.
//
// Backends (postgres, mssql, sqlite) register a Factory and a DDL bootstrapper
// at init time; callers import datalake/internal/storage/all and select the
// backend by kind.
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// Config selects and configures a backend.
type Config struct {
	Kind string // "postgres", "mssql", "sqlite"
	DSN  string
}

// Repository is the minimal surface the table sync needs from a backend.
type Repository interface {
	// CopyFrom bulk-inserts rows (aligned to columns) into table and returns
	// the number of rows inserted.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// Delete removes the rows of table whose column value is one of keys. A nil
	// keys slice removes every row. It returns the number of rows removed.
	Delete(ctx context.Context, table, column string, keys []any) (int64, error)

	// Exec runs a statement without arguments, typically DDL.
	Exec(ctx context.Context, sql string) error

	Close()
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// New opens a Repository through the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, errors.Newf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted. The slice is a copy.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DeleteChunk bounds the number of keys per DELETE statement. SQL Server
// accepts at most 2100 parameters per request.
const DeleteChunk = 500

// Chunks splits keys into consecutive slices of at most n elements.
func Chunks(keys []any, n int) [][]any {
	if n <= 0 {
		n = DeleteChunk
	}
	out := make([][]any, 0, (len(keys)+n-1)/n)
	for len(keys) > 0 {
		m := min(n, len(keys))
		out = append(out, keys[:m:m])
		keys = keys[m:]
	}
	return out
}
