package storage

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"datalake/internal/ddl"
)

// DDLBootstrapper renders def in a backend's dialect and applies it through
// repo.Exec. It must be idempotent (CREATE TABLE IF NOT EXISTS or an
// equivalent guard).
type DDLBootstrapper func(ctx context.Context, repo Repository, def ddl.TableDef) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the DDLBootstrapper for kind. It is
// typically called from backend packages' init() functions.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureTable creates def through the bootstrapper registered for kind.
func EnsureTable(ctx context.Context, kind string, repo Repository, def ddl.TableDef) error {
	ddlMu.RLock()
	fn, ok := ddlFns[kind]
	ddlMu.RUnlock()
	if !ok {
		return errors.Newf("no DDL bootstrapper registered for storage.kind=%q", kind)
	}
	if err := def.Validate(); err != nil {
		return err
	}
	return errors.Wrapf(fn(ctx, repo, def), "create table %s", def.FQN)
}
