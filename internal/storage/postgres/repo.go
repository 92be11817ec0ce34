// Package postgres implements the warehouse repository on Postgres using
// pgx v5: COPY for bulk loads and parameterized DELETE for replacement.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"datalake/internal/storage"
	pgddl "datalake/internal/storage/postgres/ddl"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN string // connection string for pgxpool
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	close := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg}, close, nil
}

// CopyFrom loads rows into table with COPY.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := r.pool.CopyFrom(ctx, splitFQN(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, describe("copy", err)
	}
	return n, nil
}

// Delete removes the rows whose column value is in keys, in chunks of
// storage.DeleteChunk, or every row when keys is nil.
func (r *Repository) Delete(ctx context.Context, table, column string, keys []any) (int64, error) {
	fq := pgddl.QuoteFQN(table)
	if keys == nil {
		tag, err := r.pool.Exec(ctx, "DELETE FROM "+fq)
		if err != nil {
			return 0, describe("delete", err)
		}
		return tag.RowsAffected(), nil
	}

	var total int64
	for _, chunk := range storage.Chunks(keys, storage.DeleteChunk) {
		sql := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", fq, pgddl.QuoteIdent(column), placeholders(len(chunk)))
		tag, err := r.pool.Exec(ctx, sql, chunk...)
		if err != nil {
			return total, describe("delete", err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// Exec implements storage.Repository.Exec for Postgres.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	_, err := r.pool.Exec(ctx, sql)
	return err
}

// describe surfaces the server-side detail of a Postgres error.
func describe(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%s: %s (%s): %w", op, pgErr.Detail, pgErr.SQLState(), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// placeholders renders "$1, $2, ..., $n".
func placeholders(n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		if i > 1 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "$%d", i)
	}
	return sb.String()
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
// If no dot is present, returns {"table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
