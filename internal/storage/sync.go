package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"datalake/internal/ddl"
	"datalake/internal/metrics"
)

// DefaultBatchSize is used when SyncOptions.BatchSize is not positive.
const DefaultBatchSize = 10000

// Table is one table to mirror: its definition and its rows, aligned to
// Def.Columns.
type Table struct {
	Def  ddl.TableDef
	Rows [][]any

	// Key names the column that groups rows. When set, every stored row whose
	// key appears in Rows is replaced and the others are kept; when empty, the
	// table content is replaced as a whole.
	Key string
}

// SyncOptions controls one Sync call.
type SyncOptions struct {
	Kind       string // backend kind, for DDL
	Job        string // metrics grouping
	AutoCreate bool
	BatchSize  int
}

// SyncResult reports what Sync did to one table.
type SyncResult struct {
	Table    string
	Deleted  int64
	Loaded   int64
	Batches  int64
	Duration time.Duration
}

// Sync mirrors t into repo: optionally creates the table, deletes the rows it
// replaces, then bulk-loads t.Rows in batches.
//
// The delete and the load are separate statements; a failed load leaves the
// table without the replaced rows until the next successful sync.
func Sync(ctx context.Context, log logrus.FieldLogger, repo Repository, t Table, opts SyncOptions) (SyncResult, error) {
	start := time.Now()
	res := SyncResult{Table: t.Def.FQN}
	log = log.WithField("table", t.Def.FQN)

	if err := t.Def.Validate(); err != nil {
		return res, err
	}
	if opts.AutoCreate {
		if err := EnsureTable(ctx, opts.Kind, repo, t.Def); err != nil {
			return res, err
		}
	}

	var keys []any
	if t.Key != "" {
		idx := t.Def.Index(t.Key)
		if idx < 0 {
			return res, errors.Newf("key column %s not in table %s", t.Key, t.Def.FQN)
		}
		seen := make(map[any]struct{}, len(t.Rows))
		keys = make([]any, 0, len(t.Rows))
		for _, r := range t.Rows {
			if _, dup := seen[r[idx]]; dup {
				continue
			}
			seen[r[idx]] = struct{}{}
			keys = append(keys, r[idx])
		}
		if len(keys) == 0 {
			keys = nil
		}
	}
	if t.Key == "" || keys != nil {
		n, err := repo.Delete(ctx, t.Def.FQN, t.Key, keys)
		res.Deleted = n
		if err != nil {
			return res, errors.Wrapf(err, "delete from %s", t.Def.FQN)
		}
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	columns := t.Def.Names()
	in := make(chan []any, batchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(in)
		for _, r := range t.Rows {
			select {
			case in <- r:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		res.Loaded, res.Batches, err = LoadBatches(gctx, log, columns, in, batchSize,
			func(ctx context.Context, cols []string, rows [][]any) (int64, error) {
				return repo.CopyFrom(ctx, t.Def.FQN, cols, rows)
			})
		return err
	})
	err := g.Wait()
	res.Duration = time.Since(start)
	metrics.RecordBatches(opts.Job, t.Def.FQN, res.Batches)
	if err != nil {
		return res, errors.Wrapf(err, "load %s", t.Def.FQN)
	}
	log.Debugf("sync: deleted=%d loaded=%d batches=%d", res.Deleted, res.Loaded, res.Batches)
	return res, nil
}
