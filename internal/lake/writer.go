package lake

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"datalake/internal/frame"
	"datalake/internal/objstore"
)

// ErrTableWrite marks a table that could not be written after all retries.
var ErrTableWrite = errors.New("table write failed")

// Writer holds the settings shared by every table write of a run.
type Writer struct {
	Store objstore.Store

	// Workers bounds concurrent partition writes.
	Workers int

	// RowGroupSize is the Parquet row group size in bytes.
	RowGroupSize int64

	// Retries is the number of extra attempts per table write.
	Retries int

	// RetryInterval is the first backoff interval. Zero means 500ms.
	RetryInterval time.Duration

	Log logrus.FieldLogger

	// newToken names the part files of one write attempt.
	newToken func() string
}

// parquetParallelism is the number of goroutines parquet-go uses per file.
const parquetParallelism = 4

// Result describes a finished table write.
type Result struct {
	Table      string
	Mode       Mode
	Rows       int // rows stored in the written partitions
	NewRows    int // rows passed to Write
	Partitions int
	Files      []string
	Removed    int // stale objects deleted
	Attempts   int
}

func (w *Writer) token() string {
	if w.newToken != nil {
		return w.newToken()
	}
	return uuid.NewString()
}

func (w *Writer) log() logrus.FieldLogger {
	if w.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		return l
	}
	return w.Log
}

// Write stores rows as table t using mode. The whole write is retried with
// exponential backoff; every attempt writes fresh part files first and only
// then removes what it replaces, so a failed attempt never loses stored rows.
// A final failure is marked with ErrTableWrite.
func Write[T, F any](ctx context.Context, w *Writer, t Table[T, F], rows []T, mode Mode) (Result, error) {
	if err := t.validate(mode); err != nil {
		return Result{}, errors.Mark(err, ErrTableWrite)
	}
	log := w.log().WithFields(logrus.Fields{"table": t.Name, "mode": string(mode)})

	interval := w.RetryInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = interval
	eb.MaxElapsedTime = 0
	retries := w.Retries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	var res Result
	attempts := 0
	op := func() error {
		attempts++
		var err error
		res, err = writeOnce(ctx, w, t, rows, mode)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		log.WithError(err).Warnf("lake: write attempt %d failed; retrying in %s", attempts, next)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return Result{Table: t.Name, Mode: mode, NewRows: len(rows), Attempts: attempts},
			errors.Mark(errors.Wrapf(err, "write table %s after %d attempt(s)", t.Name, attempts), ErrTableWrite)
	}
	res.Attempts = attempts
	log.Debugf("lake: wrote rows=%d partitions=%d files=%d removed=%d attempts=%d",
		res.Rows, res.Partitions, len(res.Files), res.Removed, attempts)
	return res, nil
}

func writeOnce[T, F any](ctx context.Context, w *Writer, t Table[T, F], rows []T, mode Mode) (Result, error) {
	res := Result{Table: t.Name, Mode: mode, NewRows: len(rows)}
	token := w.token()
	// Unpartitioned tables always form one group, so an empty table still
	// gets a file carrying the schema.
	groups := frame.PartitionBy(rows, t.partitionFunc())

	var stale []string
	if mode == ModeOverwrite {
		var err error
		if stale, err = w.Store.List(ctx, t.Name+"/"); err != nil {
			return res, err
		}
	}

	workers := w.Workers
	if workers <= 0 {
		workers = 1
	}
	files := make([]string, len(groups))
	staleByGroup := make([][]string, len(groups))
	var stored atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range groups {
		i, grp := i, groups[i]
		g.Go(func() error {
			dir := t.Dir(grp.Values)
			out := grp.Rows
			if mode == ModeMerge {
				old, err := w.Store.List(gctx, dir+"/")
				if err != nil {
					return err
				}
				existing, err := readKeys(gctx, w.Store, t, partFiles(old))
				if err != nil {
					return errors.Wrapf(err, "merge %s", dir)
				}
				out = mergeRows(t, existing, grp.Rows)
				staleByGroup[i] = old
			}

			data, err := encodeParquet(frame.Map(out, t.Encode), w.RowGroupSize, parquetParallelism)
			if err != nil {
				return errors.Wrapf(err, "encode %s", dir)
			}
			key := fmt.Sprintf("%s/part-%05d-%s.snappy.parquet", dir, i, token)
			if err := w.Store.Put(gctx, key, bytes.NewReader(data)); err != nil {
				return err
			}
			files[i] = key
			stored.Add(int64(len(out)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	for _, s := range staleByGroup {
		stale = append(stale, s...)
	}
	written := make(map[string]struct{}, len(files))
	for _, f := range files {
		written[f] = struct{}{}
	}
	var remove []string
	for _, k := range stale {
		if _, ok := written[k]; !ok && !strings.HasSuffix(k, "/"+SuccessMarker) {
			remove = append(remove, k)
		}
	}
	if err := w.Store.Delete(ctx, remove); err != nil {
		return res, err
	}
	if err := w.Store.Put(ctx, t.Name+"/"+SuccessMarker, bytes.NewReader(nil)); err != nil {
		return res, err
	}

	res.Rows = int(stored.Load())
	res.Partitions = len(groups)
	res.Files = files
	res.Removed = len(remove)
	return res, nil
}

// mergeRows replaces every stored row whose key appears among the incoming
// rows. Surviving stored rows keep their order and the incoming rows follow,
// so re-merging the same batch stores the same sequence.
func mergeRows[T, F any](t Table[T, F], existing, incoming []T) []T {
	replaced := make(map[string]struct{}, len(incoming))
	for _, r := range incoming {
		replaced[t.Key(r)] = struct{}{}
	}
	out := make([]T, 0, len(existing)+len(incoming))
	for _, r := range existing {
		if _, ok := replaced[t.Key(r)]; !ok {
			out = append(out, r)
		}
	}
	return append(out, incoming...)
}

func partFiles(keys []string) []string {
	var out []string
	for _, k := range keys {
		if strings.HasSuffix(k, ".parquet") {
			out = append(out, k)
		}
	}
	return out
}
