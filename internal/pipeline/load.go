package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"datalake/internal/config"
	"datalake/internal/metrics"
	"datalake/internal/objstore"
	jsonstream "datalake/internal/parser/json"
	"datalake/internal/session"
)

// loader reads one input: every file matching a glob under the session's
// input store, decoded into records of type T.
type loader[T any] struct {
	name    string
	pattern string
	// check rejects records that decoded but cannot be used.
	check func(T) error
}

// load reads the files concurrently (bounded by runtime.read_workers) and
// returns the records in key order, then object order, so the result does
// not depend on scheduling.
//
// Malformed records follow runtime.malformed_policy: "skip" counts them and
// keeps a few samples, "abort" fails the load on the first one. In
// line-delimited files every bad line is one malformed record and reading
// goes on; in other files a syntax error loses the rest of the file.
func (l loader[T]) load(ctx context.Context, s *session.Session) ([]T, InputStats, error) {
	log := s.Log.WithField("input", l.name)
	stats := InputStats{Name: l.name}

	keys, err := s.Input.Glob(ctx, l.pattern)
	if err != nil {
		return nil, stats, errors.Wrapf(err, "list %s", l.pattern)
	}
	stats.Files = len(keys)
	if len(keys) == 0 {
		log.Warnf("load: no files match %q under %s", l.pattern, s.Input.URL())
	}

	workers := pickInt(s.Config.Runtime.ReadWorkers, getenvInt("DATALAKE_READ_WORKERS", config.DefaultReadWorkers))
	abort := s.Config.Runtime.MalformedPolicy == config.PolicyAbort
	log.Debugf("load: pattern=%q files=%d workers=%d policy=%s", l.pattern, len(keys), workers, s.Config.Runtime.MalformedPolicy)

	var c counters
	agg := newErrAgg(sampleLimit)
	perFile := make([][]T, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			rows, err := l.readFile(gctx, s.Input, key, abort, agg, &c)
			perFile[i] = rows
			return err
		})
	}
	err = g.Wait()

	stats.Read = c.read.Load()
	stats.Malformed = c.malformed.Load()
	stats.Samples = agg.samples()
	metrics.RecordRows(s.Job(), l.name, "read", stats.Read)
	metrics.RecordRows(s.Job(), l.name, "malformed", stats.Malformed)
	if err != nil {
		return nil, stats, errors.Wrapf(err, "load %s", l.name)
	}

	out := make([]T, 0, stats.Read)
	for _, rows := range perFile {
		out = append(out, rows...)
	}
	if stats.Malformed > 0 {
		log.Warnf("load: skipped %d malformed record(s)", stats.Malformed)
	}
	return out, stats, nil
}

func (l loader[T]) readFile(ctx context.Context, store objstore.Store, key string, abort bool, agg *errAgg, c *counters) ([]T, error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", key)
	}
	defer rc.Close()

	malformed := func(ordinal int, err error) error {
		c.malformed.Add(1)
		agg.add(fmt.Sprintf("%s#%d: %v", key, ordinal, err))
		if abort {
			return errors.Mark(errors.Wrapf(err, "%s record %d", key, ordinal), ErrMalformedRecord)
		}
		return nil
	}

	var rows []T
	var parseErr error
	emit := func(o jsonstream.Object) error {
		var rec T
		if err := json.Unmarshal(o.Raw, &rec); err != nil {
			return malformed(o.Ordinal, err)
		}
		if l.check != nil {
			if err := l.check(rec); err != nil {
				return malformed(o.Ordinal, err)
			}
		}
		c.read.Add(1)
		rows = append(rows, rec)
		return nil
	}
	onParseErr := func(ordinal int, err error) {
		if e := malformed(ordinal, err); e != nil && parseErr == nil {
			parseErr = e
		}
	}

	err = jsonstream.StreamObjects(ctx, rc, emit, onParseErr)
	if parseErr != nil {
		return nil, parseErr
	}
	if err != nil && !errors.Is(err, jsonstream.ErrSyntax) {
		return nil, err
	}
	return rows, nil
}
