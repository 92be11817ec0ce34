package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"datalake/internal/frame"
	"datalake/internal/lake"
	"datalake/internal/metrics"
	"datalake/internal/session"
)

// writeTable writes one table, records its stats on res and reports the step.
// The returned error is already marked lake.ErrTableWrite.
func writeTable[T, F any](ctx context.Context, s *session.Session, res *Result, t lake.Table[T, F], rows []T, mode lake.Mode, encode frame.EncodeFunc[T]) error {
	log := s.Log.WithFields(logrus.Fields{"stage": res.Stage, "table": t.Name})
	start := time.Now()

	wr, err := lake.Write(ctx, s.Writer, t, rows, mode)
	st := TableStats{
		Name:        t.Name,
		Mode:        mode,
		Rows:        len(rows),
		Stored:      wr.Rows,
		Partitions:  wr.Partitions,
		Files:       len(wr.Files),
		Removed:     wr.Removed,
		Attempts:    wr.Attempts,
		Fingerprint: frame.Fingerprint(rows, encode),
		Duration:    time.Since(start),
		Err:         err,
	}
	res.Tables = append(res.Tables, st)

	metrics.RecordStep(s.Job(), "write_"+t.Name, err, st.Duration)
	if err != nil {
		log.WithError(err).Errorf("write: table %s failed after %d attempt(s)", t.Name, st.Attempts)
		return err
	}
	metrics.RecordRows(s.Job(), t.Name, "written", int64(st.Rows))
	metrics.RecordFiles(s.Job(), t.Name, int64(st.Files))
	log.Debugf("write: rows=%d partitions=%d files=%d", st.Rows, st.Partitions, st.Files)
	return nil
}
