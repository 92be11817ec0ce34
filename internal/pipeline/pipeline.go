// Package pipeline implements the two transformation stages of the job.
//
// The catalog stage reads the song-metadata files and writes the songs and
// artists tables. The activity stage reads the event logs, keeps the
// NextSong events, and writes the user, time and songplays tables; it
// re-reads the song metadata on its own for the songplays join, so it can run
// without the catalog stage.
//
// Each stage is a linear sequence of frame operations followed by one lake
// write per table. Table writes are independent: a failed table does not stop
// the others, and the stage returns the combined error.
//
// LoadWarehouse optionally mirrors the rows of both stages into a SQL
// database through the storage backends.
package pipeline

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"datalake/internal/frame"
	"datalake/internal/lake"
	"datalake/internal/schema"
)

// Stage names, used for logs and metrics.
const (
	StageCatalog  = "catalog"
	StageActivity = "activity"
)

// Input names, used as the "table" label of read counters.
const (
	inputSongData = "song_data"
	inputLogData  = "log_data"
)

// ErrMalformedRecord marks records that could not be decoded or lack a
// required field.
var ErrMalformedRecord = errors.New("malformed record")

// sampleLimit is how many malformed-record messages are kept per input.
const sampleLimit = 3

// InputStats describes one input read.
type InputStats struct {
	Name      string
	Files     int
	Read      int64 // records decoded successfully
	Malformed int64
	// Samples holds the first few malformed-record messages.
	Samples []string
}

// TableStats describes one table write.
type TableStats struct {
	Name       string
	Mode       lake.Mode
	Rows       int // rows handed to the write
	Stored     int // rows in the written partitions after a merge
	Partitions int
	Files      int
	Removed    int
	Attempts   int
	Batches    int // warehouse loads only
	// Fingerprint is an order-independent digest of Rows.
	Fingerprint uint64
	Duration    time.Duration
	Err         error
}

// Tables carries the rows a stage produced, for the warehouse mirror.
type Tables struct {
	Songs     []schema.Song
	Artists   []schema.Artist
	Users     []schema.User
	Time      []schema.Time
	Songplays []schema.Songplay
}

// Result is the outcome of one stage.
type Result struct {
	Stage  string
	Inputs []InputStats

	// Filtered counts events dropped by the NextSong filter.
	Filtered int
	// Unmatched counts songplays without a catalog match.
	Unmatched int

	Tables   []TableStats
	Rows     Tables
	Duration time.Duration
}

// Table returns the stats of the named table.
func (r Result) Table(name string) (TableStats, bool) {
	for _, t := range r.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableStats{}, false
}

// Failed lists the tables whose write failed.
func (r Result) Failed() []string {
	var out []string
	for _, t := range r.Tables {
		if t.Err != nil {
			out = append(out, t.Name)
		}
	}
	return out
}

// counters holds cross-goroutine statistics for one input read.
type counters struct {
	read      atomic.Int64
	malformed atomic.Int64
}

// errAgg keeps the first malformed-record messages of an input.
type errAgg struct {
	mu    sync.Mutex
	limit int
	first []string
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.first) < a.limit {
		a.first = append(a.first, msg)
	}
}

func (a *errAgg) samples() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.first...)
}

// LogSummary prints the per-input and per-table lines of a stage result.
func LogSummary(log logrus.FieldLogger, r Result) {
	log = log.WithField("stage", r.Stage)
	for _, in := range r.Inputs {
		log.Infof("input %s: files=%d read=%d malformed=%d", in.Name, in.Files, in.Read, in.Malformed)
		for i, s := range in.Samples {
			log.Warnf("  #%03d: %s", i+1, s)
		}
	}
	for _, t := range r.Tables {
		status := "ok"
		if t.Err != nil {
			status = "failed"
		}
		if r.Stage == StageWarehouse {
			log.Infof("warehouse %s: status=%s mode=%s rows=%d loaded=%d deleted=%d batches=%d elapsed=%s",
				t.Name, status, t.Mode, t.Rows, t.Stored, t.Removed, t.Batches, t.Duration.Truncate(time.Millisecond))
			continue
		}
		log.Infof("table %s: status=%s mode=%s rows=%d stored=%d partitions=%d files=%d removed=%d attempts=%d fingerprint=%s elapsed=%s",
			t.Name, status, t.Mode, t.Rows, t.Stored, t.Partitions, t.Files, t.Removed, t.Attempts,
			frame.FormatFingerprint(t.Fingerprint), t.Duration.Truncate(time.Millisecond))
	}
	if r.Stage == StageActivity {
		log.Infof("activity: filtered=%d unmatched=%d", r.Filtered, r.Unmatched)
	}
}

// LogGlobalSummary prints one key=value line over all stage results.
func LogGlobalSummary(log logrus.FieldLogger, results ...Result) {
	var files int
	var read, malformed int64
	var written, mirrored, failed int
	var elapsed time.Duration
	for _, r := range results {
		for _, in := range r.Inputs {
			files += in.Files
			read += in.Read
			malformed += in.Malformed
		}
		for _, t := range r.Tables {
			switch {
			case t.Err != nil:
				failed++
			case r.Stage == StageWarehouse:
				mirrored += t.Stored
			default:
				written += t.Rows
			}
		}
		elapsed += r.Duration
	}
	log.Infof("summary: files=%d read=%d malformed=%d rows_written=%d rows_mirrored=%d tables_failed=%d elapsed=%s",
		files, read, malformed, written, mirrored, failed, elapsed.Truncate(time.Millisecond))
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
