package pipeline

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"datalake/internal/ddl"
	"datalake/internal/lake"
	"datalake/internal/metrics"
	"datalake/internal/schema"
	"datalake/internal/session"
	"datalake/internal/storage"
)

// StageWarehouse names the optional SQL mirror step.
const StageWarehouse = "warehouse"

// ErrWarehouseLoad marks a table that could not be mirrored.
var ErrWarehouseLoad = errors.New("warehouse load failed")

// openWarehouse is a test seam.
var openWarehouse = storage.New

// Warehouse table definitions. Dimension tables carry no primary key: their
// rows are distinct only over all columns.
var (
	songsDef = []ddl.ColumnDef{
		{Name: "song_id", Type: ddl.Text, Nullable: true},
		{Name: "title", Type: ddl.Text, Nullable: true},
		{Name: "artist_id", Type: ddl.Text, Nullable: true},
		{Name: "year", Type: ddl.BigInt, Nullable: true},
	}
	artistsDef = []ddl.ColumnDef{
		{Name: "artist_id", Type: ddl.Text, Nullable: true},
		{Name: "artist_location", Type: ddl.Text, Nullable: true},
		{Name: "artist_latitude", Type: ddl.Double, Nullable: true},
		{Name: "artist_longitude", Type: ddl.Double, Nullable: true},
	}
	usersDef = []ddl.ColumnDef{
		{Name: "user_id", Type: ddl.Text, Nullable: true},
		{Name: "first_name", Type: ddl.Text, Nullable: true},
		{Name: "last_name", Type: ddl.Text, Nullable: true},
		{Name: "gender", Type: ddl.Text, Nullable: true},
		{Name: "level", Type: ddl.Text, Nullable: true},
	}
	timeDef = []ddl.ColumnDef{
		{Name: "start_time", Type: ddl.Text, PrimaryKey: true},
		{Name: "hour", Type: ddl.BigInt},
		{Name: "day", Type: ddl.BigInt},
		{Name: "week", Type: ddl.BigInt},
		{Name: "month", Type: ddl.BigInt},
		{Name: "year", Type: ddl.BigInt},
		{Name: "weekday", Type: ddl.BigInt},
	}
	songplaysDef = []ddl.ColumnDef{
		{Name: "songplay_id", Type: ddl.Text, PrimaryKey: true},
		{Name: "event_id", Type: ddl.Text},
		{Name: "start_time", Type: ddl.Text},
		{Name: "user_id", Type: ddl.Text, Nullable: true},
		{Name: "level", Type: ddl.Text, Nullable: true},
		{Name: "song_id", Type: ddl.Text, Nullable: true},
		{Name: "artist_id", Type: ddl.Text, Nullable: true},
		{Name: "session_id", Type: ddl.BigInt, Nullable: true},
		{Name: "location", Type: ddl.Text, Nullable: true},
		{Name: "user_agent", Type: ddl.Text, Nullable: true},
		{Name: "year", Type: ddl.BigInt, Nullable: true},
		{Name: "month", Type: ddl.BigInt, Nullable: true},
	}
)

// LoadWarehouse mirrors the tables produced by the given stage results into
// the configured SQL warehouse. Dimension tables are replaced as a whole;
// songplays rows replace every stored row of the same event_id. Tables whose
// lake write failed are skipped so the warehouse never runs ahead of the lake.
//
// It is a no-op when no warehouse is configured.
func LoadWarehouse(ctx context.Context, s *session.Session, results ...Result) (Result, error) {
	start := time.Now()
	res := Result{Stage: StageWarehouse}
	w := s.Config.Warehouse
	if !w.Enabled() {
		return res, nil
	}
	log := s.Log.WithField("stage", StageWarehouse)
	done := func(err error) (Result, error) {
		res.Duration = time.Since(start)
		metrics.RecordStep(s.Job(), StageWarehouse, err, res.Duration)
		return res, err
	}

	repo, err := openWarehouse(ctx, storage.Config{Kind: w.Kind, DSN: w.DSN})
	if err != nil {
		return done(errors.Mark(errors.Wrapf(err, "open warehouse kind=%s", w.Kind), ErrWarehouseLoad))
	}
	defer repo.Close()

	opts := storage.SyncOptions{Kind: w.Kind, Job: s.Job(), AutoCreate: w.AutoCreate, BatchSize: w.BatchSize}
	var errs error
	for _, t := range warehouseTables(w.Schema, results) {
		if t.skip != nil {
			log.WithError(t.skip).Warnf("warehouse: skipping %s", t.name)
			continue
		}
		sr, err := storage.Sync(ctx, log, repo, t.Table, opts)
		mode := lake.ModeOverwrite
		if t.Key != "" {
			mode = lake.ModeMerge
		}
		st := TableStats{
			Name:     t.name,
			Mode:     mode,
			Rows:     len(t.Rows),
			Stored:   int(sr.Loaded),
			Removed:  int(sr.Deleted),
			Batches:  int(sr.Batches),
			Attempts: 1,
			Duration: sr.Duration,
		}
		metrics.RecordStep(s.Job(), StageWarehouse+"_"+t.name, err, sr.Duration)
		if err != nil {
			st.Err = errors.Mark(errors.Wrapf(err, "warehouse table %s", t.name), ErrWarehouseLoad)
			errs = errors.CombineErrors(errs, st.Err)
			log.WithError(err).Errorf("warehouse: table %s failed", t.name)
		} else {
			metrics.RecordRows(s.Job(), t.name, "mirrored", sr.Loaded)
		}
		res.Tables = append(res.Tables, st)
	}
	return done(errs)
}

// warehouseTable is a storage.Table plus its lake name and, when the lake
// write failed, the reason it is skipped.
type warehouseTable struct {
	storage.Table
	name string
	skip error
}

// warehouseTables converts stage rows into warehouse tables, in write order.
func warehouseTables(schemaName string, results []Result) []warehouseTable {
	var out []warehouseTable
	add := func(r Result, name string, cols []ddl.ColumnDef, key string, rows [][]any) {
		t := warehouseTable{
			Table: storage.Table{Def: ddl.TableDef{FQN: ddl.Qualify(schemaName, name), Columns: cols}, Rows: rows, Key: key},
			name:  name,
		}
		if st, ok := r.Table(name); ok && st.Err != nil {
			t.skip = st.Err
		}
		out = append(out, t)
	}
	for _, r := range results {
		switch r.Stage {
		case StageCatalog:
			add(r, TableSongs, songsDef, "", rowsOf(r.Rows.Songs, songValues))
			add(r, TableArtists, artistsDef, "", rowsOf(r.Rows.Artists, artistValues))
		case StageActivity:
			add(r, TableUsers, usersDef, "", rowsOf(r.Rows.Users, userValues))
			add(r, TableTime, timeDef, "", rowsOf(r.Rows.Time, timeValues))
			add(r, TableSongplays, songplaysDef, "event_id", rowsOf(r.Rows.Songplays, songplayValues))
		}
	}
	return out
}

func rowsOf[T any](rows []T, values func(T) []any) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = values(r)
	}
	return out
}

func songValues(s schema.Song) []any {
	return []any{val(s.SongID), val(s.Title), val(s.ArtistID), val(s.Year)}
}

func artistValues(a schema.Artist) []any {
	return []any{val(a.ArtistID), val(a.Location), val(a.Latitude), val(a.Longitude)}
}

func userValues(u schema.User) []any {
	return []any{val(u.UserID), val(u.FirstName), val(u.LastName), val(u.Gender), val(u.Level)}
}

func timeValues(t schema.Time) []any {
	return []any{t.StartTime, int64(t.Hour), int64(t.Day), int64(t.Week), int64(t.Month), int64(t.Year), int64(t.Weekday)}
}

func songplayValues(p schema.Songplay) []any {
	return []any{
		p.SongplayID, p.EventID, p.StartTime, val(p.UserID), val(p.Level), val(p.SongID), val(p.ArtistID),
		val(p.SessionID), val(p.Location), val(p.UserAgent), val32(p.Year), val32(p.Month),
	}
}

// val unwraps an optional value into an untyped nil or the value.
func val[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func val32(p *int32) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}
