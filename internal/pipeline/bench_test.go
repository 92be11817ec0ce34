package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"datalake/internal/ddl"
	"datalake/internal/schema"
	"datalake/internal/storage"
)

// benchInput builds n song plays over a catalog of n/4 songs, so roughly a
// quarter of the plays resolve.
func benchInput(n int) ([]play, []schema.CatalogEntry) {
	str := func(s string) schema.NullString { return schema.NullString{V: s, Valid: true} }
	num := func(v int64) schema.NullInt64 { return schema.NullInt64{V: v, Valid: true} }

	catalog := make([]schema.CatalogEntry, 0, n/4)
	for i := 0; i < n/4; i++ {
		title, artist := fmt.Sprintf("song %d", i), fmt.Sprintf("artist %d", i%97)
		songID, artistID := fmt.Sprintf("SO%08d", i), fmt.Sprintf("AR%08d", i%97)
		catalog = append(catalog, schema.CatalogEntry{Title: &title, ArtistName: &artist, SongID: &songID, ArtistID: &artistID})
	}

	base := time.Date(2018, 11, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	plays := make([]play, 0, n)
	for i := 0; i < n; i++ {
		ts := base + int64(i)*37_000
		e := schema.LogEvent{
			Page:          str(schema.PageNextSong),
			TS:            num(ts),
			UserID:        str(fmt.Sprintf("%d", i%500)),
			Level:         str("free"),
			SessionID:     num(int64(i / 20)),
			ItemInSession: num(int64(i % 20)),
			Song:          str(fmt.Sprintf("song %d", i)),
			Artist:        str(fmt.Sprintf("artist %d", i%97)),
			Location:      str("Chicago-Naperville-Elgin, IL-IN-WI"),
			UserAgent:     str("Mozilla/5.0"),
		}
		plays = append(plays, play{LogEvent: e, StartTime: schema.StartTime(ts, time.UTC)})
	}
	return plays, catalog
}

// BenchmarkBuildSongplays exercises the activity hot path: time derivation,
// the two left joins and songplay_id hashing.
//
// Run with:
//
//	go test -run=^$ -bench ^BenchmarkBuildSongplays$ -benchmem ./internal/pipeline
func BenchmarkBuildSongplays(b *testing.B) {
	plays, catalog := benchInput(10_000)
	times, err := timeRows(plays)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rows := buildSongplays(plays, catalog, times, normalizeJoinKey)
		if len(rows) != len(plays) {
			b.Fatalf("songplays=%d want %d", len(rows), len(plays))
		}
	}
}

// BenchmarkWarehouseBatches feeds songplay rows through the batch loader
// into a fake COPY function, without any database driver.
func BenchmarkWarehouseBatches(b *testing.B) {
	ctx := context.Background()
	log, _ := test.NewNullLogger()

	plays, catalog := benchInput(1_000)
	times, err := timeRows(plays)
	if err != nil {
		b.Fatal(err)
	}
	rows := buildSongplays(plays, catalog, times, identity)
	cols := ddl.TableDef{FQN: TableSongplays, Columns: songplaysDef}.Names()

	var sink int64
	copyFn := func(_ context.Context, _ []string, batch [][]any) (int64, error) {
		sink += int64(len(batch))
		return int64(len(batch)), nil
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		in := make(chan []any, 1024)
		go func() {
			defer close(in)
			for _, p := range rows {
				in <- songplayValues(p)
			}
		}()
		if _, _, err := storage.LoadBatches(ctx, log, cols, in, 256, copyFn); err != nil {
			b.Fatal(err)
		}
	}
	_ = sink
}
