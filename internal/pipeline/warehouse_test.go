package pipeline

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalake/internal/config"
	"datalake/internal/lake"
	"datalake/internal/schema"
	_ "datalake/internal/storage/sqlite"
)

func countTable(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "`+table+`"`).Scan(&n))
	return n
}

func TestLoadWarehouse_SQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "warehouse.db")
	s := fixture(t, func(p *config.Pipeline) {
		p.Warehouse = config.Warehouse{Kind: "sqlite", DSN: "file:" + path, AutoCreate: true, BatchSize: 1}
	})

	catalog, err := ProcessSongData(ctx, s)
	require.NoError(t, err)
	activity, err := ProcessLogData(ctx, s)
	require.NoError(t, err)

	for run := 0; run < 2; run++ {
		res, err := LoadWarehouse(ctx, s, catalog, activity)
		require.NoError(t, err, "run %d", run+1)
		require.Len(t, res.Tables, len(TableNames))
		plays, ok := res.Table(TableSongplays)
		require.True(t, ok)
		assert.Equal(t, lake.ModeMerge, plays.Mode)
		assert.Equal(t, len(activity.Rows.Songplays), plays.Stored)
		assert.Equal(t, len(activity.Rows.Songplays), plays.Batches)
	}

	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, len(catalog.Rows.Songs), countTable(t, db, "songs"))
	assert.Equal(t, len(catalog.Rows.Artists), countTable(t, db, "artists"))
	assert.Equal(t, 2, countTable(t, db, "user"))
	assert.Equal(t, 2, countTable(t, db, "time"))
	assert.Equal(t, 2, countTable(t, db, "songplays"), "a second load replaces rows by event_id")

	var songID sql.NullString
	var weekday int64
	require.NoError(t, db.QueryRow(`SELECT sp.song_id, t.weekday FROM songplays sp JOIN time t ON t.start_time = sp.start_time WHERE sp.user_id = '15'`).
		Scan(&songID, &weekday))
	assert.Equal(t, "SOZCTXZ12AB0182364", songID.String)
	assert.Equal(t, int64(4), weekday)

	require.NoError(t, db.QueryRow(`SELECT song_id FROM songplays WHERE user_id = '8'`).Scan(&songID))
	assert.False(t, songID.Valid, "unmatched plays keep a null song_id")
}

func TestLoadWarehouse_DisabledIsNoop(t *testing.T) {
	t.Parallel()
	s := fixture(t, nil)

	res, err := LoadWarehouse(context.Background(), s, Result{Stage: StageCatalog})
	require.NoError(t, err)
	assert.Empty(t, res.Tables)
}

func TestLoadWarehouse_OpenFailure(t *testing.T) {
	t.Parallel()
	s := fixture(t, func(p *config.Pipeline) {
		p.Warehouse = config.Warehouse{Kind: "sqlite", DSN: "file:" + filepath.Join(t.TempDir(), "w.db")}
	})
	s.Config.Warehouse.Kind = "nope"

	_, err := LoadWarehouse(context.Background(), s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWarehouseLoad))
	assert.Contains(t, err.Error(), "unsupported storage.kind=nope")
}

func TestWarehouseTables_SkipsFailedLakeWrites(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	r := Result{
		Stage:  StageCatalog,
		Tables: []TableStats{{Name: TableSongs, Err: boom}, {Name: TableArtists}},
	}

	tables := warehouseTables("dbo", []Result{r})
	require.Len(t, tables, 2)
	assert.Equal(t, "dbo.songs", tables[0].Def.FQN)
	assert.ErrorIs(t, tables[0].skip, boom)
	assert.NoError(t, tables[1].skip)
	assert.Empty(t, tables[1].Key)
}

func TestSongplayValues_NullsAndWidening(t *testing.T) {
	t.Parallel()

	y, m := int32(2018), int32(11)
	v := songplayValues(schema.Songplay{SongplayID: "id", EventID: "ev", StartTime: "2018-11-01 20:57:10", Year: &y, Month: &m})
	require.Len(t, v, len(songplaysDef))
	assert.Equal(t, "id", v[0])
	assert.Equal(t, "ev", v[1])
	assert.Nil(t, v[5], "song_id")
	assert.Equal(t, int64(2018), v[10])
	assert.Equal(t, int64(11), v[11])
}
