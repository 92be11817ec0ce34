package lake

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalake/internal/objstore"
)

type play struct {
	ID     string
	User   *string
	Length *float64
	Year   *int32
	Month  *int32
}

type playFile struct {
	ID     string   `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	User   *string  `parquet:"name=user, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Length *float64 `parquet:"name=length, type=DOUBLE, repetitiontype=OPTIONAL"`
}

func strp(s string) *string   { return &s }
func f64p(v float64) *float64 { return &v }
func i32p(v int32) *int32     { return &v }

func fmtI32(v *int32) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(int(*v))
}

func parseI32(s string) *int32 {
	if s == "" {
		return nil
	}
	n, _ := strconv.Atoi(s)
	return i32p(int32(n))
}

func playTable() Table[play, playFile] {
	return Table[play, playFile]{
		Name:        "plays",
		PartitionBy: []string{"year", "month"},
		Partition:   func(p play) []string { return []string{fmtI32(p.Year), fmtI32(p.Month)} },
		Encode:      func(p play) playFile { return playFile{ID: p.ID, User: p.User, Length: p.Length} },
		Decode: func(f playFile, v []string) play {
			return play{ID: f.ID, User: f.User, Length: f.Length, Year: parseI32(v[0]), Month: parseI32(v[1])}
		},
		Key: func(p play) string { return p.ID },
	}
}

func newWriter(t *testing.T, store objstore.Store) *Writer {
	t.Helper()
	n := 0
	return &Writer{
		Store:         store,
		Workers:       3,
		Retries:       2,
		RetryInterval: 1,
		newToken: func() string {
			n++
			return "run" + strconv.Itoa(n)
		},
	}
}

func ids(rows []play) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	sort.Strings(out)
	return out
}

func samplePlays() []play {
	return []play{
		{ID: "a", User: strp("10"), Length: f64p(99.16), Year: i32p(2018), Month: i32p(11)},
		{ID: "b", User: nil, Year: i32p(2018), Month: i32p(11)},
		{ID: "c", User: strp("8"), Year: i32p(2018), Month: i32p(12)},
		{ID: "d", User: strp("8"), Year: nil, Month: nil},
	}
}

func TestEscapePartitionValue(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                   DefaultPartition,
		"2018":               "2018",
		"ARJIE2Y1187B994AB7": "ARJIE2Y1187B994AB7",
		"a/b":                "a%2Fb",
		"x=y:z":              "x%3Dy%3Az",
		"100%":               "100%25",
		"tab\there":          "tab%09here",
		"Łódź":               "Łódź",
	}
	for in, want := range tests {
		got := EscapePartitionValue(in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, in, UnescapePartitionValue(got), in)
	}
	assert.Equal(t, "50%zz", UnescapePartitionValue("50%zz"))
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode(" Merge ")
	require.NoError(t, err)
	assert.Equal(t, ModeMerge, m)
	_, err = ParseMode("upsert")
	assert.Error(t, err)
}

func TestTable_DirAndPartitionValues(t *testing.T) {
	t.Parallel()

	tb := playTable()
	assert.Equal(t, "plays/year=2018/month=11", tb.Dir([]string{"2018", "11"}))
	assert.Equal(t, "plays/year=__HIVE_DEFAULT_PARTITION__/month=__HIVE_DEFAULT_PARTITION__", tb.Dir([]string{"", ""}))

	v, ok := tb.partitionValues("plays/year=2018/month=11/part-00000-x.snappy.parquet")
	require.True(t, ok)
	assert.Equal(t, []string{"2018", "11"}, v)
	_, ok = tb.partitionValues("plays/year=2018/part-00000-x.snappy.parquet")
	assert.False(t, ok)
	_, ok = tb.partitionValues("other/year=2018/month=1/p.parquet")
	assert.False(t, ok)
}

func TestWrite_OverwriteLayoutAndReadBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := objstore.NewLocal(t.TempDir())
	w := newWriter(t, store)
	tb := playTable()

	res, err := Write(ctx, w, tb, samplePlays(), ModeOverwrite)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Partitions)
	assert.Equal(t, 4, res.Rows)
	assert.Equal(t, 1, res.Attempts)

	keys, err := store.List(ctx, "plays/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"plays/_SUCCESS",
		"plays/year=2018/month=11/part-00001-run1.snappy.parquet",
		"plays/year=2018/month=12/part-00002-run1.snappy.parquet",
		"plays/year=__HIVE_DEFAULT_PARTITION__/month=__HIVE_DEFAULT_PARTITION__/part-00000-run1.snappy.parquet",
	}, keys)

	got, err := Read(ctx, store, tb)
	require.NoError(t, err)
	require.Len(t, got, 4)
	byID := map[string]play{}
	for _, p := range got {
		byID[p.ID] = p
	}
	assert.Equal(t, "10", *byID["a"].User)
	assert.InDelta(t, 99.16, *byID["a"].Length, 1e-9)
	assert.Nil(t, byID["b"].User)
	assert.Nil(t, byID["b"].Length)
	assert.Equal(t, int32(12), *byID["c"].Month)
	assert.Nil(t, byID["d"].Year)

	// Overwrite with fewer rows removes the old partitions entirely.
	_, err = Write(ctx, w, tb, samplePlays()[:1], ModeOverwrite)
	require.NoError(t, err)
	parts, err := ReadPartitions(ctx, store, tb)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"plays/year=2018/month=11": 1}, parts)
	got, err = Read(ctx, store, tb)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(got))
}

func TestWrite_OverwriteIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := objstore.NewLocal(t.TempDir())
	w := newWriter(t, store)
	tb := playTable()

	_, err := Write(ctx, w, tb, samplePlays(), ModeOverwrite)
	require.NoError(t, err)
	first, err := Read(ctx, store, tb)
	require.NoError(t, err)

	_, err = Write(ctx, w, tb, samplePlays(), ModeOverwrite)
	require.NoError(t, err)
	second, err := Read(ctx, store, tb)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	keys, err := store.List(ctx, "plays/")
	require.NoError(t, err)
	assert.Len(t, keys, 4)
}

func TestWrite_MergeNeverDuplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := objstore.NewLocal(t.TempDir())
	w := newWriter(t, store)
	tb := playTable()

	_, err := Write(ctx, w, tb, samplePlays()[:3], ModeMerge)
	require.NoError(t, err)

	// Overlapping batch: "a" again with a new value, "e" new in 2018-11.
	batch := []play{
		{ID: "a", User: strp("99"), Year: i32p(2018), Month: i32p(11)},
		{ID: "e", User: strp("7"), Year: i32p(2018), Month: i32p(11)},
	}
	res, err := Write(ctx, w, tb, batch, ModeMerge)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Partitions)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 1, res.Removed)

	got, err := Read(ctx, store, tb)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "e"}, ids(got))
	for _, p := range got {
		if p.ID == "a" {
			assert.Equal(t, "99", *p.User)
		}
	}

	// Re-running the same batch changes nothing.
	_, err = Write(ctx, w, tb, batch, ModeMerge)
	require.NoError(t, err)
	again, err := Read(ctx, store, tb)
	require.NoError(t, err)
	assert.Equal(t, ids(got), ids(again))
}

func TestWrite_MergeReplacesWholeKeyGroup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := objstore.NewLocal(t.TempDir())
	w := newWriter(t, store)
	tb := playTable()
	tb.Key = func(p play) string { return *p.User }

	stored := []play{
		{ID: "a", User: strp("1"), Year: i32p(2018), Month: i32p(11)},
		{ID: "b", User: strp("1"), Year: i32p(2018), Month: i32p(11)},
		{ID: "c", User: strp("2"), Year: i32p(2018), Month: i32p(11)},
	}
	_, err := Write(ctx, w, tb, stored, ModeMerge)
	require.NoError(t, err)

	// One incoming row for user 1 replaces both stored rows of that user.
	res, err := Write(ctx, w, tb, []play{{ID: "d", User: strp("1"), Year: i32p(2018), Month: i32p(11)}}, ModeMerge)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)

	got, err := Read(ctx, store, tb)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, ids(got))
}

func TestWrite_AppendAddsFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := objstore.NewLocal(t.TempDir())
	w := newWriter(t, store)
	tb := playTable()

	for i := 0; i < 2; i++ {
		_, err := Write(ctx, w, tb, samplePlays()[:1], ModeAppend)
		require.NoError(t, err)
	}
	got, err := Read(ctx, store, tb)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a"}, ids(got))
}

func TestWrite_UnpartitionedEmptyTableHasSchemaFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := objstore.NewLocal(t.TempDir())
	w := newWriter(t, store)
	tb := playTable()
	tb.Name = "flat"
	tb.PartitionBy = nil

	res, err := Write(ctx, w, tb, nil, ModeOverwrite)
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.True(t, strings.HasPrefix(res.Files[0], "flat/part-00000-"))

	got, err := Read(ctx, store, tb)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWrite_InvalidTable(t *testing.T) {
	t.Parallel()

	tb := playTable()
	tb.Key = nil
	_, err := Write(context.Background(), newWriter(t, objstore.NewLocal(t.TempDir())), tb, nil, ModeMerge)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTableWrite))
}

// flakyStore fails the first n Puts.
type flakyStore struct {
	objstore.Store
	failures atomic.Int32
}

func (f *flakyStore) Put(ctx context.Context, key string, r io.Reader) error {
	if f.failures.Add(-1) >= 0 {
		return errors.New("injected put failure")
	}
	return f.Store.Put(ctx, key, r)
}

func TestWrite_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := &flakyStore{Store: objstore.NewLocal(t.TempDir())}
	store.failures.Store(1)
	w := newWriter(t, store)
	w.Workers = 1

	res, err := Write(ctx, w, playTable(), samplePlays(), ModeOverwrite)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)

	got, err := Read(ctx, store, playTable())
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestWrite_GivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	store := &flakyStore{Store: objstore.NewLocal(t.TempDir())}
	store.failures.Store(1 << 20)
	w := newWriter(t, store)

	res, err := Write(context.Background(), w, playTable(), samplePlays(), ModeOverwrite)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTableWrite))
	assert.Equal(t, 3, res.Attempts)
}

func TestWrite_FailedOverwriteKeepsPreviousTable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := &flakyStore{Store: objstore.NewLocal(t.TempDir())}
	w := newWriter(t, store)
	_, err := Write(ctx, w, playTable(), samplePlays(), ModeOverwrite)
	require.NoError(t, err)

	store.failures.Store(1 << 20)
	_, err = Write(ctx, w, playTable(), samplePlays()[:1], ModeOverwrite)
	require.Error(t, err)

	got, err := Read(ctx, store, playTable())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(got), "stale files are only removed after the new ones land")
}
