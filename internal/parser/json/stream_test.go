package json

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parseErr struct {
	ordinal int
	err     error
}

func collect(t *testing.T, in string) ([]Object, []parseErr, error) {
	t.Helper()
	var objs []Object
	var errs []parseErr
	err := StreamObjects(context.Background(), strings.NewReader(in),
		func(o Object) error {
			objs = append(objs, o)
			return nil
		},
		func(n int, err error) { errs = append(errs, parseErr{n, err}) })
	return objs, errs, err
}

func TestStreamObjects_Shapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single object", `{"song_id":"SOABC"}`, []string{`{"song_id":"SOABC"}`}},
		{"ndjson", "{\"ts\":1}\n{\"ts\":2}\n\n{\"ts\":3}\n", []string{`{"ts":1}`, `{"ts":2}`, `{"ts":3}`}},
		{"root array", `[{"a":1}, {"a":2}]`, []string{`{"a":1}`, `{"a":2}`}},
		{"array then object", `[{"a":1}] {"a":2}`, []string{`{"a":1}`, `{"a":2}`}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			objs, errs, err := collect(t, tc.in)
			require.NoError(t, err)
			assert.Empty(t, errs)
			var got []string
			for i, o := range objs {
				assert.Equal(t, i+1, o.Ordinal)
				got = append(got, string(o.Raw))
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStreamObjects_NonObjectsAreReportedAndSkipped(t *testing.T) {
	t.Parallel()

	objs, errs, err := collect(t, "{\"id\":1}\n42\n\"x\"\n{\"id\":2}\n")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, 4, objs[1].Ordinal)
	require.Len(t, errs, 2)
	assert.Equal(t, 2, errs[0].ordinal)
	assert.Equal(t, 3, errs[1].ordinal)
}

func TestStreamObjects_BadLineIsSkipped(t *testing.T) {
	t.Parallel()

	objs, errs, err := collect(t, "{\"id\":1}\n{\"page\":\"NextSong\",\"ts\":\n{\"id\":2}\n{\"id\": 3} trailing\n")
	require.NoError(t, err)
	require.Len(t, objs, 3)
	assert.Equal(t, `{"id":1}`, string(objs[0].Raw))
	assert.Equal(t, `{"id":2}`, string(objs[1].Raw))
	assert.Equal(t, 3, objs[1].Ordinal)
	assert.Equal(t, `{"id": 3}`, string(objs[2].Raw))

	require.Len(t, errs, 2)
	assert.Equal(t, 2, errs[0].ordinal)
	assert.True(t, errors.Is(errs[0].err, ErrSyntax))
	assert.Contains(t, errs[0].err.Error(), "line 2")
	assert.True(t, errors.Is(errs[1].err, ErrSyntax))
}

func TestStreamObjects_MultiLineDocuments(t *testing.T) {
	t.Parallel()

	pretty := "{\n  \"song_id\": \"SOABC\",\n  \"year\": 0\n}\n"
	objs, errs, err := collect(t, pretty)
	require.NoError(t, err)
	assert.Empty(t, errs)
	require.Len(t, objs, 1)

	// Without line boundaries to fall back on, a syntax error ends the stream.
	objs, errs, err = collect(t, "[\n  {\"id\":1},\n  {\"id\": \n]\n")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyntax))
	assert.Empty(t, objs)
	require.Len(t, errs, 1)
}

func TestStreamObjects_EmitErrorIsReturned(t *testing.T) {
	t.Parallel()

	stop := errors.New("stop")
	n := 0
	err := StreamObjects(context.Background(), strings.NewReader(`{"a":1}{"a":2}{"a":3}`),
		func(Object) error {
			n++
			if n == 2 {
				return stop
			}
			return nil
		}, nil)
	assert.True(t, errors.Is(err, stop))
	assert.Equal(t, 2, n)
}

func TestStreamObjects_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := StreamObjects(ctx, strings.NewReader(`{"a":1}`), func(Object) error { return nil }, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeAll(t *testing.T) {
	t.Parallel()

	got, err := DecodeAll(strings.NewReader(`[{"a":1},{"a":2}]`))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = DecodeAll(strings.NewReader(`[{"a":1}, 7]`))
	assert.Error(t, err)
}
