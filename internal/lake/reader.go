package lake

import (
	"context"
	"io"
	"sort"

	"github.com/cockroachdb/errors"

	"datalake/internal/objstore"
)

// Read returns every row stored for table t, in key order of the part files.
func Read[T, F any](ctx context.Context, store objstore.Store, t Table[T, F]) ([]T, error) {
	if t.Decode == nil {
		return nil, errors.Newf("table %s: no decoder", t.Name)
	}
	keys, err := store.List(ctx, t.Name+"/")
	if err != nil {
		return nil, err
	}
	return readKeys(ctx, store, t, partFiles(keys))
}

// ReadPartitions lists the partition directories of table t with the number of
// part files in each.
func ReadPartitions[T, F any](ctx context.Context, store objstore.Store, t Table[T, F]) (map[string]int, error) {
	keys, err := store.List(ctx, t.Name+"/")
	if err != nil {
		return nil, err
	}
	out := map[string]int{}
	for _, k := range partFiles(keys) {
		values, ok := t.partitionValues(k)
		if !ok {
			continue
		}
		out[t.Dir(values)]++
	}
	return out, nil
}

func readKeys[T, F any](ctx context.Context, store objstore.Store, t Table[T, F], keys []string) ([]T, error) {
	sort.Strings(keys)
	var out []T
	for _, k := range keys {
		values, ok := t.partitionValues(k)
		if !ok {
			continue
		}
		data, err := readAll(ctx, store, k)
		if err != nil {
			return nil, err
		}
		rows, err := decodeParquet[F](data, parquetParallelism)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", k)
		}
		for _, r := range rows {
			out = append(out, t.Decode(r, values))
		}
	}
	return out, nil
}

func readAll(ctx context.Context, store objstore.Store, key string) ([]byte, error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}
	return b, nil
}
