// Package frame is a small set of relational operators over typed slices:
// filter, project, distinct, keyed dedup, left join and partitioning.
//
// Operators never mutate their input and always return a fresh slice, so a
// frame can be shared read-only between stages. Every operator preserves the
// input order where order is defined, which keeps downstream writes
// deterministic.
package frame

import (
	"sort"
	"strconv"
	"strings"
)

// EncodeFunc writes the columns of a row that take part in equality.
type EncodeFunc[T any] func(*Encoder, T)

// Filter returns the rows for which keep returns true.
func Filter[T any](rows []T, keep func(T) bool) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Map projects every row through fn.
func Map[T, U any](rows []T, fn func(T) U) []U {
	out := make([]U, len(rows))
	for i, r := range rows {
		out[i] = fn(r)
	}
	return out
}

// Distinct removes exact duplicates, keeping the first occurrence. Rows are
// bucketed by the xxh3 hash of their canonical encoding and compared byte for
// byte inside a bucket, so hash collisions never merge distinct rows.
func Distinct[T any](rows []T, encode EncodeFunc[T]) []T {
	seen := make(map[uint64][]string, len(rows))
	out := make([]T, 0, len(rows))
	var enc Encoder
	for _, r := range rows {
		enc.Reset()
		encode(&enc, r)
		h := enc.Sum64()
		dup := false
		for _, prev := range seen[h] {
			if prev == string(enc.Bytes()) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen[h] = append(seen[h], string(enc.Bytes()))
		out = append(out, r)
	}
	return out
}

// Fingerprint is an order-independent digest of a multiset of rows: the sum
// of the rows' xxh3 hashes. Equal tables have equal fingerprints regardless
// of how rows are spread over partitions or files.
func Fingerprint[T any](rows []T, encode EncodeFunc[T]) uint64 {
	var sum uint64
	var enc Encoder
	for _, r := range rows {
		enc.Reset()
		encode(&enc, r)
		sum += enc.Sum64()
	}
	return sum
}

// FormatFingerprint renders a fingerprint for logs.
func FormatFingerprint(fp uint64) string {
	s := strconv.FormatUint(fp, 16)
	return strings.Repeat("0", 16-len(s)) + s
}

// Sort orders rows by their canonical encoding. It is used to make row order
// inside a written file independent of input file order.
func Sort[T any](rows []T, encode EncodeFunc[T]) []T {
	type keyed struct {
		key string
		row T
	}
	ks := make([]keyed, len(rows))
	var enc Encoder
	for i, r := range rows {
		enc.Reset()
		encode(&enc, r)
		ks[i] = keyed{key: string(enc.Bytes()), row: r}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].key < ks[j].key })
	out := make([]T, len(rows))
	for i, k := range ks {
		out[i] = k.row
	}
	return out
}
