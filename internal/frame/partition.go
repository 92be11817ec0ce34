package frame

import (
	"sort"
	"strings"
)

// Group is the set of rows sharing one combination of partition values.
type Group[T any] struct {
	// Values holds one raw value per partition column. The empty string
	// stands for null.
	Values []string
	Rows   []T
}

// Key joins the values into a single comparable string.
func (g Group[T]) Key() string { return strings.Join(g.Values, "\x1f") }

// PartitionBy groups rows by the values returned from values. Groups are
// ordered by their values (column by column, lexically) and rows keep their
// input order inside a group. A nil values function yields a single group
// holding every row.
func PartitionBy[T any](rows []T, values func(T) []string) []Group[T] {
	if values == nil {
		return []Group[T]{{Rows: append([]T(nil), rows...)}}
	}
	byKey := map[string]*Group[T]{}
	var order []*Group[T]
	for _, r := range rows {
		vs := values(r)
		k := strings.Join(vs, "\x1f")
		g, ok := byKey[k]
		if !ok {
			g = &Group[T]{Values: vs}
			byKey[k] = g
			order = append(order, g)
		}
		g.Rows = append(g.Rows, r)
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i].Values, order[j].Values
		for c := 0; c < len(a) && c < len(b); c++ {
			if a[c] != b[c] {
				return a[c] < b[c]
			}
		}
		return len(a) < len(b)
	})
	out := make([]Group[T], len(order))
	for i, g := range order {
		out[i] = *g
	}
	return out
}
