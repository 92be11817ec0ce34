package frame

import "sort"

// Dedup policies for DedupBy.
const (
	KeepFirst = "keep-first"
	KeepLast  = "keep-last"
)

// DedupBy collapses rows sharing a business key and keeps one winner per key.
//
//   - "keep-first": keep the earliest occurrence
//   - "keep-last" : keep the latest occurrence (default)
//
// Rows for which key reports ok=false cannot be keyed; they pass through and
// are appended after the winners in their original order. Winners are
// returned in the order of their position in the input.
func DedupBy[T any](rows []T, key func(T) (string, bool), policy string) []T {
	if len(rows) == 0 {
		return nil
	}
	if policy == "" {
		policy = KeepLast
	}

	winners := make(map[string]int, len(rows))
	var passthrough []int
	for i, r := range rows {
		k, ok := key(r)
		if !ok {
			passthrough = append(passthrough, i)
			continue
		}
		if _, exists := winners[k]; exists && policy == KeepFirst {
			continue
		}
		winners[k] = i
	}

	idx := make([]int, 0, len(winners))
	for _, i := range winners {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := make([]T, 0, len(idx)+len(passthrough))
	for _, i := range idx {
		out = append(out, rows[i])
	}
	for _, i := range passthrough {
		out = append(out, rows[i])
	}
	return out
}
