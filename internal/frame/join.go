package frame

// Joined is one output row of LeftJoin. Right is the zero value when Matched
// is false.
type Joined[L, R any] struct {
	Left    L
	Right   R
	Matched bool
}

// LeftJoin is an equi hash join that keeps every left row. A left row with
// several matching right rows yields one output row per match, in right
// input order. Rows whose key function reports ok=false (a null key
// component) never match, mirroring SQL null semantics.
func LeftJoin[L, R any, K comparable](left []L, right []R, leftKey func(L) (K, bool), rightKey func(R) (K, bool)) []Joined[L, R] {
	index := make(map[K][]int, len(right))
	for i, r := range right {
		k, ok := rightKey(r)
		if !ok {
			continue
		}
		index[k] = append(index[k], i)
	}

	out := make([]Joined[L, R], 0, len(left))
	for _, l := range left {
		k, ok := leftKey(l)
		var matches []int
		if ok {
			matches = index[k]
		}
		if len(matches) == 0 {
			out = append(out, Joined[L, R]{Left: l})
			continue
		}
		for _, i := range matches {
			out = append(out, Joined[L, R]{Left: l, Right: right[i], Matched: true})
		}
	}
	return out
}
