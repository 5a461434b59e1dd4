package marks

import "sort"

// span is an inclusive range of positions
type span struct {
	start, end int64
}

// spanSet is an ordered set of disjoint spans. Touching spans are merged.
type spanSet []span

// add covers [a, b] and returns the set with the parts that were not covered
// before.
func (s spanSet) add(a, b int64) (spanSet, []span) {
	var added []span
	out := make(spanSet, 0, len(s)+1)

	i := 0
	for ; i < len(s) && s[i].end < a-1; i++ {
		out = append(out, s[i])
	}

	merged := span{a, b}
	cur := a
	for ; i < len(s) && s[i].start <= b+1; i++ {
		if s[i].start > cur {
			added = append(added, span{cur, min(s[i].start-1, b)})
		}
		cur = max(cur, s[i].end+1)
		merged.start = min(merged.start, s[i].start)
		merged.end = max(merged.end, s[i].end)
	}
	if cur <= b {
		added = append(added, span{cur, b})
	}

	out = append(out, merged)
	out = append(out, s[i:]...)
	return out, added
}

// remove uncovers [a, b] and returns the set with the parts that were
// covered.
func (s spanSet) remove(a, b int64) (spanSet, []span) {
	var removed []span
	out := make(spanSet, 0, len(s)+1)
	for _, sp := range s {
		if sp.end < a || sp.start > b {
			out = append(out, sp)
			continue
		}
		if sp.start < a {
			out = append(out, span{sp.start, a - 1})
		}
		removed = append(removed, span{max(sp.start, a), min(sp.end, b)})
		if sp.end > b {
			out = append(out, span{b + 1, sp.end})
		}
	}
	return out, removed
}

func (s spanSet) contains(p int64) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i].end >= p })
	return i < len(s) && s[i].start <= p
}

// after returns the first covered position greater than p.
func (s spanSet) after(p int64) (int64, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].end > p })
	if i == len(s) {
		return 0, false
	}
	return max(s[i].start, p+1), true
}

// before returns the last covered position less than p.
func (s spanSet) before(p int64) (int64, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].start >= p })
	if i == 0 {
		return 0, false
	}
	return min(s[i-1].end, p-1), true
}
