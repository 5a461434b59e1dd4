// Package marks keeps the typed timeline marks of a review session and folds
// them into the fixed bucket array the OSD progress bar draws.
package marks

import (
	"sort"
	"sync"

	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// Mark is a run of consecutive positions carrying the same type bits
type Mark struct {
	Position int64  `json:"position"`
	Duration int64  `json:"duration"`
	Type     uint32 `json:"type"`
}

// Model is a bucketed view over a set of marks. Marks are kept as ranges per
// type and each bucket counts the marked positions of every type it covers,
// so marking or clearing a range costs the buckets it spans, not its length.
type Model struct {
	mu sync.Mutex

	length  int64
	spans   [types.NumMarkTypes]spanSet
	buckets [][types.NumMarkTypes]int64
	dirty   uint32
	version uint64
}

// NewModel creates a model with numBuckets buckets.
func NewModel(numBuckets int) *Model {
	m := &Model{}
	m.resize(numBuckets)
	return m
}

// NumBuckets returns the bucket resolution.
func (m *Model) NumBuckets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Resize changes the bucket resolution and rebuilds the buckets.
func (m *Model) Resize(numBuckets int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if numBuckets == len(m.buckets) {
		return
	}
	m.resize(numBuckets)
}

// SetLength sets the source length the buckets span and rebuilds them.
// Marks beyond the length are kept but not shown.
func (m *Model) SetLength(length int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if length == m.length {
		return
	}
	m.length = length
	m.rebuild()
}

// Length returns the source length the buckets span.
func (m *Model) Length() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.length
}

// Mark adds the type bits at position. Bits already set there are ignored.
func (m *Model) Mark(position int64, markType uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mark(position, position, markType)
}

// MarkRange marks every position in [start, end].
func (m *Model) MarkRange(start, end int64, markType uint32) {
	if end < start {
		start, end = end, start
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mark(start, end, markType)
}

// Unmark removes the type bits at position.
func (m *Model) Unmark(position int64, markType uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmark(position, position, markType)
}

// UnmarkRange removes the type bits from every position in [start, end].
func (m *Model) UnmarkRange(start, end int64, markType uint32) {
	if end < start {
		start, end = end, start
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmark(start, end, markType)
}

// ClearType removes the type bits from every mark.
func (m *Model) ClearType(markType uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := false
	for b := 0; b < types.NumMarkTypes; b++ {
		bit := uint32(1) << uint(b)
		if markType&bit == 0 || len(m.spans[b]) == 0 {
			continue
		}
		m.spans[b] = nil
		for i := range m.buckets {
			m.buckets[i][b] = 0
		}
		m.dirty |= bit
		changed = true
	}
	if changed {
		m.version++
	}
}

// ClearAll removes every mark.
func (m *Model) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for b := range m.spans {
		if len(m.spans[b]) > 0 {
			m.dirty |= 1 << uint(b)
		}
		m.spans[b] = nil
	}
	for i := range m.buckets {
		m.buckets[i] = [types.NumMarkTypes]int64{}
	}
	m.version++
}

// TypeAt returns the mark bits at position.
func (m *Model) TypeAt(position int64) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typeAt(position)
}

// Next returns the first marked position after position carrying any of the
// type bits.
func (m *Model) Next(position int64, markType uint32) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	best, found := int64(0), false
	for b := 0; b < types.NumMarkTypes; b++ {
		if markType&(1<<uint(b)) == 0 {
			continue
		}
		if p, ok := m.spans[b].after(position); ok && (!found || p < best) {
			best, found = p, true
		}
	}
	return best, found
}

// Prev returns the last marked position before position carrying any of the
// type bits.
func (m *Model) Prev(position int64, markType uint32) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	best, found := int64(0), false
	for b := 0; b < types.NumMarkTypes; b++ {
		if markType&(1<<uint(b)) == 0 {
			continue
		}
		if p, ok := m.spans[b].before(position); ok && (!found || p > best) {
			best, found = p, true
		}
	}
	return best, found
}

// Marks returns the marked runs ordered by position. A run ends wherever the
// set of type bits changes.
func (m *Model) Marks() []Mark {
	m.mu.Lock()
	defer m.mu.Unlock()

	var edges []int64
	for _, set := range m.spans {
		for _, sp := range set {
			edges = append(edges, sp.start, sp.end+1)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i] < edges[j] })

	var out []Mark
	for i := 0; i+1 < len(edges); i++ {
		start, next := edges[i], edges[i+1]
		if start == next {
			continue
		}
		t := m.typeAt(start)
		if t == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Type == t && out[n-1].Position+out[n-1].Duration == start {
			out[n-1].Duration += next - start
			continue
		}
		out = append(out, Mark{Position: start, Duration: next - start, Type: t})
	}
	return out
}

// Version changes whenever the bucket contents may have changed. Renderers
// that share a model use it alongside the dirty mask.
func (m *Model) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// Dirty reports whether any of the type bits changed since the last snapshot.
func (m *Model) Dirty(displayMask uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty&displayMask != 0
}

// Snapshot returns the union of displayed mark types per bucket and clears
// the dirty bits covered by displayMask.
func (m *Model) Snapshot(displayMask uint32) []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]uint32, len(m.buckets))
	for i := range m.buckets {
		var union uint32
		for b := 0; b < types.NumMarkTypes; b++ {
			if m.buckets[i][b] > 0 {
				union |= 1 << uint(b)
			}
		}
		out[i] = union & displayMask
	}
	m.dirty &^= displayMask
	return out
}

// Bucket returns the bucket index of a position, or -1 when it is not shown.
func (m *Model) Bucket(position int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bucket(position)
}

func (m *Model) resize(numBuckets int) {
	if numBuckets < 0 {
		numBuckets = 0
	}
	m.buckets = make([][types.NumMarkTypes]int64, numBuckets)
	m.rebuild()
}

func (m *Model) rebuild() {
	m.version++
	for i := range m.buckets {
		m.buckets[i] = [types.NumMarkTypes]int64{}
	}
	for b, set := range m.spans {
		if len(set) > 0 {
			m.dirty |= 1 << uint(b)
		}
		for _, sp := range set {
			m.count(sp, b, 1)
		}
	}
}

func (m *Model) bucket(position int64) int {
	n := int64(len(m.buckets))
	if n == 0 || m.length <= 0 || position < 0 || position >= m.length {
		return -1
	}
	return int(position * n / m.length)
}

// count adds delta for every shown position of sp to the buckets of type b.
// Bucket i holds the positions p with i <= p*n/length < i+1.
func (m *Model) count(sp span, b int, delta int64) {
	n := int64(len(m.buckets))
	if n == 0 || m.length <= 0 {
		return
	}
	start, end := max(sp.start, 0), min(sp.end, m.length-1)
	if start > end {
		return
	}
	for i := int64(m.bucket(start)); i <= int64(m.bucket(end)); i++ {
		lo := (i*m.length + n - 1) / n
		hi := ((i+1)*m.length+n-1)/n - 1
		overlap := min(hi, end) - max(lo, start) + 1
		if overlap > 0 {
			m.buckets[i][b] += delta * overlap
		}
	}
}

func (m *Model) typeAt(position int64) uint32 {
	var t uint32
	for b, set := range m.spans {
		if set.contains(position) {
			t |= 1 << uint(b)
		}
	}
	return t
}

func (m *Model) mark(start, end int64, markType uint32) {
	var changed uint32
	for b := 0; b < types.NumMarkTypes; b++ {
		bit := uint32(1) << uint(b)
		if markType&bit == 0 {
			continue
		}
		var added []span
		m.spans[b], added = m.spans[b].add(start, end)
		for _, sp := range added {
			m.count(sp, b, 1)
			changed |= bit
		}
	}
	if changed != 0 {
		m.dirty |= changed
		m.version++
	}
}

func (m *Model) unmark(start, end int64, markType uint32) {
	var changed uint32
	for b := 0; b < types.NumMarkTypes; b++ {
		bit := uint32(1) << uint(b)
		if markType&bit == 0 || len(m.spans[b]) == 0 {
			continue
		}
		var removed []span
		m.spans[b], removed = m.spans[b].remove(start, end)
		for _, sp := range removed {
			m.count(sp, b, -1)
			changed |= bit
		}
	}
	if changed != 0 {
		m.dirty |= changed
		m.version++
	}
}
