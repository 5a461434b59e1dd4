package marks

import "sync"

// Set holds the primary and optional secondary model attached to one OSD and
// which of the two is highlighted.
type Set struct {
	mu         sync.RWMutex
	primary    *Model
	secondary  *Model
	active     int
	numBuckets int
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{}
}

// Attach replaces both models. The active index is clamped again and the
// models take the resolution of the last Resize.
func (s *Set) Attach(primary, secondary *Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.numBuckets > 0 {
		for _, m := range []*Model{primary, secondary} {
			if m != nil {
				m.Resize(s.numBuckets)
			}
		}
	}
	s.primary = primary
	s.secondary = secondary
	s.active = s.clamp(s.active)
}

// Models returns the attached models.
func (s *Set) Models() (primary, secondary *Model) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.primary, s.secondary
}

// SetActive selects the highlighted model: 0 primary, 1 secondary. Without a
// secondary model the index is clamped to 0.
func (s *Set) SetActive(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = s.clamp(index)
}

// ActiveIndex returns the clamped active index.
func (s *Set) ActiveIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Active returns the highlighted model, which may be nil.
func (s *Set) Active() *Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == 1 {
		return s.secondary
	}
	return s.primary
}

// Resize applies a new bucket resolution to every attached model.
func (s *Set) Resize(numBuckets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.numBuckets = numBuckets
	for _, m := range []*Model{s.primary, s.secondary} {
		if m != nil {
			m.Resize(numBuckets)
		}
	}
}

func (s *Set) clamp(index int) int {
	if index <= 0 || s.secondary == nil {
		return 0
	}
	return 1
}
