// Package listener fans player events out to external observers in
// registration order and translates internal source ids into the input
// indices observers know.
package listener

import (
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// Listener is the callback surface exposed to observers
type Listener interface {
	FrameDisplayed(info *types.FrameInfo)
	FrameDropped(last *types.FrameInfo)
	StateChanged(event *types.StateEvent)
	StartOfSource(info *types.FrameInfo)
	EndOfSource(info *types.FrameInfo)
	PlayerClosed()
	CloseRequested()
	KeyPressed(key, modifier int)
	KeyReleased(key, modifier int)
	ProgressBarPositionSet(percent float64)
	MouseClicked(imageWidth, imageHeight, x, y int)

	// SourceNameChanged reports the 1-based index of the input among the
	// opened inputs.
	SourceNameChanged(index int, name string)
}

// Base implements Listener with no-ops for embedding.
type Base struct{}

func (Base) FrameDisplayed(*types.FrameInfo) {}
func (Base) FrameDropped(*types.FrameInfo)   {}
func (Base) StateChanged(*types.StateEvent)  {}
func (Base) StartOfSource(*types.FrameInfo)  {}
func (Base) EndOfSource(*types.FrameInfo)    {}
func (Base) PlayerClosed()                   {}
func (Base) CloseRequested()                 {}
func (Base) KeyPressed(int, int)             {}
func (Base) KeyReleased(int, int)            {}
func (Base) ProgressBarPositionSet(float64)  {}
func (Base) MouseClicked(int, int, int, int) {}
func (Base) SourceNameChanged(int, string)   {}

// IndexMapper supplies the current source id to input index mapping. The
// generation changes whenever the mapping does.
type IndexMapper interface {
	Generation() uint64
	SourceIndexMap() map[int]int
}

type indexSnapshot struct {
	generation uint64
	index      map[int]int
}

// Registration is the handle returned by Register. It does not own the
// registry; Close removes the listener.
type Registration struct {
	registry *Registry
	listener Listener
	data     any
	snapshot atomic.Pointer[indexSnapshot]
}

// Listener returns the registered listener.
func (r *Registration) Listener() Listener { return r.listener }

// Data returns the opaque value supplied at registration.
func (r *Registration) Data() any { return r.data }

// Close unregisters the listener.
func (r *Registration) Close() {
	r.registry.Unregister(r)
}

// indexOf resolves a source id through this registration's cached snapshot,
// refreshing it when the mapper moved on.
func (r *Registration) indexOf(mapper IndexMapper, sourceID int) (int, bool) {
	gen := mapper.Generation()
	snap := r.snapshot.Load()
	if snap == nil || snap.generation != gen {
		snap = &indexSnapshot{generation: gen, index: mapper.SourceIndexMap()}
		r.snapshot.Store(snap)
	}
	idx, ok := snap.index[sourceID]
	return idx, ok
}

// Registry is the ordered listener list. Every event is delivered
// synchronously to each listener in registration order while holding the
// read lock, so a slow listener delays the others and the render path.
type Registry struct {
	logger hclog.Logger

	mu     sync.RWMutex
	regs   []*Registration
	mapper atomic.Pointer[IndexMapper]
}

// NewRegistry creates an empty registry.
func NewRegistry(logger hclog.Logger) *Registry {
	return &Registry{logger: logger.Named("listeners")}
}

// SetIndexMapper installs the source index mapping.
func (r *Registry) SetIndexMapper(m IndexMapper) {
	r.mapper.Store(&m)
}

func (r *Registry) indexMapper() IndexMapper {
	if m := r.mapper.Load(); m != nil {
		return *m
	}
	return nil
}

// Register appends a listener.
func (r *Registry) Register(l Listener, data any) *Registration {
	reg := &Registration{registry: r, listener: l, data: data}
	r.mu.Lock()
	r.regs = append(r.regs, reg)
	n := len(r.regs)
	r.mu.Unlock()
	r.logger.Debug("listener registered", "count", n)
	return reg
}

// Unregister removes a registration; it reports whether it was present.
func (r *Registry) Unregister(reg *Registration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.regs {
		if existing == reg {
			r.regs = append(r.regs[:i:i], r.regs[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.regs)
}

func (r *Registry) each(fn func(Listener)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.regs {
		fn(reg.listener)
	}
}

func (r *Registry) FrameDisplayed(info *types.FrameInfo) {
	r.each(func(l Listener) { l.FrameDisplayed(info) })
}

func (r *Registry) FrameDropped(last *types.FrameInfo) {
	r.each(func(l Listener) { l.FrameDropped(last) })
}

func (r *Registry) StateChanged(event *types.StateEvent) {
	r.each(func(l Listener) { l.StateChanged(event) })
}

func (r *Registry) StartOfSource(info *types.FrameInfo) {
	r.each(func(l Listener) { l.StartOfSource(info) })
}

func (r *Registry) EndOfSource(info *types.FrameInfo) {
	r.each(func(l Listener) { l.EndOfSource(info) })
}

func (r *Registry) PlayerClosed() {
	r.each(func(l Listener) { l.PlayerClosed() })
}

func (r *Registry) CloseRequested() {
	r.each(func(l Listener) { l.CloseRequested() })
}

func (r *Registry) KeyPressed(key, modifier int) {
	r.each(func(l Listener) { l.KeyPressed(key, modifier) })
}

func (r *Registry) KeyReleased(key, modifier int) {
	r.each(func(l Listener) { l.KeyReleased(key, modifier) })
}

func (r *Registry) ProgressBarPositionSet(percent float64) {
	r.each(func(l Listener) { l.ProgressBarPositionSet(percent) })
}

func (r *Registry) MouseClicked(imageWidth, imageHeight, x, y int) {
	r.each(func(l Listener) { l.MouseClicked(imageWidth, imageHeight, x, y) })
}

// SourceNameChanged receives a source id from the source side and delivers
// the matching input index. Sources not mapped to an opened input are
// dropped.
func (r *Registry) SourceNameChanged(sourceID int, name string) {
	mapper := r.indexMapper()
	if mapper == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.regs {
		if idx, ok := reg.indexOf(mapper, sourceID); ok {
			reg.listener.SourceNameChanged(idx, name)
		}
	}
}
