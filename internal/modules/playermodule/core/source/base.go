package source

import (
	"fmt"
	"sync"

	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// SourceInfoName is the annotation that carries the display name of a source.
const SourceInfoName = "name"

// base carries the bookkeeping shared by single-input sources
type base struct {
	mu        sync.Mutex
	streams   []types.StreamInfo
	disabled  map[int]bool
	position  int64
	listeners []Listener
	closed    bool
}

func newBase(streams []types.StreamInfo) base {
	return base{streams: streams, disabled: make(map[int]bool)}
}

func (b *base) Streams() []types.StreamInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.StreamInfo, len(b.streams))
	for i, s := range b.streams {
		out[i] = s.Clone()
	}
	return out
}

func (b *base) DisableStream(streamID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.streams {
		if s.ID == streamID {
			b.disabled[streamID] = true
			return nil
		}
	}
	return fmt.Errorf("unknown stream %d", streamID)
}

func (b *base) enabled(streamID int) bool {
	return !b.disabled[streamID]
}

func (b *base) Position() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position
}

func (b *base) SetSourceName(sourceID int, name string) {
	b.mu.Lock()
	changed := false
	for i := range b.streams {
		if b.streams[i].SourceID == sourceID {
			setSourceInfo(&b.streams[i], SourceInfoName, name)
			changed = true
		}
	}
	listeners := append([]Listener(nil), b.listeners...)
	b.mu.Unlock()

	if changed {
		for _, l := range listeners {
			l.SourceNameChanged(sourceID, name)
		}
	}
}

func (b *base) SetClipID(sourceID int, clipID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.streams {
		if b.streams[i].SourceID == sourceID {
			b.streams[i].ClipID = clipID
		}
	}
}

func (b *base) RegisterListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *base) checkOpen() error {
	if b.closed {
		return playererrors.ErrClosed
	}
	return nil
}

// setSourceInfo replaces an annotation or appends it within the bound.
func setSourceInfo(info *types.StreamInfo, name, value string) {
	for i := range info.SourceInfo {
		if info.SourceInfo[i].Name == name {
			info.SourceInfo[i].Value = value
			return
		}
	}
	info.AddSourceInfo(name, value)
}

// SourceName returns the display name annotation of a stream.
func SourceName(info types.StreamInfo) string {
	for _, v := range info.SourceInfo {
		if v.Name == SourceInfoName {
			return v.Value
		}
	}
	return ""
}
