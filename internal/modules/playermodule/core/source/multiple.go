package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

type child struct {
	src           Source
	sourceID      int
	localSourceID int
	toLocal       map[int]int
	streams       []types.StreamInfo
}

// Multiple combines several opened inputs into one source. Stream ids are
// renumbered so they are unique across inputs and every stream carries the
// source id it was appended with. All inputs are read in lockstep.
type Multiple struct {
	logger hclog.Logger

	mu           sync.Mutex
	children     []*child
	nextStreamID int
	position     int64
	disabled     map[int]bool
	listeners    []Listener
	closed       bool
}

// NewMultiple creates an empty fan-in source.
func NewMultiple(logger hclog.Logger) *Multiple {
	return &Multiple{
		logger:   logger.Named("multiple-source"),
		disabled: make(map[int]bool),
	}
}

// Append adds an opened source under sourceID. The multiple source takes
// ownership and closes it.
func (m *Multiple) Append(src Source, sourceID int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := &child{src: src, sourceID: sourceID, toLocal: make(map[int]int)}
	for i, s := range src.Streams() {
		if i == 0 {
			c.localSourceID = s.SourceID
		}
		local := s.ID
		s.ID = m.nextStreamID
		s.SourceID = sourceID
		m.nextStreamID++
		c.toLocal[s.ID] = local
		c.streams = append(c.streams, s)
	}
	m.children = append(m.children, c)
	src.RegisterListener(&childListener{parent: m, child: c})

	m.logger.Debug("source appended", "source_id", sourceID, "streams", len(c.streams))
}

// NumSources returns the number of appended sources.
func (m *Multiple) NumSources() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.children)
}

// Children returns the appended sources and their source ids in order.
func (m *Multiple) Children() ([]Source, []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	srcs := make([]Source, len(m.children))
	ids := make([]int, len(m.children))
	for i, c := range m.children {
		srcs[i], ids[i] = c.src, c.sourceID
	}
	return srcs, ids
}

func (m *Multiple) Streams() []types.StreamInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.StreamInfo
	for _, c := range m.children {
		for _, s := range c.streams {
			out = append(out, s.Clone())
		}
	}
	return out
}

func (m *Multiple) DisableStream(streamID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.children {
		if local, ok := c.toLocal[streamID]; ok {
			if err := c.src.DisableStream(local); err != nil {
				return err
			}
			m.disabled[streamID] = true
			return nil
		}
	}
	return fmt.Errorf("unknown stream %d", streamID)
}

func (m *Multiple) Read(ctx context.Context) (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, playererrors.ErrClosed
	}
	if length := m.length(); length >= 0 && m.position >= length {
		return nil, playererrors.ErrEndOfSource
	}

	frame := &Frame{Position: m.position}
	produced := false
	for _, c := range m.children {
		f, err := c.src.Read(ctx)
		if errors.Is(err, playererrors.ErrEndOfSource) {
			continue
		}
		if err != nil {
			return nil, playererrors.Wrap(err, playererrors.ErrorTypeRuntimeIO, "read_source")
		}
		produced = true

		fromLocal := make(map[int]int, len(c.toLocal))
		for global, local := range c.toLocal {
			fromLocal[local] = global
		}
		for _, sf := range f.Streams {
			global, ok := fromLocal[sf.StreamID]
			if !ok || m.disabled[global] {
				continue
			}
			frame.Streams = append(frame.Streams, StreamFrame{StreamID: global, Data: sf.Data})
		}
		for _, tc := range f.Timecodes {
			if global, ok := fromLocal[tc.StreamID]; ok {
				tc.StreamID = global
			}
			if len(frame.Timecodes) < types.MaxFrameTimecodes {
				frame.Timecodes = append(frame.Timecodes, tc)
			}
		}
		if f.VTRErrorLevel > frame.VTRErrorLevel {
			frame.VTRErrorLevel = f.VTRErrorLevel
		}
		frame.MarkType |= f.MarkType
	}
	if !produced {
		return nil, playererrors.ErrEndOfSource
	}

	m.position++
	return frame, nil
}

func (m *Multiple) Seek(position int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	position = clampPosition(position, m.length())
	for _, c := range m.children {
		if err := c.src.Seek(position); err != nil {
			return playererrors.Wrap(err, playererrors.ErrorTypeRuntimeIO, "seek_source")
		}
	}
	m.position = position
	return nil
}

// Length is the shortest bounded input length, or -1 when no input is bounded.
func (m *Multiple) Length() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.length()
}

func (m *Multiple) AvailableLength() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return shortest(m.children, func(s Source) int64 { return s.AvailableLength() })
}

func (m *Multiple) Position() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Multiple) EOF() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	length := m.length()
	return length >= 0 && m.position >= length
}

func (m *Multiple) SetSourceName(sourceID int, name string) {
	if c := m.find(sourceID); c != nil {
		c.src.SetSourceName(c.localSourceID, name)
	}
}

func (m *Multiple) SetClipID(sourceID int, clipID string) {
	c := m.find(sourceID)
	if c == nil {
		return
	}
	c.src.SetClipID(c.localSourceID, clipID)

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range c.streams {
		c.streams[i].ClipID = clipID
	}
}

func (m *Multiple) RegisterListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Close closes every appended source.
func (m *Multiple) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for _, c := range m.children {
		if err := c.src.Close(); err != nil {
			m.logger.Warn("failed to close source", "source_id", c.sourceID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multiple) find(sourceID int) *child {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.children {
		if c.sourceID == sourceID {
			return c
		}
	}
	return nil
}

func (m *Multiple) length() int64 {
	return shortest(m.children, func(s Source) int64 { return s.Length() })
}

func shortest(children []*child, get func(Source) int64) int64 {
	result := int64(-1)
	for _, c := range children {
		if l := get(c.src); l >= 0 && (result < 0 || l < result) {
			result = l
		}
	}
	return result
}

// childListener maps name changes of one appended source to its source id.
type childListener struct {
	parent *Multiple
	child  *child
}

func (cl *childListener) SourceNameChanged(_ int, name string) {
	m := cl.parent
	m.mu.Lock()
	for i := range cl.child.streams {
		setSourceInfo(&cl.child.streams[i], SourceInfoName, name)
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l.SourceNameChanged(cl.child.sourceID, name)
	}
}
