package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/modules/playermodule/core/sink"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/source"
	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/marks"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// Options tunes the basic engine
type Options struct {
	// FrameInterval overrides the period derived from the frame rate.
	FrameInterval time.Duration `json:"frame_interval" yaml:"frame_interval"`
	StartPaused   bool          `json:"start_paused" yaml:"start_paused"`

	// Marks is the primary marks model; a new one is created when nil.
	Marks          *marks.Model `json:"-" yaml:"-"`
	SecondaryMarks *marks.Model `json:"-" yaml:"-"`
}

type boundary int

const (
	noBoundary boundary = iota
	startBoundary
	endBoundary
)

// frameState is the transport state captured for one displayed frame
type frameState struct {
	position int64
	speed    int
	paused   bool
	locked   bool
	muted    bool
	repeat   bool
	dropped  bool
	count    int64
}

// Basic plays one source into one sink chain at the stream frame rate.
// Controls only change state under a mutex and wake the play loop, which
// does every read and write.
type Basic struct {
	logger hclog.Logger
	src    source.Source
	snk    sink.Sink
	events Events

	rate     types.Rational
	interval time.Duration
	tcBase   int
	streams  []types.StreamInfo
	marks    *marks.Model

	mu           sync.Mutex
	position     int64
	length       int64
	speed        int
	paused       bool
	locked       bool
	muted        bool
	redisplay    bool
	started      bool
	lastPosition int64
	dropped      bool
	frameCount   int64
	pending      types.StateEvent
	last         *types.FrameInfo

	wake   chan struct{}
	closed atomic.Bool

	ctx        context.Context
	cancelFunc context.CancelFunc
	running    atomic.Bool
	stopped    bool
	runMutex   sync.Mutex
}

// NewBasic registers the source streams with the sink, disabling every
// stream the sink rejects, and attaches the marks models to the sink OSD.
func NewBasic(src source.Source, snk sink.Sink, events Events, opts Options, logger hclog.Logger) (*Basic, error) {
	if src == nil || snk == nil {
		return nil, playererrors.ValidationError("new_engine", errors.New("source and sink are required"))
	}
	if events == nil {
		events = nopEvents{}
	}

	e := &Basic{
		logger:       logger.Named("engine"),
		src:          src,
		snk:          snk,
		events:       events,
		speed:        1,
		paused:       opts.StartPaused,
		redisplay:    true,
		lastPosition: -1,
		wake:         make(chan struct{}, 1),
	}

	for _, s := range src.Streams() {
		if snk.RegisterStream(s) {
			e.streams = append(e.streams, s)
			continue
		}
		if err := src.DisableStream(s.ID); err != nil {
			e.logger.Warn("failed to disable rejected stream", "stream_id", s.ID, "error", err)
		}
		e.logger.Debug("stream rejected by sink", "stream_id", s.ID, "type", s.Type, "format", s.Format)
	}
	if len(e.streams) == 0 {
		e.logger.Warn("sink accepted no streams")
	}

	e.rate = frameRate(e.streams)
	e.interval = opts.FrameInterval
	if e.interval <= 0 {
		e.interval = time.Duration(float64(time.Second) * float64(e.rate.Den) / float64(e.rate.Num))
	}
	e.tcBase = int(math.Round(e.rate.Float()))

	e.marks = opts.Marks
	if e.marks == nil {
		e.marks = marks.NewModel(0)
	}
	e.length = src.Length()
	e.marks.SetLength(e.length)
	if st := snk.OSD(); st != nil {
		st.Marks().Attach(e.marks, opts.SecondaryMarks)
	}
	e.position = src.Position()

	return e, nil
}

// frameRate returns the rate of the first picture stream, else of any
// stream, else 25 fps.
func frameRate(streams []types.StreamInfo) types.Rational {
	if pic, ok := source.PictureStream(streams); ok && pic.FrameRate.Num > 0 && pic.FrameRate.Den > 0 {
		return pic.FrameRate
	}
	for _, s := range streams {
		if s.FrameRate.Num > 0 && s.FrameRate.Den > 0 {
			return s.FrameRate
		}
	}
	return types.Rate25
}

// FrameRate returns the rate the engine plays at.
func (e *Basic) FrameRate() types.Rational {
	return e.rate
}

// Streams returns the streams the sink accepted.
func (e *Basic) Streams() []types.StreamInfo {
	return append([]types.StreamInfo(nil), e.streams...)
}

// Run plays until ctx is cancelled or Stop is called.
func (e *Basic) Run(ctx context.Context) error {
	e.runMutex.Lock()
	if e.closed.Load() {
		e.runMutex.Unlock()
		return playererrors.ErrClosed
	}
	if e.running.Load() {
		e.runMutex.Unlock()
		return fmt.Errorf("engine already running")
	}
	if e.stopped {
		e.runMutex.Unlock()
		return nil
	}
	e.ctx, e.cancelFunc = context.WithCancel(ctx)
	runCtx := e.ctx
	e.running.Store(true)
	e.runMutex.Unlock()

	osdState := e.snk.OSD()
	if osdState != nil {
		osdState.SetRefreshHandler(e.Refresh)
	}
	defer func() {
		if osdState != nil {
			osdState.SetRefreshHandler(nil)
		}
		e.running.Store(false)
		e.emitStopped()
	}()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("engine started", "frame_rate", e.rate, "streams", len(e.streams), "paused", e.isPaused())
	e.tick(runCtx, false)

	for {
		select {
		case <-runCtx.Done():
			e.logger.Info("engine stopped")
			return nil
		case <-ticker.C:
			e.tick(runCtx, true)
		case <-e.wake:
			e.tick(runCtx, false)
		}
	}
}

// Stop ends Run. It does not wait; the caller joins the play goroutine.
func (e *Basic) Stop() {
	e.runMutex.Lock()
	defer e.runMutex.Unlock()
	e.stopped = true
	if e.cancelFunc != nil {
		e.cancelFunc()
	}
}

// Running reports whether Run is active.
func (e *Basic) Running() bool {
	return e.running.Load()
}

// Close stops the engine. The source and sink are owned by the caller.
func (e *Basic) Close() error {
	e.Stop()
	e.closed.Store(true)
	return nil
}

func (e *Basic) isPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// tick displays the next frame. advance is set by the frame clock; wake ups
// from controls only redisplay.
func (e *Basic) tick(ctx context.Context, advance bool) {
	length := e.src.Length()

	e.mu.Lock()
	if !e.redisplay && (e.paused || !advance) {
		e.mu.Unlock()
		return
	}

	position := e.position
	if e.started && !e.redisplay {
		position += int64(e.speed)
	}

	e.length = length
	hit := noBoundary
	if position < 0 {
		position, hit = 0, startBoundary
	}
	if e.length >= 0 && position >= e.length {
		position, hit = max(e.length-1, 0), endBoundary
	}
	if hit != noBoundary {
		if advance && !e.paused {
			e.setPaused(true)
		} else {
			hit = noBoundary
		}
	}

	e.position = position
	e.redisplay = false
	st := frameState{
		position: position,
		speed:    e.speed,
		paused:   e.paused,
		locked:   e.locked,
		muted:    e.muted,
		repeat:   e.started && position == e.lastPosition,
		dropped:  e.dropped,
		count:    e.frameCount,
	}
	event := e.pending
	e.pending = types.StateEvent{}
	e.mu.Unlock()

	if event.Any() {
		if osdState := e.snk.OSD(); osdState != nil {
			osdState.NotifyStateChange(time.Now())
		}
	}

	info, err := e.render(ctx, st)
	switch {
	case errors.Is(err, playererrors.ErrEndOfSource):
		e.endOfSource()
	case err != nil:
		e.frameFailed(err)
	default:
		e.mu.Lock()
		e.started = true
		e.lastPosition = position
		e.frameCount++
		e.dropped = false
		e.last = info.Clone()
		e.mu.Unlock()
	}

	if event.Any() {
		event.Frame = e.LastFrame()
		e.events.StateChanged(&event)
	}
	if err != nil {
		return
	}
	switch hit {
	case startBoundary:
		e.events.StartOfSource(info)
	case endBoundary:
		e.events.EndOfSource(info)
	}
}

// render reads one frame and pushes it through the sink frame protocol.
func (e *Basic) render(ctx context.Context, st frameState) (*types.FrameInfo, error) {
	if e.src.Position() != st.position {
		if err := e.src.Seek(st.position); err != nil {
			return nil, playererrors.RuntimeIOError("seek", err)
		}
	}
	frame, err := e.src.Read(ctx)
	if err != nil {
		return nil, err
	}

	info := &types.FrameInfo{
		Position:              frame.Position,
		SourceLength:          e.src.Length(),
		AvailableSourceLength: e.src.AvailableLength(),
		FrameCount:            st.count,
		FrameRate:             e.rate,
		Speed:                 st.speed,
		Paused:                st.paused,
		Reversed:              st.speed < 0,
		IsRepeat:              st.repeat,
		Muted:                 st.muted,
		Locked:                st.locked,
		DroppedFrame:          st.dropped,
		VTRErrorLevel:         frame.VTRErrorLevel,
	}
	info.MarkType = e.marks.TypeAt(frame.Position) | frame.MarkType
	info.IsMarked = info.MarkType != 0
	info.AddTimecode(types.TimecodeInfo{
		StreamID: -1,
		Type:     types.ControlTimecode,
		Timecode: types.Timecode{Frames: frame.Position, Base: e.tcBase},
	})
	for _, tc := range frame.Timecodes {
		if !info.AddTimecode(tc) {
			break
		}
	}

	for _, s := range e.streams {
		if st.muted && s.Type == types.SoundStream {
			continue
		}
		data, ok := frame.Stream(s.ID)
		if !ok || !e.snk.AcceptStreamFrame(s.ID, info) {
			continue
		}
		buf, err := e.snk.StreamBuffer(s.ID, len(data))
		if err != nil {
			e.snk.CancelFrame()
			return nil, playererrors.RuntimeIOError("stream_buffer", err).WithDetail("stream_id", s.ID)
		}
		copy(buf, data)
		if err := e.snk.ReceiveStreamFrame(s.ID, buf); err != nil {
			e.snk.CancelFrame()
			return nil, playererrors.RuntimeIOError("receive_frame", err).WithDetail("stream_id", s.ID)
		}
	}

	if err := e.snk.CompleteFrame(info); err != nil {
		return nil, playererrors.Wrap(err, playererrors.ErrorTypeRuntimeIO, "complete_frame")
	}
	return info, nil
}

func (e *Basic) endOfSource() {
	e.mu.Lock()
	wasPlaying := !e.paused
	if wasPlaying {
		e.setPaused(true)
	}
	last := e.last.Clone()
	e.mu.Unlock()

	if wasPlaying {
		e.events.EndOfSource(last)
	}
}

func (e *Basic) frameFailed(err error) {
	e.mu.Lock()
	e.dropped = true
	last := e.last.Clone()
	e.mu.Unlock()

	e.logger.Debug("frame dropped", "error", err)
	e.events.FrameDropped(last)
}

func (e *Basic) emitStopped() {
	e.mu.Lock()
	last := e.last.Clone()
	e.mu.Unlock()
	e.events.StateChanged(&types.StateEvent{StopChanged: true, Stop: true, Frame: last})
}

// signal wakes the play loop without blocking.
func (e *Basic) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// setPaused records a play state change. Callers hold mu.
func (e *Basic) setPaused(paused bool) {
	if e.paused == paused {
		return
	}
	e.paused = paused
	e.pending.PlayChanged = true
	e.pending.Play = !paused
	e.redisplay = true
}

// setSpeed records a speed change. Callers hold mu.
func (e *Basic) setSpeed(speed int) {
	if e.speed == speed {
		return
	}
	e.speed = speed
	e.pending.SpeedChanged = true
	e.pending.Speed = speed
}

// control applies fn under mu unless the engine is closed or locked.
func (e *Basic) control(fn func() bool) bool {
	if e.closed.Load() {
		return false
	}
	e.mu.Lock()
	if e.locked {
		e.mu.Unlock()
		return false
	}
	ok := fn()
	e.mu.Unlock()
	if ok {
		e.signal()
	}
	return ok
}

func (e *Basic) Play() bool {
	return e.control(func() bool {
		e.setSpeed(1)
		e.setPaused(false)
		return true
	})
}

func (e *Basic) Pause() bool {
	return e.control(func() bool {
		e.setPaused(true)
		return true
	})
}

func (e *Basic) TogglePlayPause() bool {
	return e.control(func() bool {
		e.setPaused(!e.paused)
		return true
	})
}

// SetSpeed sets frames per tick; negative values play in reverse. A speed
// change also resumes playback.
func (e *Basic) SetSpeed(speed int) bool {
	if speed == 0 {
		return false
	}
	return e.control(func() bool {
		e.setSpeed(speed)
		e.setPaused(false)
		return true
	})
}

// Seek moves the position relative to whence (io.SeekStart, io.SeekCurrent
// or io.SeekEnd). The target is clamped to the source on the next frame.
func (e *Basic) Seek(offset int64, whence int) bool {
	return e.control(func() bool {
		var target int64
		switch whence {
		case io.SeekStart:
			target = offset
		case io.SeekCurrent:
			target = e.position + offset
		case io.SeekEnd:
			if e.length < 0 {
				return false
			}
			target = e.length - 1 + offset
		default:
			return false
		}
		e.position = max(target, 0)
		e.redisplay = true
		return true
	})
}

// SeekPercent seeks to a share of the known source length.
func (e *Basic) SeekPercent(percent float64) bool {
	return e.control(func() bool {
		if e.length <= 0 {
			return false
		}
		percent = math.Min(math.Max(percent, 0), 100)
		e.position = min(int64(percent/100*float64(e.length)), e.length-1)
		e.redisplay = true
		return true
	})
}

// Step pauses and moves one frame.
func (e *Basic) Step(forward bool) bool {
	return e.control(func() bool {
		e.setPaused(true)
		if forward {
			e.position++
		} else if e.position > 0 {
			e.position--
		}
		e.redisplay = true
		return true
	})
}

// Mark sets the type bits at the current position. With toggle set, bits
// already present are removed instead.
func (e *Basic) Mark(markType uint32, toggle bool) bool {
	if markType == 0 {
		return false
	}
	return e.control(func() bool {
		if toggle && e.marks.TypeAt(e.position)&markType == markType {
			e.marks.Unmark(e.position, markType)
		} else {
			e.marks.Mark(e.position, markType)
		}
		e.redisplay = true
		return true
	})
}

func (e *Basic) ClearMark(markType uint32) bool {
	return e.control(func() bool {
		e.marks.Unmark(e.position, markType)
		e.redisplay = true
		return true
	})
}

func (e *Basic) ClearAllMarks(markType uint32) bool {
	return e.control(func() bool {
		if markType == types.MarkAllTypes {
			e.marks.ClearAll()
		} else {
			e.marks.ClearType(markType)
		}
		e.redisplay = true
		return true
	})
}

func (e *Basic) SeekNextMark(markType uint32) bool {
	return e.control(func() bool {
		next, ok := e.marks.Next(e.position, markType)
		if !ok {
			return false
		}
		e.position = next
		e.redisplay = true
		return true
	})
}

func (e *Basic) SeekPrevMark(markType uint32) bool {
	return e.control(func() bool {
		prev, ok := e.marks.Prev(e.position, markType)
		if !ok {
			return false
		}
		e.position = prev
		e.redisplay = true
		return true
	})
}

// Lock disables every other control while on.
func (e *Basic) Lock(on bool) bool {
	if e.closed.Load() {
		return false
	}
	e.mu.Lock()
	if e.locked != on {
		e.locked = on
		e.pending.LockedChanged = true
		e.pending.Locked = on
		e.redisplay = true
	}
	e.mu.Unlock()
	e.signal()
	return true
}

// Mute stops delivering sound streams to the sink.
func (e *Basic) Mute(on bool) bool {
	return e.control(func() bool {
		e.muted = on
		return true
	})
}

// Refresh redisplays the current frame. The OSD ticker calls it.
func (e *Basic) Refresh() {
	e.mu.Lock()
	e.redisplay = true
	e.mu.Unlock()
	e.signal()
}

func (e *Basic) LastFrame() *types.FrameInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last.Clone()
}

func (e *Basic) Marks() *marks.Model {
	return e.marks
}
