// Package engine drives frames from a source into a sink chain. The
// production frame scheduler is an external collaborator behind Engine;
// Basic is the built-in implementation used by the binary and the tests.
package engine

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/modules/playermodule/core/sink"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/source"
	"github.com/mantonx/reelplay/internal/modules/playermodule/marks"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// Events receives the notifications the engine produces itself. Frame
// displayed events come from the sink device.
type Events interface {
	FrameDropped(last *types.FrameInfo)
	StateChanged(event *types.StateEvent)
	StartOfSource(info *types.FrameInfo)
	EndOfSource(info *types.FrameInfo)
}

// Engine is the control surface the player forwards to. Control calls never
// block on frame I/O; they return false when the engine is not running or
// the request is invalid.
type Engine interface {
	// Run blocks until ctx is cancelled or Stop is called.
	Run(ctx context.Context) error
	Stop()
	Running() bool

	Play() bool
	Pause() bool
	TogglePlayPause() bool
	SetSpeed(speed int) bool
	Seek(offset int64, whence int) bool
	SeekPercent(percent float64) bool
	Step(forward bool) bool

	Mark(markType uint32, toggle bool) bool
	ClearMark(markType uint32) bool
	ClearAllMarks(markType uint32) bool
	SeekNextMark(markType uint32) bool
	SeekPrevMark(markType uint32) bool

	Lock(on bool) bool
	Mute(on bool) bool
	Refresh()

	// LastFrame returns a copy of the frame info last sent to the sink.
	LastFrame() *types.FrameInfo
	Marks() *marks.Model

	Close() error
}

// Factory creates the engine for a freshly built source and sink chain.
type Factory func(src source.Source, snk sink.Sink, events Events, logger hclog.Logger) (Engine, error)

// NewBasicFactory returns a factory for Basic engines with the given options.
func NewBasicFactory(opts Options) Factory {
	return func(src source.Source, snk sink.Sink, events Events, logger hclog.Logger) (Engine, error) {
		return NewBasic(src, snk, events, opts, logger)
	}
}

type nopEvents struct{}

func (nopEvents) FrameDropped(*types.FrameInfo)  {}
func (nopEvents) StateChanged(*types.StateEvent) {}
func (nopEvents) StartOfSource(*types.FrameInfo) {}
func (nopEvents) EndOfSource(*types.FrameInfo)   {}
