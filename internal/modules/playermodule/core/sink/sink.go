// Package sink defines the capability interface the player uses against
// output devices and the stages of the sink chain layered on top of them:
// output buffering, the video split/switch, picture scaling, audio level
// metering and the audio switch.
//
// Stages wrap the next sink toward the device. The engine talks to the
// outermost stage; every stage forwards what it does not handle.
package sink

import (
	"sync"

	"github.com/mantonx/reelplay/internal/modules/playermodule/osd"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// Listener receives device side events
type Listener interface {
	FrameDisplayed(info *types.FrameInfo)
	FrameDropped(last *types.FrameInfo)
	KeyPressed(key, modifier int)
	KeyReleased(key, modifier int)
	ProgressBarPositionSet(percent float64)
	MouseClicked(imageWidth, imageHeight, x, y int)
	CloseRequested()
}

// Sink consumes frames stream by stream. For each frame the engine asks
// AcceptStreamFrame per stream, fills the buffer from StreamBuffer, hands it
// back with ReceiveStreamFrame and finally calls CompleteFrame or CancelFrame.
type Sink interface {
	RegisterListener(l Listener)

	// RegisterStream returns false when the sink cannot take the stream; the
	// engine then disables it on the source.
	RegisterStream(info types.StreamInfo) bool
	AcceptStreamFrame(streamID int, info *types.FrameInfo) bool
	StreamBuffer(streamID, size int) ([]byte, error)
	ReceiveStreamFrame(streamID int, data []byte) error
	CompleteFrame(info *types.FrameInfo) error
	CancelFrame()

	// OSD returns the settings shared by every renderer of the chain.
	OSD() *osd.State

	// ResetOrClose clears registered streams for reuse. On failure the
	// device is closed and false is returned.
	ResetOrClose() bool
	Close() error
}

// RasterProvider is implemented by devices with a fixed output raster
type RasterProvider interface {
	Raster() (width, height int, ok bool)
}

type unwrapper interface {
	Unwrap() Sink
}

// Lookup walks the chain from s toward the device and returns the first
// stage of type T.
func Lookup[T any](s Sink) (T, bool) {
	for s != nil {
		if t, ok := s.(T); ok {
			return t, true
		}
		u, ok := s.(unwrapper)
		if !ok {
			break
		}
		s = u.Unwrap()
	}
	var zero T
	return zero, false
}

// Raster returns the fixed output raster of the device at the end of the chain.
func Raster(s Sink) (width, height int, ok bool) {
	rp, found := Lookup[RasterProvider](s)
	if !found {
		return 0, 0, false
	}
	return rp.Raster()
}

// Passthrough forwards everything to the next sink. Stages embed it and
// override what they handle.
type Passthrough struct {
	next Sink
}

// NewPassthrough wraps next.
func NewPassthrough(next Sink) Passthrough {
	return Passthrough{next: next}
}

// Unwrap returns the next sink toward the device.
func (p *Passthrough) Unwrap() Sink { return p.next }

func (p *Passthrough) RegisterListener(l Listener)               { p.next.RegisterListener(l) }
func (p *Passthrough) RegisterStream(info types.StreamInfo) bool { return p.next.RegisterStream(info) }
func (p *Passthrough) CancelFrame()                              { p.next.CancelFrame() }
func (p *Passthrough) OSD() *osd.State                           { return p.next.OSD() }
func (p *Passthrough) ResetOrClose() bool                        { return p.next.ResetOrClose() }
func (p *Passthrough) Close() error                              { return p.next.Close() }

func (p *Passthrough) AcceptStreamFrame(streamID int, info *types.FrameInfo) bool {
	return p.next.AcceptStreamFrame(streamID, info)
}

func (p *Passthrough) StreamBuffer(streamID, size int) ([]byte, error) {
	return p.next.StreamBuffer(streamID, size)
}

func (p *Passthrough) ReceiveStreamFrame(streamID int, data []byte) error {
	return p.next.ReceiveStreamFrame(streamID, data)
}

func (p *Passthrough) CompleteFrame(info *types.FrameInfo) error {
	return p.next.CompleteFrame(info)
}

// listeners is the registered listener list of a device
type listeners struct {
	mu   sync.RWMutex
	list []Listener
}

func (ls *listeners) add(l Listener) {
	if l == nil {
		return
	}
	ls.mu.Lock()
	ls.list = append(ls.list, l)
	ls.mu.Unlock()
}

func (ls *listeners) each(fn func(Listener)) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	for _, l := range ls.list {
		fn(l)
	}
}

// inputForwarder relays only the input events of a secondary device
type inputForwarder struct {
	to *listeners
}

func (f inputForwarder) FrameDisplayed(*types.FrameInfo) {}
func (f inputForwarder) FrameDropped(*types.FrameInfo)   {}

func (f inputForwarder) KeyPressed(key, modifier int) {
	f.to.each(func(l Listener) { l.KeyPressed(key, modifier) })
}

func (f inputForwarder) KeyReleased(key, modifier int) {
	f.to.each(func(l Listener) { l.KeyReleased(key, modifier) })
}

func (f inputForwarder) ProgressBarPositionSet(percent float64) {
	f.to.each(func(l Listener) { l.ProgressBarPositionSet(percent) })
}

func (f inputForwarder) MouseClicked(imageWidth, imageHeight, x, y int) {
	f.to.each(func(l Listener) { l.MouseClicked(imageWidth, imageHeight, x, y) })
}

func (f inputForwarder) CloseRequested() {
	f.to.each(func(l Listener) { l.CloseRequested() })
}
