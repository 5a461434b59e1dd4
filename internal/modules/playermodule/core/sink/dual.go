package sink

import (
	"errors"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/modules/playermodule/osd"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

type dualAccept struct {
	primary   bool
	secondary bool
}

// Dual feeds every frame to a primary and a secondary sink. Listeners are
// registered on the primary; from the secondary only input events (keys,
// mouse, progress bar, close requests) are forwarded.
type Dual struct {
	logger    hclog.Logger
	primary   Sink
	secondary Sink
	listeners listeners

	mu           sync.Mutex
	accepted     map[int]dualAccept
	secondaryBuf map[int][]byte
}

// NewDual combines two sinks that share one set of OSD settings.
func NewDual(primary, secondary Sink, logger hclog.Logger) *Dual {
	d := &Dual{
		logger:       logger.Named("dual"),
		primary:      primary,
		secondary:    secondary,
		accepted:     make(map[int]dualAccept),
		secondaryBuf: make(map[int][]byte),
	}
	secondary.RegisterListener(inputForwarder{to: &d.listeners})
	return d
}

// Unwrap returns the primary sink.
func (d *Dual) Unwrap() Sink { return d.primary }

// Secondary returns the secondary sink.
func (d *Dual) Secondary() Sink { return d.secondary }

func (d *Dual) RegisterListener(l Listener) {
	d.primary.RegisterListener(l)
	d.listeners.add(l)
}

func (d *Dual) RegisterStream(info types.StreamInfo) bool {
	p := d.primary.RegisterStream(info)
	s := d.secondary.RegisterStream(info)
	return p || s
}

func (d *Dual) AcceptStreamFrame(streamID int, info *types.FrameInfo) bool {
	a := dualAccept{
		primary:   d.primary.AcceptStreamFrame(streamID, info),
		secondary: d.secondary.AcceptStreamFrame(streamID, info),
	}
	d.mu.Lock()
	d.accepted[streamID] = a
	d.mu.Unlock()
	return a.primary || a.secondary
}

func (d *Dual) StreamBuffer(streamID, size int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a := d.accepted[streamID]
	if !a.primary {
		return d.secondary.StreamBuffer(streamID, size)
	}
	if a.secondary {
		buf, err := d.secondary.StreamBuffer(streamID, size)
		if err != nil {
			d.logger.Debug("secondary buffer unavailable", "stream_id", streamID, "error", err)
			a.secondary = false
			d.accepted[streamID] = a
		} else {
			d.secondaryBuf[streamID] = buf
		}
	}
	return d.primary.StreamBuffer(streamID, size)
}

// ReceiveStreamFrame hands the data to the primary and a copy to the
// secondary.
func (d *Dual) ReceiveStreamFrame(streamID int, data []byte) error {
	d.mu.Lock()
	a := d.accepted[streamID]
	sbuf := d.secondaryBuf[streamID]
	d.mu.Unlock()

	if !a.primary {
		if a.secondary {
			return d.secondary.ReceiveStreamFrame(streamID, data)
		}
		return nil
	}

	if a.secondary && sbuf != nil {
		copy(sbuf, data)
		if err := d.secondary.ReceiveStreamFrame(streamID, sbuf); err != nil {
			d.logger.Debug("secondary receive failed", "stream_id", streamID, "error", err)
		}
	}
	return d.primary.ReceiveStreamFrame(streamID, data)
}

// CompleteFrame completes the frame on both sinks. Secondary failures are
// logged only.
func (d *Dual) CompleteFrame(info *types.FrameInfo) error {
	d.resetFrame()
	err := d.primary.CompleteFrame(info)
	if serr := d.secondary.CompleteFrame(info); serr != nil {
		d.logger.Debug("secondary complete failed", "error", serr)
	}
	return err
}

func (d *Dual) CancelFrame() {
	d.resetFrame()
	d.primary.CancelFrame()
	d.secondary.CancelFrame()
}

func (d *Dual) resetFrame() {
	d.mu.Lock()
	clear(d.accepted)
	clear(d.secondaryBuf)
	d.mu.Unlock()
}

func (d *Dual) OSD() *osd.State {
	return d.primary.OSD()
}

// ResetOrClose resets both sinks; if either fails both are closed.
func (d *Dual) ResetOrClose() bool {
	d.resetFrame()
	p := d.primary.ResetOrClose()
	s := d.secondary.ResetOrClose()
	if p && s {
		return true
	}
	if err := d.Close(); err != nil {
		d.logger.Debug("close after failed reset", "error", err)
	}
	return false
}

func (d *Dual) Close() error {
	return errors.Join(d.secondary.Close(), d.primary.Close())
}
