package sink

import (
	"fmt"
	"math"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/modules/playermodule/core/video"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

type scaledStream struct {
	src types.StreamInfo
	dst types.StreamInfo
}

// PictureScale resizes picture streams to the device raster when it is
// fixed, and otherwise by the display scale factor. Software downscale
// halves the raster of large pictures. Streams already at the target size
// pass through untouched.
type PictureScale struct {
	Passthrough
	logger            hclog.Logger
	scale             float64
	softwareDownscale bool

	mu      sync.Mutex
	streams map[int]*scaledStream
	frame   map[int][]byte
}

// NewPictureScale creates the scale stage.
func NewPictureScale(next Sink, scale float64, softwareDownscale bool, logger hclog.Logger) *PictureScale {
	if scale <= 0 {
		scale = 1
	}
	return &PictureScale{
		Passthrough:       NewPassthrough(next),
		logger:            logger.Named("picture-scale"),
		scale:             scale,
		softwareDownscale: softwareDownscale,
		streams:           make(map[int]*scaledStream),
		frame:             make(map[int][]byte),
	}
}

// Target returns the output raster for a picture of width x height.
func (p *PictureScale) Target(width, height int) (int, int) {
	if w, h, fixed := Raster(p.next); fixed {
		return w, h
	}
	factor := p.scale
	if p.softwareDownscale {
		factor /= 2
	}
	return evenDimension(float64(width) * factor), evenDimension(float64(height) * factor)
}

func evenDimension(v float64) int {
	d := int(math.Round(v)) &^ 1
	if d < 2 {
		d = 2
	}
	return d
}

// Scaled reports whether a stream is resized and to what raster.
func (p *PictureScale) Scaled(streamID int) (types.StreamInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.streams[streamID]
	if !ok {
		return types.StreamInfo{}, false
	}
	return s.dst, true
}

func (p *PictureScale) RegisterStream(info types.StreamInfo) bool {
	if info.Type != types.PictureStream {
		return p.next.RegisterStream(info)
	}
	w, h := p.Target(info.Width, info.Height)
	if w == info.Width && h == info.Height {
		return p.next.RegisterStream(info)
	}

	out := info.Clone()
	out.Width, out.Height = w, h
	if !p.next.RegisterStream(out) {
		return false
	}
	p.mu.Lock()
	p.streams[info.ID] = &scaledStream{src: info, dst: out}
	p.mu.Unlock()
	p.logger.Debug("picture stream scaled", "stream_id", info.ID,
		"from", fmt.Sprintf("%dx%d", info.Width, info.Height), "to", fmt.Sprintf("%dx%d", w, h))
	return true
}

func (p *PictureScale) StreamBuffer(streamID, size int) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.streams[streamID]; !ok {
		return p.next.StreamBuffer(streamID, size)
	}
	buf := p.frame[streamID]
	if cap(buf) < size {
		buf = make([]byte, size)
	}
	buf = buf[:size]
	p.frame[streamID] = buf
	return buf, nil
}

func (p *PictureScale) ReceiveStreamFrame(streamID int, data []byte) error {
	p.mu.Lock()
	s, ok := p.streams[streamID]
	p.mu.Unlock()
	if !ok {
		return p.next.ReceiveStreamFrame(streamID, data)
	}

	src, err := video.WrapPicture(s.src.Format, s.src.Width, s.src.Height, data)
	if err != nil {
		return err
	}
	buf, err := p.next.StreamBuffer(streamID, s.dst.FrameSize())
	if err != nil {
		return err
	}
	dst, err := video.WrapPicture(s.dst.Format, s.dst.Width, s.dst.Height, buf)
	if err != nil {
		return err
	}
	if err := src.ScaleInto(dst); err != nil {
		return err
	}
	return p.next.ReceiveStreamFrame(streamID, buf)
}

func (p *PictureScale) ResetOrClose() bool {
	p.mu.Lock()
	p.streams = make(map[int]*scaledStream)
	p.frame = make(map[int][]byte)
	p.mu.Unlock()
	return p.next.ResetOrClose()
}
