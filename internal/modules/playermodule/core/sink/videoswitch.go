package sink

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/modules/playermodule/core/source"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/video"
	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// VideoSwitch selects one of the registered picture streams, or composites
// up to four (quad) or nine (nona) of them into a split view, and hands a
// single picture stream downstream.
//
// Index 0 is the split view when splitting is enabled and the first stream
// otherwise; index k selects the k-th registered picture stream.
type VideoSwitch struct {
	Passthrough
	logger hclog.Logger
	split  types.VideoSplit
	master *VideoSwitch

	mu           sync.Mutex
	streams      []types.StreamInfo
	output       types.StreamInfo
	haveOutput   bool
	selected     int
	userSelected bool
	announced    int

	frame       map[int][]byte
	outAccepted bool
}

// NewVideoSwitch creates a switch over next.
func NewVideoSwitch(next Sink, split types.VideoSplit, logger hclog.Logger) *VideoSwitch {
	if split == "" {
		split = types.NoSplit
	}
	return &VideoSwitch{
		Passthrough: NewPassthrough(next),
		logger:      logger.Named("video-switch"),
		split:       split,
		announced:   -1,
		frame:       make(map[int][]byte),
	}
}

// NewSlaveVideoSwitch creates a switch that always shows what master shows.
// It is used on the secondary branch of a dual output whose raster differs.
func NewSlaveVideoSwitch(next Sink, master *VideoSwitch, logger hclog.Logger) *VideoSwitch {
	s := NewVideoSwitch(next, master.split, logger)
	s.logger = logger.Named("video-switch-slave")
	s.master = master
	return s
}

// Split returns the split mode.
func (v *VideoSwitch) Split() types.VideoSplit {
	return v.split
}

// NumStreams returns the number of registered picture streams.
func (v *VideoSwitch) NumStreams() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.streams)
}

// RegisterStream collects picture streams and registers one output picture
// stream downstream, sized to the device raster when it is fixed.
func (v *VideoSwitch) RegisterStream(info types.StreamInfo) bool {
	if info.Type != types.PictureStream {
		return v.next.RegisterStream(info)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.haveOutput {
		out := info.Clone()
		if w, h, fixed := Raster(v.next); fixed {
			out.Width, out.Height = w, h
		}
		out.Synthetic = false
		if !v.next.RegisterStream(out) {
			return false
		}
		v.output = out
		v.haveOutput = true
	} else if info.Format != v.output.Format {
		v.logger.Debug("picture stream format differs from output", "stream_id", info.ID,
			"format", info.Format, "output_format", v.output.Format)
		return false
	}

	v.streams = append(v.streams, info)
	if !v.userSelected {
		v.selected = v.initialSelection()
	}
	return true
}

// initialSelection prefers the split view, then the first real picture.
func (v *VideoSwitch) initialSelection() int {
	if v.split != types.NoSplit {
		return 0
	}
	for i, s := range v.streams {
		if !s.Synthetic {
			return i + 1
		}
	}
	return 1
}

// SwitchVideo selects an index. A slave switch cannot be switched directly.
func (v *VideoSwitch) SwitchVideo(index int) bool {
	if v.master != nil {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if index < 0 || index > len(v.streams) {
		return false
	}
	if index == 0 && v.split == types.NoSplit && len(v.streams) == 0 {
		return false
	}
	v.selected = index
	v.userSelected = true
	return true
}

// NextVideo steps to the next index, wrapping around.
func (v *VideoSwitch) NextVideo() bool {
	return v.step(1)
}

// PrevVideo steps to the previous index, wrapping around.
func (v *VideoSwitch) PrevVideo() bool {
	return v.step(-1)
}

func (v *VideoSwitch) step(delta int) bool {
	if v.master != nil {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	n := len(v.streams)
	if n == 0 {
		return false
	}
	first := 1
	if v.split != types.NoSplit {
		first = 0
	}
	span := n - first + 1
	cur := v.effective() - first
	v.selected = first + ((cur+delta)%span+span)%span
	v.userSelected = true
	return true
}

// SelectedIndex returns the current index; a slave reports its master's.
func (v *VideoSwitch) SelectedIndex() int {
	if v.master != nil {
		return v.master.SelectedIndex()
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selected
}

// effective maps index 0 to the first stream when not splitting.
func (v *VideoSwitch) effective() int {
	if v.selected == 0 && v.split == types.NoSplit {
		return 1
	}
	return v.selected
}

// SelectedSourceID returns the source id shown, or false for the split view.
func (v *VideoSwitch) SelectedSourceID() (int, bool) {
	idx := v.SelectedIndex()
	v.mu.Lock()
	defer v.mu.Unlock()
	if idx == 0 && v.split == types.NoSplit {
		idx = 1
	}
	if idx < 1 || idx > len(v.streams) {
		return 0, false
	}
	return v.streams[idx-1].SourceID, true
}

// IndexOfSource returns the index of the first picture stream of a source.
func (v *VideoSwitch) IndexOfSource(sourceID int) (int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, s := range v.streams {
		if s.SourceID == sourceID {
			return i + 1, true
		}
	}
	return 0, false
}

func (v *VideoSwitch) streamIndex(streamID int) int {
	for i, s := range v.streams {
		if s.ID == streamID {
			return i
		}
	}
	return -1
}

// showing reports whether the stream at position i is part of the current
// view.
func (v *VideoSwitch) showing(i, selected int) bool {
	if selected == 0 && v.split != types.NoSplit {
		return i < v.split.Slots()
	}
	if selected == 0 {
		selected = 1
	}
	return i == selected-1
}

func (v *VideoSwitch) AcceptStreamFrame(streamID int, info *types.FrameInfo) bool {
	selected := v.SelectedIndex()

	v.mu.Lock()
	defer v.mu.Unlock()

	i := v.streamIndex(streamID)
	if i < 0 {
		return v.next.AcceptStreamFrame(streamID, info)
	}
	if !v.showing(i, selected) {
		return false
	}
	if !v.outAccepted {
		if !v.next.AcceptStreamFrame(v.output.ID, info) {
			return false
		}
		v.outAccepted = true
	}
	v.frame[streamID] = nil
	return true
}

func (v *VideoSwitch) StreamBuffer(streamID, size int) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.streamIndex(streamID) < 0 {
		return v.next.StreamBuffer(streamID, size)
	}
	if _, ok := v.frame[streamID]; !ok {
		return nil, fmt.Errorf("stream %d not accepted", streamID)
	}
	buf := make([]byte, size)
	v.frame[streamID] = buf
	return buf, nil
}

func (v *VideoSwitch) ReceiveStreamFrame(streamID int, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.streamIndex(streamID) < 0 {
		return v.next.ReceiveStreamFrame(streamID, data)
	}
	if _, ok := v.frame[streamID]; !ok {
		return fmt.Errorf("stream %d not accepted", streamID)
	}
	v.frame[streamID] = data
	return nil
}

// CompleteFrame builds the output picture from the accepted streams.
func (v *VideoSwitch) CompleteFrame(info *types.FrameInfo) error {
	selected := v.SelectedIndex()

	v.mu.Lock()
	if v.outAccepted {
		if err := v.compose(selected); err != nil {
			v.logger.Debug("video switch compose failed", "error", err)
		}
	}
	v.outAccepted = false
	clear(v.frame)
	announce := v.master == nil && selected != v.announced
	if announce {
		v.announced = selected
	}
	sourceInfo := v.sourceInfo(selected)
	v.mu.Unlock()

	if announce {
		if state := v.next.OSD(); state != nil {
			state.SetSourceInfo(sourceInfo)
		}
	}
	return v.next.CompleteFrame(info)
}

func (v *VideoSwitch) compose(selected int) error {
	out := v.output
	buf, err := v.next.StreamBuffer(out.ID, out.FrameSize())
	if err != nil {
		return err
	}
	outPic, err := video.WrapPicture(out.Format, out.Width, out.Height, buf)
	if err != nil {
		return err
	}

	if selected == 0 && v.split != types.NoSplit {
		outPic.Fill(video.Black)
		div := v.split.Divisor()
		for i, s := range v.streams {
			if i >= v.split.Slots() {
				break
			}
			data := v.frame[s.ID]
			if data == nil {
				continue
			}
			src, err := video.WrapPicture(s.Format, s.Width, s.Height, data)
			if err != nil {
				continue
			}
			x := (i % div) * out.Width / div &^ 1
			y := (i / div) * out.Height / div
			if err := outPic.CopyDecimated(src, x, y, div); err != nil {
				v.logger.Debug("split slot skipped", "slot", i, "error", err)
			}
		}
	} else {
		if selected == 0 {
			selected = 1
		}
		if selected > len(v.streams) {
			return playererrors.ErrNoPictureStream
		}
		s := v.streams[selected-1]
		data := v.frame[s.ID]
		if data == nil {
			return playererrors.ErrNoPictureStream
		}
		if s.Width == out.Width && s.Height == out.Height {
			copy(outPic.Data, data)
		} else {
			src, err := video.WrapPicture(s.Format, s.Width, s.Height, data)
			if err != nil {
				return err
			}
			if err := src.ScaleInto(outPic); err != nil {
				return err
			}
		}
	}
	return v.next.ReceiveStreamFrame(out.ID, buf)
}

func (v *VideoSwitch) sourceInfo(selected int) []types.SourceInfoValue {
	if selected == 0 && v.split != types.NoSplit {
		var out []types.SourceInfoValue
		for i, s := range v.streams {
			if i >= v.split.Slots() {
				break
			}
			out = append(out, types.SourceInfoValue{
				Name:  strconv.Itoa(i + 1),
				Value: sourceName(s),
			})
		}
		return out
	}
	if selected == 0 {
		selected = 1
	}
	if selected > len(v.streams) {
		return nil
	}
	return append([]types.SourceInfoValue(nil), v.streams[selected-1].SourceInfo...)
}

func sourceName(s types.StreamInfo) string {
	if name := source.SourceName(s); name != "" {
		return name
	}
	return fmt.Sprintf("source %d", s.SourceID)
}

func (v *VideoSwitch) CancelFrame() {
	v.mu.Lock()
	v.outAccepted = false
	clear(v.frame)
	v.mu.Unlock()
	v.next.CancelFrame()
}

// ResetOrClose forgets the registered streams and the selection.
func (v *VideoSwitch) ResetOrClose() bool {
	v.mu.Lock()
	v.streams = nil
	v.haveOutput = false
	v.selected = 0
	v.userSelected = false
	v.announced = -1
	v.outAccepted = false
	clear(v.frame)
	v.mu.Unlock()
	return v.next.ResetOrClose()
}
