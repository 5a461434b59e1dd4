package sink

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// SilenceLevel is reported for a channel without signal, in dBFS.
const SilenceLevel = -96.0

// PeakLevels returns the peak level per channel of one frame of interleaved
// little-endian PCM, in dBFS.
func PeakLevels(data []byte, info types.StreamInfo) []float64 {
	channels := info.NumChannels
	bps := info.BytesPerSample()
	if channels <= 0 || bps < 2 || bps > 4 {
		return nil
	}

	peaks := make([]int64, channels)
	frameBytes := channels * bps
	for off := 0; off+frameBytes <= len(data); off += frameBytes {
		for ch := 0; ch < channels; ch++ {
			s := sample(data[off+ch*bps:], bps)
			if s < 0 {
				s = -s
			}
			if s > peaks[ch] {
				peaks[ch] = s
			}
		}
	}

	fullScale := float64(int64(1) << uint(bps*8-1))
	levels := make([]float64, channels)
	for ch, p := range peaks {
		if p == 0 {
			levels[ch] = SilenceLevel
			continue
		}
		l := 20 * math.Log10(float64(p)/fullScale)
		if l < SilenceLevel {
			l = SilenceLevel
		}
		levels[ch] = l
	}
	return levels
}

func sample(b []byte, bps int) int64 {
	switch bps {
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case 3:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		return int64((v << 8) >> 8)
	default:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	}
}

// AudioLevel meters the sound streams passing through and publishes the
// peak levels to the OSD, up to the configured number of monitors.
type AudioLevel struct {
	Passthrough
	logger   hclog.Logger
	monitors int

	mu      sync.Mutex
	streams []types.StreamInfo
	levels  map[int][]float64
}

// NewAudioLevel creates the metering stage.
func NewAudioLevel(next Sink, monitors int, logger hclog.Logger) *AudioLevel {
	return &AudioLevel{
		Passthrough: NewPassthrough(next),
		logger:      logger.Named("audio-level"),
		monitors:    monitors,
		levels:      make(map[int][]float64),
	}
}

func (a *AudioLevel) RegisterStream(info types.StreamInfo) bool {
	if !a.next.RegisterStream(info) {
		return false
	}
	if info.Type == types.SoundStream && info.Format == types.FormatPCM {
		a.mu.Lock()
		a.streams = append(a.streams, info)
		a.mu.Unlock()
	}
	return true
}

func (a *AudioLevel) ReceiveStreamFrame(streamID int, data []byte) error {
	a.mu.Lock()
	for _, s := range a.streams {
		if s.ID == streamID {
			a.levels[streamID] = PeakLevels(data, s)
			break
		}
	}
	a.mu.Unlock()
	return a.next.ReceiveStreamFrame(streamID, data)
}

// CompleteFrame publishes this frame's levels in stream order.
func (a *AudioLevel) CompleteFrame(info *types.FrameInfo) error {
	a.mu.Lock()
	var levels []float64
	for _, s := range a.streams {
		if len(levels) >= a.monitors {
			break
		}
		levels = append(levels, a.levels[s.ID]...)
	}
	if len(levels) > a.monitors {
		levels = levels[:a.monitors]
	}
	clear(a.levels)
	a.mu.Unlock()

	if state := a.next.OSD(); state != nil {
		state.SetAudioLevels(levels)
	}
	return a.next.CompleteFrame(info)
}

func (a *AudioLevel) CancelFrame() {
	a.mu.Lock()
	clear(a.levels)
	a.mu.Unlock()
	a.next.CancelFrame()
}

func (a *AudioLevel) ResetOrClose() bool {
	a.mu.Lock()
	a.streams = nil
	clear(a.levels)
	a.mu.Unlock()
	return a.next.ResetOrClose()
}

// AudioSwitch passes the sound streams of one source at a time. With snap
// to video enabled it follows the source shown by the video switch.
type AudioSwitch struct {
	Passthrough
	logger hclog.Logger

	mu          sync.Mutex
	groups      []int
	streamGroup map[int]int
	selected    int
	snap        bool
}

// NewAudioSwitch creates the audio switch.
func NewAudioSwitch(next Sink, snapToVideo bool, logger hclog.Logger) *AudioSwitch {
	return &AudioSwitch{
		Passthrough: NewPassthrough(next),
		logger:      logger.Named("audio-switch"),
		streamGroup: make(map[int]int),
		snap:        snapToVideo,
	}
}

// SnapToVideo reports whether the switch follows the video switch.
func (a *AudioSwitch) SnapToVideo() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}

// SetSnapToVideo enables or disables following the video switch.
func (a *AudioSwitch) SetSnapToVideo(enable bool) {
	a.mu.Lock()
	a.snap = enable
	a.mu.Unlock()
}

// NumGroups returns the number of sources with sound.
func (a *AudioSwitch) NumGroups() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

// SelectedGroup returns the group index in use.
func (a *AudioSwitch) SelectedGroup() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selected
}

// SwitchAudio selects a group and stops following the video switch.
func (a *AudioSwitch) SwitchAudio(group int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if group < 0 || group >= len(a.groups) {
		return false
	}
	a.selected = group
	a.snap = false
	return true
}

// NextAudio steps to the next group, wrapping around.
func (a *AudioSwitch) NextAudio() bool {
	return a.step(1)
}

// PrevAudio steps to the previous group, wrapping around.
func (a *AudioSwitch) PrevAudio() bool {
	return a.step(-1)
}

func (a *AudioSwitch) step(delta int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.groups)
	if n == 0 {
		return false
	}
	a.selected = ((a.selected+delta)%n + n) % n
	a.snap = false
	return true
}

func (a *AudioSwitch) RegisterStream(info types.StreamInfo) bool {
	if !a.next.RegisterStream(info) {
		return false
	}
	if info.Type != types.SoundStream {
		return true
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	group := -1
	for i, sourceID := range a.groups {
		if sourceID == info.SourceID {
			group = i
			break
		}
	}
	if group < 0 {
		a.groups = append(a.groups, info.SourceID)
		group = len(a.groups) - 1
	}
	a.streamGroup[info.ID] = group
	return true
}

// followVideo selects the group of the source the video switch shows.
func (a *AudioSwitch) followVideo() {
	vs, ok := Lookup[*VideoSwitch](a.next)
	if !ok {
		return
	}
	sourceID, ok := vs.SelectedSourceID()
	if !ok {
		return
	}
	for i, id := range a.groups {
		if id == sourceID {
			a.selected = i
			return
		}
	}
}

func (a *AudioSwitch) AcceptStreamFrame(streamID int, info *types.FrameInfo) bool {
	a.mu.Lock()
	group, isSound := a.streamGroup[streamID]
	if isSound {
		if a.snap {
			a.followVideo()
		}
		if group != a.selected {
			a.mu.Unlock()
			return false
		}
	}
	a.mu.Unlock()
	return a.next.AcceptStreamFrame(streamID, info)
}

func (a *AudioSwitch) ResetOrClose() bool {
	a.mu.Lock()
	a.groups = nil
	a.streamGroup = make(map[int]int)
	a.selected = 0
	a.mu.Unlock()
	return a.next.ResetOrClose()
}
