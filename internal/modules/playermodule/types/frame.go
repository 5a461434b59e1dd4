package types

import (
	"fmt"
)

// TimecodeType names where a timecode came from
type TimecodeType string

const (
	ControlTimecode TimecodeType = "ctc"
	SourceTimecode  TimecodeType = "src"
	VITCTimecode    TimecodeType = "vitc"
	LTCTimecode     TimecodeType = "ltc"
	SystemTimecode  TimecodeType = "sys"
	UnknownTimecode TimecodeType = ""
)

// Timecode is a frame count at a fixed integer base (25, 30, 50, ...)
type Timecode struct {
	Frames    int64 `json:"frames"`
	Base      int   `json:"base"`
	DropFrame bool  `json:"drop_frame,omitempty"`
}

// Components splits the frame count into hours, minutes, seconds and frames.
func (tc Timecode) Components() (h, m, s, f int) {
	base := tc.Base
	if base <= 0 {
		base = 25
	}
	total := tc.Frames
	if total < 0 {
		total = 0
	}
	f = int(total % int64(base))
	secs := total / int64(base)
	s = int(secs % 60)
	m = int((secs / 60) % 60)
	h = int((secs / 3600) % 24)
	return
}

func (tc Timecode) String() string {
	h, m, s, f := tc.Components()
	sep := ":"
	if tc.DropFrame {
		sep = ";"
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%02d", h, m, s, sep, f)
}

// TimecodeInfo is one timecode attached to a frame
type TimecodeInfo struct {
	StreamID int          `json:"stream_id"`
	Type     TimecodeType `json:"type"`
	SubType  string       `json:"sub_type,omitempty"`
	Timecode Timecode     `json:"timecode"`
}

// MaxFrameTimecodes bounds the timecode set carried per frame.
const MaxFrameTimecodes = 64

// NumMarkTypes is the number of distinct mark types (one bit each).
const NumMarkTypes = 32

// Mark type bits used by the review workflow. Callers may define others.
const (
	MarkVTRError   uint32 = 1 << 16
	MarkDigiBeta   uint32 = 1 << 17
	MarkPSEFailure uint32 = 1 << 18
	MarkAllTypes   uint32 = 0xffffffff
)

// MarkTypeFromPublic converts a public 1-based mark type number to its bit.
// Values outside 1..32 map to no bit.
func MarkTypeFromPublic(v int) uint32 {
	if v < 1 || v > NumMarkTypes {
		return 0
	}
	return 1 << uint(v-1)
}

// MarkTypeToPublic converts the lowest set bit back to the public number, or 0.
func MarkTypeToPublic(mask uint32) int {
	for i := 0; i < NumMarkTypes; i++ {
		if mask&(1<<uint(i)) != 0 {
			return i + 1
		}
	}
	return 0
}

// FrameInfo is the metadata travelling with one displayed frame
type FrameInfo struct {
	Position              int64 `json:"position"`
	SourceLength          int64 `json:"source_length"`
	AvailableSourceLength int64 `json:"available_source_length"`
	FrameCount            int64 `json:"frame_count"`

	FrameRate Rational `json:"frame_rate"`

	Speed    int  `json:"speed"`
	Paused   bool `json:"paused"`
	Reversed bool `json:"reversed"`
	IsRepeat bool `json:"is_repeat"`
	Muted    bool `json:"muted"`

	IsMarked bool   `json:"is_marked"`
	MarkType uint32 `json:"mark_type"`

	Locked        bool `json:"locked"`
	DroppedFrame  bool `json:"dropped_frame"`
	VTRErrorLevel int  `json:"vtr_error_level"`
	FieldParity   int  `json:"field_parity"` // 0 none, 1 first field, 2 second field

	Timecodes      []TimecodeInfo `json:"timecodes,omitempty"`
	ActiveTimecode int            `json:"active_timecode"`
}

// AddTimecode appends a timecode while the bound allows it.
func (f *FrameInfo) AddTimecode(tc TimecodeInfo) bool {
	if len(f.Timecodes) >= MaxFrameTimecodes {
		return false
	}
	f.Timecodes = append(f.Timecodes, tc)
	return true
}

// Clone copies the frame info including the timecode slice.
func (f *FrameInfo) Clone() *FrameInfo {
	if f == nil {
		return nil
	}
	c := *f
	if f.Timecodes != nil {
		c.Timecodes = append([]TimecodeInfo(nil), f.Timecodes...)
	}
	return &c
}

// StateEvent carries a player state change to listeners
type StateEvent struct {
	LockedChanged bool       `json:"locked_changed"`
	Locked        bool       `json:"locked"`
	PlayChanged   bool       `json:"play_changed"`
	Play          bool       `json:"play"`
	StopChanged   bool       `json:"stop_changed"`
	Stop          bool       `json:"stop"`
	SpeedChanged  bool       `json:"speed_changed"`
	Speed         int        `json:"speed"`
	Frame         *FrameInfo `json:"frame"`
}

// Any reports whether anything changed.
func (e *StateEvent) Any() bool {
	return e.LockedChanged || e.PlayChanged || e.StopChanged || e.SpeedChanged
}
