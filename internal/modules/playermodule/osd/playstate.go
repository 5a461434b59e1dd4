package osd

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/mantonx/reelplay/internal/modules/playermodule/core/video"
	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/marks"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// Audio ladder range and fixed reference lines in dBFS
const (
	ladderFloor   = -60.0
	referenceZero = 0.0
	referenceLow  = -40.0
)

func (o *OSD) playStateElements() []element {
	return []element{
		{"transport", o.drawTransport},
		{"mark_types", o.drawMarkTypes},
		{"timecode", o.drawTimecode},
		{"progress_bar", o.drawProgressBar},
		{"lock", o.drawLock},
		{"dropped_frame", o.drawDroppedFrame},
		{"audio_levels", o.drawAudioLevels},
		{"field", o.drawField},
		{"labels", o.drawLabels},
	}
}

// transportVisible reports whether the transport symbol is shown and keeps
// the ticker running while the hold window is open.
func (o *OSD) transportVisible(info *types.FrameInfo, s *Settings) bool {
	inHold := !s.LastStateChange.IsZero() && o.now().Sub(s.LastStateChange) < s.PlayStateHold
	o.state.SetTickerUser((inHold && !info.Paused) || s.ProgressHighlight)
	return info.Paused || inHold
}

func transportSymbol(info *types.FrameInfo) (symbol, string) {
	speed := info.Speed
	switch {
	case info.Paused || speed == 0:
		return symbolPause, ""
	case speed == 1 && !info.Reversed:
		return symbolPlay, ""
	case speed < 0 || info.Reversed:
		if speed < 0 {
			speed = -speed
		}
		return symbolRewind, fmt.Sprintf("x%d", speed)
	default:
		return symbolFastForward, fmt.Sprintf("x%d", speed)
	}
}

func (o *OSD) drawTransport(pic *video.Picture, info *types.FrameInfo, s *Settings) error {
	if !o.transportVisible(info, s) {
		return nil
	}
	kind, speed := transportSymbol(info)
	sym := o.glyphs.symbol(kind)
	x, y := o.margin, o.margin
	if err := o.drawText(pic, sym, x, y, video.White, true); err != nil {
		return err
	}
	if speed == "" {
		return nil
	}
	return o.drawText(pic, o.glyphs.text(speed), x+sym.Rect.Dx()+o.glyphs.cellW, y, video.White, true)
}

func markColour(s *Settings, bit uint32) video.YUV {
	if c, ok := s.MarkColours[bit]; ok {
		return c
	}
	return video.White
}

func (o *OSD) drawMarkTypes(pic *video.Picture, info *types.FrameInfo, s *Settings) error {
	markType := info.MarkType
	if info.IsMarked && markType == 0 {
		markType = 1
	}
	if markType == 0 && info.VTRErrorLevel == 0 {
		return nil
	}

	size := o.glyphs.cellH / 2
	x := o.margin
	y := o.margin + o.lineHeight()
	for b := 0; b < types.NumMarkTypes; b++ {
		bit := uint32(1) << uint(b)
		if markType&bit == 0 {
			continue
		}
		if err := pic.FillRect(image.Rect(x, y, x+size, y+size), markColour(s, bit), 255); err != nil {
			return err
		}
		x += size + o.glyphs.mag*2
	}
	if info.VTRErrorLevel > 0 {
		text := o.glyphs.text(fmt.Sprintf("VTR %d", info.VTRErrorLevel))
		return o.drawText(pic, text, x+o.glyphs.mag*2, y, video.Orange, false)
	}
	return nil
}

// selectTimecode picks the timecode to show: an explicit type, an explicit
// index, the frame's active timecode or finally a control timecode derived
// from the position.
func selectTimecode(info *types.FrameInfo, s *Settings) (string, types.Timecode) {
	if s.TimecodeType != types.UnknownTimecode {
		for _, tc := range info.Timecodes {
			if tc.Type == s.TimecodeType {
				return strings.ToUpper(string(tc.Type)), tc.Timecode
			}
		}
	}
	idx := s.TimecodeIndex
	if idx < 0 {
		idx = info.ActiveTimecode
	}
	if idx >= 0 && idx < len(info.Timecodes) {
		tc := info.Timecodes[idx]
		return strings.ToUpper(string(tc.Type)), tc.Timecode
	}

	base := int(math.Round(info.FrameRate.Float()))
	if base <= 0 {
		base = 25
	}
	return strings.ToUpper(string(types.ControlTimecode)), types.Timecode{Frames: info.Position, Base: base}
}

func (o *OSD) drawTimecode(pic *video.Picture, info *types.FrameInfo, s *Settings) error {
	label, tc := selectTimecode(info, s)
	text := tc.String()
	if label != "" {
		text = label + " " + text
	}
	mask := o.glyphs.text(text)
	x := (pic.Width - mask.Rect.Dx()) / 2
	y := o.bar.Y - 2*o.bar.RowHeight - o.glyphs.mag*4 - o.glyphs.cellH
	return o.drawText(pic, mask, x, y, video.White, true)
}

func (o *OSD) drawProgressBar(pic *video.Picture, info *types.FrameInfo, s *Settings) error {
	if info.SourceLength <= 0 || o.bar.Buckets() <= 0 {
		return nil
	}
	bar := o.bar
	buckets := bar.Buckets()
	rowsTop := bar.Y - 2*bar.RowHeight

	if !pic.Contains(image.Rect(bar.X, rowsTop, bar.X+bar.Width, bar.Y+bar.Height)) {
		return playererrors.ErrOutOfBounds
	}

	// base bar with rounded end caps
	inner := image.Rect(bar.X+bar.EndCap, bar.Y, bar.X+bar.Width-bar.EndCap, bar.Y+bar.Height)
	if err := pic.FillRect(inner, video.Grey, 220); err != nil {
		return err
	}
	for i := 0; i < bar.EndCap; i++ {
		inset := bar.EndCap - i - 1
		if inset > bar.Height/2-1 {
			inset = bar.Height/2 - 1
		}
		left := image.Rect(bar.X+i, bar.Y+inset, bar.X+i+1, bar.Y+bar.Height-inset)
		right := image.Rect(bar.X+bar.Width-i-1, bar.Y+inset, bar.X+bar.Width-i, bar.Y+bar.Height-inset)
		_ = pic.FillRect(left, video.Grey, 220)
		_ = pic.FillRect(right, video.Grey, 220)
	}

	// available length
	available := info.AvailableSourceLength
	if available <= 0 || available > info.SourceLength {
		available = info.SourceLength
	}
	if fillW := int(available * int64(buckets) / info.SourceLength); fillW > 0 {
		r := image.Rect(inner.Min.X, bar.Y+bar.Height/4, inner.Min.X+fillW, bar.Y+bar.Height-bar.Height/4)
		if err := pic.FillRect(r, video.LightGrey, 255); err != nil {
			return err
		}
	}

	o.drawMarkRows(pic, info, s, inner.Min.X, rowsTop, buckets)

	// position pointer
	pos := info.Position
	px := inner.Min.X + int(pos*int64(buckets)/info.SourceLength)
	if px >= inner.Max.X {
		px = inner.Max.X - 1
	}
	colour := video.White
	switch {
	case s.ProgressHighlight:
		colour = video.Yellow
	case pos <= 0 || pos >= info.SourceLength-1:
		colour = video.Red
	}
	half := o.glyphs.mag
	pointer := image.Rect(px-half, rowsTop, px+half+1, bar.Y+bar.Height)
	if !pic.Contains(pointer) {
		pointer = pointer.Intersect(image.Rect(bar.X, rowsTop, bar.X+bar.Width, bar.Y+bar.Height))
	}
	return pic.FillRect(pointer, colour, 255)
}

// drawMarkRows paints the primary and secondary mark rows above the bar. The
// bucket snapshot is regenerated only when the model changed.
func (o *OSD) drawMarkRows(pic *video.Picture, info *types.FrameInfo, s *Settings, x0, y0, width int) {
	if s.Marks == nil {
		return
	}
	primary, secondary := s.Marks.Models()
	active := s.Marks.ActiveIndex()

	for row, m := range []*marks.Model{primary, secondary} {
		if m == nil {
			o.marks[row] = markCache{}
			continue
		}
		m.SetLength(info.SourceLength)

		cache := &o.marks[row]
		if cache.model != m || cache.version != m.Version() || cache.mask != s.MarkDisplayMask ||
			m.Dirty(s.MarkDisplayMask) {
			cache.model = m
			cache.version = m.Version()
			cache.mask = s.MarkDisplayMask
			cache.buckets = m.Snapshot(s.MarkDisplayMask)
		}
		n := len(cache.buckets)
		if n == 0 {
			continue
		}

		opacity := uint8(255)
		if row != active {
			opacity = 128
		}
		y := y0 + row*o.bar.RowHeight
		for i, bits := range cache.buckets {
			if bits == 0 {
				continue
			}
			x := x0 + i*width/n
			lowest := bits & -bits
			_ = pic.FillRect(image.Rect(x, y, x+1, y+o.bar.RowHeight), markColour(s, lowest), opacity)
		}
	}
}

func (o *OSD) drawLock(pic *video.Picture, info *types.FrameInfo, _ *Settings) error {
	if !info.Locked {
		return nil
	}
	size := o.glyphs.cellH / 2
	x := pic.Width - o.margin - size
	colour := video.Green
	if info.DroppedFrame {
		colour = video.Red
	}
	return pic.FillRect(image.Rect(x, o.margin, x+size, o.margin+size), colour, 255)
}

func (o *OSD) drawDroppedFrame(pic *video.Picture, info *types.FrameInfo, _ *Settings) error {
	if !info.DroppedFrame {
		return nil
	}
	mask := o.glyphs.text("DROPPED FRAME")
	x := (pic.Width - mask.Rect.Dx()) / 2
	return o.drawText(pic, mask, x, o.margin, video.Red, true)
}

// levelHeight maps a dBFS level onto the ladder height.
func levelHeight(level float64, height int) int {
	if level < ladderFloor {
		level = ladderFloor
	}
	if level > 0 {
		level = 0
	}
	return int((level - ladderFloor) / -ladderFloor * float64(height))
}

func (o *OSD) drawAudioLevels(pic *video.Picture, _ *types.FrameInfo, s *Settings) error {
	if len(s.AudioLevels) == 0 {
		return nil
	}
	mag := o.glyphs.mag
	barW := 2 * mag
	height := pic.Height / 3
	bottom := o.bar.Y - 2*o.bar.RowHeight - o.lineHeight() - o.margin
	top := bottom - height
	width := len(s.AudioLevels)*(barW+mag) + mag
	x0 := o.margin

	area := image.Rect(x0-mag, top-mag, x0+width+mag, bottom+mag)
	if !pic.Contains(area) {
		return playererrors.ErrOutOfBounds
	}
	if err := pic.FillRect(area, video.Black, 160); err != nil {
		return err
	}

	for ch, level := range s.AudioLevels {
		h := levelHeight(level, height)
		x := x0 + mag + ch*(barW+mag)
		colour := video.Green
		switch {
		case level >= referenceZero:
			colour = video.Red
		case level >= s.AudioLineup:
			colour = video.Yellow
		}
		if h > 0 {
			if err := pic.FillRect(image.Rect(x, bottom-h, x+barW, bottom), colour, 255); err != nil {
				return err
			}
		}
	}

	for _, ref := range []struct {
		level  float64
		colour video.YUV
	}{
		{referenceZero, video.Red},
		{s.AudioLineup, video.Yellow},
		{referenceLow, video.LightGrey},
	} {
		y := bottom - levelHeight(ref.level, height)
		if y >= bottom {
			y = bottom - 1
		}
		if err := pic.FillRect(image.Rect(x0, y, x0+width, y+1), ref.colour, 255); err != nil {
			return err
		}
	}
	return nil
}

func (o *OSD) drawField(pic *video.Picture, info *types.FrameInfo, _ *Settings) error {
	if info.FieldParity != 1 && info.FieldParity != 2 {
		return nil
	}
	mask := o.glyphs.text(fmt.Sprintf("F%d", info.FieldParity))
	x := pic.Width - o.margin - mask.Rect.Dx()
	y := o.bar.Y - 2*o.bar.RowHeight - o.glyphs.mag*4 - o.glyphs.cellH
	return o.drawText(pic, mask, x, y, video.White, true)
}
