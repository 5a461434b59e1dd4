// Package osd composites the on-screen display onto decoded pictures: the
// transport state, timecodes, marks and progress bar of the play state
// screen, source annotations, the menu and caller supplied labels.
//
// Settings live in a State shared by every renderer of a sink chain and are
// changed out of band from rendering. Each output device owns one OSD
// renderer which (re)initialises itself whenever the picture format changes.
package osd

import (
	"image"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/modules/playermodule/core/video"
	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/marks"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// ProgressBarPercent is the share of the picture width the progress bar spans.
const ProgressBarPercent = 80

// MarkAlignment is the pixel boundary the progress bar width is rounded down to.
const MarkAlignment = 8

type labelKey struct {
	text   string
	colour video.YUV
	mag    int
}

type markCache struct {
	model   *marks.Model
	version uint64
	mask    uint32
	buckets []uint32
}

// BarGeometry is the placement of the progress bar for one raster
type BarGeometry struct {
	X, Y          int
	Width, Height int
	EndCap        int
	RowHeight     int
}

// Buckets is the number of mark buckets between the end caps.
func (b BarGeometry) Buckets() int {
	return b.Width - 2*b.EndCap
}

// element is one overlay of a screen
type element struct {
	name string
	draw func(pic *video.Picture, info *types.FrameInfo, s *Settings) error
}

// OSD renders the overlays for one output device
type OSD struct {
	logger hclog.Logger
	state  *State
	now    func() time.Time

	mu          sync.Mutex
	format      types.VideoFormat
	initialised bool
	glyphs      *glyphs
	bar         BarGeometry
	margin      int
	labels      map[labelKey]*image.Alpha
	marks       [2]markCache
	skipped     int
}

// New creates a renderer for the shared settings.
func New(state *State, logger hclog.Logger) *OSD {
	return &OSD{
		logger: logger.Named("osd-render"),
		state:  state,
		now:    time.Now,
		labels: make(map[labelKey]*image.Alpha),
	}
}

// State returns the shared settings.
func (o *OSD) State() *State {
	return o.state
}

// Initialise prepares glyphs and the progress bar geometry for a raster.
func (o *OSD) Initialise(format types.VideoFormat) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initialise(format)
}

func (o *OSD) initialise(format types.VideoFormat) error {
	if !format.Format.IsPicture() || format.Width <= 0 || format.Height <= 0 {
		o.initialised = false
		return playererrors.OverlayError("initialise", playererrors.ErrUnsupportedFormat)
	}

	o.format = format
	o.glyphs = newGlyphs(format.Height)
	mag := o.glyphs.mag
	o.margin = 8 * mag

	width := (format.Width * ProgressBarPercent / 100) &^ (MarkAlignment - 1)
	height := 4 * mag
	o.bar = BarGeometry{
		X:         (format.Width - width) / 2,
		Y:         format.Height - o.margin - height,
		Width:     width,
		Height:    height,
		EndCap:    height / 2,
		RowHeight: 2 * mag,
	}

	o.labels = make(map[labelKey]*image.Alpha)
	o.marks = [2]markCache{}
	o.state.Marks().Resize(o.bar.Buckets())
	o.initialised = true

	o.logger.Debug("osd initialised", "format", format, "magnification", mag, "progress_bar_width", width)
	return nil
}

// Format returns the raster the renderer is initialised for.
func (o *OSD) Format() (types.VideoFormat, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.format, o.initialised
}

// ProgressBar returns the progress bar geometry.
func (o *OSD) ProgressBar() BarGeometry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bar
}

// Skipped returns how many overlay elements were skipped because they failed.
func (o *OSD) Skipped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.skipped
}

// Render paints the active screen onto pic. Elements that fail are logged
// and left out; the picture is never written outside its bounds.
func (o *OSD) Render(pic *video.Picture, info *types.FrameInfo) error {
	if pic == nil || info == nil {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.initialised || o.format.Format != pic.Format || o.format.Width != pic.Width || o.format.Height != pic.Height {
		format := types.VideoFormat{Format: pic.Format, Width: pic.Width, Height: pic.Height, AspectRatio: o.format.AspectRatio}
		if err := o.initialise(format); err != nil {
			return err
		}
	}

	settings := o.state.Snapshot()
	var elements []element
	switch settings.Screen {
	case ScreenPlayState:
		elements = o.playStateElements()
	case ScreenSourceInfo:
		elements = []element{{"source_info", o.drawSourceInfo}, {"labels", o.drawLabels}}
	case ScreenMenu:
		elements = []element{{"menu", o.drawMenu}}
	case ScreenEmpty:
		o.state.SetTickerUser(settings.ProgressHighlight)
		return nil
	}

	for _, el := range elements {
		if err := el.draw(pic, info, &settings); err != nil {
			o.skipped++
			o.logger.Debug("osd element skipped", "element", el.name,
				"error", playererrors.OverlayError(el.name, err))
		}
	}
	return nil
}

// drawText paints a mask at (x, y), optionally on a translucent box. The
// whole element is checked against the picture first.
func (o *OSD) drawText(pic *video.Picture, mask *image.Alpha, x, y int, colour video.YUV, box bool) error {
	r := image.Rect(x, y, x+mask.Rect.Dx(), y+mask.Rect.Dy())
	if box {
		pad := o.glyphs.mag * 2
		boxRect := r.Inset(-pad)
		if !pic.Contains(boxRect) {
			return playererrors.ErrOutOfBounds
		}
		if err := pic.FillRect(boxRect, video.Black, 160); err != nil {
			return err
		}
	}
	return pic.BlendMask(mask, x, y, colour, 255)
}

// lineHeight is the vertical distance between text rows.
func (o *OSD) lineHeight() int {
	return o.glyphs.cellH + o.glyphs.mag*5
}
