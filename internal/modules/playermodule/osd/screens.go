package osd

import (
	"image"

	"github.com/mantonx/reelplay/internal/modules/playermodule/core/video"
	"github.com/mantonx/reelplay/internal/modules/playermodule/menu"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// labelMask returns the cached mask for a label text and keeps it for the
// next frame.
func (o *OSD) labelMask(l Label, keep map[labelKey]*image.Alpha) *image.Alpha {
	key := labelKey{text: l.Text, colour: l.Colour, mag: o.glyphs.mag}
	m, ok := o.labels[key]
	if !ok {
		m = o.glyphs.text(l.Text)
	}
	keep[key] = m
	return m
}

// LabelCacheSize returns the number of cached label masks.
func (o *OSD) LabelCacheSize() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.labels)
}

// drawLabels places each label by scaling its position from the reference
// image onto the picture. A label that does not fit is skipped whole. Masks
// of labels no longer shown are dropped from the cache.
func (o *OSD) drawLabels(pic *video.Picture, _ *types.FrameInfo, s *Settings) error {
	keep := make(map[labelKey]*image.Alpha, len(s.Labels))
	defer func() { o.labels = keep }()

	var firstErr error
	for _, l := range s.Labels {
		if l.Text == "" {
			continue
		}
		x, y := l.X, l.Y
		if l.RefWidth > 0 && l.RefHeight > 0 {
			x = l.X * pic.Width / l.RefWidth
			y = l.Y * pic.Height / l.RefHeight
		}
		if err := o.drawText(pic, o.labelMask(l, keep), x, y, l.Colour, l.Box); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (o *OSD) drawSourceInfo(pic *video.Picture, _ *types.FrameInfo, s *Settings) error {
	o.state.SetTickerUser(false)

	y := o.margin
	var firstErr error
	for _, v := range s.SourceInfo {
		text := v.Value
		if v.Name != "" {
			text = v.Name + ": " + v.Value
		}
		if err := o.drawText(pic, o.glyphs.text(text), o.margin, y, video.White, true); err != nil && firstErr == nil {
			firstErr = err
		}
		y += o.lineHeight()
	}
	return firstErr
}

func itemColour(state menu.ItemState) video.YUV {
	switch state {
	case menu.ItemDisabled:
		return video.Grey
	case menu.ItemSelected:
		return video.Green
	case menu.ItemHighlighted:
		return video.Yellow
	}
	return video.White
}

func (o *OSD) drawMenu(pic *video.Picture, _ *types.FrameInfo, s *Settings) error {
	o.state.SetTickerUser(false)
	if s.Menu == nil {
		return nil
	}
	title, items, current, _ := s.Menu.Snapshot()

	y := o.margin
	var firstErr error
	if title != "" {
		if err := o.drawText(pic, o.glyphs.text(title), o.margin, y, video.White, true); err != nil {
			firstErr = err
		}
		y += o.lineHeight() + o.glyphs.mag*4
	}

	indent := o.margin + o.glyphs.cellW*2
	for i, item := range items {
		mask := o.glyphs.text(item.Text)
		if i == current {
			r := image.Rect(indent, y, indent+mask.Rect.Dx(), y+mask.Rect.Dy()).Inset(-o.glyphs.mag * 2)
			if err := pic.FillRect(r, video.Blue, 200); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				y += o.lineHeight()
				continue
			}
		}
		if err := o.drawText(pic, mask, indent, y, itemColour(item.State), i != current); err != nil && firstErr == nil {
			firstErr = err
		}
		y += o.lineHeight()
	}
	return firstErr
}
