package osd

import (
	"image"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MaxMagnification caps how far glyphs are scaled up on large rasters.
const MaxMagnification = 4

// glyphs renders text and transport symbols at one magnification
type glyphs struct {
	mag   int
	cellW int
	cellH int
	runes map[rune]*image.Alpha
}

// magnificationFor scales the 13 pixel base font with the picture height,
// one step per 288 lines.
func magnificationFor(height int) int {
	mag := height / 288
	if mag < 1 {
		mag = 1
	}
	if mag > MaxMagnification {
		mag = MaxMagnification
	}
	return mag
}

// newGlyphs renders every rune of the font once at the magnification for
// height. Text is composed from these cells.
func newGlyphs(height int) *glyphs {
	face := basicfont.Face7x13
	mag := magnificationFor(height)
	g := &glyphs{
		mag:   mag,
		cellW: face.Advance * mag,
		cellH: face.Height * mag,
		runes: make(map[rune]*image.Alpha),
	}
	for _, rng := range face.Ranges {
		for r := rng.Low; r < rng.High; r++ {
			g.runes[r] = magnify(renderRune(r), mag)
		}
	}
	return g
}

func renderRune(r rune) *image.Alpha {
	face := basicfont.Face7x13
	m := image.NewAlpha(image.Rect(0, 0, face.Advance, face.Height))
	d := &font.Drawer{
		Dst:  m,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(string(r))
	return m
}

// cell returns the mask for r, or the replacement glyph when the font has
// none.
func (g *glyphs) cell(r rune) *image.Alpha {
	if m, ok := g.runes[r]; ok {
		return m
	}
	if m, ok := g.runes['\ufffd']; ok {
		return m
	}
	return g.runes['?']
}

// text renders s as an alpha mask, one cell per rune.
func (g *glyphs) text(s string) *image.Alpha {
	n := utf8.RuneCountInString(s)
	w := n * g.cellW
	if w == 0 {
		w = 1
	}
	dst := image.NewAlpha(image.Rect(0, 0, w, g.cellH))
	x := 0
	for _, r := range s {
		src := g.cell(r)
		if src != nil {
			for y := 0; y < g.cellH; y++ {
				row := dst.Pix[dst.PixOffset(x, y):]
				copy(row[:g.cellW], src.Pix[src.PixOffset(0, y):src.PixOffset(0, y)+g.cellW])
			}
		}
		x += g.cellW
	}
	return dst
}

// symbol kinds for the transport indicator
type symbol int

const (
	symbolPlay symbol = iota
	symbolPause
	symbolFastForward
	symbolRewind
	symbolStop
)

// symbol renders a transport symbol one text cell high.
func (g *glyphs) symbol(kind symbol) *image.Alpha {
	size := g.cellH
	m := image.NewAlpha(image.Rect(0, 0, size*2, size))
	switch kind {
	case symbolPlay:
		triangle(m, 0, size, false)
	case symbolPause:
		bar := size / 3
		fill(m, image.Rect(0, 0, bar, size))
		fill(m, image.Rect(size-bar, 0, size, size))
	case symbolFastForward:
		triangle(m, 0, size, false)
		triangle(m, size, size, false)
	case symbolRewind:
		triangle(m, 0, size, true)
		triangle(m, size, size, true)
	case symbolStop:
		fill(m, image.Rect(0, 0, size, size))
	}
	return m
}

// triangle draws a size x size triangle pointing right (or left when
// reversed) starting at x0.
func triangle(m *image.Alpha, x0, size int, reversed bool) {
	half := size / 2
	for y := 0; y < size; y++ {
		dy := y - half
		if dy < 0 {
			dy = -dy
		}
		span := size - 2*dy
		if span <= 0 {
			continue
		}
		if reversed {
			fill(m, image.Rect(x0+size-span, y, x0+size, y+1))
		} else {
			fill(m, image.Rect(x0, y, x0+span, y+1))
		}
	}
}

func fill(m *image.Alpha, r image.Rectangle) {
	r = r.Intersect(m.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.Pix[m.PixOffset(x, y)] = 0xff
		}
	}
}

// magnify scales a mask up by an integer factor.
func magnify(src *image.Alpha, mag int) *image.Alpha {
	if mag <= 1 {
		return src
	}
	b := src.Bounds()
	dst := image.NewAlpha(image.Rect(0, 0, b.Dx()*mag, b.Dy()*mag))
	for y := 0; y < dst.Rect.Dy(); y++ {
		for x := 0; x < dst.Rect.Dx(); x++ {
			dst.Pix[dst.PixOffset(x, y)] = src.Pix[src.PixOffset(b.Min.X+x/mag, b.Min.Y+y/mag)]
		}
	}
	return dst
}
