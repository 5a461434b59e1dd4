// Package video provides the uncompressed picture buffers that flow through
// the sink chain and the pixel operations the OSD and the switch/scale stages
// paint with.
package video

import (
	"fmt"
	"image"
	"strings"

	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// YUV is a BT.601 video-range colour
type YUV struct {
	Y, U, V uint8
}

// Standard overlay colours
var (
	White     = YUV{235, 128, 128}
	LightGrey = YUV{180, 128, 128}
	Grey      = YUV{126, 128, 128}
	Black     = YUV{16, 128, 128}
	Red       = YUV{81, 90, 240}
	Green     = YUV{145, 54, 34}
	Blue      = YUV{41, 240, 110}
	Yellow    = YUV{210, 16, 146}
	Cyan      = YUV{170, 166, 16}
	Magenta   = YUV{106, 202, 222}
	Orange    = YUV{151, 44, 201}
)

var namedColours = map[string]YUV{
	"white":      White,
	"light_grey": LightGrey,
	"grey":       Grey,
	"black":      Black,
	"red":        Red,
	"green":      Green,
	"blue":       Blue,
	"yellow":     Yellow,
	"cyan":       Cyan,
	"magenta":    Magenta,
	"orange":     Orange,
}

// ColourByName looks up one of the standard overlay colours.
func ColourByName(name string) (YUV, bool) {
	c, ok := namedColours[strings.ToLower(name)]
	return c, ok
}

// Picture is one uncompressed frame in one of the 8-bit picture formats
type Picture struct {
	Format types.StreamFormat
	Width  int
	Height int
	Data   []byte
}

// FrameSize returns the byte size of a picture.
func FrameSize(format types.StreamFormat, width, height int) int {
	info := types.StreamInfo{Format: format, Width: width, Height: height}
	return info.FrameSize()
}

// NewPicture allocates a black picture.
func NewPicture(format types.StreamFormat, width, height int) (*Picture, error) {
	if !format.IsPicture() {
		return nil, playererrors.ErrUnsupportedFormat
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid picture dimensions %dx%d", width, height)
	}
	p := &Picture{
		Format: format,
		Width:  width,
		Height: height,
		Data:   make([]byte, FrameSize(format, width, height)),
	}
	p.Fill(Black)
	return p, nil
}

// WrapPicture uses an existing buffer without copying.
func WrapPicture(format types.StreamFormat, width, height int, data []byte) (*Picture, error) {
	if !format.IsPicture() {
		return nil, playererrors.ErrUnsupportedFormat
	}
	need := FrameSize(format, width, height)
	if len(data) < need {
		return nil, fmt.Errorf("picture buffer too small: %d < %d", len(data), need)
	}
	return &Picture{Format: format, Width: width, Height: height, Data: data[:need]}, nil
}

// chromaSubsampling returns the horizontal and vertical chroma decimation.
func (p *Picture) chromaSubsampling() (sx, sy int) {
	switch p.Format {
	case types.FormatUYVY, types.FormatYUV422:
		return 2, 1
	case types.FormatYUV420:
		return 2, 2
	}
	return 1, 1
}

func (p *Picture) chromaSize() (cw, ch int) {
	sx, sy := p.chromaSubsampling()
	return p.Width / sx, p.Height / sy
}

func (p *Picture) yIndex(x, y int) int {
	if p.Format == types.FormatUYVY {
		return y*p.Width*2 + (x>>1)*4 + 1 + (x&1)*2
	}
	return y*p.Width + x
}

func (p *Picture) uvIndex(cx, cy int) (ui, vi int) {
	if p.Format == types.FormatUYVY {
		base := cy*p.Width*2 + cx*4
		return base, base + 2
	}
	cw, ch := p.chromaSize()
	lumaSize := p.Width * p.Height
	off := cy*cw + cx
	return lumaSize + off, lumaSize + cw*ch + off
}

// Luma returns the Y sample at (x, y).
func (p *Picture) Luma(x, y int) uint8 {
	return p.Data[p.yIndex(x, y)]
}

// Chroma returns the U and V samples sited at luma position (x, y).
func (p *Picture) Chroma(x, y int) (u, v uint8) {
	sx, sy := p.chromaSubsampling()
	ui, vi := p.uvIndex(x/sx, y/sy)
	return p.Data[ui], p.Data[vi]
}

// Bounds returns the picture rectangle.
func (p *Picture) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.Width, p.Height)
}

// Contains reports whether r lies completely inside the picture.
func (p *Picture) Contains(r image.Rectangle) bool {
	return !r.Empty() && r.In(p.Bounds())
}

// Fill sets every pixel to c.
func (p *Picture) Fill(c YUV) {
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			p.Data[p.yIndex(x, y)] = c.Y
		}
	}
	cw, ch := p.chromaSize()
	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			ui, vi := p.uvIndex(cx, cy)
			p.Data[ui] = c.U
			p.Data[vi] = c.V
		}
	}
}

// FillRect paints an opaque or translucent box. The box must lie completely
// inside the picture; nothing is written otherwise.
func (p *Picture) FillRect(r image.Rectangle, c YUV, alpha uint8) error {
	if !p.Contains(r) {
		return playererrors.ErrOutOfBounds
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := p.yIndex(x, y)
			p.Data[i] = blend(p.Data[i], c.Y, alpha)
		}
	}
	sx, sy := p.chromaSubsampling()
	for cy := r.Min.Y / sy; cy*sy < r.Max.Y; cy++ {
		for cx := r.Min.X / sx; cx*sx < r.Max.X; cx++ {
			ui, vi := p.uvIndex(cx, cy)
			p.Data[ui] = blend(p.Data[ui], c.U, alpha)
			p.Data[vi] = blend(p.Data[vi], c.V, alpha)
		}
	}
	return nil
}

// BlendMask paints colour c through an alpha mask whose top-left corner is
// placed at (x, y). The mask must fit completely inside the picture.
func (p *Picture) BlendMask(mask *image.Alpha, x, y int, c YUV, opacity uint8) error {
	if mask == nil {
		return nil
	}
	mb := mask.Bounds()
	dst := image.Rect(x, y, x+mb.Dx(), y+mb.Dy())
	if !p.Contains(dst) {
		return playererrors.ErrOutOfBounds
	}

	for my := 0; my < mb.Dy(); my++ {
		for mx := 0; mx < mb.Dx(); mx++ {
			a := mulAlpha(mask.AlphaAt(mb.Min.X+mx, mb.Min.Y+my).A, opacity)
			if a == 0 {
				continue
			}
			i := p.yIndex(x+mx, y+my)
			p.Data[i] = blend(p.Data[i], c.Y, a)
		}
	}

	sx, sy := p.chromaSubsampling()
	for cy := dst.Min.Y / sy; cy*sy < dst.Max.Y; cy++ {
		for cx := dst.Min.X / sx; cx*sx < dst.Max.X; cx++ {
			// sample the mask at the chroma siting, clamped into the mask
			mx := cx*sx - x
			if mx < 0 {
				mx = 0
			}
			my := cy*sy - y
			if my < 0 {
				my = 0
			}
			a := mulAlpha(mask.AlphaAt(mb.Min.X+mx, mb.Min.Y+my).A, opacity)
			if a == 0 {
				continue
			}
			ui, vi := p.uvIndex(cx, cy)
			p.Data[ui] = blend(p.Data[ui], c.U, a)
			p.Data[vi] = blend(p.Data[vi], c.V, a)
		}
	}
	return nil
}

// CopyDecimated copies src into the rectangle starting at (dx, dy), taking
// every divisor-th sample. Formats must match.
func (p *Picture) CopyDecimated(src *Picture, dx, dy, divisor int) error {
	if src.Format != p.Format {
		return fmt.Errorf("%w: %s into %s", playererrors.ErrUnsupportedFormat, src.Format, p.Format)
	}
	if divisor < 1 {
		divisor = 1
	}
	w, h := src.Width/divisor, src.Height/divisor
	dst := image.Rect(dx, dy, dx+w, dy+h).Intersect(p.Bounds())
	if dst.Empty() {
		return playererrors.ErrOutOfBounds
	}

	for y := dst.Min.Y; y < dst.Max.Y; y++ {
		sy := (y - dy) * divisor
		for x := dst.Min.X; x < dst.Max.X; x++ {
			p.Data[p.yIndex(x, y)] = src.Data[src.yIndex((x-dx)*divisor, sy)]
		}
	}

	csx, csy := p.chromaSubsampling()
	for cy := dst.Min.Y / csy; cy*csy < dst.Max.Y; cy++ {
		sy := (cy*csy - dy) * divisor
		if sy < 0 || sy >= src.Height {
			continue
		}
		for cx := dst.Min.X / csx; cx*csx < dst.Max.X; cx++ {
			sx := (cx*csx - dx) * divisor
			if sx < 0 || sx >= src.Width {
				continue
			}
			sui, svi := src.uvIndex(sx/csx, sy/csy)
			ui, vi := p.uvIndex(cx, cy)
			p.Data[ui] = src.Data[sui]
			p.Data[vi] = src.Data[svi]
		}
	}
	return nil
}

// ScaleInto resamples p into dst with nearest-neighbour sampling. Formats
// must match.
func (p *Picture) ScaleInto(dst *Picture) error {
	if dst.Format != p.Format {
		return fmt.Errorf("%w: %s into %s", playererrors.ErrUnsupportedFormat, p.Format, dst.Format)
	}
	for y := 0; y < dst.Height; y++ {
		sy := y * p.Height / dst.Height
		for x := 0; x < dst.Width; x++ {
			sx := x * p.Width / dst.Width
			dst.Data[dst.yIndex(x, y)] = p.Data[p.yIndex(sx, sy)]
		}
	}
	scw, sch := p.chromaSize()
	dcw, dch := dst.chromaSize()
	for cy := 0; cy < dch; cy++ {
		sy := cy * sch / dch
		for cx := 0; cx < dcw; cx++ {
			sx := cx * scw / dcw
			sui, svi := p.uvIndex(sx, sy)
			ui, vi := dst.uvIndex(cx, cy)
			dst.Data[ui] = p.Data[sui]
			dst.Data[vi] = p.Data[svi]
		}
	}
	return nil
}

// Clone copies the picture and its buffer.
func (p *Picture) Clone() *Picture {
	c := *p
	c.Data = append([]byte(nil), p.Data...)
	return &c
}

func blend(dst, src, a uint8) uint8 {
	if a == 255 {
		return src
	}
	return uint8((int(dst)*(255-int(a)) + int(src)*int(a) + 127) / 255)
}

func mulAlpha(a, opacity uint8) uint8 {
	return uint8((int(a)*int(opacity) + 127) / 255)
}
