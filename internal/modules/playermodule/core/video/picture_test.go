package video

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

func TestNewPicture_Formats(t *testing.T) {
	formats := []types.StreamFormat{types.FormatUYVY, types.FormatYUV422, types.FormatYUV420, types.FormatYUV444}
	for _, format := range formats {
		t.Run(string(format), func(t *testing.T) {
			p, err := NewPicture(format, 16, 8)
			require.NoError(t, err)
			assert.Equal(t, FrameSize(format, 16, 8), len(p.Data))

			assert.Equal(t, Black.Y, p.Luma(15, 7))
			u, v := p.Chroma(15, 7)
			assert.Equal(t, Black.U, u)
			assert.Equal(t, Black.V, v)
		})
	}

	_, err := NewPicture(types.FormatPCM, 16, 8)
	assert.ErrorIs(t, err, playererrors.ErrUnsupportedFormat)
}

func TestWrapPicture_ShortBuffer(t *testing.T) {
	_, err := WrapPicture(types.FormatUYVY, 4, 4, make([]byte, 10))
	assert.Error(t, err)

	p, err := WrapPicture(types.FormatUYVY, 4, 4, make([]byte, 64))
	require.NoError(t, err)
	assert.Len(t, p.Data, 32)
}

func TestFillRect_OutOfBoundsLeavesPictureUntouched(t *testing.T) {
	p, err := NewPicture(types.FormatUYVY, 16, 16)
	require.NoError(t, err)
	before := p.Clone()

	err = p.FillRect(image.Rect(10, 10, 20, 12), White, 255)
	assert.ErrorIs(t, err, playererrors.ErrOutOfBounds)
	assert.Equal(t, before.Data, p.Data)

	require.NoError(t, p.FillRect(image.Rect(2, 2, 6, 4), White, 255))
	assert.Equal(t, White.Y, p.Luma(2, 2))
	assert.Equal(t, White.Y, p.Luma(5, 3))
	assert.Equal(t, Black.Y, p.Luma(6, 3))
}

func TestBlendMask(t *testing.T) {
	p, err := NewPicture(types.FormatYUV420, 8, 8)
	require.NoError(t, err)

	mask := image.NewAlpha(image.Rect(0, 0, 2, 2))
	mask.Pix[0] = 255
	mask.Pix[3] = 128

	require.NoError(t, p.BlendMask(mask, 2, 2, White, 255))
	assert.Equal(t, White.Y, p.Luma(2, 2))
	assert.Equal(t, Black.Y, p.Luma(3, 2))
	assert.Greater(t, p.Luma(3, 3), Black.Y)
	assert.Less(t, p.Luma(3, 3), White.Y)

	before := p.Clone()
	assert.ErrorIs(t, p.BlendMask(mask, 7, 7, White, 255), playererrors.ErrOutOfBounds)
	assert.ErrorIs(t, p.BlendMask(mask, -1, 0, White, 255), playererrors.ErrOutOfBounds)
	assert.Equal(t, before.Data, p.Data)
}

func TestCopyDecimated_QuadSlot(t *testing.T) {
	src, err := NewPicture(types.FormatUYVY, 8, 8)
	require.NoError(t, err)
	src.Fill(Red)

	dst, err := NewPicture(types.FormatUYVY, 8, 8)
	require.NoError(t, err)

	require.NoError(t, dst.CopyDecimated(src, 4, 4, 2))
	assert.Equal(t, Red.Y, dst.Luma(4, 4))
	assert.Equal(t, Red.Y, dst.Luma(7, 7))
	assert.Equal(t, Black.Y, dst.Luma(3, 3))
	u, v := dst.Chroma(6, 6)
	assert.Equal(t, Red.U, u)
	assert.Equal(t, Red.V, v)

	other, err := NewPicture(types.FormatYUV420, 8, 8)
	require.NoError(t, err)
	assert.ErrorIs(t, dst.CopyDecimated(other, 0, 0, 2), playererrors.ErrUnsupportedFormat)
}

func TestScaleInto(t *testing.T) {
	src, err := NewPicture(types.FormatYUV422, 4, 4)
	require.NoError(t, err)
	require.NoError(t, src.FillRect(image.Rect(2, 0, 4, 4), White, 255))

	dst, err := NewPicture(types.FormatYUV422, 8, 8)
	require.NoError(t, err)
	require.NoError(t, src.ScaleInto(dst))

	assert.Equal(t, Black.Y, dst.Luma(3, 0))
	assert.Equal(t, White.Y, dst.Luma(4, 0))
	assert.Equal(t, White.Y, dst.Luma(7, 7))
}

func TestColourByName(t *testing.T) {
	c, ok := ColourByName("Orange")
	assert.True(t, ok)
	assert.Equal(t, Orange, c)

	_, ok = ColourByName("mauve")
	assert.False(t, ok)
}
