package osd

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/reelplay/internal/modules/playermodule/core/video"
	"github.com/mantonx/reelplay/internal/modules/playermodule/marks"
	"github.com/mantonx/reelplay/internal/modules/playermodule/menu"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

func newTestOSD(t *testing.T) (*OSD, *State) {
	t.Helper()
	state := NewState(hclog.NewNullLogger())
	return New(state, hclog.NewNullLogger()), state
}

func newPicture(t *testing.T, w, h int) *video.Picture {
	t.Helper()
	pic, err := video.NewPicture(types.FormatUYVY, w, h)
	require.NoError(t, err)
	return pic
}

func playingFrame() *types.FrameInfo {
	return &types.FrameInfo{
		Position:              100,
		SourceLength:          1000,
		AvailableSourceLength: 800,
		FrameRate:             types.Rate25,
		Speed:                 1,
		Locked:                true,
	}
}

func TestMagnificationCapped(t *testing.T) {
	assert.Equal(t, 1, magnificationFor(100))
	assert.Equal(t, 2, magnificationFor(576))
	assert.Equal(t, 3, magnificationFor(1080))
	assert.Equal(t, MaxMagnification, magnificationFor(4320))
}

func TestRender_ReinitialisesOnFormatChange(t *testing.T) {
	o, state := newTestOSD(t)
	primary := marks.NewModel(0)
	state.Marks().Attach(primary, nil)

	require.NoError(t, o.Render(newPicture(t, 720, 576), playingFrame()))
	format, ok := o.Format()
	require.True(t, ok)
	assert.Equal(t, 720, format.Width)

	bar := o.ProgressBar()
	assert.Equal(t, 576, bar.Width)
	assert.Zero(t, bar.Width%MarkAlignment)
	assert.Equal(t, bar.Buckets(), primary.NumBuckets())

	require.NoError(t, o.Render(newPicture(t, 1920, 1080), playingFrame()))
	format, _ = o.Format()
	assert.Equal(t, 1920, format.Width)
	assert.Equal(t, 1536, o.ProgressBar().Width)
	assert.Equal(t, 3, o.glyphs.mag)
}

func TestRender_PlayStatePaintsAndStaysInBounds(t *testing.T) {
	o, state := newTestOSD(t)
	state.SetAudioLevels([]float64{-20, -3})
	state.NotifyStateChange(time.Now())

	pic := newPicture(t, 720, 576)
	blank := pic.Clone()
	info := playingFrame()
	info.DroppedFrame = true
	info.FieldParity = 1
	info.MarkType = types.MarkVTRError
	info.IsMarked = true

	require.NoError(t, o.Render(pic, info))
	assert.Equal(t, 0, o.Skipped())
	assert.NotEqual(t, blank.Data, pic.Data)
	assert.Len(t, pic.Data, len(blank.Data))
}

func TestRender_SmallPictureSkipsElements(t *testing.T) {
	o, state := newTestOSD(t)
	state.NotifyStateChange(time.Now())
	state.SetAudioLevels([]float64{-10})

	pic := newPicture(t, 16, 16)
	require.NoError(t, o.Render(pic, playingFrame()))
	assert.Greater(t, o.Skipped(), 0)
	assert.Len(t, pic.Data, 16*16*2)
}

func TestLabels_EdgesFullyDrawnOrSkipped(t *testing.T) {
	o, state := newTestOSD(t)
	require.NoError(t, state.SetScreen(ScreenSourceInfo))

	// right edge of the reference image: cannot fit, must leave the picture untouched
	state.AddLabel(Label{Text: "EDGE", X: 719, Y: 0, RefWidth: 720, RefHeight: 576, Colour: video.White})
	pic := newPicture(t, 720, 576)
	before := pic.Clone()
	require.NoError(t, o.Render(pic, playingFrame()))
	assert.True(t, bytes.Equal(before.Data, pic.Data))
	assert.Equal(t, 1, o.Skipped())

	// top left corner with a box: the box itself would leave the picture
	state.ClearLabels()
	state.AddLabel(Label{Text: "BOX", X: 0, Y: 0, RefWidth: 720, RefHeight: 576, Colour: video.White, Box: true})
	require.NoError(t, o.Render(pic, playingFrame()))
	assert.True(t, bytes.Equal(before.Data, pic.Data))

	// top left corner without a box fits and is drawn
	state.ClearLabels()
	state.AddLabel(Label{Text: "OK", X: 0, Y: 0, RefWidth: 360, RefHeight: 288, Colour: video.White})
	require.NoError(t, o.Render(pic, playingFrame()))
	assert.False(t, bytes.Equal(before.Data, pic.Data))
	assert.Equal(t, 1, o.LabelCacheSize())
}

func TestLabels_CacheKeepsOnlyShownLabels(t *testing.T) {
	o, state := newTestOSD(t)
	require.NoError(t, state.SetScreen(ScreenSourceInfo))
	pic := newPicture(t, 720, 576)

	for round := 0; round < 3; round++ {
		state.ClearLabels()
		for i := 0; i < MaxLabels; i++ {
			require.True(t, state.AddLabel(Label{Text: fmt.Sprintf("r%d-%d", round, i), X: 10, Y: 10, Colour: video.White}))
		}
		require.NoError(t, o.Render(pic, playingFrame()))
		assert.LessOrEqual(t, o.LabelCacheSize(), MaxLabels)
	}

	state.ClearLabels()
	require.NoError(t, o.Render(pic, playingFrame()))
	assert.Zero(t, o.LabelCacheSize())
}

func TestGlyphs_TextComposedFromCells(t *testing.T) {
	g := newGlyphs(576)
	require.Equal(t, 2, g.mag)

	ab := g.text("AB")
	assert.Equal(t, 2*g.cellW, ab.Rect.Dx())
	assert.Equal(t, g.cellH, ab.Rect.Dy())

	a := g.cell('A')
	b := g.cell('B')
	for y := 0; y < g.cellH; y++ {
		for x := 0; x < g.cellW; x++ {
			require.Equal(t, a.AlphaAt(x, y), ab.AlphaAt(x, y))
			require.Equal(t, b.AlphaAt(x, y), ab.AlphaAt(g.cellW+x, y))
		}
	}

	// runes outside the font fall back to a replacement cell
	assert.NotNil(t, g.cell('\u4e2d'))
	assert.Equal(t, g.cellW, g.text("\u4e2d").Rect.Dx())
	assert.Equal(t, 1, g.text("").Rect.Dx())
}

func TestLabels_Bounded(t *testing.T) {
	state := NewState(hclog.NewNullLogger())
	for i := 0; i < MaxLabels; i++ {
		assert.True(t, state.AddLabel(Label{Text: "x"}))
	}
	assert.False(t, state.AddLabel(Label{Text: "overflow"}))
}

func TestTransportHoldReleasesTicker(t *testing.T) {
	o, state := newTestOSD(t)
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return start.Add(time.Second) }

	state.NotifyStateChange(start)
	pic := newPicture(t, 720, 576)
	require.NoError(t, o.Render(pic, playingFrame()))
	assert.True(t, state.TickerUser())

	o.now = func() time.Time { return start.Add(6 * time.Second) }
	require.NoError(t, o.Render(pic, playingFrame()))
	assert.False(t, state.TickerUser())

	// paused keeps the symbol up without the ticker
	paused := playingFrame()
	paused.Paused = true
	require.NoError(t, o.Render(pic, paused))
	assert.False(t, state.TickerUser())

	state.HighlightProgressBar(true)
	require.NoError(t, o.Render(pic, paused))
	assert.True(t, state.TickerUser())
}

func TestTicker_RefreshesOnlyForTickerUsers(t *testing.T) {
	state := NewState(hclog.NewNullLogger())
	var calls atomic.Int32
	state.SetRefreshHandler(func() { calls.Add(1) })

	require.NoError(t, state.StartTicker(context.Background()))
	assert.Error(t, state.StartTicker(context.Background()))
	defer state.StopTicker()

	time.Sleep(2 * TickInterval)
	assert.Equal(t, int32(0), calls.Load())

	state.SetTickerUser(true)
	assert.Eventually(t, func() bool { return calls.Load() > 0 }, 3*TickInterval, 20*time.Millisecond)
}

func TestMarkRowsClearDirtyBits(t *testing.T) {
	o, state := newTestOSD(t)
	primary := marks.NewModel(0)
	secondary := marks.NewModel(0)
	state.Marks().Attach(primary, secondary)
	state.Marks().SetActive(1)

	primary.Mark(10, types.MarkVTRError)
	secondary.Mark(500, types.MarkDigiBeta)

	require.NoError(t, o.Render(newPicture(t, 720, 576), playingFrame()))
	assert.False(t, primary.Dirty(types.MarkAllTypes))
	assert.False(t, secondary.Dirty(types.MarkAllTypes))
	assert.Equal(t, int64(1000), primary.Length())
}

func TestSelectTimecode(t *testing.T) {
	info := &types.FrameInfo{Position: 26, FrameRate: types.Rate25}
	settings := &Settings{TimecodeIndex: -1}

	label, tc := selectTimecode(info, settings)
	assert.Equal(t, "CTC", label)
	assert.Equal(t, "00:00:01:01", tc.String())

	info.AddTimecode(types.TimecodeInfo{Type: types.VITCTimecode, Timecode: types.Timecode{Frames: 90000, Base: 25}})
	info.AddTimecode(types.TimecodeInfo{Type: types.LTCTimecode, Timecode: types.Timecode{Frames: 25, Base: 25}})
	label, tc = selectTimecode(info, settings)
	assert.Equal(t, "VITC", label)
	assert.Equal(t, "01:00:00:00", tc.String())

	settings.TimecodeType = types.LTCTimecode
	label, _ = selectTimecode(info, settings)
	assert.Equal(t, "LTC", label)
}

func TestScreens(t *testing.T) {
	o, state := newTestOSD(t)
	assert.Equal(t, ScreenPlayState, state.Screen())
	assert.Equal(t, ScreenEmpty, state.NextScreen())
	assert.Equal(t, ScreenSourceInfo, state.NextScreen())
	assert.Error(t, state.SetScreen(Screen("bogus")))

	// empty screen leaves the picture alone
	require.NoError(t, state.SetScreen(ScreenEmpty))
	pic := newPicture(t, 720, 576)
	before := pic.Clone()
	require.NoError(t, o.Render(pic, playingFrame()))
	assert.Equal(t, before.Data, pic.Data)

	m := menu.NewModel("Review")
	m.Append("Play", menu.ItemNormal)
	m.Append("Quit", menu.ItemDisabled)
	state.SetMenu(m)
	require.NoError(t, state.SetScreen(ScreenMenu))
	require.NoError(t, o.Render(pic, playingFrame()))
	assert.NotEqual(t, before.Data, pic.Data)
	assert.Equal(t, 0, o.Skipped())

	state.SetSourceInfo([]types.SourceInfoValue{{Name: "name", Value: "a.mxf"}})
	require.NoError(t, state.SetScreen(ScreenSourceInfo))
	pic = newPicture(t, 720, 576)
	require.NoError(t, o.Render(pic, playingFrame()))
	assert.NotEqual(t, before.Data, pic.Data)
}
