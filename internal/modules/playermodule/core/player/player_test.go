package player

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/reelplay/internal/config"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/engine"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/listener"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/pipeline"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/sink"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/source"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/video"
	"github.com/mantonx/reelplay/internal/modules/playermodule/osd"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

// pictureSource reports its blank fill as a real picture, standing in for a
// decoder backend.
type pictureSource struct {
	*source.Blank
}

func (p pictureSource) Streams() []types.StreamInfo {
	streams := p.Blank.Streams()
	for i := range streams {
		streams[i].Synthetic = false
	}
	return streams
}

// openMXF opens "a.mxf" and "b.mxf" as UYVY pictures of the given size.
func openMXF(w, h int) source.Opener {
	return func(_ context.Context, input types.PlayerInput, _ hclog.Logger) (source.Source, error) {
		if input.Name != "a.mxf" && input.Name != "b.mxf" {
			return nil, fmt.Errorf("%s: no such file", input.Name)
		}
		blank, err := source.NewBlank(input, types.StreamInfo{
			Type:        types.PictureStream,
			Format:      types.FormatUYVY,
			FrameRate:   types.Rate25,
			Width:       w,
			Height:      h,
			AspectRatio: types.Aspect4x3,
		})
		if err != nil {
			return nil, err
		}
		return pictureSource{blank}, nil
	}
}

type fixture struct {
	player    *Player
	configs   *config.Manager
	devices   *sink.DeviceRegistry
	listeners *listener.Registry
}

func newFixture(t *testing.T, width, height int) *fixture {
	t.Helper()
	logger := hclog.NewNullLogger()

	sources := source.NewRegistry(logger)
	require.NoError(t, sources.Register(types.InputMXF, openMXF(width, height)))
	devices := sink.NewDeviceRegistry(logger)
	configs := config.NewManager(logger)
	listeners := listener.NewRegistry(logger)

	p, err := New(Options{
		Builder:   pipeline.NewBuilder(sources, devices, logger),
		Config:    configs,
		Listeners: listeners,
		Engines:   engine.NewBasicFactory(engine.Options{FrameInterval: 5 * time.Millisecond, StartPaused: true}),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	return &fixture{player: p, configs: configs, devices: devices, listeners: listeners}
}

func mxf(name string) types.PlayerInput {
	return types.NewInput(types.InputMXF, name)
}

func blank() types.PlayerInput {
	return types.NewInput(types.InputBlank, "")
}

type sessionRecorder struct {
	mu      sync.Mutex
	started []SessionInfo
	closed  []string
}

func (r *sessionRecorder) SessionStarted(info SessionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, info)
}

func (r *sessionRecorder) SessionClosed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, id)
}

func (r *sessionRecorder) kinds() []BuildKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []BuildKind
	for _, s := range r.started {
		kinds = append(kinds, s.Build)
	}
	return kinds
}

type eventRecorder struct {
	listener.Base

	mu     sync.Mutex
	names  map[string]int
	closed atomic.Int32
}

func (r *eventRecorder) SourceNameChanged(index int, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names == nil {
		r.names = map[string]int{}
	}
	r.names[name] = index
}

func (r *eventRecorder) PlayerClosed() {
	r.closed.Add(1)
}

func (r *eventRecorder) indexOf(name string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.names[name]
	return idx, ok
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{}, hclog.NewNullLogger())
	assert.Error(t, err)
}

func TestStart_OpenedFollowsInputs(t *testing.T) {
	f := newFixture(t, 720, 576)

	opened, ok := f.player.Start(context.Background(), []types.PlayerInput{mxf("a.mxf"), mxf("missing.mxf"), blank()})
	require.True(t, ok)
	assert.Equal(t, []bool{true, false, true}, opened)

	assert.True(t, f.player.Running())
	assert.True(t, f.player.Play())
	assert.True(t, f.player.Pause())

	status := f.player.Status()
	assert.True(t, status.Live)
	assert.NotEmpty(t, status.SessionID)
	assert.Equal(t, types.OutputNull, status.OutputType)
	require.Len(t, status.Inputs, 3)
	assert.Equal(t, 1, status.Inputs[0].Index)
	assert.False(t, status.Inputs[1].Present)
	assert.Equal(t, 2, status.Inputs[2].Index)

	require.NotNil(t, f.player.Config())
	assert.Equal(t, "null", f.player.Config().Output.Type)
}

func TestStart_NoOpenableInputKeepsPrevious(t *testing.T) {
	f := newFixture(t, 64, 48)

	_, ok := f.player.Start(context.Background(), []types.PlayerInput{mxf("a.mxf")})
	require.True(t, ok)
	session := f.player.Status().SessionID

	opened, ok := f.player.Start(context.Background(), []types.PlayerInput{mxf("gone.mxf")})
	assert.False(t, ok)
	assert.Equal(t, []bool{false}, opened)

	assert.True(t, f.player.Pause())
	assert.True(t, f.player.Play())
	assert.Equal(t, session, f.player.Status().SessionID)
}

func TestStart_ResetKeepsSink(t *testing.T) {
	f := newFixture(t, 64, 48)
	sessions := &sessionRecorder{}
	f.player.AddSessionHook(sessions)
	inputs := []types.PlayerInput{mxf("a.mxf"), mxf("b.mxf")}

	_, ok := f.player.Start(context.Background(), inputs)
	require.True(t, ok)
	first := f.player.current()

	// buffering is not structural
	require.NoError(t, f.configs.UpdateNext(func(cfg *config.Config) {
		cfg.Output.BufferSize = 2
	}))
	_, ok = f.player.Start(context.Background(), inputs)
	require.True(t, ok)
	second := f.player.current()

	assert.Same(t, first.chain.Sink, second.chain.Sink)
	assert.NotEqual(t, first.sessionID, second.sessionID)
	assert.Equal(t, []BuildKind{BuildRebuild, BuildReset}, sessions.kinds())
	assert.Equal(t, []string{first.sessionID}, sessions.closed)
	assert.True(t, f.player.Play())
}

func TestStart_ResetAppliesOSDSettings(t *testing.T) {
	f := newFixture(t, 64, 48)
	inputs := []types.PlayerInput{mxf("a.mxf")}

	_, ok := f.player.Start(context.Background(), inputs)
	require.True(t, ok)
	first := f.player.current()
	assert.Equal(t, osd.DefaultPlayStateHold, first.chain.State.Snapshot().PlayStateHold)

	require.NoError(t, f.configs.UpdateNext(func(cfg *config.Config) {
		cfg.OSD.PlayStateHold = 42 * time.Second
		cfg.OSD.MarkColours = map[string]string{"2": "green"}
		cfg.OSD.Screen = string(osd.ScreenSourceInfo)
	}))
	_, ok = f.player.Start(context.Background(), inputs)
	require.True(t, ok)
	second := f.player.current()
	require.Same(t, first.chain.Sink, second.chain.Sink)

	settings := second.chain.State.Snapshot()
	assert.Equal(t, 42*time.Second, settings.PlayStateHold)
	assert.Equal(t, video.Green, settings.MarkColours[types.MarkTypeFromPublic(2)])
	assert.Equal(t, osd.ScreenSourceInfo, settings.Screen)
	assert.Equal(t, settings.PlayStateHold, f.configs.Current().OSD.PlayStateHold)
}

func TestStart_RebuildOnSameDeviceClosesItFirst(t *testing.T) {
	f := newFixture(t, 64, 48)
	var open, opened int
	require.NoError(t, f.devices.Register(types.OutputSDI, func(_ context.Context, _ sink.DeviceConfig, state *osd.State, logger hclog.Logger) (sink.Device, error) {
		if open > 0 {
			return sink.Device{}, fmt.Errorf("sdi card busy")
		}
		open++
		opened++
		return sink.Device{Sink: sink.NewFrameDevice(sink.FrameDeviceOptions{
			Name: "sdi",
			Close: func() error {
				open--
				return nil
			},
		}, state, logger)}, nil
	}))
	require.NoError(t, f.configs.UpdateNext(func(cfg *config.Config) {
		cfg.Output.Type = string(types.OutputSDI)
	}))
	inputs := []types.PlayerInput{mxf("a.mxf")}

	_, ok := f.player.Start(context.Background(), inputs)
	require.True(t, ok)
	first := f.player.current()

	require.NoError(t, f.configs.UpdateNext(func(cfg *config.Config) {
		cfg.Display.ScaleFilter = !cfg.Display.ScaleFilter
	}))
	_, ok = f.player.Start(context.Background(), inputs)
	require.True(t, ok)

	assert.NotSame(t, first.chain.Sink, f.player.current().chain.Sink)
	assert.Equal(t, 2, opened)
	assert.Equal(t, 1, open)
	assert.True(t, f.player.Play())
}

func TestStart_RebuildOnSameRawFile(t *testing.T) {
	f := newFixture(t, 64, 48)
	target := filepath.Join(t.TempDir(), "out.yuv")
	require.NoError(t, f.configs.UpdateNext(func(cfg *config.Config) {
		cfg.Output.Type = string(types.OutputRaw)
		cfg.Output.Device = target
	}))
	inputs := []types.PlayerInput{mxf("a.mxf")}
	size := func() int64 {
		fi, err := os.Stat(target)
		if err != nil {
			return 0
		}
		return fi.Size()
	}

	// a paused engine shows its first frame once
	_, ok := f.player.Start(context.Background(), inputs)
	require.True(t, ok)
	require.Eventually(t, func() bool { return size() > 0 }, 2*time.Second, 5*time.Millisecond)
	frame := size()

	require.True(t, f.player.Play())
	require.Eventually(t, func() bool { return size() >= 3*frame }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.configs.UpdateNext(func(cfg *config.Config) {
		cfg.Display.ScaleFilter = !cfg.Display.ScaleFilter
	}))
	_, ok = f.player.Start(context.Background(), inputs)
	require.True(t, ok)
	require.Eventually(t, func() bool { return size() == frame }, 2*time.Second, 5*time.Millisecond)

	f.player.Close()
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Len(t, data, int(frame))
}

func TestStart_StructuralChangeRebuilds(t *testing.T) {
	f := newFixture(t, 64, 48)
	sessions := &sessionRecorder{}
	f.player.AddSessionHook(sessions)
	inputs := []types.PlayerInput{mxf("a.mxf")}

	_, ok := f.player.Start(context.Background(), inputs)
	require.True(t, ok)
	first := f.player.current()

	target := filepath.Join(t.TempDir(), "out.yuv")
	require.NoError(t, f.configs.UpdateNext(func(cfg *config.Config) {
		cfg.Output.Type = string(types.OutputRaw)
		cfg.Output.Device = target
	}))
	_, ok = f.player.Start(context.Background(), inputs)
	require.True(t, ok)
	second := f.player.current()

	assert.NotSame(t, first.chain.Sink, second.chain.Sink)
	assert.Equal(t, []BuildKind{BuildRebuild, BuildRebuild}, sessions.kinds())
	assert.Equal(t, types.OutputRaw, f.player.Status().OutputType)
}

func TestStart_VideoFormatChangeRebuilds(t *testing.T) {
	f := newFixture(t, 64, 48)

	_, ok := f.player.Start(context.Background(), []types.PlayerInput{mxf("a.mxf")})
	require.True(t, ok)
	first := f.player.current()

	// a lone blank input uses the default 720x576 picture
	_, ok = f.player.Start(context.Background(), []types.PlayerInput{blank()})
	require.True(t, ok)
	assert.NotSame(t, first.chain.Sink, f.player.current().chain.Sink)
}

func TestStart_WindowIDIgnoredForHardware(t *testing.T) {
	f := newFixture(t, 64, 48)
	require.NoError(t, f.devices.Register(types.OutputSDI, func(_ context.Context, _ sink.DeviceConfig, state *osd.State, logger hclog.Logger) (sink.Device, error) {
		return sink.Device{Sink: sink.NewFrameDevice(sink.FrameDeviceOptions{Name: "sdi"}, state, logger)}, nil
	}))
	require.NoError(t, f.configs.UpdateNext(func(cfg *config.Config) {
		cfg.Output.Type = string(types.OutputSDI)
	}))
	inputs := []types.PlayerInput{mxf("a.mxf")}

	_, ok := f.player.Start(context.Background(), inputs)
	require.True(t, ok)
	first := f.player.current()

	require.NoError(t, f.configs.UpdateNext(func(cfg *config.Config) {
		cfg.Output.WindowID = 42
	}))
	_, ok = f.player.Start(context.Background(), inputs)
	require.True(t, ok)
	assert.Same(t, first.chain.Sink, f.player.current().chain.Sink)
}

func TestStart_UnavailableDeviceKeepsPrevious(t *testing.T) {
	f := newFixture(t, 64, 48)
	var sdiOpened, sdiClosed int
	require.NoError(t, f.devices.Register(types.OutputSDI, func(_ context.Context, _ sink.DeviceConfig, state *osd.State, logger hclog.Logger) (sink.Device, error) {
		sdiOpened++
		return sink.Device{Sink: sink.NewFrameDevice(sink.FrameDeviceOptions{
			Name: "sdi",
			Close: func() error {
				sdiClosed++
				return nil
			},
		}, state, logger)}, nil
	}))
	inputs := []types.PlayerInput{mxf("a.mxf")}

	_, ok := f.player.Start(context.Background(), inputs)
	require.True(t, ok)
	first := f.player.current()

	// no x11 backend: the SDI device opens and is closed again
	require.NoError(t, f.configs.UpdateNext(func(cfg *config.Config) {
		cfg.Output.Type = string(types.OutputDualSDIX11)
	}))
	opened, ok := f.player.Start(context.Background(), inputs)
	assert.False(t, ok)
	assert.Equal(t, []bool{true}, opened)
	assert.Equal(t, 1, sdiOpened)
	assert.Equal(t, 1, sdiClosed)

	assert.Same(t, first, f.player.current())
	assert.True(t, f.player.Play())
	assert.Equal(t, "null", f.player.Config().Output.Type)
}

func TestSwitchVideo_ListenerIndexRoundTrip(t *testing.T) {
	f := newFixture(t, 64, 48)
	events := &eventRecorder{}
	reg := f.listeners.Register(events, nil)
	defer reg.Close()

	_, ok := f.player.Start(context.Background(), []types.PlayerInput{mxf("a.mxf"), mxf("missing.mxf"), mxf("b.mxf")})
	require.True(t, ok)

	st := f.player.current()
	require.NotNil(t, st.chain.VideoSwitch)
	for i, sourceID := range st.build.SourceIDs {
		if sourceID < 0 {
			continue
		}
		name := fmt.Sprintf("input-%d", i)
		st.build.Source.SetSourceName(sourceID, name)

		index, ok := events.indexOf(name)
		require.True(t, ok, name)
		require.True(t, f.player.SwitchVideo(index))

		selected, ok := st.chain.VideoSwitch.SelectedSourceID()
		require.True(t, ok)
		assert.Equal(t, sourceID, selected)
		assert.Equal(t, index, f.player.Status().VideoIndex)
	}

	assert.False(t, f.player.SwitchVideo(3))
}

func TestSwitchVideo_MXFAndBlank(t *testing.T) {
	f := newFixture(t, 720, 576)

	opened, ok := f.player.Start(context.Background(), []types.PlayerInput{mxf("a.mxf"), blank()})
	require.True(t, ok)
	assert.Equal(t, []bool{true, true}, opened)

	st := f.player.current()
	sw := st.chain.VideoSwitch
	require.NotNil(t, sw)
	assert.Equal(t, 2, sw.NumStreams())

	mxfID := st.build.SourceIDs[0]
	selected, ok := sw.SelectedSourceID()
	require.True(t, ok)
	assert.Equal(t, mxfID, selected)

	require.True(t, f.player.SwitchVideo(0))
	assert.Equal(t, 0, sw.SelectedIndex())

	require.True(t, f.player.SwitchVideo(1))
	selected, ok = sw.SelectedSourceID()
	require.True(t, ok)
	assert.Equal(t, mxfID, selected)

	require.True(t, f.player.SwitchVideo(2))
	selected, ok = sw.SelectedSourceID()
	require.True(t, ok)
	assert.Equal(t, st.build.SourceIDs[1], selected)
}

func TestReset_KeepsSink(t *testing.T) {
	f := newFixture(t, 64, 48)

	_, ok := f.player.Start(context.Background(), []types.PlayerInput{mxf("a.mxf")})
	require.True(t, ok)
	first := f.player.current()

	require.True(t, f.player.Reset(context.Background()))
	second := f.player.current()
	assert.Same(t, first.chain.Sink, second.chain.Sink)
	assert.Equal(t, first.inputs, second.inputs)
	assert.True(t, f.player.Play())
}

func TestReset_DeviceFailureCloses(t *testing.T) {
	f := newFixture(t, 64, 48)
	events := &eventRecorder{}
	f.listeners.Register(events, nil)

	var deviceClosed int
	require.NoError(t, f.devices.Register(types.OutputX11, func(_ context.Context, _ sink.DeviceConfig, state *osd.State, logger hclog.Logger) (sink.Device, error) {
		return sink.Device{Sink: sink.NewFrameDevice(sink.FrameDeviceOptions{
			Name:  "x11",
			Reset: func() error { return fmt.Errorf("display went away") },
			Close: func() error {
				deviceClosed++
				return nil
			},
		}, state, logger)}, nil
	}))
	require.NoError(t, f.configs.UpdateNext(func(cfg *config.Config) {
		cfg.Output.Type = string(types.OutputX11)
	}))

	_, ok := f.player.Start(context.Background(), []types.PlayerInput{mxf("a.mxf")})
	require.True(t, ok)

	assert.False(t, f.player.Reset(context.Background()))
	assert.Nil(t, f.player.current())
	assert.False(t, f.player.Status().Live)
	assert.False(t, f.player.Play())
	assert.Equal(t, 1, deviceClosed)
	assert.Equal(t, int32(1), events.closed.Load())
}

func TestReset_WithoutPipeline(t *testing.T) {
	f := newFixture(t, 64, 48)
	assert.False(t, f.player.Reset(context.Background()))
}

func TestStopAndClose(t *testing.T) {
	f := newFixture(t, 64, 48)
	events := &eventRecorder{}
	f.listeners.Register(events, nil)
	sessions := &sessionRecorder{}
	f.player.AddSessionHook(sessions)

	assert.False(t, f.player.Play())
	assert.False(t, f.player.SwitchVideo(0))

	_, ok := f.player.Start(context.Background(), []types.PlayerInput{mxf("a.mxf")})
	require.True(t, ok)
	generation := f.player.Generation()

	f.player.Stop()
	assert.False(t, f.player.Running())
	assert.False(t, f.player.Play())
	assert.True(t, f.player.Status().Live)

	// a stopped pipeline is reset by the next start
	_, ok = f.player.Start(context.Background(), []types.PlayerInput{mxf("a.mxf")})
	require.True(t, ok)
	assert.True(t, f.player.Play())
	assert.Greater(t, f.player.Generation(), generation)

	f.player.Close()
	assert.False(t, f.player.Running())
	assert.Empty(t, f.player.SourceIndexMap())
	assert.Equal(t, int32(1), events.closed.Load())

	sessions.mu.Lock()
	assert.Len(t, sessions.started, 2)
	assert.Len(t, sessions.closed, 2)
	sessions.mu.Unlock()

	// closing twice is harmless
	f.player.Close()
	assert.Equal(t, int32(1), events.closed.Load())
}

func TestMark_PublicTypeNumbers(t *testing.T) {
	f := newFixture(t, 64, 48)

	assert.False(t, f.player.Mark(1, false))

	_, ok := f.player.Start(context.Background(), []types.PlayerInput{mxf("a.mxf")})
	require.True(t, ok)

	assert.False(t, f.player.Mark(0, false))
	assert.False(t, f.player.Mark(33, false))
	assert.True(t, f.player.Mark(1, false))
	assert.True(t, f.player.Mark(3, false))
	assert.True(t, f.player.ClearMark(3))
	assert.True(t, f.player.ClearAllMarks(-1))
	assert.False(t, f.player.ClearAllMarks(0))
	assert.True(t, f.player.SetMarkDisplayMask([]int{1, 2}))
}

func TestSnapAudioToVideo_NeedsRealPicture(t *testing.T) {
	f := newFixture(t, 64, 48)

	_, ok := f.player.Start(context.Background(), []types.PlayerInput{blank()})
	require.True(t, ok)
	assert.False(t, f.player.SnapAudioToVideo(true))
	assert.True(t, f.player.SnapAudioToVideo(false))

	_, ok = f.player.Start(context.Background(), []types.PlayerInput{mxf("a.mxf")})
	require.True(t, ok)
	assert.True(t, f.player.SnapAudioToVideo(true))
}

func TestOSDControls(t *testing.T) {
	f := newFixture(t, 64, 48)
	_, ok := f.player.Start(context.Background(), []types.PlayerInput{mxf("a.mxf")})
	require.True(t, ok)

	assert.True(t, f.player.SetOSDScreen(osd.ScreenSourceInfo))
	assert.Equal(t, osd.ScreenSourceInfo, f.player.Status().Screen)
	assert.True(t, f.player.NextOSDScreen())
	assert.True(t, f.player.HighlightProgressBar(true))
	assert.True(t, f.player.SetActiveMarks(1))
	assert.True(t, f.player.ClearLabels())
}
