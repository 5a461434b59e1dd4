// Package pipeline assembles the fan-in source and the sink chain a player
// state runs on.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/config"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/sink"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/source"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/video"
	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/osd"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
	"github.com/mantonx/reelplay/internal/utils"
)

// SourceBuild is the outcome of BuildSource
type SourceBuild struct {
	Source source.Source

	// Opened reports per requested input whether it opened itself. Present
	// is also set for inputs replaced by blank fill.
	Opened  []bool
	Present []bool

	// SourceIDs holds the source id of every present input, -1 otherwise.
	SourceIDs []int

	// Picture is the picture stream that drives the display. It is
	// synthetic when no input supplies a real picture.
	Picture            types.StreamInfo
	HasRealPicture     bool
	SoftwareDownscale  bool
	VideoFormatChanged bool
}

// VideoFormat returns the format of the driving picture stream.
func (s *SourceBuild) VideoFormat() types.VideoFormat {
	return s.Picture.VideoFormat()
}

// NumPresent returns the number of inputs feeding the source
func (s *SourceBuild) NumPresent() int {
	n := 0
	for _, p := range s.Present {
		if p {
			n++
		}
	}
	return n
}

// SourceIndexMap maps source ids to the 1-based position of their input
// among the present inputs.
func (s *SourceBuild) SourceIndexMap() map[int]int {
	m := make(map[int]int, len(s.SourceIDs))
	index := 0
	for i, id := range s.SourceIDs {
		if !s.Present[i] {
			continue
		}
		index++
		m[id] = index
	}
	return m
}

// SourceIDAt returns the source id of the present input at a 1-based index.
func (s *SourceBuild) SourceIDAt(index int) (int, bool) {
	n := 0
	for i, id := range s.SourceIDs {
		if !s.Present[i] {
			continue
		}
		n++
		if n == index {
			return id, true
		}
	}
	return 0, false
}

// Close closes the source.
func (s *SourceBuild) Close() error {
	if s.Source == nil {
		return nil
	}
	return s.Source.Close()
}

// SinkChain is the outcome of BuildSink
type SinkChain struct {
	Sink        sink.Sink
	State       *osd.State
	VideoSwitch *sink.VideoSwitch
	AudioSwitch *sink.AudioSwitch
	Hardware    bool

	windows []io.Closer
}

// Close closes the chain from the outermost stage and then releases the
// owned windows.
func (c *SinkChain) Close() error {
	c.State.StopTicker()
	var errs []error
	if c.Sink != nil {
		errs = append(errs, c.Sink.Close())
	}
	errs = append(errs, c.ReleaseWindows())
	return errors.Join(errs...)
}

// ReleaseWindows closes the windows the output owns. It is also used after
// a failed reset, which already closed the device.
func (c *SinkChain) ReleaseWindows() error {
	var errs []error
	for i := len(c.windows) - 1; i >= 0; i-- {
		errs = append(errs, c.windows[i].Close())
	}
	c.windows = nil
	return errors.Join(errs...)
}

// Builder opens inputs and output devices through their registries
type Builder struct {
	logger  hclog.Logger
	sources *source.Registry
	devices *sink.DeviceRegistry
}

// NewBuilder creates a builder.
func NewBuilder(sources *source.Registry, devices *sink.DeviceRegistry, logger hclog.Logger) *Builder {
	return &Builder{
		logger:  logger.Named("builder"),
		sources: sources,
		devices: devices,
	}
}

// assignClipID gives streams without a clip id one derived from the input,
// so the same file keeps its id across builds and sessions.
func assignClipID(src source.Source, input types.PlayerInput) {
	clipID := utils.InputUUID(string(input.Kind), input.Name)
	done := make(map[int]bool)
	for _, s := range src.Streams() {
		if s.ClipID != "" || done[s.SourceID] {
			continue
		}
		done[s.SourceID] = true
		src.SetClipID(s.SourceID, clipID)
	}
}

// BuildSource opens every input and combines them. Inputs that fail to open
// are replaced by blank fill when they ask for it. prev is the picture
// stream of the previous build, or the zero value.
func (b *Builder) BuildSource(ctx context.Context, inputs []types.PlayerInput, cfg *config.Config, prev types.StreamInfo) (*SourceBuild, error) {
	result := &SourceBuild{
		Opened:    make([]bool, len(inputs)),
		Present:   make([]bool, len(inputs)),
		SourceIDs: make([]int, len(inputs)),
	}

	template := source.DefaultPicture()
	if prev.Type == types.PictureStream {
		template = prev
	}

	multi := source.NewMultiple(b.logger)
	nextID := 0
	for i, input := range inputs {
		result.SourceIDs[i] = -1
		if err := ctx.Err(); err != nil {
			multi.Close()
			return nil, playererrors.BuildError("build_source", err)
		}

		src, err := b.sources.Open(ctx, input)
		if err != nil {
			if !input.FallbackBlank() {
				b.logger.Warn("failed to open input", "input", input.String(), "error", err)
				continue
			}
			b.logger.Warn("failed to open input, using blank fill", "input", input.String(), "error", err)
			blank, berr := source.NewBlank(input, template)
			if berr != nil {
				b.logger.Warn("failed to create blank fill", "input", input.String(), "error", berr)
				continue
			}
			src = blank
		} else {
			result.Opened[i] = true
			assignClipID(src, input)
		}

		if pic, ok := source.PictureStream(src.Streams()); ok && !pic.Synthetic {
			template = pic
		}
		multi.Append(src, nextID)
		result.Present[i] = true
		result.SourceIDs[i] = nextID
		nextID++
	}

	if multi.NumSources() == 0 {
		multi.Close()
		return nil, playererrors.BuildError("build_source", playererrors.ErrNoInputs).
			WithDetail("inputs", len(inputs))
	}

	picture, ok := source.PictureStream(multi.Streams())
	if !ok {
		blank, err := source.NewBlank(types.NewInput(types.InputBlank, ""), template)
		if err != nil {
			multi.Close()
			return nil, playererrors.BuildError("build_source", err)
		}
		multi.Append(blank, nextID)
		picture, _ = source.PictureStream(multi.Streams())
		b.logger.Debug("no picture stream, added blank picture", "format", picture.VideoFormat())
	}
	result.Picture = picture
	result.HasRealPicture = source.HasRealPicture(multi.Streams())

	threshold := cfg.Display.SoftwareScaleThreshold
	result.SoftwareDownscale = threshold > 0 && picture.Width > threshold

	if prev.Type == types.PictureStream {
		result.VideoFormatChanged = !prev.VideoFormat().Equal(picture.VideoFormat())
	}

	result.Source = multi
	if n := cfg.Source.ReadAheadFrames; n > 0 {
		result.Source = source.NewBuffered(multi, n, b.logger)
	}

	b.logger.Info("source built",
		"inputs", len(inputs),
		"present", result.NumPresent(),
		"video_format", picture.VideoFormat(),
		"software_downscale", result.SoftwareDownscale)
	return result, nil
}

// BuildSink opens the output and stacks the chain on it, outermost last:
// device, output buffer, video switch, picture scale, audio level, audio
// switch. On failure everything opened here is closed again.
func (b *Builder) BuildSink(ctx context.Context, cfg *config.Config, src *SourceBuild) (*SinkChain, error) {
	outputType := types.OutputType(cfg.Output.Type)
	out, err := b.devices.OpenOutput(ctx, sink.OutputConfig{
		Type:            outputType,
		Device:          cfg.Output.Device,
		SecondaryDevice: cfg.Output.SecondaryDevice,
		WindowID:        cfg.Output.WindowID,
		SDIOSDEnabled:   cfg.OSD.SDIEnable,
		X11OSDEnabled:   cfg.OSD.X11Enable,
	}, b.logger)
	if err != nil {
		return nil, playererrors.Wrap(err, playererrors.ErrorTypeBuild, "build_sink")
	}

	chain := &SinkChain{State: out.State, Hardware: outputType.IsHardware()}
	if out.Secondary != nil && out.Secondary.Window != nil {
		chain.windows = append(chain.windows, out.Secondary.Window)
	}
	if out.Primary.Window != nil {
		chain.windows = append(chain.windows, out.Primary.Window)
	}

	split := types.VideoSplit(cfg.Display.VideoSplit)
	needSwitch := split != types.NoSplit || countPictures(src.Source.Streams()) > 1

	var top sink.Sink
	switch {
	case out.Secondary != nil && needSwitch && !sameRaster(out.Primary.Sink, out.Secondary.Sink):
		primary := b.buffered(out.Primary.Sink, cfg)
		master := sink.NewVideoSwitch(primary, split, b.logger)
		slave := sink.NewSlaveVideoSwitch(out.Secondary.Sink, master, b.logger)
		top = sink.NewDual(master, slave, b.logger)
		chain.VideoSwitch = master
		b.logger.Debug("dual output rasters differ, using slave video switch")
	default:
		if out.Secondary != nil {
			top = sink.NewDual(out.Primary.Sink, out.Secondary.Sink, b.logger)
		} else {
			top = out.Primary.Sink
		}
		top = b.buffered(top, cfg)
		if needSwitch {
			chain.VideoSwitch = sink.NewVideoSwitch(top, split, b.logger)
			top = chain.VideoSwitch
		}
	}

	top = sink.NewPictureScale(top, cfg.Display.Scale, src.SoftwareDownscale, b.logger)

	if cfg.Audio.NumLevelMonitors > 0 {
		top = sink.NewAudioLevel(top, cfg.Audio.NumLevelMonitors, b.logger)
	}
	if cfg.Audio.EnableSwitch {
		snap := cfg.Audio.SnapToVideo && src.HasRealPicture
		if cfg.Audio.SnapToVideo && !snap {
			b.logger.Debug("no real picture source, audio switch snap to video disabled")
		}
		chain.AudioSwitch = sink.NewAudioSwitch(top, snap, b.logger)
		top = chain.AudioSwitch
	}
	chain.Sink = top

	if err := ctx.Err(); err != nil {
		b.closeChain(chain)
		return nil, playererrors.BuildError("build_sink", err)
	}
	if err := ApplyOSD(chain.State, cfg); err != nil {
		b.closeChain(chain)
		return nil, playererrors.BuildError("build_sink", err)
	}

	b.logger.Info("sink built",
		"output_type", outputType,
		"video_switch", chain.VideoSwitch != nil,
		"audio_switch", chain.AudioSwitch != nil,
		"buffer_size", cfg.Output.BufferSize)
	return chain, nil
}

func (b *Builder) buffered(next sink.Sink, cfg *config.Config) sink.Sink {
	if cfg.Output.BufferSize <= 0 {
		return next
	}
	return sink.NewBuffer(next, cfg.Output.BufferSize, b.logger)
}

func (b *Builder) closeChain(chain *SinkChain) {
	if err := chain.Close(); err != nil {
		b.logger.Warn("failed to close partially built sink", "error", err)
	}
}

// ApplyOSD copies the OSD section of cfg into state.
func ApplyOSD(state *osd.State, cfg *config.Config) error {
	if cfg.OSD.Screen != "" {
		if err := state.SetScreen(osd.Screen(cfg.OSD.Screen)); err != nil {
			return err
		}
	}
	state.SetPlayStateHold(cfg.OSD.PlayStateHold)
	state.SetAudioLineup(cfg.Audio.LineupLevel)

	for number, name := range cfg.OSD.MarkColours {
		n, err := strconv.Atoi(number)
		if err != nil {
			return playererrors.ValidationError("apply_osd", fmt.Errorf("mark type %q: %w", number, err))
		}
		markType := types.MarkTypeFromPublic(n)
		if markType == 0 {
			return playererrors.ValidationError("apply_osd", fmt.Errorf("mark type %d out of range", n))
		}
		colour, ok := video.ColourByName(name)
		if !ok {
			return playererrors.ValidationError("apply_osd", fmt.Errorf("unknown colour %q", name))
		}
		state.SetMarkColour(markType, colour)
	}
	return nil
}

func countPictures(streams []types.StreamInfo) int {
	n := 0
	for _, s := range streams {
		if s.Type == types.PictureStream {
			n++
		}
	}
	return n
}

func sameRaster(a, b sink.Sink) bool {
	aw, ah, aok := sink.Raster(a)
	bw, bh, bok := sink.Raster(b)
	return aok == bok && aw == bw && ah == bh
}
