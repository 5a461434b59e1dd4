// Package player owns the live playback pipeline and exposes the thread-safe
// control surface. Building happens outside the state lock; Start, Reset and
// Close only take the write lock to swap the live state.
package player

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/config"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/engine"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/listener"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/pipeline"
	playererrors "github.com/mantonx/reelplay/internal/modules/playermodule/errors"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
	"github.com/mantonx/reelplay/internal/utils"
)

// BuildKind says how a start reached its pipeline
type BuildKind string

const (
	BuildRebuild BuildKind = "rebuild"
	BuildReset   BuildKind = "reset"
)

// SessionInfo describes a started pipeline
type SessionInfo struct {
	ID         string              `json:"id"`
	Inputs     []types.PlayerInput `json:"inputs"`
	Opened     []bool              `json:"opened"`
	OutputType types.OutputType    `json:"output_type"`
	Build      BuildKind           `json:"build"`
	Started    time.Time           `json:"started"`
}

// SessionHook is told about every pipeline that starts and ends
type SessionHook interface {
	SessionStarted(info SessionInfo)
	SessionClosed(id string)
}

// Options wires a player to its collaborators
type Options struct {
	Builder   *pipeline.Builder
	Config    *config.Manager
	Listeners *listener.Registry
	Engines   engine.Factory
}

type indexState struct {
	generation uint64
	index      map[int]int
}

// Player holds at most one live play state.
type Player struct {
	logger    hclog.Logger
	builder   *pipeline.Builder
	configs   *config.Manager
	listeners *listener.Registry
	engines   engine.Factory

	// buildMu serialises Start, Reset and Close against each other
	buildMu sync.Mutex

	mu    sync.RWMutex
	state *playState

	hooksMu sync.RWMutex
	hooks   []SessionHook

	generation atomic.Uint64
	indexMap   atomic.Pointer[indexState]
}

// New creates an idle player and installs it as the listener registry's
// index mapper.
func New(opts Options, logger hclog.Logger) (*Player, error) {
	if opts.Builder == nil || opts.Config == nil || opts.Listeners == nil {
		return nil, playererrors.ValidationError("new_player", errors.New("builder, config and listeners are required"))
	}
	if opts.Engines == nil {
		opts.Engines = engine.NewBasicFactory(engine.Options{})
	}

	p := &Player{
		logger:    logger.Named("player"),
		builder:   opts.Builder,
		configs:   opts.Config,
		listeners: opts.Listeners,
		engines:   opts.Engines,
	}
	p.indexMap.Store(&indexState{index: map[int]int{}})
	p.listeners.SetIndexMapper(p)
	return p, nil
}

// AddSessionHook registers a hook.
func (p *Player) AddSessionHook(h SessionHook) {
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	p.hooks = append(p.hooks, h)
}

// Listeners returns the registry observers register with.
func (p *Player) Listeners() *listener.Registry {
	return p.listeners
}

// Generation implements listener.IndexMapper.
func (p *Player) Generation() uint64 {
	return p.indexMap.Load().generation
}

// SourceIndexMap implements listener.IndexMapper.
func (p *Player) SourceIndexMap() map[int]int {
	return p.indexMap.Load().index
}

func (p *Player) publishIndexMap(build *pipeline.SourceBuild) {
	index := map[int]int{}
	if build != nil {
		index = build.SourceIndexMap()
	}
	p.indexMap.Store(&indexState{generation: p.generation.Add(1), index: index})
}

// Start builds a pipeline for inputs from the next configuration and makes
// it live. It returns, per input, whether it opened. While a pipeline is
// live the sink is reset in place when nothing structural changed, and
// rebuilt otherwise. On failure the previous pipeline keeps playing, except
// when the rebuild targets the output device it holds: that pipeline is
// closed before the device is opened again.
func (p *Player) Start(ctx context.Context, inputs []types.PlayerInput) ([]bool, bool) {
	p.buildMu.Lock()
	defer p.buildMu.Unlock()

	next := p.configs.Next()
	old := p.current()

	var prevPicture types.StreamInfo
	if old != nil {
		prevPicture = old.build.Picture
	}

	build, err := p.builder.BuildSource(ctx, inputs, next, prevPicture)
	if err != nil {
		p.logger.Error("start failed", "error", err)
		return make([]bool, len(inputs)), false
	}

	if old != nil && p.canReset(old, next, build) {
		if st, ok := p.resetInto(old, build, inputs, next); ok {
			return build.Opened, p.activate(st, BuildReset)
		}
	}

	// a device cannot be opened while the live chain still holds it
	if old != nil && sharesOutput(old.config, next) {
		p.logger.Info("rebuilding on the live output, closing it first",
			"output_type", next.Output.Type, "device", next.Output.Device)
		p.closeLocked()
	}

	chain, err := p.builder.BuildSink(ctx, next, build)
	if err != nil {
		p.logger.Error("start failed", "error", err)
		p.closeBuild(build)
		return build.Opened, false
	}

	chain.Sink.RegisterListener(p.listeners)
	eng, err := p.engines(build.Source, chain.Sink, p.listeners, p.logger)
	if err != nil {
		p.logger.Error("start failed", "error", playererrors.Wrap(err, playererrors.ErrorTypeBuild, "new_engine"))
		if cerr := chain.Close(); cerr != nil {
			p.logger.Warn("failed to close sink", "error", cerr)
		}
		p.closeBuild(build)
		return build.Opened, false
	}

	st := p.newState(inputs, next, build, chain, eng)
	return build.Opened, p.activate(st, BuildRebuild)
}

// canReset applies the reset-or-rebuild rule: nothing structural changed
// and the video format is the same.
func (p *Player) canReset(old *playState, next *config.Config, build *pipeline.SourceBuild) bool {
	changes := config.StructuralChanges(old.config, next, old.chain.Hardware)
	if len(changes) > 0 {
		p.logger.Info("structural configuration changed, rebuilding", "fields", changes)
		return false
	}
	if build.VideoFormatChanged {
		p.logger.Info("video format changed, rebuilding",
			"from", old.build.Picture.VideoFormat(), "to", build.Picture.VideoFormat())
		return false
	}
	for _, c := range config.Diff(old.config, next, old.chain.Hardware) {
		p.logger.Debug("configuration changed", "field", c.Field)
	}
	return true
}

// sharesOutput reports whether next targets the device the live chain has
// open. The null output holds nothing.
func sharesOutput(prev, next *config.Config) bool {
	if types.OutputType(next.Output.Type) == types.OutputNull {
		return false
	}
	return prev.Output.Type == next.Output.Type &&
		prev.Output.Device == next.Output.Device &&
		prev.Output.SecondaryDevice == next.Output.SecondaryDevice
}

// resetInto stops the old state and restarts on the kept sink with a new
// source, reapplying the OSD settings of next. When the sink reset fails the
// old state is torn down and false is returned.
func (p *Player) resetInto(old *playState, build *pipeline.SourceBuild, inputs []types.PlayerInput, next *config.Config) (*playState, bool) {
	old.stop()
	old.closeSourceAndEngine(p.logger)

	if !old.chain.Sink.ResetOrClose() {
		p.logger.Warn("sink reset failed", "error",
			playererrors.DeviceResetError("reset", playererrors.ErrResetFailed).WithDetail("session", old.sessionID))
		p.dropState(old, false)
		return nil, false
	}

	if err := pipeline.ApplyOSD(old.chain.State, next); err != nil {
		p.logger.Warn("osd settings rejected after reset", "error", err)
		p.dropState(old, true)
		return nil, false
	}
	if sw := old.chain.AudioSwitch; sw != nil {
		sw.SetSnapToVideo(next.Audio.SnapToVideo && build.HasRealPicture)
	}

	eng, err := p.engines(build.Source, old.chain.Sink, p.listeners, p.logger)
	if err != nil {
		p.logger.Error("engine creation failed after reset", "error", err)
		p.dropState(old, true)
		return nil, false
	}
	return p.newState(inputs, next, build, old.chain, eng), true
}

// dropState removes a stopped state whose source and engine are closed.
// closeSink is false when a failed reset already closed the device.
func (p *Player) dropState(old *playState, closeSink bool) {
	p.mu.Lock()
	if p.state == old {
		p.state = nil
	}
	p.mu.Unlock()

	var err error
	if closeSink {
		err = old.chain.Close()
	} else {
		old.chain.State.StopTicker()
		err = old.chain.ReleaseWindows()
	}
	if err != nil {
		p.logger.Warn("failed to release sink", "session", old.sessionID, "error", err)
	}
	p.publishIndexMap(nil)
	p.notifyClosed(old.sessionID)
}

func (p *Player) newState(inputs []types.PlayerInput, cfg *config.Config, build *pipeline.SourceBuild, chain *pipeline.SinkChain, eng engine.Engine) *playState {
	build.Source.RegisterListener(p.listeners)
	return &playState{
		sessionID: utils.GenerateUUIDv1(),
		started:   time.Now(),
		inputs:    append([]types.PlayerInput(nil), inputs...),
		config:    cfg,
		build:     build,
		chain:     chain,
		engine:    eng,
	}
}

// activate swaps st in and starts its play goroutine. A rebuild tears the
// replaced state down; after a reset its sink lives on in st.
func (p *Player) activate(st *playState, kind BuildKind) bool {
	p.mu.Lock()
	prev := p.state
	p.state = st
	p.mu.Unlock()

	if prev != nil {
		if kind == BuildRebuild {
			prev.teardown(p.logger)
		}
		p.notifyClosed(prev.sessionID)
	}

	p.publishIndexMap(st.build)
	if err := st.chain.State.StartTicker(context.Background()); err != nil {
		p.logger.Debug("osd ticker", "error", err)
	}
	st.start(p.logger)
	p.configs.Commit(st.config)

	p.notifyStarted(SessionInfo{
		ID:         st.sessionID,
		Inputs:     st.inputs,
		Opened:     st.build.Opened,
		OutputType: types.OutputType(st.config.Output.Type),
		Build:      kind,
		Started:    st.started,
	})
	p.logger.Info("playback started", "session", st.sessionID, "build", kind,
		"inputs", len(st.inputs), "present", st.build.NumPresent())
	return true
}

// Reset reopens the live inputs with the live configuration and restarts on
// the kept sink. When anything fails the player ends up closed and false is
// returned.
func (p *Player) Reset(ctx context.Context) bool {
	p.buildMu.Lock()
	defer p.buildMu.Unlock()

	old := p.current()
	if old == nil {
		return false
	}

	build, err := p.builder.BuildSource(ctx, old.inputs, old.config, old.build.Picture)
	if err != nil {
		p.logger.Error("reset failed, closing", "error", err)
		p.closeLocked()
		return false
	}

	st, ok := p.resetInto(old, build, old.inputs, old.config)
	if !ok {
		p.closeBuild(build)
		p.listeners.PlayerClosed()
		return false
	}
	return p.activate(st, BuildReset)
}

// Stop ends playback but keeps the pipeline open until the next Start or
// Close. Controls are rejected while stopped.
func (p *Player) Stop() {
	p.buildMu.Lock()
	defer p.buildMu.Unlock()
	if st := p.current(); st != nil {
		st.stop()
	}
}

// Close tears the live pipeline down, releasing any owned window.
func (p *Player) Close() {
	p.buildMu.Lock()
	defer p.buildMu.Unlock()
	p.closeLocked()
}

func (p *Player) closeLocked() {
	p.mu.Lock()
	st := p.state
	p.state = nil
	p.mu.Unlock()

	if st == nil {
		return
	}
	st.teardown(p.logger)
	p.publishIndexMap(nil)
	p.notifyClosed(st.sessionID)
	p.listeners.PlayerClosed()
	p.logger.Info("playback closed", "session", st.sessionID)
}

func (p *Player) closeBuild(build *pipeline.SourceBuild) {
	if err := build.Close(); err != nil {
		p.logger.Warn("failed to close source", "error", err)
	}
}

func (p *Player) current() *playState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Player) notifyStarted(info SessionInfo) {
	p.hooksMu.RLock()
	defer p.hooksMu.RUnlock()
	for _, h := range p.hooks {
		h.SessionStarted(info)
	}
}

func (p *Player) notifyClosed(id string) {
	p.hooksMu.RLock()
	defer p.hooksMu.RUnlock()
	for _, h := range p.hooks {
		h.SessionClosed(id)
	}
}
