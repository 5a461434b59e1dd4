// Package playermodule wires the player: source and device registries,
// listener registry, pipeline builder and player, plus the session recorder
// and monitoring API when enabled.
package playermodule

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/config"
	"github.com/mantonx/reelplay/internal/modules/playermodule/api"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/engine"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/listener"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/pipeline"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/player"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/sink"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/source"
	"github.com/mantonx/reelplay/internal/modules/playermodule/store"
)

// Options configures a Module
type Options struct {
	Config *config.Manager
	Logger hclog.Logger
	Engine engine.Options
}

// Module owns the player and its ambient services.
type Module struct {
	configs *config.Manager
	logger  hclog.Logger
	engine  engine.Options

	// Core components
	sources   *source.Registry
	devices   *sink.DeviceRegistry
	listeners *listener.Registry
	player    *player.Player

	// Ambient services, nil when disabled
	store    *store.Store
	recorder *store.Recorder
	feed     *api.EventFeed
	server   *api.Server

	regs []*listener.Registration
}

// New creates an uninitialised module.
func New(opts Options) *Module {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	configs := opts.Config
	if configs == nil {
		configs = config.NewManager(logger)
	}
	return &Module{
		configs: configs,
		logger:  logger.Named("player-module"),
		engine:  opts.Engine,
	}
}

// ID returns the module identifier
func (m *Module) ID() string {
	return "player"
}

// Name returns the human-readable module name
func (m *Module) Name() string {
	return "Player Module"
}

// Version returns the module version
func (m *Module) Version() string {
	return "1.0.0"
}

// Init creates the player and starts the enabled services. Backends may
// register further input kinds and output devices on Sources and Devices
// before the first Start.
func (m *Module) Init(ctx context.Context) error {
	m.logger.Info("initializing player module", "version", m.Version())
	cfg := m.configs.Next()

	m.sources = source.NewRegistry(m.logger)
	m.devices = sink.NewDeviceRegistry(m.logger)
	m.listeners = listener.NewRegistry(m.logger)

	p, err := player.New(player.Options{
		Builder:   pipeline.NewBuilder(m.sources, m.devices, m.logger),
		Config:    m.configs,
		Listeners: m.listeners,
		Engines:   engine.NewBasicFactory(m.engine),
	}, m.logger)
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}
	m.player = p

	if cfg.Store.Enabled {
		if err := m.initStore(cfg.Store); err != nil {
			m.shutdownServices(ctx)
			return err
		}
	}

	if cfg.Monitor.Enabled {
		if err := m.initMonitor(cfg.Monitor); err != nil {
			m.shutdownServices(ctx)
			return err
		}
	}

	if cfg.Reload.Enabled && m.configs.Path() != "" {
		if err := m.configs.StartWatching(ctx, cfg.Reload.Debounce); err != nil {
			m.logger.Warn("configuration reload disabled", "error", err)
		}
	}

	m.logger.Info("player module initialized",
		"store", m.store != nil,
		"monitor", m.server != nil)
	return nil
}

func (m *Module) initStore(cfg config.StoreConfig) error {
	st, err := store.Open(cfg, m.logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	m.store = st

	m.recorder = store.NewRecorder(st, cfg.Workers, cfg.QueueSize, m.logger)
	m.recorder.Start()
	m.regs = append(m.regs, m.listeners.Register(m.recorder, "recorder"))
	m.player.AddSessionHook(m.recorder)
	return nil
}

func (m *Module) initMonitor(cfg config.MonitorConfig) error {
	if !m.logger.IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}

	m.feed = api.NewEventFeed(cfg.FrameEventsRate, m.logger)
	m.feed.Start()
	m.regs = append(m.regs, m.listeners.Register(m.feed, "feed"))

	var sessions api.SessionReader
	if m.store != nil {
		sessions = m.store
	}
	handler := api.NewHandler(m.player, sessions, m.feed, m.logger)

	m.server = api.NewServer(cfg.Addr, api.NewRouter(handler), m.logger)
	if err := m.server.Start(); err != nil {
		m.server = nil
		return fmt.Errorf("failed to start monitor API: %w", err)
	}
	return nil
}

// Player returns the player; nil before Init.
func (m *Module) Player() *player.Player {
	return m.player
}

func (m *Module) Sources() *source.Registry {
	return m.sources
}

func (m *Module) Devices() *sink.DeviceRegistry {
	return m.devices
}

func (m *Module) Listeners() *listener.Registry {
	return m.listeners
}

func (m *Module) Config() *config.Manager {
	return m.configs
}

// MonitorAddr returns the bound monitor address, or "" when disabled.
func (m *Module) MonitorAddr() string {
	if m.server == nil {
		return ""
	}
	return m.server.Addr()
}

// Shutdown closes the player and then the services, flushing queued store
// writes.
func (m *Module) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down player module")
	m.configs.StopWatching()
	if m.player != nil {
		m.player.Close()
	}
	return m.shutdownServices(ctx)
}

func (m *Module) shutdownServices(ctx context.Context) error {
	var errs []error
	for _, reg := range m.regs {
		reg.Close()
	}
	m.regs = nil

	if m.server != nil {
		if err := m.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("monitor API shutdown: %w", err))
		}
		m.server = nil
	}
	if m.feed != nil {
		m.feed.Close()
		m.feed = nil
	}
	if m.recorder != nil {
		m.recorder.Stop()
		m.recorder = nil
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session store close: %w", err))
		}
		m.store = nil
	}
	return errors.Join(errs...)
}
