package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// Watcher is called after the next configuration changed
type Watcher func(prev, next *Config)

// Manager keeps two snapshots. Next is edited from any goroutine under a
// mutex and picked up by the following build. Current is the configuration
// of the live pipeline; only the build path writes it, after success, and
// readers load it without locking.
type Manager struct {
	logger hclog.Logger
	path   string

	current atomic.Pointer[Config]

	nextMu sync.Mutex
	next   *Config

	watchersMu sync.RWMutex
	watchers   []Watcher

	fsWatcher  *fsnotify.Watcher
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	runMutex   sync.Mutex
	running    bool

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewManager creates a manager whose next snapshot holds the defaults.
func NewManager(logger hclog.Logger) *Manager {
	return &Manager{
		logger: logger.Named("config"),
		next:   DefaultConfig(),
	}
}

// Load reads path into the next snapshot.
func (m *Manager) Load(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	m.nextMu.Lock()
	m.path = path
	m.nextMu.Unlock()

	m.setNext(cfg)
	m.logger.Info("configuration loaded", "path", path)
	return nil
}

// Path returns the file the manager loads from.
func (m *Manager) Path() string {
	m.nextMu.Lock()
	defer m.nextMu.Unlock()
	return m.path
}

// Current returns the configuration of the live pipeline, or nil before the
// first successful build. Callers must not modify it.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// Commit records cfg as the configuration of the live pipeline.
func (m *Manager) Commit(cfg *Config) {
	m.current.Store(cfg.Clone())
}

// Next returns a copy of the next snapshot.
func (m *Manager) Next() *Config {
	m.nextMu.Lock()
	defer m.nextMu.Unlock()
	return m.next.Clone()
}

// UpdateNext applies fn to a copy of the next snapshot and stores it when
// the result validates.
func (m *Manager) UpdateNext(fn func(cfg *Config)) error {
	m.nextMu.Lock()
	cfg := m.next.Clone()
	fn(cfg)
	if err := Validate(cfg); err != nil {
		m.nextMu.Unlock()
		return err
	}
	prev := m.next
	m.next = cfg
	m.nextMu.Unlock()

	m.notify(prev, cfg)
	return nil
}

// Save writes the next snapshot to the loaded path.
func (m *Manager) Save() error {
	path := m.Path()
	if path == "" {
		return fmt.Errorf("no config path set")
	}
	return Save(path, m.Next())
}

// AddWatcher adds a configuration change watcher.
func (m *Manager) AddWatcher(w Watcher) {
	m.watchersMu.Lock()
	defer m.watchersMu.Unlock()
	m.watchers = append(m.watchers, w)
}

func (m *Manager) setNext(cfg *Config) {
	m.nextMu.Lock()
	prev := m.next
	m.next = cfg
	m.nextMu.Unlock()
	m.notify(prev, cfg)
}

func (m *Manager) notify(prev, next *Config) {
	m.watchersMu.RLock()
	watchers := append([]Watcher(nil), m.watchers...)
	m.watchersMu.RUnlock()

	for _, w := range watchers {
		w(prev.Clone(), next.Clone())
	}
}

// StartWatching reloads the next snapshot whenever the config file changes.
// Bursts of events within debounce cause one reload.
func (m *Manager) StartWatching(ctx context.Context, debounce time.Duration) error {
	m.runMutex.Lock()
	defer m.runMutex.Unlock()

	if m.running {
		return fmt.Errorf("config watcher already running")
	}
	path := m.Path()
	if path == "" {
		return fmt.Errorf("no config path set")
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// editors replace files by rename, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	m.fsWatcher = watcher
	m.ctx, m.cancelFunc = context.WithCancel(ctx)
	m.running = true

	m.wg.Add(1)
	go m.watchLoop(filepath.Clean(path), debounce)

	m.logger.Info("watching configuration", "path", path, "debounce", debounce)
	return nil
}

// StopWatching stops the file watcher and cancels a pending reload.
func (m *Manager) StopWatching() {
	m.runMutex.Lock()
	defer m.runMutex.Unlock()

	if !m.running {
		return
	}
	m.cancelFunc()
	m.fsWatcher.Close()
	m.wg.Wait()

	m.timerMu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerMu.Unlock()

	m.running = false
	m.logger.Debug("configuration watcher stopped")
}

func (m *Manager) watchLoop(path string, debounce time.Duration) {
	defer m.wg.Done()

	for {
		select {
		case event, ok := <-m.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			m.scheduleReload(debounce)

		case err, ok := <-m.fsWatcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("config watcher error", "error", err)

		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) scheduleReload(debounce time.Duration) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(debounce, m.reload)
}

func (m *Manager) reload() {
	path := m.Path()
	cfg, err := Load(path)
	if err != nil {
		m.logger.Warn("config reload failed, keeping previous configuration", "path", path, "error", err)
		return
	}
	m.setNext(cfg)
	m.logger.Info("configuration reloaded", "path", path)
}
