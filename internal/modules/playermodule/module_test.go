package playermodule

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/reelplay/internal/config"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/engine"
	"github.com/mantonx/reelplay/internal/modules/playermodule/store"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

func newModule(t *testing.T, dbPath string) *Module {
	t.Helper()
	logger := hclog.NewNullLogger()
	configs := config.NewManager(logger)
	require.NoError(t, configs.UpdateNext(func(cfg *config.Config) {
		cfg.Store.Path = dbPath
		cfg.Store.Workers = 1
		cfg.Monitor.Addr = "127.0.0.1:0"
	}))

	return New(Options{
		Config: configs,
		Logger: logger,
		Engine: engine.Options{FrameInterval: 5 * time.Millisecond, StartPaused: true},
	})
}

func TestModule_Lifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	m := newModule(t, dbPath)
	require.NoError(t, m.Init(context.Background()))

	opened, ok := m.Player().Start(context.Background(), []types.PlayerInput{types.NewInput(types.InputBlank, "")})
	require.True(t, ok)
	assert.Equal(t, []bool{true}, opened)
	sessionID := m.Player().Status().SessionID
	require.NotEmpty(t, sessionID)

	addr := m.MonitorAddr()
	require.NotEmpty(t, addr)
	resp, err := http.Get("http://" + addr + "/api/player/status")
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sessionID, status["session_id"])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	assert.Equal(t, "", m.MonitorAddr())

	// the recorder flushed the session and its close before shutdown returned
	st, err := store.Open(config.StoreConfig{Type: "sqlite", Path: dbPath}, hclog.NewNullLogger())
	require.NoError(t, err)
	defer st.Close()

	session, err := st.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "rebuild", session.Build)
	assert.NotNil(t, session.ClosedAt)
}

func TestModule_ServicesDisabled(t *testing.T) {
	logger := hclog.NewNullLogger()
	configs := config.NewManager(logger)
	require.NoError(t, configs.UpdateNext(func(cfg *config.Config) {
		cfg.Store.Enabled = false
		cfg.Monitor.Enabled = false
	}))
	m := New(Options{Config: configs, Logger: logger})
	require.NoError(t, m.Init(context.Background()))

	assert.Equal(t, "", m.MonitorAddr())
	assert.NotNil(t, m.Sources())
	assert.NotNil(t, m.Devices())
	assert.Equal(t, 0, m.Listeners().Len())
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestModule_BadStore(t *testing.T) {
	logger := hclog.NewNullLogger()
	configs := config.NewManager(logger)
	require.NoError(t, configs.UpdateNext(func(cfg *config.Config) {
		cfg.Store.Path = filepath.Join(t.TempDir(), "missing", "dir", "sessions.db")
		cfg.Monitor.Enabled = false
	}))
	m := New(Options{Config: configs, Logger: logger})
	assert.Error(t, m.Init(context.Background()))
}
