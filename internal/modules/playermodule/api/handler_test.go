package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/reelplay/internal/config"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/player"
	"github.com/mantonx/reelplay/internal/modules/playermodule/store"
	"github.com/mantonx/reelplay/internal/modules/playermodule/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePlayer struct {
	status player.Status
	config *config.Config
}

func (f *fakePlayer) Status() player.Status  { return f.status }
func (f *fakePlayer) Config() *config.Config { return f.config }

type fakeSessions struct {
	sessions []*store.PlayerSession
	events   map[string][]*store.SessionEvent
	err      error
	limit    int
}

func (f *fakeSessions) RecentSessions(_ context.Context, limit int) ([]*store.PlayerSession, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions, nil
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (*store.PlayerSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, s := range f.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeSessions) SessionEvents(_ context.Context, sessionID string) ([]*store.SessionEvent, error) {
	return f.events[sessionID], nil
}

const (
	sessionOne = "5f0c1b3e-8a4d-11ef-9c2a-0242ac120002"
	sessionTwo = "6a7d2c4f-8a4d-11ef-9c2a-0242ac120002"
	sessionNew = "7b8e3d50-8a4d-11ef-9c2a-0242ac120002"
)

func serve(t *testing.T, h *Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	NewRouter(h).ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func TestHandleStatus(t *testing.T) {
	p := &fakePlayer{status: player.Status{
		Live:       true,
		Running:    true,
		SessionID:  "abc",
		OutputType: types.OutputSDI,
		VideoIndex: 2,
		Generation: 7,
	}}
	h := NewHandler(p, nil, nil, hclog.NewNullLogger())

	w, body := serve(t, h, "/api/player/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["live"])
	assert.Equal(t, "abc", body["session_id"])
	assert.Equal(t, "sdi", body["output_type"])
	assert.Equal(t, float64(2), body["video_index"])
	assert.Equal(t, float64(7), body["generation"])
}

func TestHandleConfig(t *testing.T) {
	p := &fakePlayer{}
	h := NewHandler(p, nil, nil, hclog.NewNullLogger())

	w, body := serve(t, h, "/api/player/config")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])

	p.config = config.DefaultConfig()
	w, body = serve(t, h, "/api/player/config")
	assert.Equal(t, http.StatusOK, w.Code)
	output, ok := body["output"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "null", output["type"])
}

func TestHandleSessions(t *testing.T) {
	sessions := &fakeSessions{
		sessions: []*store.PlayerSession{
			{ID: sessionTwo, Build: "reset", StartedAt: time.Now()},
			{ID: sessionOne, Build: "rebuild", StartedAt: time.Now().Add(-time.Minute)},
		},
		events: map[string][]*store.SessionEvent{
			sessionOne: {{ID: "e1", SessionID: sessionOne, EventType: store.EventPlay}},
		},
	}
	h := NewHandler(&fakePlayer{}, sessions, nil, hclog.NewNullLogger())

	w, body := serve(t, h, "/api/player/sessions")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, defaultSessionLimit, sessions.limit)

	w, _ = serve(t, h, "/api/player/sessions?limit=5")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, sessions.limit)

	w, body = serve(t, h, "/api/player/sessions?limit=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	w, body = serve(t, h, "/api/player/sessions/"+sessionOne)
	assert.Equal(t, http.StatusOK, w.Code)
	events, ok := body["events"].([]any)
	require.True(t, ok)
	assert.Len(t, events, 1)

	w, body = serve(t, h, "/api/player/sessions/"+sessionNew)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])

	w, body = serve(t, h, "/api/player/sessions/missing")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestHandleSessions_StoreErrors(t *testing.T) {
	h := NewHandler(&fakePlayer{}, nil, nil, hclog.NewNullLogger())
	w, body := serve(t, h, "/api/player/sessions")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "UNAVAILABLE", body["code"])

	h = NewHandler(&fakePlayer{}, &fakeSessions{err: errors.New("disk full")}, nil, hclog.NewNullLogger())
	w, body = serve(t, h, "/api/player/sessions")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "DATABASE_ERROR", body["code"])
}

func TestHandleSystem(t *testing.T) {
	h := NewHandler(&fakePlayer{}, nil, nil, hclog.NewNullLogger())

	w, body := serve(t, h, "/api/system")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Greater(t, body["num_cpu"], float64(0))
	assert.Contains(t, body, "memory_percent")
}

func TestHandleEvents_Disabled(t *testing.T) {
	h := NewHandler(&fakePlayer{}, nil, nil, hclog.NewNullLogger())
	w, body := serve(t, h, "/api/player/events")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "UNAVAILABLE", body["code"])
}

func TestServer_StartAndShutdown(t *testing.T) {
	h := NewHandler(&fakePlayer{}, nil, nil, hclog.NewNullLogger())
	srv := NewServer("127.0.0.1:0", NewRouter(h), hclog.NewNullLogger())
	require.NoError(t, srv.Start())

	resp, err := http.Get("http://" + srv.Addr() + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}
