// Package api serves the read-only monitoring API of the player: status,
// configuration, recorded sessions, host statistics and a websocket event
// feed. Playback is controlled in-process, never through this API.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/reelplay/internal/config"
	apierrors "github.com/mantonx/reelplay/internal/errors"
	"github.com/mantonx/reelplay/internal/middleware"
	"github.com/mantonx/reelplay/internal/modules/playermodule/core/player"
	"github.com/mantonx/reelplay/internal/modules/playermodule/store"
	"github.com/mantonx/reelplay/internal/utils"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 500
)

// PlayerReader is the read side of the player
type PlayerReader interface {
	Status() player.Status
	Config() *config.Config
}

// SessionReader reads recorded sessions
type SessionReader interface {
	RecentSessions(ctx context.Context, limit int) ([]*store.PlayerSession, error)
	GetSession(ctx context.Context, id string) (*store.PlayerSession, error)
	SessionEvents(ctx context.Context, sessionID string) ([]*store.SessionEvent, error)
}

// Handler serves the monitoring endpoints
type Handler struct {
	player   PlayerReader
	sessions SessionReader
	feed     *EventFeed
	logger   hclog.Logger
}

// NewHandler creates the handler. sessions and feed may be nil when the
// store or the event feed are disabled.
func NewHandler(p PlayerReader, sessions SessionReader, feed *EventFeed, logger hclog.Logger) *Handler {
	return &Handler{
		player:   p,
		sessions: sessions,
		feed:     feed,
		logger:   logger.Named("api"),
	}
}

// NewRouter creates the gin engine with every monitoring route.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(h.logger), middleware.ErrorLogger(h.logger))
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all monitoring routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/health", h.HandleHealth)
	r.GET("/api/system", h.HandleSystem)

	api := r.Group("/api/player")
	{
		api.GET("/status", h.HandleStatus)
		api.GET("/config", h.HandleConfig)

		// Recorded sessions
		api.GET("/sessions", h.HandleListSessions)
		api.GET("/sessions/:sessionId", h.HandleGetSession)

		// WebSocket endpoint
		api.GET("/events", h.HandleEvents)
	}
}

func (h *Handler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.player.Status())
}

// HandleConfig returns the configuration of the live pipeline.
func (h *Handler) HandleConfig(c *gin.Context) {
	cfg := h.player.Config()
	if cfg == nil {
		apierrors.HandleNotFound(c, "configuration", "current")
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) HandleSystem(c *gin.Context) {
	c.JSON(http.StatusOK, CollectSystemStats(c.Request.Context(), h.logger))
}

func (h *Handler) HandleListSessions(c *gin.Context) {
	if h.sessions == nil {
		apierrors.HandleUnavailable(c, "session store")
		return
	}

	limit := defaultSessionLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSessionLimit {
			apierrors.HandleValidationError(c, "limit must be between 1 and 500", "limit")
			return
		}
		limit = n
	}

	sessions, err := h.sessions.RecentSessions(c.Request.Context(), limit)
	if err != nil {
		apierrors.HandleDatabaseError(c, "list_sessions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

func (h *Handler) HandleGetSession(c *gin.Context) {
	if h.sessions == nil {
		apierrors.HandleUnavailable(c, "session store")
		return
	}

	id := c.Param("sessionId")
	if !utils.IsValidUUID(id) {
		apierrors.HandleValidationError(c, "invalid session id", "sessionId")
		return
	}
	session, err := h.sessions.GetSession(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		apierrors.HandleNotFound(c, "session", id)
		return
	}
	if err != nil {
		apierrors.HandleDatabaseError(c, "get_session", err)
		return
	}

	events, err := h.sessions.SessionEvents(c.Request.Context(), id)
	if err != nil {
		apierrors.HandleDatabaseError(c, "session_events", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session, "events": events})
}

func (h *Handler) HandleEvents(c *gin.Context) {
	if h.feed == nil {
		apierrors.HandleUnavailable(c, "event feed")
		return
	}
	h.feed.HandleWebSocket(c)
}
