package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

func newRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := hclog.New(&hclog.LoggerOptions{Level: hclog.Debug, Output: buf})

	r := gin.New()
	r.Use(RequestLogger(logger), ErrorLogger(logger))
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/player/status", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/player/sessions", func(c *gin.Context) {
		_ = c.Error(errors.New("store closed"))
		c.Status(http.StatusInternalServerError)
	})
	return r
}

func get(r *gin.Engine, path string, header http.Header) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	r.ServeHTTP(httptest.NewRecorder(), req)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	r := newRouter(&buf)

	get(r, "/api/player/status?verbose=1", nil)
	assert.Contains(t, buf.String(), "HTTP Response")
	assert.Contains(t, buf.String(), "/api/player/status")
	assert.Contains(t, buf.String(), "verbose=1")
}

func TestRequestLogger_SkipsHealthAndUpgrades(t *testing.T) {
	var buf bytes.Buffer
	r := newRouter(&buf)

	get(r, "/api/health", nil)
	get(r, "/api/player/status", http.Header{"Upgrade": []string{"websocket"}})
	assert.Empty(t, buf.String())
}

func TestErrorLogger(t *testing.T) {
	var buf bytes.Buffer
	r := newRouter(&buf)

	get(r, "/api/player/sessions", nil)
	assert.Contains(t, buf.String(), "Request error")
	assert.Contains(t, buf.String(), "store closed")
}
