package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
)

// RequestLogger logs every HTTP request at debug level. Health checks and
// websocket upgrades are skipped.
func RequestLogger(logger hclog.Logger) gin.HandlerFunc {
	log := logger.Named("http")
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/api/health" || strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		log.Debug("HTTP Response",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"size", c.Writer.Size(),
			"ip", c.ClientIP(),
		)
	}
}

// ErrorLogger logs errors attached to the request context
func ErrorLogger(logger hclog.Logger) gin.HandlerFunc {
	log := logger.Named("http")
	return func(c *gin.Context) {
		c.Next()

		for _, err := range c.Errors {
			log.Error("Request error",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"error", err.Error(),
				"type", err.Type,
			)
		}
	}
}
