// Package api exposes a prefetch session over HTTP so that a browser (or a
// test harness standing in for one) can report page loads, navigations and
// interactions to the daemon.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Iron-Ham/prewarm/internal/logging"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Options configures the router.
type Options struct {
	// Mode is the gin mode: debug, release or test.
	Mode       string
	NewSession SessionFunc
	// EndSession runs after a session is stopped, e.g. to clear the
	// session store. Optional.
	EndSession func(Session)
	Logger     *logging.Logger
	StartTime  time.Time
}

// NewRouter creates a gin engine serving the session API and the Server
// behind it.
//
// Middleware chain: Recovery, then request logging.
func NewRouter(opts Options) (*gin.Engine, *Server) {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if opts.StartTime.IsZero() {
		opts.StartTime = time.Now()
	}
	srv := newServer(opts)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(opts.Logger))

	v1 := r.Group("/api/v1")
	v1.GET("/health", srv.Health)

	v1.POST("/session", srv.StartSession)
	v1.DELETE("/session", srv.EndSession)

	v1.POST("/navigation", srv.Navigate)
	v1.POST("/interaction", srv.Interact)

	v1.GET("/metrics", srv.Metrics)
	v1.DELETE("/metrics", srv.ClearMetrics)

	v1.GET("/history", srv.History)

	return r, srv
}

// requestLogger logs each request through the structured logger.
func requestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			logger.Warn("request failed", append(args, "error", c.Errors.String())...)
			return
		}
		logger.Debug("request served", args...)
	}
}
