package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Iron-Ham/prewarm/internal/device"
	"github.com/Iron-Ham/prewarm/internal/errors"
	"github.com/Iron-Ham/prewarm/internal/interaction"
	"github.com/Iron-Ham/prewarm/internal/logging"
	"github.com/Iron-Ham/prewarm/internal/prefetch"
	"github.com/Iron-Ham/prewarm/internal/tier"
)

// Session is the part of *orchestrator.Orchestrator the API drives.
type Session interface {
	Start(ctx context.Context, path string) error
	Navigate(path string) error
	Interact(kind, feature string) error
	Signals() tier.Signals
	Stage() interaction.Stage
	Metrics() prefetch.Snapshot
	ClearMetrics()
	History() ([]string, error)
	SessionID() string
	Stop()
}

// SessionFunc creates an unstarted session. sig is nil when the client
// reported no device signals.
type SessionFunc func(sig device.Signals) (Session, error)

// Server holds at most one active session.
type Server struct {
	newSession SessionFunc
	endSession func(Session)
	logger     *logging.Logger
	startTime  time.Time

	mu      sync.Mutex
	current Session
}

func newServer(opts Options) *Server {
	return &Server{
		newSession: opts.NewSession,
		endSession: opts.EndSession,
		logger:     opts.Logger,
		startTime:  opts.StartTime,
	}
}

// Health handles GET /api/v1/health.
func (s *Server) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:  "healthy",
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		Version: Version,
	}
	if sess := s.session(); sess != nil {
		resp.SessionID = sess.SessionID()
	}
	c.JSON(http.StatusOK, resp)
}

// StartSession handles POST /api/v1/session.
func (s *Server) StartSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidInput, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		respondError(c, http.StatusConflict, ErrCodeSessionActive, errors.ErrAlreadyStarted)
		return
	}

	var sig device.Signals
	if req.HardwareConcurrency > 0 || req.EffectiveType != "" {
		sig = device.StaticSignals{Cores: req.HardwareConcurrency, Effective: req.EffectiveType}
	}
	sess, err := s.newSession(sig)
	if err != nil {
		respondError(c, http.StatusInternalServerError, ErrCodeInternal, err)
		return
	}
	if err := sess.Start(c.Request.Context(), req.Path); err != nil {
		sess.Stop()
		if errors.Is(err, errors.ErrAlreadyStarted) {
			respondError(c, http.StatusConflict, ErrCodeSessionActive, err)
			return
		}
		respondError(c, http.StatusInternalServerError, ErrCodeInternal, err)
		return
	}
	s.current = sess
	s.logger.Info("api session started", "session_id", sess.SessionID(), "path", req.Path)

	c.JSON(http.StatusCreated, SessionResponse{
		SessionID: sess.SessionID(),
		Path:      req.Path,
		Device:    sess.Signals().Device,
	})
}

// EndSession handles DELETE /api/v1/session.
func (s *Server) EndSession(c *gin.Context) {
	if !s.Shutdown() {
		respondError(c, http.StatusConflict, ErrCodeNoSession, errors.ErrNotStarted)
		return
	}
	c.Status(http.StatusNoContent)
}

// Shutdown stops the active session, if any, and reports whether there
// was one.
func (s *Server) Shutdown() bool {
	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()

	if sess == nil {
		return false
	}
	sess.Stop()
	if s.endSession != nil {
		s.endSession(sess)
	}
	s.logger.Info("api session ended", "session_id", sess.SessionID())
	return true
}

// Navigate handles POST /api/v1/navigation.
func (s *Server) Navigate(c *gin.Context) {
	var req NavigationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidInput, err)
		return
	}
	sess, ok := s.require(c)
	if !ok {
		return
	}
	if err := sess.Navigate(req.Path); err != nil {
		respondError(c, http.StatusInternalServerError, ErrCodeInternal, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Interact handles POST /api/v1/interaction.
func (s *Server) Interact(c *gin.Context) {
	var req InteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidInput, err)
		return
	}
	sess, ok := s.require(c)
	if !ok {
		return
	}
	if err := sess.Interact(req.Kind, req.Feature); err != nil {
		switch {
		case errors.Is(err, errors.ErrUnknownInteraction):
			respondError(c, http.StatusBadRequest, ErrCodeUnknownInteraction, err)
		case errors.Is(err, errors.ErrNotStarted):
			respondError(c, http.StatusConflict, ErrCodeNoSession, err)
		default:
			respondError(c, http.StatusInternalServerError, ErrCodeInternal, err)
		}
		return
	}
	c.JSON(http.StatusOK, InteractionResponse{Stage: sess.Stage().String()})
}

// Metrics handles GET /api/v1/metrics.
func (s *Server) Metrics(c *gin.Context) {
	sess, ok := s.require(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, MetricsResponse{SessionID: sess.SessionID(), Metrics: sess.Metrics()})
}

// ClearMetrics handles DELETE /api/v1/metrics.
func (s *Server) ClearMetrics(c *gin.Context) {
	sess, ok := s.require(c)
	if !ok {
		return
	}
	sess.ClearMetrics()
	c.Status(http.StatusNoContent)
}

// History handles GET /api/v1/history.
func (s *Server) History(c *gin.Context) {
	sess, ok := s.require(c)
	if !ok {
		return
	}
	paths, err := sess.History()
	if err != nil {
		respondError(c, http.StatusInternalServerError, ErrCodeInternal, err)
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{Paths: paths})
}

func (s *Server) session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// require returns the active session or writes a 409.
func (s *Server) require(c *gin.Context) (Session, bool) {
	sess := s.session()
	if sess == nil {
		respondError(c, http.StatusConflict, ErrCodeNoSession, errors.ErrNotStarted)
		return nil, false
	}
	return sess, true
}

func respondError(c *gin.Context, status int, code string, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: err.Error()}})
}
