// Package server exposes the recording session over HTTP.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alkime/memo/internal/config"
	"github.com/alkime/memo/internal/session"
	"github.com/gin-gonic/gin"
)

// Session is the part of the controller the HTTP surface drives.
type Session interface {
	State() session.State
	RequestMicrophoneAccess()
	DismissPermissionPrompt()
	StartRecording() error
	StopRecording()
	PlayRecording() error
}

// Server represents the HTTP server
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	router  *gin.Engine
	session Session
}

// stateResponse is the JSON rendering of session.State.
type stateResponse struct {
	Phase                   string `json:"phase"`
	IsRecording             bool   `json:"isRecording"`
	IsPlaying               bool   `json:"isPlaying"`
	PermissionDenialPending bool   `json:"permissionDenialPending"`
	ElapsedSeconds          int    `json:"elapsedSeconds"`
	RecordingPath           string `json:"recordingPath"`
	HasRecording            bool   `json:"hasRecording"`
}

func newStateResponse(s session.State) stateResponse {
	return stateResponse{
		Phase:                   s.Phase().String(),
		IsRecording:             s.IsRecording,
		IsPlaying:               s.IsPlaying,
		PermissionDenialPending: s.PermissionDenialPending,
		ElapsedSeconds:          s.ElapsedSeconds,
		RecordingPath:           s.RecordingPath,
		HasRecording:            s.HasRecording,
	}
}

// New creates a new Server instance
func New(cfg *config.Config, logger *slog.Logger, sess Session) *Server {
	// Set Gin mode based on environment
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	server := &Server{
		config:  cfg,
		logger:  logger,
		router:  router,
		session: sess,
	}

	setupSecurityMiddleware(router, cfg, logger)
	router.Use(requestLogger(logger))
	server.setupRoutes()

	return server
}

// Run starts the HTTP server
func Run(s *Server) error {
	s.logger.Info("Server listening", "port", s.config.Port)
	return s.router.Run(":" + s.config.Port)
}

// Router exposes the handler for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api/v1/session")
	{
		api.GET("", s.handleState)
		api.POST("/permission", s.handleRequestPermission)
		api.DELETE("/permission", s.handleDismissPermission)
		api.POST("/recording", s.handleStartRecording)
		api.DELETE("/recording", s.handleStopRecording)
		api.POST("/playback", s.handlePlay)
	}
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "memo",
	})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, newStateResponse(s.session.State()))
}

func (s *Server) handleRequestPermission(c *gin.Context) {
	s.session.RequestMicrophoneAccess()
	c.JSON(http.StatusAccepted, newStateResponse(s.session.State()))
}

func (s *Server) handleDismissPermission(c *gin.Context) {
	s.session.DismissPermissionPrompt()
	c.JSON(http.StatusOK, newStateResponse(s.session.State()))
}

func (s *Server) handleStartRecording(c *gin.Context) {
	s.respond(c, s.session.StartRecording())
}

func (s *Server) handleStopRecording(c *gin.Context) {
	s.session.StopRecording()
	s.respond(c, nil)
}

func (s *Server) handlePlay(c *gin.Context) {
	s.respond(c, s.session.PlayRecording())
}

// respond writes the current state, or the error with a status matching its kind.
func (s *Server) respond(c *gin.Context, err error) {
	if err == nil {
		c.JSON(http.StatusOK, newStateResponse(s.session.State()))
		return
	}

	// the session has already reported the failure
	status := statusFor(err)
	s.logger.Debug("session operation refused", "path", c.Request.URL.Path, "status", status, "error", err)

	c.JSON(status, gin.H{
		"error": err.Error(),
		"state": newStateResponse(s.session.State()),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrFileMissing):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
