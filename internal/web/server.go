package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/roasbeef/draftsmith/internal/draft"
	"github.com/roasbeef/draftsmith/internal/provider"
	"github.com/roasbeef/draftsmith/internal/store"
	"github.com/roasbeef/draftsmith/internal/thread"
)

const (
	// DefaultListenAddr is the default HTTP listen address.
	DefaultListenAddr = ":8420"

	// shutdownGrace bounds how long in-flight requests get to finish
	// on shutdown.
	shutdownGrace = 10 * time.Second
)

// Config holds the web server settings.
type Config struct {
	// ListenAddr is the address to serve the API on.
	ListenAddr string

	// Debug enables gin's debug mode.
	Debug bool
}

// Server exposes the drafting service and session store over a REST API.
type Server struct {
	cfg      Config
	service  *draft.Service
	sessions store.SessionStore
	log      *slog.Logger

	httpServer *http.Server
}

// NewServer wires up the API routes.
func NewServer(cfg Config, service *draft.Service,
	sessions store.SessionStore, log *slog.Logger) *Server {

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if log == nil {
		log = slog.Default()
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		service:  service,
		sessions: sessions,
		log:      log.With("component", "web"),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", s.handleHealth)

		v1.POST("/threads/fetch", s.handleFetchThreads)

		v1.POST("/drafts/generate", s.handleGenerate)
		v1.POST("/drafts/generate-batch", s.handleGenerateBatch)

		v1.GET("/sessions", s.handleListSessions)
		v1.GET("/sessions/:id", s.handleGetSession)
		v1.PATCH("/sessions/:id", s.handleUpdateSession)
		v1.DELETE("/sessions/:id", s.handleDeleteSession)
		v1.POST("/sessions/clear", s.handleClearSessions)

		v1.GET("/stats", s.handleStats)
	}

	s.httpServer = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.log.Info("Serving API", "addr", s.cfg.ListenAddr)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs one line per request through the structured logger.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.Info("Request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// abortWithError maps a workflow error onto an HTTP status.
func (s *Server) abortWithError(c *gin.Context, err error) {
	status := statusForError(err)

	if persistErr, ok := draft.AsPersistenceError(err); ok {
		// The draft exists even though the save failed; return it
		// so the caller loses no work.
		c.JSON(status, gin.H{
			"error":   persistErr.Error(),
			"subject": persistErr.Draft.Subject,
			"email":   persistErr.Draft.Body,
			"intent":  persistErr.Draft.Intent.String(),
			"saved":   false,
		})
		return
	}

	c.JSON(status, errorResponse{Error: err.Error()})
}

func statusForError(err error) int {
	var malformed *thread.MalformedThreadError

	switch {
	case errors.As(err, &malformed):
		return http.StatusBadRequest

	case errors.Is(err, draft.ErrThreadNotFound),
		errors.Is(err, store.ErrSessionNotFound):

		return http.StatusNotFound

	case provider.IsUnavailable(err), draft.IsExhausted(err):
		return http.StatusBadGateway

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}

// badRequest rejects malformed request bodies.
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{
		Error: fmt.Sprintf("invalid request: %v", err),
	})
}
