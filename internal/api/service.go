// Package api serves the local control API used by the overlay UI: session
// start/stop, live session events and model management over HTTP, with
// progress and transcript updates streamed as Server-Sent Events.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaz8081/gostt-overlay/internal/capture"
	"github.com/chaz8081/gostt-overlay/internal/models"
	"github.com/chaz8081/gostt-overlay/internal/provider"
	"github.com/chaz8081/gostt-overlay/internal/session"
)

// Sessions is the session controller as seen by the API.
// *session.Controller implements it.
type Sessions interface {
	Start(ctx context.Context, sel provider.Selection) (session.Session, error)
	Stop(ctx context.Context) (string, error)
	State() session.Session
	SetMode(kind capture.Kind) error
	Mode() capture.Kind
	Subscribe() (<-chan session.Event, func())
}

// Models is the model manager as seen by the API. *models.Manager
// implements it.
type Models interface {
	List() []models.Descriptor
	Download(ctx context.Context, name string) (<-chan models.Progress, error)
	SelectActive(name string) error
	Active() (string, error)
}

// SelectionFunc returns the provider selection for a new session.
type SelectionFunc func() (provider.Selection, error)

// Service is the HTTP control API.
type Service struct {
	addr      string
	sessions  Sessions
	models    Models
	selection SelectionFunc

	router *gin.Engine
	server *http.Server
}

// NewService builds the router. Call ListenAndServe to serve it.
func NewService(addr string, sessions Sessions, mdls Models, selection SelectionFunc) *Service {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	if err := router.SetTrustedProxies(nil); err != nil {
		slog.Warn("[api] setting trusted proxies", "error", err)
	}
	router.Use(gin.Recovery(), requestLogger("/health"))

	s := &Service{
		addr:      addr,
		sessions:  sessions,
		models:    mdls,
		selection: selection,
		router:    router,
	}
	s.initRouter()
	return s
}

// Handler returns the router.
func (s *Service) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until Shutdown is called.
func (s *Service) ListenAndServe() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}
	slog.Info("[api] listening", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown stops the server, waiting up to two seconds for open requests.
func (s *Service) Shutdown() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Debug("[api] shutdown", "error", err)
		return err
	}
	slog.Info("[api] stopped")
	return nil
}

func (s *Service) initRouter() {
	s.router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	api := s.router.Group("/api/v1")
	{
		api.GET("/session", s.handleSession)
		api.POST("/session/start", s.handleStart)
		api.POST("/session/stop", s.handleStop)
		api.PUT("/session/mode", s.handleMode)
		api.GET("/session/events", s.handleEvents)

		api.GET("/models", s.handleModels)
		api.POST("/models/:name/download", s.handleDownload)
		api.PUT("/models/active", s.handleActiveModel)

		api.POST("/actions", s.handleActions)
	}
}

// requestLogger logs one line per request, skipping the given paths.
func requestLogger(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if skipped[c.Request.URL.Path] {
			return
		}
		slog.Debug("[api] request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}
