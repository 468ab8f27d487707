// Package api exposes the print desk over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdesk/internal/api/handlers"
	"github.com/orrn/printdesk/internal/api/middleware"
	"github.com/orrn/printdesk/internal/core"
)

const shutdownTimeout = 30 * time.Second

type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Auth     *middleware.AuthMiddleware
	Jobs     *core.JobManager
	Printer  *core.PrinterManager
	Ingester handlers.Ingester
	Webhooks handlers.Deliverer
	Version  string
	Logger   *slog.Logger

	MaxUploadBytes   int64
	DefaultTonerSave bool
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(cfg.Logger))
	if cfg.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = cfg.MaxUploadBytes
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"version":     cfg.Version,
			"active_jobs": cfg.Jobs.Len(),
		})
	})

	auth := r.Group("/api/auth")
	auth.POST("/login", cfg.Auth.LoginHandler)
	auth.POST("/logout", cfg.Auth.LogoutHandler)
	auth.GET("/status", cfg.Auth.StatusHandler)

	api := r.Group("/api", cfg.Auth.RequireAuth())

	handlers.NewJobHandler(handlers.JobHandlerConfig{
		Jobs:             cfg.Jobs,
		Ingester:         cfg.Ingester,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		DefaultTonerSave: cfg.DefaultTonerSave,
		Logger:           cfg.Logger,
	}).RegisterRoutes(api)
	handlers.RegisterHistoryRoutes(api, handlers.NewHistoryHandler())
	handlers.RegisterPrinterRoutes(api, handlers.NewPrinterHandler(cfg.Printer, cfg.Logger))
	handlers.RegisterSettingsRoutes(api, handlers.NewSettingsHandler(cfg.DefaultTonerSave))
	handlers.RegisterWebhookRoutes(api, handlers.NewWebhookHandler(cfg.Webhooks))
	handlers.RegisterDashboardRoutes(api, handlers.NewDashboardHandler(cfg.Jobs, cfg.Printer))

	return r
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewRouter(cfg),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  120 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
