// Package server exposes the placement service over HTTP
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samuelfneumann/goplace/trainer"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// Server routes HTTP requests to a Trainer
type Server struct {
	trainer  *trainer.Trainer
	defaults trainer.Request
	logger   *slog.Logger
	engine   *gin.Engine
}

// New returns a Server for t. Training requests start from defaults,
// so fields absent from a request body keep their default values. If
// logger is nil, slog.Default() is used.
func New(t *trainer.Trainer, defaults trainer.Request,
	logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		trainer:  t,
		defaults: defaults,
		logger:   logger,
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.logRequests())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	api.POST("/rl/train/:algorithm", s.train)
	api.POST("/rl/inference", s.infer)
	api.POST("/ml/train/gnn", s.trainGNN)

	models := api.Group("/models")
	models.GET("/list", s.listModels)
	models.GET("/best", s.bestModel)
	models.DELETE("/:name", s.deleteModel)
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts
// the server down, waiting up to timeout for open requests
func (s *Server) ListenAndServe(ctx context.Context, addr string,
	timeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request", "method", c.Request.Method,
			"path", c.FullPath(), "status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
