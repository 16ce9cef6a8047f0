// Package server exposes the simulator over HTTP. Batches stream over
// websockets; closing the socket cancels the batch.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"mlvisuals/pkg/mlvisuals"
)

const shutdownTimeout = 5 * time.Second

type Options struct {
	Addr           string
	MetricsEnabled bool
	Logger         *slog.Logger
}

type Server struct {
	client   *mlvisuals.Client
	engine   *gin.Engine
	upgrader websocket.Upgrader
	addr     string
	logger   *slog.Logger
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func New(client *mlvisuals.Client, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		client: client,
		engine: gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		addr:   addr,
		logger: logger,
	}

	s.engine.Use(gin.Recovery(), otelgin.Middleware("mlvisuals"), s.requestLogger())
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.MetricsEnabled {
		s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := s.engine.Group("/api")
	{
		api.GET("/runs", s.handleRuns)
		api.GET("/runs/:id", s.handleRun)
	}
	ws := s.engine.Group("/ws")
	{
		ws.GET("/learning-curve", s.handleLearningCurve)
		ws.GET("/bias-variance", s.handleBiasVariance)
		ws.GET("/nonlinear", s.handleNonlinear)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
