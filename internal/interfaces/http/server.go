// Package http is the gateway's HTTP front door: an input-submission
// endpoint per actor and an SSE relay of the actor's published events.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/eventbus"
	"github.com/Reynold-degenracy/EverMemoryArchive/pkg/safego"
)

// Server is the gateway's gin-based HTTP server.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config configures the HTTP server's bind address and gin mode.
type Config struct {
	Host string
	Port int
	Mode string // local, production; "production" selects gin release mode, anything else debug mode
}

// ActorPool is the subset of actor orchestration the HTTP layer needs:
// dispatching input to a named actor and reading that actor's event bus.
type ActorPool interface {
	Submit(ctx context.Context, actorID, userID, text string) error
	BusFor(actorID string) *eventbus.Bus
}

// NewServer builds a gin server wired against pool.
func NewServer(cfg Config, pool ActorPool, logger *zap.Logger) *Server {
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	setupRoutes(router, pool, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		server: &http.Server{Addr: addr, Handler: router},
		logger: logger,
	}
}

// Start runs the server in the background.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	safego.Go(s.logger, "http-listen", func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	})

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func setupRoutes(router *gin.Engine, pool ActorPool, logger *zap.Logger) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/actors/:actorID/messages", submitMessageHandler(pool, logger))
		v1.GET("/actors/:actorID/events", streamEventsHandler(pool, logger))
	}
}

func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
