// Package api exposes the analysis pipeline and stored results over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/medifusion-server/internal/domain"
	"github.com/medifusion-server/internal/health"
	"github.com/medifusion-server/internal/middleware"
	"github.com/medifusion-server/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

const (
	shutdownTimeout      = 30 * time.Second
	healthCacheTTL       = 5 * time.Second
	maxHealthyGoroutines = 10000
)

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	analysis      *service.AnalysisService
	store         domain.ResultStore
	health        *health.Checker
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance. store may be nil when persistence is
// disabled; the results endpoints then answer 503.
func NewServer(configManager domain.ConfigManager, logger *logrus.Logger, analysis *service.AnalysisService, store domain.ResultStore) *Server {
	cfg := configManager.GetServerConfig()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	router.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	router.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	checker := health.NewChecker(health.Config{CacheTTL: healthCacheTTL}, logger)
	checker.RegisterCheck(health.NewPredictorCheck(analysis.Predictor()))
	if store != nil {
		checker.RegisterCheck(health.NewStoreCheck(store))
	}
	checker.RegisterCheck(&health.RuntimeCheck{MaxGoroutines: maxHealthyGoroutines})

	server := &Server{
		configManager: configManager,
		logger:        logger,
		analysis:      analysis,
		store:         store,
		health:        checker,
		router:        router,
	}

	server.setupRoutes()

	return server
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/health/ready", s.handleReadiness)

	// Form upload path kept for existing clients
	s.router.POST("/upload", s.handleAnalyzeUpload)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/analyze", s.handleAnalyzeUpload)
		v1.POST("/analyze/json", s.handleAnalyzeJSON)
		v1.GET("/results", s.handleListResults)
		v1.GET("/results/export", s.handleExportResults)
		v1.GET("/results/:id", s.handleGetResult)
	}
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, "+middleware.CorrelationIDHeader)
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Disposition, "+middleware.CorrelationIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
