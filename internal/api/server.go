package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rsv-seq-eqa/eqa-server/internal/domain"
	"github.com/rsv-seq-eqa/eqa-server/internal/export"
	"github.com/rsv-seq-eqa/eqa-server/internal/middleware"
	"github.com/rsv-seq-eqa/eqa-server/internal/notify"
	"github.com/rsv-seq-eqa/eqa-server/internal/report"
	"github.com/rsv-seq-eqa/eqa-server/internal/upload"
)

// Server represents the HTTP server
type Server struct {
	cfg      domain.Config
	router   *gin.Engine
	server   *http.Server
	log      *logrus.Logger
	reports  *report.Service
	store    domain.Store
	hub      *notify.Hub
	uploads  *upload.Service
	archiver *export.Archiver
}

// NewServer creates a new HTTP server instance
func NewServer(
	cfg domain.Config,
	reports *report.Service,
	store domain.Store,
	hub *notify.Hub,
	uploads *upload.Service,
	logger *logrus.Logger,
) *Server {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())

	router.MaxMultipartMemory = cfg.Server.MaxUploadBytes

	server := &Server{
		cfg:      cfg,
		router:   router,
		log:      logger,
		reports:  reports,
		store:    store,
		hub:      hub,
		uploads:  uploads,
		archiver: export.NewArchiver(reports, logger),
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg.Server
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
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	limiter := middleware.NewRateLimiter(s.cfg.Server.RatePerSecond, s.cfg.Server.RateBurst)

	api := s.router.Group("/api")
	api.Use(limiter.Middleware())
	api.Use(middleware.Identity())
	{
		api.GET("/distributions", s.handleListDistributions)
		api.GET("/distributions/:distribution/samples", s.handleParticipation)
		api.GET("/distribution_data/:distribution", s.handleDistributionReport)
		api.GET("/distribution_data/:distribution/sample/:sample", s.handleSampleDetail)
		api.GET("/distributions/:distribution/report", s.handleReportDownload)
		api.GET("/distributions/:distribution/sample/:sample/download/:participant/:file", s.handleArtifactDownload)

		api.POST("/upload", s.handleUpload)

		api.GET("/notifications", s.handleListNotifications)
		api.POST("/notifications", s.handleCreateNotification)
		api.POST("/notifications/dismiss", s.handleDismissNotifications)
	}

	ws := s.router.Group("/ws")
	ws.Use(middleware.Identity())
	ws.GET("", s.handleWebsocket)
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-Correlation-ID, X-EQA-Organization, X-EQA-Role, X-EQA-Email")
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Disposition")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
