package api

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/pii-scrubber/internal/audit"
	"github.com/raaihank/pii-scrubber/internal/config"
	"github.com/raaihank/pii-scrubber/internal/extract"
	"github.com/raaihank/pii-scrubber/internal/logger"
	"github.com/raaihank/pii-scrubber/internal/privacy"
	"github.com/raaihank/pii-scrubber/internal/stats"
	"github.com/raaihank/pii-scrubber/internal/websocket"
	"go.uber.org/zap"
)

// Version is reported by /info
const Version = "0.1.0"

// AuditStore records per-request summaries
type AuditStore interface {
	Record(ctx context.Context, summary audit.Summary) error
	Recent(ctx context.Context, limit int) ([]audit.Summary, error)
}

// Dependencies are the collaborators a Server is built from. Audit and Hub
// are optional.
type Dependencies struct {
	Scrubber *privacy.Scrubber
	Stats    stats.Store
	Audit    AuditStore
	Hub      *websocket.Hub
}

// Server exposes the scrubber over HTTP
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	scrubber  *privacy.Scrubber
	extractor *extract.Extractor
	stats     stats.Store
	audit     AuditStore
	wsHub     *websocket.Hub
	limiter   *RateLimiter
	router    *mux.Router
	handler   http.Handler
	server    *http.Server
	startTime time.Time

	totalRequests atomic.Int64
	totalEntities atomic.Int64
}

// New creates a new API server instance
func New(cfg *config.Config, log *logger.Logger, deps Dependencies) (*Server, error) {
	if deps.Scrubber == nil {
		return nil, fmt.Errorf("scrubber is required")
	}
	if deps.Stats == nil {
		deps.Stats = stats.NewMemoryStore()
	}

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("api"),
		scrubber:  deps.Scrubber,
		extractor: extract.New(int64(cfg.Extraction.MaxUploadMB) << 20),
		stats:     deps.Stats,
		audit:     deps.Audit,
		wsHub:     deps.Hub,
		limiter:   NewRateLimiter(cfg.RateLimit),
		router:    mux.NewRouter(),
		startTime: time.Now(),
	}

	s.setupRoutes()
	s.handler = corsMiddleware(cfg.CORS.AllowedOrigins, s.router)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	s.router.Handle("/redact", s.rateLimitMiddleware(http.HandlerFunc(s.handleRedact))).Methods(http.MethodPost)

	if s.audit != nil {
		s.router.HandleFunc("/audit/recent", s.handleAuditRecent).Methods(http.MethodGet)
	}

	// WebSocket endpoint for live redaction events
	if s.wsHub != nil && s.config.WebSocket.Enabled {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}
}

// Handler returns the root handler, CORS included
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting PII scrubber API",
		zap.Int("port", s.config.Server.Port),
		zap.String("default_mode", string(s.scrubber.DefaultMode())),
		zap.String("person_recognizer", s.scrubber.RecognizerName()),
		zap.Bool("audit", s.audit != nil),
		zap.Bool("websocket", s.wsHub != nil && s.config.WebSocket.Enabled),
	)

	s.limiter.StartCleanupRoutine(ctx.Done())
	if s.wsHub != nil {
		go s.wsHub.RunStatusTicker(ctx, s.systemStatus)
	}

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping PII scrubber API")
	return s.server.Shutdown(ctx)
}

// systemStatus builds the periodic status event
func (s *Server) systemStatus(ctx context.Context) websocket.SystemStatusEvent {
	categories, err := s.stats.Snapshot(ctx)
	if err != nil {
		s.logger.Warn("Failed to read statistics for status event", zap.Error(err))
	}
	return websocket.SystemStatusEvent{
		Status:           "healthy",
		Uptime:           time.Since(s.startTime).Round(time.Second).String(),
		TotalRequests:    s.totalRequests.Load(),
		TotalEntities:    s.totalEntities.Load(),
		Categories:       categories,
		PersonRecognizer: s.scrubber.RecognizerName(),
		MemoryUsage:      websocket.MemoryUsage(),
	}
}
