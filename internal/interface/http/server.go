// Package http implements the Teens Space progress server: the sync API used
// by the Mini App, curator endpoints, the Telegram bot webhook and health
// checks.
package http

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teens-space/progress-hub/internal/application/command"
	"github.com/teens-space/progress-hub/internal/application/query"
	"github.com/teens-space/progress-hub/internal/domain/curator"
	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/infrastructure/auth"
	"github.com/teens-space/progress-hub/internal/interface/http/handlers"
	"github.com/teens-space/progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// MaxBodyBytes - maximum size of request bodies. A full state blob is a
	// few kilobytes.
	MaxBodyBytes int64

	// EnableCORS - enable CORS headers for the Mini App origin.
	EnableCORS bool

	// AllowedOrigins - allowed origins for CORS.
	AllowedOrigins []string

	// WebhookToken - path token of /webhook/telegram/{token}.
	WebhookToken string

	// WebhookSecret - expected X-Telegram-Bot-Api-Secret-Token, optional.
	WebhookSecret string

	// Version is reported by /health.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   1 << 20,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		Version:        "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// ProgressUpserter applies pushed states. Implemented by command.UpsertProgressHandler.
type ProgressUpserter interface {
	Handle(ctx context.Context, cmd command.UpsertProgressCommand) (*command.UpsertProgressResult, error)
}

// ProgressGetter reads states. Implemented by query.GetProgressHandler.
type ProgressGetter interface {
	Handle(ctx context.Context, q query.GetProgressQuery) (*ledger.State, error)
}

// LessonCompleter implemented by command.CompleteLessonHandler.
type LessonCompleter interface {
	Handle(ctx context.Context, cmd command.CompleteLessonCommand) (*command.CompleteLessonResult, error)
}

// CodeRedeemer implemented by command.LoginHandler.
type CodeRedeemer interface {
	Handle(ctx context.Context, cmd command.LoginCommand) (*command.LoginResult, error)
}

// CuratorAuthenticator implemented by command.CuratorAccountHandler.
type CuratorAuthenticator interface {
	Authenticate(ctx context.Context, cmd command.AuthenticateCuratorCommand) (*command.CuratorLoginResult, error)
}

// CodeGenerator implemented by command.GenerateCodeHandler.
type CodeGenerator interface {
	Handle(ctx context.Context, cmd command.GenerateCodeCommand) (*curator.AccessCode, error)
}

// StudentLister implemented by query.ListStudentsHandler.
type StudentLister interface {
	Handle(ctx context.Context, q query.ListStudentsQuery) (*query.ListStudentsResult, error)
}

// InitDataValidator implemented by auth.InitDataValidator.
type InitDataValidator interface {
	Validate(raw string) (auth.InitData, error)
}

// SessionParser implemented by auth.Tokens.
type SessionParser interface {
	Parse(token string) (curator.Session, error)
}

// RateLimiter implemented by redis.RateLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, identifier, action string) (bool, error)
}

// Dependencies contains all dependencies required by HTTP handlers.
// Nil handlers leave their routes answering 503.
type Dependencies struct {
	// Command Handlers (CQRS Write Side)
	UpsertProgress ProgressUpserter
	CompleteLesson LessonCompleter
	Login          CodeRedeemer
	CuratorAuth    CuratorAuthenticator
	GenerateCode   CodeGenerator

	// Query Handlers (CQRS Read Side)
	GetProgress  ProgressGetter
	ListStudents StudentLister

	// Authentication
	InitData InitDataValidator
	Sessions SessionParser

	// RequireInitData reports auth.telegram_init_data_required. Nil means required.
	RequireInitData func() bool

	// LoginLimiter throttles access code and password attempts, optional.
	LoginLimiter RateLimiter

	// Logger
	Logger *logger.Logger

	// Health Check Dependencies
	HealthChecker handlers.HealthChecker

	// Webhook Handler (for Telegram)
	WebhookHandler handlers.WebhookHandler
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: deps.Logger,
	}

	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))

	if s.config.MaxBodyBytes <= 0 {
		s.config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if s.deps.HealthChecker == nil {
		s.deps.HealthChecker = handlers.NewNoopHealthChecker()
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.Handler(),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the router wrapped with the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.buildMiddlewareChain(s.router)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)

	api := handlers.Chain(handlers.NoCacheMiddleware, handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))

	// ─────────────────────────────────────────────────────────────────────────
	// Sync API (Mini App)
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("POST /api/sync/progress", api(http.HandlerFunc(s.handleUpsertProgress)))
	s.router.Handle("GET /api/sync/progress/{telegram_id}", api(http.HandlerFunc(s.handleGetProgress)))
	s.router.Handle("POST /api/telegram/complete-lesson", api(http.HandlerFunc(s.handleCompleteLesson)))

	// ─────────────────────────────────────────────────────────────────────────
	// Auth & Curators
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("POST /api/auth/login", api(http.HandlerFunc(s.handleLogin)))
	s.router.Handle("POST /api/auth/curator", api(http.HandlerFunc(s.handleCuratorLogin)))
	s.router.Handle("POST /api/curator/generate-code", api(http.HandlerFunc(s.handleGenerateCode)))
	s.router.Handle("GET /api/curator/{id}/students", api(http.HandlerFunc(s.handleListStudents)))

	// ─────────────────────────────────────────────────────────────────────────
	// Webhook Endpoints (Telegram)
	// ─────────────────────────────────────────────────────────────────────────
	webhook := handlers.Chain(
		handlers.WebhookSecretMiddleware(s.config.WebhookSecret),
		handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes),
	)
	s.router.Handle("POST /webhook/telegram/{token}", webhook(http.HandlerFunc(s.handleTelegramWebhook)))
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router with all middleware.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	chain := []handlers.MiddlewareFunc{
		s.requestIDMiddleware,
		s.recoveryMiddleware,
		s.loggingMiddleware,
		handlers.SecurityHeadersMiddleware,
	}
	if s.config.EnableCORS {
		chain = append(chain, s.corsMiddleware)
	}
	return handlers.Chain(chain...)(handler)
}

// requestIDMiddleware adds a unique request ID to each request.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		ctx = logger.WithContext(ctx, s.logger.WithRequestID(requestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			logger.String("ip", getClientIP(r)),
			logger.String("request_id", getRequestID(r.Context())),
		}
		switch {
		case rw.statusCode >= 500:
			s.logger.Error("http request", fields...)
		case strings.HasPrefix(r.URL.Path, "/health"), r.URL.Path == "/live", r.URL.Path == "/ready":
			s.logger.Debug("http request", fields...)
		default:
			s.logger.Info("http request", fields...)
		}
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					logger.Any("error", err),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
					logger.String("request_id", getRequestID(r.Context())),
				)
				writeJSONError(w, r, http.StatusInternalServerError, CodeInternal, "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := false
		for _, o := range s.config.AllowedOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers",
				"Content-Type, Authorization, Idempotency-Key, X-Request-ID, "+HeaderInitData)
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Run starts the server and shuts it down when ctx is done.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER TYPES AND FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// getRequestID extracts the request ID from context.
func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// requestLogger returns the logger attached by requestIDMiddleware.
func requestLogger(r *http.Request) *logger.Logger {
	return logger.FromContext(r.Context())
}
