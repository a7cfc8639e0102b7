package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"networth/internal/amqp"
	"networth/internal/log"
	"networth/internal/services"
	"networth/internal/storage"
)

// Deps carries everything the API server needs. Broker is optional: without
// it, manual refreshes run inline instead of being handed to the worker.
type Deps struct {
	Storage  *storage.SQLiteRepository
	Views    *services.ViewService
	NetWorth *services.NetWorthService
	Budgets  *services.BudgetService
	Refresh  *services.RefreshService
	Link     *services.LinkService
	Broker   *amqp.Client
	Logger   *log.Logger
}

type Server struct {
	http.Server

	storage  *storage.SQLiteRepository
	views    *services.ViewService
	netWorth *services.NetWorthService
	budgets  *services.BudgetService
	refresh  *services.RefreshService
	link     *services.LinkService
	broker   *amqp.Client
	logger   *log.Logger

	rateLimiter *rateLimiter
}

// NewServer configures routes and returns a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent("http")
	}

	s := &Server{
		Server: http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		storage:     deps.Storage,
		views:       deps.Views,
		netWorth:    deps.NetWorth,
		budgets:     deps.Budgets,
		refresh:     deps.Refresh,
		link:        deps.Link,
		broker:      deps.Broker,
		logger:      logger,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("/api/plaid/link-token", s.withMiddleware(s.handleCreateLinkToken))
	mux.HandleFunc("/api/plaid/exchange-token", s.withMiddleware(s.handleExchangeToken))
	mux.HandleFunc("/api/accounts", s.withMiddleware(s.handleAccounts))
	mux.HandleFunc("/api/net-worth/current", s.withMiddleware(s.handleNetWorthCurrent))
	mux.HandleFunc("/api/net-worth/history", s.withMiddleware(s.handleNetWorthHistory))
	mux.HandleFunc("/api/holdings", s.withMiddleware(s.handleHoldings))
	mux.HandleFunc("/api/transactions", s.withMiddleware(s.handleTransactions))
	mux.HandleFunc("/api/transactions/category", s.withMiddleware(s.handleSetCategory))
	mux.HandleFunc("/api/spending/by-category", s.withMiddleware(s.handleSpendingByCategory))
	mux.HandleFunc("/api/budgets", s.withMiddleware(s.handleBudgets))
	mux.HandleFunc("/api/budgets/status", s.withMiddleware(s.handleBudgetStatus))
	mux.HandleFunc("/api/sync", s.withMiddleware(s.handleManualSync))

	return s
}

// withMiddleware adds request logging, a trace id, rate limiting on writes,
// and baseline security headers.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			s.logger.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logger.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.storage.CountCategoryConfigs(r.Context()); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

// rateLimiter is a fixed-window per-client limiter for write endpoints.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
}

type clientWindow struct {
	requests    int
	windowStart time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{clients: make(map[string]*clientWindow)}
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, ok := rl.clients[clientIP]
	if !ok || now.Sub(client.windowStart) > time.Minute {
		rl.clients[clientIP] = &clientWindow{requests: 1, windowStart: now}
		return true
	}

	client.requests++
	return client.requests <= 60
}
