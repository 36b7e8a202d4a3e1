package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/refmet/catmarket/internal/domain"
	"github.com/refmet/catmarket/internal/server/handler"
	"github.com/refmet/catmarket/internal/server/middleware"
	"github.com/refmet/catmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per window per client IP; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health        *handler.HealthHandler
	Listings      *handler.ListingHandler
	Tenders       *handler.TenderHandler
	Baskets       *handler.BasketHandler
	Notifications *handler.NotificationHandler
	Archive       *handler.ArchiveHandler // nil when blob storage is not wired
}

// Server is the HTTP + WebSocket API server for the marketplace backend.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. limiter may be nil when rate limiting is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Listing endpoints.
	mux.HandleFunc("POST /api/listings", handlers.Listings.CreateListing)
	mux.HandleFunc("GET /api/listings", handlers.Listings.ListListings)
	mux.HandleFunc("GET /api/listings/{id}", handlers.Listings.GetBoard)
	mux.HandleFunc("POST /api/listings/{id}/reactivate", handlers.Listings.Reactivate)

	// Tender endpoints.
	mux.HandleFunc("POST /api/tenders", handlers.Tenders.Submit)
	mux.HandleFunc("GET /api/tenders", handlers.Tenders.ListTenders)
	mux.HandleFunc("POST /api/tenders/{id}/accept", handlers.Tenders.Accept)
	mux.HandleFunc("POST /api/tenders/{id}/reject", handlers.Tenders.Reject)

	// Basket and valuation endpoints.
	mux.HandleFunc("POST /api/baskets", handlers.Baskets.Create)
	mux.HandleFunc("GET /api/baskets", handlers.Baskets.List)
	mux.HandleFunc("GET /api/baskets/{id}", handlers.Baskets.Get)
	mux.HandleFunc("PUT /api/baskets/{id}", handlers.Baskets.Update)
	mux.HandleFunc("DELETE /api/baskets/{id}", handlers.Baskets.Delete)
	mux.HandleFunc("GET /api/baskets/{id}/items", handlers.Baskets.ListItems)
	mux.HandleFunc("GET /api/baskets/{id}/totals", handlers.Baskets.Totals)
	mux.HandleFunc("PUT /api/baskets/{id}/items/{itemID}", handlers.Baskets.AssignItem)
	mux.HandleFunc("DELETE /api/items/{itemID}/basket", handlers.Baskets.RemoveItem)
	mux.HandleFunc("GET /api/items/totals", handlers.Baskets.OwnerTotals)

	// Notification inbox.
	mux.HandleFunc("GET /api/notifications", handlers.Notifications.List)
	mux.HandleFunc("POST /api/notifications/{id}/read", handlers.Notifications.MarkRead)

	// Settlement archive inventory (only when blob storage is wired).
	if handlers.Archive != nil {
		mux.HandleFunc("GET /api/archive", handlers.Archive.List)
		mux.HandleFunc("GET /api/archive/{path...}", handlers.Archive.Download)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
