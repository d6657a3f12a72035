// Package http exposes the gumball machine as a small JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"gumball/internal/core"
	"gumball/internal/log"
	"gumball/internal/middleware/ratelimit"
	"gumball/internal/middleware/security"
	"gumball/internal/middleware/trace"
)

// Vending is the machine the API drives.
type Vending interface {
	InsertCoin(ctx context.Context, coin string) core.CoinResult
	Dispense(ctx context.Context, color string) core.DispenseResult
	ReturnChange(ctx context.Context) core.ChangeResult
	Balance() core.Cents
}

// LedgerReader serves the audit endpoints.
type LedgerReader interface {
	ListEvents(ctx context.Context, limit int) ([]core.Event, error)
	SalesSummary(ctx context.Context) (core.SalesSummary, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server's collaborators. Ledger and Ready may be nil.
type Options struct {
	Vending            Vending
	Ledger             LedgerReader
	Ready              Pinger
	Logger             *log.Logger
	RateLimitPerMinute int
}

// maxBodyBytes bounds request bodies; every valid body is a single short field.
const maxBodyBytes = 1 << 10

type Server struct {
	http.Server
	vending     Vending
	ledger      LedgerReader
	ready       Pinger
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, opts Options) *Server {
	s := &Server{
		vending:     opts.Vending,
		ledger:      opts.Ledger,
		ready:       opts.Ready,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:    security.NewDetector(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /menu", s.handleMenu)
	mux.HandleFunc("GET /balance", s.handleBalance)
	mux.HandleFunc("POST /coins", s.handleInsertCoin)
	mux.HandleFunc("POST /dispense", s.handleDispense)
	mux.HandleFunc("POST /change", s.handleReturnChange)
	mux.HandleFunc("GET /events", s.handleListEvents)
	mux.HandleFunc("GET /sales", s.handleSalesSummary)

	var h http.Handler = mux
	h = s.rateLimiter.Middleware(s.detector.ExtractClientIP, onRateLimit)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	h = trace.NewMiddleware(opts.Logger, s.detector.ExtractClientIP).Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded", log.FieldPath, r.URL.Path)
	writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "try again later")
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
