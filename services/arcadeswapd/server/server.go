package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"arcadeswap/native/arcade"
	"arcadeswap/observability"
	"arcadeswap/services/arcadeswapd/storage"
)

const maxBodyBytes = 64 << 10

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	TLS           TLSConfig
}

// TLSConfig describes TLS settings for the listener.
type TLSConfig struct {
	Disabled bool
	CertFile string
	KeyFile  string
	Config   *tls.Config
}

// StateCommitter persists or drops the state written by one operation.
type StateCommitter interface {
	Commit() error
	Discard()
}

// ReserveAccounts exposes the reserve ledger operations served over HTTP.
type ReserveAccounts interface {
	BalanceOf(account common.Address) (*uint256.Int, error)
	Allowance(owner, spender common.Address) (*uint256.Int, error)
	Approve(owner, spender common.Address, amount *uint256.Int) error
}

// EventGate releases the events of one operation once its state is durable.
type EventGate interface {
	Flush() int
	Drop() int
}

// PriceSource reports the current reserve price.
type PriceSource interface {
	Price(asset string) (*uint256.Int, error)
}

// Deps bundles the collaborators of the server.
type Deps struct {
	Engine   *arcade.Engine
	State    StateCommitter
	Reserve  ReserveAccounts
	Oracle   PriceSource
	Audit    *storage.Storage
	Auth     *Authenticator
	Sessions *SessionVerifier
	// Events is the buffer the engine emits into. It is flushed after each
	// commit and dropped when an operation fails.
	Events  EventGate
	Limiter *RateLimiter
	Logger  *slog.Logger
}

// Server hosts the public swap API and the operator endpoints.
//
// The engine is single-threaded: mu serialises every call into it, and each
// successful mutation is committed before the lock is released.
type Server struct {
	cfg     Config
	engine  *arcade.Engine
	state   StateCommitter
	reserve ReserveAccounts
	oracle  PriceSource
	audit   *storage.Storage
	auth     *Authenticator
	sessions *SessionVerifier
	events   EventGate
	limiter  *RateLimiter
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	router http.Handler
}

// New constructs a new HTTP server.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if deps.State == nil {
		return nil, fmt.Errorf("state committer required")
	}
	if deps.Reserve == nil {
		return nil, fmt.Errorf("reserve ledger required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("admin authenticator required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session verifier required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		cfg:      cfg,
		engine:   deps.Engine,
		state:    deps.State,
		reserve:  deps.Reserve,
		oracle:   deps.Oracle,
		audit:    deps.Audit,
		auth:     deps.Auth,
		sessions: deps.Sessions,
		events:   deps.Events,
		limiter:  deps.Limiter,
		logger:   logger,
		now:      time.Now,
	}
	srv.cfg.TLS.CertFile = strings.TrimSpace(cfg.TLS.CertFile)
	srv.cfg.TLS.KeyFile = strings.TrimSpace(cfg.TLS.KeyFile)
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.instrument)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		if s.limiter != nil {
			api.Use(s.limiter.Middleware)
		}
		api.Get("/domain", s.handleDomain)
		api.Get("/oracle/price", s.handleOraclePrice)
		api.Get("/games", s.handleGames)
		api.Get("/games/{id}", s.handleGame)
		api.Get("/games/{id}/positions/{account}", s.handlePosition)
		api.Get("/games/{id}/balances/{account}", s.handleCurrencyBalance)
		api.Get("/reserve/{account}", s.handleReserveAccount)

		api.Route("/swap", func(swap chi.Router) {
			swap.Use(s.sessions.Middleware)
			swap.Post("/buy", s.handleBuy)
			swap.Post("/sell", s.handleSell)
			swap.Post("/mint", s.handleMint)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(s.auth.Middleware)
			admin.Get("/config", s.handleAdminConfig)
			admin.Post("/games", s.handleCreateGame)
			admin.Put("/games/{id}/rate", s.handleSetRate)
			admin.Put("/signer", s.handleSetSigner)
			admin.Put("/operator", s.handleTransferOperator)
			admin.Post("/reserve/approve", s.handleApprove)
			admin.Get("/audit/operations", s.handleListOperations)
			admin.Get("/audit/events", s.handleListEvents)
		})
	})
	return otelhttp.NewHandler(r, "arcadeswapd")
}

// instrument logs each request and records HTTP metrics under the matched
// route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		elapsed := time.Since(start)
		observability.HTTP().Observe(route, r.Method, status, elapsed)
		s.logger.Info("http request",
			slog.String("requestId", chimw.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", elapsed))
	})
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.router,
		TLSConfig:         s.cfg.TLS.Config,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", slog.String("addr", s.cfg.ListenAddress), slog.Bool("tls", !s.cfg.TLS.Disabled))
	var err error
	if s.cfg.TLS.Disabled {
		err = srv.ListenAndServe()
	} else {
		err = srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}
