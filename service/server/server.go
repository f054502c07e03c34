package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solwallet/service/db"
	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/temporal"
	"github.com/brojonat/solwallet/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// OperationStore persists the operation log. *db.Store satisfies it.
type OperationStore interface {
	CreateOperation(ctx context.Context, params db.CreateOperationParams) (*db.Operation, error)
	CompleteOperation(ctx context.Context, params db.CompleteOperationParams) (*db.Operation, error)
	GetOperation(ctx context.Context, id uuid.UUID) (*db.Operation, error)
	ListOperations(ctx context.Context, params db.ListOperationsParams) ([]*db.Operation, error)
}

// Transferer runs transfer intents. *wallet.TransferOrchestrator satisfies it.
type Transferer interface {
	Transfer(ctx context.Context, intent wallet.TransferIntent) (*wallet.Result, error)
}

// Swapper runs swap intents. *wallet.SwapOrchestrator satisfies it.
type Swapper interface {
	Swap(ctx context.Context, intent wallet.SwapIntent) (*wallet.Result, error)
}

// WalletQuerier answers read-only wallet queries. *wallet.WalletReader satisfies it.
type WalletQuerier interface {
	Tokens(ctx context.Context, owner solanago.PublicKey) ([]wallet.TokenBalance, error)
	Transactions(ctx context.Context, owner solanago.PublicKey, limit int, before solanago.Signature) ([]wallet.TransactionSummary, error)
}

// Deps are the collaborators the HTTP handlers need. Wallets, Finality and
// Metrics are optional.
type Deps struct {
	Store           OperationStore
	Transfers       Transferer
	Swaps           Swapper
	Wallets         WalletQuerier
	Finality        temporal.FinalityTracker
	DefaultSlippage decimal.Decimal
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
}

// Server represents the HTTP server for the wallet service.
type Server struct {
	addr   string
	deps   Deps
	logger *slog.Logger
	server *http.Server
}

// New creates a new HTTP server with the given dependencies.
func New(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		addr:   addr,
		deps:   deps,
		logger: deps.Logger,
	}
}

// Handler builds the routed handler. Start serves it; tests use it directly.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.deps.Metrics, name)(h))
	}

	route("POST /api/v1/transfers", "/api/v1/transfers", handleTransfer(s.deps))
	route("POST /api/v1/swaps", "/api/v1/swaps", handleSwap(s.deps))
	route("GET /api/v1/operations/{id}", "/api/v1/operations/{id}", handleGetOperation(s.deps.Store, s.logger))
	route("GET /api/v1/operations", "/api/v1/operations", handleListOperations(s.deps.Store, s.logger))
	route("GET /api/v1/wallets/{address}/tokens", "/api/v1/wallets/{address}/tokens", handleWalletTokens(s.deps.Wallets, s.logger))
	route("GET /api/v1/wallets/{address}/transactions", "/api/v1/wallets/{address}/transactions", handleWalletTransactions(s.deps.Wallets, s.logger))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // swaps wait through several confirmation rounds
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
