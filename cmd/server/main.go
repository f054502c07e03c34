package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brojonat/solwallet/service/config"
	"github.com/brojonat/solwallet/service/db"
	"github.com/brojonat/solwallet/service/jupiter"
	"github.com/brojonat/solwallet/service/metrics"
	natspkg "github.com/brojonat/solwallet/service/nats"
	"github.com/brojonat/solwallet/service/registry"
	"github.com/brojonat/solwallet/service/server"
	"github.com/brojonat/solwallet/service/solana"
	"github.com/brojonat/solwallet/service/temporal"
	"github.com/brojonat/solwallet/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	store := db.NewStore(dbPool).WithMetrics(metricsCollector)
	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	rpcURL, err := solana.SelectRandomEndpoint(cfg.SolanaRPCURLs)
	if err != nil {
		logger.Error("failed to select solana RPC endpoint", "error", err)
		os.Exit(1)
	}
	endpoint := extractEndpointFromURL(rpcURL)
	ledger := solana.NewClient(solana.NewRPCClient(rpcURL), solana.ClientConfig{
		Endpoint:    endpoint,
		CallTimeout: cfg.LedgerCallTimeout,
		Commitment:  rpc.CommitmentType(cfg.Commitment),
	}, metricsCollector, logger)
	logger.Info("initialized solana RPC client",
		"endpoint", endpoint,
		"total_endpoints", len(cfg.SolanaRPCURLs),
	)

	jup := jupiter.NewClient(jupiter.Config{
		QuoteAPIURL:    cfg.QuoteAPIURL,
		ReferralAPIURL: cfg.ReferralAPIURL,
		Timeout:        cfg.QuoteTimeout,
		RateLimit:      cfg.QuoteRateLimit,
		RateBurst:      cfg.QuoteRateBurst,
	}, nil, metricsCollector, logger)

	natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create NATS publisher", "error", err)
		os.Exit(1)
	}
	defer natsPublisher.Close()
	logger.Info("connected to NATS", "url", cfg.NATSURL)

	budget := solana.FeeBudget{
		ComputeUnitPrice:    cfg.FeePolicy.ComputeUnitPrice,
		ComputeUnitLimit:    cfg.FeePolicy.ComputeUnitLimit,
		PriorityFeeLamports: cfg.FeePolicy.PriorityFeeLamports,
	}
	fees := solana.NewFeeBudgetPolicy(budget)
	submitter := wallet.NewSubmitter(ledger, wallet.SubmitConfig{
		MaxAttempts:    cfg.SubmitMaxAttempts,
		RetryDelay:     cfg.SubmitRetryDelay,
		ConfirmTimeout: cfg.ConfirmTimeout,
		PollInterval:   cfg.ConfirmPollInterval,
		Commitment:     solana.ConfirmationStatus(cfg.Commitment),
	}, metricsCollector, logger)

	deps := wallet.Deps{
		Ledger:    ledger,
		Submitter: submitter,
		Balances:  wallet.NewBalanceVerifier(ledger, cfg.FeePolicy.MinFeeBufferLamports, budget),
		Accounts:  wallet.NewAccountProvisioner(ledger, submitter, fees, metricsCollector, logger),
		Fees:      fees,
		Notifier:  natspkg.WalletNotifier{Publisher: natsPublisher},
		Metrics:   metricsCollector,
		Logger:    logger,
	}

	var referrals *wallet.ReferralProvisioner
	if cfg.ReferralAccount != "" {
		referralAccount, err := solanago.PublicKeyFromBase58(cfg.ReferralAccount)
		if err != nil {
			logger.Error("invalid REFERRAL_ACCOUNT", "error", err)
			os.Exit(1)
		}
		reg, err := registry.New(ctx, registry.Config{
			Backend:       cfg.ReferralRegistry,
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
		}, store, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create referral registry", "error", err)
			os.Exit(1)
		}
		referrals = wallet.NewReferralProvisioner(wallet.ReferralConfig{
			Account:        referralAccount,
			FeePayerKey:    cfg.FeePayerPrivateKey,
			PlatformFeeBps: cfg.PlatformFeeBps,
		}, jup, reg, ledger, submitter, metricsCollector, logger)
		logger.Info("referral fee routing enabled",
			"registry", cfg.ReferralRegistry,
			"platform_fee_bps", cfg.PlatformFeeBps,
		)
	}

	quotes := wallet.NewQuoteAggregator(jup, cfg.QuoteMaxAttempts, cfg.QuoteRetryInterval, logger)

	serverDeps := server.Deps{
		Store:           store,
		Transfers:       wallet.NewTransferOrchestrator(deps),
		Swaps:           wallet.NewSwapOrchestrator(deps, quotes, referrals),
		Wallets:         wallet.NewWalletReader(ledger, logger),
		DefaultSlippage: decimal.NewFromFloat(cfg.FeePolicy.DefaultSlippagePercent),
		Metrics:         metricsCollector,
		Logger:          logger,
	}

	// Finality tracking is optional: without Temporal the server still
	// reports confirmed operations.
	temporalClient, err := temporal.NewClient(temporal.ClientConfig{
		Host:         cfg.TemporalHost,
		Namespace:    cfg.TemporalNamespace,
		TaskQueue:    cfg.TemporalTaskQueue,
		PollInterval: cfg.FinalityPollInterval,
		MaxPolls:     cfg.FinalityMaxPolls,
	}, logger)
	if err != nil {
		logger.Warn("temporal unavailable, finality tracking disabled", "error", err)
	} else {
		defer temporalClient.Close()
		serverDeps.Finality = temporalClient
	}

	httpServer := server.New(cfg.ServerAddr, serverDeps)

	logger.Info("server initialized, all dependencies ready",
		"solana_endpoint", endpoint,
		"nats_url", cfg.NATSURL,
		"temporal_host", cfg.TemporalHost,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// extractEndpointFromURL reduces an RPC URL to a short metrics label so API
// keys in the URL never reach a label value.
//   - "https://api.mainnet-beta.solana.com" -> "mainnet"
//   - "https://mainnet.helius-rpc.com/?api-key=..." -> "helius"
func extractEndpointFromURL(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil {
		return "unknown"
	}
	host := parsed.Hostname()

	for _, provider := range []string{"helius", "quiknode", "alchemy", "triton", "rpcpool", "mainnet", "devnet", "testnet"} {
		if strings.Contains(host, provider) {
			return provider
		}
	}
	if strings.Contains(host, "quicknode") {
		return "quiknode"
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "local"
	}
	return host
}
