package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr  string
	MetricsAddr string
	LogLevel    string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Solana configuration
	SolanaRPCURLs     []string
	LedgerCallTimeout time.Duration
	Commitment        string

	// Quote/swap service configuration
	QuoteAPIURL        string
	ReferralAPIURL     string
	QuoteTimeout       time.Duration
	QuoteRateLimit     float64
	QuoteRateBurst     int
	QuoteMaxAttempts   int
	QuoteRetryInterval time.Duration

	// Referral fee routing. Empty ReferralAccount disables it.
	ReferralAccount    string
	FeePayerPrivateKey string
	PlatformFeeBps     int

	// Fee budget and swap defaults (may be overlaid by FEE_POLICY_FILE)
	FeePolicy FeePolicy

	// Submission configuration
	SubmitMaxAttempts   int
	SubmitRetryDelay    time.Duration
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration

	// Referral registry backend
	ReferralRegistry string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Finality tracking
	FinalityPollInterval time.Duration
	FinalityMaxPolls     int
}

// FeePolicy is the configuration-driven fee budget plus swap defaults.
type FeePolicy struct {
	ComputeUnitPrice       uint64 // micro-lamports per compute unit
	ComputeUnitLimit       uint32
	PriorityFeeLamports    uint64
	MinFeeBufferLamports   uint64
	DefaultSlippagePercent float64
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Solana configuration
	cfg.SolanaRPCURLs = parseList(os.Getenv("SOLANA_RPC_URLS"))
	if len(cfg.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URLS is required"))
	}
	if d, err := parseDuration("LEDGER_CALL_TIMEOUT", "30s"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.LedgerCallTimeout = d
	}
	cfg.Commitment = getEnvOrDefault("COMMITMENT", "confirmed")
	switch cfg.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		errs = append(errs, fmt.Errorf("COMMITMENT must be one of processed, confirmed, finalized (got %q)", cfg.Commitment))
	}

	// Quote/swap service
	cfg.QuoteAPIURL = strings.TrimRight(getEnvOrDefault("QUOTE_API_URL", "https://quote-api.jup.ag/v6"), "/")
	cfg.ReferralAPIURL = strings.TrimRight(getEnvOrDefault("REFERRAL_API_URL", "https://referral.jup.ag/api"), "/")
	if d, err := parseDuration("QUOTE_TIMEOUT", "10s"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.QuoteTimeout = d
	}
	if f, err := parseFloat("QUOTE_RATE_LIMIT", 5); err != nil {
		errs = append(errs, err)
	} else {
		cfg.QuoteRateLimit = f
	}
	if n, err := parseInt("QUOTE_RATE_BURST", 5); err != nil {
		errs = append(errs, err)
	} else {
		cfg.QuoteRateBurst = n
	}
	if n, err := parseInt("QUOTE_MAX_ATTEMPTS", 3); err != nil {
		errs = append(errs, err)
	} else {
		cfg.QuoteMaxAttempts = n
	}
	if d, err := parseDuration("QUOTE_RETRY_INTERVAL", "500ms"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.QuoteRetryInterval = d
	}

	// Referral routing
	cfg.ReferralAccount = os.Getenv("REFERRAL_ACCOUNT")
	cfg.FeePayerPrivateKey = os.Getenv("FEE_PAYER_PRIVATE_KEY")
	if cfg.ReferralAccount != "" && cfg.FeePayerPrivateKey == "" {
		errs = append(errs, fmt.Errorf("FEE_PAYER_PRIVATE_KEY is required when REFERRAL_ACCOUNT is set"))
	}
	if n, err := parseInt("PLATFORM_FEE_BPS", 20); err != nil {
		errs = append(errs, err)
	} else {
		cfg.PlatformFeeBps = n
	}

	// Fee policy: environment first, then optional YAML overlay
	policy, policyErrs := loadFeePolicyFromEnv()
	errs = append(errs, policyErrs...)
	if path := os.Getenv("FEE_POLICY_FILE"); path != "" {
		if err := overlayFeePolicyFile(path, &policy); err != nil {
			errs = append(errs, err)
		}
	}
	cfg.FeePolicy = policy

	// Submission
	if n, err := parseInt("SUBMIT_MAX_ATTEMPTS", 3); err != nil {
		errs = append(errs, err)
	} else {
		cfg.SubmitMaxAttempts = n
	}
	if d, err := parseDuration("SUBMIT_RETRY_DELAY", "2s"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.SubmitRetryDelay = d
	}
	if d, err := parseDuration("CONFIRM_TIMEOUT", "60s"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmTimeout = d
	}
	if d, err := parseDuration("CONFIRM_POLL_INTERVAL", "2s"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmPollInterval = d
	}

	// Referral registry
	cfg.ReferralRegistry = getEnvOrDefault("REFERRAL_REGISTRY", "memory")
	cfg.RedisAddr = getEnvOrDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if n, err := parseInt("REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	} else {
		cfg.RedisDB = n
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "solwallet-finality")

	if d, err := parseDuration("FINALITY_POLL_INTERVAL", "5s"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.FinalityPollInterval = d
	}
	if n, err := parseInt("FINALITY_MAX_POLLS", 60); err != nil {
		errs = append(errs, err)
	} else {
		cfg.FinalityMaxPolls = n
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if len(c.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SolanaRPCURLs is required"))
	}

	if c.QuoteMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("QuoteMaxAttempts must be at least 1"))
	}

	if c.QuoteRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("QuoteRateLimit must be positive"))
	}

	if c.SubmitMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("SubmitMaxAttempts must be at least 1"))
	}

	if c.ConfirmPollInterval <= 0 || c.ConfirmTimeout < c.ConfirmPollInterval {
		errs = append(errs, fmt.Errorf("ConfirmTimeout must be at least ConfirmPollInterval"))
	}

	if c.PlatformFeeBps < 0 || c.PlatformFeeBps > 10000 {
		errs = append(errs, fmt.Errorf("PlatformFeeBps must be between 0 and 10000"))
	}

	switch c.ReferralRegistry {
	case "memory", "redis", "postgres":
	default:
		errs = append(errs, fmt.Errorf("ReferralRegistry must be one of memory, redis, postgres (got %q)", c.ReferralRegistry))
	}

	if err := c.FeePolicy.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.FinalityMaxPolls < 1 {
		errs = append(errs, fmt.Errorf("FinalityMaxPolls must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// Validate checks the fee policy bounds.
func (p FeePolicy) Validate() error {
	if p.ComputeUnitLimit == 0 {
		return fmt.Errorf("compute unit limit must be positive")
	}
	if p.ComputeUnitLimit > 1_400_000 {
		return fmt.Errorf("compute unit limit %d exceeds the 1400000 per-transaction maximum", p.ComputeUnitLimit)
	}
	if p.DefaultSlippagePercent <= 0 || p.DefaultSlippagePercent > 100 {
		return fmt.Errorf("default slippage must be in (0, 100], got %v", p.DefaultSlippagePercent)
	}
	return nil
}

func loadFeePolicyFromEnv() (FeePolicy, []error) {
	var p FeePolicy
	var errs []error

	if v, err := parseUint("COMPUTE_UNIT_PRICE", 400_000); err != nil {
		errs = append(errs, err)
	} else {
		p.ComputeUnitPrice = v
	}
	if v, err := parseUint("COMPUTE_UNIT_LIMIT", 200_000); err != nil {
		errs = append(errs, err)
	} else if v > uint64(^uint32(0)) {
		errs = append(errs, fmt.Errorf("COMPUTE_UNIT_LIMIT: value %d overflows uint32", v))
	} else {
		p.ComputeUnitLimit = uint32(v)
	}
	if v, err := parseUint("PRIORITY_FEE_LAMPORTS", 500_000); err != nil {
		errs = append(errs, err)
	} else {
		p.PriorityFeeLamports = v
	}
	if v, err := parseUint("MIN_FEE_BUFFER_LAMPORTS", 5_000); err != nil {
		errs = append(errs, err)
	} else {
		p.MinFeeBufferLamports = v
	}
	if v, err := parseFloat("DEFAULT_SLIPPAGE_PERCENT", 1); err != nil {
		errs = append(errs, err)
	} else {
		p.DefaultSlippagePercent = v
	}

	return p, errs
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid unsigned integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

// parseList splits a comma separated list, dropping blanks.
func parseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
