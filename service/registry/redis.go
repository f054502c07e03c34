package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the Redis connection and key layout.
type RedisConfig struct {
	Address  string
	Password string
	DB       int

	// Prefix namespaces the keys. Defaults to "solwallet:referral".
	Prefix string
	// LockTTL bounds how long a crashed holder can block a mint. Defaults to 5m.
	LockTTL time.Duration
	// PollInterval is how often waiters re-check the lock. Defaults to 200ms.
	PollInterval time.Duration
}

// unlockScript deletes the lock only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis shares the registry across processes through a set of registered
// mints and a per-mint SETNX lock.
type Redis struct {
	client       *redis.Client
	setKey       string
	lockPrefix   string
	lockTTL      time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*Redis, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisFromClient(client, cfg, logger), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, cfg RedisConfig, logger *slog.Logger) *Redis {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "solwallet:referral"
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client:       client,
		setKey:       prefix + ":mints",
		lockPrefix:   prefix + ":lock:",
		lockTTL:      ttl,
		pollInterval: poll,
		logger:       logger,
	}
}

// Contains reports whether mint is in the registered set.
func (r *Redis) Contains(ctx context.Context, mint string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.setKey, mint).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

// EnsureOnce takes the mint's lock, re-checks membership, provisions and
// registers. Callers that lose the lock race wait for the holder to finish.
func (r *Redis) EnsureOnce(ctx context.Context, mint string, provision func(ctx context.Context) error) (bool, error) {
	lockKey := r.lockPrefix + mint
	token := uuid.NewString()

	for {
		known, err := r.Contains(ctx, mint)
		if err != nil {
			return false, err
		}
		if known {
			return false, nil
		}

		acquired, err := r.client.SetNX(ctx, lockKey, token, r.lockTTL).Result()
		if err != nil {
			return false, fmt.Errorf("redis setnx: %w", err)
		}
		if acquired {
			break
		}
		if err := sleepContext(ctx, r.pollInterval); err != nil {
			return false, err
		}
	}

	defer func() {
		// The caller's context may already be done; the lock must still be released.
		if err := unlockScript.Run(context.WithoutCancel(ctx), r.client, []string{lockKey}, token).Err(); err != nil {
			r.logger.WarnContext(ctx, "failed to release referral lock", "mint", mint, "error", err)
		}
	}()

	// Another holder may have finished between our membership check and SETNX.
	known, err := r.Contains(ctx, mint)
	if err != nil {
		return false, err
	}
	if known {
		return false, nil
	}

	if err := provision(ctx); err != nil {
		return false, err
	}
	if err := r.client.SAdd(ctx, r.setKey, mint).Err(); err != nil {
		return false, fmt.Errorf("redis sadd: %w", err)
	}
	return true, nil
}

// Mints returns every registered mint in no particular order.
func (r *Redis) Mints(ctx context.Context) ([]string, error) {
	mints, err := r.client.SMembers(ctx, r.setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	return mints, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
