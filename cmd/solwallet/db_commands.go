package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/brojonat/solwallet/service/db"
	"github.com/brojonat/solwallet/service/registry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

// getStore opens a store from --database-url. The caller closes the pool.
func getStore(c *cli.Context) (*db.Store, *pgxpool.Pool, error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database URL is required (set --database-url or DATABASE_URL)")
	}

	pool, err := pgxpool.New(c.Context, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(c.Context); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db.NewStore(pool), pool, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema",
		Action: func(c *cli.Context) error {
			store, pool, err := getStore(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := store.Migrate(c.Context); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "Schema is up to date")
			return nil
		},
	}
}

func dbOperationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "operations",
		Usage: "List operations straight from the database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "address",
				Usage: "Only operations with this source or destination",
			},
			&cli.StringFlag{
				Name:  "signature",
				Usage: "Look up the single operation with this transaction signature",
			},
			&cli.IntFlag{
				Name:  "limit",
				Value: 50,
				Usage: "Maximum number of operations",
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of operations to skip",
			},
		},
		Action: func(c *cli.Context) error {
			store, pool, err := getStore(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			if sig := c.String("signature"); sig != "" {
				op, err := store.GetOperationBySignature(c.Context, sig)
				if db.IsNotFound(err) {
					return fmt.Errorf("no operation with signature %s", sig)
				}
				if err != nil {
					return fmt.Errorf("failed to get operation: %w", err)
				}
				return emit(c, op, func(w io.Writer) { printStoredOperation(w, op) })
			}

			ops, err := store.ListOperations(c.Context, db.ListOperationsParams{
				Address: c.String("address"),
				Limit:   int32(c.Int("limit")),
				Offset:  int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list operations: %w", err)
			}

			return emit(c, ops, func(w io.Writer) {
				fmt.Fprintf(w, "Found %d operations\n\n", len(ops))
				for _, op := range ops {
					printStoredOperation(w, op)
				}
			})
		},
	}
}

func referralMintsCommand() *cli.Command {
	return &cli.Command{
		Name:  "referral-mints",
		Usage: "List mints with a provisioned referral fee account",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "registry",
				Value: "postgres",
				Usage: "Registry backend to read: postgres or redis",
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Value:   "localhost:6379",
				Usage:   "Redis address for the redis registry",
				EnvVars: []string{"REDIS_ADDR"},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{"REDIS_PASSWORD"},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{"REDIS_DB"},
			},
			&cli.StringFlag{
				Name:  "redis-prefix",
				Usage: "Key prefix of the redis registry (default solwallet:referral)",
			},
		},
		Action: func(c *cli.Context) error {
			switch backend := c.String("registry"); backend {
			case "postgres":
				return listPostgresReferralMints(c)
			case "redis":
				return listRedisReferralMints(c)
			default:
				return fmt.Errorf("unknown registry %q: must be postgres or redis", backend)
			}
		},
	}
}

func listPostgresReferralMints(c *cli.Context) error {
	store, pool, err := getStore(c)
	if err != nil {
		return err
	}
	defer pool.Close()

	mints, err := store.ListReferralMints(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list referral mints: %w", err)
	}

	return emit(c, mints, func(w io.Writer) {
		if len(mints) == 0 {
			fmt.Fprintln(w, "No referral mints recorded")
			return
		}
		for _, m := range mints {
			fmt.Fprintf(w, "%s  %s\n", m.CreatedAt.Format(time.RFC3339), m.Mint)
		}
	})
}

func listRedisReferralMints(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	r, err := registry.NewRedis(ctx, registry.RedisConfig{
		Address:  c.String("redis-addr"),
		Password: c.String("redis-password"),
		DB:       c.Int("redis-db"),
		Prefix:   c.String("redis-prefix"),
	}, nil)
	if err != nil {
		return err
	}
	defer r.Close()

	mints, err := r.Mints(ctx)
	if err != nil {
		return fmt.Errorf("failed to list referral mints: %w", err)
	}
	sort.Strings(mints)

	return emit(c, mints, func(w io.Writer) {
		if len(mints) == 0 {
			fmt.Fprintln(w, "No referral mints recorded")
			return
		}
		for _, m := range mints {
			fmt.Fprintln(w, m)
		}
	})
}

func pruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete operations older than a cutoff",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:     "older-than",
				Usage:    "Age cutoff, e.g. 720h",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			age := c.Duration("older-than")
			if age <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			store, pool, err := getStore(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx, cancel := context.WithTimeout(c.Context, time.Minute)
			defer cancel()

			cutoff := time.Now().Add(-age)
			n, err := store.DeleteOperationsOlderThan(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("failed to prune operations: %w", err)
			}

			result := map[string]interface{}{"deleted": n, "cutoff": cutoff.UTC()}
			return emit(c, result, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %d operations created before %s\n", n, cutoff.UTC().Format(time.RFC3339))
			})
		},
	}
}

func printStoredOperation(w io.Writer, op *db.Operation) {
	fmt.Fprintf(w, "%s  %s  %-8s  %-9s  %-9s  %-12s  %s\n",
		op.CreatedAt.Format(time.RFC3339), op.ID, op.Kind, op.Status,
		orDash(op.Finality), op.Amount, orDash(op.Signature))
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
