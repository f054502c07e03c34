package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "solwallet",
		Usage: "Solana wallet transfer and swap service CLI",
		Description: `A command-line tool for submitting transfers and swaps through the solwallet
server and for inspecting the operation log, event stream and finality tracking.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			transferCommand(),
			swapCommand(),
			{
				Name:  "operations",
				Usage: "Inspect operations through the HTTP API",
				Subcommands: []*cli.Command{
					getOperationCommand(),
					listOperationsCommand(),
					awaitFinalityCommand(),
				},
			},
			{
				Name:  "wallet",
				Usage: "Inspect a wallet's holdings and history through the HTTP API",
				Subcommands: []*cli.Command{
					walletTokensCommand(),
					walletTransactionsCommand(),
				},
			},
			{
				Name:  "db",
				Usage: "Database inspection and maintenance commands",
				Subcommands: []*cli.Command{
					migrateCommand(),
					dbOperationsCommand(),
					referralMintsCommand(),
					pruneCommand(),
				},
			},
			{
				Name:  "nats",
				Usage: "Operation event streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			{
				Name:  "temporal",
				Usage: "Finality tracking commands",
				Subcommands: []*cli.Command{
					finalityCommand(),
				},
			},
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "solwallet server URL",
				EnvVars: []string{"SOLWALLET_SERVER_URL", "SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "temporal-task-queue",
				Usage:   "Temporal task queue for finality tracking",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "solwallet-finality",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter applied to JSON output (can be repeated, applied in order)",
			},
		},
	}
}
