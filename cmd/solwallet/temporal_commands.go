package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/brojonat/solwallet/service/temporal"
	"github.com/urfave/cli/v2"
)

func finalityCommand() *cli.Command {
	return &cli.Command{
		Name:      "finality",
		Usage:     "Wait for the finality workflow of a signature and print its result",
		ArgsUsage: "SIGNATURE",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   10 * time.Minute,
				Usage:   "How long to wait for the workflow",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("signature is required")
			}
			signature := c.Args().Get(0)

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			tc, err := temporal.NewClient(temporal.ClientConfig{
				Host:      c.String("temporal-host"),
				Namespace: c.String("temporal-namespace"),
				TaskQueue: c.String("temporal-task-queue"),
			}, logger)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			result, err := tc.FinalityResult(ctx, signature)
			if err != nil {
				return err
			}

			return emit(c, result, func(w io.Writer) {
				fmt.Fprintf(w, "Signature:  %s\n", result.Signature)
				fmt.Fprintf(w, "Finality:   %s\n", result.Finality)
				fmt.Fprintf(w, "Polls:      %d\n", result.Polls)
				if result.Slot > 0 {
					fmt.Fprintf(w, "Slot:       %d\n", result.Slot)
				}
				if result.Error != "" {
					fmt.Fprintf(w, "Error:      %s\n", result.Error)
				}
			})
		},
	}
}
