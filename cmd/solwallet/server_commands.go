package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check the server's health endpoint",
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
			defer cancel()

			serverURL := c.String("server-url")
			if err := newClient(c, 10*time.Second).Health(ctx); err != nil {
				return fmt.Errorf("server at %s is unhealthy: %w", serverURL, err)
			}
			fmt.Fprintf(c.App.Writer, "Server at %s is healthy\n", serverURL)
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			info := map[string]string{
				"version": version,
				"commit":  commit,
				"date":    date,
				"go":      runtime.Version(),
			}
			return emit(c, info, func(w io.Writer) {
				fmt.Fprintf(w, "solwallet %s\n", version)
				fmt.Fprintf(w, "  commit: %s\n", commit)
				fmt.Fprintf(w, "  built:  %s\n", date)
				fmt.Fprintf(w, "  go:     %s\n", runtime.Version())
			})
		},
	}
}
