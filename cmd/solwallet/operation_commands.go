package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/brojonat/solwallet/client"
	"github.com/mr-tron/base58"
	"github.com/urfave/cli/v2"
)

func keyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "private-key",
			Usage:   "Base58 private key of the source wallet",
			EnvVars: []string{"SOLWALLET_PRIVATE_KEY"},
		},
		&cli.PathFlag{
			Name:    "key-file",
			Aliases: []string{"k"},
			Usage:   "Keypair file: a base58 string or a JSON byte array as written by solana-keygen",
		},
	}
}

// readPrivateKey returns the base58 private key from --private-key or --key-file.
func readPrivateKey(c *cli.Context) (string, error) {
	if key := c.String("private-key"); key != "" {
		return key, nil
	}
	path := c.Path("key-file")
	if path == "" {
		return "", fmt.Errorf("a private key is required (--private-key, SOLWALLET_PRIVATE_KEY or --key-file)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read key file: %w", err)
	}
	return parseKeyFile(data)
}

// parseKeyFile accepts a base58 key or a JSON array of key bytes.
func parseKeyFile(data []byte) (string, error) {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "[") {
		return trimmed, nil
	}
	var ints []int
	if err := json.Unmarshal([]byte(trimmed), &ints); err != nil {
		return "", fmt.Errorf("invalid key file: %w", err)
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return "", fmt.Errorf("invalid key file: byte %d out of range", i)
		}
		raw[i] = byte(v)
	}
	encoded := base58.Encode(raw)
	for i := range raw {
		raw[i] = 0
	}
	return encoded, nil
}

func newClient(c *cli.Context, timeout time.Duration) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(strings.TrimRight(c.String("server-url"), "/"), &http.Client{Timeout: timeout}, logger)
}

func transferCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Usage:     "Transfer SOL or a token to another wallet",
		ArgsUsage: "DESTINATION AMOUNT",
		Description: `Submit a transfer through the server and wait for confirmation.

AMOUNT is in whole units (e.g. 1.5 SOL, or 1.5 USDC with --mint).

Example:
  solwallet transfer --key-file ~/.config/solana/id.json 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM 0.25`,
		Flags: append(keyFlags(),
			&cli.StringFlag{
				Name:  "mint",
				Usage: "Token mint; omit for SOL",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long to wait for the server",
			},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("destination and amount are required")
			}
			key, err := readPrivateKey(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			op, err := newClient(c, c.Duration("timeout")).Transfer(ctx, client.TransferRequest{
				PrivateKey:  key,
				Destination: c.Args().Get(0),
				Mint:        c.String("mint"),
				Amount:      c.Args().Get(1),
			})
			if err != nil {
				return fmt.Errorf("transfer failed: %w", err)
			}
			return emit(c, op, func(w io.Writer) { printOperation(w, op) })
		},
	}
}

func swapCommand() *cli.Command {
	return &cli.Command{
		Name:      "swap",
		Usage:     "Swap one token for another",
		ArgsUsage: "INPUT_MINT OUTPUT_MINT AMOUNT",
		Description: `Submit a swap through the server and wait for confirmation.

Use So11111111111111111111111111111111111111112 for SOL on either side.

Example:
  solwallet swap -k id.json EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v So11111111111111111111111111111111111111112 10 --slippage 0.5`,
		Flags: append(keyFlags(),
			&cli.StringFlag{
				Name:  "slippage",
				Usage: "Slippage tolerance in percent (server default when empty)",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long to wait for the server",
			},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() != 3 {
				return fmt.Errorf("input mint, output mint and amount are required")
			}
			key, err := readPrivateKey(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			op, err := newClient(c, c.Duration("timeout")).Swap(ctx, client.SwapRequest{
				PrivateKey: key,
				InputMint:  c.Args().Get(0),
				OutputMint: c.Args().Get(1),
				Amount:     c.Args().Get(2),
				Slippage:   c.String("slippage"),
			})
			if err != nil {
				return fmt.Errorf("swap failed: %w", err)
			}
			return emit(c, op, func(w io.Writer) { printOperation(w, op) })
		},
	}
}

func getOperationCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show one operation",
		ArgsUsage: "OPERATION_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("operation id is required")
			}
			op, err := newClient(c, 30*time.Second).GetOperation(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get operation: %w", err)
			}
			return emit(c, op, func(w io.Writer) { printOperation(w, op) })
		},
	}
}

func listOperationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List operations, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "address",
				Usage: "Only operations with this source or destination",
			},
			&cli.IntFlag{
				Name:  "limit",
				Value: 20,
				Usage: "Maximum number of operations",
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of operations to skip",
			},
		},
		Action: func(c *cli.Context) error {
			ops, err := newClient(c, 30*time.Second).ListOperations(context.Background(), client.ListOptions{
				Address: c.String("address"),
				Limit:   c.Int("limit"),
				Offset:  c.Int("offset"),
			})
			if err != nil {
				return fmt.Errorf("failed to list operations: %w", err)
			}
			return emit(c, ops, func(w io.Writer) {
				if len(ops) == 0 {
					fmt.Fprintln(w, "No operations found")
					return
				}
				fmt.Fprintf(w, "%-36s  %-8s  %-9s  %-12s  %s\n", "ID", "KIND", "STATUS", "AMOUNT", "SIGNATURE")
				for _, op := range ops {
					fmt.Fprintf(w, "%-36s  %-8s  %-9s  %-12s  %s\n", op.ID, op.Kind, op.Status, op.Amount, op.Signature)
				}
			})
		},
	}
}

func awaitFinalityCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until an operation's finality is recorded",
		ArgsUsage: "OPERATION_ID",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   10 * time.Minute,
				Usage:   "How long to wait",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: 5 * time.Second,
				Usage: "Polling interval",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("operation id is required")
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			op, err := newClient(c, 30*time.Second).AwaitFinality(ctx, c.Args().Get(0), c.Duration("interval"))
			if err != nil {
				return fmt.Errorf("failed to await finality: %w", err)
			}
			return emit(c, op, func(w io.Writer) { printOperation(w, op) })
		},
	}
}

func printOperation(w io.Writer, op *client.Operation) {
	fmt.Fprintln(w, "─────────────────────────────────────────────────────")
	fmt.Fprintf(w, "Operation:    %s\n", op.ID)
	fmt.Fprintf(w, "Kind:         %s\n", op.Kind)
	fmt.Fprintf(w, "Status:       %s\n", op.Status)
	if op.Signature != "" {
		fmt.Fprintf(w, "Signature:    %s\n", op.Signature)
	}
	if op.Source != "" {
		fmt.Fprintf(w, "Source:       %s\n", op.Source)
	}
	if op.Destination != "" {
		fmt.Fprintf(w, "Destination:  %s\n", op.Destination)
	}
	if op.InputMint != "" {
		fmt.Fprintf(w, "Input Mint:   %s\n", op.InputMint)
	}
	if op.OutputMint != "" {
		fmt.Fprintf(w, "Output Mint:  %s\n", op.OutputMint)
	}
	fmt.Fprintf(w, "Amount:       %s (%d base units)\n", op.Amount, op.BaseAmount)
	if op.OutAmount > 0 {
		fmt.Fprintf(w, "Out Amount:   %d base units\n", op.OutAmount)
	}
	if op.Attempts > 0 {
		fmt.Fprintf(w, "Attempts:     %d\n", op.Attempts)
	}
	if op.Slot > 0 {
		fmt.Fprintf(w, "Slot:         %d\n", op.Slot)
	}
	if op.ErrorKind != "" {
		fmt.Fprintf(w, "Error:        %s: %s\n", op.ErrorKind, op.ErrorMessage)
	}
	if op.Finality != "" {
		fmt.Fprintf(w, "Finality:     %s\n", op.Finality)
	}
	if op.FinalizedAt != nil {
		fmt.Fprintf(w, "Finalized At: %s\n", op.FinalizedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Created:      %s\n", op.CreatedAt.Format(time.RFC3339))
	fmt.Fprintln(w, "─────────────────────────────────────────────────────")
}
