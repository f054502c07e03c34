package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/brojonat/solwallet/client"
	"github.com/urfave/cli/v2"
)

func walletTokensCommand() *cli.Command {
	return &cli.Command{
		Name:      "tokens",
		Usage:     "List the tokens a wallet holds",
		ArgsUsage: "ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("wallet address is required")
			}
			address := c.Args().Get(0)
			tokens, err := newClient(c, 30*time.Second).WalletTokens(context.Background(), address)
			if err != nil {
				return fmt.Errorf("failed to list tokens: %w", err)
			}
			return emit(c, tokens, func(w io.Writer) {
				if len(tokens) == 0 {
					fmt.Fprintf(w, "%s holds no tokens\n", address)
					return
				}
				for _, t := range tokens {
					fmt.Fprintf(w, "%-44s  %20s  %s\n", t.Mint, t.UIAmount, t.Account)
				}
			})
		},
	}
}

func walletTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "transactions",
		Usage:     "Show a wallet's recent transactions, newest first",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Value: 20,
				Usage: "Maximum number of transactions (at most 100)",
			},
			&cli.StringFlag{
				Name:  "before",
				Usage: "Continue after this transaction signature",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("wallet address is required")
			}
			// Every entry is a separate ledger lookup on the server.
			txs, err := newClient(c, 2*time.Minute).WalletTransactions(context.Background(), c.Args().Get(0), client.HistoryOptions{
				Limit:  c.Int("limit"),
				Before: c.String("before"),
			})
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}
			return emit(c, txs, func(w io.Writer) {
				if len(txs) == 0 {
					fmt.Fprintln(w, "No transactions found")
					return
				}
				for _, tx := range txs {
					printTransaction(w, tx)
				}
			})
		},
	}
}

func printTransaction(w io.Writer, tx client.Transaction) {
	when := "-"
	if tx.BlockTime != nil {
		when = tx.BlockTime.Format(time.RFC3339)
	}
	outcome := "ok"
	if !tx.Success {
		outcome = "failed: " + tx.Error
	}
	fmt.Fprintf(w, "%s  slot %d  %s  %s\n", when, tx.Slot, tx.Signature, outcome)
	for _, ix := range tx.Instructions {
		switch {
		case ix.Memo != "":
			fmt.Fprintf(w, "    %s %q\n", ix.Kind, ix.Memo)
		case ix.Destination != "":
			fmt.Fprintf(w, "    %s %d -> %s\n", ix.Kind, ix.Value, ix.Destination)
		default:
			fmt.Fprintf(w, "    %s\n", ix.Kind)
		}
	}
}
