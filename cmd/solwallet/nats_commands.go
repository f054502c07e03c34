package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/solwallet/service/nats"
	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// eventSubject builds the filter subject for subscribe.
func eventSubject(kind, status string) string {
	if kind == "" && status == "" {
		return natspkg.SubjectPrefix + ".>"
	}
	if kind == "" {
		kind = "*"
	}
	if status == "" {
		status = "*"
	}
	return fmt.Sprintf("%s.%s.%s", natspkg.SubjectPrefix, kind, status)
}

func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Stream operation events as they are published",
		Description: `Follow the operation event stream until interrupted.

Examples:
  # Every failed swap
  solwallet nats subscribe --kind swap --status failed

  # Finality updates for large transfers
  solwallet nats subscribe --must-jq '.stage == "finality"' --must-jq '.base_amount > 1000000000'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "kind",
				Usage: "Only events of this kind (transfer, swap)",
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Only events with this status (confirmed, failed)",
			},
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq predicate every shown event must satisfy (can be repeated)",
			},
			&cli.StringFlag{
				Name:  "durable",
				Usage: "Durable consumer name; resumes where it left off",
			},
			&cli.BoolFlag{
				Name:  "new-only",
				Usage: "Skip events published before the subscription",
			},
		},
		Action: func(c *cli.Context) error {
			predicates, err := compileFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			deliver := jetstream.DeliverAllPolicy
			if c.Bool("new-only") {
				deliver = jetstream.DeliverNewPolicy
			}
			subject := eventSubject(c.String("kind"), c.String("status"))
			consumer, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
				Durable:       c.String("durable"),
				FilterSubject: subject,
				DeliverPolicy: deliver,
				AckPolicy:     jetstream.AckExplicitPolicy,
			})
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Subscribed to %s on stream %s (Ctrl+C to stop)\n", subject, natspkg.StreamName)

			events := make(chan *natspkg.OperationEvent, 16)
			consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
				var ev natspkg.OperationEvent
				if err := json.Unmarshal(msg.Data(), &ev); err != nil {
					fmt.Fprintf(os.Stderr, "skipping malformed event on %s: %v\n", msg.Subject(), err)
					msg.Ack()
					return
				}
				msg.Ack()
				select {
				case events <- &ev:
				case <-ctx.Done():
				}
			})
			if err != nil {
				return fmt.Errorf("failed to start consuming: %w", err)
			}
			defer consumeCtx.Stop()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			for {
				select {
				case ev := <-events:
					if err := showEvent(c, predicates, ev); err != nil {
						return err
					}
				case <-sigChan:
					return nil
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
}

func showEvent(c *cli.Context, predicates []*gojq.Code, ev *natspkg.OperationEvent) error {
	if len(predicates) > 0 && !matchesAll(predicates, ev) {
		return nil
	}
	return emit(c, ev, func(w io.Writer) {
		fmt.Fprintf(w, "[%s] %s %s %s", ev.OccurredAt.Format(time.RFC3339), ev.Stage, ev.Kind, ev.Status)
		if ev.Signature != "" {
			fmt.Fprintf(w, " sig=%s", ev.Signature)
		}
		if ev.Amount != "" {
			fmt.Fprintf(w, " amount=%s", ev.Amount)
		}
		if ev.ErrorKind != "" {
			fmt.Fprintf(w, " error=%s: %s", ev.ErrorKind, ev.ErrorMessage)
		}
		fmt.Fprintln(w)
	})
}

func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Show the operation event stream's state",
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
			defer cancel()

			stream, err := js.Stream(ctx, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream %s: %w", natspkg.StreamName, err)
			}
			info, err := stream.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			return emit(c, info, func(w io.Writer) {
				fmt.Fprintf(w, "Stream:     %s\n", info.Config.Name)
				fmt.Fprintf(w, "Subjects:   %v\n", info.Config.Subjects)
				fmt.Fprintf(w, "Max Age:    %s\n", info.Config.MaxAge)
				fmt.Fprintf(w, "Messages:   %d\n", info.State.Msgs)
				fmt.Fprintf(w, "Bytes:      %d\n", info.State.Bytes)
				fmt.Fprintf(w, "First Seq:  %d\n", info.State.FirstSeq)
				fmt.Fprintf(w, "Last Seq:   %d\n", info.State.LastSeq)
				fmt.Fprintf(w, "Consumers:  %d\n", info.State.Consumers)
			})
		},
	}
}
