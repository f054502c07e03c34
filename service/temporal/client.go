package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"
)

// Client is a production implementation of FinalityTracker that talks to Temporal.
type Client struct {
	client       client.Client
	taskQueue    string
	pollInterval time.Duration
	maxPolls     int
	logger       *slog.Logger
}

// ClientConfig contains the Temporal connection and tracking defaults.
type ClientConfig struct {
	Host         string
	Namespace    string
	TaskQueue    string
	PollInterval time.Duration
	MaxPolls     int
}

// NewClient creates a new Temporal client.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", cfg.Host,
		"namespace", cfg.Namespace,
		"task_queue", cfg.TaskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Host,
		Namespace: cfg.Namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:       c,
		taskQueue:    cfg.TaskQueue,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		logger:       logger,
	}, nil
}

// StartFinalityTracking starts TrackFinalityWorkflow for a confirmed
// signature. Starting it twice for the same signature attaches to the
// running execution.
func (c *Client) StartFinalityTracking(ctx context.Context, operationID, kind, signature string) error {
	id := finalityWorkflowID(signature)

	input := TrackFinalityInput{
		OperationID:  operationID,
		Kind:         kind,
		Signature:    signature,
		PollInterval: c.pollInterval,
		MaxPolls:     c.maxPolls,
		StartedAt:    time.Now().UTC(),
	}

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
		Memo: map[string]interface{}{
			"operation_id": operationID,
			"kind":         kind,
			"created_by":   "solwallet",
		},
	}, TrackFinalityWorkflow, input)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to start finality tracking",
			"signature", signature,
			"workflow_id", id,
			"error", err,
		)
		return fmt.Errorf("failed to start workflow %q: %w", id, err)
	}

	c.logger.InfoContext(ctx, "finality tracking started",
		"signature", signature,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)
	return nil
}

// FinalityResult waits for the tracking workflow of signature and returns its result.
func (c *Client) FinalityResult(ctx context.Context, signature string) (*TrackFinalityResult, error) {
	var result TrackFinalityResult
	if err := c.client.GetWorkflow(ctx, finalityWorkflowID(signature), "").Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to get finality result: %w", err)
	}
	return &result, nil
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
