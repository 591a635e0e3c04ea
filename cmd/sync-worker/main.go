// Package main is the plan sync worker Lambda. It consumes the plan sync
// queue, where retries and deferred payment confirmations wait, and runs each
// request through the same sync service as the API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"agentconsole/internal/app"
	"agentconsole/internal/config"
	"agentconsole/internal/plansync"
	"agentconsole/internal/queue"
	"agentconsole/internal/types"
)

// Syncer runs one plan sync.
type Syncer interface {
	Sync(ctx context.Context, userID string, t plansync.Trigger) plansync.SyncResult
}

// errNotQueued marks a failed sync the service did not re-enqueue; SQS
// redelivers the message after its visibility timeout.
var errNotQueued = errors.New("sync failed and no retry was queued")

// Handler processes SQS batches of sync requests.
type Handler struct {
	syncer Syncer
	logger *slog.Logger
}

// Handle reports failed messages individually so SQS retries only those.
func (h *Handler) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, record := range ev.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "failed to process sync request",
				"message_id", record.MessageId,
				"error", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}
	return resp, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	msg, err := queue.DecodeSyncRequest(record.Body)
	if err != nil {
		// A malformed body never parses on redelivery; acknowledge it.
		h.logger.ErrorContext(ctx, "dropping malformed sync request",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}
	if attr, ok := record.MessageAttributes["trace_id"]; ok && attr.StringValue != nil {
		ctx = types.WithRequestID(ctx, *attr.StringValue)
	}

	kind := msg.Trigger
	if kind == "" {
		kind = types.TriggerRetry
	}
	res := h.syncer.Sync(ctx, msg.UserID, plansync.Trigger{
		Kind:       kind,
		Hint:       msg.Hint,
		RetryCount: msg.RetryCount,
	})

	h.logger.InfoContext(ctx, "sync request processed",
		"message_id", record.MessageId,
		"user_id", msg.UserID,
		"trigger", kind,
		"retry_count", msg.RetryCount,
		"outcome", res.Outcome,
	)
	if res.Outcome == types.SyncFailed && !res.SyncPending {
		return errNotQueued
	}
	if res.Outcome == types.SyncSkipped && msg.Hint != nil && !res.Deferred {
		return errNotQueued
	}
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("sync worker initializing (cold start)")

	cfg, err := config.LoadConfig(config.ProviderFromEnv())
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	clients, err := app.NewAWSClients(ctx, cfg.AWS)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}
	components, err := app.Build(ctx, cfg, clients, logger)
	if err != nil {
		logger.Error("failed to build components", "error", err)
		os.Exit(1)
	}

	handler := &Handler{syncer: components.Sync, logger: logger}
	logger.Info("sync worker initialized", "queue", cfg.AWS.SyncQueue)

	lambda.StartWithOptions(handler.Handle, lambda.WithEnableSIGTERM(func() {
		if err := components.Close(context.Background()); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}))
}
