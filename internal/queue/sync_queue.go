// Package queue publishes plan sync requests to SQS for the sync worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"agentconsole/internal/types"
)

// MaxDelay is the longest delivery delay SQS accepts.
const MaxDelay = 15 * time.Minute

// SQSSender is the subset of *sqs.Client used by producers.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SyncQueue enqueues SyncRequestMessages on the plan sync queue.
type SyncQueue struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

func NewSyncQueue(client SQSSender, queueURL string, logger *slog.Logger) *SyncQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncQueue{client: client, queueURL: queueURL, logger: logger}
}

// Enqueue sends msg with the given delivery delay, clamped to [0, MaxDelay].
func (q *SyncQueue) Enqueue(ctx context.Context, msg types.SyncRequestMessage, delay time.Duration) error {
	if msg.UserID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "sync request without user_id", nil)
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}
	delay = min(max(delay, 0), MaxDelay)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: marshal sync request: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(delay / time.Second),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"trigger": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Trigger)),
			},
			"trace_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(traceID(ctx)),
			},
		},
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue, "enqueue plan sync request", err)
	}

	q.logger.InfoContext(ctx, "plan sync request enqueued",
		"user_id", msg.UserID,
		"trigger", msg.Trigger,
		"retry_count", msg.RetryCount,
		"has_hint", msg.Hint != nil,
		"delay", delay,
	)
	return nil
}

func traceID(ctx context.Context) string {
	if id := types.GetRequestID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// DecodeSyncRequest parses a message body produced by Enqueue.
func DecodeSyncRequest(body string) (types.SyncRequestMessage, error) {
	var msg types.SyncRequestMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return msg, fmt.Errorf("queue: decode sync request: %w", err)
	}
	if msg.UserID == "" {
		return msg, fmt.Errorf("queue: sync request without user_id")
	}
	return msg, nil
}
