// Package notifications delivers plan notifications and records sync metrics.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"agentconsole/internal/types"
)

// Notifier delivers one user-facing plan notification.
type Notifier interface {
	Notify(ctx context.Context, n types.PlanNotification) error
}

// SQSSender is the subset of *sqs.Client used by SQSNotifier.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSNotifier publishes notifications to the queue read by the dashboard's
// push service.
type SQSNotifier struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

func NewSQSNotifier(client SQSSender, queueURL string, logger *slog.Logger) *SQSNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSNotifier{client: client, queueURL: queueURL, logger: logger}
}

func (n *SQSNotifier) Notify(ctx context.Context, note types.PlanNotification) error {
	body, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("notifications: marshal: %w", err)
	}
	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(note.Kind)),
			},
		},
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue, "publish plan notification", err)
	}
	n.logger.InfoContext(ctx, "plan notification published",
		"user_id", note.UserID,
		"kind", note.Kind,
		"tier", note.Tier,
	)
	return nil
}

// LogNotifier writes notifications to the log. Used in local mode.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, note types.PlanNotification) error {
	n.logger.InfoContext(ctx, "plan notification",
		"user_id", note.UserID,
		"kind", note.Kind,
		"message", note.Message,
		"tier", note.Tier,
		"previous_tier", note.PrevTier,
		"trigger", note.Trigger,
	)
	return nil
}

// Multi fans a notification out to every notifier. All are attempted; the
// errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, note types.PlanNotification) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
