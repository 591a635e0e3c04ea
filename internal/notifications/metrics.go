package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"agentconsole/internal/types"
)

// Metric dimension names.
const (
	DimTrigger = "Trigger"
	DimOutcome = "Outcome"
	DimReason  = "Reason"
)

// CloudWatchClient abstracts PutMetricData for tests.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchSyncMetrics publishes sync and quota metrics. Publishing errors
// are logged and never returned; metrics must not fail a sync.
type CloudWatchSyncMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

func NewCloudWatchSyncMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchSyncMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchSyncMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordOutcome emits PlanSyncOutcome{Trigger,Outcome}, the reconcile latency
// and, for failed syncs, PlanSyncPending.
func (m *CloudWatchSyncMetrics) RecordOutcome(ctx context.Context, trigger types.SyncTrigger, outcome types.SyncOutcome, elapsed time.Duration) {
	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricSyncOutcome),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimTrigger), Value: aws.String(string(trigger))},
				{Name: aws.String(DimOutcome), Value: aws.String(string(outcome))},
			},
		},
		{
			MetricName: aws.String(types.MetricReconcileLatency),
			Value:      aws.Float64(float64(elapsed.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimTrigger), Value: aws.String(string(trigger))},
			},
		},
	}
	if outcome == types.SyncFailed {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricSyncPending),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
		})
	}
	m.put(ctx, data, "trigger", trigger, "outcome", outcome)
}

// RecordQuotaDenied emits AgentQuotaDenied{Reason}.
func (m *CloudWatchSyncMetrics) RecordQuotaDenied(ctx context.Context, reason string) {
	m.put(ctx, []cwtypes.MetricDatum{{
		MetricName: aws.String(types.MetricQuotaDenied),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimReason), Value: aws.String(reason)},
		},
	}}, "reason", reason)
}

func (m *CloudWatchSyncMetrics) put(ctx context.Context, data []cwtypes.MetricDatum, attrs ...any) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to publish metrics", append(attrs, "error", err)...)
	}
}

// NoopSyncMetrics discards everything. Used when metrics are disabled.
type NoopSyncMetrics struct{}

func (NoopSyncMetrics) RecordOutcome(context.Context, types.SyncTrigger, types.SyncOutcome, time.Duration) {
}

func (NoopSyncMetrics) RecordQuotaDenied(context.Context, string) {}
