package types

// Metric names published by the sync pipeline.
const (
	MetricSyncOutcome      = "PlanSyncOutcome"
	MetricSyncPending      = "PlanSyncPending"
	MetricReconcileLatency = "PlanReconcileLatency"
	MetricQuotaDenied      = "AgentQuotaDenied"
)

// Validation limits for user-supplied values.
const (
	MaxAgentNameLength = 120
	MaxAdminAgentLimit = 10000
)
