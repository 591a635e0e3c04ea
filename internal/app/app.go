// Package app assembles the plan stack from configuration. The API, the sync
// worker and the ops CLI all build the same Components so they read and write
// plans the same way.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"agentconsole/internal/auth"
	"agentconsole/internal/billing"
	"agentconsole/internal/cache"
	"agentconsole/internal/config"
	"agentconsole/internal/db"
	"agentconsole/internal/gateway"
	"agentconsole/internal/notifications"
	"agentconsole/internal/plansync"
	"agentconsole/internal/queue"
	"agentconsole/internal/types"
)

// CacheFlushInterval is how often a long-running process snapshots the plan cache.
const CacheFlushInterval = time.Minute

// AWSClients are the AWS service clients shared by a process.
type AWSClients struct {
	SQS        *sqs.Client
	CloudWatch *cloudwatch.Client
}

// NewAWSClients loads the default AWS configuration for cfg.Region. A
// non-empty EndpointURL points both clients at LocalStack.
func NewAWSClients(ctx context.Context, cfg config.AWSConfig) (AWSClients, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return AWSClients{}, fmt.Errorf("load AWS config: %w", err)
	}
	var endpoint *string
	if cfg.EndpointURL != "" {
		endpoint = aws.String(cfg.EndpointURL)
	}
	return AWSClients{
		SQS: sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			o.BaseEndpoint = endpoint
		}),
		CloudWatch: cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			o.BaseEndpoint = endpoint
		}),
	}, nil
}

// NewCatalog returns the built-in catalog with the configured trial length.
func NewCatalog(cfg config.SyncConfig) billing.PlanCatalog {
	if cfg.TrialDays <= 0 {
		return billing.NewStaticCatalog()
	}
	trial, _ := billing.NewStaticCatalog().Get(types.PlanTrial)
	trial.TrialDays = cfg.TrialDays
	return billing.NewCatalog(map[types.PlanTier]billing.CatalogEntry{types.PlanTrial: trial})
}

// Metrics is what the sync service and the quota guard record.
type Metrics interface {
	plansync.SyncMetrics
	plansync.QuotaMetrics
}

// Components is the wired plan stack of one process.
type Components struct {
	Config  *config.Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Repos   *db.Repositories
	Tx      *db.TxManager
	Cache   *cache.PlanCache
	Catalog billing.PlanCatalog
	Store   *plansync.Store
	Queue   *queue.SyncQueue
	Metrics Metrics
	Sync    *plansync.Service
	Quota   *plansync.QuotaGuard
	Agents  *plansync.AgentService

	Sessions  *auth.SessionService
	Directory *auth.Directory
	Gateway   *gateway.Gateway
}

// Build opens the database pool, loads the plan cache snapshot and wires every
// service. Callers must Close the result.
func Build(ctx context.Context, cfg *config.Config, clients AWSClients, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	c := &Components{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Repos:   db.NewRepositories(pool),
		Tx:      db.NewTxManager(pool),
		Catalog: NewCatalog(cfg.Sync),
	}

	clock := types.RealClock{}
	c.Cache = cache.NewPlanCache(cfg.Sync.CacheSnapshotPath, clock, logger)
	if err := c.Cache.Load(); err != nil {
		// A cold cache only costs remote reads.
		logger.Warn("plan cache snapshot not loaded", "path", cfg.Sync.CacheSnapshotPath, "error", err)
	}

	c.Store = plansync.NewStore(c.Repos.Plans, c.Cache, c.Catalog, clock, plansync.StoreConfig{
		RemoteTimeout: cfg.Sync.RemoteTimeout,
		RetryBackoff:  200 * time.Millisecond,
	}, logger)

	c.Queue = queue.NewSyncQueue(clients.SQS, cfg.AWS.SyncQueue, logger)

	if cfg.Observability.EnableMetrics {
		c.Metrics = notifications.NewCloudWatchSyncMetrics(clients.CloudWatch, cfg.Observability.MetricNamespace, logger)
	} else {
		c.Metrics = notifications.NoopSyncMetrics{}
	}

	notifier := notifications.Multi{
		notifications.NewLogNotifier(logger),
		notifications.NewSQSNotifier(clients.SQS, cfg.AWS.NotificationQueue, logger),
	}

	c.Sync = plansync.NewService(c.Store, notifier, c.Metrics, c.Queue, plansync.ServiceConfig{
		RetryDelay:    cfg.Sync.RetryDelay,
		MaxRetries:    cfg.Sync.MaxRetries,
		NotifyEnabled: cfg.Sync.NotifyEnabled,
	}, logger)
	c.Quota = plansync.NewQuotaGuard(c.Store, c.Repos.Agents, clock, cfg.Sync.RemoteTimeout, c.Metrics, logger)
	c.Agents = plansync.NewAgentService(c.Repos.Agents, c.Quota, logger)

	c.Sessions = auth.NewSessionService(c.Repos.Sessions, nil, auth.SessionConfig{
		SessionDuration: cfg.Auth.SessionTTL,
		TokenPrefix:     auth.DefaultSessionConfig().TokenPrefix,
	}, clock, logger)
	c.Directory = auth.NewDirectory(c.Repos.Users, auth.NewBcryptHasher(cfg.Auth.BcryptCost), c.Sessions, logger)

	c.Gateway = gateway.New(logger)
	gateway.RegisterDefaults(c.Gateway, gateway.Deps{
		Directory: c.Directory,
		AdminTx:   gateway.NewDBAdminTx(c.Tx),
		Plans:     c.Store,
		Queue:     c.Queue,
		Logger:    logger,
	})

	return c, nil
}

// Close writes the final cache snapshot and closes the pool.
func (c *Components) Close(_ context.Context) error {
	var errs []error
	if err := c.Cache.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush plan cache: %w", err))
	}
	c.Pool.Close()
	return errors.Join(errs...)
}
