// Command planctl is the operator CLI for plans: it applies the schema,
// prints the catalog, forces a reconcile and runs privileged functions such
// as agent-limit overrides under a system actor.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"agentconsole/internal/app"
	"agentconsole/internal/billing"
	"agentconsole/internal/config"
	"agentconsole/internal/db"
	"agentconsole/internal/plansync"
	"agentconsole/internal/types"
)

func main() {
	if err := newRootCmd(wireBackend).Execute(); err != nil {
		os.Exit(1)
	}
}

// backend is what the commands operate on.
type backend struct {
	Migrate       func(ctx context.Context) error
	PurgeSessions func(ctx context.Context, now time.Time) (int64, error)
	Catalog       billing.PlanCatalog
	Sync          interface {
		Sync(ctx context.Context, userID string, t plansync.Trigger) plansync.SyncResult
	}
	Gateway interface {
		Invoke(ctx context.Context, actor types.Actor, name string, payload json.RawMessage) (json.RawMessage, error)
	}
	Clock types.Clock
	Close func(ctx context.Context) error
}

type wireFunc func(ctx context.Context, logger *slog.Logger) (*backend, error)

// wireBackend builds the production backend from the environment.
func wireBackend(ctx context.Context, logger *slog.Logger) (*backend, error) {
	cfg, err := config.LoadConfig(config.ProviderFromEnv())
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	clients, err := app.NewAWSClients(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}
	c, err := app.Build(ctx, cfg, clients, logger)
	if err != nil {
		return nil, err
	}
	return &backend{
		Migrate:       func(ctx context.Context) error { return db.Migrate(ctx, c.Pool) },
		PurgeSessions: c.Repos.Sessions.DeleteExpired,
		Catalog:       c.Catalog,
		Sync:          c.Sync,
		Gateway:       c.Gateway,
		Clock:         types.RealClock{},
		Close:         c.Close,
	}, nil
}
