// Package plansync keeps a user's plan record consistent between the
// authoritative relational store and the local cache, gates agent creation
// on the resulting entitlement, and orchestrates synchronization triggers.
package plansync

import (
	"context"
	"log/slog"
	"time"

	"agentconsole/internal/billing"
	"agentconsole/internal/types"
)

// RemotePlanStore is the authoritative copy of plan records.
// Get returns a not_found_plan AppError when the user has no record.
type RemotePlanStore interface {
	Get(ctx context.Context, userID string) (*types.PlanRecord, error)
	Upsert(ctx context.Context, rec *types.PlanRecord) error
}

// LocalPlanCache is the best-effort copy. Put never fails.
type LocalPlanCache interface {
	Get(ctx context.Context, userID string) (*types.PlanRecord, error)
	Put(ctx context.Context, rec *types.PlanRecord)
}

// StoreConfig tunes remote access.
type StoreConfig struct {
	// RemoteTimeout bounds every remote read and write.
	RemoteTimeout time.Duration
	// RetryBackoff is the pause before the single remote write retry.
	RetryBackoff time.Duration
}

// Store reads and writes plan records through both channels.
type Store struct {
	remote  RemotePlanStore
	local   LocalPlanCache
	catalog billing.PlanCatalog
	clock   types.Clock
	cfg     StoreConfig
	logger  *slog.Logger
}

// NewStore creates a Store.
func NewStore(
	remote RemotePlanStore,
	local LocalPlanCache,
	catalog billing.PlanCatalog,
	clock types.Clock,
	cfg StoreConfig,
	logger *slog.Logger,
) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = 3 * time.Second
	}
	return &Store{
		remote:  remote,
		local:   local,
		catalog: catalog,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Catalog returns the plan catalog the store resolves limits against.
func (s *Store) Catalog() billing.PlanCatalog { return s.catalog }

// Now returns the store's current time.
func (s *Store) Now() time.Time { return s.clock.Now() }

// FetchRemote reads the authoritative record within the remote timeout.
func (s *Store) FetchRemote(ctx context.Context, userID string) (*types.PlanRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()
	return s.remote.Get(ctx, userID)
}

// FetchLocal reads the cached record.
func (s *Store) FetchLocal(ctx context.Context, userID string) (*types.PlanRecord, error) {
	return s.local.Get(ctx, userID)
}

// WriteRemote upserts rec. The write is detached from ctx cancellation so a
// caller going away never leaves a half-applied entitlement change; it is
// still bounded by the remote timeout.
func (s *Store) WriteRemote(ctx context.Context, rec *types.PlanRecord) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RemoteTimeout)
	defer cancel()
	return s.remote.Upsert(ctx, rec)
}

// WriteLocal stores rec in the cache.
func (s *Store) WriteLocal(ctx context.Context, rec *types.PlanRecord) {
	s.local.Put(ctx, rec)
}

// writeRemoteWithRetry tries the remote write at most twice.
func (s *Store) writeRemoteWithRetry(ctx context.Context, rec *types.PlanRecord) error {
	err := s.WriteRemote(ctx, rec)
	if err == nil {
		return nil
	}
	s.logger.WarnContext(ctx, "remote plan write failed, retrying once",
		"user_id", rec.UserID,
		"error", err,
	)
	if s.cfg.RetryBackoff > 0 {
		time.Sleep(s.cfg.RetryBackoff)
	}
	if err := s.WriteRemote(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "remote plan write failed after retry",
			"user_id", rec.UserID,
			"error", err,
		)
		return err
	}
	return nil
}

// WriteThrough writes rec to the cache and then to the remote store.
// It reports whether the remote write is still pending after the retry.
func (s *Store) WriteThrough(ctx context.Context, rec *types.PlanRecord) (pending bool) {
	s.WriteLocal(ctx, rec)
	return s.writeRemoteWithRetry(ctx, rec) != nil
}

// Current returns the best-known record for userID without reconciling:
// the remote copy when reachable, otherwise the cached copy.
func (s *Store) Current(ctx context.Context, userID string) (*types.PlanRecord, error) {
	rec, err := s.FetchRemote(ctx, userID)
	if err == nil {
		return rec, nil
	}
	if !types.IsNotFound(err) {
		s.logger.WarnContext(ctx, "remote plan fetch failed, using cache",
			"user_id", userID,
			"error", err,
		)
	}
	return s.FetchLocal(ctx, userID)
}
