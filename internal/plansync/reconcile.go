package plansync

import (
	"context"

	"golang.org/x/sync/errgroup"

	"agentconsole/internal/billing"
	"agentconsole/internal/types"
)

// ReconcileResult is the outcome of merging the remote and local copies.
type ReconcileResult struct {
	// Record is the resolved plan. It is nil only when provisioning failed.
	Record *types.PlanRecord
	// Previous is what the user last saw: the cached copy, or the remote
	// copy on a cold cache. Nil for first-time provisioning.
	Previous *types.PlanRecord
	// Provisioned is set when a trial was created for a user with no record.
	Provisioned bool
	// Changed reports that Record grants something different from Previous.
	Changed bool
	// SyncPending is set when the remote copy could not be read or written.
	SyncPending bool
}

// Reconcile fetches both copies of userID's plan concurrently, resolves them,
// and overwrites whichever side is stale. It never returns an error: I/O
// failures surface as SyncPending with the best-known record.
func (s *Store) Reconcile(ctx context.Context, userID string) ReconcileResult {
	var (
		remote, local       *types.PlanRecord
		remoteErr, localErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		remote, remoteErr = s.FetchRemote(gctx, userID)
		return nil
	})
	g.Go(func() error {
		local, localErr = s.FetchLocal(gctx, userID)
		return nil
	})
	_ = g.Wait()

	remoteDown := remoteErr != nil && !types.IsNotFound(remoteErr)
	if remoteDown {
		s.logger.WarnContext(ctx, "remote plan fetch failed",
			"user_id", userID,
			"error", remoteErr,
		)
	}
	if localErr != nil && !types.IsNotFound(localErr) {
		s.logger.WarnContext(ctx, "local plan fetch failed",
			"user_id", userID,
			"error", localErr,
		)
	}
	if remoteErr != nil {
		remote = nil
	}
	if localErr != nil {
		local = nil
	}

	now := s.clock.Now()
	res := ReconcileResult{Previous: local}
	if res.Previous == nil {
		res.Previous = remote
	}

	var resolved, source *types.PlanRecord
	switch {
	case remote == nil && local == nil && remoteDown:
		// An unreadable remote may hold a paid plan. Provisioning a trial
		// here would hand out the wrong limits until the next sync.
		s.logger.WarnContext(ctx, "no plan available while remote is down", "user_id", userID)
		res.SyncPending = true
		return res
	case remote == nil && local == nil:
		trial, err := billing.NewTrialRecord(s.catalog, userID, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "trial provisioning failed", "user_id", userID, "error", err)
			res.SyncPending = true
			return res
		}
		resolved = trial
		res.Provisioned = true
	case remote == nil:
		source = local
	case local == nil:
		source = remote
	case types.MaxTier(remote.Tier, local.Tier) == remote.Tier:
		// Equal tiers land here too: the remote copy is authoritative.
		source = remote
	default:
		source = local
	}
	if source != nil {
		resolved = source.Clone()
	}

	s.resolveLimit(resolved, remote, local)
	if source != nil && !resolved.SameEntitlement(source) {
		resolved.UpdatedAt = now
	}

	if !resolved.SameEntitlement(local) {
		s.WriteLocal(ctx, resolved)
	}

	switch {
	case remoteDown:
		// The remote copy is unknown; pushing ours could overwrite a higher
		// tier. Leave it for the retry path.
		res.SyncPending = true
	case !resolved.SameEntitlement(remote):
		if err := s.writeRemoteWithRetry(ctx, resolved); err != nil {
			res.SyncPending = true
		}
	}

	if res.Provisioned {
		s.logger.InfoContext(ctx, "provisioned trial plan",
			"user_id", userID,
			"trial_ends_at", resolved.TrialEndsAt,
		)
	}

	res.Record = resolved
	res.Changed = res.Provisioned || !resolved.SameEntitlement(res.Previous)
	return res
}

// resolveLimit sets the agent limit on the resolved record from whichever
// copy carries the later limit decision. An override from that copy is kept
// as is; a catalog default always follows the resolved tier.
func (s *Store) resolveLimit(resolved, remote, local *types.PlanRecord) {
	var decided *types.PlanRecord
	for _, rec := range []*types.PlanRecord{remote, local} {
		if rec == nil {
			continue
		}
		if decided == nil || limitDecidedLater(rec, decided) {
			decided = rec
		}
	}

	if decided != nil && decided.HasLimitOverride() {
		resolved.AgentLimit = decided.AgentLimit
		resolved.LimitSource = types.LimitSourceAdmin
	} else {
		resolved.AgentLimit = billing.MustLimit(s.catalog, resolved.Tier)
		resolved.LimitSource = types.LimitSourceCatalog
	}
	resolved.LimitSetAt = nil
	if decided != nil && decided.LimitSetAt != nil {
		at := *decided.LimitSetAt
		resolved.LimitSetAt = &at
	}
}

// limitDecidedLater reports whether a's agent limit supersedes b's. A stamped
// decision beats an unstamped one. Records written before LimitSetAt existed
// fall back to UpdatedAt, and an exact tie keeps the override.
func limitDecidedLater(a, b *types.PlanRecord) bool {
	switch {
	case a.LimitSetAt != nil && b.LimitSetAt != nil:
		if !a.LimitSetAt.Equal(*b.LimitSetAt) {
			return a.LimitSetAt.After(*b.LimitSetAt)
		}
	case a.LimitSetAt != nil:
		return true
	case b.LimitSetAt != nil:
		return false
	}
	if a.HasLimitOverride() == b.HasLimitOverride() {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.HasLimitOverride()
}
