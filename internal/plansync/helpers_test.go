package plansync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"agentconsole/internal/billing"
	"agentconsole/internal/cache"
	"agentconsole/internal/types"
)

var fixedNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

var errRemoteDown = errors.New("connection refused")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRemote is an in-memory RemotePlanStore with injectable failures.
type fakeRemote struct {
	mu      sync.Mutex
	plans   map[string]*types.PlanRecord
	getErr  error
	putErrs []error
	upserts int
	getHook func()
}

func newFakeRemote(recs ...*types.PlanRecord) *fakeRemote {
	f := &fakeRemote{plans: make(map[string]*types.PlanRecord)}
	for _, r := range recs {
		f.plans[r.UserID] = r.Clone()
	}
	return f
}

func (f *fakeRemote) Get(_ context.Context, userID string) (*types.PlanRecord, error) {
	if f.getHook != nil {
		f.getHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.plans[userID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
	}
	return p.Clone(), nil
}

func (f *fakeRemote) Upsert(ctx context.Context, rec *types.PlanRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		if err != nil {
			return err
		}
	}
	f.plans[rec.UserID] = rec.Clone()
	return nil
}

func (f *fakeRemote) stored(userID string) *types.PlanRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plans[userID].Clone()
}

func newTestStore(remote RemotePlanStore, local *cache.PlanCache) *Store {
	return NewStore(
		remote,
		local,
		billing.NewStaticCatalog(),
		types.FixedClock{T: fixedNow},
		StoreConfig{RemoteTimeout: time.Second},
		discardLogger(),
	)
}

func newLocal(recs ...*types.PlanRecord) *cache.PlanCache {
	c := cache.NewPlanCache("", types.FixedClock{T: fixedNow}, discardLogger())
	for _, r := range recs {
		c.Put(context.Background(), r)
	}
	return c
}

func paidPlan(userID string, tier types.PlanTier) *types.PlanRecord {
	paid := fixedNow.Add(-24 * time.Hour)
	ends := paid.Add(billing.SubscriptionPeriod)
	return &types.PlanRecord{
		UserID:             userID,
		Tier:               tier,
		PaymentDate:        &paid,
		SubscriptionEndsAt: &ends,
		PaymentStatus:      types.PaymentCompleted,
		AgentLimit:         billing.MustLimit(billing.NewStaticCatalog(), tier),
		LimitSource:        types.LimitSourceCatalog,
		UpdatedAt:          paid,
	}
}

func trialPlan(userID string, endsAt time.Time) *types.PlanRecord {
	return &types.PlanRecord{
		UserID:        userID,
		Tier:          types.PlanTrial,
		TrialEndsAt:   &endsAt,
		PaymentStatus: types.PaymentPending,
		AgentLimit:    1,
		LimitSource:   types.LimitSourceCatalog,
		UpdatedAt:     endsAt.Add(-5 * 24 * time.Hour),
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []types.PlanNotification
}

func (n *recordingNotifier) Notify(_ context.Context, msg types.PlanNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

type recordingQueue struct {
	mu     sync.Mutex
	msgs   []types.SyncRequestMessage
	delays []time.Duration
	err    error
}

func (q *recordingQueue) Enqueue(_ context.Context, msg types.SyncRequestMessage, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	q.delays = append(q.delays, delay)
	return nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []types.SyncOutcome
}

func (m *recordingMetrics) RecordOutcome(_ context.Context, _ types.SyncTrigger, outcome types.SyncOutcome, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}
