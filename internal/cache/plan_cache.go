// Package cache holds the best-effort local copy of plan records.
//
// The cache lives in memory and is optionally persisted as a zstd-compressed
// JSON snapshot so a restarted process can still serve entitlements while the
// relational store is unreachable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"agentconsole/internal/types"
)

// snapshotVersion guards against loading snapshots written by an
// incompatible layout.
const snapshotVersion = 1

type snapshot struct {
	Version int                          `json:"version"`
	SavedAt time.Time                    `json:"saved_at"`
	Plans   map[string]*types.PlanRecord `json:"plans"`
}

// PlanCache is a concurrency-safe map of user id to plan record.
type PlanCache struct {
	mu    sync.RWMutex
	plans map[string]*types.PlanRecord
	dirty bool

	path   string
	clock  types.Clock
	logger *slog.Logger
}

// NewPlanCache creates an empty cache. An empty path disables persistence.
func NewPlanCache(path string, clock types.Clock, logger *slog.Logger) *PlanCache {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &PlanCache{
		plans:  make(map[string]*types.PlanRecord),
		path:   path,
		clock:  clock,
		logger: logger,
	}
}

// Get returns a copy of the cached record, or not_found_plan.
func (c *PlanCache) Get(_ context.Context, userID string) (*types.PlanRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.plans[userID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "plan not cached", nil)
	}
	return p.Clone(), nil
}

// Put stores a copy of rec. It never fails.
func (c *PlanCache) Put(_ context.Context, rec *types.PlanRecord) {
	if rec == nil || rec.UserID == "" {
		return
	}
	c.mu.Lock()
	c.plans[rec.UserID] = rec.Clone()
	c.dirty = true
	c.mu.Unlock()
}

// Len returns the number of cached records.
func (c *PlanCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.plans)
}

// Load replaces the cache contents with the snapshot on disk.
// A missing snapshot is not an error.
func (c *PlanCache) Load() error {
	if c.path == "" {
		return nil
	}

	compressed, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read plan cache snapshot: %w", err)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("decompress plan cache snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("decode plan cache snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		c.logger.Warn("ignoring plan cache snapshot with unknown version",
			"version", snap.Version,
			"path", c.path,
		)
		return nil
	}

	plans := make(map[string]*types.PlanRecord, len(snap.Plans))
	for id, p := range snap.Plans {
		if p != nil && p.Tier.Valid() {
			plans[id] = p
		}
	}

	c.mu.Lock()
	c.plans = plans
	c.dirty = false
	c.mu.Unlock()

	c.logger.Info("plan cache snapshot loaded",
		"records", len(plans),
		"saved_at", snap.SavedAt,
	)
	return nil
}

// Flush writes the snapshot when the cache changed since the last flush.
// The file is replaced atomically.
func (c *PlanCache) Flush() error {
	if c.path == "" {
		return nil
	}

	c.mu.RLock()
	if !c.dirty {
		c.mu.RUnlock()
		return nil
	}
	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: c.clock.Now(),
		Plans:   make(map[string]*types.PlanRecord, len(c.plans)),
	}
	for id, p := range c.plans {
		snap.Plans[id] = p.Clone()
	}
	c.mu.RUnlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode plan cache snapshot: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	compressed := enc.EncodeAll(raw, nil)
	_ = enc.Close()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o600); err != nil {
		return fmt.Errorf("write plan cache snapshot: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace plan cache snapshot: %w", err)
	}

	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()
	return nil
}

// RunFlusher flushes every interval until ctx is canceled, then flushes once more.
func (c *PlanCache) RunFlusher(ctx context.Context, interval time.Duration) {
	if c.path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := c.Flush(); err != nil {
				c.logger.Error("final plan cache flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := c.Flush(); err != nil {
				c.logger.Warn("plan cache flush failed", "error", err)
			}
		}
	}
}
