// Package liveness provides the pluggable owner-liveness strategies the
// monitoring agent consults before committing a yield verdict.
package liveness

import (
	"context"
	"fmt"
	"sync"
)

// Checker reports whether an owner shows signs of life. A negative answer
// is not proof of death; the agent combines it with the resolution policy
// before passing confirm_death=true.
type Checker interface {
	CheckAlive(ctx context.Context, ownerID string) (bool, error)
}

// ManualChecker never attests liveness on its own: resolution stays in the
// hands of an operator until a real signal source is wired in.
// TODO: integrate social/activity feeds as positive-liveness sources.
type ManualChecker struct{}

func (ManualChecker) CheckAlive(ctx context.Context, ownerID string) (bool, error) {
	return false, nil
}

// ActivitySource exposes a monotonic per-identity activity counter, such as
// an on-chain transaction count or an application event tally.
type ActivitySource interface {
	ActivityCount(ctx context.Context, ownerID string) (uint64, error)
}

// ActivityChecker infers liveness from counter movement: any increase over
// the recorded baseline counts as activity. Safe for concurrent use.
type ActivityChecker struct {
	source ActivitySource

	mu        sync.Mutex
	baselines map[string]uint64
}

func NewActivityChecker(source ActivitySource) *ActivityChecker {
	return &ActivityChecker{
		source:    source,
		baselines: make(map[string]uint64),
	}
}

// Baseline snapshots the current counter for an owner. Called while the
// owner is comfortably inside their heartbeat window, so later comparisons
// measure activity since the last known-good point.
func (c *ActivityChecker) Baseline(ctx context.Context, ownerID string) error {
	count, err := c.source.ActivityCount(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("activity count for %s: %w", ownerID, err)
	}
	c.mu.Lock()
	c.baselines[ownerID] = count
	c.mu.Unlock()
	return nil
}

// HasBaseline reports whether a baseline snapshot exists for the owner.
func (c *ActivityChecker) HasBaseline(ownerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.baselines[ownerID]
	return ok
}

// HasIncreased reports whether the counter moved past the recorded
// baseline. Without a baseline it reports false: absence of history is
// never evidence of life.
func (c *ActivityChecker) HasIncreased(ctx context.Context, ownerID string) (bool, error) {
	c.mu.Lock()
	baseline, ok := c.baselines[ownerID]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}

	count, err := c.source.ActivityCount(ctx, ownerID)
	if err != nil {
		return false, fmt.Errorf("activity count for %s: %w", ownerID, err)
	}
	return count > baseline, nil
}

// Forget drops the baseline for an owner, typically after an auto-extend
// so the next danger-zone pass starts from a fresh snapshot.
func (c *ActivityChecker) Forget(ownerID string) {
	c.mu.Lock()
	delete(c.baselines, ownerID)
	c.mu.Unlock()
}

// CheckAlive satisfies Checker using counter movement.
func (c *ActivityChecker) CheckAlive(ctx context.Context, ownerID string) (bool, error) {
	return c.HasIncreased(ctx, ownerID)
}
