package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Observation is what the monitor remembers about one owner between poll
// cycles. All flags are scoped to a single heartbeat epoch: a change in
// LastActiveMs invalidates them.
type Observation struct {
	LastActiveMs     string `json:"last_active_ms"`
	EarlyWarned      bool   `json:"early_warned"`
	TerminalNotified bool   `json:"terminal_notified"`
}

// Persister saves and restores the observation cache across restarts.
type Persister interface {
	Load(ctx context.Context) (map[string]Observation, error)
	Save(ctx context.Context, obs map[string]Observation) error
}

// ObservationCache tracks per-owner monitor state. Safe for concurrent use.
type ObservationCache struct {
	mu  sync.Mutex
	obs map[string]Observation
}

func NewObservationCache() *ObservationCache {
	return &ObservationCache{obs: make(map[string]Observation)}
}

// Sync reconciles the cache with the owner's current heartbeat epoch. A new
// LastActiveMs means the owner checked in since we last looked, so the
// per-epoch flags reset. Reports whether the epoch changed.
func (c *ObservationCache) Sync(ownerID, lastActiveMs string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.obs[ownerID]
	if ok && cur.LastActiveMs == lastActiveMs {
		return false
	}
	c.obs[ownerID] = Observation{LastActiveMs: lastActiveMs}
	return true
}

// MarkEarlyWarned records that the danger-zone warning went out this epoch.
func (c *ObservationCache) MarkEarlyWarned(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o := c.obs[ownerID]
	o.EarlyWarned = true
	c.obs[ownerID] = o
}

// EarlyWarned reports whether the danger-zone warning already went out.
func (c *ObservationCache) EarlyWarned(ownerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.obs[ownerID].EarlyWarned
}

// MarkTerminalNotified records the one-time completion notification.
func (c *ObservationCache) MarkTerminalNotified(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o := c.obs[ownerID]
	o.TerminalNotified = true
	c.obs[ownerID] = o
}

// TerminalNotified reports whether the completion notification went out.
func (c *ObservationCache) TerminalNotified(ownerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.obs[ownerID].TerminalNotified
}

// Forget drops an owner's observation, for watchlist removals.
func (c *ObservationCache) Forget(ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.obs, ownerID)
}

// Snapshot returns a copy of the cache for persistence.
func (c *ObservationCache) Snapshot() map[string]Observation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Observation, len(c.obs))
	for k, v := range c.obs {
		out[k] = v
	}
	return out
}

// Restore replaces the cache contents, for startup recovery.
func (c *ObservationCache) Restore(obs map[string]Observation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obs = make(map[string]Observation, len(obs))
	for k, v := range obs {
		c.obs[k] = v
	}
}

// RedisPersister stores the observation cache as one JSON value so monitor
// restarts do not repeat one-time notifications.
type RedisPersister struct {
	client *redis.Client
	key    string
}

// NewRedisPersister connects to Redis at addr. The key defaults to
// "sentinel:agent:observations" when empty.
func NewRedisPersister(addr, password string, db int, key string) *RedisPersister {
	if key == "" {
		key = "sentinel:agent:observations"
	}
	return &RedisPersister{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		key: key,
	}
}

func (p *RedisPersister) Load(ctx context.Context) (map[string]Observation, error) {
	raw, err := p.client.Get(ctx, p.key).Bytes()
	if err == redis.Nil {
		return map[string]Observation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	var obs map[string]Observation
	if err := json.Unmarshal(raw, &obs); err != nil {
		return nil, fmt.Errorf("decode observations: %w", err)
	}
	return obs, nil
}

func (p *RedisPersister) Save(ctx context.Context, obs map[string]Observation) error {
	raw, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("encode observations: %w", err)
	}
	if err := p.client.Set(ctx, p.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("save observations: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *RedisPersister) Close() error {
	return p.client.Close()
}
