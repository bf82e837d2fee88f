package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// channelPrefix namespaces per-vault pub/sub channels.
const channelPrefix = "sentinel:vault:"

// RedisNotifier publishes events to a per-vault Redis channel. Downstream
// delivery bots (chat, email) subscribe to the channels they care about.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier creates a notifier backed by Redis pub/sub.
func NewRedisNotifier(addr string, password string, db int) *RedisNotifier {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisNotifier{client: rdb}
}

// NewRedisNotifierFromClient wraps an existing client (shared with the
// observation cache).
func NewRedisNotifierFromClient(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Channel returns the pub/sub channel name for a vault.
func Channel(ownerID string) string {
	return channelPrefix + ownerID
}

func (n *RedisNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.client.Publish(ctx, Channel(event.OwnerID), payload).Err(); err != nil {
		return fmt.Errorf("publish event for %s: %w", event.OwnerID, err)
	}
	return nil
}

// Close releases the underlying client.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
