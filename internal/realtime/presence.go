package realtime

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultPresenceKey is the Redis hash holding connection id to user id.
const DefaultPresenceKey = "presence:online"

// PresenceRegistry tracks which users hold live connections.
type PresenceRegistry interface {
	Add(ctx context.Context, connID, userID string) error
	Remove(ctx context.Context, connID string) error
	Online(ctx context.Context) ([]string, error)
}

// MemoryRegistry keeps presence in process. It suits a single instance.
type MemoryRegistry struct {
	mu    sync.RWMutex
	conns map[string]string
}

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{conns: make(map[string]string)}
}

func (r *MemoryRegistry) Add(_ context.Context, connID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = userID
	return nil
}

func (r *MemoryRegistry) Remove(_ context.Context, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
	return nil
}

// Online returns the distinct online user ids, sorted.
func (r *MemoryRegistry) Online(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return distinctUsers(r.conns), nil
}

// RedisRegistry shares presence between instances through a Redis hash.
type RedisRegistry struct {
	client redis.UniversalClient
	key    string
}

// NewRedisRegistry creates a RedisRegistry. An empty key uses
// DefaultPresenceKey.
func NewRedisRegistry(client redis.UniversalClient, key string) *RedisRegistry {
	if key == "" {
		key = DefaultPresenceKey
	}
	return &RedisRegistry{client: client, key: key}
}

func (r *RedisRegistry) Add(ctx context.Context, connID, userID string) error {
	if err := r.client.HSet(ctx, r.key, connID, userID).Err(); err != nil {
		return fmt.Errorf("failed to record presence: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Remove(ctx context.Context, connID string) error {
	if err := r.client.HDel(ctx, r.key, connID).Err(); err != nil {
		return fmt.Errorf("failed to clear presence: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Online(ctx context.Context) ([]string, error) {
	conns, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence: %w", err)
	}
	return distinctUsers(conns), nil
}

func distinctUsers(conns map[string]string) []string {
	seen := make(map[string]struct{}, len(conns))
	users := make([]string, 0, len(conns))
	for _, userID := range conns {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}
