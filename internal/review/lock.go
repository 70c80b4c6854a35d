package review

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// lockTTL bounds how long a review run can hold the dedup lock. Runs are
// short; the TTL only matters when a process dies mid-run.
const lockTTL = time.Minute

// Locker provides the per-definition dedup lock. TryAcquire returns false
// when another run already holds the lock; losers skip, they do not wait.
type Locker interface {
	TryAcquire(ctx context.Context, definitionID string) (bool, error)
	Release(ctx context.Context, definitionID string)
}

// RedisLocker implements Locker on Redis SETNX so deduplication holds across
// multiple backend instances.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func lockKey(definitionID string) string {
	return "review:lock:" + definitionID
}

// TryAcquire attempts to take the lock for a definition.
func (l *RedisLocker) TryAcquire(ctx context.Context, definitionID string) (bool, error) {
	acquired, err := l.client.SetNX(ctx, lockKey(definitionID), "1", lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire review lock: %w", err)
	}
	return acquired, nil
}

// Release frees the lock. Errors are ignored; an unreleased lock expires.
func (l *RedisLocker) Release(ctx context.Context, definitionID string) {
	l.client.Del(ctx, lockKey(definitionID))
}

// MemoryLocker implements Locker in-process for single-instance deployments
// without Redis.
type MemoryLocker struct {
	mu    sync.Mutex
	taken map[string]time.Time
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{taken: make(map[string]time.Time)}
}

// TryAcquire attempts to take the lock for a definition.
func (l *MemoryLocker) TryAcquire(_ context.Context, definitionID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if expiry, held := l.taken[definitionID]; held && time.Now().Before(expiry) {
		return false, nil
	}
	l.taken[definitionID] = time.Now().Add(lockTTL)
	return true, nil
}

// Release frees the lock.
func (l *MemoryLocker) Release(_ context.Context, definitionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.taken, definitionID)
}
