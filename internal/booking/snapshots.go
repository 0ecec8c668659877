package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// MemorySnapshots keeps snapshots in process memory.
type MemorySnapshots struct {
	mu    sync.Mutex
	items map[string]memorySnapshot
	now   func() time.Time
}

type memorySnapshot struct {
	snap      Snapshot
	expiresAt time.Time
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{items: make(map[string]memorySnapshot), now: time.Now}
}

func (m *MemorySnapshots) Load(_ context.Context, key string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok {
		return nil, nil
	}
	if !item.expiresAt.IsZero() && m.now().After(item.expiresAt) {
		delete(m.items, key)
		return nil, nil
	}
	snap := item.snap
	return &snap, nil
}

func (m *MemorySnapshots) Save(_ context.Context, key string, snap Snapshot, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := memorySnapshot{snap: snap}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = item
	return nil
}

func (m *MemorySnapshots) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// RedisSnapshots stores snapshots as JSON under "flow:<key>".
type RedisSnapshots struct {
	client *redis.Client
	prefix string
}

func NewRedisSnapshots(client *redis.Client) *RedisSnapshots {
	return &RedisSnapshots{client: client, prefix: "flow:"}
}

func (r *RedisSnapshots) Load(ctx context.Context, key string) (*Snapshot, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidSnapshot, key, err)
	}
	return &snap, nil
}

func (r *RedisSnapshots) Save(ctx context.Context, key string, snap Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisSnapshots) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// FailoverSnapshots uses primary until it fails, then serves from fallback
// and retries primary once per recovery interval.
type FailoverSnapshots struct {
	primary  SnapshotStore
	fallback SnapshotStore
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
	retry     time.Duration
}

func NewFailoverSnapshots(primary, fallback SnapshotStore, logger *zerolog.Logger) *FailoverSnapshots {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &FailoverSnapshots{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		retry:    time.Minute,
	}
}

// Load prefers the primary copy. A primary miss still consults the
// fallback, which holds whatever was saved while the primary was down.
// An undecodable primary value counts as a miss.
func (f *FailoverSnapshots) Load(ctx context.Context, key string) (*Snapshot, error) {
	if f.usePrimary() {
		snap, err := f.primary.Load(ctx, key)
		switch {
		case err == nil:
			f.markUp()
			if snap != nil {
				return snap, nil
			}
		case errors.Is(err, ErrInvalidSnapshot):
			f.markUp()
			f.logger.Warn().Err(err).Str("session", key).Msg("dropping unreadable primary snapshot")
			_ = f.primary.Delete(ctx, key)
		default:
			f.markDown(err)
		}
	}
	return f.fallback.Load(ctx, key)
}

func (f *FailoverSnapshots) Save(ctx context.Context, key string, snap Snapshot, ttl time.Duration) error {
	if f.usePrimary() {
		err := f.primary.Save(ctx, key, snap, ttl)
		if err == nil {
			f.markUp()
			return nil
		}
		f.markDown(err)
	}
	return f.fallback.Save(ctx, key, snap, ttl)
}

func (f *FailoverSnapshots) Delete(ctx context.Context, key string) error {
	fbErr := f.fallback.Delete(ctx, key)
	if f.usePrimary() {
		err := f.primary.Delete(ctx, key)
		if err == nil {
			f.markUp()
			return fbErr
		}
		f.markDown(err)
	}
	return fbErr
}

func (f *FailoverSnapshots) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) < f.retry {
		return false
	}
	f.lastCheck = time.Now()
	return true
}

func (f *FailoverSnapshots) markDown(err error) {
	if !f.isDown.Swap(true) {
		f.logger.Warn().Err(err).Msg("snapshot primary store failed, switching to fallback")
	}
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

func (f *FailoverSnapshots) markUp() {
	if f.isDown.Swap(false) {
		f.logger.Info().Msg("snapshot primary store recovered")
	}
}
