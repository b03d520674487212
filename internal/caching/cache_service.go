package caching

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "dentalcrm:ratelimit:"

// CacheService holds the counters shared between requests. It is the only
// request-path state outside Postgres.
type CacheService interface {
	// IsRateLimited counts one hit for key and reports whether key has gone
	// over limit within window.
	IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

type redisCacheService struct {
	client *redis.Client
}

// NewRedisCacheService accepts either host:port or a redis:// URL.
func NewRedisCacheService(addr, password string, db int) (CacheService, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		if password != "" {
			parsed.Password = password
		}
		opts = parsed
	}
	return &redisCacheService{client: redis.NewClient(opts)}, nil
}

func (r *redisCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	cacheKey := keyPrefix + key

	// EXPIRE NX opens the window on the first hit and repairs a counter that
	// lost its TTL, without extending a running window.
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, cacheKey)
		pipe.ExpireNX(ctx, cacheKey, window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to count rate limit hit: %w", err)
	}

	return incr.Val() > int64(limit), nil
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisCacheService) Close() error {
	return r.client.Close()
}

type memoryEntry struct {
	count       int
	windowStart time.Time
}

// memoryCacheService is used when no Redis address is configured. It keeps the
// same fixed windows as the Redis counters. Counters are per process, so limits
// are only exact with a single instance.
type memoryCacheService struct {
	mu        sync.Mutex
	entries   map[string]*memoryEntry
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryCacheService() CacheService {
	return &memoryCacheService{entries: make(map[string]*memoryEntry), now: time.Now}
}

func (m *memoryCacheService) IsRateLimited(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now, window)

	e, ok := m.entries[key]
	if !ok || now.Sub(e.windowStart) >= window {
		e = &memoryEntry{windowStart: now}
		m.entries[key] = e
	}
	e.count++
	return e.count > limit, nil
}

// sweep drops counters whose window has closed.
func (m *memoryCacheService) sweep(now time.Time, window time.Duration) {
	if now.Sub(m.lastSweep) < window {
		return
	}
	for k, e := range m.entries {
		if now.Sub(e.windowStart) >= window {
			delete(m.entries, k)
		}
	}
	m.lastSweep = now
}

func (m *memoryCacheService) Ping(context.Context) error { return nil }

func (m *memoryCacheService) Close() error { return nil }
