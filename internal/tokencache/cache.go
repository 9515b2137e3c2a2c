package tokencache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// expirySkew is subtracted from every provider TTL so a token is refreshed
// before the provider would reject it mid-request.
const expirySkew = 60 * time.Second

// FetchFunc obtains a fresh token and its provider-reported lifetime.
type FetchFunc func(ctx context.Context) (token string, ttl time.Duration, err error)

// Cache stores short-lived provider access tokens (OAuth bearer tokens and
// the like). Backed by redis when available so instances share tokens; a
// process-local map otherwise.
type Cache struct {
	rdb *redis.Client
	log *zap.Logger

	mu    sync.Mutex
	local map[string]localEntry
}

type localEntry struct {
	token     string
	expiresAt time.Time
}

func New(rdb *redis.Client, log *zap.Logger) *Cache {
	return &Cache{
		rdb:   rdb,
		log:   log.Named("tokencache"),
		local: map[string]localEntry{},
	}
}

// GetToken returns the cached token for key, calling fetch on a miss. A TTL
// at or below the skew is cached for one second so a broken provider cannot
// pin a stale token.
func (c *Cache) GetToken(ctx context.Context, key string, fetch FetchFunc) (string, error) {
	if token, ok := c.lookup(ctx, key); ok {
		return token, nil
	}

	token, ttl, err := fetch(ctx)
	if err != nil {
		return "", err
	}
	ttl -= expirySkew
	if ttl <= 0 {
		ttl = time.Second
	}
	c.store(ctx, key, token, ttl)
	return token, nil
}

// Invalidate drops a cached token, forcing the next GetToken to refetch.
// Used when a provider rejects a token before its reported expiry.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c.rdb != nil {
		if err := c.rdb.Del(ctx, redisKey(key)).Err(); err != nil {
			c.log.Warn("failed to invalidate token", zap.String("key", key), zap.Error(err))
		}
	}
	c.mu.Lock()
	delete(c.local, key)
	c.mu.Unlock()
}

func (c *Cache) lookup(ctx context.Context, key string) (string, bool) {
	if c.rdb != nil {
		token, err := c.rdb.Get(ctx, redisKey(key)).Result()
		if err == nil && token != "" {
			return token, true
		}
		if err != nil && err != redis.Nil {
			c.log.Warn("token cache read failed, falling back to local", zap.Error(err))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.local[key]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(c.local, key)
		return "", false
	}
	return entry.token, true
}

func (c *Cache) store(ctx context.Context, key, token string, ttl time.Duration) {
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, redisKey(key), token, ttl).Err(); err != nil {
			c.log.Warn("token cache write failed, keeping local copy", zap.Error(err))
		}
	}
	c.mu.Lock()
	c.local[key] = localEntry{token: token, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

func redisKey(key string) string {
	return "payway:token:" + key
}
