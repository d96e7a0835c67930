package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores the joined cart items per (tenant, user).
//
// Every entry is tagged with the generation it was read under. Mutations bump the
// generation, so a read that raced a mutation can neither store nor serve its rows.
type Cache interface {
	// Generation returns the current generation of the user's cart.
	Generation(ctx context.Context, tenantID, userID string) (int64, error)
	// Get returns ErrCacheMiss for absent entries and for entries of an older generation.
	Get(ctx context.Context, tenantID, userID string) ([]Item, error)
	// Set stores items read under gen. It reports false, storing nothing, when the
	// generation has moved on.
	Set(ctx context.Context, tenantID, userID string, gen int64, items []Item) (bool, error)
	// Invalidate bumps the generation and drops the entry.
	Invalidate(ctx context.Context, tenantID, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")

const (
	maxTTLJitter = 5 * time.Minute
	// generationTTL outlives any entry so an expired counter cannot revive one.
	generationTTL = 24 * time.Hour
)

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

// NewRedisCache returns a cache whose entries live baseTTL plus up to 5 minutes of jitter,
// so carts cached together do not expire together.
func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisCache{client: client, baseTTL: baseTTL}
}

type cacheEntry struct {
	Gen   int64  `json:"gen"`
	Items []Item `json:"items"`
}

// setIfGenerationScript writes the entry only while the generation is unchanged.
var setIfGenerationScript = redis.NewScript(`
-- KEYS[1] = generation key
-- KEYS[2] = entry key
-- ARGV[1] = generation the entry was read under
-- ARGV[2] = payload
-- ARGV[3] = ttl_ms
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur ~= tonumber(ARGV[1]) then
  return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

func (r *RedisCache) Generation(ctx context.Context, tenantID, userID string) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(tenantID, userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

func (r *RedisCache) Get(ctx context.Context, tenantID, userID string) ([]Item, error) {
	vals, err := r.client.MGet(ctx, generationKey(tenantID, userID), cacheKey(tenantID, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	raw, ok := vals[1].(string)
	if !ok {
		return nil, ErrCacheMiss
	}
	var gen int64
	if s, ok := vals[0].(string); ok {
		if gen, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, fmt.Errorf("parse cart generation failed: %w", err)
		}
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if entry.Gen != gen {
		return nil, ErrCacheMiss
	}
	return entry.Items, nil
}

func (r *RedisCache) Set(ctx context.Context, tenantID, userID string, gen int64, items []Item) (bool, error) {
	data, err := json.Marshal(cacheEntry{Gen: gen, Items: items})
	if err != nil {
		return false, fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.baseTTL + time.Duration(rand.Int63n(int64(maxTTLJitter)))
	keys := []string{generationKey(tenantID, userID), cacheKey(tenantID, userID)}
	stored, err := setIfGenerationScript.Run(ctx, r.client, keys, gen, string(data), ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis set failed: %w", err)
	}
	return stored == 1, nil
}

func (r *RedisCache) Invalidate(ctx context.Context, tenantID, userID string) error {
	genKey := generationKey(tenantID, userID)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey)
		p.Expire(ctx, genKey, generationTTL)
		p.Del(ctx, cacheKey(tenantID, userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func cacheKey(tenantID, userID string) string {
	return fmt.Sprintf("cart:%s:%s", tenantID, userID)
}

func generationKey(tenantID, userID string) string {
	return fmt.Sprintf("cart:gen:%s:%s", tenantID, userID)
}
