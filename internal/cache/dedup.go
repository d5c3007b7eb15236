// Package cache implements the Reasoner's deduplication caches (§4.3):
// a block-number cache (skip re-analyzing a block already assessed), a
// content-hash cache (skip re-analyzing a state signature already seen),
// and a per-liquidation-event cache capped at 1000 entries. The default is
// an in-process map; when config.RedisURL is set, a Redis-backed
// implementation is used instead, generalized from the crypto-wallet DeFi
// service's go-redis usage in the wider example pool.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

// Dedup is the Reasoner's view of its caches.
type Dedup interface {
	// SeenBlock reports whether blockNumber has already been analyzed, and
	// marks it seen either way.
	SeenBlock(ctx context.Context, blockNumber uint64) bool

	// SeenSignature reports whether the given content signature has already
	// been analyzed, and marks it seen either way.
	SeenSignature(ctx context.Context, signature string) bool

	// SeenLiquidation reports whether the (user, blockNumber) pair has
	// already triggered a liquidation analysis, and marks it seen. The
	// underlying set is capped at 1000 keys per §4.3.
	SeenLiquidation(ctx context.Context, user string, blockNumber uint64) bool
}

// ContentHash implements observer.py/reasoner.py's 16-hex-character
// SHA-256 prefix used as the dedup key for a market state.
func ContentHash(fields ...interface{}) string {
	sum := sha256.Sum256([]byte(fmt.Sprint(fields...)))
	return hex.EncodeToString(sum[:])[:16]
}

// LiquidationKey mirrors reasoner.py's "liq_<user>_<block>" key shape.
func LiquidationKey(user string, blockNumber uint64) string {
	return fmt.Sprintf("liq_%s_%d", user, blockNumber)
}

const liquidationCacheCap = 1000

// memDedup is the default, in-process Dedup implementation.
type memDedup struct {
	mu           sync.Mutex
	blocks       map[uint64]struct{}
	signatures   map[string]struct{}
	liquidations map[string]struct{}
}

func NewMemory() Dedup {
	return &memDedup{
		blocks:       make(map[uint64]struct{}),
		signatures:   make(map[string]struct{}),
		liquidations: make(map[string]struct{}),
	}
}

func (c *memDedup) SeenBlock(_ context.Context, blockNumber uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, seen := c.blocks[blockNumber]
	c.blocks[blockNumber] = struct{}{}
	return seen
}

func (c *memDedup) SeenSignature(_ context.Context, signature string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, seen := c.signatures[signature]
	c.signatures[signature] = struct{}{}
	return seen
}

// SeenLiquidation mirrors reasoner.py's analyzed_events cache: once the set
// reaches liquidationCacheCap entries it is wiped entirely (self.
// analyzed_events.clear()), not evicted one key at a time.
func (c *memDedup) SeenLiquidation(_ context.Context, user string, blockNumber uint64) bool {
	key := LiquidationKey(user, blockNumber)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.liquidations[key]; seen {
		return true
	}

	if len(c.liquidations) >= liquidationCacheCap {
		c.liquidations = make(map[string]struct{})
	}
	c.liquidations[key] = struct{}{}
	return false
}

// redisDedup backs the same three caches with Redis SETs, selected via
// Config.RedisURL so the agent's dedup state survives a restart.
type redisDedup struct {
	client *redis.Client
}

func NewRedis(url string) (Dedup, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse REDIS_URL: %w", err)
	}
	return &redisDedup{client: redis.NewClient(opt)}, nil
}

func (c *redisDedup) SeenBlock(ctx context.Context, blockNumber uint64) bool {
	return c.seenKey(ctx, "sentinel:dedup:blocks", fmt.Sprintf("%d", blockNumber))
}

func (c *redisDedup) SeenSignature(ctx context.Context, signature string) bool {
	return c.seenKey(ctx, "sentinel:dedup:signatures", signature)
}

// SeenLiquidation mirrors reasoner.py's analyzed_events cache: once the set
// reaches liquidationCacheCap entries it is wiped entirely (self.
// analyzed_events.clear()), not evicted one key at a time.
func (c *redisDedup) SeenLiquidation(ctx context.Context, user string, blockNumber uint64) bool {
	const set = "sentinel:dedup:liquidations"
	key := LiquidationKey(user, blockNumber)

	if size, _ := c.client.SCard(ctx, set).Result(); size >= liquidationCacheCap {
		c.client.Del(ctx, set)
	}

	added, err := c.client.SAdd(ctx, set, key).Result()
	if err != nil {
		return false
	}
	return added == 0
}

func (c *redisDedup) seenKey(ctx context.Context, set, member string) bool {
	added, err := c.client.SAdd(ctx, set, member).Result()
	if err != nil {
		return false
	}
	return added == 0
}
