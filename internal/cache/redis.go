// Package cache mirrors the Materializer's price-indexed sets and
// recent-trades ring into Redis sorted sets, for read-side RPC
// queries that shouldn't have to go through MAT's single-threaded
// apply loop. Key names and the ZSCAN/ZRANGEBYSCORE query shapes
// follow original_source/src/rpc/util.rs literally ("ask", "bid",
// "recent_orders"), generalized from the two-sided book to the six
// named sets; client wiring (redis.Cmdable) follows
// rishavpaul-system-design/rate-limiter/gateway/ratelimiter/token_bucket.go.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/twilight-project/relayer-eisme/internal/domain"
)

const recentTradesKey = "recent_orders"

// Mirror wraps a redis.Cmdable (satisfied by both *redis.Client and
// *redis.ClusterClient) so tests can substitute a miniredis-backed
// client without changing call sites.
type Mirror struct {
	rdb redis.Cmdable
}

func New(rdb redis.Cmdable) *Mirror {
	return &Mirror{rdb: rdb}
}

func setKey(role, side string) string {
	return fmt.Sprintf("%s_%s", role, side)
}

// SyncSet replaces the mirrored sorted set for one (role, side) pair
// with the given members, scored by fixed-point price, in one
// transaction pipeline.
func (m *Mirror) SyncSet(ctx context.Context, role, side string, members map[string]int64) error {
	key := setKey(role, side)
	pipe := m.rdb.TxPipeline()
	pipe.Del(ctx, key)
	for id, score := range members {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: id})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: sync set %s: %w", key, err)
	}
	return nil
}

// AddMember adds or moves a single member — the incremental path used
// outside full resyncs.
func (m *Mirror) AddMember(ctx context.Context, role, side, id string, score int64) error {
	key := setKey(role, side)
	if err := m.rdb.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: id}).Err(); err != nil {
		return fmt.Errorf("cache: zadd %s: %w", key, err)
	}
	return nil
}

func (m *Mirror) RemoveMember(ctx context.Context, role, side, id string) error {
	key := setKey(role, side)
	if err := m.rdb.ZRem(ctx, key, id).Err(); err != nil {
		return fmt.Errorf("cache: zrem %s: %w", key, err)
	}
	return nil
}

// Members returns every (id, score) pair in the set, scanned via
// ZSCAN as original_source's order_book() does, rather than
// ZRANGEWITHSCORES, to bound memory on very large sets.
func (m *Mirror) Members(ctx context.Context, role, side string) (map[string]int64, error) {
	key := setKey(role, side)
	out := make(map[string]int64)
	var cursor uint64
	for {
		keys, next, err := m.rdb.ZScan(ctx, key, cursor, "", 0).Result()
		if err != nil {
			return nil, fmt.Errorf("cache: zscan %s: %w", key, err)
		}
		for i := 0; i+1 < len(keys); i += 2 {
			var score float64
			if _, err := fmt.Sscanf(keys[i+1], "%f", &score); err != nil {
				continue
			}
			out[keys[i]] = int64(score)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// RecordTrade pushes a trade into the "recent_orders" sorted set
// scored by epoch-millis, matching original_source's recent_orders().
func (m *Mirror) RecordTrade(ctx context.Context, t domain.Trade) error {
	score := float64(t.Timestamp.UnixMilli())
	member := fmt.Sprintf("%s|%s|%d", t.OrderUUID, t.PositionType, t.Price)
	if err := m.rdb.ZAdd(ctx, recentTradesKey, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("cache: record trade: %w", err)
	}
	return nil
}

// RecentTrades returns trades from the last window, capped at limit,
// matching original_source's RECENT_ORDER_LIMIT-bounded 24h query.
// No cap beyond limit is applied here; the 500-entry ring (P6) lives
// in internal/materialize.
func (m *Mirror) RecentTrades(ctx context.Context, window time.Duration, limit int64) ([]string, error) {
	min := fmt.Sprintf("%d", time.Now().Add(-window).UnixMilli())
	res, err := m.rdb.ZRevRangeByScore(ctx, recentTradesKey, &redis.ZRangeBy{
		Min:   min,
		Max:   "+inf",
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: recent trades: %w", err)
	}
	return res, nil
}
