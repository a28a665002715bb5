package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore wraps a redis client and context for operations.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	// Add OpenTelemetry instrumentation to Redis client
	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// MarkEventSeen records a (viewer, creative, placement) tuple for the given
// event type and reports whether this is its first occurrence within the
// dedup window. A repeat occurrence within the window means the event must
// be treated as non-billable.
func (r *RedisStore) MarkEventSeen(ctx context.Context, eventType, viewerID string, creativeID int, placementID string, window time.Duration) (bool, error) {
	key := fmt.Sprintf("dedup:%s:%s:%d:%s", eventType, viewerID, creativeID, placementID)
	return r.Client.SetNX(ctx, key, 1, window).Result()
}

// IncrementEventCounter increments the daily counter for an event type on a
// campaign. A 48h TTL is applied on first set so counters age out on their
// own.
func (r *RedisStore) IncrementEventCounter(ctx context.Context, campaignID int, eventType string) error {
	key := fmt.Sprintf("events:%s:campaign:%d:%s", eventType, campaignID, time.Now().Format("2006-01-02"))
	val, err := r.Client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if val == 1 {
		r.Client.Expire(ctx, key, 48*time.Hour)
	}
	return nil
}

// AddDailySpend accumulates the daily spend counter for a campaign.
// A 48h TTL is applied on first set.
func (r *RedisStore) AddDailySpend(ctx context.Context, campaignID int, amount float64) error {
	key := fmt.Sprintf("spend:campaign:%d:%s", campaignID, time.Now().Format("2006-01-02"))
	val, err := r.Client.IncrByFloat(ctx, key, amount).Result()
	if err != nil {
		return err
	}
	if val == amount {
		r.Client.Expire(ctx, key, 48*time.Hour)
	}
	return nil
}

// GetDailyCounts returns today's impression and click counters for a campaign.
func (r *RedisStore) GetDailyCounts(ctx context.Context, campaignID int) (int64, int64) {
	day := time.Now().Format("2006-01-02")
	impKey := fmt.Sprintf("events:impression:campaign:%d:%s", campaignID, day)
	clickKey := fmt.Sprintf("events:click:campaign:%d:%s", campaignID, day)
	imps, _ := r.Client.Get(ctx, impKey).Int64()
	clicks, _ := r.Client.Get(ctx, clickKey).Int64()
	return imps, clicks
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
