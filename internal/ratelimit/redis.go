package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis shares request logs across replicas as one sorted set per key,
// scored by request time in microseconds.
type Redis struct {
	client *redis.Client
	prefix string
	now    func() time.Time
	seq    atomic.Uint64
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix, now: time.Now}
}

func (r *Redis) Allow(ctx context.Context, key string, policy Policy) (Decision, error) {
	now := r.now()
	full := r.prefix + policy.Name + ":" + key
	nowScore := now.UnixMicro()
	cutoff := now.Add(-policy.Window).UnixMicro()
	member := fmt.Sprintf("%d-%d", nowScore, r.seq.Add(1))

	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, full, "-inf", fmt.Sprintf("%d", cutoff))
		pipe.ZAdd(ctx, full, &redis.Z{Score: float64(nowScore), Member: member})
		card = pipe.ZCard(ctx, full)
		pipe.PExpire(ctx, full, policy.Window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("record request: %w", err)
	}

	count := int(card.Val())
	if count <= policy.Limit {
		return Decision{Allowed: true, Remaining: policy.Limit - count}, nil
	}

	// Rejected requests do not occupy the window.
	if err := r.client.ZRem(ctx, full, member).Err(); err != nil {
		return Decision{}, fmt.Errorf("drop rejected request: %w", err)
	}

	retry := policy.Window
	oldest, err := r.client.ZRangeWithScores(ctx, full, 0, 0).Result()
	if err == nil && len(oldest) == 1 {
		expires := time.UnixMicro(int64(oldest[0].Score)).Add(policy.Window)
		retry = expires.Sub(now)
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}

var _ Limiter = (*Redis)(nil)
