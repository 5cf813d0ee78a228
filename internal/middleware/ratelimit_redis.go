package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter はRedisの固定ウィンドウカウンタでレート制限を行う。
// 複数インスタンスで上限を共有する場合に使用する。
type RedisRateLimiter struct {
	client redis.Cmdable
	prefix string
	config RateLimiterConfig
	window time.Duration
}

// NewRedisRateLimiter は新しいRedisRateLimiterを生成する。
func NewRedisRateLimiter(client redis.Cmdable, prefix string, config RateLimiterConfig) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		prefix: prefix,
		config: config,
		window: time.Minute,
	}
}

// Allow はウィンドウ内のカウントを1つ進め、上限以内かを判定する。
// INCRとEXPIRE NXを同じMULTIで送るため、TTLのないキーも次のリクエストで期限が付く。
func (l *RedisRateLimiter) Allow(ctx context.Context, bucket, key string) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s:%s", l.prefix, bucket, key)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	count := incr.Val()

	if count <= int64(l.config.perMinute(bucket)) {
		return true, 0, nil
	}

	ttl, err := l.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

// compile-time interface check
var (
	_ Limiter = (*RateLimiter)(nil)
	_ Limiter = (*RedisRateLimiter)(nil)
)
