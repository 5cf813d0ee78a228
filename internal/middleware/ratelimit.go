package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// レート制限のバケット名。
const (
	BucketGeneral      = "general"
	BucketSubscription = "subscription"
)

// Limiter はキー単位のレート制限を判定する。
// 拒否した場合は再試行までの推定待ち時間を返す。
type Limiter interface {
	Allow(ctx context.Context, bucket, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralPerMinute      int           // API全般の上限（req/min）
	SubscriptionPerMinute int           // プラン選択の上限（req/min）
	CleanupInterval       time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min、プラン選択 10 req/min。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralPerMinute:      120,
		SubscriptionPerMinute: 10,
		CleanupInterval:       5 * time.Minute,
	}
}

// perMinute はバケットの上限値を返す。
func (c RateLimiterConfig) perMinute(bucket string) int {
	if bucket == BucketSubscription {
		return c.SubscriptionPerMinute
	}
	return c.GeneralPerMinute
}

// keyLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はプロセス内のトークンバケットでレート制限を行う。
// REDIS_URL未設定時に使用する。
type RateLimiter struct {
	config RateLimiterConfig

	mu       sync.Mutex
	limiters map[string]map[string]*keyLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		limiters: make(map[string]map[string]*keyLimiter),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// Allow はトークンを1つ消費できるかを判定する。
func (rl *RateLimiter) Allow(_ context.Context, bucket, key string) (bool, time.Duration, error) {
	limit := rate.Limit(float64(rl.config.perMinute(bucket)) / 60.0)
	limiter := rl.getOrCreate(bucket, key, limit)
	if limiter.Allow() {
		return true, 0, nil
	}
	return false, time.Duration(float64(time.Second) / float64(limit)), nil
}

// LimiterCount は指定バケットで管理されているエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) LimiterCount(bucket string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters[bucket])
}

// getOrCreate はキーのリミッターを取得または作成する。
func (rl *RateLimiter) getOrCreate(bucket, key string, limit rate.Limit) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	keys, ok := rl.limiters[bucket]
	if !ok {
		keys = make(map[string]*keyLimiter)
		rl.limiters[bucket] = keys
	}

	if kl, exists := keys[key]; exists {
		kl.lastAccess = time.Now()
		return kl.limiter
	}

	limiter := rate.NewLimiter(limit, rl.config.perMinute(bucket))
	keys[key] = &keyLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}
	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for _, keys := range rl.limiters {
		for key, kl := range keys {
			if now.Sub(kl.lastAccess) > ttl {
				delete(keys, key)
			}
		}
	}
}

// NewRateLimitMiddleware は指定バケットのレート制限ミドルウェアを返す。
// 認証済みならユーザーID、未認証ならクライアントIPをキーにする。
// リミッターのエラー時はリクエストを通し、警告ログのみ出力する。
func NewRateLimitMiddleware(limiter Limiter, bucket string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)

			allowed, retryAfter, err := limiter.Allow(r.Context(), bucket, key)
			if err != nil {
				slog.Warn("rate limiter unavailable",
					slog.String("limit_type", bucket),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				writeRateLimitResponse(w, retryAfter)
				slog.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.String("limit_type", bucket),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitKey はレート制限のキーを決める。
func rateLimitKey(r *http.Request) string {
	if userID, err := UserIDFromContext(r.Context()); err == nil {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーには再試行までの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	retryAfterSec := int(math.Ceil(retryAfter.Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "rate_limit_exceeded",
		"message":  "Too many requests. Please try again later.",
		"category": "system",
		"action":   "Please wait and retry after the specified time.",
	})
}
