package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"csgo-arbitrage/internal/config"
	"csgo-arbitrage/internal/models"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// RedisLimiter shares the per-source windows between several daemons that
// poll with the same market accounts. Windows live in redis sorted sets and
// are updated atomically by a Lua script.
type RedisLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
	limits        map[models.Source]Limit
	multiplier    float64
	prefix        string
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

func NewRedisLimiter(rdb *redis.Client, limits map[models.Source]Limit, multiplier float64) *RedisLimiter {
	if multiplier < 1 {
		multiplier = 1
	}
	return &RedisLimiter{
		rdb:           rdb,
		slidingWindow: redis.NewScript(slidingWindowLua),
		limits:        limits,
		multiplier:    multiplier,
		prefix:        "arb:ratelimit:",
	}
}

func (r *RedisLimiter) Admit(ctx context.Context, source models.Source) (time.Duration, error) {
	lim, ok := r.limits[source]
	if !ok || lim.MaxCalls <= 0 || lim.Window <= 0 {
		return 0, nil
	}

	res, err := r.slidingWindow.Run(ctx, r.rdb,
		[]string{r.windowKey(source), r.cooldownKey(source)},
		time.Now().UnixMicro(),
		lim.Window.Microseconds(),
		lim.MaxCalls,
		r.multiplier,
	).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("redis: rate limit admit %s: %w", source, err)
	}
	if len(res) < 2 {
		return 0, fmt.Errorf("redis: rate limit admit %s: unexpected result length %d", source, len(res))
	}
	if res[0] == 1 {
		return 0, nil
	}
	return time.Duration(res[1]) * time.Microsecond, nil
}

func (r *RedisLimiter) Cooldown(ctx context.Context, source models.Source) {
	lim, ok := r.limits[source]
	if !ok {
		return
	}
	ttl := time.Duration(float64(lim.Window) * r.multiplier)
	_ = r.rdb.Set(ctx, r.cooldownKey(source), 1, ttl).Err()
}

// Reset deletes the shared windows. Only meant for tests and manual recovery.
func (r *RedisLimiter) Reset(ctx context.Context) error {
	for src := range r.limits {
		keys := []string{r.windowKey(src), r.windowKey(src) + ":seq", r.cooldownKey(src)}
		if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis: rate limit reset %s: %w", src, err)
		}
	}
	return nil
}

func (r *RedisLimiter) windowKey(source models.Source) string {
	return r.prefix + string(source)
}

func (r *RedisLimiter) cooldownKey(source models.Source) string {
	return r.prefix + string(source) + ":cooldown"
}

var _ Admitter = (*RedisLimiter)(nil)
