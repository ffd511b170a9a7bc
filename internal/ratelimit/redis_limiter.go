package ratelimit

import (
    "context"
    "fmt"

    "github.com/kargodata/recherche-orchestrator/internal/db"
    "github.com/kargodata/recherche-orchestrator/internal/models"
)

// RedisLimiter is the multi-process replacement for Limiter: counters live
// in Redis via INCR+EXPIRE instead of an in-process map, so every worker
// shares the same window state.
type RedisLimiter struct {
    cache *db.Cache
}

func NewRedisLimiter(cache *db.Cache) *RedisLimiter {
    return &RedisLimiter{cache: cache}
}

// CheckAndIncrement mirrors Limiter.CheckAndIncrement's contract using
// Redis-backed atomic counters. A window whose limit is exceeded aborts
// the call with a *LimitError; windows already incremented before the
// failing one are NOT rolled back, since INCR has no undo and the
// counters self-expire — this mirrors the in-memory limiter's
// best-effort semantics under concurrent callers.
func (l *RedisLimiter) CheckAndIncrement(ctx context.Context, partnerID string, limits models.RateLimits) (map[string]WindowResult, error) {
    limitByWindow := map[string]int{
        "minute": limits.PerMinute,
        "hour":   limits.PerHour,
        "day":    limits.PerDay,
    }

    result := make(map[string]WindowResult)

    for window, duration := range windowDurations {
        limit := limitByWindow[window]
        if limit <= 0 {
            continue
        }

        key := fmt.Sprintf("ratelimit:%s:%s", partnerID, window)
        count, err := l.cache.IncrWithExpiry(ctx, key, duration)
        if err != nil {
            return nil, err
        }

        if int(count) > limit {
            ttl, ttlErr := l.cache.TTL(ctx, key)
            retryAfter := 1
            if ttlErr == nil && ttl.Seconds() > 1 {
                retryAfter = int(ttl.Seconds())
            }
            return nil, &LimitError{
                PartnerID:         partnerID,
                Window:            window,
                Limit:             limit,
                RetryAfterSeconds: retryAfter,
            }
        }

        result[window] = WindowResult{
            Limit:     limit,
            Remaining: limit - int(count),
        }
    }

    return result, nil
}
