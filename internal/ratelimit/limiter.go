// Package ratelimit implements fixed-window per-partner rate limiting
// across minute/hour/day windows, checked atomically on order intake.
package ratelimit

import (
    "fmt"
    "sync"
    "time"

    "github.com/kargodata/recherche-orchestrator/internal/models"
)

// windowDurations fixes the three tracked windows; a limit of 0 in
// models.RateLimits means unlimited for that window.
var windowDurations = map[string]time.Duration{
    "minute": time.Minute,
    "hour":   time.Hour,
    "day":    24 * time.Hour,
}

// WindowResult reports the outcome for a single window after a successful
// check-and-increment.
type WindowResult struct {
    Limit     int
    Remaining int
    ResetAt   time.Time
}

// LimitError is returned when any window's limit is exceeded. It carries
// enough detail for an HTTP 429 surface (X-RateLimit-* headers, Retry-After).
type LimitError struct {
    PartnerID         string
    Window            string
    Limit             int
    RetryAfterSeconds int
    ResetAt           time.Time
}

func (e *LimitError) Error() string {
    return fmt.Sprintf("rate limit exceeded for partner %s on %s window (retry after %ds)",
        e.PartnerID, e.Window, e.RetryAfterSeconds)
}

type windowCounter struct {
    count       int
    windowStart time.Time
}

// Limiter is a process-local, mutex-guarded fixed-window rate limiter.
// Each partner/window pair gets an independent counter that resets once
// the window elapses. It is not shared across worker processes; see
// RedisLimiter for the multi-process replacement.
type Limiter struct {
    mu       sync.Mutex
    counters map[string]*windowCounter
}

func NewLimiter() *Limiter {
    return &Limiter{counters: make(map[string]*windowCounter)}
}

// CheckAndIncrement checks every configured window for partnerID and
// increments each counter that is not already over its limit. The first
// window found over limit aborts the whole call with a *LimitError — no
// partial increments are applied for that call's remaining windows.
func (l *Limiter) CheckAndIncrement(partnerID string, limits models.RateLimits) (map[string]WindowResult, error) {
    l.mu.Lock()
    defer l.mu.Unlock()

    now := time.Now()
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

        key := partnerID + ":" + window
        counter := l.counters[key]

        if counter == nil || now.Sub(counter.windowStart) >= duration {
            l.counters[key] = &windowCounter{count: 1, windowStart: now}
            result[window] = WindowResult{
                Limit:     limit,
                Remaining: limit - 1,
                ResetAt:   now.Add(duration),
            }
            continue
        }

        if counter.count >= limit {
            resetAt := counter.windowStart.Add(duration)
            retryAfter := int(resetAt.Sub(now).Seconds())
            if retryAfter < 1 {
                retryAfter = 1
            }
            return nil, &LimitError{
                PartnerID:         partnerID,
                Window:            window,
                Limit:             limit,
                RetryAfterSeconds: retryAfter,
                ResetAt:           resetAt,
            }
        }

        counter.count++
        result[window] = WindowResult{
            Limit:     limit,
            Remaining: limit - counter.count,
            ResetAt:   counter.windowStart.Add(duration),
        }
    }

    return result, nil
}
