package ratelimit

import (
    "testing"

    "github.com/kargodata/recherche-orchestrator/internal/models"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestCheckAndIncrement_AllowsUnderLimit(t *testing.T) {
    l := NewLimiter()
    limits := models.RateLimits{PerMinute: 2, PerHour: 0, PerDay: 0}

    res, err := l.CheckAndIncrement("partner-1", limits)
    require.NoError(t, err)
    assert.Equal(t, 1, res["minute"].Remaining)

    res, err = l.CheckAndIncrement("partner-1", limits)
    require.NoError(t, err)
    assert.Equal(t, 0, res["minute"].Remaining)
}

func TestCheckAndIncrement_RejectsOverLimit(t *testing.T) {
    l := NewLimiter()
    limits := models.RateLimits{PerMinute: 1}

    _, err := l.CheckAndIncrement("partner-1", limits)
    require.NoError(t, err)

    _, err = l.CheckAndIncrement("partner-1", limits)
    require.Error(t, err)

    var limitErr *LimitError
    require.ErrorAs(t, err, &limitErr)
    assert.Equal(t, "minute", limitErr.Window)
    assert.GreaterOrEqual(t, limitErr.RetryAfterSeconds, 1)
}

func TestCheckAndIncrement_ZeroMeansUnlimited(t *testing.T) {
    l := NewLimiter()
    limits := models.RateLimits{PerMinute: 0, PerHour: 0, PerDay: 0}

    res, err := l.CheckAndIncrement("partner-1", limits)
    require.NoError(t, err)
    assert.Empty(t, res)
}

func TestCheckAndIncrement_IndependentPartners(t *testing.T) {
    l := NewLimiter()
    limits := models.RateLimits{PerMinute: 1}

    _, err := l.CheckAndIncrement("partner-a", limits)
    require.NoError(t, err)

    _, err = l.CheckAndIncrement("partner-b", limits)
    require.NoError(t, err)
}
