package provider

import (
    "context"
    "sync"

    "github.com/kargodata/recherche-orchestrator/internal/models"
    "github.com/kargodata/recherche-orchestrator/pkg/errors"
    "github.com/kargodata/recherche-orchestrator/pkg/logger"
)

// tierDrivers fixes which drivers back each quality tier, and in what
// order they run. Komplett runs both, Google Places first since it
// carries the richer field set when a dedup match is made later.
var tierDrivers = map[models.QualityTier][]string{
    models.TierStandard: {DataForSeoName},
    models.TierPremium:  {GooglePlacesName},
    models.TierKomplett: {GooglePlacesName, DataForSeoName},
}

// Registry maps quality tiers to the ordered driver set that services them.
type Registry struct {
    mu      sync.RWMutex
    drivers map[string]Driver
}

// NewRegistry returns an empty registry; call Register for each driver.
func NewRegistry() *Registry {
    return &Registry{drivers: make(map[string]Driver)}
}

// Register adds or replaces a driver by name.
func (r *Registry) Register(d Driver) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.drivers[d.Name()] = d
    logger.WithField("driver", d.Name()).Info("Registered search driver")
}

// DriversForTier returns the configured drivers backing a quality tier, in
// the fixed order the tier requires. A driver that reports itself as not
// configured is silently skipped rather than returned; if none remain,
// ErrProviderNotConfigured is returned so the caller can fail the order
// without attempting a request guaranteed to be empty.
func (r *Registry) DriversForTier(ctx context.Context, tier models.QualityTier) ([]Driver, error) {
    names, ok := tierDrivers[tier]
    if !ok {
        return nil, errors.New(errors.ErrUnknownTier, "unknown quality tier: "+string(tier))
    }

    r.mu.RLock()
    defer r.mu.RUnlock()

    var out []Driver
    for _, name := range names {
        d, ok := r.drivers[name]
        if !ok {
            logger.WithContext(ctx).WithField("driver", name).WithField("tier", string(tier)).
                Warn("Driver not registered for tier")
            continue
        }
        if !d.Configured(ctx) {
            logger.WithContext(ctx).WithField("driver", name).Warn("Driver not configured, skipping")
            continue
        }
        out = append(out, d)
    }

    if len(out) == 0 {
        return nil, errors.New(errors.ErrProviderNotConfigured, "no configured driver available for tier "+string(tier))
    }
    return out, nil
}

// Any reports whether at least one registered driver is currently
// configured, across all tiers. The dispatch loop uses this to decide
// whether to poll for work at all or back off.
func (r *Registry) Any(ctx context.Context) bool {
    r.mu.RLock()
    defer r.mu.RUnlock()
    for _, d := range r.drivers {
        if d.Configured(ctx) {
            return true
        }
    }
    return false
}
