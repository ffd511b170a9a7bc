// Package dispatch implements the background job dispatch engine: it polls
// the orders table for confirmed work, leases one order at a time across
// any number of worker processes, and runs it through the search/dedup/
// billing pipeline.
package dispatch

import (
    "context"
    "database/sql"
    "sync/atomic"
    "time"

    "github.com/kargodata/recherche-orchestrator/internal/config"
    "github.com/kargodata/recherche-orchestrator/internal/db"
    "github.com/kargodata/recherche-orchestrator/internal/models"
    "github.com/kargodata/recherche-orchestrator/internal/provider"
    "github.com/kargodata/recherche-orchestrator/pkg/errors"
    "github.com/kargodata/recherche-orchestrator/pkg/logger"
)

// MetricsRecorder is the subset of the metrics sink the dispatch engine
// needs. Satisfied by *metrics.PrometheusMetrics.
type MetricsRecorder interface {
    IncrementCounter(name string, labels map[string]string)
    ObserveHistogram(name string, value float64, labels map[string]string)
    SetGauge(name string, value float64, labels map[string]string)
}

// Worker runs the poll/lease/process loop until Stop is called or the
// context is cancelled.
type Worker struct {
    database *db.DB
    metrics  MetricsRecorder
    cfg      config.DispatchConfig
    provider config.ProviderConfig

    shuttingDown int32
}

func NewWorker(database *db.DB, metrics MetricsRecorder, cfg config.DispatchConfig, providerCfg config.ProviderConfig) *Worker {
    return &Worker{database: database, metrics: metrics, cfg: cfg, provider: providerCfg}
}

// Stop signals the loop to finish its in-flight order and exit without
// leasing a new one. Safe to call from a signal handler.
func (w *Worker) Stop() {
    atomic.StoreInt32(&w.shuttingDown, 1)
}

func (w *Worker) stopping() bool {
    return atomic.LoadInt32(&w.shuttingDown) == 1
}

// Run drives the main loop. With cfg.Once set it processes at most one
// order (or discovers there is none) and returns.
func (w *Worker) Run(ctx context.Context) error {
    logger.WithContext(ctx).WithField("poll_interval", w.cfg.PollInterval).
        WithField("once", w.cfg.Once).Info("Dispatch worker started")

    for !w.stopping() {
        select {
        case <-ctx.Done():
            logger.Info("Dispatch worker stopping: context cancelled")
            return nil
        default:
        }

        registry := buildRegistry(w.database.DB, w.provider.RequestTimeout)
        if !registry.Any(ctx) {
            logger.Warn("No providers configured; set recherche.google_places_api_key / recherche.dataforseo_login+password via settings")
            if w.cfg.Once {
                return nil
            }
            if w.sleepOrStop(ctx, time.Duration(w.cfg.IdleSleepFactor)*w.cfg.PollInterval) {
                return nil
            }
            continue
        }

        order, err := w.leaseNextOrder(ctx)
        if err != nil {
            logger.WithError(err).Error("Failed to lease next order")
            if w.cfg.Once {
                return err
            }
            if w.sleepOrStop(ctx, w.cfg.PollInterval) {
                return nil
            }
            continue
        }

        if order == nil {
            if w.cfg.Once {
                logger.Info("No orders to process")
                return nil
            }
            if w.sleepOrStop(ctx, w.cfg.PollInterval) {
                return nil
            }
            continue
        }

        w.processLeased(ctx, registry, order)

        if w.cfg.Once {
            return nil
        }
    }

    logger.Info("Dispatch worker stopped")
    return nil
}

// sleepOrStop waits for d, waking early if Stop is called or ctx is
// cancelled. Returns true if the caller should exit the loop entirely.
func (w *Worker) sleepOrStop(ctx context.Context, d time.Duration) bool {
    const checkInterval = 250 * time.Millisecond

    deadline := time.Now().Add(d)
    ticker := time.NewTicker(checkInterval)
    defer ticker.Stop()

    for {
        select {
        case <-ctx.Done():
            return true
        case <-ticker.C:
            if w.stopping() {
                return true
            }
            if time.Now().After(deadline) {
                return false
            }
        }
    }
}

// leaseNextOrder atomically picks up the oldest CONFIRMED order with
// attempts remaining, marking it PROCESSING and incrementing attempts in
// the same transaction. Returns (nil, nil) when no order is eligible.
func (w *Worker) leaseNextOrder(ctx context.Context) (*models.Order, error) {
    var leased *models.Order

    err := w.database.Transaction(ctx, func(tx *sql.Tx) error {
        row := tx.QueryRowContext(ctx, `
            SELECT id, partner_id, quality_tier, search_params, status, attempts, max_attempts,
                   estimated_cost_cents, actual_cost_cents
            FROM orders
            WHERE status = ? AND attempts < max_attempts
            ORDER BY created_at ASC
            LIMIT 1 FOR UPDATE SKIP LOCKED`, models.OrderStatusConfirmed)

        var o models.Order
        err := row.Scan(&o.ID, &o.PartnerID, &o.QualityTier, &o.SearchParamsJSON, &o.Status,
            &o.Attempts, &o.MaxAttempts, &o.EstimatedCostCents, &o.ActualCostCents)
        if err == sql.ErrNoRows {
            return nil
        }
        if err != nil {
            return errors.Wrap(err, errors.ErrDatabase, "failed to lease order")
        }

        decodeSearchParams(&o)

        if _, err := tx.ExecContext(ctx, `
            UPDATE orders SET status = ?, attempts = attempts + 1, updated_at = NOW() WHERE id = ?`,
            models.OrderStatusProcessing, o.ID); err != nil {
            return errors.Wrap(err, errors.ErrDatabase, "failed to mark order processing")
        }
        o.Status = models.OrderStatusProcessing
        o.Attempts++

        leased = &o
        return nil
    })
    if err != nil {
        return nil, err
    }
    return leased, nil
}

func (w *Worker) processLeased(ctx context.Context, registry *provider.Registry, order *models.Order) {
    log := logger.WithContext(ctx).WithField("order_id", order.ID).WithField("attempt", order.Attempts)
    log.Info("Processing order")

    start := time.Now()
    err := runOrder(ctx, w.database, registry, w.metrics, order)
    duration := time.Since(start)
    w.metrics.ObserveHistogram("dispatch_pipeline_duration", duration.Seconds(), map[string]string{"tier": string(order.QualityTier)})

    if err != nil {
        log.WithError(err).Error("Order processing failed")
        w.metrics.IncrementCounter("dispatch_orders_failed", map[string]string{"tier": string(order.QualityTier)})
        markOrderFailed(ctx, w.database, order.ID, err)
        return
    }

    log.WithField("duration_s", duration.Seconds()).Info("Order completed")
    w.metrics.IncrementCounter("dispatch_orders_processed", map[string]string{"tier": string(order.QualityTier)})
}

// markOrderFailed records the failure in a transaction separate from the
// one that ran (and rolled back within) the pipeline, mirroring the
// original worker's dedicated error_session. If even this update fails the
// order is left PROCESSING; since leaseNextOrder only selects CONFIRMED
// orders, it is not leased again until an operator changes its status,
// same as an order left behind by a crashed worker.
func markOrderFailed(ctx context.Context, database *db.DB, orderID string, cause error) {
    message := cause.Error()
    if len(message) > 1000 {
        message = message[:1000]
    }

    err := database.Transaction(ctx, func(tx *sql.Tx) error {
        _, err := tx.ExecContext(ctx, `
            UPDATE orders SET status = ?, error_message = ?, updated_at = NOW() WHERE id = ?`,
            models.OrderStatusFailed, message, orderID)
        return err
    })
    if err != nil {
        logger.WithContext(ctx).WithField("order_id", orderID).WithField("error", err.Error()).
            Error("Failed to record order failure")
    }
}

func decodeSearchParams(o *models.Order) {
    sp := models.SearchParams{}
    if v, ok := o.SearchParamsJSON["geo_ort_id"]; ok && v != nil {
        if f, ok := v.(float64); ok {
            id := int64(f)
            sp.GeoOrtID = &id
        }
    }
    if v, ok := o.SearchParamsJSON["geo_kreis_id"]; ok && v != nil {
        if f, ok := v.(float64); ok {
            id := int64(f)
            sp.GeoKreisID = &id
        }
    }
    if v, ok := o.SearchParamsJSON["plz"]; ok && v != nil {
        if s, ok := v.(string); ok {
            sp.PLZ = s
        }
    }
    if v, ok := o.SearchParamsJSON["google_kategorie_gcid"]; ok && v != nil {
        if s, ok := v.(string); ok {
            sp.CategoryGCID = s
        }
    }
    if v, ok := o.SearchParamsJSON["branche_freitext"]; ok && v != nil {
        if s, ok := v.(string); ok {
            sp.Freitext = s
        }
    }
    o.SearchParams = sp
}

// buildRegistry re-reads provider credentials from the settings table on
// every poll iteration, so an operator updating API keys via the admin
// surface takes effect within one poll interval without a restart.
func buildRegistry(sqlDB *sql.DB, timeout time.Duration) *provider.Registry {
    registry := provider.NewRegistry()
    registry.Register(provider.NewGooglePlacesDriver(sqlDB, timeout))
    registry.Register(provider.NewDataForSeoDriver(sqlDB, timeout))
    return registry
}
