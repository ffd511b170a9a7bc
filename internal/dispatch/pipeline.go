package dispatch

import (
    "context"
    "database/sql"
    "net/http"
    "time"

    "github.com/google/uuid"
    "github.com/kargodata/recherche-orchestrator/internal/billing"
    "github.com/kargodata/recherche-orchestrator/internal/db"
    "github.com/kargodata/recherche-orchestrator/internal/dedup"
    "github.com/kargodata/recherche-orchestrator/internal/models"
    "github.com/kargodata/recherche-orchestrator/internal/provider"
    "github.com/kargodata/recherche-orchestrator/pkg/errors"
    "github.com/kargodata/recherche-orchestrator/pkg/logger"
)

// runOrder executes steps a-h against a leased order: resolve search
// parameters, run every configured provider for the order's tier, persist
// the raw results, deduplicate them against the company directory, settle
// the actual cost against the partner's credit ledger, and mark the order
// completed. Everything after the (read-only) provider calls happens in a
// single transaction so a mid-pipeline failure leaves no partial state.
func runOrder(ctx context.Context, database *db.DB, registry *provider.Registry, metrics MetricsRecorder, order *models.Order) error {
    log := logger.WithContext(ctx).WithField("order_id", order.ID)

    search, err := resolveSearchParams(ctx, database.DB, order.SearchParams)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to resolve search parameters")
    }
    log.WithField("lat", search.Lat).WithField("lng", search.Lng).
        WithField("radius_m", search.RadiusM).WithField("term", search.Term).
        WithField("defaulted_coords", search.DefaultedCoords).
        Info("Resolved search parameters")
    if search.DefaultedCoords {
        log.Warn("No geo reference resolved for order, falling back to default coordinates")
    }

    drivers, err := registry.DriversForTier(ctx, order.QualityTier)
    if err != nil {
        return err
    }
    log.WithField("driver_count", len(drivers)).Info("Running providers for order")

    var rawResults []models.RawResult
    var upstreamUSD float64
    for _, d := range drivers {
        result, searchErr := d.Search(ctx, provider.SearchParams{
            Lat:     search.Lat,
            Lng:     search.Lng,
            RadiusM: search.RadiusM,
            Query:   search.Term,
        })
        if searchErr != nil {
            log.WithField("driver", d.Name()).WithField("error", searchErr.Error()).
                Warn("Provider search failed, continuing with remaining providers")
            metrics.IncrementCounter("dispatch_provider_failures", map[string]string{"driver": d.Name()})
            continue
        }
        log.WithField("driver", d.Name()).WithField("result_count", len(result.Results)).
            WithField("upstream_usd", result.UpstreamUSD).Info("Provider returned results")
        upstreamUSD += result.UpstreamUSD
        for _, r := range result.Results {
            rawResults = append(rawResults, toModelRawResult(order.ID, r))
        }
    }

    if len(rawResults) == 0 {
        log.Warn("No results found for order")
    }
    log.WithField("upstream_usd_total", upstreamUSD).Info("Accumulated upstream provider cost for order")

    return database.Transaction(ctx, func(tx *sql.Tx) error {
        if err := insertRawResults(ctx, tx, rawResults); err != nil {
            return err
        }

        matcher := dedup.NewMatcher(tx)
        counts, err := matcher.ProcessOrder(ctx, rawResults)
        if err != nil {
            return err
        }

        rateCard, err := loadPartnerRateCard(ctx, tx, order.PartnerID)
        if err != nil {
            return err
        }
        costCents := billing.CostCents(order.QualityTier, counts.New, rateCard)

        ledger := billing.NewLedger(tx)
        accountID, err := ledger.EnsureAccountForPartner(ctx, order.PartnerID)
        if err != nil {
            return err
        }
        if _, err := ledger.Debit(ctx, accountID, costCents, "order", order.ID, "dispatch-worker", "order settlement"); err != nil {
            return err
        }

        if err := insertUsageRecord(ctx, tx, order, len(rawResults), costCents, upstreamUSD); err != nil {
            return err
        }

        return markOrderCompleted(ctx, tx, order.ID, len(rawResults), counts, costCents)
    })
}

func toModelRawResult(orderID string, r provider.RawResult) models.RawResult {
    return models.RawResult{
        ID:         uuid.New().String(),
        OrderID:    orderID,
        Source:     r.Source,
        ExternalID: r.ExternalID,
        Name:       r.Name,
        Address:    r.Address,
        PLZ:        r.PLZ,
        City:       r.City,
        Phone:      r.Phone,
        Email:      r.Email,
        Website:    r.Website,
        Category:   r.Category,
        Lat:        r.Lat,
        Lng:        r.Lng,
        RawPayload: r.RawPayload,
    }
}

func insertRawResults(ctx context.Context, tx *sql.Tx, results []models.RawResult) error {
    for _, r := range results {
        _, err := tx.ExecContext(ctx, `
            INSERT INTO raw_results (id, order_id, source, external_id, name, address, plz, city, phone, email, website, category, lat, lng, raw_payload)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
            r.ID, r.OrderID, r.Source, r.ExternalID, r.Name, r.Address, r.PLZ, r.City,
            r.Phone, r.Email, r.Website, r.Category, r.Lat, r.Lng, r.RawPayload,
        )
        if err != nil {
            return errors.Wrap(err, errors.ErrDatabase, "failed to persist raw result")
        }
    }
    return nil
}

func loadPartnerRateCard(ctx context.Context, tx *sql.Tx, partnerID string) (models.RateCard, error) {
    var rc models.RateCard
    err := tx.QueryRowContext(ctx, `
        SELECT base_fee_eur, per_result_standard, per_result_premium, per_result_komplett
        FROM partners WHERE id = ?`, partnerID).Scan(
        &rc.BaseFeeEUR, &rc.PerResultStandard, &rc.PerResultPremium, &rc.PerResultKomplett,
    )
    if err == sql.ErrNoRows {
        return models.RateCard{}, errors.New(errors.ErrOrderNotFound, "partner not found").WithContext("partner_id", partnerID)
    }
    if err != nil {
        return models.RateCard{}, errors.Wrap(err, errors.ErrDatabase, "failed to load partner rate card")
    }
    return rc, nil
}

// insertUsageRecord logs the order's dispatch as an API usage row, carrying
// the upstream provider cost (never billed to the partner directly) inside
// parameters so it remains queryable without overloading cost_cents, which
// is the partner-facing amount settled against the credit ledger.
func insertUsageRecord(ctx context.Context, tx *sql.Tx, order *models.Order, resultCount int, costCents int64, upstreamUSD float64) error {
    _, err := tx.ExecContext(ctx, `
        INSERT INTO usage_records (partner_id, endpoint, method, parameters, status_code, result_count, cost_cents, response_time_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
        order.PartnerID, "dispatch.order", "DISPATCH",
        models.JSON{"order_id": order.ID, "upstream_usd": upstreamUSD},
        http.StatusOK, resultCount, costCents, 0,
    )
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to persist usage record")
    }
    return nil
}

func markOrderCompleted(ctx context.Context, tx *sql.Tx, orderID string, rawCount int, counts dedup.Counts, costCents int64) error {
    _, err := tx.ExecContext(ctx, `
        UPDATE orders
        SET status = ?, raw_count = ?, new_count = ?, duplicate_count = ?, updated_count = ?,
            actual_cost_cents = ?, completed_at = ?, updated_at = NOW()
        WHERE id = ?`,
        models.OrderStatusCompleted, rawCount, counts.New, counts.Duplicate, counts.Updated,
        costCents, time.Now(), orderID,
    )
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to mark order completed")
    }
    return nil
}
