package dedup

import (
    "context"
    "database/sql"

    "github.com/kargodata/recherche-orchestrator/internal/models"
    "github.com/kargodata/recherche-orchestrator/pkg/errors"
)

const (
    geoMatchRadiusM    = 150.0
    nameMatchThreshold = 0.85
    // geoBoxDegrees is the half-width of the bounding-box prefilter, used
    // unchanged for both latitude and longitude. 0.003 degrees is about
    // 330m of latitude and about 200m of longitude at 50°N, so at those
    // latitudes the box encloses the 150m match radius.
    geoBoxDegrees = 0.003
)

// Outcome describes what the matcher did with one raw result.
type Outcome string

const (
    OutcomeNew       Outcome = "new"
    OutcomeDuplicate Outcome = "duplicate"
    OutcomeUpdated   Outcome = "updated"
)

// MatchResult is the per-raw-result outcome of running the matcher.
type MatchResult struct {
    Outcome   Outcome
    CompanyID string
}

// Counts tallies outcomes across an order's full raw-result set.
type Counts struct {
    New        int
    Duplicate  int
    Updated    int
}

func (c *Counts) record(o Outcome) {
    switch o {
    case OutcomeNew:
        c.New++
    case OutcomeDuplicate:
        c.Duplicate++
    case OutcomeUpdated:
        c.Updated++
    }
}

// Matcher runs the priority-chain match (external-id → website → phone →
// geo+name) against the company directory within a transaction.
type Matcher struct {
    tx *sql.Tx
}

func NewMatcher(tx *sql.Tx) *Matcher {
    return &Matcher{tx: tx}
}

// seenInOrder tracks raw results already mapped to a company within the
// current order, implementing the first-seen-wins tie-break: a later raw
// result matching the same company by any signal counts as a duplicate of
// that company, not a second update.
type seenInOrder map[string]bool

// ProcessOrder runs every raw result for an order through the matcher, in
// the order supplied (provider-returned order, per raw result id), and
// returns the aggregate counts.
func (m *Matcher) ProcessOrder(ctx context.Context, results []models.RawResult) (Counts, error) {
    var counts Counts
    seen := make(seenInOrder)

    for _, raw := range results {
        outcome, err := m.matchOne(ctx, raw, seen)
        if err != nil {
            return counts, err
        }
        counts.record(outcome.Outcome)
    }

    return counts, nil
}

func (m *Matcher) matchOne(ctx context.Context, raw models.RawResult, seen seenInOrder) (MatchResult, error) {
    company, err := m.findByExternalID(ctx, raw.Source, raw.ExternalID)
    if err != nil {
        return MatchResult{}, err
    }

    if company == nil && raw.Website != "" {
        company, err = m.findByWebsite(ctx, raw.Website)
        if err != nil {
            return MatchResult{}, err
        }
    }

    if company == nil && raw.Phone != "" {
        company, err = m.findByPhone(ctx, raw.Phone)
        if err != nil {
            return MatchResult{}, err
        }
    }

    if company == nil {
        company, err = m.findByGeoName(ctx, raw)
        if err != nil {
            return MatchResult{}, err
        }
    }

    if company == nil {
        id, err := m.insertCompany(ctx, raw)
        if err != nil {
            return MatchResult{}, err
        }
        seen[id] = true
        return MatchResult{Outcome: OutcomeNew, CompanyID: id}, nil
    }

    if seen[company.ID] {
        // First-seen-wins: a later raw record matching a company already
        // touched by this order counts purely as a duplicate.
        return MatchResult{Outcome: OutcomeDuplicate, CompanyID: company.ID}, nil
    }
    seen[company.ID] = true

    updated, err := m.mergeIntoCompany(ctx, company, raw)
    if err != nil {
        return MatchResult{}, err
    }
    if updated {
        return MatchResult{Outcome: OutcomeUpdated, CompanyID: company.ID}, nil
    }
    return MatchResult{Outcome: OutcomeDuplicate, CompanyID: company.ID}, nil
}

func (m *Matcher) findByExternalID(ctx context.Context, source, externalID string) (*models.Company, error) {
    if externalID == "" {
        return nil, nil
    }
    row := m.tx.QueryRowContext(ctx, `
        SELECT id, name, address, plz, city, phone, website, email, lat, lng, metadata, created_at, updated_at
        FROM companies
        WHERE JSON_UNQUOTE(JSON_EXTRACT(metadata, CONCAT('$."', ?, '".external_id'))) = ?
        LIMIT 1`, source, externalID)
    return scanCompany(row)
}

func (m *Matcher) findByWebsite(ctx context.Context, website string) (*models.Company, error) {
    normalized := NormalizeWebsite(website)
    if normalized == "" {
        return nil, nil
    }
    rows, err := m.tx.QueryContext(ctx, `
        SELECT id, name, address, plz, city, phone, website, email, lat, lng, metadata, created_at, updated_at
        FROM companies
        WHERE website IS NOT NULL AND website LIKE ?`, "%"+normalized+"%")
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed to query companies by website")
    }
    defer rows.Close()

    for rows.Next() {
        c, err := scanCompanyRows(rows)
        if err != nil {
            return nil, err
        }
        if NormalizeWebsite(c.Website) == normalized {
            return c, nil
        }
    }
    return nil, nil
}

func (m *Matcher) findByPhone(ctx context.Context, phone string) (*models.Company, error) {
    normalized := NormalizePhone(phone)
    if normalized == "" {
        return nil, nil
    }
    rows, err := m.tx.QueryContext(ctx, `
        SELECT id, name, address, plz, city, phone, website, email, lat, lng, metadata, created_at, updated_at
        FROM companies
        WHERE phone IS NOT NULL AND phone != ''`)
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed to query companies by phone")
    }
    defer rows.Close()

    for rows.Next() {
        c, err := scanCompanyRows(rows)
        if err != nil {
            return nil, err
        }
        if NormalizePhone(c.Phone) == normalized {
            return c, nil
        }
    }
    return nil, nil
}

func (m *Matcher) findByGeoName(ctx context.Context, raw models.RawResult) (*models.Company, error) {
    if raw.Lat == 0 && raw.Lng == 0 {
        return nil, nil
    }
    rows, err := m.tx.QueryContext(ctx, `
        SELECT id, name, address, plz, city, phone, website, email, lat, lng, metadata, created_at, updated_at
        FROM companies
        WHERE lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?`,
        raw.Lat-geoBoxDegrees, raw.Lat+geoBoxDegrees,
        raw.Lng-geoBoxDegrees, raw.Lng+geoBoxDegrees)
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed to query companies by geo box")
    }
    defer rows.Close()

    for rows.Next() {
        c, err := scanCompanyRows(rows)
        if err != nil {
            return nil, err
        }
        if HaversineDistanceM(raw.Lat, raw.Lng, c.Lat, c.Lng) > geoMatchRadiusM {
            continue
        }
        if TokenSetRatio(raw.Name, c.Name) >= nameMatchThreshold {
            return c, nil
        }
    }
    return nil, nil
}

