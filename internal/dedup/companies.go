package dedup

import (
    "context"
    "database/sql"

    "github.com/google/uuid"
    "github.com/kargodata/recherche-orchestrator/internal/models"
    "github.com/kargodata/recherche-orchestrator/pkg/errors"
)

type rowScanner interface {
    Scan(dest ...interface{}) error
}

func scanCompanyInto(c *models.Company, scanner rowScanner) error {
    var metadataJSON models.JSON
    err := scanner.Scan(
        &c.ID, &c.Name, &c.Address, &c.PLZ, &c.City, &c.Phone, &c.Website, &c.Email,
        &c.Lat, &c.Lng, &metadataJSON, &c.CreatedAt, &c.UpdatedAt,
    )
    if err != nil {
        return err
    }
    if metadataJSON == nil {
        metadataJSON = models.JSON{}
    }
    c.Metadata = metadataJSON
    return nil
}

func scanCompany(row *sql.Row) (*models.Company, error) {
    var c models.Company
    err := scanCompanyInto(&c, row)
    if err == sql.ErrNoRows {
        return nil, nil
    }
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed to scan company")
    }
    return &c, nil
}

func scanCompanyRows(rows *sql.Rows) (*models.Company, error) {
    var c models.Company
    if err := scanCompanyInto(&c, rows); err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed to scan company row")
    }
    return &c, nil
}

// insertCompany creates a new canonical company from a raw result, seeding
// its metadata with the single per-source block this raw result came from.
func (m *Matcher) insertCompany(ctx context.Context, raw models.RawResult) (string, error) {
    id := uuid.New().String()
    metadata := models.JSON{
        raw.Source: models.SourceMetadata{
            ExternalID: raw.ExternalID,
            RawFields:  map[string]interface{}(raw.RawPayload),
        },
    }

    _, err := m.tx.ExecContext(ctx, `
        INSERT INTO companies (id, name, address, plz, city, phone, website, email, lat, lng, metadata)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
        id, raw.Name, raw.Address, raw.PLZ, raw.City, raw.Phone, raw.Website, raw.Email,
        raw.Lat, raw.Lng, metadata,
    )
    if err != nil {
        return "", errors.Wrap(err, errors.ErrDatabase, "failed to insert company")
    }
    return id, nil
}

// mergeIntoCompany applies the if-empty update rule to a matched company's
// core fields and unconditionally (over)writes its per-source metadata
// block for this raw result's source, on every match regardless of whether
// any core field changed. Returns true if a core field actually changed,
// which distinguishes an "updated" outcome from a plain "duplicate" — the
// metadata block refresh is not itself reflected in that outcome.
func (m *Matcher) mergeIntoCompany(ctx context.Context, company *models.Company, raw models.RawResult) (bool, error) {
    changed := false

    fillIfEmpty := func(existing *string, candidate string) {
        if *existing == "" && candidate != "" {
            *existing = candidate
            changed = true
        }
    }

    fillIfEmpty(&company.Address, raw.Address)
    fillIfEmpty(&company.PLZ, raw.PLZ)
    fillIfEmpty(&company.City, raw.City)
    fillIfEmpty(&company.Phone, raw.Phone)
    fillIfEmpty(&company.Website, raw.Website)
    fillIfEmpty(&company.Email, raw.Email)

    if company.Metadata == nil {
        company.Metadata = models.JSON{}
    }
    company.Metadata[raw.Source] = models.SourceMetadata{
        ExternalID: raw.ExternalID,
        RawFields:  map[string]interface{}(raw.RawPayload),
    }

    _, err := m.tx.ExecContext(ctx, `
        UPDATE companies
        SET address = ?, plz = ?, city = ?, phone = ?, website = ?, email = ?, metadata = ?, updated_at = NOW()
        WHERE id = ?`,
        company.Address, company.PLZ, company.City, company.Phone, company.Website, company.Email,
        company.Metadata, company.ID,
    )
    if err != nil {
        return false, errors.Wrap(err, errors.ErrDatabase, "failed to update company")
    }
    return changed, nil
}
