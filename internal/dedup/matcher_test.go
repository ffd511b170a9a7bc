package dedup

import (
    "context"
    "testing"
    "time"

    sqlmock "github.com/DATA-DOG/go-sqlmock"
    "github.com/kargodata/recherche-orchestrator/internal/models"
    "github.com/stretchr/testify/require"
)

func TestMatcher_InsertsNewCompanyWhenNoMatch(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    mock.ExpectBegin()
    tx, err := db.Begin()
    require.NoError(t, err)

    raw := models.RawResult{
        Name:       "Cafe Sonnenschein",
        Source:     "google_places",
        ExternalID: "place-1",
        Lat:        52.52,
        Lng:        13.40,
    }

    mock.ExpectQuery(`SELECT id, name, address, plz, city, phone, website, email, lat, lng, metadata, created_at, updated_at\s+FROM companies\s+WHERE JSON_UNQUOTE`).
        WithArgs(raw.Source, raw.ExternalID).
        WillReturnRows(sqlmock.NewRows([]string{
            "id", "name", "address", "plz", "city", "phone", "website", "email", "lat", "lng", "metadata", "created_at", "updated_at",
        }))

    // No website or phone, but coordinates are set, so the geo+name
    // signal is still consulted before a new company is inserted.
    mock.ExpectQuery(`FROM companies\s+WHERE lat BETWEEN \? AND \? AND lng BETWEEN \? AND \?`).
        WillReturnRows(sqlmock.NewRows([]string{
            "id", "name", "address", "plz", "city", "phone", "website", "email", "lat", "lng", "metadata", "created_at", "updated_at",
        }))

    mock.ExpectExec(`INSERT INTO companies`).
        WillReturnResult(sqlmock.NewResult(1, 1))

    matcher := NewMatcher(tx)
    counts, err := matcher.ProcessOrder(context.Background(), []models.RawResult{raw})
    require.NoError(t, err)
    require.Equal(t, 1, counts.New)
    require.Equal(t, 0, counts.Duplicate)
    require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatcher_MatchesExistingByExternalID(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    mock.ExpectBegin()
    tx, err := db.Begin()
    require.NoError(t, err)

    raw := models.RawResult{
        Name:       "Cafe Sonnenschein",
        Source:     "google_places",
        ExternalID: "place-1",
        Address:    "Hauptstr. 1",
    }

    now := time.Now()
    rows := sqlmock.NewRows([]string{
        "id", "name", "address", "plz", "city", "phone", "website", "email", "lat", "lng", "metadata", "created_at", "updated_at",
    }).AddRow("company-1", "Cafe Sonnenschein", "", "", "", "", "", "", 52.52, 13.40, []byte(`{}`), now, now)

    mock.ExpectQuery(`SELECT id, name, address, plz, city, phone, website, email, lat, lng, metadata, created_at, updated_at\s+FROM companies\s+WHERE JSON_UNQUOTE`).
        WithArgs(raw.Source, raw.ExternalID).
        WillReturnRows(rows)

    mock.ExpectExec(`UPDATE companies`).
        WillReturnResult(sqlmock.NewResult(0, 1))

    matcher := NewMatcher(tx)
    counts, err := matcher.ProcessOrder(context.Background(), []models.RawResult{raw})
    require.NoError(t, err)
    require.Equal(t, 0, counts.New)
    require.Equal(t, 1, counts.Updated)
    require.NoError(t, mock.ExpectationsWereMet())
}
