package dispatch

import (
    "context"
    "errors"
    "strings"
    "testing"
    "time"

    sqlmock "github.com/DATA-DOG/go-sqlmock"
    "github.com/kargodata/recherche-orchestrator/internal/config"
    "github.com/kargodata/recherche-orchestrator/internal/db"
    "github.com/kargodata/recherche-orchestrator/internal/models"
    "github.com/stretchr/testify/require"
)

func TestDecodeSearchParams_ExtractsKnownKeys(t *testing.T) {
    ortID := float64(5)
    o := &models.Order{
        SearchParamsJSON: models.JSON{
            "geo_ort_id":       ortID,
            "branche_freitext": "Friseur",
        },
    }
    decodeSearchParams(o)

    require.NotNil(t, o.SearchParams.GeoOrtID)
    require.Equal(t, int64(5), *o.SearchParams.GeoOrtID)
    require.Equal(t, "Friseur", o.SearchParams.Freitext)
    require.Nil(t, o.SearchParams.GeoKreisID)
}

func TestMarkOrderFailed_TruncatesMessageTo1000Chars(t *testing.T) {
    mockDB, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer mockDB.Close()

    database := &db.DB{DB: mockDB}

    longMessage := strings.Repeat("x", 2000)

    mock.ExpectBegin()
    mock.ExpectExec(`UPDATE orders SET status = \?, error_message = \?`).
        WithArgs(models.OrderStatusFailed, strings.Repeat("x", 1000), "order-1").
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    markOrderFailed(context.Background(), database, "order-1", errors.New(longMessage))
    require.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaseNextOrder_NoEligibleOrderReturnsNil(t *testing.T) {
    mockDB, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer mockDB.Close()

    database := &db.DB{DB: mockDB}
    worker := NewWorker(database, nil, dispatchCfgForTest(), providerCfgForTest())

    mock.ExpectBegin()
    mock.ExpectQuery(`SELECT id, partner_id, quality_tier, search_params`).
        WillReturnRows(sqlmock.NewRows([]string{
            "id", "partner_id", "quality_tier", "search_params", "status", "attempts",
            "max_attempts", "estimated_cost_cents", "actual_cost_cents",
        }))
    mock.ExpectCommit()

    order, err := worker.leaseNextOrder(context.Background())
    require.NoError(t, err)
    require.Nil(t, order)
    require.NoError(t, mock.ExpectationsWereMet())
}

func dispatchCfgForTest() config.DispatchConfig {
    return config.DispatchConfig{
        PollInterval:    time.Second,
        IdleSleepFactor: 6,
        MaxAttempts:     3,
    }
}

func providerCfgForTest() config.ProviderConfig {
    return config.ProviderConfig{RequestTimeout: 30 * time.Second}
}
