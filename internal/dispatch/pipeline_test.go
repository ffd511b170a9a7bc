package dispatch

import (
    "context"
    "testing"

    sqlmock "github.com/DATA-DOG/go-sqlmock"
    "github.com/kargodata/recherche-orchestrator/internal/models"
    "github.com/kargodata/recherche-orchestrator/internal/provider"
    "github.com/stretchr/testify/require"
)

func TestToModelRawResult_CopiesAllFields(t *testing.T) {
    r := provider.RawResult{
        Name:       "Cafe Linden",
        Source:     provider.GooglePlacesName,
        ExternalID: "place-9",
        Website:    "https://linden.de",
        Lat:        50.1,
        Lng:        8.6,
        RawPayload: models.JSON{"rating": 4.5},
    }

    mapped := toModelRawResult("order-1", r)
    require.Equal(t, "order-1", mapped.OrderID)
    require.Equal(t, r.Name, mapped.Name)
    require.Equal(t, r.Source, mapped.Source)
    require.Equal(t, r.ExternalID, mapped.ExternalID)
    require.Equal(t, r.Website, mapped.Website)
    require.NotEmpty(t, mapped.ID)
}

func TestLoadPartnerRateCard_ReadsColumns(t *testing.T) {
    mockDB, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer mockDB.Close()

    mock.ExpectBegin()
    tx, err := mockDB.Begin()
    require.NoError(t, err)

    mock.ExpectQuery(`SELECT base_fee_eur, per_result_standard, per_result_premium, per_result_komplett`).
        WithArgs("partner-1").
        WillReturnRows(sqlmock.NewRows([]string{
            "base_fee_eur", "per_result_standard", "per_result_premium", "per_result_komplett",
        }).AddRow(0.50, 0.05, 0.12, 0.18))

    rc, err := loadPartnerRateCard(context.Background(), tx, "partner-1")
    require.NoError(t, err)
    require.Equal(t, models.DefaultRateCard(), rc)
    require.NoError(t, mock.ExpectationsWereMet())
}
