package dispatch

import (
    "context"
    "testing"

    sqlmock "github.com/DATA-DOG/go-sqlmock"
    "github.com/kargodata/recherche-orchestrator/internal/models"
    "github.com/stretchr/testify/require"
)

func TestResolveSearchParams_GeoOrt(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    ortID := int64(42)
    mock.ExpectQuery(`SELECT lat, lng FROM geo_ort WHERE id = \?`).
        WithArgs(ortID).
        WillReturnRows(sqlmock.NewRows([]string{"lat", "lng"}).AddRow(52.52, 13.40))

    search, err := resolveSearchParams(context.Background(), db, models.SearchParams{GeoOrtID: &ortID, Freitext: "Bäckerei"})
    require.NoError(t, err)
    require.Equal(t, 52.52, search.Lat)
    require.Equal(t, 13.40, search.Lng)
    require.Equal(t, 3000, search.RadiusM)
    require.Equal(t, "Bäckerei", search.Term)
    require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveSearchParams_KreisPopulationRadius(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    kreisID := int64(7)
    mock.ExpectQuery(`SELECT lat, lng FROM geo_ort`).
        WithArgs(kreisID).
        WillReturnRows(sqlmock.NewRows([]string{"lat", "lng"}).AddRow(48.13, 11.58))
    mock.ExpectQuery(`SELECT einwohner FROM geo_kreis WHERE id = \?`).
        WithArgs(kreisID).
        WillReturnRows(sqlmock.NewRows([]string{"einwohner"}).AddRow(int64(900000)))

    search, err := resolveSearchParams(context.Background(), db, models.SearchParams{GeoKreisID: &kreisID})
    require.NoError(t, err)
    require.Equal(t, 48.13, search.Lat)
    require.Equal(t, 50000, search.RadiusM) // clamped to the 50km ceiling
    require.Equal(t, defaultTerm, search.Term)
    require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveSearchParams_FallbackWhenUnresolved(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()

    search, err := resolveSearchParams(context.Background(), db, models.SearchParams{})
    require.NoError(t, err)
    require.Equal(t, defaultLat, search.Lat)
    require.Equal(t, defaultLng, search.Lng)
    require.Equal(t, defaultRadius, search.RadiusM)
    require.Equal(t, defaultTerm, search.Term)
    require.NoError(t, mock.ExpectationsWereMet())
}
