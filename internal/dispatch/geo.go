package dispatch

import (
    "context"
    "database/sql"

    "github.com/kargodata/recherche-orchestrator/internal/models"
)

// defaultLat/defaultLng are the fallback coordinates (in the Ruhr area of
// western Germany) used when an order carries no resolvable geo reference.
const (
    defaultLat    = 51.4
    defaultLng    = 7.0
    defaultRadius = 15000
    defaultTerm   = "Restaurant"
)

// resolvedSearch is the concrete query derived from an order's SearchParams.
// DefaultedCoords reports whether none of the geo_ort_id/geo_kreis_id/plz
// chain resolved, so Lat/Lng/RadiusM fell back to the defaults rather than
// a location the order actually asked for.
type resolvedSearch struct {
    Lat             float64
    Lng             float64
    RadiusM         int
    Term            string
    DefaultedCoords bool
}

// resolveSearchParams turns an order's geo_ort_id/geo_kreis_id/plz priority
// chain into concrete coordinates, radius and free-text query term. Falls
// back to the default coordinates when nothing in the chain resolves. The
// term is the order's free text, else the category's display name, else
// "Restaurant".
func resolveSearchParams(ctx context.Context, db *sql.DB, params models.SearchParams) (resolvedSearch, error) {
    lat, lng := defaultLat, defaultLng
    radius := defaultRadius
    haveCoords := false

    switch {
    case params.GeoOrtID != nil:
        var ortLat, ortLng float64
        err := db.QueryRowContext(ctx, `SELECT lat, lng FROM geo_ort WHERE id = ?`, *params.GeoOrtID).Scan(&ortLat, &ortLng)
        if err == nil {
            lat, lng = ortLat, ortLng
            radius = 3000
            haveCoords = true
        } else if err != sql.ErrNoRows {
            return resolvedSearch{}, err
        }

    case params.GeoKreisID != nil:
        var ortLat, ortLng float64
        err := db.QueryRowContext(ctx, `
            SELECT lat, lng FROM geo_ort
            WHERE kreis_id = ? AND ist_hauptort = 1
            LIMIT 1`, *params.GeoKreisID).Scan(&ortLat, &ortLng)
        if err == nil {
            lat, lng = ortLat, ortLng
            haveCoords = true
        } else if err != sql.ErrNoRows {
            return resolvedSearch{}, err
        }

        var einwohner sql.NullInt64
        err = db.QueryRowContext(ctx, `SELECT einwohner FROM geo_kreis WHERE id = ?`, *params.GeoKreisID).Scan(&einwohner)
        if err != nil && err != sql.ErrNoRows {
            return resolvedSearch{}, err
        }
        if einwohner.Valid {
            radius = clampInt(int(einwohner.Int64/10), 5000, 50000)
        } else {
            radius = 15000
        }

    case params.PLZ != "":
        var ortLat, ortLng float64
        err := db.QueryRowContext(ctx, `SELECT lat, lng FROM geo_ort WHERE plz = ? LIMIT 1`, params.PLZ).Scan(&ortLat, &ortLng)
        if err == nil {
            lat, lng = ortLat, ortLng
            radius = 5000
            haveCoords = true
        } else if err != sql.ErrNoRows {
            return resolvedSearch{}, err
        }
    }

    term := params.Freitext

    if term == "" && params.CategoryGCID != "" {
        var nameDE, name sql.NullString
        err := db.QueryRowContext(ctx, `SELECT name_de, name FROM google_kategorien WHERE gcid = ?`, params.CategoryGCID).Scan(&nameDE, &name)
        if err == nil {
            if nameDE.Valid && nameDE.String != "" {
                term = nameDE.String
            } else if name.Valid && name.String != "" {
                term = name.String
            }
        } else if err != sql.ErrNoRows {
            return resolvedSearch{}, err
        }
    }

    if term == "" {
        term = defaultTerm
    }

    return resolvedSearch{Lat: lat, Lng: lng, RadiusM: radius, Term: term, DefaultedCoords: !haveCoords}, nil
}

func clampInt(v, lo, hi int) int {
    if v < lo {
        return lo
    }
    if v > hi {
        return hi
    }
    return v
}
