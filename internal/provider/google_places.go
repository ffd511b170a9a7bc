package provider

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "strings"
    "time"

    "github.com/kargodata/recherche-orchestrator/internal/db"
    "github.com/kargodata/recherche-orchestrator/internal/models"
    "github.com/kargodata/recherche-orchestrator/pkg/errors"
    "github.com/kargodata/recherche-orchestrator/pkg/logger"

    "database/sql"
)

const (
    // GooglePlacesName is this driver's registry key and raw_results.source value.
    GooglePlacesName = "google_places"

    googlePlacesURL        = "https://places.googleapis.com/v1/places:searchNearby"
    googlePlacesCostPerReq = 0.032
    googlePlacesMaxRadiusM = 50000
    googlePlacesPageSize   = 20

    googlePlacesFieldMask = "places.id,places.displayName,places.formattedAddress," +
        "places.nationalPhoneNumber,places.internationalPhoneNumber," +
        "places.websiteUri,places.googleMapsUri," +
        "places.location,places.rating,places.userRatingCount," +
        "places.primaryType,places.types,places.regularOpeningHours"
)

// placeTypeByQuery maps common search terms to the Google Places (New)
// included-type taxonomy; Nearby Search (New) requires includedTypes
// rather than accepting free text.
var placeTypeByQuery = map[string]string{
    "restaurant": "restaurant",
    "café":       "cafe",
    "cafe":       "cafe",
    "bar":        "bar",
    "imbiss":     "restaurant",
    "bäckerei":   "bakery",
    "metzgerei":  "butcher_shop",
    "hotel":      "hotel",
    "apotheke":   "pharmacy",
}

// GooglePlacesDriver backs the premium tier. Rich per-place data (rating,
// opening hours, stable place ID) at a higher per-request cost than the
// standard-tier driver.
type GooglePlacesDriver struct {
    db         *sql.DB
    httpClient *http.Client
}

// NewGooglePlacesDriver constructs the driver. The API key is read fresh
// from the settings table on every Configured()/Search() call so an
// operator can rotate it without restarting the worker.
func NewGooglePlacesDriver(sqlDB *sql.DB, timeout time.Duration) *GooglePlacesDriver {
    return &GooglePlacesDriver{
        db:         sqlDB,
        httpClient: &http.Client{Timeout: timeout},
    }
}

func (d *GooglePlacesDriver) Name() string { return GooglePlacesName }

func (d *GooglePlacesDriver) CostPerRequest() float64 { return googlePlacesCostPerReq }

func (d *GooglePlacesDriver) apiKey(ctx context.Context) string {
    key, err := db.GetSetting(ctx, d.db, "recherche.google_places_api_key", "")
    if err != nil {
        logger.WithContext(ctx).WithError(err).Warn("Failed to read Google Places API key setting")
        return ""
    }
    return key
}

func (d *GooglePlacesDriver) Configured(ctx context.Context) bool {
    return d.apiKey(ctx) != ""
}

type googlePlacesRequestBody struct {
    LocationRestriction struct {
        Circle struct {
            Center struct {
                Latitude  float64 `json:"latitude"`
                Longitude float64 `json:"longitude"`
            } `json:"center"`
            Radius float64 `json:"radius"`
        } `json:"circle"`
    } `json:"locationRestriction"`
    MaxResultCount int      `json:"maxResultCount"`
    LanguageCode   string   `json:"languageCode"`
    IncludedTypes  []string `json:"includedTypes,omitempty"`
    PageToken      string   `json:"pageToken,omitempty"`
}

type googlePlacesResponse struct {
    Places        []googlePlace `json:"places"`
    NextPageToken string        `json:"nextPageToken"`
}

type googlePlace struct {
    ID           string  `json:"id"`
    DisplayName  struct{ Text string `json:"text"` } `json:"displayName"`
    FormattedAddress       string `json:"formattedAddress"`
    NationalPhoneNumber    string `json:"nationalPhoneNumber"`
    InternationalPhone     string `json:"internationalPhoneNumber"`
    WebsiteURI             string `json:"websiteUri"`
    GoogleMapsURI          string `json:"googleMapsUri"`
    Location               struct {
        Latitude  float64 `json:"latitude"`
        Longitude float64 `json:"longitude"`
    } `json:"location"`
    Rating          float64       `json:"rating"`
    UserRatingCount int           `json:"userRatingCount"`
    PrimaryType     string        `json:"primaryType"`
    Types           []string      `json:"types"`
}

func (d *GooglePlacesDriver) Search(ctx context.Context, params SearchParams) (SearchResult, error) {
    apiKey := d.apiKey(ctx)
    if apiKey == "" {
        return SearchResult{}, errors.New(errors.ErrProviderNotConfigured, "google places api key not configured")
    }

    var results []RawResult
    var pageToken string
    requestCount := 0
    maxResults := params.MaxResults
    if maxResults <= 0 {
        maxResults = 60
    }

    for len(results) < maxResults {
        body := googlePlacesRequestBody{
            MaxResultCount: min(googlePlacesPageSize, maxResults-len(results)),
            LanguageCode:   "de",
        }
        body.LocationRestriction.Circle.Center.Latitude = params.Lat
        body.LocationRestriction.Circle.Center.Longitude = params.Lng
        radius := float64(params.RadiusM)
        if radius <= 0 || radius > googlePlacesMaxRadiusM {
            radius = googlePlacesMaxRadiusM
        }
        body.LocationRestriction.Circle.Radius = radius

        includedType := "restaurant"
        if mapped, ok := placeTypeByQuery[strings.ToLower(params.Query)]; ok {
            includedType = mapped
        }
        body.IncludedTypes = []string{includedType}
        body.PageToken = pageToken

        payload, err := json.Marshal(body)
        if err != nil {
            return SearchResult{}, errors.Wrap(err, errors.ErrInternal, "failed to encode google places request")
        }

        req, err := http.NewRequestWithContext(ctx, http.MethodPost, googlePlacesURL, bytes.NewReader(payload))
        if err != nil {
            return SearchResult{}, errors.Wrap(err, errors.ErrInternal, "failed to build google places request")
        }
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set("X-Goog-Api-Key", apiKey)
        req.Header.Set("X-Goog-FieldMask", googlePlacesFieldMask)

        resp, err := d.httpClient.Do(req)
        if err != nil {
            logger.WithContext(ctx).WithError(err).Warn("Google Places request failed")
            break
        }
        requestCount++

        if resp.StatusCode != http.StatusOK {
            logger.WithContext(ctx).WithField("status", resp.StatusCode).Warn("Google Places API returned non-200")
            resp.Body.Close()
            break
        }

        var parsed googlePlacesResponse
        decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
        resp.Body.Close()
        if decodeErr != nil {
            logger.WithContext(ctx).WithError(decodeErr).Warn("Failed to decode Google Places response")
            break
        }

        if len(parsed.Places) == 0 {
            break
        }
        for _, place := range parsed.Places {
            if r, ok := normalizeGooglePlace(place); ok {
                results = append(results, r)
            }
        }

        pageToken = parsed.NextPageToken
        if pageToken == "" {
            break
        }
    }

    return SearchResult{
        Results:     results,
        UpstreamUSD: float64(requestCount) * googlePlacesCostPerReq,
    }, nil
}

func normalizeGooglePlace(p googlePlace) (RawResult, bool) {
    name := strings.TrimSpace(p.DisplayName.Text)
    if name == "" {
        return RawResult{}, false
    }
    phone := p.NationalPhoneNumber
    if phone == "" {
        phone = p.InternationalPhone
    }
    return RawResult{
        Name:       name,
        Source:     GooglePlacesName,
        ExternalID: p.ID,
        Address:    p.FormattedAddress,
        Phone:      phone,
        Website:    p.WebsiteURI,
        Category:   p.PrimaryType,
        Lat:        p.Location.Latitude,
        Lng:        p.Location.Longitude,
        RawPayload: models.JSON{
            "place_id":          p.ID,
            "rating":            p.Rating,
            "user_rating_count": p.UserRatingCount,
            "types":             p.Types,
            "google_maps_uri":   p.GoogleMapsURI,
        },
    }, true
}

func min(a, b int) int {
    if a < b {
        return a
    }
    return b
}
