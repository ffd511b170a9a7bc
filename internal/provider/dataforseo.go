package provider

import (
    "bytes"
    "context"
    "database/sql"
    "encoding/base64"
    "encoding/json"
    "net/http"
    "strconv"
    "time"

    internaldb "github.com/kargodata/recherche-orchestrator/internal/db"
    "github.com/kargodata/recherche-orchestrator/internal/models"
    "github.com/kargodata/recherche-orchestrator/pkg/errors"
    "github.com/kargodata/recherche-orchestrator/pkg/logger"
)

const (
    // DataForSeoName is this driver's registry key and raw_results.source value.
    DataForSeoName = "dataforseo"

    dataForSeoURL        = "https://api.dataforseo.com/v3/business_data/business_listings/search/live"
    dataForSeoCostPerRes = 0.002
    dataForSeoBatchSize  = 100
)

// DataForSeoDriver backs the standard tier: a cheaper, less detailed bulk
// listings source than Google Places.
type DataForSeoDriver struct {
    db         *sql.DB
    httpClient *http.Client
}

func NewDataForSeoDriver(sqlDB *sql.DB, timeout time.Duration) *DataForSeoDriver {
    return &DataForSeoDriver{
        db:         sqlDB,
        httpClient: &http.Client{Timeout: timeout},
    }
}

func (d *DataForSeoDriver) Name() string { return DataForSeoName }

func (d *DataForSeoDriver) CostPerRequest() float64 { return dataForSeoCostPerRes }

func (d *DataForSeoDriver) credentials(ctx context.Context) (login, password string) {
    login, err := internaldb.GetSetting(ctx, d.db, "recherche.dataforseo_login", "")
    if err != nil {
        logger.WithContext(ctx).WithError(err).Warn("Failed to read DataForSEO login setting")
    }
    password, err = internaldb.GetSetting(ctx, d.db, "recherche.dataforseo_password", "")
    if err != nil {
        logger.WithContext(ctx).WithError(err).Warn("Failed to read DataForSEO password setting")
    }
    return login, password
}

func (d *DataForSeoDriver) Configured(ctx context.Context) bool {
    login, password := d.credentials(ctx)
    return login != "" && password != ""
}

func authHeader(login, password string) string {
    encoded := base64.StdEncoding.EncodeToString([]byte(login + ":" + password))
    return "Basic " + encoded
}

type dataForSeoFilter [3]interface{}

type dataForSeoRequestItem struct {
    Categories         []string           `json:"categories,omitempty"`
    LocationCoordinate string             `json:"location_coordinate"`
    LanguageCode       string             `json:"language_code"`
    Limit              int                `json:"limit"`
    Offset             int                `json:"offset"`
    Filters            []dataForSeoFilter `json:"filters,omitempty"`
}

type dataForSeoResponse struct {
    Tasks []struct {
        StatusCode    int    `json:"status_code"`
        StatusMessage string `json:"status_message"`
        Result        []struct {
            TotalCount int                      `json:"total_count"`
            Items      []map[string]interface{} `json:"items"`
        } `json:"result"`
    } `json:"tasks"`
}

func (d *DataForSeoDriver) Search(ctx context.Context, params SearchParams) (SearchResult, error) {
    login, password := d.credentials(ctx)
    if login == "" || password == "" {
        return SearchResult{}, errors.New(errors.ErrProviderNotConfigured, "dataforseo credentials not configured")
    }

    var results []RawResult
    maxResults := params.MaxResults
    if maxResults <= 0 {
        maxResults = 60
    }
    batchSize := dataForSeoBatchSize
    if batchSize > maxResults {
        batchSize = maxResults
    }
    offset := 0

    for len(results) < maxResults {
        item := dataForSeoRequestItem{
            LocationCoordinate: coordString(params.Lat, params.Lng, params.RadiusM),
            LanguageCode:       "de",
            Limit:              batchSize,
            Offset:             offset,
        }
        if params.Query != "" {
            item.Categories = []string{params.Query}
        }
        if params.Category != "" {
            item.Filters = []dataForSeoFilter{{"category", "like", "%" + params.Category + "%"}}
        }

        payload, err := json.Marshal([]dataForSeoRequestItem{item})
        if err != nil {
            return SearchResult{}, errors.Wrap(err, errors.ErrInternal, "failed to encode dataforseo request")
        }

        req, err := http.NewRequestWithContext(ctx, http.MethodPost, dataForSeoURL, bytes.NewReader(payload))
        if err != nil {
            return SearchResult{}, errors.Wrap(err, errors.ErrInternal, "failed to build dataforseo request")
        }
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set("Authorization", authHeader(login, password))

        resp, err := d.httpClient.Do(req)
        if err != nil {
            logger.WithContext(ctx).WithError(err).Warn("DataForSEO request failed")
            break
        }

        if resp.StatusCode != http.StatusOK {
            logger.WithContext(ctx).WithField("status", resp.StatusCode).Warn("DataForSEO API returned non-200")
            resp.Body.Close()
            break
        }

        var parsed dataForSeoResponse
        decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
        resp.Body.Close()
        if decodeErr != nil {
            logger.WithContext(ctx).WithError(decodeErr).Warn("Failed to decode DataForSEO response")
            break
        }

        if len(parsed.Tasks) == 0 {
            break
        }
        task := parsed.Tasks[0]
        if task.StatusCode != 20000 {
            logger.WithContext(ctx).WithField("message", task.StatusMessage).Warn("DataForSEO task error")
            break
        }
        if len(task.Result) == 0 || len(task.Result[0].Items) == 0 {
            break
        }

        for _, raw := range task.Result[0].Items {
            if r, ok := normalizeDataForSeoItem(raw); ok {
                results = append(results, r)
            }
        }

        totalCount := task.Result[0].TotalCount
        itemCount := len(task.Result[0].Items)
        offset += batchSize
        if offset >= totalCount || itemCount < batchSize {
            break
        }
    }

    return SearchResult{
        Results:     results,
        UpstreamUSD: float64(len(results)) * dataForSeoCostPerRes,
    }, nil
}

// coordString renders the DataForSEO location_coordinate string format
// ("lat,lng,radius").
func coordString(lat, lng float64, radiusM int) string {
    return strconv.FormatFloat(lat, 'f', 6, 64) + "," +
        strconv.FormatFloat(lng, 'f', 6, 64) + "," +
        strconv.Itoa(radiusM)
}

func normalizeDataForSeoItem(item map[string]interface{}) (RawResult, bool) {
    name, _ := item["title"].(string)
    if name == "" {
        return RawResult{}, false
    }

    addressInfo, _ := item["address_info"].(map[string]interface{})
    var plz, city string
    if addressInfo != nil {
        plz, _ = addressInfo["zip"].(string)
        city, _ = addressInfo["city"].(string)
    }

    website, _ := item["url"].(string)
    if website == "" {
        website, _ = item["domain"].(string)
    }

    address, _ := item["address"].(string)
    phone, _ := item["phone"].(string)
    email, _ := item["email"].(string)
    category, _ := item["category"].(string)
    lat, _ := item["latitude"].(float64)
    lng, _ := item["longitude"].(float64)
    cid, _ := item["cid"].(string)

    return RawResult{
        Name:       name,
        Source:     DataForSeoName,
        ExternalID: cid,
        Address:    address,
        PLZ:        plz,
        City:       city,
        Phone:      phone,
        Email:      email,
        Website:    website,
        Category:   category,
        Lat:        lat,
        Lng:        lng,
        RawPayload: models.JSON{
            "cid":            item["cid"],
            "rating":         item["rating"],
            "reviews_count":  item["reviews_count"],
            "category_ids":   item["category_ids"],
            "is_claimed":     item["is_claimed"],
        },
    }, true
}
