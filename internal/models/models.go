package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// QualityTier controls which provider drivers run for an order and the
// per-result rate charged.
type QualityTier string

const (
	TierStandard QualityTier = "standard"
	TierPremium  QualityTier = "premium"
	TierKomplett QualityTier = "komplett"
)

// OrderStatus is the recherche order lifecycle.
type OrderStatus string

const (
	OrderStatusDraft      OrderStatus = "ENTWURF"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusFailed     OrderStatus = "FAILED"
)

// TransactionType classifies a CreditTransaction row.
type TransactionType string

const (
	TransactionDebit  TransactionType = "DEBIT"
	TransactionCredit TransactionType = "CREDIT"
	TransactionRefund TransactionType = "REFUND"
)

// JSON is a map persisted as a JSON column. Mirrors the donor's
// database/sql/driver.Valuer + sql.Scanner idiom.
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		if s, ok2 := value.(string); ok2 {
			bytes = []byte(s)
		} else {
			return nil
		}
	}

	if len(bytes) == 0 {
		*j = make(JSON)
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// RateCard is a partner's per-order pricing. Stored denormalized on Partner
// but also usable standalone by the cost calculator.
type RateCard struct {
	BaseFeeEUR          float64 `json:"base_fee"`
	PerResultStandard   float64 `json:"per_result_standard"`
	PerResultPremium    float64 `json:"per_result_premium"`
	PerResultKomplett   float64 `json:"per_result_komplett"`
}

// DefaultRateCard matches the original schema's column defaults
// (kosten_recherche_grundgebuehr=0.50, _standard=0.05, _premium=0.12, _komplett=0.18).
func DefaultRateCard() RateCard {
	return RateCard{
		BaseFeeEUR:        0.50,
		PerResultStandard: 0.05,
		PerResultPremium:  0.12,
		PerResultKomplett: 0.18,
	}
}

// PerResultRate returns the marginal per-new-result rate for a tier.
func (r RateCard) PerResultRate(tier QualityTier) float64 {
	switch tier {
	case TierStandard:
		return r.PerResultStandard
	case TierPremium:
		return r.PerResultPremium
	case TierKomplett:
		return r.PerResultKomplett
	default:
		return 0
	}
}

// RateLimits are the per-partner fixed-window request ceilings. Zero means
// unlimited for that window.
type RateLimits struct {
	PerMinute int `json:"per_minute" db:"rate_limit_per_minute"`
	PerHour   int `json:"per_hour" db:"rate_limit_per_hour"`
	PerDay    int `json:"per_day" db:"rate_limit_per_day"`
}

// Partner is a long-lived billing and scheduling principal.
type Partner struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	RateCard   RateCard   `json:"rate_card" db:"-"`
	RateLimits RateLimits `json:"rate_limits" db:"-"`
	Suspended  bool       `json:"suspended" db:"suspended"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// SearchParams is the order's input area/query description, resolved at
// dispatch time to concrete (lat, lng, radius, query).
type SearchParams struct {
	GeoOrtID        *int64  `json:"geo_ort_id,omitempty"`
	GeoKreisID      *int64  `json:"geo_kreis_id,omitempty"`
	PLZ             string  `json:"plz,omitempty"`
	CategoryGCID    string  `json:"google_kategorie_gcid,omitempty"`
	Freitext        string  `json:"branche_freitext,omitempty"`
}

// ResultCounts tracks the dedup sweep outcome for one order.
type ResultCounts struct {
	Raw       int `json:"raw" db:"raw_count"`
	New       int `json:"new" db:"new_count"`
	Duplicate int `json:"duplicate" db:"duplicate_count"`
	Updated   int `json:"updated" db:"updated_count"`
}

// Order is a single recherche job (`rch_auftrag`).
type Order struct {
	ID                string       `json:"id" db:"id"`
	PartnerID         string       `json:"partner_id" db:"partner_id"`
	QualityTier       QualityTier  `json:"quality_tier" db:"quality_tier"`
	SearchParams      SearchParams `json:"search_params" db:"-"`
	SearchParamsJSON  JSON         `json:"-" db:"search_params"`
	Status            OrderStatus  `json:"status" db:"status"`
	Attempts          int          `json:"attempts" db:"attempts"`
	MaxAttempts       int          `json:"max_attempts" db:"max_attempts"`
	EstimatedCostCents int64       `json:"estimated_cost_cents" db:"estimated_cost_cents"`
	ActualCostCents   *int64       `json:"actual_cost_cents,omitempty" db:"actual_cost_cents"`
	Counts            ResultCounts `json:"counts" db:"-"`
	ErrorMessage      string       `json:"error_message,omitempty" db:"error_message"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
	CompletedAt       *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
}

// RawResult is one provider row normalized to the common shape
// (`rch_roh_ergebnis`). Immutable once persisted.
type RawResult struct {
	ID          string    `json:"id" db:"id"`
	OrderID     string    `json:"order_id" db:"order_id"`
	Source      string    `json:"source" db:"source"`
	ExternalID  string    `json:"external_id,omitempty" db:"external_id"`
	Name        string    `json:"name" db:"name"`
	Address     string    `json:"address,omitempty" db:"address"`
	PLZ         string    `json:"plz,omitempty" db:"plz"`
	City        string    `json:"city,omitempty" db:"city"`
	Phone       string    `json:"phone,omitempty" db:"phone"`
	Email       string    `json:"email,omitempty" db:"email"`
	Website     string    `json:"website,omitempty" db:"website"`
	Category    string    `json:"category,omitempty" db:"category"`
	Lat         float64   `json:"lat" db:"lat"`
	Lng         float64   `json:"lng" db:"lng"`
	RawPayload  JSON      `json:"raw_payload,omitempty" db:"raw_payload"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Company is the deduplicated canonical directory entity (`com_unternehmen`).
type Company struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address,omitempty" db:"address"`
	PLZ       string    `json:"plz,omitempty" db:"plz"`
	City      string    `json:"city,omitempty" db:"city"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Website   string    `json:"website,omitempty" db:"website"`
	Email     string    `json:"email,omitempty" db:"email"`
	Lat       float64   `json:"lat" db:"lat"`
	Lng       float64   `json:"lng" db:"lng"`
	Metadata  JSON      `json:"metadata" db:"metadata"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SourceMetadata is the per-source block stored under Company.Metadata[source].
type SourceMetadata struct {
	ExternalID string                 `json:"external_id,omitempty"`
	RawFields  map[string]interface{} `json:"raw_fields,omitempty"`
}

// BillingAccount is 1:1 with Partner, created on first debit.
type BillingAccount struct {
	ID                 string     `json:"id" db:"id"`
	PartnerID          string     `json:"partner_id" db:"partner_id"`
	BalanceCents       int64      `json:"balance_cents" db:"balance_cents"`
	WarningThresholdCents int64   `json:"warning_threshold_cents" db:"warning_threshold_cents"`
	CreditLimitCents   int64      `json:"credit_limit_cents" db:"credit_limit_cents"`
	Suspended          bool       `json:"suspended" db:"suspended"`
	SuspendedReason    string     `json:"suspended_reason,omitempty" db:"suspended_reason"`
	WarningSentAt      *time.Time `json:"warning_sent_at,omitempty" db:"warning_sent_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// CreditTransaction is an append-only ledger row.
type CreditTransaction struct {
	ID               string          `json:"id" db:"id"`
	BillingAccountID string          `json:"billing_account_id" db:"billing_account_id"`
	Type             TransactionType `json:"type" db:"type"`
	AmountCents      int64           `json:"amount_cents" db:"amount_cents"`
	BalanceAfterCents int64          `json:"balance_after_cents" db:"balance_after_cents"`
	Description      string          `json:"description,omitempty" db:"description"`
	ReferenceType     string         `json:"reference_type,omitempty" db:"reference_type"`
	ReferenceID       string         `json:"reference_id,omitempty" db:"reference_id"`
	Actor             string          `json:"actor" db:"actor"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// UsageRecord is an append-only API usage audit row (`api_usage`).
type UsageRecord struct {
	ID             int64     `json:"id" db:"id"`
	PartnerID      string    `json:"partner_id" db:"partner_id"`
	Endpoint       string    `json:"endpoint" db:"endpoint"`
	Method         string    `json:"method" db:"method"`
	Parameters     JSON      `json:"parameters,omitempty" db:"parameters"`
	StatusCode     int       `json:"status_code" db:"status_code"`
	ResultCount    int       `json:"result_count" db:"result_count"`
	CostCents      int64     `json:"cost_cents" db:"cost_cents"`
	ResponseTimeMs int       `json:"response_time_ms" db:"response_time_ms"`
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`
}
