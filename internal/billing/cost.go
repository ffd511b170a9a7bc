// Package billing implements the prepaid credit ledger and the marginal
// cost calculator that settles every completed order against it.
package billing

import (
    "math"

    "github.com/kargodata/recherche-orchestrator/internal/models"
)

// CostCents computes the settlement charge for an order: a fixed base fee
// plus a per-new-company marginal rate for the tier. Duplicates and
// updated companies never contribute to cost.
func CostCents(tier models.QualityTier, newCount int, rateCard models.RateCard) int64 {
    base := int64(math.Round(rateCard.BaseFeeEUR * 100))
    marginal := int64(math.Round(float64(newCount) * rateCard.PerResultRate(tier) * 100))
    return base + marginal
}
