// Package provider implements the pluggable external-search layer used by
// the dispatch engine to populate an order's raw results.
package provider

import (
    "context"

    "github.com/kargodata/recherche-orchestrator/internal/models"
)

// RawResult is the normalized shape every driver must produce, independent
// of the upstream API it talks to.
type RawResult struct {
    Name       string
    Source     string
    ExternalID string
    Address    string
    PLZ        string
    City       string
    Phone      string
    Email      string
    Website    string
    Category   string
    Lat        float64
    Lng        float64
    RawPayload models.JSON
}

// SearchResult bundles normalized results with the actual upstream cost
// incurred, kept separate from customer billing which is computed from
// the partner's own rate card.
type SearchResult struct {
    Results    []RawResult
    UpstreamUSD float64
}

// SearchParams is the geographic/category query handed to every driver.
type SearchParams struct {
    Lat        float64
    Lng        float64
    RadiusM    int
    Query      string
    Category   string
    MaxResults int
}

// Driver is implemented by each external search source. A driver that
// reports Configured() == false is skipped by the registry rather than
// invoked, so a partially-configured deployment degrades instead of
// failing every order.
type Driver interface {
    Name() string
    Configured(ctx context.Context) bool
    CostPerRequest() float64
    Search(ctx context.Context, params SearchParams) (SearchResult, error)
}
