package ports

import (
	"context"
	"time"
)

// StoreStats is the aggregate snapshot served by the stats endpoint.
type StoreStats struct {
	Orders      OrderStats   `json:"orders"`
	Variants    VariantStats `json:"variants"`
	GeneratedAt time.Time    `json:"generated_at"`
}

type OrderStats struct {
	Total        int64 `json:"total"`
	Pending      int64 `json:"pending"`
	Delivered    int64 `json:"delivered"`
	RevenueCents int64 `json:"revenue_cents"`
}

type VariantStats struct {
	InStock    int64 `json:"in_stock"`
	OutOfStock int64 `json:"out_of_stock"`
}

// StatsSource computes store statistics from authoritative storage.
// Callers are expected to cache results; the queries behind this are
// full-table aggregates.
type StatsSource interface {
	ReadStats(ctx context.Context) (*StoreStats, error)
}
