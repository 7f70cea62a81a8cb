package queries

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/checkout/internal/cache"
	"github.com/example/checkout/internal/orders/ports"
	"golang.org/x/sync/singleflight"
)

const statsCacheKey = "store_stats"

// StatsQueryHandler serves store statistics through a cache-aside layer.
// The aggregate queries behind ReadStats scan whole tables, so results are
// cached with a TTL and concurrent misses collapse into a single read.
type StatsQueryHandler struct {
	source ports.StatsSource
	cache  cache.Cache
	ttl    time.Duration
	group  singleflight.Group
}

func NewStatsQueryHandler(source ports.StatsSource, c cache.Cache, ttl time.Duration) *StatsQueryHandler {
	return &StatsQueryHandler{source: source, cache: c, ttl: ttl}
}

func (h *StatsQueryHandler) Handle(ctx context.Context) (*ports.StoreStats, error) {
	if cached, ok, err := h.cache.Get(ctx, statsCacheKey); err == nil && ok {
		var stats ports.StoreStats
		if err := json.Unmarshal(cached, &stats); err == nil {
			return &stats, nil
		}
		// An undecodable entry is treated as a miss and overwritten below.
	}

	result, err, _ := h.group.Do(statsCacheKey, func() (any, error) {
		// The group function runs once on behalf of every collapsed caller,
		// so it must not die with whichever caller's context got canceled.
		readCtx := context.WithoutCancel(ctx)

		stats, err := h.source.ReadStats(readCtx)
		if err != nil {
			return nil, fmt.Errorf("read store stats: %w", err)
		}

		encoded, err := json.Marshal(stats)
		if err != nil {
			return nil, fmt.Errorf("encode store stats: %w", err)
		}
		if err := h.cache.Set(readCtx, statsCacheKey, encoded, h.ttl); err != nil {
			// Serving fresh stats matters more than caching them.
			return stats, nil
		}
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ports.StoreStats), nil
}
