package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatlyid/whatsapp-assistant-be/internal/cache"
	"github.com/chatlyid/whatsapp-assistant-be/internal/store"
)

// Stats is the dashboard-facing aggregate view of one tenant.
type Stats struct {
	TenantID        string `json:"tenant_id"`
	Interactions    int64  `json:"interactions"`
	TotalTokensUsed int64  `json:"total_tokens_used"`
	LastActive      string `json:"last_active,omitempty"`
}

// Service owns tenant documents and the append-only usage log. Usage records
// are never mutated or deleted; the tenant document carries a derived token
// aggregate maintained by atomic increment so reads never rescan the log.
type Service struct {
	docs  store.DocumentStore
	cache *cache.TTLCache
}

func NewService(docs store.DocumentStore, ttlCache *cache.TTLCache) *Service {
	return &Service{docs: docs, cache: ttlCache}
}

func tenantPath(tenantID string) string {
	return "tenant/" + tenantID
}

func usageCollection(tenantID string) string {
	return fmt.Sprintf("tenant/%s/usage", tenantID)
}

// RecordUsage appends one usage record and bumps the tenant aggregate.
// Callers treat failures as telemetry loss, not response failure.
func (s *Service) RecordUsage(ctx context.Context, tenantID string, inputTokens, outputTokens int) error {
	path := fmt.Sprintf("%s/%s", usageCollection(tenantID), uuid.NewString())
	err := s.docs.Set(ctx, path, map[string]interface{}{
		"inputTokens":  inputTokens,
		"outputTokens": outputTokens,
		"createdAt":    store.ServerTimestamp,
	}, false)
	if err != nil {
		return fmt.Errorf("write usage record: %w", err)
	}

	err = s.docs.Set(ctx, tenantPath(tenantID), map[string]interface{}{
		"totalTokensUsed": store.Increment(int64(inputTokens + outputTokens)),
	}, true)
	if err != nil {
		return fmt.Errorf("bump token aggregate: %w", err)
	}

	s.cache.Invalidate("dashboard:" + tenantID)
	return nil
}

// GetStats returns the tenant aggregates, backfilling the token aggregate
// from historical usage records the first time a pre-migration tenant is
// read.
func (s *Service) GetStats(ctx context.Context, tenantID string) (*Stats, error) {
	if cached, ok := s.cache.Get(cache.NamespaceDashboard, tenantID); ok {
		if stats, ok := cached.(*Stats); ok {
			return stats, nil
		}
	}

	data, err := s.docs.Get(ctx, tenantPath(tenantID))
	if errors.Is(err, store.ErrNotFound) {
		data = map[string]interface{}{}
	} else if err != nil {
		return nil, fmt.Errorf("read tenant %s: %w", tenantID, err)
	}

	stats := &Stats{
		TenantID:     tenantID,
		Interactions: int64Field(data, "interactions"),
	}
	if v, ok := data["lastActive"].(string); ok {
		stats.LastActive = v
	}

	if _, ok := data["totalTokensUsed"]; ok {
		stats.TotalTokensUsed = int64Field(data, "totalTokensUsed")
	} else {
		total, err := s.backfillTokenAggregate(ctx, tenantID)
		if err != nil {
			log.Warn().Err(err).Str("tenant_id", tenantID).Msg("token aggregate backfill failed")
		}
		stats.TotalTokensUsed = total
	}

	s.cache.Set(cache.NamespaceDashboard, tenantID, stats)
	return stats, nil
}

// backfillTokenAggregate sums historical usage records and stamps the result
// onto the tenant document. One-time migration for tenants created before
// the aggregate existed.
func (s *Service) backfillTokenAggregate(ctx context.Context, tenantID string) (int64, error) {
	records, err := s.docs.Query(ctx, usageCollection(tenantID), store.Query{})
	if err != nil {
		return 0, fmt.Errorf("scan usage records: %w", err)
	}

	var total int64
	for _, rec := range records {
		total += int64Field(rec.Data, "inputTokens") + int64Field(rec.Data, "outputTokens")
	}

	err = s.docs.Set(ctx, tenantPath(tenantID), map[string]interface{}{
		"totalTokensUsed": total,
	}, true)
	if err != nil {
		return total, fmt.Errorf("stamp token aggregate: %w", err)
	}

	log.Info().Str("tenant_id", tenantID).Int64("total", total).Int("records", len(records)).
		Msg("token aggregate backfilled from usage records")
	return total, nil
}

func int64Field(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
