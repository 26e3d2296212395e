package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlyid/whatsapp-assistant-be/internal/cache"
	"github.com/chatlyid/whatsapp-assistant-be/internal/store"
)

func TestRecordUsageMaintainsAggregate(t *testing.T) {
	docs := store.NewMemStore()
	svc := NewService(docs, cache.New(nil))
	ctx := context.Background()

	require.NoError(t, svc.RecordUsage(ctx, "t1", 100, 40))
	require.NoError(t, svc.RecordUsage(ctx, "t1", 50, 10))

	stats, err := svc.GetStats(ctx, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 200, stats.TotalTokensUsed)

	records, err := docs.Query(ctx, "tenant/t1/usage", store.Query{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestGetStatsBackfillsMissingAggregate(t *testing.T) {
	docs := store.NewMemStore()
	svc := NewService(docs, cache.New(nil))
	ctx := context.Background()

	// Pre-migration tenant: usage records exist, no aggregate on the doc.
	require.NoError(t, docs.Set(ctx, "tenant/t1", map[string]interface{}{"interactions": 7}, false))
	require.NoError(t, docs.Set(ctx, "tenant/t1/usage/u1", map[string]interface{}{"inputTokens": 90, "outputTokens": 30}, false))
	require.NoError(t, docs.Set(ctx, "tenant/t1/usage/u2", map[string]interface{}{"inputTokens": 10, "outputTokens": 5}, false))

	stats, err := svc.GetStats(ctx, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 135, stats.TotalTokensUsed)
	assert.EqualValues(t, 7, stats.Interactions)

	data, err := docs.Get(ctx, "tenant/t1")
	require.NoError(t, err)
	assert.EqualValues(t, 135, data["totalTokensUsed"])
}
