package knowledge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlyid/whatsapp-assistant-be/internal/cache"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/vector"
	"github.com/chatlyid/whatsapp-assistant-be/internal/store"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) GenerateBatchEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) GetDimensions() int { return 2 }

type fakeProvider struct {
	points    map[string]vector.Point
	order     []string
	searchErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{points: make(map[string]vector.Point)}
}

func (f *fakeProvider) Initialize(context.Context) error                  { return nil }
func (f *fakeProvider) EnsureCollection(context.Context, string, int) error { return nil }
func (f *fakeProvider) Close() error                                      { return nil }

func (f *fakeProvider) Upsert(_ context.Context, _ string, points []vector.Point) error {
	for _, p := range points {
		if _, exists := f.points[p.ID]; !exists {
			f.order = append(f.order, p.ID)
		}
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeProvider) Search(_ context.Context, _ string, _ []float32, limit int, match []vector.MatchCondition) ([]vector.SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var results []vector.SearchResult
	for _, id := range f.order {
		p := f.points[id]
		matched := true
		for _, cond := range match {
			if value, _ := p.Payload[cond.Key].(string); value != cond.Value {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		results = append(results, vector.SearchResult{ID: p.ID, Score: 0.9, Payload: p.Payload})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (f *fakeProvider) Delete(_ context.Context, _ string, ids []string) error {
	for _, id := range ids {
		delete(f.points, id)
	}
	kept := f.order[:0]
	for _, id := range f.order {
		if _, ok := f.points[id]; ok {
			kept = append(kept, id)
		}
	}
	f.order = kept
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeProvider, *fakeEmbedder, *store.MemStore) {
	t.Helper()
	docs := store.NewMemStore()
	provider := newFakeProvider()
	embedder := &fakeEmbedder{}
	svc := NewService(docs, provider, embedder, cache.New(nil))
	return svc, provider, embedder, docs
}

func TestCategorizeMatchesKeywords(t *testing.T) {
	c := NewKeywordClassifier()

	result := c.Categorize("Berapa harga produk ini?")
	assert.Equal(t, []string{"general", "product"}, result.Categories)

	result = c.Categorize("What is your refund policy?")
	assert.Contains(t, result.Categories, "policy")
	assert.Contains(t, result.Categories, "general")
}

func TestCategorizeQuestionFallsBackToFAQ(t *testing.T) {
	c := NewKeywordClassifier()

	result := c.Categorize("Apakah bisa besok?")
	assert.Equal(t, []string{"general", "faq"}, result.Categories)

	result = c.Categorize("ok thanks")
	assert.Equal(t, []string{"general"}, result.Categories)
}

func TestCategorizeChunkLimits(t *testing.T) {
	c := NewKeywordClassifier()

	assert.Equal(t, 1, c.Categorize("hello").ChunkLimit)
	assert.Equal(t, 2, c.Categorize("product A vs product B").ChunkLimit)

	long := ""
	for i := 0; i < 25; i++ {
		long += "kata "
	}
	assert.Equal(t, 2, c.Categorize(long).ChunkLimit)

	// Two matched categories bump the limit to three.
	assert.Equal(t, 3, c.Categorize("harga layanan antar").ChunkLimit)
}

func TestSearchKeyNormalization(t *testing.T) {
	a := searchKey("t1", "  Berapa   HARGA? ", []string{"general", "product"}, 2)
	b := searchKey("t1", "berapa harga?", []string{"general", "product"}, 2)
	c := searchKey("t2", "berapa harga?", []string{"general", "product"}, 2)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestAddSourceIsIdempotent(t *testing.T) {
	svc, provider, _, docs := newTestService(t)
	ctx := context.Background()

	contents := []string{"We open at 9am", "We close at 5pm"}
	count, err := svc.AddSource(ctx, "tenant-1", "hours.txt", "service", contents)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = svc.AddSource(ctx, "tenant-1", "hours.txt", "service", contents)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Same content at the same position maps to the same point ID.
	assert.Len(t, provider.points, 2)

	chunks, err := docs.Query(ctx, "tenant/tenant-1/knowledgeChunk", store.Query{})
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	sources, err := svc.ListSources(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "hours.txt", sources[0].Name)
	assert.Equal(t, 2, sources[0].ChunkCount)
}

func TestSearchReturnsTenantChunksOnly(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddSource(ctx, "tenant-1", "faq.txt", "general", []string{"Yes we deliver"})
	require.NoError(t, err)
	_, err = svc.AddSource(ctx, "tenant-2", "faq.txt", "general", []string{"No delivery here"})
	require.NoError(t, err)

	chunks := svc.Search(ctx, "tenant-1", "do you deliver?", 0)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Yes we deliver", chunks[0].Content)
	assert.Equal(t, "tenant-1", chunks[0].TenantID)
}

func TestSearchFiltersByCategory(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddSource(ctx, "tenant-1", "prices.txt", "product", []string{"Widget costs 50k"})
	require.NoError(t, err)
	_, err = svc.AddSource(ctx, "tenant-1", "legal.txt", "policy", []string{"Refunds within 7 days"})
	require.NoError(t, err)

	chunks := svc.Search(ctx, "tenant-1", "berapa harga widget?", 5)
	require.Len(t, chunks, 1)
	assert.Equal(t, "product", chunks[0].Category)
}

func TestSearchServesCachedResults(t *testing.T) {
	svc, provider, embedder, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddSource(ctx, "tenant-1", "faq.txt", "general", []string{"We ship nationwide"})
	require.NoError(t, err)

	first := svc.Search(ctx, "tenant-1", "shipping info", 0)
	require.Len(t, first, 1)
	callsAfterFirst := embedder.calls

	// A repeat query is answered from cache without touching the provider.
	provider.searchErr = errors.New("index offline")
	second := svc.Search(ctx, "tenant-1", "shipping info", 0)
	assert.Equal(t, first, second)
	assert.Equal(t, callsAfterFirst, embedder.calls)
}

func TestSearchFailsOpenOnProviderError(t *testing.T) {
	svc, provider, _, _ := newTestService(t)
	provider.searchErr = errors.New("connection refused")

	chunks := svc.Search(context.Background(), "tenant-1", "anything", 0)
	assert.Empty(t, chunks)
	assert.False(t, svc.disabled.Load())
}

func TestSearchDisablesOnCredentialError(t *testing.T) {
	svc, _, embedder, _ := newTestService(t)
	embedder.err = errors.New("status 401: invalid api key")

	chunks := svc.Search(context.Background(), "tenant-1", "anything", 0)
	assert.Empty(t, chunks)
	assert.True(t, svc.disabled.Load())

	// Once disabled, no further embedding calls are made.
	calls := embedder.calls
	svc.Search(context.Background(), "tenant-1", "again", 0)
	assert.Equal(t, calls, embedder.calls)
}

func TestDeleteSourceRemovesChunks(t *testing.T) {
	svc, provider, _, docs := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddSource(ctx, "tenant-1", "old.txt", "general", []string{"a", "b", "c"})
	require.NoError(t, err)

	removed, err := svc.DeleteSource(ctx, "tenant-1", "old.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Empty(t, provider.points)

	chunks, err := docs.Query(ctx, "tenant/tenant-1/knowledgeChunk", store.Query{})
	require.NoError(t, err)
	assert.Empty(t, chunks)

	sources, err := svc.ListSources(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestResultCacheEvictsOldestInserted(t *testing.T) {
	rc := newResultCache(cache.New(nil))

	for i := 0; i < maxCachedSearches+1; i++ {
		rc.set(fmt.Sprintf("tenant-1:key-%d", i), []Chunk{{Content: fmt.Sprintf("chunk %d", i)}})
	}

	_, ok := rc.get("tenant-1:key-0")
	assert.False(t, ok, "oldest entry should be evicted")

	_, ok = rc.get(fmt.Sprintf("tenant-1:key-%d", maxCachedSearches))
	assert.True(t, ok)
	assert.Len(t, rc.order, maxCachedSearches)
}

func TestResultCacheInvalidateTenant(t *testing.T) {
	rc := newResultCache(cache.New(nil))
	rc.set("tenant-1:aaa", []Chunk{{Content: "one"}})
	rc.set("tenant-2:bbb", []Chunk{{Content: "two"}})

	rc.invalidateTenant("tenant-1")

	_, ok := rc.get("tenant-1:aaa")
	assert.False(t, ok)
	_, ok = rc.get("tenant-2:bbb")
	assert.True(t, ok)
}
