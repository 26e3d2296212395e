package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatlyid/whatsapp-assistant-be/internal/cache"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/vector"
	"github.com/chatlyid/whatsapp-assistant-be/internal/store"
)

// CollectionName is the shared vector collection. Tenancy is enforced with a
// payload filter, not per-tenant collections.
const CollectionName = "knowledge_chunks"

// Chunk is one retrievable knowledge fragment.
type Chunk struct {
	ID       string  `json:"id"`
	TenantID string  `json:"tenantId"`
	Source   string  `json:"source"`
	Category string  `json:"category"`
	Index    int     `json:"index"`
	Content  string  `json:"content"`
	Score    float32 `json:"score,omitempty"`
}

// Source is an ingested document with its chunk count.
type Source struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	ChunkCount int    `json:"chunkCount"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// Service is the retrieval layer: classifier-driven vector search with a
// bounded result cache, plus idempotent ingestion into both the vector
// index and the document store.
type Service struct {
	docs       store.DocumentStore
	provider   vector.Provider
	embedder   vector.EmbeddingProvider
	classifier Classifier
	results    *resultCache

	// disabled flips once on a credential failure so a misconfigured
	// tenant does not hammer the embedding API on every message.
	disabled    atomic.Bool
	disableOnce sync.Once
}

func NewService(docs store.DocumentStore, provider vector.Provider, embedder vector.EmbeddingProvider, ttl *cache.TTLCache) *Service {
	return &Service{
		docs:       docs,
		provider:   provider,
		embedder:   embedder,
		classifier: NewKeywordClassifier(),
		results:    newResultCache(ttl),
	}
}

// Search retrieves the chunks most relevant to the message. Retrieval is
// fail-open: any provider or embedding error yields an empty result and the
// assistant answers without context. limitOverride > 0 replaces the
// classifier's chunk limit.
func (s *Service) Search(ctx context.Context, tenantID, message string, limitOverride int) []Chunk {
	if s.disabled.Load() {
		return nil
	}

	classification := s.classifier.Categorize(message)
	limit := classification.ChunkLimit
	if limitOverride > 0 {
		limit = limitOverride
	}

	key := searchKey(tenantID, message, classification.Categories, limit)
	if cached, ok := s.results.get(key); ok {
		return cached
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, message)
	if err != nil {
		s.handleSearchError(tenantID, err)
		return nil
	}

	// Category filtering happens client-side, so over-fetch to leave room
	// for chunks the filter drops.
	fetchLimit := limit
	if len(classification.Categories) > 1 {
		fetchLimit = limit * 3
	}

	match := []vector.MatchCondition{{Key: "tenant_id", Value: tenantID}}
	hits, err := s.provider.Search(ctx, CollectionName, embedding, fetchLimit, match)
	if err != nil {
		s.handleSearchError(tenantID, err)
		return nil
	}

	allowed := make(map[string]bool, len(classification.Categories))
	for _, category := range classification.Categories {
		allowed[category] = true
	}

	chunks := make([]Chunk, 0, limit)
	for _, hit := range hits {
		chunk := chunkFromPayload(hit.ID, hit.Score, hit.Payload)
		if !allowed[chunk.Category] && chunk.Category != CategoryGeneral {
			continue
		}
		chunks = append(chunks, chunk)
		if len(chunks) >= limit {
			break
		}
	}

	s.results.set(key, chunks)
	return chunks
}

// AddSource chunks are embedded in one batch and upserted with deterministic
// IDs, so re-ingesting the same source updates chunks in place instead of
// duplicating them. Returns the number of chunks stored.
func (s *Service) AddSource(ctx context.Context, tenantID, source, category string, contents []string) (int, error) {
	if len(contents) == 0 {
		return 0, fmt.Errorf("source %q has no content", source)
	}
	if category == "" {
		category = CategoryGeneral
	}

	embeddings, err := s.embedder.GenerateBatchEmbeddings(ctx, contents)
	if err != nil {
		return 0, fmt.Errorf("failed to embed source %q: %w", source, err)
	}
	if len(embeddings) != len(contents) {
		return 0, fmt.Errorf("embedding count mismatch for source %q: got %d, want %d", source, len(embeddings), len(contents))
	}

	points := make([]vector.Point, 0, len(contents))
	ops := make([]store.Op, 0, len(contents)+1)
	for i, content := range contents {
		id := chunkID(tenantID, source, i, content)
		points = append(points, vector.Point{
			ID:     id,
			Vector: embeddings[i],
			Payload: map[string]interface{}{
				"tenant_id": tenantID,
				"source":    source,
				"category":  category,
				"index":     i,
				"content":   content,
			},
		})
		ops = append(ops, store.Op{
			Kind: store.OpSet,
			Path: chunkPath(tenantID, id),
			Data: map[string]interface{}{
				"source":    source,
				"category":  category,
				"index":     i,
				"content":   content,
				"updatedAt": store.ServerTimestamp,
			},
		})
	}

	if err := s.provider.Upsert(ctx, CollectionName, points); err != nil {
		return 0, fmt.Errorf("failed to index source %q: %w", source, err)
	}

	ops = append(ops, store.Op{
		Kind: store.OpSet,
		Path: sourcePath(tenantID, source),
		Data: map[string]interface{}{
			"name":       source,
			"category":   category,
			"chunkCount": len(contents),
			"updatedAt":  store.ServerTimestamp,
		},
	})
	if err := s.docs.BatchWrite(ctx, ops); err != nil {
		return 0, fmt.Errorf("failed to record source %q: %w", source, err)
	}

	s.results.invalidateTenant(tenantID)
	log.Info().Str("tenant_id", tenantID).Str("source", source).Int("chunks", len(contents)).Msg("📚 Knowledge source ingested")
	return len(contents), nil
}

// ListSources returns every ingested source for the tenant.
func (s *Service) ListSources(ctx context.Context, tenantID string) ([]Source, error) {
	docs, err := s.docs.Query(ctx, fmt.Sprintf("tenant/%s/knowledgeSource", tenantID), store.Query{})
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge sources: %w", err)
	}

	sources := make([]Source, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, Source{
			Name:       stringField(doc.Data, "name"),
			Category:   stringField(doc.Data, "category"),
			ChunkCount: intField(doc.Data, "chunkCount"),
			UpdatedAt:  stringField(doc.Data, "updatedAt"),
		})
	}
	return sources, nil
}

// DeleteSource removes a source's chunks from the vector index and the
// document store. Returns the number of chunks removed.
func (s *Service) DeleteSource(ctx context.Context, tenantID, source string) (int, error) {
	docs, err := s.docs.Query(ctx, fmt.Sprintf("tenant/%s/knowledgeChunk", tenantID), store.Query{
		Filters: []store.Filter{{Field: "source", Op: "==", Value: source}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to look up chunks for source %q: %w", source, err)
	}

	ids := make([]string, 0, len(docs))
	ops := make([]store.Op, 0, len(docs)+1)
	for _, doc := range docs {
		ids = append(ids, doc.ID)
		ops = append(ops, store.Op{Kind: store.OpDelete, Path: doc.Path})
	}
	ops = append(ops, store.Op{Kind: store.OpDelete, Path: sourcePath(tenantID, source)})

	if len(ids) > 0 {
		if err := s.provider.Delete(ctx, CollectionName, ids); err != nil {
			return 0, fmt.Errorf("failed to remove source %q from index: %w", source, err)
		}
	}
	if err := s.docs.BatchWrite(ctx, ops); err != nil {
		return 0, fmt.Errorf("failed to remove source %q records: %w", source, err)
	}

	s.results.invalidateTenant(tenantID)
	log.Info().Str("tenant_id", tenantID).Str("source", source).Int("chunks", len(ids)).Msg("🗑️ Knowledge source deleted")
	return len(ids), nil
}

func (s *Service) handleSearchError(tenantID string, err error) {
	if isCredentialError(err) {
		s.disableOnce.Do(func() {
			s.disabled.Store(true)
			log.Error().Err(err).Str("tenant_id", tenantID).Msg("❌ Knowledge retrieval disabled: credential failure")
		})
		return
	}
	log.Warn().Err(err).Str("tenant_id", tenantID).Msg("⚠️ Knowledge retrieval failed, answering without context")
}

func isCredentialError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "401") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "incorrect api key") ||
		strings.Contains(msg, "unauthenticated") ||
		strings.Contains(msg, "permission denied")
}

// chunkID is deterministic over tenant, source, position and content, which
// is what makes re-ingestion an upsert. UUID form because the vector index
// requires UUID point IDs.
func chunkID(tenantID, source string, index int, content string) string {
	sum := sha256.Sum256([]byte(content))
	name := fmt.Sprintf("%s|%s|%d|%s", tenantID, source, index, hex.EncodeToString(sum[:]))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func chunkPath(tenantID, id string) string {
	return fmt.Sprintf("tenant/%s/knowledgeChunk/%s", tenantID, id)
}

var sourceKeyPattern = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func sourcePath(tenantID, source string) string {
	key := sourceKeyPattern.ReplaceAllString(source, "_")
	return fmt.Sprintf("tenant/%s/knowledgeSource/%s", tenantID, key)
}

func chunkFromPayload(id string, score float32, payload map[string]interface{}) Chunk {
	return Chunk{
		ID:       id,
		TenantID: stringField(payload, "tenant_id"),
		Source:   stringField(payload, "source"),
		Category: stringField(payload, "category"),
		Index:    intField(payload, "index"),
		Content:  stringField(payload, "content"),
		Score:    score,
	}
}

func stringField(data map[string]interface{}, key string) string {
	switch value := data[key].(type) {
	case string:
		return value
	case time.Time:
		return value.Format(time.RFC3339)
	}
	return ""
}

func intField(data map[string]interface{}, key string) int {
	switch value := data[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	}
	return 0
}
