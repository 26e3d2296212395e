package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatlyid/whatsapp-assistant-be/internal/store"
)

// batchLimit stays under the store's write-batch limit with margin.
const batchLimit = 450

// WipeResult reports what a full conversation reset removed.
type WipeResult struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
}

// PurgeOlderThan trims every conversation of a tenant to messages at or
// after now-retention and deletes legacy message documents older than the
// cutoff. Conversation documents themselves are only trimmed, never deleted.
// Usage records are exempt from retention. Returns the number of messages
// removed.
func (s *Store) PurgeOlderThan(ctx context.Context, tenantID string, retention time.Duration) (int, error) {
	cutoff := s.now().Add(-retention).UTC()
	removed := 0

	convs, err := s.docs.Query(ctx, conversationCollection(tenantID), store.Query{})
	if err != nil {
		return 0, fmt.Errorf("list conversations for %s: %w", tenantID, err)
	}

	for _, conv := range convs {
		messages := decodeMessages(conv.Data["messages"])
		kept := messages[:0]
		for _, m := range messages {
			ts, err := time.Parse(time.RFC3339, m.Timestamp)
			if err != nil || !ts.Before(cutoff) {
				// Unparseable timestamps are kept rather than silently lost.
				kept = append(kept, m)
			}
		}
		dropped := len(messages) - len(kept)
		if dropped == 0 {
			continue
		}

		err := s.docs.Set(ctx, conv.Path, map[string]interface{}{
			"messages":     encodeMessages(kept),
			"messageCount": len(kept),
			"updatedAt":    store.ServerTimestamp,
		}, true)
		if err != nil {
			log.Error().Err(err).Str("conversation", conv.Path).Msg("retention rewrite failed")
			continue
		}
		removed += dropped

		// Legacy per-message documents under this conversation.
		removed += s.deleteWhereOlder(ctx, conv.Path+"/message", cutoff)
	}

	removed += s.deleteWhereOlder(ctx, flatLegacyCollection(tenantID), cutoff)

	if removed > 0 {
		s.cache.Invalidate(tenantID)
	}
	return removed, nil
}

// WipeAll deletes every conversation document of the tenant, their legacy
// message documents and the flat legacy collection. Sub-batch failures are
// logged and skipped so the wipe reports best-effort counts; only the
// top-level listing failure is propagated.
func (s *Store) WipeAll(ctx context.Context, tenantID string) (WipeResult, error) {
	var result WipeResult

	convs, err := s.docs.Query(ctx, conversationCollection(tenantID), store.Query{})
	if err != nil {
		return result, fmt.Errorf("list conversations for %s: %w", tenantID, err)
	}

	for _, conv := range convs {
		nested, err := s.docs.Query(ctx, conv.Path+"/message", store.Query{})
		if err != nil {
			log.Warn().Err(err).Str("conversation", conv.Path).Msg("failed to list legacy messages during wipe")
		} else {
			result.Messages += s.deleteDocs(ctx, nested)
		}

		if err := s.docs.Delete(ctx, conv.Path); err != nil {
			log.Warn().Err(err).Str("conversation", conv.Path).Msg("failed to delete conversation during wipe")
			continue
		}
		result.Conversations++
	}

	flat, err := s.docs.Query(ctx, flatLegacyCollection(tenantID), store.Query{})
	if err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("failed to list flat legacy messages during wipe")
	} else {
		result.Messages += s.deleteDocs(ctx, flat)
	}

	s.cache.Invalidate(tenantID)
	return result, nil
}

// SweepAllTenants runs the retention purge across every tenant. One
// tenant's failure is logged and the sweep continues. Cron entry point.
func (s *Store) SweepAllTenants(ctx context.Context) {
	tenants, err := s.docs.Query(ctx, "tenant", store.Query{})
	if err != nil {
		log.Error().Err(err).Msg("retention sweep: failed to list tenants")
		return
	}

	total := 0
	for _, t := range tenants {
		removed, err := s.PurgeOlderThan(ctx, t.ID, RetentionWindow)
		if err != nil {
			log.Error().Err(err).Str("tenant_id", t.ID).Msg("retention sweep failed for tenant")
			continue
		}
		total += removed
	}
	log.Info().Int("tenants", len(tenants)).Int("messages_removed", total).Msg("retention sweep completed")
}

func (s *Store) deleteWhereOlder(ctx context.Context, collection string, cutoff time.Time) int {
	docs, err := s.docs.Query(ctx, collection, store.Query{
		Filters: []store.Filter{{Field: store.FieldCreatedAt, Op: "<", Value: cutoff}},
	})
	if err != nil {
		log.Warn().Err(err).Str("collection", collection).Msg("failed to list legacy documents for purge")
		return 0
	}
	return s.deleteDocs(ctx, docs)
}

// deleteDocs removes documents in batches of batchLimit. A failed batch is
// logged and skipped; the count reflects what actually went through.
func (s *Store) deleteDocs(ctx context.Context, docs []store.Document) int {
	deleted := 0
	for start := 0; start < len(docs); start += batchLimit {
		end := start + batchLimit
		if end > len(docs) {
			end = len(docs)
		}

		ops := make([]store.Op, 0, end-start)
		for _, doc := range docs[start:end] {
			ops = append(ops, store.Op{Kind: store.OpDelete, Path: doc.Path})
		}
		if err := s.docs.BatchWrite(ctx, ops); err != nil {
			log.Warn().Err(err).Int("batch_size", len(ops)).Msg("batch delete failed, continuing")
			continue
		}
		deleted += len(ops)
	}
	return deleted
}
