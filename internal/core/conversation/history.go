package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatlyid/whatsapp-assistant-be/internal/cache"
	"github.com/chatlyid/whatsapp-assistant-be/internal/store"
)

// readStrategy is one storage format tried while reading history. Strategies
// run in order; the first non-empty result wins.
type readStrategy func(ctx context.Context, tenantID, key string, limit int) ([]Message, error)

// GetHistory returns the last limit messages of a conversation in
// chronological order. Reads go cache → embedded array → legacy per-message
// subcollection → flat legacy collection (once per tenant per process).
//
// TODO: drop the two legacy strategies once all tenants are confirmed
// migrated to the embedded format.
func (s *Store) GetHistory(ctx context.Context, tenantID, conversationKey string, limit int) ([]Message, error) {
	key := SanitizeKey(conversationKey)
	cacheKey := historyCacheKey(tenantID, key)

	if cached, ok := s.cache.Get(cache.NamespaceHistory, cacheKey); ok {
		if messages, ok := cached.([]Message); ok {
			return messages, nil
		}
	}

	strategies := []readStrategy{
		s.readEmbedded,
		s.readLegacySubcollection,
		s.readFlatLegacy,
	}

	for _, strategy := range strategies {
		messages, err := strategy(ctx, tenantID, key, limit)
		if err != nil {
			return nil, err
		}
		if len(messages) > 0 {
			s.cache.Set(cache.NamespaceHistory, cacheKey, messages)
			return messages, nil
		}
	}
	return nil, nil
}

func (s *Store) readEmbedded(ctx context.Context, tenantID, key string, limit int) ([]Message, error) {
	data, err := s.docs.Get(ctx, conversationPath(tenantID, key))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}

	messages := decodeMessages(data["messages"])
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// readLegacySubcollection reads the per-message documents written before the
// embedded-array format: tenant/{id}/conversation/{key}/message/{id}.
func (s *Store) readLegacySubcollection(ctx context.Context, tenantID, key string, limit int) ([]Message, error) {
	docs, err := s.docs.Query(ctx, conversationPath(tenantID, key)+"/message", store.Query{
		OrderBy: store.FieldCreatedAt,
		Desc:    true,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("read legacy messages: %w", err)
	}

	// Newest-first from the store; reverse to chronological.
	messages := make([]Message, 0, len(docs))
	for i := len(docs) - 1; i >= 0; i-- {
		messages = append(messages, Message{
			Role:      stringField(docs[i].Data, "role"),
			Content:   stringField(docs[i].Data, "content"),
			Timestamp: stringField(docs[i].Data, "timestamp"),
		})
	}
	return messages, nil
}

// readFlatLegacy reads the oldest storage format: one document per exchange
// under tenant/{id}/message, scoped by the counterparty field. Expensive, so
// it runs at most once per tenant per process lifetime.
func (s *Store) readFlatLegacy(ctx context.Context, tenantID, key string, limit int) ([]Message, error) {
	s.legacyMu.Lock()
	checked := s.legacyChecked[tenantID]
	s.legacyMu.Unlock()
	if checked {
		return nil, nil
	}
	defer func() {
		s.legacyMu.Lock()
		s.legacyChecked[tenantID] = true
		s.legacyMu.Unlock()
	}()

	rowLimit := 0
	if limit > 0 {
		rowLimit = (limit + 1) / 2 // each row holds a user+model pair
	}
	docs, err := s.docs.Query(ctx, flatLegacyCollection(tenantID), store.Query{
		Filters: []store.Filter{{Field: "from", Op: "==", Value: key}},
		OrderBy: store.FieldCreatedAt,
		Desc:    true,
		Limit:   rowLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("read flat legacy messages: %w", err)
	}

	messages := make([]Message, 0, len(docs)*2)
	for i := len(docs) - 1; i >= 0; i-- {
		ts := stringField(docs[i].Data, "timestamp")
		messages = append(messages,
			Message{Role: RoleUser, Content: stringField(docs[i].Data, "message"), Timestamp: ts},
			Message{Role: RoleModel, Content: stringField(docs[i].Data, "response"), Timestamp: ts},
		)
	}
	return messages, nil
}
