package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatlyid/whatsapp-assistant-be/internal/cache"
	"github.com/chatlyid/whatsapp-assistant-be/internal/store"
)

const (
	// MaxMessages caps the embedded message array per conversation document.
	// Insertion trims oldest-first once exceeded.
	MaxMessages = 100

	// RetentionWindow is how long conversation messages are kept before the
	// periodic sweep trims them.
	RetentionWindow = 48 * time.Hour

	RoleUser  = "user"
	RoleModel = "model"
)

var keySanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Message is one entry of the embedded conversation array.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Store owns conversation documents: one document per tenant+counterparty
// pair at tenant/{id}/conversation/{key}, messages embedded. The append path
// costs one read, one write and one counter increment regardless of
// conversation length.
type Store struct {
	docs  store.DocumentStore
	cache *cache.TTLCache

	// legacyChecked marks tenants whose flat legacy collection has already
	// been probed this process lifetime. That read is the most expensive
	// fallback and is attempted at most once per tenant.
	legacyMu      sync.Mutex
	legacyChecked map[string]bool

	now func() time.Time
}

func NewStore(docs store.DocumentStore, ttlCache *cache.TTLCache) *Store {
	return &Store{
		docs:          docs,
		cache:         ttlCache,
		legacyChecked: make(map[string]bool),
		now:           time.Now,
	}
}

// SanitizeKey normalizes a counterparty identifier into a conversation key.
func SanitizeKey(raw string) string {
	key := keySanitizer.ReplaceAllString(raw, "")
	if key == "" {
		return "default"
	}
	return key
}

// ChannelFor derives the channel tag from a conversation key.
func ChannelFor(key string) string {
	if strings.HasPrefix(key, "wa_") {
		return "whatsapp"
	}
	return "app"
}

func conversationPath(tenantID, key string) string {
	return fmt.Sprintf("tenant/%s/conversation/%s", tenantID, key)
}

func conversationCollection(tenantID string) string {
	return fmt.Sprintf("tenant/%s/conversation", tenantID)
}

func flatLegacyCollection(tenantID string) string {
	return fmt.Sprintf("tenant/%s/message", tenantID)
}

func historyCacheKey(tenantID, key string) string {
	return tenantID + ":" + key
}

// AppendExchange persists one user message and the model reply as a pair
// sharing a single timestamp, trims the array to the cap, bumps the tenant
// interaction counter and invalidates the cached history.
func (s *Store) AppendExchange(ctx context.Context, tenantID, userText, modelText, conversationKey string) error {
	key := SanitizeKey(conversationKey)
	path := conversationPath(tenantID, key)

	data, err := s.docs.Get(ctx, path)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load conversation %s: %w", path, err)
	}

	messages := decodeMessages(data["messages"])
	ts := s.now().UTC().Format(time.RFC3339)
	messages = append(messages,
		Message{Role: RoleUser, Content: userText, Timestamp: ts},
		Message{Role: RoleModel, Content: modelText, Timestamp: ts},
	)
	if len(messages) > MaxMessages {
		messages = messages[len(messages)-MaxMessages:]
	}

	err = s.docs.Set(ctx, path, map[string]interface{}{
		"messages":     encodeMessages(messages),
		"messageCount": len(messages),
		"channel":      ChannelFor(key),
		"updatedAt":    store.ServerTimestamp,
	}, true)
	if err != nil {
		return fmt.Errorf("write conversation %s: %w", path, err)
	}

	// Stats update is best effort: the exchange is already persisted.
	err = s.docs.Set(ctx, "tenant/"+tenantID, map[string]interface{}{
		"interactions": store.Increment(1),
		"lastActive":   store.ServerTimestamp,
	}, true)
	if err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("failed to bump tenant interaction counter")
	}

	s.cache.Invalidate(historyCacheKey(tenantID, key))
	return nil
}

func decodeMessages(raw interface{}) []Message {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	messages := make([]Message, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		messages = append(messages, Message{
			Role:      stringField(entry, "role"),
			Content:   stringField(entry, "content"),
			Timestamp: stringField(entry, "timestamp"),
		})
	}
	return messages
}

func encodeMessages(messages []Message) []interface{} {
	out := make([]interface{}, len(messages))
	for i, m := range messages {
		out[i] = map[string]interface{}{
			"role":      m.Role,
			"content":   m.Content,
			"timestamp": m.Timestamp,
		}
	}
	return out
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
