package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlyid/whatsapp-assistant-be/internal/cache"
	"github.com/chatlyid/whatsapp-assistant-be/internal/store"
)

func newTestStore() (*Store, *store.MemStore) {
	docs := store.NewMemStore()
	return NewStore(docs, cache.New(nil)), docs
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "wa_628123", SanitizeKey("wa_628123"))
	assert.Equal(t, "628123", SanitizeKey("+62 8123"))
	assert.Equal(t, "default", SanitizeKey(""))
	assert.Equal(t, "default", SanitizeKey("@@@"))
}

func TestChannelFor(t *testing.T) {
	assert.Equal(t, "whatsapp", ChannelFor("wa_628123"))
	assert.Equal(t, "app", ChannelFor("web-user-1"))
}

func TestAppendThenReadChronological(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := s.AppendExchange(ctx, "t1", fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i), "wa_111")
		require.NoError(t, err)
	}

	history, err := s.GetHistory(ctx, "t1", "wa_111", 10)
	require.NoError(t, err)
	require.Len(t, history, 10)

	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "question 0", history[0].Content)
	assert.Equal(t, RoleModel, history[9].Role)
	assert.Equal(t, "answer 4", history[9].Content)

	// User and model entries of one exchange share a timestamp.
	assert.Equal(t, history[0].Timestamp, history[1].Timestamp)
}

func TestAppendTrimsOldestBeyondCap(t *testing.T) {
	s, docs := newTestStore()
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		err := s.AppendExchange(ctx, "t1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i), "wa_111")
		require.NoError(t, err)
	}

	data, err := docs.Get(ctx, "tenant/t1/conversation/wa_111")
	require.NoError(t, err)
	assert.EqualValues(t, MaxMessages, data["messageCount"])

	history, err := s.GetHistory(ctx, "t1", "wa_111", MaxMessages)
	require.NoError(t, err)
	require.Len(t, history, MaxMessages)
	// 120 appended, 100 kept: the first surviving message is q10.
	assert.Equal(t, "q10", history[0].Content)
	assert.Equal(t, "a59", history[MaxMessages-1].Content)
}

func TestAppendBumpsTenantInteractions(t *testing.T) {
	s, docs := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.AppendExchange(ctx, "t1", "hi", "hello", "wa_111"))
	require.NoError(t, s.AppendExchange(ctx, "t1", "how", "fine", "wa_111"))

	data, err := docs.Get(ctx, "tenant/t1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, data["interactions"])
}

func TestHistoryFallsBackToLegacySubcollection(t *testing.T) {
	s, docs := newTestStore()
	ctx := context.Background()

	// Pre-migration tenant: no embedded array, only per-message documents.
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		docs.Now = func() time.Time { return ts }
		err := docs.Set(ctx, fmt.Sprintf("tenant/t1/conversation/wa_111/message/m%d", i), map[string]interface{}{
			"role":      RoleUser,
			"content":   fmt.Sprintf("legacy %d", i),
			"timestamp": ts.UTC().Format(time.RFC3339),
		}, false)
		require.NoError(t, err)
	}
	docs.Now = time.Now

	history, err := s.GetHistory(ctx, "t1", "wa_111", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "legacy 1", history[0].Content)
	assert.Equal(t, "legacy 2", history[1].Content)
}

func TestHistoryFallsBackToFlatLegacyOncePerTenant(t *testing.T) {
	s, docs := newTestStore()
	ctx := context.Background()

	err := docs.Set(ctx, "tenant/t1/message/m1", map[string]interface{}{
		"from":     "wa_111",
		"message":  "old question",
		"response": "old answer",
	}, false)
	require.NoError(t, err)

	history, err := s.GetHistory(ctx, "t1", "wa_111", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "old question", history[0].Content)
	assert.Equal(t, RoleModel, history[1].Role)

	// The flat read is marked checked; a different conversation of the same
	// tenant no longer reaches it.
	history, err = s.GetHistory(ctx, "t1", "wa_222", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPurgeTrimsOldMessagesAndKeepsDocument(t *testing.T) {
	s, docs := newTestStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	old := now.Add(-3 * 24 * time.Hour)
	fresh := now.Add(-time.Hour)
	err := docs.Set(ctx, "tenant/t1/conversation/wa_111", map[string]interface{}{
		"messages": []interface{}{
			map[string]interface{}{"role": RoleUser, "content": "stale", "timestamp": old.UTC().Format(time.RFC3339)},
			map[string]interface{}{"role": RoleModel, "content": "stale reply", "timestamp": old.UTC().Format(time.RFC3339)},
			map[string]interface{}{"role": RoleUser, "content": "recent", "timestamp": fresh.UTC().Format(time.RFC3339)},
		},
		"messageCount": 3,
	}, false)
	require.NoError(t, err)

	removed, err := s.PurgeOlderThan(ctx, "t1", RetentionWindow)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	data, err := docs.Get(ctx, "tenant/t1/conversation/wa_111")
	require.NoError(t, err)
	assert.EqualValues(t, 1, data["messageCount"])
}

func TestPurgeDeletesOldLegacyDocuments(t *testing.T) {
	s, docs := newTestStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	old := now.Add(-3 * 24 * time.Hour)
	docs.Now = func() time.Time { return old }
	require.NoError(t, docs.Set(ctx, "tenant/t1/message/m1", map[string]interface{}{"from": "wa_111"}, false))
	docs.Now = time.Now

	removed, err := s.PurgeOlderThan(ctx, "t1", RetentionWindow)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = docs.Get(ctx, "tenant/t1/message/m1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWipeAllDeletesEverything(t *testing.T) {
	s, docs := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.AppendExchange(ctx, "t1", "q", "a", "wa_111"))
	require.NoError(t, s.AppendExchange(ctx, "t1", "q", "a", "wa_222"))
	require.NoError(t, docs.Set(ctx, "tenant/t1/conversation/wa_111/message/m1", map[string]interface{}{"role": RoleUser}, false))
	require.NoError(t, docs.Set(ctx, "tenant/t1/message/m1", map[string]interface{}{"from": "wa_111"}, false))

	result, err := s.WipeAll(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Conversations)
	assert.Equal(t, 2, result.Messages)

	_, err = docs.Get(ctx, "tenant/t1/conversation/wa_111")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
