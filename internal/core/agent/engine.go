package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatlyid/whatsapp-assistant-be/internal/core/booking"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/conversation"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/knowledge"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/llm"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/tenant"
	"github.com/chatlyid/whatsapp-assistant-be/internal/core/whatsapp"
)

const (
	rateLimitWindow = 2 * time.Second
	gatherTimeout   = 5 * time.Second
	replyTimeout    = 30 * time.Second
	historyDepth    = 10

	fallbackReply = "Sorry, I cannot respond right now. Please try again in a moment."
)

// Engine routes inbound messages: booking dialogue turns are answered by the
// state machine without touching the model, everything else goes through
// retrieval and the LLM.
type Engine struct {
	wa            *whatsapp.Service
	llm           *llm.Service
	knowledge     *knowledge.Service
	bookings      *booking.Engine
	flow          *booking.Flow
	conversations *conversation.Store
	tenants       *tenant.Service

	mu       sync.Mutex
	lastSeen map[string]time.Time
	now      func() time.Time
}

func NewEngine(
	wa *whatsapp.Service,
	llmService *llm.Service,
	knowledgeService *knowledge.Service,
	bookings *booking.Engine,
	flow *booking.Flow,
	conversations *conversation.Store,
	tenants *tenant.Service,
) *Engine {
	return &Engine{
		wa:            wa,
		llm:           llmService,
		knowledge:     knowledgeService,
		bookings:      bookings,
		flow:          flow,
		conversations: conversations,
		tenants:       tenants,
		lastSeen:      make(map[string]time.Time),
		now:           time.Now,
	}
}

// HandleMessage is the entry point for every inbound WhatsApp message.
// Registered as the provider's message handler; runs on provider goroutines.
func (e *Engine) HandleMessage(tenantID, from, text string) {
	if text == "" {
		return
	}
	if e.rateLimited(tenantID, from) {
		log.Warn().Str("tenant_id", tenantID).Str("from", from).Msg("⚠️ Rate limit: message ignored")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	log.Info().Str("tenant_id", tenantID).Str("from", from).Msg("📩 Inbound message")

	reply := e.respond(ctx, tenantID, from, text)
	if reply == "" {
		return
	}

	if err := e.wa.SendText(ctx, tenantID, from, reply); err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Str("from", from).Msg("❌ Failed to send reply")
		return
	}

	// Persistence is detached from the reply path: the customer already
	// has their answer, a storage hiccup only loses telemetry.
	go e.recordExchange(tenantID, from, text, reply)
}

func (e *Engine) respond(ctx context.Context, tenantID, from, text string) string {
	stateKey := tenantID + ":" + from

	if e.flow.Active(stateKey) || booking.IsBookingAction(text) {
		return e.handleBookingTurn(ctx, tenantID, from, text)
	}

	profile, chunks, history := e.gather(ctx, tenantID, from, text)

	contents := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		contents = append(contents, chunk.Content)
	}

	req := llm.Request{
		SystemPrompt: llm.BuildSystemPrompt(llm.BusinessProfile{
			BusinessName: profile.BusinessName,
			Description:  profile.Description,
			Tone:         profile.Tone,
			Language:     profile.Language,
		}, contents, profile.BookingEnabled),
		History:     toLLMHistory(history),
		UserMessage: text,
	}
	if profile.BookingEnabled {
		req.Tools = llm.BookingTools()
	}

	result, err := e.llm.Complete(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("❌ LLM error")
		return fallbackReply
	}

	go e.recordUsage(tenantID, result)

	if len(result.ToolCalls) > 0 {
		return e.handleToolCall(ctx, tenantID, from, result.ToolCalls[0])
	}
	if result.Content == "" {
		return fallbackReply
	}
	return result.Content
}

// gather fetches profile, knowledge and history concurrently. Each leg
// degrades independently: a slow or failing source contributes its zero
// value and the reply still goes out.
func (e *Engine) gather(ctx context.Context, tenantID, from, text string) (*tenant.Profile, []knowledge.Chunk, []conversation.Message) {
	gctx, cancel := context.WithTimeout(ctx, gatherTimeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		profile = &tenant.Profile{TenantID: tenantID}
		chunks  []knowledge.Chunk
		history []conversation.Message
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		p, err := e.tenants.GetProfile(gctx, tenantID)
		if err != nil {
			log.Warn().Err(err).Str("tenant_id", tenantID).Msg("⚠️ Profile fetch failed, using defaults")
			return
		}
		profile = p
	}()
	go func() {
		defer wg.Done()
		chunks = e.knowledge.Search(gctx, tenantID, text, 0)
	}()
	go func() {
		defer wg.Done()
		h, err := e.conversations.GetHistory(gctx, tenantID, conversationKey(from), historyDepth)
		if err != nil {
			log.Warn().Err(err).Str("tenant_id", tenantID).Msg("⚠️ History fetch failed, replying without it")
			return
		}
		history = h
	}()
	wg.Wait()

	return profile, chunks, history
}

func (e *Engine) handleToolCall(ctx context.Context, tenantID, from string, call llm.ToolCall) string {
	var args struct {
		Date   string `json:"date"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		log.Warn().Err(err).Str("tool", call.Name).Msg("⚠️ Unparseable tool arguments")
	}

	switch call.Name {
	case llm.ToolGetAvailableSlots:
		return e.replySlotsForDate(ctx, tenantID, args.Date)

	case llm.ToolGetNextAvailableDates:
		return e.replyNextDates(ctx, tenantID, 1)

	case llm.ToolStartBooking:
		return e.startBookingDialogue(ctx, tenantID, from, args.Reason)

	default:
		log.Warn().Str("tool", call.Name).Msg("⚠️ Unknown tool call")
		return fallbackReply
	}
}

func (e *Engine) rateLimited(tenantID, from string) bool {
	key := tenantID + ":" + from

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if last, ok := e.lastSeen[key]; ok && now.Sub(last) < rateLimitWindow {
		return true
	}
	e.lastSeen[key] = now
	return false
}

func (e *Engine) recordExchange(tenantID, from, text, reply string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.conversations.AppendExchange(ctx, tenantID, text, reply, conversationKey(from)); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("⚠️ Failed to persist exchange")
	}
}

func (e *Engine) recordUsage(tenantID string, result *llm.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.tenants.RecordUsage(ctx, tenantID, result.PromptTokens, result.CompletionTokens); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("⚠️ Failed to record token usage")
	}
}

func conversationKey(from string) string {
	return conversation.SanitizeKey("wa_" + from)
}

func toLLMHistory(messages []conversation.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
