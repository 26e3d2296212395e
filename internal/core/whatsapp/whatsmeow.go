package whatsapp

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image/png"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"github.com/chatlyid/whatsapp-assistant-be/internal/store"
)

// ErrNotPaired means the tenant has no stored device and must scan a QR.
var ErrNotPaired = errors.New("whatsapp session not paired")

const (
	credentialKey  = "whatsapp"
	reconnectDelay = 5 * time.Second
	qrImageSize    = 256
)

type session struct {
	client    *whatsmeow.Client
	status    SessionStatus
	loggedOut bool
}

// WhatsmeowProvider runs one whatsmeow client per tenant on a shared device
// store. Pairing state survives restarts through the credential document.
type WhatsmeowProvider struct {
	storeURL  string
	docs      store.DocumentStore
	container *sqlstore.Container

	mu       sync.Mutex
	sessions map[string]*session
	handler  MessageHandler
}

func NewWhatsmeowProvider(storeURL string, docs store.DocumentStore) *WhatsmeowProvider {
	return &WhatsmeowProvider{
		storeURL: storeURL,
		docs:     docs,
		sessions: make(map[string]*session),
	}
}

func (w *WhatsmeowProvider) GetProviderName() string {
	return "Whatsmeow"
}

func (w *WhatsmeowProvider) OnMessage(handler MessageHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
}

func (w *WhatsmeowProvider) Initialize(ctx context.Context) error {
	dbLog := waLog.Stdout("WhatsApp-Store", "ERROR", true)

	if w.storeURL != "" {
		log.Info().Msg("🌐 Using PostgreSQL database for WhatsApp store")
		container, err := sqlstore.New(ctx, "postgres", w.storeURL, dbLog)
		if err != nil {
			return fmt.Errorf("failed to init PostgreSQL store: %w", err)
		}
		if err := container.Upgrade(ctx); err != nil {
			return fmt.Errorf("failed to upgrade PostgreSQL schema: %w", err)
		}
		w.container = container
		return nil
	}

	log.Info().Msg("💾 Using local SQLite store (store.db)")
	rawDB, err := sql.Open("sqlite", "file:store.db?_foreign_keys=on")
	if err != nil {
		return fmt.Errorf("failed to open sqlite: %w", err)
	}
	if _, err = rawDB.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		log.Warn().Err(err).Msg("⚠️ Failed to enable foreign_keys pragma")
	}

	container := sqlstore.NewWithDB(rawDB, "sqlite", dbLog)
	if err := container.Upgrade(ctx); err != nil {
		return fmt.Errorf("failed to upgrade SQLite schema: %w", err)
	}
	w.container = container
	return nil
}

// Connect restores the tenant's paired device and reconnects it.
func (w *WhatsmeowProvider) Connect(ctx context.Context, tenantID string) error {
	if w.container == nil {
		return fmt.Errorf("provider not initialized")
	}

	w.mu.Lock()
	if sess, ok := w.sessions[tenantID]; ok && sess.status == StatusConnected {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	jid, err := w.storedDeviceJID(ctx, tenantID)
	if err != nil {
		return err
	}

	device, err := w.container.GetDevice(ctx, jid)
	if err != nil || device == nil {
		return fmt.Errorf("device for tenant %s not found: %w", tenantID, errors.Join(err, ErrNotPaired))
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", "ERROR", true))
	client.AddEventHandler(w.eventHandler(tenantID))

	w.setSession(tenantID, &session{client: client, status: StatusConnecting})

	if err := client.Connect(); err != nil {
		w.updateStatus(tenantID, StatusDisconnected)
		return fmt.Errorf("failed to connect tenant %s: %w", tenantID, err)
	}
	return nil
}

func (w *WhatsmeowProvider) Disconnect(tenantID string) {
	w.mu.Lock()
	sess, ok := w.sessions[tenantID]
	if ok {
		delete(w.sessions, tenantID)
	}
	w.mu.Unlock()

	if ok && sess.client != nil {
		sess.loggedOut = true // suppress the reconnect on the disconnect event
		sess.client.Disconnect()
		log.Info().Str("tenant_id", tenantID).Msg("🔌 WhatsApp session disconnected")
	}
}

func (w *WhatsmeowProvider) SendMessage(ctx context.Context, tenantID, phoneNumber, message string) error {
	sess := w.getSession(tenantID)
	if sess == nil || sess.client == nil || !sess.client.IsConnected() {
		return fmt.Errorf("tenant %s session not connected", tenantID)
	}

	jid := types.NewJID(phoneNumber, types.DefaultUserServer)
	msg := &waProto.Message{Conversation: proto.String(message)}

	_, err := sess.client.SendMessage(ctx, jid, msg)
	return err
}

// GenerateQR creates a fresh device and returns the pairing QR as PNG. The
// credential document is written by the pair-success event, not here.
func (w *WhatsmeowProvider) GenerateQR(ctx context.Context, tenantID string) ([]byte, error) {
	if w.container == nil {
		return nil, fmt.Errorf("provider not initialized")
	}

	device := w.container.NewDevice()
	client := whatsmeow.NewClient(device, waLog.Stdout("Client", "ERROR", true))
	client.AddEventHandler(w.eventHandler(tenantID))

	qrChan, err := client.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open QR channel: %w", err)
	}

	w.setSession(tenantID, &session{client: client, status: StatusScanning})

	go func() {
		if err := client.Connect(); err != nil {
			log.Error().Err(err).Str("tenant_id", tenantID).Msg("❌ QR pairing connect failed")
		}
	}()

	for evt := range qrChan {
		switch evt.Event {
		case "code":
			var buf bytes.Buffer
			img, err := qrcode.New(evt.Code, qrcode.Medium)
			if err != nil {
				client.Disconnect()
				return nil, fmt.Errorf("failed to generate QR: %w", err)
			}
			if err := png.Encode(&buf, img.Image(qrImageSize)); err != nil {
				client.Disconnect()
				return nil, fmt.Errorf("failed to encode QR png: %w", err)
			}
			return buf.Bytes(), nil
		case "timeout", "error":
			client.Disconnect()
			w.updateStatus(tenantID, StatusDisconnected)
			return nil, fmt.Errorf("QR generation failed: %s", evt.Event)
		}
	}

	return nil, fmt.Errorf("no QR generated")
}

func (w *WhatsmeowProvider) Status(tenantID string) SessionStatus {
	sess := w.getSession(tenantID)
	if sess == nil {
		return StatusDisconnected
	}
	return sess.status
}

func (w *WhatsmeowProvider) StartKeepAlive(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	log.Info().Msg("🔄 Keep-alive started (ping every 60s)")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("🛑 Keep-alive stopped")
			return
		case <-ticker.C:
			for tenantID, sess := range w.snapshot() {
				if sess.client == nil || !sess.client.IsConnected() {
					continue
				}
				if err := sess.client.SendPresence(ctx, types.PresenceAvailable); err != nil {
					log.Warn().Err(err).Str("tenant_id", tenantID).Msg("⚠️ Keep-alive ping failed")
				}
			}
		}
	}
}

func (w *WhatsmeowProvider) Close() {
	for tenantID := range w.snapshot() {
		w.Disconnect(tenantID)
	}
}

func (w *WhatsmeowProvider) eventHandler(tenantID string) func(evt interface{}) {
	return func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			w.handleInbound(tenantID, v)

		case *events.PairSuccess:
			w.saveCredential(tenantID, v.ID)
			log.Info().Str("tenant_id", tenantID).Str("jid", v.ID.String()).Msg("✅ WhatsApp paired")

		case *events.Connected:
			w.updateStatus(tenantID, StatusConnected)
			log.Info().Str("tenant_id", tenantID).Msg("✅ WhatsApp connected")

		case *events.Disconnected:
			w.handleDisconnect(tenantID)

		case *events.LoggedOut:
			w.handleLogout(tenantID)
		}
	}
}

func (w *WhatsmeowProvider) handleInbound(tenantID string, evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.Chat.Server != types.DefaultUserServer {
		return
	}

	text := evt.Message.GetConversation()
	if text == "" {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		return
	}

	w.mu.Lock()
	handler := w.handler
	w.mu.Unlock()
	if handler != nil {
		handler(tenantID, evt.Info.Sender.User, text)
	}
}

// handleDisconnect schedules one fixed-delay reconnect. Logged-out sessions
// never reconnect: the server would reject them until the next QR scan.
func (w *WhatsmeowProvider) handleDisconnect(tenantID string) {
	sess := w.getSession(tenantID)
	if sess == nil || sess.loggedOut {
		return
	}
	w.updateStatus(tenantID, StatusDisconnected)
	log.Warn().Str("tenant_id", tenantID).Msg("⚠️ WhatsApp disconnected, reconnecting")

	go func() {
		time.Sleep(reconnectDelay)
		current := w.getSession(tenantID)
		if current == nil || current.loggedOut || current.client == nil {
			return
		}
		if err := current.client.Connect(); err != nil {
			log.Error().Err(err).Str("tenant_id", tenantID).Msg("❌ WhatsApp reconnect failed")
		}
	}()
}

func (w *WhatsmeowProvider) handleLogout(tenantID string) {
	w.mu.Lock()
	if sess, ok := w.sessions[tenantID]; ok {
		sess.loggedOut = true
		sess.status = StatusDisconnected
	}
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.docs.Delete(ctx, credentialPath(tenantID)); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("⚠️ Failed to clear WhatsApp credential")
	}
	log.Warn().Str("tenant_id", tenantID).Msg("🔒 WhatsApp logged out, QR scan required")
}

func (w *WhatsmeowProvider) saveCredential(tenantID string, jid types.JID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := w.docs.Set(ctx, credentialPath(tenantID), map[string]interface{}{
		"deviceJid": jid.String(),
		"pairedAt":  store.ServerTimestamp,
	}, false)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("❌ Failed to save WhatsApp credential")
	}
}

func (w *WhatsmeowProvider) storedDeviceJID(ctx context.Context, tenantID string) (types.JID, error) {
	data, err := w.docs.Get(ctx, credentialPath(tenantID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.JID{}, ErrNotPaired
		}
		return types.JID{}, fmt.Errorf("failed to read credential for tenant %s: %w", tenantID, err)
	}

	raw, _ := data["deviceJid"].(string)
	if raw == "" {
		return types.JID{}, ErrNotPaired
	}

	jid, err := types.ParseJID(raw)
	if err != nil {
		return types.JID{}, fmt.Errorf("invalid stored device JID %q: %w", raw, err)
	}
	return jid, nil
}

func credentialPath(tenantID string) string {
	return fmt.Sprintf("tenant/%s/credential/%s", tenantID, credentialKey)
}

func (w *WhatsmeowProvider) getSession(tenantID string) *session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessions[tenantID]
}

func (w *WhatsmeowProvider) setSession(tenantID string, sess *session) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessions[tenantID] = sess
}

func (w *WhatsmeowProvider) updateStatus(tenantID string, status SessionStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if sess, ok := w.sessions[tenantID]; ok {
		sess.status = status
	}
}

func (w *WhatsmeowProvider) snapshot() map[string]*session {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]*session, len(w.sessions))
	for k, v := range w.sessions {
		out[k] = v
	}
	return out
}
