package whatsapp

import "context"

// SessionStatus is the lifecycle state of one tenant's WhatsApp session.
type SessionStatus string

const (
	StatusDisconnected SessionStatus = "disconnected"
	StatusConnecting   SessionStatus = "connecting"
	StatusScanning     SessionStatus = "scanning"
	StatusConnected    SessionStatus = "connected"
)

// MessageHandler receives inbound text messages. from is the bare phone
// number without the WhatsApp server suffix.
type MessageHandler func(tenantID, from, text string)

// Provider adalah interface untuk WhatsApp integration providers. Each
// tenant owns one session, paired through its own QR scan.
type Provider interface {
	// Initialize opens the session store. Must be called once before
	// any session operation.
	Initialize(ctx context.Context) error

	// Connect restores a previously paired session for the tenant.
	// Returns ErrNotPaired when the tenant never scanned a QR.
	Connect(ctx context.Context, tenantID string) error

	// Disconnect closes the tenant's session without unpairing it.
	Disconnect(tenantID string)

	// SendMessage sends a text message to a phone number.
	SendMessage(ctx context.Context, tenantID, phoneNumber, message string) error

	// GenerateQR starts pairing and returns the QR code as PNG bytes.
	GenerateQR(ctx context.Context, tenantID string) ([]byte, error)

	// Status reports the tenant session's current state.
	Status(tenantID string) SessionStatus

	// OnMessage registers the inbound message handler. Must be called
	// before Connect.
	OnMessage(handler MessageHandler)

	// StartKeepAlive pings connected sessions until ctx is cancelled.
	StartKeepAlive(ctx context.Context)

	// GetProviderName return nama provider untuk logging.
	GetProviderName() string

	// Close disconnects every session and the store.
	Close()
}
