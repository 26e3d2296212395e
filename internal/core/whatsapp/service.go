package whatsapp

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatlyid/whatsapp-assistant-be/internal/store"
)

// Service wraps the provider untuk dependency injection.
type Service struct {
	provider Provider
	docs     store.DocumentStore
}

func NewService(provider Provider, docs store.DocumentStore) *Service {
	return &Service{provider: provider, docs: docs}
}

func (s *Service) Provider() Provider {
	return s.provider
}

// RestoreSessions reconnects every tenant that has a stored pairing. The
// whole pass is time-boxed so a slow WhatsApp server cannot stall startup;
// tenants left over simply reconnect on their next API call.
func (s *Service) RestoreSessions(ctx context.Context, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tenants, err := s.docs.Query(ctx, "tenant", store.Query{})
	if err != nil {
		log.Error().Err(err).Msg("❌ Failed to list tenants for session restore")
		return
	}

	restored := 0
	for _, tenant := range tenants {
		if ctx.Err() != nil {
			log.Warn().Int("restored", restored).Int("total", len(tenants)).Msg("⚠️ Session restore timed out")
			return
		}

		err := s.provider.Connect(ctx, tenant.ID)
		switch {
		case err == nil:
			restored++
		case errors.Is(err, ErrNotPaired):
			// Tenant never paired, nothing to restore.
		default:
			log.Warn().Err(err).Str("tenant_id", tenant.ID).Msg("⚠️ Failed to restore WhatsApp session")
		}
	}

	log.Info().Int("restored", restored).Int("total", len(tenants)).Msg("📱 WhatsApp sessions restored")
}

func (s *Service) SendText(ctx context.Context, tenantID, phoneNumber, message string) error {
	return s.provider.SendMessage(ctx, tenantID, phoneNumber, message)
}

func (s *Service) GenerateQR(ctx context.Context, tenantID string) ([]byte, error) {
	return s.provider.GenerateQR(ctx, tenantID)
}

func (s *Service) Status(tenantID string) SessionStatus {
	return s.provider.Status(tenantID)
}

func (s *Service) Disconnect(tenantID string) {
	s.provider.Disconnect(tenantID)
}
