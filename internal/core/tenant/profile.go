package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatlyid/whatsapp-assistant-be/internal/cache"
	"github.com/chatlyid/whatsapp-assistant-be/internal/store"
)

// Profile is the assistant-facing slice of the tenant document.
type Profile struct {
	TenantID       string `json:"tenant_id"`
	BusinessName   string `json:"business_name"`
	Description    string `json:"description"`
	Tone           string `json:"tone"`
	Language       string `json:"language"`
	BookingEnabled bool   `json:"booking_enabled"`
}

// GetProfile reads the tenant profile through the settings cache. A missing
// tenant document yields a zero profile, not an error: new tenants answer
// with defaults until they configure anything.
func (s *Service) GetProfile(ctx context.Context, tenantID string) (*Profile, error) {
	if cached, ok := s.cache.Get(cache.NamespaceSettings, tenantID); ok {
		if profile, ok := cached.(*Profile); ok {
			return profile, nil
		}
	}

	profile := &Profile{TenantID: tenantID}
	data, err := s.docs.Get(ctx, tenantPath(tenantID))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("read tenant profile: %w", err)
	}
	if data != nil {
		profile.BusinessName, _ = data["businessName"].(string)
		profile.Description, _ = data["description"].(string)
		profile.Tone, _ = data["tone"].(string)
		profile.Language, _ = data["language"].(string)
		profile.BookingEnabled, _ = data["bookingEnabled"].(bool)
	}

	s.cache.Set(cache.NamespaceSettings, tenantID, profile)
	return profile, nil
}

// UpdateProfile merges the given fields into the tenant document and drops
// the cached copy.
func (s *Service) UpdateProfile(ctx context.Context, tenantID string, fields map[string]interface{}) error {
	allowed := map[string]bool{
		"businessName":   true,
		"description":    true,
		"tone":           true,
		"language":       true,
		"bookingEnabled": true,
	}
	data := make(map[string]interface{}, len(fields)+1)
	for key, value := range fields {
		if allowed[key] {
			data[key] = value
		}
	}
	if len(data) == 0 {
		return fmt.Errorf("no updatable fields given")
	}
	data["updatedAt"] = store.ServerTimestamp

	if err := s.docs.Set(ctx, tenantPath(tenantID), data, true); err != nil {
		return fmt.Errorf("update tenant profile: %w", err)
	}
	s.cache.Invalidate(cache.NamespaceSettings + ":" + tenantID)
	return nil
}
