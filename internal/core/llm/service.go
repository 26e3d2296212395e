package llm

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Service wraps the completion provider untuk dependency injection.
type Service struct {
	provider CompletionProvider
}

func NewService(apiKey, model string) *Service {
	if apiKey == "" {
		log.Warn().Msg("⚠️ OPENAI_API_KEY is empty, LLM will not work")
	}

	provider := NewOpenAIProvider(apiKey, model, 0.7, 400)
	log.Info().Str("provider", provider.GetProviderName()).Str("model", provider.model).Msg("🤖 LLM provider ready")

	return &Service{provider: provider}
}

// NewServiceWithProvider creates service with custom provider (for testing)
func NewServiceWithProvider(provider CompletionProvider) *Service {
	return &Service{provider: provider}
}

func (s *Service) Complete(ctx context.Context, req Request) (*Result, error) {
	return s.provider.Complete(ctx, req)
}

func (s *Service) GetProviderName() string {
	return s.provider.GetProviderName()
}
