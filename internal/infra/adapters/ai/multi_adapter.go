// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"fmt"
	"strings"

	"telegram-ai-storyteller/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*MultiAdapter)(nil)

// MultiAdapter routes each call to a provider adapter based on the model
// name. Explicit mappings from configuration win; otherwise the model name
// prefix decides.
type MultiAdapter struct {
	providers map[string]adapter.AIServiceAdapter
	overrides map[string]string
	fallback  string
}

func NewMultiAdapter(providers map[string]adapter.AIServiceAdapter, overrides map[string]string, fallback string) (*MultiAdapter, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("multi: no providers configured")
	}
	if _, ok := providers[fallback]; !ok {
		return nil, fmt.Errorf("multi: fallback provider %q not configured", fallback)
	}
	for model, name := range overrides {
		if _, ok := providers[name]; !ok {
			return nil, fmt.Errorf("multi: model %q mapped to unknown provider %q", model, name)
		}
	}
	return &MultiAdapter{providers: providers, overrides: overrides, fallback: fallback}, nil
}

func (m *MultiAdapter) route(model string) adapter.AIServiceAdapter {
	if name, ok := m.overrides[model]; ok {
		return m.providers[name]
	}
	lower := strings.ToLower(model)
	var name string
	switch {
	case strings.HasPrefix(lower, "@cf/"):
		name = "workers"
	case strings.HasPrefix(lower, "gemini") || strings.HasPrefix(lower, "imagen"):
		name = "gemini"
	case strings.HasPrefix(lower, "gpt") || strings.HasPrefix(lower, "dall") ||
		strings.HasPrefix(lower, "whisper") || strings.HasPrefix(lower, "o1") ||
		strings.HasPrefix(lower, "o3"):
		name = "openai"
	default:
		name = m.fallback
	}
	if p, ok := m.providers[name]; ok {
		return p
	}
	return m.providers[m.fallback]
}

func (m *MultiAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	return m.route(model).Chat(ctx, model, messages)
}

func (m *MultiAdapter) GenerateImage(ctx context.Context, model string, prompt string) ([]byte, error) {
	return m.route(model).GenerateImage(ctx, model, prompt)
}

func (m *MultiAdapter) Transcribe(ctx context.Context, model string, audio []byte, mimeType string) (string, error) {
	return m.route(model).Transcribe(ctx, model, audio, mimeType)
}

func (m *MultiAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return m.route(model).CountTokens(ctx, model, messages)
}
