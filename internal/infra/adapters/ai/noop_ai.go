package ai

import (
	"context"

	"telegram-ai-storyteller/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAdapter)(nil)

// NoopAdapter echoes input back. Useful for local runs without provider keys.
type NoopAdapter struct{}

func NewNoopAdapter() *NoopAdapter { return &NoopAdapter{} }

func (NoopAdapter) Chat(_ context.Context, _ string, messages []adapter.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}
	return messages[len(messages)-1].Content, nil
}

func (NoopAdapter) GenerateImage(context.Context, string, string) ([]byte, error) {
	return nil, nil
}

func (NoopAdapter) Transcribe(context.Context, string, []byte, string) (string, error) {
	return "", nil
}

func (NoopAdapter) CountTokens(_ context.Context, _ string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(m.Content) / 4
	}
	return n, nil
}
