package telegram

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-storyteller/internal/domain/ports/adapter"
)

var _ adapter.MessengerAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter logs outbound messages instead of sending them. Useful for
// local runs without a bot token.
type NoopBotAdapter struct {
	log *zerolog.Logger
}

func NewNoopBotAdapter(log *zerolog.Logger) *NoopBotAdapter {
	return &NoopBotAdapter{log: log}
}

func (b *NoopBotAdapter) SendText(ctx context.Context, chatID string, text string) error {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	b.log.Info().Str("chat_id", chatID).Str("text", text).Msg("noop send")
	return nil
}

func (b *NoopBotAdapter) SendImage(ctx context.Context, chatID string, image []byte, caption string) error {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	b.log.Info().Str("chat_id", chatID).Int("image_bytes", len(image)).Str("caption", caption).Msg("noop send image")
	return nil
}
