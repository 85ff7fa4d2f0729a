package repository

import (
	"context"

	"telegram-ai-storyteller/internal/domain/model"
)

// TurnArchive is an optional append-only record of completed turns, for
// operators who want transcripts outside the in-memory window. Writes are
// fire-and-forget relative to message handling.
type TurnArchive interface {
	SaveTurn(ctx context.Context, chatID string, turn model.Turn, traceID string) error
}
