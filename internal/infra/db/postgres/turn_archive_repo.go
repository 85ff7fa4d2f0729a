// File: internal/infra/db/postgres/turn_archive_repo.go
package postgres

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"telegram-ai-storyteller/internal/domain/model"
	"telegram-ai-storyteller/internal/domain/ports/repository"
)

var _ repository.TurnArchive = (*turnArchiveRepo)(nil)

type turnArchiveRepo struct {
	pool *pgxpool.Pool
}

func NewTurnArchiveRepo(pool *pgxpool.Pool) repository.TurnArchive {
	return &turnArchiveRepo{pool: pool}
}

// EnsureSchema creates the archive table if it is missing. The archive is
// append-only; rows are never updated.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_turns (
    id         TEXT PRIMARY KEY,
    chat_id    TEXT NOT NULL,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    trace_id   TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_turns_chat ON conversation_turns (chat_id, created_at)`,
	}
	for _, q := range stmts {
		if _, err := pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

func (r *turnArchiveRepo) SaveTurn(ctx context.Context, chatID string, turn model.Turn, traceID string) error {
	const q = `
INSERT INTO conversation_turns (id, chat_id, role, content, trace_id)
VALUES ($1, $2, $3, $4, $5)`

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	_, err := r.pool.Exec(ctx, q, id, chatID, string(turn.Role), turn.Content, traceID)
	if err != nil {
		return fmt.Errorf("postgres: save turn: %w", err)
	}
	return nil
}
