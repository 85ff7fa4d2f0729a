// File: internal/usecase/reply_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-storyteller/internal/domain"
	"telegram-ai-storyteller/internal/domain/model"
	"telegram-ai-storyteller/internal/domain/ports/adapter"
	"telegram-ai-storyteller/internal/domain/ports/repository"
	"telegram-ai-storyteller/internal/infra/metrics"
)

// summarizeInstruction constrains the contextless second stage to emit only
// a concise, objective, mood-preserving visual description of the reply.
const summarizeInstruction = `You are a concise and creative summarizer. Your task is to convert AI-generated text responses into prompts suitable for an image generation AI.

Focus on:

* **Accuracy:** Faithfully capture the main event and key details of the text.
* **Visual clarity:**  Describe elements in a way that is easily understood and translated into visuals.
* **Conciseness:**  Keep the prompt short, focusing on the most essential aspects.
* **Mood:** Convey the overall tone and atmosphere of the AI's response (e.g., humorous, adventurous, dramatic).

Avoid:

* **Subjective interpretations:** Stick to objective descriptions of what happened in the text.
* **Unnecessary details:** Omit background information, character thoughts, or minor events that don't contribute to the main visual.
* **Ambiguity:** Use clear and precise language to minimize misinterpretations by the image AI.

Always prioritize the generation of a single, compelling image that captures the essence of the AI's response.
Reply with ONLY the prompt`

// Models names the three capabilities the pipeline drives. Swapped wholesale
// on config reload.
type Models struct {
	Text       string
	Image      string
	Transcribe string
}

// Reply is the pipeline output. Image is nil when the image stage degraded;
// callers must branch on its presence.
type Reply struct {
	Text  string
	Image []byte
}

// ReplyUseCase drives the three-stage generation sequence: text reply,
// image-prompt summarization, image synthesis. The text stage is
// load-bearing; the later stages degrade to a text-only reply.
type ReplyUseCase struct {
	contexts *ConversationStore
	ai       adapter.AIServiceAdapter
	archive  repository.TurnArchive // optional
	log      *zerolog.Logger

	mu     sync.RWMutex
	models Models
}

func NewReplyUseCase(contexts *ConversationStore, ai adapter.AIServiceAdapter, archive repository.TurnArchive, models Models, log *zerolog.Logger) *ReplyUseCase {
	return &ReplyUseCase{contexts: contexts, ai: ai, archive: archive, models: models, log: log}
}

func (u *ReplyUseCase) SetModels(m Models) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.models = m
}

func (u *ReplyUseCase) Models() Models {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.models
}

// Run executes one turn for a subscribed chat. The caller holds the chat's
// handling lock. On text-stage failure the appended user turn is rolled back
// so the context is left exactly as it was.
func (u *ReplyUseCase) Run(ctx context.Context, chatID, utterance string, traceID string) (Reply, error) {
	m := u.Models()

	epoch, err := u.contexts.AppendUser(chatID, utterance)
	if err != nil {
		return Reply{}, err
	}
	if err := u.contexts.Trim(chatID); err != nil {
		return Reply{}, err
	}
	turns, err := u.contexts.Snapshot(chatID)
	if err != nil {
		return Reply{}, err
	}
	msgs := toAdapterMessages(turns)

	if n, cerr := u.ai.CountTokens(ctx, m.Text, msgs); cerr == nil {
		metrics.AddPromptTokens(m.Text, n)
	}

	start := time.Now()
	text, err := u.ai.Chat(ctx, m.Text, msgs)
	metrics.ObserveStage("text", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		// Reconcile: no orphaned user turn survives a failed text stage. A
		// stale epoch means the context was rebuilt while the gateway call
		// was in flight; the turn is already gone with the old context.
		if derr := u.contexts.DropLast(chatID, epoch); derr != nil && !errors.Is(derr, domain.ErrStaleContext) {
			u.log.Error().Err(derr).Str("chat_id", chatID).Msg("rollback after failed text stage")
		}
		metrics.PipelineOutcome("failed")
		return Reply{}, fmt.Errorf("%w: text stage: %v", domain.ErrInference, err)
	}

	// Keep the model from talking commands back at us (or at a downstream
	// consumer) on a future turn.
	text = strings.TrimLeft(text, "/")

	if aerr := u.contexts.AppendAssistant(chatID, text, epoch); aerr != nil {
		if !errors.Is(aerr, domain.ErrStaleContext) && !errors.Is(aerr, domain.ErrNotFound) {
			return Reply{}, aerr
		}
		// The context was rebuilt (or the chat dropped) mid-run. The reply
		// still goes out; it just isn't part of the new context's history.
		u.log.Debug().Str("chat_id", chatID).Msg("context replaced during generation, assistant turn not recorded")
	}
	u.archiveTurn(ctx, chatID, model.Turn{Role: model.RoleUser, Content: utterance}, traceID)
	u.archiveTurn(ctx, chatID, model.Turn{Role: model.RoleAssistant, Content: text}, traceID)

	image := u.illustrate(ctx, m, text, chatID)
	if image == nil {
		metrics.PipelineOutcome("degraded")
	} else {
		metrics.PipelineOutcome("full")
	}
	return Reply{Text: text, Image: image}, nil
}

// illustrate runs the summarize and image stages. Any failure degrades to a
// text-only reply; text generation success is never held hostage to the
// image path.
func (u *ReplyUseCase) illustrate(ctx context.Context, m Models, replyText, chatID string) []byte {
	start := time.Now()
	imagePrompt, err := u.ai.Chat(ctx, m.Text, []adapter.Message{
		{Role: string(model.RoleSystem), Content: summarizeInstruction},
		{Role: string(model.RoleUser), Content: replyText},
	})
	metrics.ObserveStage("summarize", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		u.log.Warn().Err(err).Str("chat_id", chatID).Msg("image prompt summarization failed, sending text only")
		return nil
	}

	start = time.Now()
	img, err := u.ai.GenerateImage(ctx, m.Image, imagePrompt)
	metrics.ObserveStage("image", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		u.log.Warn().Err(err).Str("chat_id", chatID).Msg("image generation failed, sending text only")
		return nil
	}
	return img
}

// Transcribe resolves a voice clip to text through the gateway.
func (u *ReplyUseCase) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	m := u.Models()
	start := time.Now()
	text, err := u.ai.Transcribe(ctx, m.Transcribe, audio, mimeType)
	metrics.ObserveStage("transcribe", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return "", fmt.Errorf("%w: transcription: %v", domain.ErrInference, err)
	}
	return text, nil
}

func (u *ReplyUseCase) archiveTurn(ctx context.Context, chatID string, t model.Turn, traceID string) {
	if u.archive == nil {
		return
	}
	if err := u.archive.SaveTurn(ctx, chatID, t, traceID); err != nil {
		u.log.Warn().Err(err).Str("chat_id", chatID).Msg("turn archive write failed")
	}
}

func toAdapterMessages(turns []model.Turn) []adapter.Message {
	out := make([]adapter.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, adapter.Message{Role: string(t.Role), Content: t.Content})
	}
	return out
}
