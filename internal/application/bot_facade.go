package application

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-ai-storyteller/internal/config"
	"telegram-ai-storyteller/internal/domain"
	"telegram-ai-storyteller/internal/domain/model"
	"telegram-ai-storyteller/internal/domain/ports/adapter"
	"telegram-ai-storyteller/internal/infra/i18n"
	"telegram-ai-storyteller/internal/infra/logging"
	"telegram-ai-storyteller/internal/infra/metrics"
	"telegram-ai-storyteller/internal/usecase"
)

// RateLimiter gates dialogue throughput per chat. Nil-able; absence means no
// limiting.
type RateLimiter interface {
	Allow(ctx context.Context, chatID string) (bool, error)
}

// BotFacade is the top-level dispatcher invoked per inbound event. It owns
// the application state the components share and decides what, if anything,
// goes back to the transport. Replies are returned as values so the adapter
// just forwards them to the chat.
type BotFacade struct {
	log       *zerolog.Logger
	tr        *i18n.Translator
	cfg       *config.Manager
	contexts  *usecase.ConversationStore
	subs      *usecase.SubscriptionUseCase
	prompts   *usecase.PromptUseCase
	reply     *usecase.ReplyUseCase
	limiter   RateLimiter
	startedAt time.Time
}

func NewBotFacade(
	log *zerolog.Logger,
	tr *i18n.Translator,
	cfg *config.Manager,
	contexts *usecase.ConversationStore,
	subs *usecase.SubscriptionUseCase,
	prompts *usecase.PromptUseCase,
	reply *usecase.ReplyUseCase,
	limiter RateLimiter,
) *BotFacade {
	return &BotFacade{
		log:       log,
		tr:        tr,
		cfg:       cfg,
		contexts:  contexts,
		subs:      subs,
		prompts:   prompts,
		reply:     reply,
		limiter:   limiter,
		startedAt: time.Now(),
	}
}

// HandleMessage sequences one inbound event: noise filters, subscription
// gate, then command interpretation or the dialogue pipeline. A nil reply
// means the event was dropped on purpose.
func (b *BotFacade) HandleMessage(ctx context.Context, msg adapter.IncomingMessage) (*usecase.Reply, error) {
	// No reprocessing of history delivered on reconnect.
	if msg.SentAt.Before(b.startedAt) {
		metrics.IncMessage("dropped")
		return nil, nil
	}

	traceID := uuid.NewString()
	log := logging.ForChat(b.log, msg.ChatID, traceID)

	// The bot's own outgoing messages are noise unless they carry a command;
	// that lets the operator drive the bot from its own account.
	if msg.SenderIsSelf && !model.IsCommand(msg.Text) {
		metrics.IncMessage("dropped")
		return nil, nil
	}

	if !b.subs.IsSubscribed(msg.ChatID) {
		return b.handleUnsubscribed(ctx, msg, log)
	}

	unlock := b.contexts.LockChat(msg.ChatID)
	defer unlock()

	text := msg.Text
	if len(msg.Voice) > 0 {
		transcript, err := b.reply.Transcribe(ctx, msg.Voice, msg.VoiceMIME)
		if err != nil {
			log.Error().Err(err).Msg("voice transcription failed")
			return &usecase.Reply{Text: b.tr.T("transcribe_failed")}, nil
		}
		log.Debug().Str("transcript", transcript).Msg("voice resolved to text")
		text = transcript
	}
	if strings.TrimSpace(text) == "" {
		metrics.IncMessage("dropped")
		return nil, nil
	}

	if model.IsCommand(text) {
		metrics.IncMessage("command")
		return b.dispatchCommand(ctx, msg, text, log)
	}

	metrics.IncMessage("dialogue")
	return b.runDialogue(ctx, msg.ChatID, text, traceID, log)
}

// handleUnsubscribed drops everything except an owner's admission request:
// the sole channel by which an unsubscribed chat becomes subscribed.
func (b *BotFacade) handleUnsubscribed(ctx context.Context, msg adapter.IncomingMessage, log *zerolog.Logger) (*usecase.Reply, error) {
	cmd, err := model.ParseCommand(msg.Text)
	if err != nil || cmd.Kind != model.CmdAddChat || !msg.SenderIsOwner {
		metrics.IncMessage("dropped")
		return nil, nil
	}
	admitted, err := b.subs.Admit(ctx, msg.ChatID, b.prompts.Active())
	if err != nil {
		log.Error().Err(err).Msg("chat admission failed")
		metrics.IncCommand("addchat", "error")
		return nil, err
	}
	if !admitted {
		metrics.IncCommand("addchat", "noop")
		return &usecase.Reply{Text: b.tr.T("chat_already_added")}, nil
	}
	log.Info().Str("chat_kind", msg.ChatKind).Msg("chat admitted")
	metrics.IncCommand("addchat", "ok")
	return &usecase.Reply{Text: b.tr.T("chat_added")}, nil
}

func (b *BotFacade) runDialogue(ctx context.Context, chatID, text, traceID string, log *zerolog.Logger) (*usecase.Reply, error) {
	if b.limiter != nil {
		allowed, err := b.limiter.Allow(ctx, chatID)
		if err != nil {
			log.Warn().Err(err).Msg("rate limiter unavailable, allowing message")
		} else if !allowed {
			return &usecase.Reply{Text: b.tr.T("rate_limited")}, nil
		}
	}
	reply, err := b.reply.Run(ctx, chatID, text, traceID)
	if err != nil {
		log.Error().Err(err).Msg("reply pipeline failed")
		return &usecase.Reply{Text: b.tr.T("reply_failed")}, nil
	}
	return &reply, nil
}

func (b *BotFacade) dispatchCommand(ctx context.Context, msg adapter.IncomingMessage, text string, log *zerolog.Logger) (*usecase.Reply, error) {
	cmd, err := model.ParseCommand(text)
	switch {
	case errors.Is(err, domain.ErrUnknownCommand):
		metrics.IncCommand("unknown", "rejected")
		return &usecase.Reply{Text: b.tr.T("invalid_command")}, nil
	case errors.Is(err, domain.ErrMissingArgument):
		metrics.IncCommand("incomplete", "rejected")
		return &usecase.Reply{Text: b.tr.T("no_argument")}, nil
	case err != nil:
		return nil, err
	}

	// Privileged commands from non-owners are ignored without a reply so the
	// control surface doesn't leak to arbitrary senders in a shared chat.
	if cmd.OwnerOnly() && !msg.SenderIsOwner {
		log.Debug().Str("command", string(cmd.Kind)).Str("chat_kind", msg.ChatKind).Msg("privileged command from non-owner ignored")
		metrics.IncCommand(string(cmd.Kind), "unauthorized")
		return nil, nil
	}

	out, err := b.execute(ctx, msg, cmd, log)
	if err != nil {
		metrics.IncCommand(string(cmd.Kind), "error")
		log.Error().Err(err).Str("command", string(cmd.Kind)).Msg("command failed")
		// The error is fully handled here; surface the fallback text so the
		// transport still answers the chat.
		if out != nil {
			return out, nil
		}
		return nil, err
	}
	metrics.IncCommand(string(cmd.Kind), "ok")
	return out, nil
}

func (b *BotFacade) execute(ctx context.Context, msg adapter.IncomingMessage, cmd model.Command, log *zerolog.Logger) (*usecase.Reply, error) {
	chatID := msg.ChatID
	switch cmd.Kind {
	case model.CmdHelp:
		return &usecase.Reply{Text: b.tr.T("help")}, nil

	case model.CmdListPrompts:
		names, err := b.prompts.List(ctx)
		if err != nil {
			return &usecase.Reply{Text: b.tr.T("reply_failed")}, err
		}
		if len(names) == 0 {
			return &usecase.Reply{Text: b.tr.T("prompts_empty")}, nil
		}
		sort.Strings(names)
		return &usecase.Reply{Text: b.tr.T("prompts_header") + "\n\n" + strings.Join(names, "\n")}, nil

	case model.CmdRefresh:
		return b.handleRefresh(chatID, log)

	case model.CmdAddChat:
		// Reaching here means the chat is already subscribed.
		return &usecase.Reply{Text: b.tr.T("chat_already_added")}, nil

	case model.CmdRemoveChat:
		if err := b.subs.Evict(ctx, chatID); err != nil {
			return &usecase.Reply{Text: b.tr.T("reply_failed")}, err
		}
		log.Info().Msg("chat evicted")
		return &usecase.Reply{Text: b.tr.T("chat_removed")}, nil

	case model.CmdAsk:
		return b.runDialogue(ctx, chatID, cmd.Arg, uuid.NewString(), log)

	case model.CmdNewPrompt:
		b.prompts.SetActive(cmd.Arg)
		if err := b.contexts.Reset(chatID, cmd.Arg); err != nil {
			return nil, err
		}
		return &usecase.Reply{Text: b.tr.T("prompt_set")}, nil

	case model.CmdAddToPrompt:
		combined := b.prompts.AppendToActive(cmd.Arg)
		if err := b.contexts.Reset(chatID, combined); err != nil {
			return nil, err
		}
		return &usecase.Reply{Text: b.tr.T("prompt_appended", cmd.Arg)}, nil

	case model.CmdSavePrompt:
		if err := b.prompts.SaveActive(ctx, cmd.Arg); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return &usecase.Reply{Text: b.tr.T("prompt_exists")}, nil
			}
			return &usecase.Reply{Text: b.tr.T("reply_failed")}, err
		}
		return &usecase.Reply{Text: b.tr.T("prompt_saved")}, nil

	case model.CmdLoadPrompt:
		loaded, err := b.prompts.Load(ctx, cmd.Arg)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &usecase.Reply{Text: b.tr.T("prompt_missing")}, nil
			}
			return &usecase.Reply{Text: b.tr.T("reply_failed")}, err
		}
		if err := b.contexts.Reset(chatID, loaded); err != nil {
			return nil, err
		}
		return &usecase.Reply{Text: b.tr.T("prompt_loaded", strings.ToLower(cmd.Arg))}, nil

	case model.CmdDeletePrompt:
		if err := b.prompts.Delete(ctx, cmd.Arg); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &usecase.Reply{Text: b.tr.T("prompt_missing")}, nil
			}
			return &usecase.Reply{Text: b.tr.T("reply_failed")}, err
		}
		return &usecase.Reply{Text: b.tr.T("prompt_deleted", strings.ToLower(cmd.Arg))}, nil
	}
	return &usecase.Reply{Text: b.tr.T("invalid_command")}, nil
}

// handleRefresh reloads the configuration document. On success every piece
// of runtime state derived from config is rebuilt: memory limit, models,
// active prompt, and the subscription set with all contexts reseeded. On
// failure nothing is applied and the previous state keeps serving.
func (b *BotFacade) handleRefresh(chatID string, log *zerolog.Logger) (*usecase.Reply, error) {
	next, err := b.cfg.Reload()
	if err != nil {
		log.Error().Err(err).Msg("config reload failed")
		return &usecase.Reply{Text: b.tr.T("refresh_failed")}, nil
	}
	b.contexts.SetMemoryLimit(next.Chat.MemoryLimit)
	b.reply.SetModels(usecase.Models{
		Text:       next.AI.TextModel,
		Image:      next.AI.ImageModel,
		Transcribe: next.AI.TranscribeModel,
	})
	b.prompts.SetActive(next.Chat.DefaultPrompt)
	b.subs.ResetAll(next.Chat.Subscriptions, next.Chat.DefaultPrompt)
	log.Info().Int("subscriptions", len(next.Chat.Subscriptions)).Msg("configuration reloaded")
	return &usecase.Reply{Text: b.tr.T("refresh_ok")}, nil
}

// Status is the read model served by the admin API.
type Status struct {
	StartedAt     time.Time    `json:"started_at"`
	ActivePrompt  int          `json:"active_prompt_chars"`
	Subscriptions []ChatStatus `json:"subscriptions"`
}

type ChatStatus struct {
	ChatID string `json:"chat_id"`
	Turns  int    `json:"turns"`
}

func (b *BotFacade) Status() Status {
	ids := b.subs.List()
	st := Status{
		StartedAt:     b.startedAt,
		ActivePrompt:  len(b.prompts.Active()),
		Subscriptions: make([]ChatStatus, 0, len(ids)),
	}
	for _, id := range ids {
		st.Subscriptions = append(st.Subscriptions, ChatStatus{ChatID: id, Turns: b.contexts.Len(id)})
	}
	return st
}
