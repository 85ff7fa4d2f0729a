// File: internal/infra/adapters/telegram/real_bot.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-ai-storyteller/internal/application"
	"telegram-ai-storyteller/internal/config"
	"telegram-ai-storyteller/internal/domain/ports/adapter"
	"telegram-ai-storyteller/internal/usecase"
)

// Telegram caps photo captions at 1024 characters; longer replies are split
// into the caption plus a follow-up message.
const maxCaptionLen = 1024

var _ adapter.MessengerAdapter = (*RealBotAdapter)(nil)

// RealBotAdapter polls Telegram updates with tgbotapi and delegates each one
// to the BotFacade. Replies come back as values and are forwarded here.
type RealBotAdapter struct {
	bot    *tgbotapi.BotAPI
	facade *application.BotFacade
	log    *zerolog.Logger
	http   *http.Client

	ownerIDs      map[int64]struct{}
	updateWorkers int
	cancelPolling context.CancelFunc
}

func NewRealBotAdapter(cfg *config.BotConfig, facade *application.BotFacade, log *zerolog.Logger) (*RealBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if facade == nil {
		return nil, errors.New("bot facade is nil")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}

	owners := map[int64]struct{}{}
	for _, id := range cfg.OwnerIDs {
		owners[id] = struct{}{}
	}

	return &RealBotAdapter{
		bot:           bot,
		facade:        facade,
		log:           log,
		http:          &http.Client{Timeout: 30 * time.Second},
		ownerIDs:      owners,
		updateWorkers: workers,
	}, nil
}

func (r *RealBotAdapter) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case up := <-updateChan:
					if err := r.handleUpdate(ctx, up); err != nil {
						r.log.Error().Err(err).Int("worker", id).Msg("update handling failed")
					}
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		case up := <-updates:
			updateChan <- up
		}
	}
}

func (r *RealBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *RealBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	tgMsg := update.Message
	if tgMsg == nil || tgMsg.Chat == nil {
		return nil
	}
	from := tgMsg.From
	if from == nil {
		return nil
	}

	msg := adapter.IncomingMessage{
		ChatID:        strconv.FormatInt(tgMsg.Chat.ID, 10),
		Text:          messageText(tgMsg),
		ChatKind:      tgMsg.Chat.Type,
		SenderIsSelf:  from.ID == r.bot.Self.ID,
		SenderIsOwner: r.isOwner(from.ID),
		SentAt:        time.Unix(int64(tgMsg.Date), 0),
	}

	if tgMsg.Voice != nil {
		data, err := r.downloadFile(ctx, tgMsg.Voice.FileID)
		if err != nil {
			r.log.Warn().Err(err).Str("chat_id", msg.ChatID).Msg("voice download failed")
		} else {
			msg.Voice = data
			msg.VoiceMIME = tgMsg.Voice.MimeType
		}
	}

	// Typing indicator while the pipeline runs; errors here are cosmetic.
	_, _ = r.bot.Request(tgbotapi.NewChatAction(tgMsg.Chat.ID, tgbotapi.ChatTyping))

	reply, err := r.facade.HandleMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("facade: %w", err)
	}
	if reply == nil {
		return nil
	}
	return r.deliver(ctx, tgMsg.Chat.ID, reply)
}

func (r *RealBotAdapter) deliver(ctx context.Context, chatID int64, reply *usecase.Reply) error {
	if len(reply.Image) == 0 {
		if reply.Text == "" {
			return nil
		}
		return r.sendText(chatID, reply.Text)
	}

	_, _ = r.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadPhoto))

	caption, overflow := splitCaption(reply.Text)
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "illustration.png", Bytes: reply.Image})
	photo.Caption = caption
	if _, err := r.bot.Send(photo); err != nil {
		// Fall back to text so the reply itself is never lost.
		r.log.Warn().Err(err).Int64("chat_id", chatID).Msg("photo send failed, falling back to text")
		return r.sendText(chatID, reply.Text)
	}
	if overflow != "" {
		return r.sendText(chatID, overflow)
	}
	return nil
}

// SendText implements the messenger port for out-of-band sends (admin API).
func (r *RealBotAdapter) SendText(ctx context.Context, chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q: %w", chatID, err)
	}
	return r.sendText(id, text)
}

func (r *RealBotAdapter) SendImage(ctx context.Context, chatID string, image []byte, caption string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q: %w", chatID, err)
	}
	return r.deliver(ctx, id, &usecase.Reply{Text: caption, Image: image})
}

func (r *RealBotAdapter) sendText(chatID int64, text string) error {
	_, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// splitCaption cuts text for the media caption on a rune boundary. Telegram
// measures captions in UTF-16 code units, and a UTF-8 byte count bounds that
// from above, so a cut at or below maxCaptionLen bytes always fits.
func splitCaption(text string) (caption, overflow string) {
	if len(text) <= maxCaptionLen {
		return text, ""
	}
	cut := maxCaptionLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut], text[cut:]
}

func (r *RealBotAdapter) isOwner(userID int64) bool {
	_, ok := r.ownerIDs[userID]
	return ok
}

func (r *RealBotAdapter) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	url, err := r.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 20<<20))
}

func messageText(m *tgbotapi.Message) string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}
