package application

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-storyteller/internal/config"
	"telegram-ai-storyteller/internal/domain/ports/adapter"
	"telegram-ai-storyteller/internal/infra/i18n"
	"telegram-ai-storyteller/internal/usecase"
)

const facadeTestConfig = `bot:
  token: "123:abc"
  owner_ids: [42]
ai:
  workers_account_id: "acct"
  workers_api_key: "key"
  text_model: "text-m"
  image_model: "image-m"
  transcribe_model: "stt-m"
chat:
  default_prompt: "You are a storyteller."
  memory_limit: 5
  subscriptions: ["100"]
`

type fixture struct {
	facade     *BotFacade
	tr         *i18n.Translator
	contexts   *usecase.ConversationStore
	subs       *usecase.SubscriptionUseCase
	prompts    *usecase.PromptUseCase
	promptRepo *memPromptRepo
	ai         *scriptedAI
	cfgPath    string
	logBuf     *safeBuffer
}

func newFixture(t *testing.T, limiter RateLimiter) *fixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(facadeTestConfig), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	mgr := config.NewManager(path, cfg)

	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		t.Fatalf("translator: %v", err)
	}

	logBuf := &safeBuffer{}
	log := zerolog.New(logBuf)
	contexts := usecase.NewConversationStore(cfg.Chat.MemoryLimit)
	promptRepo := newMemPromptRepo()
	prompts := usecase.NewPromptUseCase(cfg.Chat.DefaultPrompt, promptRepo)
	subs := usecase.NewSubscriptionUseCase(cfg.Chat.Subscriptions, mgr, contexts, cfg.Chat.DefaultPrompt)
	ai := &scriptedAI{}
	reply := usecase.NewReplyUseCase(contexts, ai, nil, usecase.Models{
		Text: cfg.AI.TextModel, Image: cfg.AI.ImageModel, Transcribe: cfg.AI.TranscribeModel,
	}, &log)

	return &fixture{
		facade:     NewBotFacade(&log, tr, mgr, contexts, subs, prompts, reply, limiter),
		tr:         tr,
		contexts:   contexts,
		subs:       subs,
		prompts:    prompts,
		promptRepo: promptRepo,
		ai:         ai,
		cfgPath:    path,
		logBuf:     logBuf,
	}
}

func msgFrom(chatID, text string) adapter.IncomingMessage {
	return adapter.IncomingMessage{
		ChatID: chatID,
		Text:   text,
		SentAt: time.Now().Add(time.Minute),
	}
}

func ownerMsg(chatID, text string) adapter.IncomingMessage {
	m := msgFrom(chatID, text)
	m.SenderIsOwner = true
	return m
}

func TestHandleMessage_DropsStale(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	m := msgFrom("100", "hello")
	m.SentAt = time.Now().Add(-time.Hour)

	reply, err := f.facade.HandleMessage(context.Background(), m)
	if err != nil || reply != nil {
		t.Fatalf("stale message must be dropped, got %+v %v", reply, err)
	}
}

func TestHandleMessage_DropsOwnNonCommand(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	m := msgFrom("100", "my own chatter")
	m.SenderIsSelf = true

	reply, err := f.facade.HandleMessage(context.Background(), m)
	if err != nil || reply != nil {
		t.Fatalf("self noise must be dropped, got %+v %v", reply, err)
	}

	// A command from the bot's own account still runs.
	m = msgFrom("100", "/help")
	m.SenderIsSelf = true
	reply, err = f.facade.HandleMessage(context.Background(), m)
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || !strings.HasPrefix(reply.Text, "Commands:") {
		t.Fatalf("self command should be handled, got %+v", reply)
	}
}

func TestHandleMessage_UnsubscribedChatIsSilent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	for _, m := range []adapter.IncomingMessage{
		msgFrom("999", "hello there"),
		msgFrom("999", "/help"),
		msgFrom("999", "/addchat"), // non-owner
	} {
		reply, err := f.facade.HandleMessage(context.Background(), m)
		if err != nil || reply != nil {
			t.Fatalf("unsubscribed traffic must be dropped: %q -> %+v %v", m.Text, reply, err)
		}
	}
}

func TestHandleMessage_OwnerAddChatAdmits(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	reply, err := f.facade.HandleMessage(context.Background(), ownerMsg("999", "/addchat"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text != f.tr.T("chat_added") {
		t.Fatalf("got %+v", reply)
	}
	if !f.subs.IsSubscribed("999") || !f.contexts.Has("999") {
		t.Fatalf("chat not admitted")
	}

	// Already subscribed path.
	reply, err = f.facade.HandleMessage(context.Background(), ownerMsg("999", "/addchat"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text != f.tr.T("chat_already_added") {
		t.Fatalf("got %+v", reply)
	}
}

func TestHandleMessage_OwnerRemoveChat(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	reply, err := f.facade.HandleMessage(context.Background(), ownerMsg("100", "/removechat"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text != f.tr.T("chat_removed") {
		t.Fatalf("got %+v", reply)
	}
	if f.subs.IsSubscribed("100") || f.contexts.Has("100") {
		t.Fatalf("chat not evicted")
	}
}

func TestHandleMessage_PrivilegedCommandFromNonOwnerIsSilent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	for _, text := range []string{"/refresh", "/removechat"} {
		reply, err := f.facade.HandleMessage(context.Background(), msgFrom("100", text))
		if err != nil || reply != nil {
			t.Fatalf("%q from non-owner must be silent, got %+v %v", text, reply, err)
		}
	}
	if !f.subs.IsSubscribed("100") {
		t.Fatalf("non-owner removechat must not evict")
	}
}

func TestHandleMessage_UnknownAndIncompleteCommands(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	reply, err := f.facade.HandleMessage(context.Background(), msgFrom("100", "/frobnicate"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text != f.tr.T("invalid_command") {
		t.Fatalf("got %+v", reply)
	}

	reply, err = f.facade.HandleMessage(context.Background(), msgFrom("100", "/saveprompt"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text != f.tr.T("no_argument") {
		t.Fatalf("got %+v", reply)
	}
}

func TestHandleMessage_DialoguePipeline(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.ai.replyText = "the dragon wakes"

	reply, err := f.facade.HandleMessage(context.Background(), msgFrom("100", "tell me a story"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text != "the dragon wakes" || len(reply.Image) == 0 {
		t.Fatalf("got %+v", reply)
	}
	if got := f.contexts.Len("100"); got != 3 {
		t.Fatalf("expected sys+user+assistant, got %d", got)
	}
}

func TestHandleMessage_DialogueFailureReturnsFriendlyText(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.ai.failChat = true

	reply, err := f.facade.HandleMessage(context.Background(), msgFrom("100", "hello"))
	if err != nil {
		t.Fatalf("pipeline failure is reported in-band: %v", err)
	}
	if reply == nil || reply.Text != f.tr.T("reply_failed") {
		t.Fatalf("got %+v", reply)
	}
	if got := f.contexts.Len("100"); got != 1 {
		t.Fatalf("rollback expected, context has %d turns", got)
	}
}

func TestHandleMessage_AskRunsDialogue(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.ai.replyText = "forty-two"

	reply, err := f.facade.HandleMessage(context.Background(), msgFrom("100", "/ask meaning of life"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text != "forty-two" {
		t.Fatalf("got %+v", reply)
	}
}

func TestHandleMessage_VoiceIsTranscribed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	m := msgFrom("100", "")
	m.Voice = []byte{1, 2, 3}
	m.VoiceMIME = "audio/ogg"

	reply, err := f.facade.HandleMessage(context.Background(), m)
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text == "" {
		t.Fatalf("voice message should produce a reply, got %+v", reply)
	}
	turns, err := f.contexts.Snapshot("100")
	if err != nil {
		t.Fatal(err)
	}
	if turns[1].Content != "voice transcript" {
		t.Fatalf("transcript not used as utterance: %q", turns[1].Content)
	}
}

func TestHandleMessage_RateLimited(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubLimiter{allow: false})
	reply, err := f.facade.HandleMessage(context.Background(), msgFrom("100", "hello"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text != f.tr.T("rate_limited") {
		t.Fatalf("got %+v", reply)
	}
	if got := f.contexts.Len("100"); got != 1 {
		t.Fatalf("limited message must not touch the context, got %d turns", got)
	}
}

func TestHandleMessage_PromptCommandsResetOnlyIssuingChat(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	// Give the other chat some history first.
	if _, err := f.facade.HandleMessage(context.Background(), ownerMsg("200", "/addchat")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.facade.HandleMessage(context.Background(), msgFrom("200", "hello there")); err != nil {
		t.Fatal(err)
	}

	reply, err := f.facade.HandleMessage(context.Background(), msgFrom("100", "/newprompt you are a pirate"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text != f.tr.T("prompt_set") {
		t.Fatalf("got %+v", reply)
	}
	if f.prompts.Active() != "you are a pirate" {
		t.Fatalf("active prompt %q", f.prompts.Active())
	}
	turns, err := f.contexts.Snapshot("100")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 1 || turns[0].Content != "you are a pirate" {
		t.Fatalf("issuing chat not reset: %+v", turns)
	}
	// The other chat keeps its history and its old system prompt.
	other, err := f.contexts.Snapshot("200")
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 3 || other[0].Content == "you are a pirate" {
		t.Fatalf("other chat disturbed: %+v", other)
	}
}

func TestHandleMessage_SaveLoadDeletePromptRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil)

	steps := []struct {
		text string
		want string
	}{
		{"/newprompt be a pirate", f.tr.T("prompt_set")},
		{"/saveprompt Pirate", f.tr.T("prompt_saved")},
		{"/saveprompt pirate", f.tr.T("prompt_exists")},
		{"/newprompt be a poet", f.tr.T("prompt_set")},
		{"/loadprompt PIRATE", f.tr.T("prompt_loaded", "pirate")},
		{"/deleteprompt Pirate", f.tr.T("prompt_deleted", "pirate")},
		{"/loadprompt pirate", f.tr.T("prompt_missing")},
	}
	for _, step := range steps {
		reply, err := f.facade.HandleMessage(ctx, msgFrom("100", step.text))
		if err != nil {
			t.Fatalf("%q: %v", step.text, err)
		}
		if reply == nil || reply.Text != step.want {
			t.Fatalf("%q: got %+v want %q", step.text, reply, step.want)
		}
	}
}

func TestHandleMessage_ListPrompts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	reply, err := f.facade.HandleMessage(context.Background(), msgFrom("100", "/listprompts"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text != f.tr.T("prompts_empty") {
		t.Fatalf("got %+v", reply)
	}

	for _, text := range []string{"/saveprompt beta", "/saveprompt alpha"} {
		if _, err := f.facade.HandleMessage(context.Background(), msgFrom("100", text)); err != nil {
			t.Fatal(err)
		}
	}
	reply, err = f.facade.HandleMessage(context.Background(), msgFrom("100", "/listprompts"))
	if err != nil {
		t.Fatal(err)
	}
	want := f.tr.T("prompts_header") + "\n\nalpha\nbeta"
	if reply == nil || reply.Text != want {
		t.Fatalf("got %q want %q", reply.Text, want)
	}
}

func TestHandleMessage_RefreshRebuildsFromConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	// Mutate runtime state away from the document.
	if _, err := f.facade.HandleMessage(context.Background(), msgFrom("100", "/newprompt temporary persona")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.facade.HandleMessage(context.Background(), ownerMsg("555", "/addchat")); err != nil {
		t.Fatal(err)
	}

	// Rewrite the document with a different subscription set.
	next := strings.Replace(facadeTestConfig, `subscriptions: ["100"]`, `subscriptions: ["300"]`, 1)
	if err := os.WriteFile(f.cfgPath, []byte(next), 0o600); err != nil {
		t.Fatal(err)
	}

	reply, err := f.facade.HandleMessage(context.Background(), ownerMsg("100", "/refresh"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text != f.tr.T("refresh_ok") {
		t.Fatalf("got %+v", reply)
	}
	if f.subs.IsSubscribed("100") || f.subs.IsSubscribed("555") {
		t.Fatalf("refresh must rebuild the subscription set from the document")
	}
	if !f.subs.IsSubscribed("300") || !f.contexts.Has("300") {
		t.Fatalf("documented chat missing after refresh")
	}
	if f.prompts.Active() != "You are a storyteller." {
		t.Fatalf("active prompt not restored: %q", f.prompts.Active())
	}
}

func TestHandleMessage_RefreshFailureKeepsState(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if err := os.WriteFile(f.cfgPath, []byte("bot: ["), 0o600); err != nil {
		t.Fatal(err)
	}

	reply, err := f.facade.HandleMessage(context.Background(), ownerMsg("100", "/refresh"))
	if err != nil {
		t.Fatal(err)
	}
	if reply == nil || reply.Text != f.tr.T("refresh_failed") {
		t.Fatalf("got %+v", reply)
	}
	if !f.subs.IsSubscribed("100") {
		t.Fatalf("failed refresh must keep serving prior state")
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if _, err := f.facade.HandleMessage(context.Background(), msgFrom("100", "hi")); err != nil {
		t.Fatal(err)
	}

	st := f.facade.Status()
	if len(st.Subscriptions) != 1 || st.Subscriptions[0].ChatID != "100" {
		t.Fatalf("status subscriptions %+v", st.Subscriptions)
	}
	if st.Subscriptions[0].Turns != 3 {
		t.Fatalf("expected 3 turns, got %d", st.Subscriptions[0].Turns)
	}
	if st.ActivePrompt == 0 {
		t.Fatalf("active prompt length missing")
	}
}

func TestHandleMessage_CommandFailureStillReplies(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.promptRepo.errNext = errors.New("store offline")

	reply, err := f.facade.HandleMessage(context.Background(), msgFrom("100", "/listprompts"))
	if err != nil {
		t.Fatalf("handled failure must not bubble an error, got %v", err)
	}
	if reply == nil || reply.Text != f.tr.T("reply_failed") {
		t.Fatalf("expected fallback reply, got %+v", reply)
	}
}

func TestHandleMessage_AdmissionLogsChatKind(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	m := ownerMsg("500", "/addchat")
	m.ChatKind = "group"
	if _, err := f.facade.HandleMessage(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.logBuf.String(), `"chat_kind":"group"`) {
		t.Fatalf("admission log missing chat_kind: %s", f.logBuf.String())
	}
}
