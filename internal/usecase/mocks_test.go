package usecase

import (
	"context"
	"fmt"
	"sync"

	"telegram-ai-storyteller/internal/domain"
	"telegram-ai-storyteller/internal/domain/model"
	"telegram-ai-storyteller/internal/domain/ports/adapter"
)

//
// ---------------- in-memory fakes shared across usecase tests ----------------
//

type memPromptRepo struct {
	mu      sync.Mutex
	prompts map[string]string
}

func newMemPromptRepo() *memPromptRepo {
	return &memPromptRepo{prompts: map[string]string{}}
}

func (m *memPromptRepo) Save(_ context.Context, name, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prompts[name]; ok {
		return domain.ErrAlreadyExists
	}
	m.prompts[name] = text
	return nil
}

func (m *memPromptRepo) Get(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.prompts[name]
	if !ok {
		return "", domain.ErrNotFound
	}
	return text, nil
}

func (m *memPromptRepo) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prompts[name]; !ok {
		return domain.ErrNotFound
	}
	delete(m.prompts, name)
	return nil
}

func (m *memPromptRepo) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.prompts))
	for name := range m.prompts {
		out = append(out, name)
	}
	return out, nil
}

// memPersister records every saved subscription set; errNext makes the next
// save fail so persist-before-commit paths can be exercised.
type memPersister struct {
	mu      sync.Mutex
	saved   [][]string
	errNext error
}

func (m *memPersister) SaveSubscriptions(chatIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errNext != nil {
		err := m.errNext
		m.errNext = nil
		return err
	}
	m.saved = append(m.saved, append([]string(nil), chatIDs...))
	return nil
}

func (m *memPersister) lastSaved() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil
	}
	return m.saved[len(m.saved)-1]
}

// fakeAI scripts the gateway per call site. chatCalls counts Chat invocations
// so tests can distinguish the reply stage (first call) from the summarize
// stage (second call).
type fakeAI struct {
	mu        sync.Mutex
	chatCalls int

	chatFn       func(call int, model string, msgs []adapter.Message) (string, error)
	imageFn      func(model, prompt string) ([]byte, error)
	transcribeFn func(model string, audio []byte, mime string) (string, error)

	lastImagePrompt string
}

func (f *fakeAI) Chat(_ context.Context, model string, msgs []adapter.Message) (string, error) {
	f.mu.Lock()
	f.chatCalls++
	call := f.chatCalls
	f.mu.Unlock()
	if f.chatFn != nil {
		return f.chatFn(call, model, msgs)
	}
	return fmt.Sprintf("reply-%d", call), nil
}

func (f *fakeAI) GenerateImage(_ context.Context, model, prompt string) ([]byte, error) {
	f.mu.Lock()
	f.lastImagePrompt = prompt
	f.mu.Unlock()
	if f.imageFn != nil {
		return f.imageFn(model, prompt)
	}
	return []byte{0x89, 0x50, 0x4e, 0x47}, nil
}

func (f *fakeAI) Transcribe(_ context.Context, model string, audio []byte, mime string) (string, error) {
	if f.transcribeFn != nil {
		return f.transcribeFn(model, audio, mime)
	}
	return "transcript", nil
}

func (f *fakeAI) CountTokens(_ context.Context, _ string, msgs []adapter.Message) (int, error) {
	n := 0
	for _, m := range msgs {
		n += len(m.Content) / 4
	}
	return n, nil
}

// memArchive collects archived turns for assertion.
type memArchive struct {
	mu    sync.Mutex
	turns []model.Turn
}

func (m *memArchive) SaveTurn(_ context.Context, _ string, t model.Turn, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
	return nil
}
