package application

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"telegram-ai-storyteller/internal/domain"
	"telegram-ai-storyteller/internal/domain/ports/adapter"
)

// errNext makes the next operation fail once, for persistence-failure paths.
type memPromptRepo struct {
	mu      sync.Mutex
	prompts map[string]string
	errNext error
}

func newMemPromptRepo() *memPromptRepo {
	return &memPromptRepo{prompts: map[string]string{}}
}

func (m *memPromptRepo) takeErr() error {
	err := m.errNext
	m.errNext = nil
	return err
}

func (m *memPromptRepo) Save(_ context.Context, name, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	if _, ok := m.prompts[name]; ok {
		return domain.ErrAlreadyExists
	}
	m.prompts[name] = text
	return nil
}

func (m *memPromptRepo) Get(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return "", err
	}
	text, ok := m.prompts[name]
	if !ok {
		return "", domain.ErrNotFound
	}
	return text, nil
}

func (m *memPromptRepo) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	if _, ok := m.prompts[name]; !ok {
		return domain.ErrNotFound
	}
	delete(m.prompts, name)
	return nil
}

func (m *memPromptRepo) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m.prompts))
	for name := range m.prompts {
		out = append(out, name)
	}
	return out, nil
}

// scriptedAI answers Chat calls in order: odd calls are the reply stage, even
// calls the summarize stage.
type scriptedAI struct {
	mu        sync.Mutex
	chatCalls int
	replyText string
	failChat  bool
}

func (f *scriptedAI) Chat(_ context.Context, _ string, _ []adapter.Message) (string, error) {
	f.mu.Lock()
	f.chatCalls++
	call := f.chatCalls
	f.mu.Unlock()
	if f.failChat {
		return "", errors.New("model down")
	}
	if call%2 == 1 {
		if f.replyText != "" {
			return f.replyText, nil
		}
		return "scripted reply", nil
	}
	return "scripted image prompt", nil
}

func (f *scriptedAI) GenerateImage(context.Context, string, string) ([]byte, error) {
	return []byte{1, 2, 3}, nil
}

func (f *scriptedAI) Transcribe(context.Context, string, []byte, string) (string, error) {
	return "voice transcript", nil
}

func (f *scriptedAI) CountTokens(context.Context, string, []adapter.Message) (int, error) {
	return 0, nil
}

type stubLimiter struct {
	allow bool
	err   error
}

func (s *stubLimiter) Allow(context.Context, string) (bool, error) {
	return s.allow, s.err
}

// safeBuffer is a locking log sink so tests can assert on emitted fields.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
