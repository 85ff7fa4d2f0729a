// File: internal/usecase/prompt_uc.go
package usecase

import (
	"context"
	"strings"
	"sync"

	"telegram-ai-storyteller/internal/domain/ports/repository"
)

// PromptUseCase owns the process-wide active prompt and the named-prompt
// store. The active prompt seeds newly admitted or freshly reset chats; a
// prompt change never rewrites other chats' existing contexts — only the
// issuing chat gets reset, by the caller.
type PromptUseCase struct {
	mu     sync.RWMutex
	active string
	store  repository.NamedPromptRepository
}

func NewPromptUseCase(defaultPrompt string, store repository.NamedPromptRepository) *PromptUseCase {
	return &PromptUseCase{active: defaultPrompt, store: store}
}

func (p *PromptUseCase) Active() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// SetActive replaces the active prompt.
func (p *PromptUseCase) SetActive(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = text
}

// AppendToActive adds text as a new line of the active prompt and returns
// the combined result.
func (p *PromptUseCase) AppendToActive(text string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = p.active + "\n" + text
	return p.active
}

// SaveActive stores the active prompt under a case-insensitive name.
// Existing names are never overwritten silently.
func (p *PromptUseCase) SaveActive(ctx context.Context, name string) error {
	return p.store.Save(ctx, strings.ToLower(name), p.Active())
}

// Load looks a prompt up by case-insensitive name and makes it the active
// prompt. Returns the prompt text.
func (p *PromptUseCase) Load(ctx context.Context, name string) (string, error) {
	text, err := p.store.Get(ctx, strings.ToLower(name))
	if err != nil {
		return "", err
	}
	p.SetActive(text)
	return text, nil
}

// Delete removes a stored prompt. The lookup is lower-cased like save/load,
// so the store's case-insensitive key invariant holds for all three.
func (p *PromptUseCase) Delete(ctx context.Context, name string) error {
	return p.store.Delete(ctx, strings.ToLower(name))
}

func (p *PromptUseCase) List(ctx context.Context) ([]string, error) {
	return p.store.List(ctx)
}
