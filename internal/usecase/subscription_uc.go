// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"sync"

	"telegram-ai-storyteller/internal/domain"
)

// SubscriptionPersister writes the subscription set to the configuration
// document. Persistence must succeed before the in-memory set mutates.
type SubscriptionPersister interface {
	SaveSubscriptions(chatIDs []string) error
}

// SubscriptionUseCase maintains the authoritative ordered set of chats the
// bot participates in, and keeps the conversation store in lockstep: a
// context exists for a chat iff the chat is subscribed.
type SubscriptionUseCase struct {
	mu        sync.Mutex
	order     []string
	index     map[string]struct{}
	persister SubscriptionPersister
	contexts  *ConversationStore
}

func NewSubscriptionUseCase(initial []string, persister SubscriptionPersister, contexts *ConversationStore, seedPrompt string) *SubscriptionUseCase {
	s := &SubscriptionUseCase{
		index:     make(map[string]struct{}, len(initial)),
		persister: persister,
		contexts:  contexts,
	}
	for _, id := range initial {
		if _, dup := s.index[id]; dup {
			continue
		}
		s.order = append(s.order, id)
		s.index[id] = struct{}{}
		contexts.Create(id, seedPrompt)
	}
	return s
}

func (s *SubscriptionUseCase) IsSubscribed(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[chatID]
	return ok
}

func (s *SubscriptionUseCase) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Admit adds a chat to the set and creates its context seeded with prompt.
// Returns false with no error when the chat was already subscribed. The set
// is persisted before the in-memory mutation commits.
func (s *SubscriptionUseCase) Admit(ctx context.Context, chatID, prompt string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[chatID]; ok {
		return false, nil
	}
	next := append(append([]string(nil), s.order...), chatID)
	if err := s.persister.SaveSubscriptions(next); err != nil {
		return false, err
	}
	s.order = next
	s.index[chatID] = struct{}{}
	s.contexts.Create(chatID, prompt)
	return true, nil
}

// Evict removes a chat and destroys its context.
func (s *SubscriptionUseCase) Evict(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[chatID]; !ok {
		return domain.ErrNotSubscribed
	}
	next := make([]string, 0, len(s.order)-1)
	for _, id := range s.order {
		if id != chatID {
			next = append(next, id)
		}
	}
	if err := s.persister.SaveSubscriptions(next); err != nil {
		return err
	}
	s.order = next
	delete(s.index, chatID)
	s.contexts.Destroy(chatID)
	return nil
}

// ResetAll rebuilds the set (and all contexts) from a freshly reloaded
// configuration. No persistence: the reloaded document is the source.
func (s *SubscriptionUseCase) ResetAll(chatIDs []string, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts.DestroyAll()
	s.order = nil
	s.index = make(map[string]struct{}, len(chatIDs))
	for _, id := range chatIDs {
		if _, dup := s.index[id]; dup {
			continue
		}
		s.order = append(s.order, id)
		s.index[id] = struct{}{}
		s.contexts.Create(id, prompt)
	}
}
