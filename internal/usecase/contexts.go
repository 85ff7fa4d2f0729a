// File: internal/usecase/contexts.go
package usecase

import (
	"sync"

	"telegram-ai-storyteller/internal/domain"
	"telegram-ai-storyteller/internal/domain/model"
)

// ConversationStore owns one bounded dialogue context per subscribed chat.
// Create/Destroy are called only by the subscription manager so the store
// stays in lockstep with the subscription set.
//
// LockChat serializes whole-turn handling per chat: two in-flight pipeline
// runs never interleave reads and writes on the same context, while distinct
// chats proceed independently.
//
// A config reload replaces contexts without taking the per-chat locks, so a
// pipeline run suspended inside a gateway call could otherwise land its
// assistant turn on a freshly seeded context. Each context therefore carries
// an epoch: AppendUser returns the epoch it wrote under, and the post-call
// mutations (AppendAssistant, DropLast) refuse to touch a context whose
// epoch has moved on.
type ConversationStore struct {
	mu     sync.Mutex
	convs  map[string]*model.Conversation
	locks  map[string]*sync.Mutex
	epochs map[string]uint64
	limit  int
}

func NewConversationStore(memoryLimit int) *ConversationStore {
	return &ConversationStore{
		convs:  make(map[string]*model.Conversation),
		locks:  make(map[string]*sync.Mutex),
		epochs: make(map[string]uint64),
		limit:  memoryLimit,
	}
}

// LockChat acquires the per-chat handling lock and returns its release func.
// Lock entries are kept after Destroy; they are tiny and a chat may be
// re-admitted later.
func (s *ConversationStore) LockChat(chatID string) func() {
	s.mu.Lock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// SetMemoryLimit updates the retained-pair limit; the new window is enforced
// lazily by the next Trim on each chat.
func (s *ConversationStore) SetMemoryLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.limit = n
	}
}

func (s *ConversationStore) Create(chatID, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[chatID]; !ok {
		s.convs[chatID] = model.NewConversation(chatID, prompt)
		s.epochs[chatID]++
	}
}

func (s *ConversationStore) Destroy(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[chatID]; ok {
		delete(s.convs, chatID)
		s.epochs[chatID]++
	}
}

// DestroyAll clears every context; used when a config reload rebuilds the
// subscription set wholesale.
func (s *ConversationStore) DestroyAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.convs {
		s.epochs[id]++
	}
	s.convs = make(map[string]*model.Conversation)
}

func (s *ConversationStore) Has(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.convs[chatID]
	return ok
}

func (s *ConversationStore) get(chatID string) (*model.Conversation, error) {
	c, ok := s.convs[chatID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

// AppendUser records the user turn and returns the epoch it was written
// under, which the caller passes back to AppendAssistant and DropLast.
func (s *ConversationStore) AppendUser(chatID, text string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(chatID)
	if err != nil {
		return 0, err
	}
	c.Append(model.RoleUser, text)
	return s.epochs[chatID], nil
}

// AppendAssistant records the assistant turn, unless the context was
// replaced since epoch was observed.
func (s *ConversationStore) AppendAssistant(chatID, text string, epoch uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(chatID)
	if err != nil {
		return err
	}
	if s.epochs[chatID] != epoch {
		return domain.ErrStaleContext
	}
	c.Append(model.RoleAssistant, text)
	return nil
}

// Trim enforces the sliding window just-in-time, after a user append and
// before the context is sent to the gateway.
func (s *ConversationStore) Trim(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(chatID)
	if err != nil {
		return err
	}
	c.Trim(s.limit)
	return nil
}

// DropLast rolls back the most recent turn after a failed generation. A
// replaced context has nothing to roll back, so a stale epoch is refused.
func (s *ConversationStore) DropLast(chatID string, epoch uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(chatID)
	if err != nil {
		return err
	}
	if s.epochs[chatID] != epoch {
		return domain.ErrStaleContext
	}
	c.DropLast()
	return nil
}

func (s *ConversationStore) Reset(chatID, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(chatID)
	if err != nil {
		return err
	}
	c.Reset(prompt)
	s.epochs[chatID]++
	return nil
}

// Snapshot returns a copy of the chat's turns, safe to hand to the gateway
// while other chats mutate the store.
func (s *ConversationStore) Snapshot(chatID string) ([]model.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(chatID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Turn, len(c.Turns))
	copy(out, c.Turns)
	return out, nil
}

// Len reports the turn count for a chat, zero when absent.
func (s *ConversationStore) Len(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[chatID]
	if !ok {
		return 0
	}
	return len(c.Turns)
}

func (s *ConversationStore) ChatIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.convs))
	for id := range s.convs {
		out = append(out, id)
	}
	return out
}
