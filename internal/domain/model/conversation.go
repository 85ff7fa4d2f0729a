package model

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message-equivalent unit of dialogue history.
type Turn struct {
	Role    Role
	Content string
}

// Conversation is the per-chat dialogue context. Turns[0] is always the
// single system turn carrying the prompt the chat was seeded with; turns
// after it alternate user/assistant in arrival order.
type Conversation struct {
	ChatID    string
	Turns     []Turn
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewConversation(chatID, prompt string) *Conversation {
	now := time.Now()
	return &Conversation{
		ChatID:    chatID,
		Turns:     []Turn{{Role: RoleSystem, Content: prompt}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Conversation) Append(role Role, content string) {
	c.Turns = append(c.Turns, Turn{Role: role, Content: content})
	c.UpdatedAt = time.Now()
}

// DropLast removes the most recent non-system turn. Used to reconcile the
// context after a failed generation so no orphaned user turn is left behind.
func (c *Conversation) DropLast() {
	if len(c.Turns) > 1 {
		c.Turns = c.Turns[:len(c.Turns)-1]
		c.UpdatedAt = time.Now()
	}
}

// Trim enforces the memory window: while the turn count has reached
// 2*limit+1 (the +1 is the permanent system turn), the oldest user/assistant
// pair is evicted. The loop rather than a single eviction keeps the invariant
// after a config reload lowers the limit.
func (c *Conversation) Trim(limit int) int {
	if limit <= 0 {
		return 0
	}
	evicted := 0
	for len(c.Turns) >= 2*limit+1 && len(c.Turns) > 2 {
		c.Turns = append(c.Turns[:1], c.Turns[3:]...)
		evicted += 2
	}
	if evicted > 0 {
		c.UpdatedAt = time.Now()
	}
	return evicted
}

// Reset replaces the whole history with a single system turn.
func (c *Conversation) Reset(prompt string) {
	c.Turns = []Turn{{Role: RoleSystem, Content: prompt}}
	c.UpdatedAt = time.Now()
}

func (c *Conversation) SystemPrompt() string {
	if len(c.Turns) == 0 {
		return ""
	}
	return c.Turns[0].Content
}
