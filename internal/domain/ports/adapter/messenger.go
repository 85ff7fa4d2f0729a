package adapter

import (
	"context"
	"time"
)

// MessengerAdapter is the outbound side of the transport: deliver a text or
// an illustrated reply to a chat.
type MessengerAdapter interface {
	SendText(ctx context.Context, chatID string, text string) error
	SendImage(ctx context.Context, chatID string, image []byte, caption string) error
}

// IncomingMessage is the transport-neutral inbound event the router consumes.
// ChatID is opaque to the core; the transport adapter owns its formatting.
// Exactly one of Text or Voice is meaningful per event.
type IncomingMessage struct {
	ChatID        string
	Text          string
	Voice         []byte
	VoiceMIME     string
	ChatKind      string // "private" | "group" | ...
	SenderIsSelf  bool   // authored by the bot's own account
	SenderIsOwner bool   // authored by a configured owner
	SentAt        time.Time
}
