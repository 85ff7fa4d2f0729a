package adapter

import "context"

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// AIServiceAdapter is the port for the hosted inference gateway. Each call is
// stateless request/response; the caller owns all conversation state and
// decides what a failure means for the current turn.
type AIServiceAdapter interface {
	// Chat sends the full turn sequence and returns only the assistant text.
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// Transcribe is one-shot speech-to-text, no context.
	Transcribe(ctx context.Context, model string, audio []byte, mimeType string) (string, error)

	// GenerateImage is one-shot text-to-image, no context. Returns raw bytes.
	GenerateImage(ctx context.Context, model string, prompt string) ([]byte, error)

	// CountTokens returns prompt tokens for the provided messages
	// (provider-specific counting; best-effort when exact isn't available).
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)
}
