package repository

import "context"

// NamedPromptRepository persists the named-prompt document. Names are
// lower-cased by callers before every operation so save/load/delete agree on
// case-insensitive keys.
type NamedPromptRepository interface {
	// Save stores a prompt under name. Returns domain.ErrAlreadyExists when
	// the name is taken; existing prompts are never overwritten silently.
	Save(ctx context.Context, name, text string) error

	// Get returns the prompt stored under name or domain.ErrNotFound.
	Get(ctx context.Context, name string) (string, error)

	// Delete removes a stored prompt or returns domain.ErrNotFound.
	Delete(ctx context.Context, name string) error

	// List returns all stored names in no particular order.
	List(ctx context.Context) ([]string, error)
}
