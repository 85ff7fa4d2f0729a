// File: internal/infra/filestore/prompt_repo.go
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"telegram-ai-storyteller/internal/domain"
	"telegram-ai-storyteller/internal/domain/ports/repository"
)

var _ repository.NamedPromptRepository = (*PromptRepository)(nil)

// PromptRepository keeps the named prompt library in one JSON document on
// disk. Every mutation rewrites the whole file; the library is small and a
// full rewrite keeps the document consistent after a crash.
type PromptRepository struct {
	mu   sync.Mutex
	path string
}

func NewPromptRepository(path string) (*PromptRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("filestore: empty prompts path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("filestore: %w", err)
	}
	r := &PromptRepository{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := r.write(map[string]string{}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PromptRepository) Save(ctx context.Context, name, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.read()
	if err != nil {
		return err
	}
	if _, ok := doc[name]; ok {
		return fmt.Errorf("prompt %q: %w", name, domain.ErrAlreadyExists)
	}
	doc[name] = text
	return r.write(doc)
}

func (r *PromptRepository) Get(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.read()
	if err != nil {
		return "", err
	}
	text, ok := doc[name]
	if !ok {
		return "", fmt.Errorf("prompt %q: %w", name, domain.ErrNotFound)
	}
	return text, nil
}

func (r *PromptRepository) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.read()
	if err != nil {
		return err
	}
	if _, ok := doc[name]; !ok {
		return fmt.Errorf("prompt %q: %w", name, domain.ErrNotFound)
	}
	delete(doc, name)
	return r.write(doc)
}

func (r *PromptRepository) List(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, err := r.read()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	return names, nil
}

func (r *PromptRepository) read() (map[string]string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("filestore: read %s: %w", r.path, err)
	}
	doc := map[string]string{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("filestore: parse %s: %w", r.path, err)
		}
	}
	return doc, nil
}

// write lands the document via a temp file and rename so readers never see a
// half-written library.
func (r *PromptRepository) write(doc map[string]string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: encode: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("filestore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("filestore: rename: %w", err)
	}
	return nil
}
