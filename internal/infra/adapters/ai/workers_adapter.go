package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"telegram-ai-storyteller/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*WorkersAdapter)(nil)

// WorkersAdapter implements adapter.AIServiceAdapter against Cloudflare
// Workers AI. Every capability is one POST to
// {base}/accounts/{account}/ai/run/{model} with a bearer token; the response
// envelope is {"result": ..., "success": bool, "errors": [...]}.
type WorkersAdapter struct {
	accountID string
	apiKey    string
	base      string // e.g., https://api.cloudflare.com/client/v4
	client    *http.Client

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

func NewWorkersAdapter(accountID, apiKey, base string) (*WorkersAdapter, error) {
	if accountID == "" || apiKey == "" {
		return nil, errors.New("workers ai: account id and api key required")
	}
	if base == "" {
		base = "https://api.cloudflare.com/client/v4"
	}
	return &WorkersAdapter{
		accountID: accountID,
		apiKey:    apiKey,
		base:      strings.TrimRight(base, "/"),
		client:    &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (w *WorkersAdapter) runURL(model string) string {
	return fmt.Sprintf("%s/accounts/%s/ai/run/%s", w.base, w.accountID, model)
}

func (w *WorkersAdapter) post(ctx context.Context, model string, body []byte, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.runURL(model), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("workers ai http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp, nil
}

func (w *WorkersAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reqBody := struct {
		Messages []adapter.Message `json:"messages"`
	}{Messages: messages}

	b, _ := json.Marshal(reqBody)
	resp, err := w.post(ctx, model, b, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var payload struct {
		Result struct {
			Response string `json:"response"`
		} `json:"result"`
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if !payload.Success || payload.Result.Response == "" {
		return "", errors.New("workers ai: empty chat response")
	}
	return payload.Result.Response, nil
}

// GenerateImage handles both response shapes Workers AI image models use:
// raw image bytes, or a JSON envelope carrying base64 in result.image.
func (w *WorkersAdapter) GenerateImage(ctx context.Context, model string, prompt string) ([]byte, error) {
	b, _ := json.Marshal(struct {
		Prompt string `json:"prompt"`
	}{Prompt: prompt})

	resp, err := w.post(ctx, model, b, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return io.ReadAll(resp.Body)
	}

	var payload struct {
		Result struct {
			Image string `json:"image"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Result.Image == "" {
		return nil, errors.New("workers ai: empty image response")
	}
	img, err := base64.StdEncoding.DecodeString(payload.Result.Image)
	if err != nil {
		return nil, fmt.Errorf("workers ai: decode image: %w", err)
	}
	return img, nil
}

// Transcribe posts the audio clip as the raw request body, the shape the
// Whisper models accept.
func (w *WorkersAdapter) Transcribe(ctx context.Context, model string, audio []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	resp, err := w.post(ctx, model, audio, mimeType)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var payload struct {
		Result struct {
			Text string `json:"text"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.Result.Text == "" {
		return "", errors.New("workers ai: empty transcript")
	}
	return payload.Result.Text, nil
}

// CountTokens is best-effort: Workers AI has no counting endpoint, so a
// cl100k_base estimate stands in for all models.
func (w *WorkersAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	w.encOnce.Do(func() {
		w.enc, _ = tiktoken.GetEncoding("cl100k_base")
	})
	total := 0
	for _, m := range messages {
		if w.enc != nil {
			total += len(w.enc.Encode(m.Content, nil, nil))
		} else {
			total += len(m.Content) / 4
		}
		total += 4 // rough per-message framing
	}
	return total, nil
}
