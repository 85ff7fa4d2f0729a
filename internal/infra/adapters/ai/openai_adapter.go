package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"telegram-ai-storyteller/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.AIServiceAdapter with the official SDK.
// A custom base URL targets any OpenAI-compatible gateway.
type OpenAIAdapter struct {
	client openai.Client

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

func NewOpenAIAdapter(apiKey, baseURL string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")))
	}
	return &OpenAIAdapter{client: openai.NewClient(opts...)}, nil
}

func (o *OpenAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		switch strings.ToLower(m.Role) {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", errors.New("openai: no choice content")
}

func (o *OpenAIAdapter) GenerateImage(ctx context.Context, model string, prompt string) ([]byte, error) {
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(model),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("openai: empty image response")
	}
	return base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
}

func (o *OpenAIAdapter) Transcribe(ctx context.Context, model string, audio []byte, mimeType string) (string, error) {
	resp, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(model),
		File:  openai.File(bytes.NewReader(audio), "voice.ogg", mimeType),
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CountTokens uses the local cl100k_base tokenizer; close enough for the
// metrics it feeds.
func (o *OpenAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	o.encOnce.Do(func() {
		o.enc, _ = tiktoken.GetEncoding("cl100k_base")
	})
	if o.enc == nil {
		return 0, errors.New("tokenizer unavailable")
	}
	total := 0
	for _, m := range messages {
		total += len(o.enc.Encode(m.Content, nil, nil)) + 4
	}
	return total, nil
}
