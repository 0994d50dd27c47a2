package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API root, e.g. for a compatible gateway.
	BaseURL string
}

// OpenAIProvider uses the chat completions API with an image data URL.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(clientCfg), model: cfg.Model}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, img *Image) (string, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if img == nil {
		msg.Content = prompt
	} else {
		msg.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", img.mimeType(), img.base64()),
				Detail: openai.ImageURLDetailAuto,
			}},
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			msg,
		},
		MaxTokens:   2048,
		Temperature: 0.1,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: %d %s", ErrProviderStatus, apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("failed to call openai: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
