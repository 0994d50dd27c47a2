package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel    = "gemini-2.0-flash"
)

type GeminiConfig struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
}

// GeminiProvider calls the generateContent REST endpoint.
type GeminiProvider struct {
	client *resty.Client
	apiKey string
	model  string
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
	SafetySettings   []geminiSafetySetting  `json:"safetySettings"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

var geminiSafety = []geminiSafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
}

func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGeminiEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &GeminiProvider{client: client, apiKey: cfg.APIKey, model: cfg.Model}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Generate(ctx context.Context, prompt string, img *Image) (string, error) {
	parts := []geminiPart{{Text: prompt}}
	if img != nil {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: img.mimeType(),
			Data:     img.base64(),
		}})
	}

	body := geminiRequest{
		Contents: []geminiContent{{Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.1,
			TopK:            32,
			TopP:            1,
			MaxOutputTokens: 2048,
		},
		SafetySettings: geminiSafety,
	}

	var out geminiResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("key", p.apiKey).
		SetBody(body).
		SetResult(&out).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", p.model))
	if err != nil {
		return "", fmt.Errorf("failed to call gemini: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: %d %s", ErrProviderStatus, resp.StatusCode(), truncate(resp.String(), 200))
	}

	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	text := out.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
