package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiProvider_Generate(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"triageLevel\":\"Red\"}"}]}}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(GeminiConfig{APIKey: "test-key", Endpoint: srv.URL, Timeout: time.Second})
	text, err := p.Generate(context.Background(), "analyse", &Image{Data: []byte{0xff, 0xd8}})
	require.NoError(t, err)
	assert.Equal(t, `{"triageLevel":"Red"}`, text)

	require.Len(t, got.Contents, 1)
	require.Len(t, got.Contents[0].Parts, 2)
	assert.Equal(t, "analyse", got.Contents[0].Parts[0].Text)
	assert.Equal(t, "image/jpeg", got.Contents[0].Parts[1].InlineData.MimeType)
	assert.Equal(t, "/9g=", got.Contents[0].Parts[1].InlineData.Data)
	assert.Equal(t, 0.1, got.GenerationConfig.Temperature)
	assert.Equal(t, 32, got.GenerationConfig.TopK)
	assert.Equal(t, 2048, got.GenerationConfig.MaxOutputTokens)
	assert.Len(t, got.SafetySettings, 4)
}

func TestGeminiProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"non-200", http.StatusForbidden, `{"error":{"message":"API key invalid"}}`, ErrProviderStatus},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, ErrEmptyResponse},
		{"blank text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`, ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewGeminiProvider(GeminiConfig{APIKey: "k", Endpoint: srv.URL, Timeout: time.Second})
			_, err := p.Generate(context.Background(), "x", nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOpenAIProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		raw, _ := json.Marshal(body["messages"])
		assert.True(t, strings.Contains(string(raw), "data:image/png;base64,"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"true"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	text, err := p.Generate(context.Background(), "is it fake?", &Image{Data: []byte("png"), MimeType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "true", text)
}

func TestOpenAIProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-bad", BaseURL: srv.URL + "/v1"})
	_, err := p.Generate(context.Background(), "ping", nil)
	assert.ErrorIs(t, err, ErrProviderStatus)
}

func TestImageHash(t *testing.T) {
	a := &Image{Data: []byte("same")}
	b := &Image{Data: []byte("same"), FileName: "other.jpg"}
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 64)
}
