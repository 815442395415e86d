package insight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/compounding/growth-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiReply(t *testing.T, text string) []byte {
	t.Helper()
	body := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return data
}

func newTestClient(url string) *GeminiClient {
	return NewGeminiClient(GeminiConfig{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: url,
		Timeout: 2 * time.Second,
	}, logger.Nop())
}

var testRequest = Request{TotalDays: 365, DailyRate: 0.01, FinalValue: 37.78}

func TestGeminiClient_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write(geminiReply(t, `{"title":"Tiny Steps","message":"You grew 37x.","analogy":"Like a seed."}`))
	}))
	defer server.Close()

	ins, err := newTestClient(server.URL).RequestInsight(context.Background(), testRequest)
	require.NoError(t, err)

	assert.Equal(t, Insight{Title: "Tiny Steps", Message: "You grew 37x.", Analogy: "Like a seed."}, ins)
	assert.Equal(t, "/v1beta/models/test-model:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "application/json", gotBody.GenerationConfig.ResponseMimeType)
	require.Len(t, gotBody.Contents, 1)
	assert.Contains(t, gotBody.Contents[0].Parts[0].Text, "365 days")
}

func TestGeminiClient_FencedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(geminiReply(t, "```json\n{\"title\":\"T\",\"message\":\"M\",\"analogy\":\"A\"}\n```"))
	}))
	defer server.Close()

	ins, err := newTestClient(server.URL).RequestInsight(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, "T", ins.Title)
}

func TestGeminiClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			},
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>"))
			},
		},
		{
			name: "no candidates",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"candidates":[]}`))
			},
		},
		{
			name: "malformed insight text",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write(geminiReply(t, "not json at all"))
			},
		},
		{
			name: "incomplete insight",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write(geminiReply(t, `{"title":"only a title"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := newTestClient(server.URL).RequestInsight(context.Background(), testRequest)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnavailable), "expected ErrUnavailable, got %v", err)
			assert.False(t, errors.Is(err, ErrNotConfigured))
		})
	}
}

func TestGeminiClient_NotConfigured(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewGeminiClient(GeminiConfig{BaseURL: server.URL}, logger.Nop())
	_, err := client.RequestInsight(context.Background(), testRequest)

	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(0), calls.Load())
}

func TestGeminiClient_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	for i := 0; i < 5; i++ {
		_, err := client.RequestInsight(context.Background(), testRequest)
		assert.ErrorIs(t, err, ErrUnavailable)
	}

	assert.Equal(t, int32(3), calls.Load(), "breaker should stop calling upstream after 3 consecutive failures")
}

func TestBuildPrompt(t *testing.T) {
	up := BuildPrompt(Request{TotalDays: 100, DailyRate: 0.02, FinalValue: 7.24})
	assert.Contains(t, up, "2.0% better")
	assert.Contains(t, up, "100 days")
	assert.Contains(t, up, "7.24")

	down := BuildPrompt(Request{TotalDays: 365, DailyRate: -0.01, FinalValue: 0.03})
	assert.True(t, strings.Contains(down, "1.0% worse"), down)
}
