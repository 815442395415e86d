package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/compounding/growth-backend/pkg/logger"
	"github.com/sony/gobreaker"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-2.5-flash"
)

// GeminiConfig holds Generative Language API settings
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// GeminiClient requests insights from Google's Generative Language API.
// Calls go through a circuit breaker so a failing upstream is skipped
// quickly and the caller falls back.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// NewGeminiClient creates a new client. An empty API key yields a client
// that always returns ErrNotConfigured without touching the network.
func NewGeminiClient(cfg GeminiConfig, log *logger.Logger) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	c := &GeminiClient{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: log,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				logger.F("breaker", name),
				logger.F("from", from.String()),
				logger.F("to", to.String()))
		},
	})

	return c
}

// RequestInsight implements Provider
func (c *GeminiClient) RequestInsight(ctx context.Context, req Request) (Insight, error) {
	if c.apiKey == "" {
		return Insight{}, ErrNotConfigured
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.generate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Insight{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Insight{}, err
	}

	return result.(Insight), nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string  `json:"responseMimeType"`
		Temperature      float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *GeminiClient) generate(ctx context.Context, req Request) (Insight, error) {
	body := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: BuildPrompt(req)}},
		}},
	}
	body.GenerationConfig.ResponseMimeType = "application/json"
	body.GenerationConfig.Temperature = 0.9

	jsonData, err := json.Marshal(body)
	if err != nil {
		return Insight{}, fmt.Errorf("%w: failed to marshal request: %v", ErrUnavailable, err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return Insight{}, fmt.Errorf("%w: failed to create request: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Insight{}, fmt.Errorf("%w: request failed: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Insight{}, fmt.Errorf("%w: gemini returned %d: %s", ErrUnavailable, resp.StatusCode, string(respBody))
	}

	var gemResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gemResp); err != nil {
		return Insight{}, fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
	}
	if len(gemResp.Candidates) == 0 || len(gemResp.Candidates[0].Content.Parts) == 0 {
		return Insight{}, fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	return parseInsight(gemResp.Candidates[0].Content.Parts[0].Text)
}

// parseInsight decodes the model's JSON answer, tolerating a markdown fence.
func parseInsight(text string) (Insight, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var ins Insight
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &ins); err != nil {
		return Insight{}, fmt.Errorf("%w: malformed insight: %v", ErrUnavailable, err)
	}
	if !ins.Complete() {
		return Insight{}, fmt.Errorf("%w: incomplete insight", ErrUnavailable)
	}
	return ins, nil
}

// BuildPrompt renders the instruction sent to the model.
func BuildPrompt(req Request) string {
	pct := req.DailyRate * 100
	direction := "better"
	if req.DailyRate < 0 {
		direction = "worse"
		pct = math.Abs(pct)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Someone simulated getting %.1f%% %s every day for %d days. ", pct, direction, req.TotalDays)
	fmt.Fprintf(&sb, "Their tracked value ended at %.2f. ", req.FinalValue)
	sb.WriteString("Write a short, motivating insight about compounding habits. ")
	sb.WriteString(`Respond only with JSON of the form {"title": string, "message": string, "analogy": string}. `)
	sb.WriteString("Keep the title under 8 words, the message to two sentences and the analogy to one sentence.")
	return sb.String()
}
