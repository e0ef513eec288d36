package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Config holds the settings for the OpenAI-compatible client.
type Config struct {
	// BaseURL is the API root, e.g. "http://localhost:1234/v1".
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Model is the model identifier passed on every request.
	Model string

	// Temperature is the sampling temperature.
	Temperature float32

	// Timeout overrides DefaultTimeout for requests that do not carry
	// their own. Zero keeps the default.
	Timeout time.Duration
}

// chatMessage is one entry of the chat completions messages array.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the chat completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatResponse is the subset of the chat completions response we consume.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// OpenAIClient implements Client against any OpenAI-compatible chat
// completions endpoint.
type OpenAIClient struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// NewOpenAIClient creates a client for the configured endpoint.
func NewOpenAIClient(cfg Config, log *slog.Logger) *OpenAIClient {
	if log == nil {
		log = slog.Default()
	}

	cfg.BaseURL = normalizeBaseURL(cfg.BaseURL)

	return &OpenAIClient{
		cfg: cfg,
		log: log.With("component", "llm"),
		http: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// Complete implements Client. The per-call timeout is applied via the
// context so an unresponsive endpoint cannot stall a generation workflow
// past its deadline.
func (c *OpenAIClient) Complete(ctx context.Context,
	req Request) (string, error) {

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{
			Role:    "system",
			Content: req.System,
		})
	}
	messages = append(messages, chatMessage{
		Role:    "user",
		Content: req.Prompt,
	})

	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, endpoint, bytes.NewReader(payload),
	)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("completion status %s", resp.Status)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("response missing choices")
	}

	content := decoded.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("empty completion")
	}

	c.log.DebugContext(ctx, "Completion finished",
		"model", c.cfg.Model,
		"elapsed", time.Since(started),
		"chars", len(content),
	)

	return content, nil
}

// normalizeBaseURL ensures the base URL carries a scheme, no trailing slash,
// and a /v1 suffix.
func normalizeBaseURL(baseURL string) string {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return trimmed
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed
	}
	return trimmed + "/v1"
}
