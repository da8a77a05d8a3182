// Package llm provides the client for an Ollama-compatible reasoning
// service: model discovery and single-shot text generation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnavailable means the service could not be reached or answered
	// with a non-200 status.
	ErrUnavailable = errors.New("reasoning service unavailable")
	// ErrNoModels means the service is up but lists no models.
	ErrNoModels = errors.New("reasoning service lists no models")
	// ErrEmpty means the service answered with no text.
	ErrEmpty = errors.New("empty response")
	// ErrRateLimited means the per-minute call budget is spent.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Config configures the client.
type Config struct {
	URL             string        `yaml:"url"`
	PreferredModels []string      `yaml:"preferred_models"`
	Timeout         time.Duration `yaml:"timeout"`
	CallsPerMinute  int           `yaml:"calls_per_minute"`
	Temperature     float64       `yaml:"temperature"`
	TopP            float64       `yaml:"top_p"`
}

// Client talks to the /api/tags and /api/generate endpoints.
type Client struct {
	baseURL    string
	model      string
	options    map[string]float64
	preferred  []string
	httpClient *http.Client

	// Rate limiting: max calls per minute.
	mu        sync.Mutex
	callCount int
	resetAt   time.Time
	maxPerMin int
}

// NewClient creates a client. No model is selected until SelectModel runs.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		preferred: cfg.PreferredModels,
		options: map[string]float64{
			"temperature": cfg.Temperature,
			"top_p":       cfg.TopP,
		},
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxPerMin: cfg.CallsPerMinute,
	}
}

// Model returns the selected model name, empty before SelectModel succeeds.
func (c *Client) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Models lists the models the service has installed.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var tags tagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// SelectModel picks the first installed model whose name contains a
// preferred substring, in preference order, else the first installed model.
func (c *Client) SelectModel(ctx context.Context) (string, error) {
	names, err := c.Models(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNoModels
	}
	chosen := names[0]
pick:
	for _, want := range c.preferred {
		for _, n := range names {
			if strings.Contains(n, want) {
				chosen = n
				break pick
			}
		}
	}

	c.mu.Lock()
	c.model = chosen
	c.mu.Unlock()
	slog.Info("reasoning model selected", "model", chosen, "available", len(names))
	return chosen, nil
}

type generateRequest struct {
	Model   string             `json:"model"`
	Prompt  string             `json:"prompt"`
	Stream  bool               `json:"stream"`
	Options map[string]float64 `json:"options,omitempty"`
}

type generateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate sends prompt to the selected model and returns the response text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	model := c.Model()
	if model == "" {
		return "", fmt.Errorf("%w: no model selected", ErrUnavailable)
	}

	// Rate limiting.
	c.mu.Lock()
	now := time.Now()
	if now.After(c.resetAt) {
		c.callCount = 0
		c.resetAt = now.Add(time.Minute)
	}
	if c.maxPerMin > 0 && c.callCount >= c.maxPerMin {
		c.mu.Unlock()
		return "", fmt.Errorf("%w (%d calls/min)", ErrRateLimited, c.maxPerMin)
	}
	c.callCount++
	c.mu.Unlock()

	body, err := json.Marshal(generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Options: c.options,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return "", err
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", ErrEmpty
	}

	slog.Debug("reasoning call",
		"model", model,
		"prompt_tokens", out.PromptEvalCount,
		"output_tokens", out.EvalCount,
	)
	return out.Response, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}
	return body, nil
}
