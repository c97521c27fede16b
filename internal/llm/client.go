// Package llm talks to OpenAI-compatible chat-completions endpoints and builds the interview
// judge and question generator on top of them.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/kaiwa/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const chatCompletionsPath = "/chat/completions"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tunes a single completion.
type ChatOptions struct {
	MaxTokens   int
	Temperature float64
	// JSON asks the endpoint for a JSON object reply.
	JSON bool
}

// Chatter produces one completion for a conversation.
type Chatter interface {
	Name() string
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)
}

// ClientConfig configures one endpoint.
type ClientConfig struct {
	Name              string
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
}

// Client is a rate-limited chat-completions client that retries transport errors, 429 and 5xx.
type Client struct {
	cfg     ClientConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	backoff func(attempt int) time.Duration
}

type chatCompletionRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Temperature    float64        `json:"temperature"`
	Stream         bool           `json:"stream"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClient creates a client for one endpoint.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm provider %q: base_url is required", cfg.Name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm provider %q: model is required", cfg.Name)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return NewClientWithHTTPClient(cfg, &http.Client{Timeout: cfg.Timeout}, logger), nil
}

// NewClientWithHTTPClient is NewClient with a caller-supplied transport.
func NewClientWithHTTPClient(cfg ClientConfig, hc *http.Client, logger *zap.Logger) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		cfg:     cfg,
		client:  hc,
		limiter: rate.NewLimiter(limit, 1),
		logger:  utils.OrNop(logger),
		backoff: retryDelay,
	}
}

// Name identifies the endpoint in logs and errors.
func (c *Client) Name() string { return c.cfg.Name }

// Chat returns the first choice's content. An empty reply is an error.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages")
	}
	req := chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if opts.JSON {
		req.ResponseFormat = map[string]any{"type": "json_object"}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + chatCompletionsPath

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, lastDelay(lastErr, c.backoff(attempt-1))); err != nil {
				return "", err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
		text, err := c.do(ctx, url, body)
		if err == nil {
			return text, nil
		}
		var re *retryableError
		if !errors.As(err, &re) {
			return "", err
		}
		lastErr = err
		c.logger.Debug("chat request failed, retrying",
			zap.String("provider", c.cfg.Name),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return "", lastErr
}

func (c *Client) do(ctx context.Context, url string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", &retryableError{err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &retryableError{err: err}
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		re := &retryableError{err: fmt.Errorf("chat completion failed: %s", resp.Status)}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			re.after = time.Duration(secs) * time.Second
		}
		return "", re
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("chat completion failed: %s: %s", resp.Status, utils.Truncate(string(raw), 200))
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode chat completion: %w", err)
	}
	if out.Error != nil && out.Error.Message != "" {
		return "", fmt.Errorf("chat completion error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chat completion has no choices")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("chat completion is empty")
	}
	return text, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

type retryableError struct {
	err   error
	after time.Duration
}

func (r *retryableError) Error() string { return r.err.Error() }
func (r *retryableError) Unwrap() error { return r.err }

func lastDelay(err error, fallback time.Duration) time.Duration {
	var re *retryableError
	if errors.As(err, &re) && re.after > 0 {
		return re.after
	}
	return fallback
}

func retryDelay(attempt int) time.Duration {
	d := time.Second << attempt
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
