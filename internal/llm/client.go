// Package llm talks to the Anthropic Messages API with bounded retries and
// typed errors, so callers can tell a wrong request from a bad moment.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// StreamingGenerator additionally delivers the completion incrementally.
// onDelta receives each text fragment in arrival order; the assembled text
// is returned once the stream ends.
type StreamingGenerator interface {
	Generator
	GenerateStream(ctx context.Context, prompt string, onDelta func(string)) (string, error)
}

const (
	defaultBaseURL    = "https://api.anthropic.com"
	defaultModel      = "claude-3-5-haiku-latest"
	defaultMaxTokens  = 1000
	defaultMaxRetries = 3
	defaultTimeout    = 60 * time.Second
	defaultBackoff    = 2 * time.Second

	apiVersion = "2023-06-01"
	maxBackoff = 30 * time.Second
)

type Config struct {
	APIKey     string
	Model      string
	MaxTokens  int
	MaxRetries int // extra attempts after the first; 0 means default, negative disables retries
	BaseURL    string
	Timeout    time.Duration
	Backoff    time.Duration // base delay before the first retry
}

// Client calls the Anthropic Messages API. Transient failures are retried
// with exponential backoff and jitter up to MaxRetries extra attempts.
type Client struct {
	cfg    Config
	client *http.Client
}

var _ StreamingGenerator = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	} else if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
	Stream    bool      `json:"stream,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate returns the completion for prompt, retrying transient failures.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var text string
	err := c.withRetries(ctx, func() error {
		out, err := c.complete(ctx, prompt)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	return text, err
}

// GenerateStream asks for a streamed completion and invokes onDelta with
// each text fragment as it arrives. Retries happen only before the first
// fragment is delivered; once the caller has seen text, a failure surfaces
// instead of replaying the stream.
func (c *Client) GenerateStream(ctx context.Context, prompt string, onDelta func(string)) (string, error) {
	for attempt := 0; ; attempt++ {
		text, started, err := c.streamOnce(ctx, prompt, onDelta)
		if err == nil {
			return text, nil
		}
		if started || IsFatal(err) || ctx.Err() != nil || attempt >= c.cfg.MaxRetries {
			return text, err
		}
		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// withRetries runs fn until it succeeds, fails fatally, or the attempt
// budget is spent.
func (c *Client) withRetries(ctx context.Context, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || IsFatal(err) || ctx.Err() != nil || attempt >= c.cfg.MaxRetries {
			return err
		}
		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// backoff doubles the base delay per attempt, capped, with ±25% jitter so
// concurrent callers do not retry in lockstep.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.Backoff << attempt
	if d <= 0 || d > maxBackoff {
		d = maxBackoff
	}
	return time.Duration(float64(d) * (0.75 + rand.Float64()*0.5))
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.post(ctx, messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyResponse(resp)
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &TransientError{Err: fmt.Errorf("decode completion: %w", err)}
	}
	var b strings.Builder
	for _, blk := range out.Content {
		if blk.Type == "text" {
			b.WriteString(blk.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", &TransientError{Err: errors.New("empty completion")}
	}
	return text, nil
}

// streamOnce performs one streaming request. started reports whether any
// text fragment reached the caller, which disqualifies the attempt from
// being retried.
func (c *Client) streamOnce(ctx context.Context, prompt string, onDelta func(string)) (text string, started bool, err error) {
	resp, err := c.post(ctx, messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
		Stream:    true,
	})
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, classifyResponse(resp)
	}

	var b strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

scan:
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var ev streamEvent
		if json.Unmarshal([]byte(data), &ev) != nil {
			continue
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
				started = true
				b.WriteString(ev.Delta.Text)
				if onDelta != nil {
					onDelta(ev.Delta.Text)
				}
			}
		case "message_stop":
			break scan
		case "error":
			return b.String(), started, &TransientError{Err: fmt.Errorf("stream aborted: %s", ev.Error.Message)}
		}
	}
	if err := scanner.Err(); err != nil {
		return b.String(), started, &TransientError{Err: fmt.Errorf("read stream: %w", err)}
	}

	text = strings.TrimSpace(b.String())
	if text == "" {
		return "", started, &TransientError{Err: errors.New("empty completion")}
	}
	return text, started, nil
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, body messagesRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &FatalError{Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, &FatalError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Err: fmt.Errorf("call model API: %w", err)}
	}
	return resp, nil
}

// classifyResponse drains an error response and wraps it by status. The API
// error message is surfaced when the body carries one.
func classifyResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	var ae apiError
	if json.Unmarshal(raw, &ae) == nil && ae.Error.Message != "" {
		msg = ae.Error.Message
	}
	return classifyStatus(resp.StatusCode, fmt.Errorf("model API %d: %s", resp.StatusCode, msg))
}
