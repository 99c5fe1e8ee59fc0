package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	c, err := NewClient(Config{
		APIKey:     "test-key",
		Model:      "test-model",
		MaxRetries: retries,
		BaseURL:    url,
		Backoff:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func textResponse(w http.ResponseWriter, text string) {
	json.NewEncoder(w).Encode(map[string]any{
		"content": []map[string]string{{"type": "text", "text": text}},
	})
}

func apiErrorResponse(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"type":"error","error":{"type":"api_error","message":%q}}`, msg)
}

func TestGenerateSendsMessagesRequest(t *testing.T) {
	var got messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s, want /v1/messages", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != apiVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "The answer"},
				{"type": "text", "text": " is 42."},
			},
		})
	}))
	defer srv.Close()

	text, err := testClient(t, srv.URL, -1).Generate(context.Background(), "what is the answer?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "The answer is 42." {
		t.Errorf("text = %q", text)
	}
	if got.Model != "test-model" || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "what is the answer?" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestGenerateRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			apiErrorResponse(w, http.StatusTooManyRequests, "slow down")
			return
		}
		textResponse(w, "recovered")
	}))
	defer srv.Close()

	text, err := testClient(t, srv.URL, 3).Generate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "recovered" {
		t.Errorf("text = %q", text)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestGenerateDoesNotRetryFatalErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		apiErrorResponse(w, http.StatusUnauthorized, "invalid x-api-key")
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, 3).Generate(context.Background(), "q")
	if !IsFatal(err) {
		t.Fatalf("err = %v, want fatal", err)
	}
	if !strings.Contains(err.Error(), "invalid x-api-key") || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v, should carry status and API message", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestGenerateExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		apiErrorResponse(w, http.StatusInternalServerError, "overloaded")
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, 2).Generate(context.Background(), "q")
	if !IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 1 + 2 retries", n)
	}
}

func TestGenerateTreatsEmptyCompletionAsTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"content": []map[string]string{}})
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, 1).Generate(context.Background(), "q")
	if !IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func sse(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	fl := w.(http.Flusher)
	for _, ev := range events {
		fmt.Fprintf(w, "data: %s\n\n", ev)
		fl.Flush()
	}
}

func delta(text string) string {
	return fmt.Sprintf(`{"type":"content_block_delta","delta":{"type":"text_delta","text":%q}}`, text)
}

func TestGenerateStreamDeliversFragments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req messagesRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("request should set stream: true")
		}
		sse(w,
			`{"type":"message_start"}`,
			delta("The "),
			delta("answer "),
			delta("is 42. "),
			`{"type":"message_stop"}`,
		)
	}))
	defer srv.Close()

	var fragments []string
	text, err := testClient(t, srv.URL, -1).GenerateStream(context.Background(), "q", func(s string) {
		fragments = append(fragments, s)
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if text != "The answer is 42." {
		t.Errorf("text = %q", text)
	}
	want := []string{"The ", "answer ", "is 42. "}
	if len(fragments) != len(want) {
		t.Fatalf("fragments = %v", fragments)
	}
	for i := range want {
		if fragments[i] != want[i] {
			t.Errorf("fragments[%d] = %q, want %q", i, fragments[i], want[i])
		}
	}
}

func TestGenerateStreamRetriesBeforeFirstFragment(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			apiErrorResponse(w, 529, "overloaded")
			return
		}
		sse(w, delta("second try"), `{"type":"message_stop"}`)
	}))
	defer srv.Close()

	text, err := testClient(t, srv.URL, 2).GenerateStream(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if text != "second try" {
		t.Errorf("text = %q", text)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestGenerateStreamDoesNotRetryAfterFirstFragment(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		sse(w,
			delta("partial "),
			`{"type":"error","error":{"type":"overloaded_error","message":"stream died"}}`,
		)
	}))
	defer srv.Close()

	var fragments []string
	_, err := testClient(t, srv.URL, 3).GenerateStream(context.Background(), "q", func(s string) {
		fragments = append(fragments, s)
	})
	if err == nil || !strings.Contains(err.Error(), "stream died") {
		t.Fatalf("err = %v, want stream error", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want no retry once text was delivered", n)
	}
	if len(fragments) != 1 || fragments[0] != "partial " {
		t.Errorf("fragments = %v", fragments)
	}
}

func TestGenerateStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiErrorResponse(w, http.StatusServiceUnavailable, "down")
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		APIKey:     "test-key",
		MaxRetries: 10,
		BaseURL:    srv.URL,
		Backoff:    time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Generate(ctx, "q")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.DeadlineExceeded) && !IsTransient(err) {
		t.Errorf("err = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled generate kept retrying")
	}
}

func TestNewClientDefaults(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("missing api key should be rejected")
	}

	c, err := NewClient(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.cfg.Model != defaultModel {
		t.Errorf("model = %q", c.cfg.Model)
	}
	if c.cfg.MaxTokens != defaultMaxTokens || c.cfg.MaxRetries != defaultMaxRetries {
		t.Errorf("cfg = %+v", c.cfg)
	}
	if c.cfg.BaseURL != defaultBaseURL || c.cfg.Backoff != defaultBackoff {
		t.Errorf("cfg = %+v", c.cfg)
	}

	c, err = NewClient(Config{APIKey: "k", MaxRetries: -1})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.cfg.MaxRetries != 0 {
		t.Errorf("negative MaxRetries should disable retries, got %d", c.cfg.MaxRetries)
	}
}
