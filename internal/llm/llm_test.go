package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func tagsJSON(names ...string) []byte {
	var r tagsResponse
	for _, n := range names {
		r.Models = append(r.Models, struct {
			Name string `json:"name"`
		}{Name: n})
	}
	b, _ := json.Marshal(r)
	return b
}

func TestOllamaComplete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Write([]byte(`{"message":{"role":"assistant","content":"[]"}}`))
	}))
	defer srv.Close()

	c := NewOllama(srv.URL+"/", "qwen2.5")
	out, err := c.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "[]" {
		t.Errorf("out = %q", out)
	}
	if got.Model != "qwen2.5" || got.Stream || len(got.Messages) != 1 || got.Messages[0].Content != "hello" {
		t.Errorf("request = %+v", got)
	}
}

func TestOllamaComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, "x").Complete(context.Background(), "p")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v, want status 404", err)
	}
}

func TestOllamaIsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON())
	}))
	defer srv.Close()
	if !NewOllama(srv.URL, "m").IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	down.Close()
	if NewOllama(down.URL, "m").IsRunning(context.Background()) {
		t.Error("IsRunning() = true for closed server")
	}
}

func TestOllamaHasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("qwen2.5:latest", "llama3:8b"))
	}))
	defer srv.Close()

	tests := []struct {
		model string
		want  bool
	}{
		{"qwen2.5", true},
		{"qwen2.5:latest", true},
		{"llama3:8b", true},
		{"llama3", true},
		{"mistral", false},
	}
	for _, tt := range tests {
		ok, err := NewOllama(srv.URL, tt.model).HasModel(context.Background())
		if err != nil {
			t.Fatalf("HasModel(%s): %v", tt.model, err)
		}
		if ok != tt.want {
			t.Errorf("HasModel(%s) = %v, want %v", tt.model, ok, tt.want)
		}
	}
}

func TestOllamaEnsureReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("qwen2.5:latest"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	if err := NewOllama(srv.URL, "qwen2.5").EnsureReady(context.Background(), &buf); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if !strings.Contains(buf.String(), "ready") {
		t.Errorf("output = %q", buf.String())
	}

	err := NewOllama(srv.URL, "mistral").EnsureReady(context.Background(), io.Discard)
	if err == nil || !strings.Contains(err.Error(), "ollama pull mistral") {
		t.Errorf("err = %v, want pull hint", err)
	}
}

func newTestOpenRouter(url string) *OpenRouter {
	c := NewOpenRouter("sk-test", "openai/gpt-4o-mini")
	c.baseURL = url
	c.backoff = time.Millisecond
	return c
}

func TestOpenRouterComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"[{\"title\":\"x\"}]"}}]}`))
	}))
	defer srv.Close()

	out, err := newTestOpenRouter(srv.URL).Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `[{"title":"x"}]` {
		t.Errorf("out = %q", out)
	}
}

func TestOpenRouterRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	out, err := newTestOpenRouter(srv.URL).Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "ok" || calls.Load() != 3 {
		t.Errorf("out = %q after %d calls", out, calls.Load())
	}
}

func TestOpenRouterGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestOpenRouter(srv.URL).Complete(context.Background(), "p")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("err = %v", err)
	}
	if calls.Load() != maxRetries {
		t.Errorf("calls = %d, want %d", calls.Load(), maxRetries)
	}
}

func TestOpenRouterNoRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newTestOpenRouter(srv.URL).Complete(context.Background(), "p"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestNew(t *testing.T) {
	if _, err := New(Config{OllamaModel: "qwen2.5", OllamaBaseURL: "http://localhost:11434"}); err != nil {
		t.Errorf("default provider: %v", err)
	}
	if _, err := New(Config{Provider: "openrouter"}); err == nil {
		t.Error("openrouter without key should fail")
	}
	c, err := New(Config{Provider: "OpenRouter", OpenRouterKey: "k", Model: "m", OpenRouterURL: "http://x/"})
	if err != nil {
		t.Fatalf("openrouter: %v", err)
	}
	if or, ok := c.(*OpenRouter); !ok || or.baseURL != "http://x" {
		t.Errorf("got %#v", c)
	}
	if _, err := New(Config{Provider: "bard"}); err == nil {
		t.Error("unknown provider should fail")
	}
}
