package ai

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"ArtBot/core"
)

func testClient(baseURL string) *Client {
	conf := &core.Config{}
	conf.Provider.ApiKey = "test-key"
	conf.Provider.BaseURL = baseURL
	conf.Provider.Model = "test-model"
	conf.Provider.RequestTimeout = 5
	return NewClient(conf, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGenerateDecodesResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		var req GenerationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 1 || req.Messages[0].Content != "a cat" {
			t.Errorf("unexpected request payload: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "test-model",
			"choices": [{"message": {"role": "assistant", "content": "https://cdn.example.com/a.png"}}]
		}`))
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).Generate("a cat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("expected 1 choice, got %d", len(resp.Choices))
	}
	if got := resp.Choices[0].Message.Content.Text; got != "https://cdn.example.com/a.png" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestGenerateNon200SingleAttempt(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Generate("a cat")
	if err == nil {
		t.Fatalf("expected error on status 500")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Fatalf("error does not carry the status: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", hits)
	}
}

func TestGenerateProviderErrorPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "rate limited"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Generate("a cat")
	if err == nil {
		t.Fatalf("expected error for error payload")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("error does not carry the provider message: %v", err)
	}
}

func TestGenerateTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	if _, err := testClient(srv.URL).Generate("a cat"); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestGenerateMalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Generate("a cat"); err == nil {
		t.Fatalf("expected decode error")
	}
}
