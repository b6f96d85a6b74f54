package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStackUnconfigured(t *testing.T) {
	t.Parallel()

	s := &Stack{}
	ctx := context.Background()

	if _, err := s.Complete(ctx, "hi"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Complete() error = %v, want ErrNotConfigured", err)
	}
	if _, err := s.Transcribe(ctx, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Transcribe() error = %v, want ErrNotConfigured", err)
	}
	if _, err := s.ExtractText(ctx, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ExtractText() error = %v, want ErrNotConfigured", err)
	}
	if _, err := s.Translate(ctx, "hi", "en"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Translate() error = %v, want ErrNotConfigured", err)
	}
}

func TestOpenAIComplete(t *testing.T) {
	t.Parallel()

	var gotReq chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s, want /v1/chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  The answer.  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(srv.URL, "test-key", "")
	got, err := c.Complete(context.Background(), "What is the answer?")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "The answer." {
		t.Fatalf("Complete() = %q, want trimmed %q", got, "The answer.")
	}
	if gotReq.Model != defaultChatModel {
		t.Fatalf("request model = %q, want %q", gotReq.Model, defaultChatModel)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("request messages = %+v, want system+user", gotReq.Messages)
	}
}

func TestOpenAICompleteHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c := NewOpenAI(srv.URL, "test-key", "")
	_, err := c.Complete(context.Background(), "hi")
	if err == nil {
		t.Fatalf("Complete() expected error")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("Complete() error = %v, want rate limited detail", err)
	}
}

func TestOpenAITranslatePromptsChatModel(t *testing.T) {
	t.Parallel()

	var gotReq chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Hello"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(srv.URL, "test-key", "")
	got, err := c.Translate(context.Background(), "Namaste", "auto")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if got != "Hello" {
		t.Fatalf("Translate() = %q, want %q", got, "Hello")
	}
	userMsg := gotReq.Messages[len(gotReq.Messages)-1].Content
	if !strings.Contains(userMsg, "to en") || !strings.Contains(userMsg, "Namaste") {
		t.Fatalf("translate prompt = %q, want target en and source text", userMsg)
	}
}

func TestOpenAITranscribe(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %s, want /v1/audio/transcriptions", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != defaultSTTModel {
			t.Errorf("model = %q, want %q", got, defaultSTTModel)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			_ = file.Close()
		}
		_, _ = w.Write([]byte(`{"text":"kaise ho"}`))
	}))
	defer srv.Close()

	c := NewOpenAI(srv.URL, "test-key", "")
	got, err := c.Transcribe(context.Background(), []byte("oggdata"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "kaise ho" {
		t.Fatalf("Transcribe() = %q, want %q", got, "kaise ho")
	}
}

func TestNewTesseractOCRMissingBinary(t *testing.T) {
	t.Parallel()

	_, err := NewTesseractOCR("definitely-not-a-real-binary-name")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("NewTesseractOCR() error = %v, want ErrNotConfigured", err)
	}
}
