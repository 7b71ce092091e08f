package responder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/errors"
)

func completionServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIResponderHappyPath(t *testing.T) {
	var got chatRequest
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "The data supports a phased rollout."}},
			},
		})
	})

	r := NewOpenAIResponder(OpenAIConfig{BaseURL: srv.URL, Model: "local-model"})
	reply, err := r.Respond(context.Background(), Request{
		Participant:  council.Participant{ID: "technocrat"},
		SystemPrompt: "You are the Technocrat.",
		Prompt:       "Give your assessment.",
		Transcript: []council.Message{
			{Author: "speaker", Content: "The Council convenes."},
			{Author: "technocrat", Content: "Noted."},
		},
	})
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if reply != "The data supports a phased rollout." {
		t.Errorf("reply = %q", reply)
	}

	if got.Model != "local-model" {
		t.Errorf("model = %q", got.Model)
	}
	if got.MaxTokens != DefaultMaxTokens {
		t.Errorf("max_tokens = %d, want %d", got.MaxTokens, DefaultMaxTokens)
	}
	if got.Temperature != DefaultTemperature {
		t.Errorf("temperature = %v, want %v", got.Temperature, DefaultTemperature)
	}

	// system + 2 transcript + turn prompt
	if len(got.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(got.Messages))
	}
	if got.Messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", got.Messages[0].Role)
	}
	if got.Messages[1].Role != "user" || got.Messages[1].Content != "speaker: The Council convenes." {
		t.Errorf("transcript message = %+v", got.Messages[1])
	}
	if got.Messages[2].Role != "assistant" || got.Messages[2].Content != "Noted." {
		t.Errorf("own prior turn = %+v", got.Messages[2])
	}
	if got.Messages[3].Content != "Give your assessment." {
		t.Errorf("turn prompt = %+v", got.Messages[3])
	}
}

func TestOpenAIResponderServerError(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	})

	r := NewOpenAIResponder(OpenAIConfig{BaseURL: srv.URL})
	_, err := r.Respond(context.Background(), Request{
		Participant: council.Participant{ID: "skeptic"},
		Prompt:      "x",
	})
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if !errors.Is(err, errors.ErrResponderFailed) {
		t.Errorf("error = %v, want ErrResponderFailed", err)
	}
	// 5xx responses are worth retrying.
	if !errors.IsRetryable(err) {
		t.Errorf("5xx error should be retryable: %v", err)
	}
}

func TestOpenAIResponderNoChoices(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	r := NewOpenAIResponder(OpenAIConfig{BaseURL: srv.URL})
	_, err := r.Respond(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, errors.ErrResponderFailed) {
		t.Errorf("error = %v, want ErrResponderFailed", err)
	}
}

func TestOpenAIResponderContextTimeout(t *testing.T) {
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r := NewOpenAIResponder(OpenAIConfig{BaseURL: srv.URL})
	_, err := r.Respond(ctx, Request{
		Participant: council.Participant{ID: "historian"},
		Prompt:      "x",
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, errors.ErrResponderTimeout) {
		t.Errorf("error = %v, want ErrResponderTimeout", err)
	}
}

func TestOpenAIResponderAPIKeyHeader(t *testing.T) {
	var auth string
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "ok"}}},
		})
	})

	r := NewOpenAIResponder(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test"})
	if _, err := r.Respond(context.Background(), Request{Prompt: "x"}); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
}
