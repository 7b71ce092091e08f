package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/conclave-ai/conclave/internal/errors"
)

// Defaults matching the local-model deployments this was built against.
const (
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
	DefaultTimeout     = 60 * time.Second
)

// OpenAIConfig configures the chat completions client.
type OpenAIConfig struct {
	// BaseURL is the server root, e.g. http://localhost:1234.
	BaseURL string
	// Model is the model identifier passed through to the server.
	Model string
	// APIKey is sent as a bearer token when set. Local servers ignore it.
	APIKey string
	// Temperature defaults to 0.7 when zero.
	Temperature float64
	// Timeout bounds one completion call, default 60s. The per-turn
	// context deadline still applies on top.
	Timeout time.Duration
}

// OpenAIResponder calls an OpenAI-compatible chat completions endpoint.
// It works against LM Studio, Ollama, vLLM, and the hosted APIs.
type OpenAIResponder struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAIResponder creates a chat completions client.
func NewOpenAIResponder(cfg OpenAIConfig) *OpenAIResponder {
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OpenAIResponder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Respond implements Responder over POST /v1/chat/completions.
func (r *OpenAIResponder) Respond(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	body, err := json.Marshal(chatRequest{
		Model:       r.cfg.Model,
		Messages:    buildMessages(req),
		MaxTokens:   maxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		return "", errors.NewResponderError("encoding request", err).
			WithParticipant(req.Participant.ID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.NewResponderError("building request", err).
			WithParticipant(req.Participant.ID)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.NewTimeoutError("completion", err).
				WithParticipant(req.Participant.ID)
		}
		return "", errors.NewResponderError("completion call", err).
			WithParticipant(req.Participant.ID)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.NewResponderError("reading response", err).
			WithParticipant(req.Participant.ID)
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.NewResponderError(
			fmt.Sprintf("completion returned %s", resp.Status), errors.ErrResponderFailed,
		).WithParticipant(req.Participant.ID).WithStatusCode(resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", errors.NewResponderError("decoding response", err).
			WithParticipant(req.Participant.ID)
	}
	if parsed.Error != nil {
		return "", errors.NewResponderError(parsed.Error.Message, errors.ErrResponderFailed).
			WithParticipant(req.Participant.ID)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.NewResponderError("completion returned no choices", errors.ErrResponderFailed).
			WithParticipant(req.Participant.ID)
	}

	return parsed.Choices[0].Message.Content, nil
}

// buildMessages flattens the persona, transcript, and turn instruction
// into the chat wire format. Transcript entries from other participants
// arrive as user-role messages prefixed with the author.
func buildMessages(req Request) []chatMessage {
	msgs := make([]chatMessage, 0, len(req.Transcript)+2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.SystemPrompt})
	}

	for _, m := range req.Transcript {
		role := "user"
		content := m.Author + ": " + m.Content
		if m.Author == req.Participant.ID {
			role = "assistant"
			content = m.Content
		}
		msgs = append(msgs, chatMessage{Role: role, Content: content})
	}

	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})
	return msgs
}
