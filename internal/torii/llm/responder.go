// Package llm provides the GeneralResponder implementations: an
// OpenAI-compatible chat completion client for deployments with an LLM
// endpoint, and a static fallback for offline use.
//
// The responder only ever produces conversational text for messages the
// intent router could not classify. It takes no part in control decisions
// and cannot trigger tracker operations.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bdobrica/Torii/internal/torii/ops"
)

const defaultBase = "https://api.openai.com/v1"

// systemPrompt frames the assistant for unclassified small talk.
const systemPrompt = "You are Torii, an assistant that manages work-item tickets. " +
	"You can list and summarize tickets, and prepare create/update/transition/assign/comment " +
	"operations which a human must approve before they run. Answer briefly."

// Config configures the OpenAI-compatible responder.
type Config struct {
	// APIKey is the bearer token for the API.
	APIKey string
	// BaseURL overrides the endpoint (useful for local models). Defaults to
	// the OpenAI API.
	BaseURL string
	// Model is the chat model name.
	Model string
	// Timeout per request. Defaults to 60s.
	Timeout time.Duration
}

// Responder implements ops.GeneralResponder over the chat completions API.
type Responder struct {
	cfg    Config
	client *http.Client
}

// New returns a Responder for cfg.
func New(cfg Config) *Responder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Responder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- wire types (subset of the chat completions API) ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Respond implements ops.GeneralResponder. Failures are transient: the turn
// degrades to a canned reply, nothing is retried against the ledger.
func (r *Responder) Respond(ctx context.Context, history []ops.ChatMessage) (string, error) {
	msgs := make([]chatMessage, 0, len(history)+1)
	msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	for _, m := range history {
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(chatRequest{Model: r.cfg.Model, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("llm: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", ops.Transient("llm", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", ops.Transient("llm", fmt.Errorf("status %d: %s", resp.StatusCode, snippet))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm: empty response")
	}
	return out.Choices[0].Message.Content, nil
}

// StaticResponder replies with fixed help text. Used when no LLM endpoint is
// configured and in tests.
type StaticResponder struct {
	// Reply overrides the default help text when non-empty.
	Reply string
}

const defaultHelp = "I manage tracker tickets with human approval. Try `show me my tickets`, " +
	"`summarize ticket PROJ-7`, `create ticket in PROJ: <summary>`, or `approve <id>`."

// Respond implements ops.GeneralResponder.
func (s *StaticResponder) Respond(context.Context, []ops.ChatMessage) (string, error) {
	if s.Reply != "" {
		return s.Reply, nil
	}
	return defaultHelp, nil
}
