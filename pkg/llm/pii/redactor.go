// Package pii provides the client for the local small-model redaction
// endpoint. The redactor is strictly fail-open: any transport, timeout, or
// parse failure returns the original text so a redaction outage never
// blocks a turn.
package pii

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voyagent/voyagent/pkg/config"
)

// rulebook is the strict instruction set for the redaction model: strip
// direct identifiers, keep everything the travel workers need.
const rulebook = `You are a PII redaction engine. Rewrite the user's message replacing:
- person names with [NAME]
- email addresses with [EMAIL]
- phone numbers with [PHONE]
- street addresses with [ADDRESS]
- passport/ID/booking reference numbers with [ID]
- payment card numbers with [CARD]
Keep unchanged: countries, cities, airports, airlines, dates, durations,
budgets, currencies, and nationalities.
Return ONLY the rewritten message, with no commentary.`

// Redactor calls the redaction endpoint.
type Redactor struct {
	cfg    config.PIIConfig
	client *http.Client
}

// NewRedactor builds a redactor from configuration. When cfg.Enabled is
// false, Redact is a pass-through.
func NewRedactor(cfg config.PIIConfig) *Redactor {
	return &Redactor{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse covers both OpenAI-shaped (choices[].message.content) and
// Ollama-shaped (message.content) reply bodies.
type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Message chatMessage `json:"message"`
}

// Redact sends text through the redaction model and returns the sanitized
// string. Fail-open: on any error the original text is returned.
func (r *Redactor) Redact(ctx context.Context, text string) string {
	if !r.cfg.Enabled || strings.TrimSpace(text) == "" {
		return text
	}

	body, err := json.Marshal(chatRequest{
		Model: r.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: rulebook},
			{Role: "user", Content: text},
		},
		Stream: false,
	})
	if err != nil {
		slog.Warn("PII request not serializable, passing original through", "error", err)
		return text
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		slog.Warn("PII request build failed, passing original through", "error", err)
		return text
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		slog.Warn("PII endpoint unreachable, passing original through",
			"error", err, "elapsed", time.Since(start))
		return text
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("PII endpoint returned non-200, passing original through",
			"status", resp.StatusCode)
		return text
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		slog.Warn("PII response not parseable, passing original through", "error", err)
		return text
	}

	redacted := extractContent(parsed)
	if strings.TrimSpace(redacted) == "" {
		slog.Warn("PII response empty, passing original through")
		return text
	}
	return redacted
}

// extractContent prefers the OpenAI shape and falls back to Ollama's.
func extractContent(resp chatResponse) string {
	if len(resp.Choices) > 0 {
		return resp.Choices[0].Message.Content
	}
	return resp.Message.Content
}

// Describe returns a short config summary for startup logging.
func (r *Redactor) Describe() string {
	if !r.cfg.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("%s (model %s)", r.cfg.Endpoint, r.cfg.Model)
}
