package stm

import (
	"context"
	"fmt"
	"strings"

	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/models"
)

const summarizerPrompt = `You maintain a rolling summary of a travel-planning conversation.
Fold the older messages below into the existing summary. Keep it to 3-4 lines.
Preserve concrete facts: destinations, dates, traveler counts, budgets, and
decisions already made. Drop pleasantries. Return ONLY the updated summary.`

// LLMSummarizer produces the rolling summary through the shared LLM client.
type LLMSummarizer struct {
	client llm.Client
}

// NewLLMSummarizer wraps an LLM client as a Summarizer.
func NewLLMSummarizer(client llm.Client) *LLMSummarizer {
	return &LLMSummarizer{client: client}
}

// Summarize folds dropped messages into the previous summary.
func (s *LLMSummarizer) Summarize(ctx context.Context, previous string, dropped []models.ChatMessage) (string, error) {
	var b strings.Builder
	if previous != "" {
		fmt.Fprintf(&b, "Existing summary:\n%s\n\n", previous)
	}
	b.WriteString("Older messages to fold in:\n")
	for _, m := range dropped {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Text)
	}

	completion, err := s.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: summarizerPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize session history: %w", err)
	}
	return strings.TrimSpace(completion.Content), nil
}
