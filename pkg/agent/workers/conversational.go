package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/graph"
	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/metrics"
	"github.com/voyagent/voyagent/pkg/models"
)

const conversationalPrompt = `You are the voice of a travel assistant. Write the reply to the user
from the collected data below.

Formatting rules:
- Never show raw JSON; present data as readable text.
- Flight options are numbered F1, F2, ... Fn (the app turns these into
  booking buttons). Keep airline, duration, and price for each.
- Hotel bookings are never completed in chat: when booking data carries a
  booking_url, present it as the secure link to finish the booking.
- eSIM bundles include their purchase links as clickable URLs.
- When a data section carries an error, explain it briefly and suggest
  what the user can do; do not invent results.
- When the user picked from earlier results ("the cheapest one"), answer
  from the previous results provided below; show exactly the selection.
- Be concise and warm. Do not pad with generic travel advice.`

// Conversational drafts the user-facing answer from everything the turn
// collected. It writes last_response, not a tool slot.
type Conversational struct {
	llm llm.Client
	rec *audit.Recorder
}

// NewConversational builds the responder.
func NewConversational(client llm.Client, rec *audit.Recorder) *Conversational {
	return &Conversational{llm: client, rec: rec}
}

// Node produces the draft response.
func (c *Conversational) Node(ctx context.Context, s *graph.State) (*graph.Delta, error) {
	delta := &graph.Delta{AgentsCalled: []string{models.WorkerConversational}}
	delta.Feedback = map[string]string{models.WorkerConversational: ""}

	completion, err := c.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: conversationalPrompt},
			{Role: llm.RoleUser, Content: c.buildContext(s)},
		},
		ToolChoice: llm.ToolChoiceNone,
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.LLMCalls.WithLabelValues(models.WorkerConversational, outcome).Inc()
	c.rec.LLMCall(models.WorkerConversational, s.SessionID, map[string]any{
		"collected": len(s.CollectedInfo), "error": errString(err),
	})
	if err != nil {
		// The user always gets something; the envelope text is the
		// fallback of last resort.
		fallback := "I'm sorry, I couldn't put together an answer just now. Please try again."
		delta.LastResponse = &fallback
		return delta, nil
	}

	draft := strings.TrimSpace(completion.Content)
	if s.Advisory != "" {
		draft = s.Advisory + "\n\n" + draft
	}
	delta.LastResponse = &draft
	return delta, nil
}

// buildContext renders the turn's working set for the responder prompt.
func (c *Conversational) buildContext(s *graph.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request:\n%s\n", s.UserMessage)

	if fb := s.Feedback[models.WorkerConversational]; fb != "" {
		fmt.Fprintf(&b, "\nYour previous draft was rejected: %s\nFix that in this draft.\n", fb)
	}
	if s.STMSummary != "" {
		fmt.Fprintf(&b, "\nConversation so far:\n%s\n", s.STMSummary)
	}
	if len(s.RelevantMemories) > 0 {
		b.WriteString("\nKnown user preferences:\n")
		for _, m := range s.RelevantMemories {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	if len(s.TripPlanSummary) > 0 {
		b.WriteString("\nCurrent trip plan:\n")
		for _, step := range s.TripPlanSummary {
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", step.Type, step.Title, step.Status)
		}
	}

	if len(s.CollectedInfo) > 0 {
		b.WriteString("\nCollected data this turn:\n")
		for worker, r := range s.CollectedInfo {
			writeResult(&b, worker, r)
		}
	} else if len(s.LastResults) > 0 {
		b.WriteString("\nPrevious results (the user is referring back to these):\n")
		for worker, r := range s.LastResults {
			writeResult(&b, worker, r)
		}
	}
	return b.String()
}

func writeResult(b *strings.Builder, worker string, r *models.WorkerResult) {
	if r == nil {
		return
	}
	if r.Failed() {
		fmt.Fprintf(b, "## %s — error: %s", worker, r.Err.ErrorMessage)
		if r.Err.Suggestion != "" {
			fmt.Fprintf(b, " (suggestion: %s)", r.Err.Suggestion)
		}
		b.WriteByte('\n')
		return
	}
	if r.MultipleResults {
		fmt.Fprintf(b, "## %s\n", worker)
		for tool, raw := range r.Subresults {
			fmt.Fprintf(b, "### %s\n%s\n", tool, compactJSON(raw))
		}
		return
	}
	fmt.Fprintf(b, "## %s (%s)\n%s\n", worker, r.Tool, compactJSON(r.Data))
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
