package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/graph"
	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/metrics"
)

const safetyPrompt = `You gate requests to a travel assistant. Classify the user's message:
- is_safe: false for malicious, harmful, or abusive content
- is_in_scope: false when nothing in the message concerns travel
  (flights, hotels, visas, destinations, trip logistics, travel budgets)
- For mixed messages, extract the travel part into filtered_query and
  list what you dropped in ignored_parts; put a one-line note for the
  user into message_to_user.
Use the recent conversation to resolve vague references before judging.
Reply with JSON only:
{"is_safe": bool, "is_in_scope": bool, "filtered_query": string,
 "ignored_parts": [string], "message_to_user": string, "should_proceed": bool}`

const completenessPrompt = `You check whether a travel request has enough detail to act on.
Required per intent: flights need origin, destination, and at least a
departure date; hotels need a location; visas need a nationality and a
destination. Use the conversation facts and the user's known preferences
to fill gaps before declaring anything missing — resolve references like
"there" or "the same dates" from the conversation.
If complete, produce enriched_message: the request with the resolved
facts spliced in. If not, ask ONE targeted question covering what is
missing.
Reply with JSON only:
{"status": "complete"|"missing_info", "enriched_message": string,
 "question": string}`

const refusalResponse = "I'm a travel assistant, so I can't help with that. " +
	"I'd be happy to help plan a trip, find flights or hotels, or check visa requirements."

type safetyVerdict struct {
	IsSafe        bool     `json:"is_safe"`
	IsInScope     bool     `json:"is_in_scope"`
	FilteredQuery string   `json:"filtered_query"`
	IgnoredParts  []string `json:"ignored_parts"`
	MessageToUser string   `json:"message_to_user"`
	ShouldProceed bool     `json:"should_proceed"`
}

type completenessVerdict struct {
	Status          string `json:"status"`
	EnrichedMessage string `json:"enriched_message"`
	Question        string `json:"question"`
}

// RFINode is the two-stage gate: safety & scope, then completeness. It
// may terminate the turn with a refusal or a single clarifying question,
// or enrich the message with facts resolved from the conversation.
type RFINode struct {
	llm llm.Client
	rec *audit.Recorder
}

// NewRFINode builds the gate.
func NewRFINode(client llm.Client, rec *audit.Recorder) *RFINode {
	return &RFINode{llm: client, rec: rec}
}

// Node runs both stages. Any model failure fails open to "complete" with
// the message unchanged: a broken gate must not block travel questions.
func (n *RFINode) Node(ctx context.Context, s *graph.State) (*graph.Delta, error) {
	delta := &graph.Delta{}

	// A pending clarifying question from the previous turn: the reply is
	// combined with the stashed enriched request before judging.
	message := s.UserMessage
	if s.RFIContext != "" {
		message = s.RFIContext + "\n" + message
		delta.UserMessage = &message
		empty := ""
		delta.RFIContext = &empty
	}

	safety, err := n.judgeSafety(ctx, s, message)
	if err != nil {
		slog.Warn("Safety check failed open", "session_id", s.SessionID, "error", err)
		safety = &safetyVerdict{IsSafe: true, IsInScope: true, ShouldProceed: true}
	}

	if !safety.IsSafe || !safety.IsInScope {
		status := graph.RFIOutOfScope
		if !safety.IsSafe {
			status = graph.RFIUnsafe
		}
		delta.RFIStatus = &status
		reply := safety.MessageToUser
		if strings.TrimSpace(reply) == "" {
			reply = refusalResponse
		}
		delta.LastResponse = &reply
		delta.SetRoute(graph.End)
		return delta, nil
	}

	if fq := strings.TrimSpace(safety.FilteredQuery); fq != "" && fq != message {
		// Mixed-domain: keep only the travel part, tell the user what was
		// dropped alongside the final answer.
		message = fq
		delta.UserMessage = &message
		if safety.MessageToUser != "" {
			delta.Advisory = &safety.MessageToUser
		}
	}

	completeness, err := n.judgeCompleteness(ctx, s, message)
	if err != nil {
		slog.Warn("Completeness check failed open", "session_id", s.SessionID, "error", err)
		completeness = &completenessVerdict{Status: "complete"}
	}

	if completeness.Status == "missing_info" && strings.TrimSpace(completeness.Question) != "" {
		status := graph.RFIMissingInfo
		delta.RFIStatus = &status
		stash := completeness.EnrichedMessage
		if strings.TrimSpace(stash) == "" {
			stash = message
		}
		delta.RFIContext = &stash
		delta.LastResponse = &completeness.Question
		delta.SetRoute(graph.End)
		return delta, nil
	}

	status := graph.RFIComplete
	delta.RFIStatus = &status
	if em := strings.TrimSpace(completeness.EnrichedMessage); em != "" {
		delta.UserMessage = &em
	}
	return delta, nil
}

func (n *RFINode) judgeSafety(ctx context.Context, s *graph.State, message string) (*safetyVerdict, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Message:\n%s\n", message)
	writeConversation(&b, s)

	completion, err := n.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: safetyPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
		JSONResponse: true,
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.LLMCalls.WithLabelValues(graph.NodeRFI, outcome).Inc()
	if err != nil {
		return nil, fmt.Errorf("safety check: %w", err)
	}
	var v safetyVerdict
	if err := json.Unmarshal([]byte(completion.Content), &v); err != nil {
		return nil, fmt.Errorf("parse safety verdict: %w", err)
	}
	return &v, nil
}

func (n *RFINode) judgeCompleteness(ctx context.Context, s *graph.State, message string) (*completenessVerdict, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Request:\n%s\n", message)
	writeConversation(&b, s)
	if len(s.RelevantMemories) > 0 {
		b.WriteString("\nKnown user preferences:\n")
		for _, m := range s.RelevantMemories {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}

	completion, err := n.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: completenessPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
		JSONResponse: true,
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.LLMCalls.WithLabelValues(graph.NodeRFI, outcome).Inc()
	if err != nil {
		return nil, fmt.Errorf("completeness check: %w", err)
	}
	var v completenessVerdict
	if err := json.Unmarshal([]byte(completion.Content), &v); err != nil {
		return nil, fmt.Errorf("parse completeness verdict: %w", err)
	}
	return &v, nil
}

func writeConversation(b *strings.Builder, s *graph.State) {
	if s.STMSummary != "" {
		fmt.Fprintf(b, "\nConversation summary:\n%s\n", s.STMSummary)
	}
	if len(s.RecentMessages) > 0 {
		b.WriteString("\nRecent messages:\n")
		for _, m := range s.RecentMessages {
			fmt.Fprintf(b, "[%s] %s\n", m.Role, m.Text)
		}
	}
}
