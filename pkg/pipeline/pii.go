// Package pipeline implements the pre-planning gate: PII redaction, memory
// retrieval and ingestion, and the safety/scope/completeness (RFI) check.
package pipeline

import (
	"context"

	"github.com/voyagent/voyagent/pkg/graph"
	"github.com/voyagent/voyagent/pkg/llm/pii"
)

// PIINode rewrites the user message through the redaction endpoint. The
// redactor is fail-open, so this node never blocks a turn.
type PIINode struct {
	redactor *pii.Redactor
}

// NewPIINode builds the redaction node.
func NewPIINode(redactor *pii.Redactor) *PIINode {
	return &PIINode{redactor: redactor}
}

// Node sanitizes the message in place.
func (n *PIINode) Node(ctx context.Context, s *graph.State) (*graph.Delta, error) {
	redacted := n.redactor.Redact(ctx, s.UserMessage)
	delta := &graph.Delta{}
	if redacted != s.UserMessage {
		delta.UserMessage = &redacted
	}
	return delta, nil
}
