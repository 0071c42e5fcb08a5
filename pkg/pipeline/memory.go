package pipeline

import (
	"context"
	"log/slog"

	"github.com/voyagent/voyagent/pkg/graph"
	"github.com/voyagent/voyagent/pkg/memory"
)

// MemoryNode retrieves the user's relevant long-term memories for the
// turn and runs the write-side analysis (store / update / delete) when
// the message is explicitly memory-changing.
type MemoryNode struct {
	manager *memory.Manager
	topK    int
}

// NewMemoryNode builds the memory stage.
func NewMemoryNode(manager *memory.Manager, topK int) *MemoryNode {
	return &MemoryNode{manager: manager, topK: topK}
}

// Node loads memories into state, then ingests. Retrieval failures leave
// the turn memory-less rather than failing it.
func (n *MemoryNode) Node(ctx context.Context, s *graph.State) (*graph.Delta, error) {
	delta := &graph.Delta{}

	memories, err := n.manager.GetRelevant(ctx, s.UserEmail, s.UserMessage, n.topK)
	if err != nil {
		slog.Warn("Memory retrieval failed, continuing without memories",
			"user_email", s.UserEmail, "error", err)
		memories = nil
	}
	delta.SetMemories(memories)

	n.manager.Ingest(ctx, s.UserEmail, s.UserMessage, memories)
	return delta, nil
}
