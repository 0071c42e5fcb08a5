package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voyagent/voyagent/pkg/llm"
)

const analyzerPrompt = `You decide whether a travel assistant should remember anything from the
user's message as a durable fact about the user.

Write a memory only for stable, reusable facts: preferences (aisle seats,
vegetarian), constraints (allergies, visa situation, budget ceilings),
recurring patterns (always travels with family), or corrections to facts
already stored. Never store one-off trip details, greetings, or questions.

Importance scale 1-5: 5 = safety-critical (allergy, medical), 4 = hard
constraint (budget ceiling, mobility), 3 = strong preference, 2 = mild
preference, 1 = incidental.

Existing memories are listed so you can detect updates and retractions.
Reply with JSON only:
{"should_write": bool, "memory_to_write": string, "importance": 1-5,
 "is_update": bool, "is_deletion": bool, "old_memory_text": string}`

// Analysis is the analyzer's verdict on one user message.
type Analysis struct {
	ShouldWrite   bool   `json:"should_write"`
	MemoryToWrite string `json:"memory_to_write"`
	Importance    int    `json:"importance"`
	IsUpdate      bool   `json:"is_update"`
	IsDeletion    bool   `json:"is_deletion"`
	OldMemoryText string `json:"old_memory_text"`
}

// Analyzer extracts memory-worthy facts from user messages via the LLM.
type Analyzer struct {
	client llm.Client
}

// NewAnalyzer wraps an LLM client.
func NewAnalyzer(client llm.Client) *Analyzer {
	return &Analyzer{client: client}
}

// Analyze asks the model whether the message carries a durable fact.
func (a *Analyzer) Analyze(ctx context.Context, userMessage string, existing []string) (*Analysis, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "User message:\n%s\n\n", userMessage)
	if len(existing) > 0 {
		b.WriteString("Existing memories:\n")
		for _, m := range existing {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	} else {
		b.WriteString("Existing memories: none\n")
	}

	completion, err := a.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: analyzerPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
		JSONResponse: true,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze message for memories: %w", err)
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(completion.Content), &analysis); err != nil {
		return nil, fmt.Errorf("parse memory analysis: %w", err)
	}
	return &analysis, nil
}

// Manager combines analysis with the write path. Retrieval and ingestion
// both go through it so callers never touch ranking internals.
type Manager struct {
	store    *Store
	analyzer *Analyzer
}

// NewManager wires a store and analyzer together.
func NewManager(store *Store, analyzer *Analyzer) *Manager {
	return &Manager{store: store, analyzer: analyzer}
}

// GetRelevant proxies ranked retrieval.
func (m *Manager) GetRelevant(ctx context.Context, userEmail, query string, topK int) ([]string, error) {
	return m.store.GetRelevant(ctx, userEmail, query, topK)
}

// Ingest runs the analyzer on a user message and applies its verdict:
// deletions remove the referenced fact, updates rewrite it, and plain
// writes first check for a near-duplicate and convert to an update when
// one exists. Ingestion failures are logged, never fatal to the turn.
func (m *Manager) Ingest(ctx context.Context, userEmail, userMessage string, existing []string) {
	analysis, err := m.analyzer.Analyze(ctx, userMessage, existing)
	if err != nil {
		slog.Warn("Memory analysis failed, skipping ingestion",
			"user_email", userEmail, "error", err)
		return
	}
	if !analysis.ShouldWrite && !analysis.IsDeletion {
		return
	}

	if analysis.IsDeletion {
		target := analysis.OldMemoryText
		if target == "" {
			target = analysis.MemoryToWrite
		}
		match, _, err := m.store.FindSimilar(ctx, userEmail, target)
		if err != nil || match == nil {
			slog.Warn("Memory deletion target not found", "user_email", userEmail, "error", err)
			return
		}
		if err := m.store.Delete(ctx, match.ID); err != nil {
			slog.Warn("Memory deletion failed", "memory_id", match.ID, "error", err)
		}
		return
	}

	if analysis.IsUpdate && analysis.OldMemoryText != "" {
		match, _, err := m.store.FindSimilar(ctx, userEmail, analysis.OldMemoryText)
		if err == nil && match != nil {
			if err := m.store.Update(ctx, match.ID, analysis.MemoryToWrite, analysis.Importance); err != nil {
				slog.Warn("Memory update failed", "memory_id", match.ID, "error", err)
			}
			return
		}
	}

	// A fresh write that closely matches an existing fact becomes an
	// update so the store never accumulates near-duplicates.
	match, sim, err := m.store.FindSimilar(ctx, userEmail, analysis.MemoryToWrite)
	if err == nil && match != nil {
		slog.Debug("Near-duplicate memory, updating instead of inserting",
			"memory_id", match.ID, "similarity", sim)
		if err := m.store.Update(ctx, match.ID, analysis.MemoryToWrite, analysis.Importance); err != nil {
			slog.Warn("Memory update failed", "memory_id", match.ID, "error", err)
		}
		return
	}

	if _, err := m.store.Save(ctx, userEmail, analysis.MemoryToWrite, analysis.Importance); err != nil {
		slog.Warn("Memory write failed", "user_email", userEmail, "error", err)
	}
}
