// Package workers implements the specialist worker nodes: each translates
// the turn's state and memories into restricted tool calls and writes a
// typed result into its own slot.
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/config"
	"github.com/voyagent/voyagent/pkg/graph"
	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/metrics"
	"github.com/voyagent/voyagent/pkg/models"
	"github.com/voyagent/voyagent/pkg/toolreg"
	"github.com/voyagent/voyagent/pkg/tripplan"
)

// ToolInvoker is the slice of the registry client workers use. The
// concrete *toolreg.Client satisfies it; tests substitute fakes.
type ToolInvoker interface {
	ListTools(ctx context.Context) ([]toolreg.ToolSpec, error)
	Invoke(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error)
}

// Worker is the shared template every tool-backed specialist follows:
//  1. Filter memories to the worker's keyword bucket and inject as hints
//  2. One model call with the allow-listed tool schemas, tool_choice
//     required when tools exist
//  3. Invoke the chosen tool(s); no tool chosen means missing parameters
//  4. Skip calls whose normalized arguments match an existing healthy slot
//  5. Write only the worker's own slot; never set route
type Worker struct {
	name   string
	cfg    config.WorkerConfig
	prompt string
	llm    llm.Client
	tools  ToolInvoker
	rec    *audit.Recorder

	// normalizeArgs canonicalizes model-chosen arguments before dedup and
	// invocation (clamping ranges, fixing enum spellings). Optional.
	normalizeArgs func(tool string, args map[string]any) map[string]any

	// intercept short-circuits a tool call with a synthesized result
	// (e.g. hotel booking is never executed from chat). Optional.
	intercept func(tool string, args map[string]any) *models.WorkerResult
}

// Node returns the graph node function for this worker.
func (w *Worker) Node(ctx context.Context, s *graph.State) (*graph.Delta, error) {
	delta := &graph.Delta{} // workers never set route; edges handle it
	delta.AgentsCalled = []string{w.name}
	delta.Feedback = map[string]string{w.name: ""}

	specs, err := w.tools.ListTools(ctx)
	if err != nil {
		slog.Error("Worker could not list tools", "worker", w.name, "error", err)
		delta.SetResult(w.name, &models.WorkerResult{
			Worker: w.name,
			Err:    models.Errorf(models.ErrCodeUpstream, "tool registry unavailable: %v", err),
		})
		return delta, nil
	}

	completion, err := w.complete(ctx, s, specs)
	if err != nil {
		delta.SetResult(w.name, &models.WorkerResult{
			Worker: w.name,
			Err:    models.Errorf(models.ErrCodeUpstream, "model call failed: %v", err),
		})
		return delta, nil
	}

	calls := completion.ToolCalls
	if len(calls) == 0 {
		delta.SetResult(w.name, &models.WorkerResult{
			Worker: w.name,
			Err: models.NewErrorEnvelope(models.ErrCodeMissingParams,
				"the request lacks the details needed to search").
				WithSuggestion("ask the user for the missing details"),
		})
		return delta, nil
	}
	if !w.cfg.MultipleResults && len(calls) > 1 {
		calls = calls[:1]
	}

	if w.cfg.MultipleResults {
		delta.SetResult(w.name, w.runMany(ctx, s, calls))
	} else {
		delta.SetResult(w.name, w.runOne(ctx, s, calls[0]))
	}
	return delta, nil
}

// complete issues the restricted model call.
func (w *Worker) complete(ctx context.Context, s *graph.State, specs []toolreg.ToolSpec) (*llm.Completion, error) {
	defs := make([]llm.ToolDefinition, len(specs))
	for i, t := range specs {
		defs[i] = llm.ToolDefinition{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
	}

	var b strings.Builder
	b.WriteString(w.prompt)
	if hints := FilterMemories(s.RelevantMemories, w.cfg.MemoryKeywords); len(hints) > 0 {
		b.WriteString("\n\nKnown user preferences:\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	if fb := s.Feedback[w.name]; fb != "" {
		fmt.Fprintf(&b, "\n\nYour previous attempt was rejected: %s\nCorrect the problem this time.", fb)
	}

	choice := llm.ToolChoiceRequired
	if len(defs) == 0 {
		choice = ""
	}
	req := llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: b.String()},
			{Role: llm.RoleUser, Content: s.UserMessage},
		},
		Tools:      defs,
		ToolChoice: choice,
	}

	completion, err := w.llm.Complete(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.LLMCalls.WithLabelValues(w.name, outcome).Inc()
	w.rec.LLMCall(w.name, s.SessionID, map[string]any{
		"user_message": s.UserMessage, "tools": len(defs), "error": errString(err),
	})
	return completion, err
}

// runOne executes a single tool call with dedup against the current slot.
func (w *Worker) runOne(ctx context.Context, s *graph.State, call llm.ToolCall) *models.WorkerResult {
	args := w.parseArgs(call)
	if existing := s.Result(w.name); w.satisfiedBy(existing, call.Name, args) {
		slog.Debug("Worker reusing existing result", "worker", w.name, "tool", call.Name)
		return existing
	}
	return w.invoke(ctx, call.Name, args)
}

// runMany executes several calls in one pass (utilities), keying
// subresults by tool name.
func (w *Worker) runMany(ctx context.Context, s *graph.State, calls []llm.ToolCall) *models.WorkerResult {
	result := &models.WorkerResult{
		Worker:          w.name,
		MultipleResults: true,
		Subresults:      make(map[string]json.RawMessage, len(calls)),
	}
	existing := s.Result(w.name)
	for _, call := range calls {
		args := w.parseArgs(call)
		if existing != nil && existing.OK() && existing.Subresults[call.Name] != nil {
			result.Subresults[call.Name] = existing.Subresults[call.Name]
			continue
		}
		sub := w.invoke(ctx, call.Name, args)
		if sub.Err != nil {
			raw, _ := json.Marshal(sub.Err)
			result.Subresults[call.Name] = raw
			continue
		}
		result.Subresults[call.Name] = sub.Data
	}
	return result
}

// invoke performs one registry call, mapping envelope payloads onto Err.
func (w *Worker) invoke(ctx context.Context, tool string, args map[string]any) *models.WorkerResult {
	if w.intercept != nil {
		if r := w.intercept(tool, args); r != nil {
			return r
		}
	}

	data, err := w.tools.Invoke(ctx, tool, args)
	result := &models.WorkerResult{Worker: w.name, Tool: tool, Args: args}
	if err != nil {
		result.Err = models.Errorf(models.ErrCodeUpstream, "tool %s failed: %v", tool, err)
		return result
	}
	if envelope := models.ParseEnvelope(data); envelope != nil {
		result.Err = envelope
		return result
	}
	result.Data = data
	return result
}

func (w *Worker) parseArgs(call llm.ToolCall) map[string]any {
	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			slog.Warn("Worker received unparseable tool arguments",
				"worker", w.name, "tool", call.Name, "error", err)
		}
	}
	if w.normalizeArgs != nil {
		args = w.normalizeArgs(call.Name, args)
	}
	return args
}

// satisfiedBy reports whether an existing healthy slot already answers the
// same normalized call, so the tool is not re-invoked.
func (w *Worker) satisfiedBy(existing *models.WorkerResult, tool string, args map[string]any) bool {
	if existing == nil || !existing.OK() {
		return false
	}
	if existing.Tool != tool {
		return false
	}
	return tripplan.Canonicalize(existing.Args) == tripplan.Canonicalize(args)
}

// FilterMemories keeps the memories matching a keyword bucket; an empty
// bucket admits everything.
func FilterMemories(memories, keywords []string) []string {
	if len(keywords) == 0 {
		return memories
	}
	var out []string
	for _, m := range memories {
		lower := strings.ToLower(m)
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
