// Package plan implements the planning stage of the graph: the LLM planner
// that emits the execution plan, the step executor, the parallel
// dispatcher, and the join barrier.
package plan

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
	"github.com/voyagent/voyagent/pkg/models"
)

const plannerPrompt = `You plan which travel specialists to run for the user's request, and in
what order. Available specialists:
- flight: flight searches
- hotel: hotel searches, rates, details
- visa: visa requirements
- tripadvisor: attractions and restaurants
- utilities: holidays, weather, currency, date/time, eSIM bundles

Rules:
- Group independent specialists into one step so they run in parallel.
- Put a specialist in a later step only when it needs an earlier step's
  output (holidays before booking when the user wants to avoid holidays;
  currency conversion after prices).
- Emit an empty plan when the request needs no new data (small talk,
  picking from results already shown, plan management).
Reply with JSON only:
{"steps": [{"step_number": 1, "agents": ["flight","hotel"], "description": "..."}]}`

// attractionKeywords gates the tripadvisor post-filter: the specialist
// stays in the plan only for explicit attraction/dining asks.
var attractionKeywords = []string{
	"attraction", "attractions", "restaurant", "restaurants", "museum",
	"things to do", "sightseeing", "sights", "eat", "dining", "bars",
	"nightlife", "tours", "activities",
}

type plannerReply struct {
	Steps []models.Step `json:"steps"`
}

// Planner is the LLM node that produces the execution plan.
type Planner struct {
	llm llm.Client
	rec *audit.Recorder
}

// NewPlanner builds the planner node.
func NewPlanner(client llm.Client, rec *audit.Recorder) *Planner {
	return &Planner{llm: client, rec: rec}
}

// Node emits the plan. Unknown agents are dropped, tripadvisor is
// post-filtered, and step numbers are renumbered to be contiguous. A
// model failure degrades to an empty plan so the turn still answers.
func (p *Planner) Node(ctx context.Context, s *graph.State) (*graph.Delta, error) {
	delta := &graph.Delta{}
	delta.Feedback = map[string]string{graph.NodePlanner: ""}

	steps, err := p.complete(ctx, s)
	if err != nil {
		slog.Warn("Planner model call failed, proceeding without a plan",
			"session_id", s.SessionID, "error", err)
		delta.SetPlan(models.Plan{})
		return delta, nil
	}

	plan := sanitize(steps, s.UserMessage)
	delta.SetPlan(plan)
	if len(plan) == 0 {
		delta.ReadyForResponse = boolPtr(true)
	}
	return delta, nil
}

func (p *Planner) complete(ctx context.Context, s *graph.State) ([]models.Step, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "User request:\n%s\n", s.UserMessage)
	if fb := s.Feedback[graph.NodePlanner]; fb != "" {
		fmt.Fprintf(&b, "\nYour previous plan was rejected: %s\nEmit a corrected plan.\n", fb)
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
	if populated := populatedSlots(s); len(populated) > 0 {
		fmt.Fprintf(&b, "\nData already collected this turn (do not re-plan these): %s\n",
			strings.Join(populated, ", "))
	}

	completion, err := p.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: plannerPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
		JSONResponse: true,
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.LLMCalls.WithLabelValues(graph.NodePlanner, outcome).Inc()
	p.rec.LLMCall(graph.NodePlanner, s.SessionID, map[string]any{
		"user_message": s.UserMessage, "error": errString(err),
	})
	if err != nil {
		return nil, err
	}

	var reply plannerReply
	if err := json.Unmarshal([]byte(completion.Content), &reply); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return reply.Steps, nil
}

// sanitize enforces the planner contract on model output: agents come
// from the plannable set, tripadvisor needs an explicit attraction or
// dining keyword, empty steps vanish, numbering is contiguous.
func sanitize(steps []models.Step, userMessage string) models.Plan {
	wantsAttractions := containsAny(strings.ToLower(userMessage), attractionKeywords)

	var plan models.Plan
	for _, step := range steps {
		var agents []string
		for _, a := range step.Agents {
			name := strings.ToLower(strings.TrimSpace(a))
			if !plannable(name) {
				slog.Debug("Planner emitted unknown agent, dropping", "agent", a)
				continue
			}
			if name == models.WorkerTripAdvisor && !wantsAttractions {
				continue
			}
			agents = append(agents, name)
		}
		if len(agents) == 0 {
			continue
		}
		plan = append(plan, models.Step{
			Number:      len(plan) + 1,
			Agents:      agents,
			Description: step.Description,
		})
	}
	return plan
}

func plannable(name string) bool {
	for _, w := range models.PlannableWorkers {
		if w == name {
			return true
		}
	}
	return false
}

func populatedSlots(s *graph.State) []string {
	var out []string
	for _, w := range models.PlannableWorkers {
		if s.HasResult(w) {
			out = append(out, w)
		}
	}
	return out
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func boolPtr(v bool) *bool { return &v }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
