package feedback

import (
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

const planValidatorPrompt = `You review an execution plan for a travel request. Flag only logical
ordering problems:
- a specialist that depends on another's output scheduled in the same or
  an earlier step (holiday lookup after the booking it should guard;
  currency conversion before any prices exist)
- a specialist that plainly cannot help with the request
Do NOT flag plans for being too small, too large, or differently grouped
than you would choose.
Reply with JSON only: {"status": "pass"|"need_fix", "feedback_message": string}`

// PlanValidator reviews the planner's output before execution.
type PlanValidator struct {
	llm        llm.Client
	rec        *audit.Recorder
	maxRetries int
}

// NewPlanValidator builds the plan-level validator.
func NewPlanValidator(client llm.Client, rec *audit.Recorder, maxRetries int) *PlanValidator {
	return &PlanValidator{llm: client, rec: rec, maxRetries: maxRetries}
}

// Node judges the plan. Need-fix clears it and routes back to the planner
// with the explanation; at the budget it must pass.
func (v *PlanValidator) Node(ctx context.Context, s *graph.State) (*graph.Delta, error) {
	if len(s.Plan) == 0 {
		// Empty plans are a deliberate planner outcome, not a defect.
		return v.pass(), nil
	}
	if s.Retry(graph.CounterPlanFeedback) >= v.maxRetries {
		metrics.FeedbackRetries.WithLabelValues(graph.NodePlanner).Inc()
		v.rec.FeedbackFailure(graph.NodePlanFeedback, s.SessionID,
			fmt.Sprintf("plan retry budget exhausted after %d attempts", v.maxRetries))
		return v.pass(), nil
	}

	status, message := v.review(ctx, s)
	if status == StatusPass {
		return v.pass(), nil
	}

	metrics.FeedbackRetries.WithLabelValues(graph.NodePlanner).Inc()
	delta := &graph.Delta{}
	delta.SetPlan(models.Plan{})
	delta.Feedback = map[string]string{graph.NodePlanner: message}
	delta.RetryIncrements = []string{graph.CounterPlanFeedback}
	delta.SetRoute(graph.NodePlanner)
	return delta, nil
}

func (v *PlanValidator) review(ctx context.Context, s *graph.State) (string, string) {
	if v.llm == nil {
		return StatusPass, ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "User request:\n%s\n\nPlan:\n", s.UserMessage)
	for _, step := range s.Plan {
		fmt.Fprintf(&b, "step %d: %s — %s\n",
			step.Number, strings.Join(step.Agents, ", "), step.Description)
	}

	completion, err := v.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: planValidatorPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
		JSONResponse: true,
	})
	if err != nil {
		return StatusPass, ""
	}
	var rv verdict
	if err := json.Unmarshal([]byte(completion.Content), &rv); err != nil {
		return StatusPass, ""
	}
	if rv.Status == StatusNeedFix && rv.FeedbackMessage != "" {
		return StatusNeedFix, rv.FeedbackMessage
	}
	return StatusPass, ""
}

func (v *PlanValidator) pass() *graph.Delta {
	delta := &graph.Delta{}
	delta.Feedback = map[string]string{graph.NodePlanner: ""}
	delta.RetryResets = []string{graph.CounterPlanFeedback}
	delta.SetRoute(graph.NodeExecutor)
	return delta
}
