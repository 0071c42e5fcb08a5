// Package feedback implements the validator nodes: one per worker, one
// for the plan, one for the final response. Validators are deliberately
// lenient — they catch empty results, fixable validation errors,
// wrong-target answers, and JSON leaks, never cosmetic structure — and
// every loop is bounded: at the retry budget a validator must pass.
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

// Validator statuses.
const (
	StatusPass           = "pass"
	StatusNeedRetry      = "need_retry"
	StatusNeedFix        = "need_fix"
	StatusNeedRegenerate = "need_regenerate"
)

// verdict is the shared LLM validator reply shape.
type verdict struct {
	Status          string `json:"status"`
	FeedbackMessage string `json:"feedback_message"`
}

const workerValidatorPrompt = `You review one specialist's output against what the user asked for.
Flag only real problems:
- the result answers a different question than asked (wrong city, wrong
  category, restaurants when attractions were requested)
- the result is empty with no explanation
Do NOT flag formatting, ordering, or missing nice-to-haves.
Reply with JSON only: {"status": "pass"|"need_retry", "feedback_message": string}`

// WorkerValidator validates one worker's result slot.
type WorkerValidator struct {
	worker     string
	llm        llm.Client
	rec        *audit.Recorder
	maxRetries int
}

// NewWorkerValidator builds the validator paired with a worker.
func NewWorkerValidator(worker string, client llm.Client, rec *audit.Recorder, maxRetries int) *WorkerValidator {
	return &WorkerValidator{worker: worker, llm: client, rec: rec, maxRetries: maxRetries}
}

// Node judges the slot. Retry nulls the result, records feedback for the
// worker, and routes directly to it — not through the dispatcher, which
// would re-advance the step cursor.
func (v *WorkerValidator) Node(ctx context.Context, s *graph.State) (*graph.Delta, error) {
	counter := graph.WorkerCounter(v.worker)

	if s.Retry(counter) >= v.maxRetries {
		// Budget spent: pass to guarantee progress.
		metrics.FeedbackRetries.WithLabelValues(v.worker).Inc()
		v.rec.FeedbackFailure(v.worker, s.SessionID,
			fmt.Sprintf("retry budget exhausted after %d attempts", v.maxRetries))
		return v.pass(s), nil
	}

	result := s.Result(v.worker)
	status, message := v.judge(ctx, s, result)
	if status == StatusPass {
		return v.pass(s), nil
	}

	metrics.FeedbackRetries.WithLabelValues(v.worker).Inc()
	delta := &graph.Delta{}
	delta.ClearResult(v.worker)
	delta.Feedback = map[string]string{v.worker: message}
	delta.RetryIncrements = []string{counter}
	delta.SetRoute(v.worker)
	return delta, nil
}

// judge applies the rule checks, then the model review for results that
// look healthy.
func (v *WorkerValidator) judge(ctx context.Context, s *graph.State, result *models.WorkerResult) (string, string) {
	if result == nil {
		return StatusNeedRetry, "no result was produced"
	}
	if result.Failed() {
		if result.Retriable() {
			msg := result.Err.ErrorMessage
			if result.Err.Suggestion != "" {
				msg += "; " + result.Err.Suggestion
			}
			return StatusNeedRetry, msg
		}
		// Terminal errors pass through; the responder explains them.
		return StatusPass, ""
	}
	if !result.MultipleResults && isEmptyPayload(result.Data) {
		return StatusNeedRetry, "the result was empty with no explanation"
	}

	return v.modelReview(ctx, s, result)
}

func (v *WorkerValidator) modelReview(ctx context.Context, s *graph.State, result *models.WorkerResult) (string, string) {
	if v.llm == nil {
		return StatusPass, ""
	}
	payload, _ := json.Marshal(result)
	completion, err := v.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: workerValidatorPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf(
				"User asked:\n%s\n\nSpecialist %s produced:\n%s",
				s.UserMessage, v.worker, payload)},
		},
		JSONResponse: true,
	})
	if err != nil {
		// A broken validator never blocks the turn.
		return StatusPass, ""
	}
	var rv verdict
	if err := json.Unmarshal([]byte(completion.Content), &rv); err != nil {
		return StatusPass, ""
	}
	if rv.Status == StatusNeedRetry && rv.FeedbackMessage != "" {
		return StatusNeedRetry, rv.FeedbackMessage
	}
	return StatusPass, ""
}

// pass clears the feedback entry, zeroes the counter, and advances the
// step's validator chain.
func (v *WorkerValidator) pass(s *graph.State) *graph.Delta {
	delta := &graph.Delta{}
	delta.Feedback = map[string]string{v.worker: ""}
	delta.RetryResets = []string{graph.WorkerCounter(v.worker)}
	delta.SetRoute(NextInChain(s, v.worker))
	return delta
}

// NextInChain resolves the validator after this worker's within the
// finished step, falling back to the executor when the chain ends.
func NextInChain(s *graph.State, worker string) string {
	agents := finishedStepAgents(s)
	for i, a := range agents {
		if a == worker && i+1 < len(agents) {
			return graph.FeedbackNode(agents[i+1])
		}
	}
	return graph.NodeExecutor
}

// finishedStepAgents returns the agents of the step the join just closed.
func finishedStepAgents(s *graph.State) []string {
	if s.CurrentStep >= 1 && s.CurrentStep <= len(s.Plan) {
		return s.Plan[s.CurrentStep-1].Agents
	}
	return nil
}

func isEmptyPayload(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	switch trimmed {
	case "", "{}", "[]", "null", `""`:
		return true
	}
	return false
}
