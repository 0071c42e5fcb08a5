package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/graph"
	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/metrics"
	"github.com/voyagent/voyagent/pkg/models"
)

const responseValidatorPrompt = `You review a travel assistant's draft reply. Flag only real defects:
- raw JSON or code-like data dumped into the text
- data sections the assistant collected but silently omitted
- an answer to a different question than the user asked
Do NOT flag tone, length, or formatting choices.
Reply with JSON only: {"status": "pass"|"need_regenerate", "feedback_message": string}`

// Long drafts are truncated before review: head and tail carry the
// greeting, the data sections' start, and the closing — where defects
// show up — without spending tokens on the middle.
const (
	truncateThreshold = 2500
	truncateHead      = 1500
	truncateTail      = 1000
)

// jsonLeakPattern catches structural JSON fragments in prose.
var jsonLeakPattern = regexp.MustCompile(`\{\s*"[^"]+"\s*:`)

// ResponseValidator reviews the final draft before it reaches the user.
type ResponseValidator struct {
	llm        llm.Client
	rec        *audit.Recorder
	maxRetries int
}

// NewResponseValidator builds the response-level validator.
func NewResponseValidator(client llm.Client, rec *audit.Recorder, maxRetries int) *ResponseValidator {
	return &ResponseValidator{llm: client, rec: rec, maxRetries: maxRetries}
}

// Node judges the draft. Need-regenerate records feedback for the
// responder and routes back to it; a pass ends the graph.
func (v *ResponseValidator) Node(ctx context.Context, s *graph.State) (*graph.Delta, error) {
	if s.Retry(graph.CounterResponseFeedback) >= v.maxRetries {
		metrics.FeedbackRetries.WithLabelValues(graph.NodeResponder).Inc()
		v.rec.FeedbackFailure(graph.NodeResponseFeedback, s.SessionID,
			fmt.Sprintf("response retry budget exhausted after %d attempts", v.maxRetries))
		return v.pass(), nil
	}

	status, message := v.judge(ctx, s)
	if status == StatusPass {
		return v.pass(), nil
	}

	metrics.FeedbackRetries.WithLabelValues(graph.NodeResponder).Inc()
	delta := &graph.Delta{}
	empty := ""
	delta.LastResponse = &empty
	delta.Feedback = map[string]string{models.WorkerConversational: message}
	delta.RetryIncrements = []string{graph.CounterResponseFeedback}
	delta.SetRoute(graph.NodeResponder)
	return delta, nil
}

func (v *ResponseValidator) judge(ctx context.Context, s *graph.State) (string, string) {
	draft := s.LastResponse
	if strings.TrimSpace(draft) == "" {
		return StatusNeedRegenerate, "the draft was empty"
	}
	if jsonLeakPattern.MatchString(draft) {
		return StatusNeedRegenerate, "the draft leaks raw JSON; present the data as readable text"
	}
	return v.modelReview(ctx, s, draft)
}

func (v *ResponseValidator) modelReview(ctx context.Context, s *graph.State, draft string) (string, string) {
	if v.llm == nil {
		return StatusPass, ""
	}

	reviewed := draft
	if len(draft) > truncateThreshold {
		reviewed = draft[:truncateHead] + "\n[...]\n" + draft[len(draft)-truncateTail:]
	}

	var collected []string
	for worker := range s.CollectedInfo {
		collected = append(collected, worker)
	}

	completion, err := v.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: responseValidatorPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf(
				"User asked:\n%s\n\nData collected from: %s\n\nDraft reply:\n%s",
				s.UserMessage, strings.Join(collected, ", "), reviewed)},
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
	if rv.Status == StatusNeedRegenerate && rv.FeedbackMessage != "" {
		return StatusNeedRegenerate, rv.FeedbackMessage
	}
	return StatusPass, ""
}

func (v *ResponseValidator) pass() *graph.Delta {
	delta := &graph.Delta{}
	delta.Feedback = map[string]string{models.WorkerConversational: ""}
	delta.RetryResets = []string{graph.CounterResponseFeedback}
	delta.SetRoute(graph.End)
	return delta
}
