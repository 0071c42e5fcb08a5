package plan

import (
	"context"
	"log/slog"
	"time"

	"github.com/voyagent/voyagent/pkg/graph"
	"github.com/voyagent/voyagent/pkg/metrics"
	"github.com/voyagent/voyagent/pkg/models"
)

// Join is the barrier after a parallel step. It waits for every pending
// worker's slot with a bounded poll; on exhaustion it synthesizes error
// envelopes for the missing slots so the responder still gets an answer
// out the door.
type Join struct {
	maxPolls     int
	pollInterval time.Duration
}

// NewJoin builds the join node with its poll budget.
func NewJoin(maxPolls int, pollInterval time.Duration) *Join {
	return &Join{maxPolls: maxPolls, pollInterval: pollInterval}
}

// Node checks step completeness.
func (j *Join) Node(ctx context.Context, s *graph.State) (*graph.Delta, error) {
	delta := &graph.Delta{}

	waiting := j.waitingOn(s)
	if len(waiting) == 0 {
		// Plan exhausted (or empty): hand over to the trip planner, then
		// the responder.
		delta.SetPendingNodes(nil)
		delta.ParallelMode = boolPtr(false)
		delta.SetRoute(graph.NodeTripPlanner)
		return delta, nil
	}

	var missing []string
	for _, worker := range waiting {
		if !s.HasResult(worker) {
			missing = append(missing, worker)
		}
	}

	if len(missing) > 0 {
		if s.Retry(graph.CounterJoin) < j.maxPolls {
			delta.RetryIncrements = []string{graph.CounterJoin}
			metrics.JoinPolls.Inc()
			select {
			case <-time.After(j.pollInterval):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delta.SetRoute(graph.NodeJoin)
			return delta, nil
		}

		// Poll budget exhausted: proceed with partial results.
		metrics.JoinTimeouts.Inc()
		slog.Warn("Join gave up waiting on workers",
			"session_id", s.SessionID, "missing", missing)
		for _, worker := range missing {
			delta.SetResult(worker, &models.WorkerResult{
				Worker: worker,
				Err:    models.Errorf(models.ErrCodeIncomplete, "%s did not complete", worker),
			})
		}
	}

	delta.FinishedSteps = []int{j.stepNumber(s)}
	delta.SetPendingNodes(nil)
	delta.ParallelMode = boolPtr(false)
	delta.RetryResets = []string{graph.CounterJoin}

	// Step done: walk the per-worker validators, starting with the first
	// agent of the step; the feedback chain ends back at the executor.
	delta.SetRoute(graph.FeedbackNode(waiting[0]))
	return delta, nil
}

// waitingOn resolves the set of workers the barrier covers: the recorded
// pending nodes, else the most recently launched step's agents.
func (j *Join) waitingOn(s *graph.State) []string {
	if len(s.PendingNodes) > 0 {
		return s.PendingNodes
	}
	if s.ReadyForResponse || len(s.Plan) == 0 {
		return nil
	}
	if s.CurrentStep >= 1 && s.CurrentStep <= len(s.Plan) {
		return s.Plan[s.CurrentStep-1].Agents
	}
	return nil
}

func (j *Join) stepNumber(s *graph.State) int {
	if s.CurrentStep >= 1 && s.CurrentStep <= len(s.Plan) {
		return s.Plan[s.CurrentStep-1].Number
	}
	return s.CurrentStep
}
