package plan

import (
	"context"

	"github.com/voyagent/voyagent/pkg/graph"
)

// Executor iterates the execution plan. Each visit either launches the
// next step through the dispatcher or, when the cursor has passed the
// last step, hands a ready_for_response signal to the join.
type Executor struct{}

// NewExecutor builds the plan executor node.
func NewExecutor() *Executor { return &Executor{} }

// Node advances the plan cursor.
func (e *Executor) Node(_ context.Context, s *graph.State) (*graph.Delta, error) {
	delta := &graph.Delta{}

	if s.CurrentStep >= len(s.Plan) {
		delta.ReadyForResponse = boolPtr(true)
		delta.SetRoute(graph.NodeJoin)
		return delta, nil
	}

	step := s.Plan[s.CurrentStep]
	next := s.CurrentStep + 1
	delta.CurrentStep = &next
	delta.SetPendingNodes(append([]string(nil), step.Agents...))
	delta.SetRoute(graph.NodeDispatcher)
	return delta, nil
}

// Dispatcher fans the pending step out: it marks parallel mode and routes
// to every pending worker at once. Workers run concurrently, each writing
// only its own slot; the join barrier collects them.
type Dispatcher struct{}

// NewDispatcher builds the dispatcher node.
func NewDispatcher() *Dispatcher { return &Dispatcher{} }

// Node emits the fan-out route.
func (d *Dispatcher) Node(_ context.Context, s *graph.State) (*graph.Delta, error) {
	delta := &graph.Delta{}
	if len(s.PendingNodes) == 0 {
		// Nothing to dispatch; let the join advance the plan.
		delta.SetRoute(graph.NodeJoin)
		return delta, nil
	}
	delta.ParallelMode = boolPtr(true)
	delta.SetRoute(s.PendingNodes...)
	return delta, nil
}
