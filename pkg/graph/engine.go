package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// End is the terminal route sentinel.
const End = "end"

// DefaultRecursionBudget bounds total node invocations per request; the
// only guard against routing cycles.
const DefaultRecursionBudget = 50

// timeoutResponse is surfaced when the request deadline fires before a
// response was drafted.
const timeoutResponse = "I'm sorry, that took longer than expected and I couldn't finish. " +
	"Please try again, or break the request into smaller parts."

// budgetResponse is surfaced when routing exhausts the recursion budget.
const budgetResponse = "I'm sorry, I couldn't complete that request. Please try rephrasing it."

// ErrUnknownNode reports a route naming a node absent from the table.
var ErrUnknownNode = errors.New("unknown node")

// Engine compiles a node table plus conditional edges into a runnable
// graph. Transitions are driven by the state's route field: a node may set
// it explicitly, otherwise the node's edge function decides.
type Engine struct {
	nodes  map[string]NodeFunc
	edges  map[string]EdgeFunc
	entry  string
	budget int
}

// NewEngine creates an empty graph with the given entry node.
func NewEngine(entry string, budget int) *Engine {
	if budget <= 0 {
		budget = DefaultRecursionBudget
	}
	return &Engine{
		nodes:  make(map[string]NodeFunc),
		edges:  make(map[string]EdgeFunc),
		entry:  entry,
		budget: budget,
	}
}

// AddNode registers a node.
func (e *Engine) AddNode(name string, fn NodeFunc) *Engine {
	e.nodes[name] = fn
	return e
}

// AddEdge registers the unconditional successor of a node.
func (e *Engine) AddEdge(from, to string) *Engine {
	e.edges[from] = func(*State) []string { return []string{to} }
	return e
}

// AddConditionalEdge registers a successor function evaluated against the
// post-merge state.
func (e *Engine) AddConditionalEdge(from string, fn EdgeFunc) *Engine {
	e.edges[from] = fn
	return e
}

// branchDelta pairs a parallel branch's output with its position so the
// merge order is deterministic.
type branchDelta struct {
	index int
	node  string
	delta *Delta
	err   error
}

// Run drives the graph until a terminal route, the recursion budget, or
// the context deadline. The state is mutated in place and always left with
// a user-visible LastResponse.
func (e *Engine) Run(ctx context.Context, s *State) error {
	route := []string{e.entry}
	invocations := 0

	for len(route) > 0 {
		if len(route) == 1 && route[0] == End {
			break
		}
		select {
		case <-ctx.Done():
			e.onDeadline(s)
			return nil
		default:
		}
		if invocations+len(route) > e.budget {
			slog.Warn("Recursion budget exhausted",
				"session_id", s.SessionID, "invocations", invocations, "route", route)
			if s.LastResponse == "" {
				s.LastResponse = budgetResponse
			}
			return nil
		}

		var last string
		var err error
		if len(route) == 1 {
			last = route[0]
			invocations++
			err = e.runOne(ctx, s, last)
		} else {
			last = route[len(route)-1]
			invocations += len(route)
			err = e.runParallel(ctx, s, route)
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				e.onDeadline(s)
				return nil
			}
			return err
		}

		// A node that set route overrides the static edge.
		if len(s.Route) > 0 {
			route = s.Route
			s.Route = nil
			continue
		}
		edge := e.edges[last]
		if edge == nil {
			route = nil
			continue
		}
		route = edge(s)
	}
	return nil
}

// runOne invokes a single node and applies its delta.
func (e *Engine) runOne(ctx context.Context, s *State, name string) error {
	fn, ok := e.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, name)
	}
	delta, err := fn(ctx, s)
	if err != nil {
		return fmt.Errorf("node %s: %w", name, err)
	}
	Apply(s, delta)
	return nil
}

// runParallel fans the route out to concurrent workers. Every branch sees
// the same pre-step snapshot; deltas merge in branch order so the reducer
// rule (non-null right wins) is deterministic.
func (e *Engine) runParallel(ctx context.Context, s *State, route []string) error {
	for _, name := range route {
		if _, ok := e.nodes[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownNode, name)
		}
	}

	snapshot := s.Clone()
	results := make([]branchDelta, len(route))
	var wg sync.WaitGroup
	for i, name := range route {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			delta, err := e.nodes[name](ctx, snapshot)
			results[i] = branchDelta{index: i, node: name, delta: delta, err: err}
		}(i, name)
	}
	wg.Wait()

	for _, br := range results {
		if br.err != nil {
			if errors.Is(br.err, context.DeadlineExceeded) || errors.Is(br.err, context.Canceled) {
				return br.err
			}
			// A failed branch leaves its slot empty; the join synthesizes
			// an envelope after its poll budget.
			slog.Error("Parallel branch failed",
				"node", br.node, "session_id", s.SessionID, "error", br.err)
			continue
		}
		Apply(s, br.delta)
	}
	// Branch-set routes are discarded: after a fan-out the dispatcher's
	// edge routes to the join.
	s.Route = nil
	return nil
}

// onDeadline records the timeout and guarantees a user-visible response.
// Results that already landed in their slots are kept.
func (e *Engine) onDeadline(s *State) {
	slog.Warn("Request deadline exceeded", "session_id", s.SessionID)
	if s.LastResponse == "" {
		s.LastResponse = timeoutResponse
	}
}
