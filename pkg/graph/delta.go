package graph

import (
	"github.com/voyagent/voyagent/pkg/models"
)

// Delta is a node's immutable output: the set of fields it wants changed.
// Nil pointers and absent map keys mean "untouched". The scheduler merges
// deltas into the state with Apply; when parallel branches each produce a
// delta, Apply runs per branch and the per-field rule is "prefer non-null
// right over null left, latest write wins" — two workers filling different
// slots merge without loss.
type Delta struct {
	UserMessage *string

	// Route replaces the scheduler's routing decision. setRoute
	// distinguishes "leave alone" from "clear".
	Route    []string
	setRoute bool

	Plan    models.Plan
	setPlan bool

	CurrentStep *int

	PendingNodes    []string
	setPendingNodes bool

	FinishedSteps []int // appended

	ParallelMode *bool

	// Results merges per key; a nil value clears the slot (feedback retry).
	Results       map[string]*models.WorkerResult
	CollectedInfo map[string]*models.WorkerResult

	RelevantMemories    []string
	setRelevantMemories bool

	TripPlanSummary    []models.TripPlanStepSummary
	setTripPlanSummary bool

	STMSummary     *string
	RecentMessages []models.ChatMessage
	LastResults    map[string]*models.WorkerResult

	RFIStatus  *string
	RFIContext *string
	Advisory   *string

	LastResponse     *string
	ReadyForResponse *bool

	// Feedback merges per key; empty string clears the entry.
	Feedback map[string]string

	// RetryIncrements and RetryResets name counters to bump or zero.
	RetryIncrements []string
	RetryResets     []string

	AgentsCalled []string // appended
}

// Builder helpers keep node code declarative.

// SetRoute routes to the named nodes (one = sequential, many = fan-out).
func (d *Delta) SetRoute(nodes ...string) *Delta {
	d.Route = nodes
	d.setRoute = true
	return d
}

// SetPlan replaces the execution plan.
func (d *Delta) SetPlan(p models.Plan) *Delta {
	d.Plan = p
	d.setPlan = true
	return d
}

// SetResult writes a worker's slot and mirrors it into collected_info.
func (d *Delta) SetResult(worker string, r *models.WorkerResult) *Delta {
	if d.Results == nil {
		d.Results = make(map[string]*models.WorkerResult)
	}
	d.Results[worker] = r
	if r != nil {
		if d.CollectedInfo == nil {
			d.CollectedInfo = make(map[string]*models.WorkerResult)
		}
		d.CollectedInfo[worker] = r
	}
	return d
}

// ClearResult nulls a worker's slot so a feedback retry reruns it.
func (d *Delta) ClearResult(worker string) *Delta {
	if d.Results == nil {
		d.Results = make(map[string]*models.WorkerResult)
	}
	d.Results[worker] = nil
	return d
}

// SetPendingNodes records the in-flight step's worker set.
func (d *Delta) SetPendingNodes(nodes []string) *Delta {
	d.PendingNodes = nodes
	d.setPendingNodes = true
	return d
}

// SetMemories replaces the turn's retrieved memories.
func (d *Delta) SetMemories(memories []string) *Delta {
	d.RelevantMemories = memories
	d.setRelevantMemories = true
	return d
}

// SetTripPlanSummary replaces the compact trip-plan view.
func (d *Delta) SetTripPlanSummary(steps []models.TripPlanStepSummary) *Delta {
	d.TripPlanSummary = steps
	d.setTripPlanSummary = true
	return d
}

func ptr[T any](v T) *T { return &v }

// Apply merges a delta into the state. Called once per node invocation,
// and once per branch delta after a parallel step.
func Apply(s *State, d *Delta) {
	if d == nil {
		return
	}
	if d.UserMessage != nil {
		s.UserMessage = *d.UserMessage
	}
	if d.setRoute {
		s.Route = d.Route
	}
	if d.setPlan {
		s.Plan = d.Plan
	}
	if d.CurrentStep != nil {
		// The cursor only advances.
		if *d.CurrentStep > s.CurrentStep {
			s.CurrentStep = *d.CurrentStep
		}
	}
	if d.setPendingNodes {
		s.PendingNodes = d.PendingNodes
	}
	s.FinishedSteps = append(s.FinishedSteps, d.FinishedSteps...)
	if d.ParallelMode != nil {
		s.ParallelMode = *d.ParallelMode
	}
	for worker, r := range d.Results {
		if r == nil {
			delete(s.Results, worker)
			continue
		}
		s.Results[worker] = r
	}
	for worker, r := range d.CollectedInfo {
		if r != nil {
			s.CollectedInfo[worker] = r
		}
	}
	if d.setRelevantMemories {
		s.RelevantMemories = d.RelevantMemories
	}
	if d.setTripPlanSummary {
		s.TripPlanSummary = d.TripPlanSummary
	}
	if d.STMSummary != nil {
		s.STMSummary = *d.STMSummary
	}
	if d.RecentMessages != nil {
		s.RecentMessages = d.RecentMessages
	}
	for worker, r := range d.LastResults {
		if r != nil {
			s.LastResults[worker] = r
		}
	}
	if d.RFIStatus != nil {
		s.RFIStatus = *d.RFIStatus
	}
	if d.RFIContext != nil {
		s.RFIContext = *d.RFIContext
	}
	if d.Advisory != nil {
		s.Advisory = *d.Advisory
	}
	if d.LastResponse != nil {
		s.LastResponse = *d.LastResponse
	}
	if d.ReadyForResponse != nil {
		s.ReadyForResponse = *d.ReadyForResponse
	}
	for worker, msg := range d.Feedback {
		if msg == "" {
			delete(s.Feedback, worker)
			continue
		}
		s.Feedback[worker] = msg
	}
	for _, counter := range d.RetryIncrements {
		s.Retries[counter]++
	}
	for _, counter := range d.RetryResets {
		s.Retries[counter] = 0
	}
	s.AgentsCalled = append(s.AgentsCalled, d.AgentsCalled...)
}
