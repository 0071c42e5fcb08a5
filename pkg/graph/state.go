// Package graph implements the staged execution graph: the shared state
// record, the node contract, per-field delta reducers, and the scheduler
// that drives route-based transitions with parallel fan-out and bounded
// recursion.
package graph

import (
	"github.com/voyagent/voyagent/pkg/models"
)

// RFI gate statuses.
const (
	RFIComplete    = "complete"
	RFIMissingInfo = "missing_info"
	RFIUnsafe      = "unsafe"
	RFIOutOfScope  = "out_of_scope"
	RFIError       = "error"
)

// Retry counter names. Counters are monotonic within a request.
const (
	CounterPlanFeedback     = "plan_feedback"
	CounterResponseFeedback = "response_feedback"
	CounterJoin             = "join"
)

// WorkerCounter names the feedback retry counter for a worker.
func WorkerCounter(worker string) string { return worker + "_feedback" }

// State is the record the scheduler threads through every node. Nodes
// receive it read-only and return a Delta; the scheduler owns the single
// mutable copy.
type State struct {
	UserMessage string
	UserEmail   string
	SessionID   string

	// Route is the next node (one entry) or a parallel fan-out (several).
	// The scheduler consumes and clears it after each transition.
	Route []string

	Plan          models.Plan
	CurrentStep   int
	PendingNodes  []string
	FinishedSteps []int
	ParallelMode  bool

	// Results holds the per-worker slots; a missing key means not yet
	// produced. CollectedInfo mirrors the slots for the responder.
	Results       map[string]*models.WorkerResult
	CollectedInfo map[string]*models.WorkerResult

	RelevantMemories []string
	TripPlanSummary  []models.TripPlanStepSummary
	STMSummary       string
	RecentMessages   []models.ChatMessage
	LastResults      map[string]*models.WorkerResult

	RFIStatus  string
	RFIContext string
	// Advisory is prepended to the final answer when RFI extracted the
	// travel part of a mixed-domain message.
	Advisory string

	LastResponse     string
	ReadyForResponse bool

	// Feedback carries validator messages addressed to a worker retry.
	Feedback map[string]string

	// Retries maps counter name to count.
	Retries map[string]int

	// AgentsCalled accumulates, in order, every worker that ran.
	AgentsCalled []string
}

// NewState initializes the per-request state.
func NewState(userEmail, sessionID, userMessage string) *State {
	return &State{
		UserMessage:   userMessage,
		UserEmail:     userEmail,
		SessionID:     sessionID,
		Results:       make(map[string]*models.WorkerResult),
		CollectedInfo: make(map[string]*models.WorkerResult),
		LastResults:   make(map[string]*models.WorkerResult),
		Feedback:      make(map[string]string),
		Retries:       make(map[string]int),
	}
}

// Result returns the slot for a worker, nil when not yet produced.
func (s *State) Result(worker string) *models.WorkerResult {
	return s.Results[worker]
}

// HasResult reports whether a worker's slot is populated.
func (s *State) HasResult(worker string) bool {
	return s.Results[worker] != nil
}

// Retry returns a counter's current value.
func (s *State) Retry(counter string) int { return s.Retries[counter] }

// Clone produces the snapshot handed to parallel workers: deep enough
// that concurrent readers never observe the scheduler's merges.
func (s *State) Clone() *State {
	c := *s
	c.Route = append([]string(nil), s.Route...)
	c.Plan = append(models.Plan(nil), s.Plan...)
	c.PendingNodes = append([]string(nil), s.PendingNodes...)
	c.FinishedSteps = append([]int(nil), s.FinishedSteps...)
	c.RelevantMemories = append([]string(nil), s.RelevantMemories...)
	c.TripPlanSummary = append([]models.TripPlanStepSummary(nil), s.TripPlanSummary...)
	c.RecentMessages = append([]models.ChatMessage(nil), s.RecentMessages...)
	c.AgentsCalled = append([]string(nil), s.AgentsCalled...)
	c.Results = copyResults(s.Results)
	c.CollectedInfo = copyResults(s.CollectedInfo)
	c.LastResults = copyResults(s.LastResults)
	c.Feedback = make(map[string]string, len(s.Feedback))
	for k, v := range s.Feedback {
		c.Feedback[k] = v
	}
	c.Retries = make(map[string]int, len(s.Retries))
	for k, v := range s.Retries {
		c.Retries[k] = v
	}
	return &c
}

func copyResults(in map[string]*models.WorkerResult) map[string]*models.WorkerResult {
	out := make(map[string]*models.WorkerResult, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
