package models

// Worker names usable inside an execution plan. The trip-plan worker is
// deliberately absent — it is wired after the plan completes.
const (
	WorkerFlight         = "flight"
	WorkerHotel          = "hotel"
	WorkerVisa           = "visa"
	WorkerTripAdvisor    = "tripadvisor"
	WorkerUtilities      = "utilities"
	WorkerConversational = "conversational"
	WorkerTripPlanner    = "trip_planner"
)

// PlannableWorkers is the fixed set the planner may schedule.
var PlannableWorkers = []string{
	WorkerFlight, WorkerHotel, WorkerVisa, WorkerTripAdvisor, WorkerUtilities,
}

// Step is one entry of an execution plan: a set of workers that run in
// parallel, plus a human-readable description for tracing.
type Step struct {
	Number      int      `json:"step_number"`
	Agents      []string `json:"agents"`
	Description string   `json:"description,omitempty"`
}

// Plan is the ordered list of steps produced by the planner node.
// Step k+1 strictly happens-after step k.
type Plan []Step

// AgentsAt returns the worker names of step i, or nil when out of range.
func (p Plan) AgentsAt(i int) []string {
	if i < 0 || i >= len(p) {
		return nil
	}
	return p[i].Agents
}

// Workers returns the union of all workers named anywhere in the plan.
func (p Plan) Workers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, step := range p {
		for _, a := range step.Agents {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out
}

// Contains reports whether any step names the given worker.
func (p Plan) Contains(worker string) bool {
	for _, step := range p {
		for _, a := range step.Agents {
			if a == worker {
				return true
			}
		}
	}
	return false
}
