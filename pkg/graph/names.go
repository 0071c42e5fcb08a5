package graph

import "github.com/voyagent/voyagent/pkg/models"

// Canonical node names. Worker nodes are registered under their worker
// names; feedback nodes under FeedbackNode(worker).
const (
	NodePII              = "pii"
	NodeMemory           = "memory"
	NodeRFI              = "rfi"
	NodePlanner          = "planner"
	NodePlanFeedback     = "plan_feedback"
	NodeExecutor         = "plan_executor"
	NodeDispatcher       = "dispatcher"
	NodeJoin             = "join"
	NodeTripPlanner      = models.WorkerTripPlanner
	NodeResponder        = models.WorkerConversational
	NodeResponseFeedback = "response_feedback"
)

// FeedbackNode names the validator node paired with a worker.
func FeedbackNode(worker string) string { return worker + "_feedback" }
