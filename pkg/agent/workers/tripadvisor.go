package workers

import (
	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/config"
	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/models"
)

const tripadvisorPrompt = `You are the attractions-and-dining specialist of a travel assistant.
All your tools are read-only searches and detail lookups for attractions,
restaurants, and reviews. Pick the single tool that best answers the
user's question; prefer a location search before a detail lookup when you
only have a place name.`

// NewTripAdvisor builds the attractions/restaurants worker.
func NewTripAdvisor(cfg config.WorkerConfig, client llm.Client, tools ToolInvoker, rec *audit.Recorder) *Worker {
	return &Worker{
		name:   models.WorkerTripAdvisor,
		cfg:    cfg,
		prompt: tripadvisorPrompt,
		llm:    client,
		tools:  tools,
		rec:    rec,
	}
}
