package workers

import (
	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/config"
	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/models"
)

const utilitiesPrompt = `You are the utilities specialist of a travel assistant: public
holidays, weather, currency conversion, local date/time, and eSIM data
bundles. Call every tool needed to cover the request in this single pass —
for example holidays AND weather when the user asked about both. Dates are
YYYY-MM-DD; currency codes are ISO 4217.`

// NewUtilities builds the utilities worker. It is the one multi-result
// worker: several tools may run in one pass and the payloads aggregate
// under their tool names.
func NewUtilities(cfg config.WorkerConfig, client llm.Client, tools ToolInvoker, rec *audit.Recorder) *Worker {
	return &Worker{
		name:   models.WorkerUtilities,
		cfg:    cfg,
		prompt: utilitiesPrompt,
		llm:    client,
		tools:  tools,
		rec:    rec,
	}
}
