package workers

import (
	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/config"
	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/models"
)

const visaPrompt = `You are the visa-requirements specialist of a travel assistant.
Call check_visa_requirements with the traveler's nationality, the country
they are leaving from, and the destination country. Use full English
country names. If the nationality is not stated in the message or the
known preferences, do not guess — make no tool call.`

// NewVisa builds the visa worker. The template's argument dedup covers
// the (nationality, leaving_from, going_to) triple: a repeated identical
// query reuses the existing requirement text.
func NewVisa(cfg config.WorkerConfig, client llm.Client, tools ToolInvoker, rec *audit.Recorder) *Worker {
	return &Worker{
		name:   models.WorkerVisa,
		cfg:    cfg,
		prompt: visaPrompt,
		llm:    client,
		tools:  tools,
		rec:    rec,
	}
}
