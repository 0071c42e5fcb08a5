package workers

import (
	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/config"
	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/models"
)

const flightPrompt = `You are the flight-search specialist of a travel assistant.
Pick exactly one search tool matching the user's trip:
- one-way when only a departure date is given
- round-trip when both departure and return dates are given
- flexible when the user allows shifting dates (at most 7 days either way)
Use IATA airport or city codes when the user named a city. trip_type values
are exactly "oneway", "roundtrip", or "flexible". Dates are YYYY-MM-DD.`

// maxFlexibilityDays bounds flexible searches to ±7 days.
const maxFlexibilityDays = 7

// NewFlight builds the flight worker. Validation errors from the search
// tools come back as retriable envelopes so feedback can correct the
// parameters and re-run.
func NewFlight(cfg config.WorkerConfig, client llm.Client, tools ToolInvoker, rec *audit.Recorder) *Worker {
	return &Worker{
		name:          models.WorkerFlight,
		cfg:           cfg,
		prompt:        flightPrompt,
		llm:           client,
		tools:         tools,
		rec:           rec,
		normalizeArgs: normalizeFlightArgs,
	}
}

// normalizeFlightArgs clamps flexibility and fixes the common trip_type
// misspellings the model produces.
func normalizeFlightArgs(_ string, args map[string]any) map[string]any {
	if days, ok := args["flexibility_days"].(float64); ok && days > maxFlexibilityDays {
		args["flexibility_days"] = float64(maxFlexibilityDays)
	}
	if tt, ok := args["trip_type"].(string); ok {
		switch tt {
		case "one-way", "one_way", "single":
			args["trip_type"] = "oneway"
		case "round-trip", "round_trip", "round", "return":
			args["trip_type"] = "roundtrip"
		}
	}
	return args
}
