package workers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/config"
	"github.com/voyagent/voyagent/pkg/graph"
	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/models"
	"github.com/voyagent/voyagent/pkg/toolreg"
)

// fakeInvoker scripts the registry slice of a worker.
type fakeInvoker struct {
	specs    []toolreg.ToolSpec
	response json.RawMessage
	err      error
	invoked  []string
}

func (f *fakeInvoker) ListTools(context.Context) ([]toolreg.ToolSpec, error) {
	return f.specs, nil
}

func (f *fakeInvoker) Invoke(_ context.Context, tool string, _ map[string]any) (json.RawMessage, error) {
	f.invoked = append(f.invoked, tool)
	return f.response, f.err
}

func flightSpecs() []toolreg.ToolSpec {
	return []toolreg.ToolSpec{
		{Name: "search_flights_oneway", Description: "one-way flight search", InputSchema: json.RawMessage(`{"type":"object"}`)},
	}
}

func toolCompletion(tool, args string) *llm.Completion {
	return &llm.Completion{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: tool, Arguments: args}}}
}

func TestWorkerWritesHealthyResult(t *testing.T) {
	invoker := &fakeInvoker{
		specs:    flightSpecs(),
		response: json.RawMessage(`{"outbound":[{"airline":"AF","price":210}]}`),
	}
	mock := llm.NewMockClient().Enqueue(toolCompletion("search_flights_oneway",
		`{"origin":"CDG","destination":"FCO","departure_date":"2026-09-10"}`))

	w := NewFlight(config.WorkerConfig{Name: models.WorkerFlight}, mock, invoker, audit.NewDisabledRecorder())
	s := graph.NewState("u@example.com", "s1", "one-way Paris to Rome Sept 10")

	delta, err := w.Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	result := s.Result(models.WorkerFlight)
	require.NotNil(t, result)
	assert.True(t, result.OK())
	assert.Equal(t, "search_flights_oneway", result.Tool)
	assert.Equal(t, "CDG", result.Args["origin"])
	assert.JSONEq(t, string(invoker.response), string(result.Data))
}

func TestWorkerNoToolCallIsMissingParameters(t *testing.T) {
	invoker := &fakeInvoker{specs: flightSpecs()}
	mock := llm.NewMockClient().EnqueueText("Where are you flying from?")

	w := NewFlight(config.WorkerConfig{Name: models.WorkerFlight}, mock, invoker, audit.NewDisabledRecorder())
	s := graph.NewState("u@example.com", "s1", "I want to fly somewhere")

	delta, err := w.Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	result := s.Result(models.WorkerFlight)
	require.NotNil(t, result)
	require.True(t, result.Failed())
	assert.Equal(t, models.ErrCodeMissingParams, result.Err.ErrorCode)
	assert.NotEmpty(t, result.Err.Suggestion)
	assert.Empty(t, invoker.invoked, "no tool runs without parameters")
}

func TestWorkerEnvelopePayloadBecomesError(t *testing.T) {
	envelope, _ := json.Marshal(models.NewErrorEnvelope(models.ErrCodeValidation, "Invalid date format"))
	invoker := &fakeInvoker{specs: flightSpecs(), response: envelope}
	mock := llm.NewMockClient().Enqueue(toolCompletion("search_flights_oneway",
		`{"origin":"CDG","destination":"FCO","departure_date":"tomorrow"}`))

	w := NewFlight(config.WorkerConfig{Name: models.WorkerFlight}, mock, invoker, audit.NewDisabledRecorder())
	s := graph.NewState("u@example.com", "s1", "fly me to Rome tomorrow")

	delta, err := w.Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	result := s.Result(models.WorkerFlight)
	require.True(t, result.Failed())
	assert.Equal(t, models.ErrCodeValidation, result.Err.ErrorCode)
	assert.True(t, result.Retriable())
}

func TestWorkerReusesMatchingResult(t *testing.T) {
	invoker := &fakeInvoker{specs: flightSpecs(), response: json.RawMessage(`{"outbound":[]}`)}
	args := `{"origin":"cdg","destination":"FCO"}`
	mock := llm.NewMockClient().Enqueue(toolCompletion("search_flights_oneway", args))

	w := NewFlight(config.WorkerConfig{Name: models.WorkerFlight}, mock, invoker, audit.NewDisabledRecorder())
	s := graph.NewState("u@example.com", "s1", "same search again")
	s.Results[models.WorkerFlight] = &models.WorkerResult{
		Worker: models.WorkerFlight,
		Tool:   "search_flights_oneway",
		Args:   map[string]any{"origin": "CDG", "destination": "fco"},
		Data:   json.RawMessage(`{"outbound":[{"airline":"AF"}]}`),
	}

	delta, err := w.Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Empty(t, invoker.invoked, "identical normalized arguments skip the call")
	assert.JSONEq(t, `{"outbound":[{"airline":"AF"}]}`, string(s.Result(models.WorkerFlight).Data))
}

func TestWorkerRunManyKeysSubresultsByTool(t *testing.T) {
	invoker := &fakeInvoker{
		specs: []toolreg.ToolSpec{
			{Name: "get_weather", InputSchema: json.RawMessage(`{"type":"object"}`)},
			{Name: "get_public_holidays", InputSchema: json.RawMessage(`{"type":"object"}`)},
		},
		response: json.RawMessage(`{"ok":true}`),
	}
	mock := llm.NewMockClient().Enqueue(&llm.Completion{ToolCalls: []llm.ToolCall{
		{ID: "c1", Name: "get_weather", Arguments: `{"city":"Rome"}`},
		{ID: "c2", Name: "get_public_holidays", Arguments: `{"country":"IT"}`},
	}})

	w := NewUtilities(config.WorkerConfig{Name: models.WorkerUtilities, MultipleResults: true},
		mock, invoker, audit.NewDisabledRecorder())
	s := graph.NewState("u@example.com", "s1", "weather and holidays in Rome")

	delta, err := w.Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	result := s.Result(models.WorkerUtilities)
	require.NotNil(t, result)
	assert.True(t, result.MultipleResults)
	assert.Len(t, result.Subresults, 2)
	assert.Contains(t, result.Subresults, "get_weather")
	assert.Contains(t, result.Subresults, "get_public_holidays")
	assert.Equal(t, []string{"get_weather", "get_public_holidays"}, invoker.invoked)
}

func TestWorkerFeedbackReachesPrompt(t *testing.T) {
	invoker := &fakeInvoker{specs: flightSpecs(), response: json.RawMessage(`{"outbound":[]}`)}
	mock := llm.NewMockClient().Enqueue(toolCompletion("search_flights_oneway", `{"origin":"ORY"}`))

	w := NewFlight(config.WorkerConfig{Name: models.WorkerFlight}, mock, invoker, audit.NewDisabledRecorder())
	s := graph.NewState("u@example.com", "s1", "fly from Paris")
	s.Feedback[models.WorkerFlight] = "you searched from CDG but the user asked for Orly"

	_, err := w.Node(context.Background(), s)
	require.NoError(t, err)

	require.Len(t, mock.Calls, 1)
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "previous attempt was rejected")
	assert.Contains(t, mock.Calls[0].Messages[0].Content, "Orly")
}

func TestFilterMemories(t *testing.T) {
	memories := []string{
		"Prefers aisle seats on long flights",
		"Allergic to peanuts",
		"Books boutique hotels near the old town",
	}

	assert.Equal(t, memories, FilterMemories(memories, nil), "empty bucket admits everything")

	hotel := FilterMemories(memories, []string{"hotel", "accommodation"})
	assert.Equal(t, []string{"Books boutique hotels near the old town"}, hotel)

	flight := FilterMemories(memories, []string{"flight", "seat"})
	assert.Equal(t, []string{"Prefers aisle seats on long flights"}, flight)
}

func TestNormalizeFlightArgs(t *testing.T) {
	args := normalizeFlightArgs("search_flights_flexible", map[string]any{
		"flexibility_days": float64(30),
		"trip_type":        "round-trip",
	})
	assert.Equal(t, float64(7), args["flexibility_days"])
	assert.Equal(t, "roundtrip", args["trip_type"])

	args = normalizeFlightArgs("search_flights_oneway", map[string]any{"trip_type": "one_way"})
	assert.Equal(t, "oneway", args["trip_type"])
}

func TestHotelBookingIsIntercepted(t *testing.T) {
	invoker := &fakeInvoker{
		specs: []toolreg.ToolSpec{{Name: "book_hotel", InputSchema: json.RawMessage(`{"type":"object"}`)}},
	}
	mock := llm.NewMockClient().Enqueue(toolCompletion("book_hotel", `{"hotel_id":"ritz-paris"}`))

	w := NewHotel(config.WorkerConfig{Name: models.WorkerHotel}, mock, invoker, audit.NewDisabledRecorder())
	s := graph.NewState("u@example.com", "s1", "book the Ritz for me")

	delta, err := w.Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Empty(t, invoker.invoked, "bookings never execute from chat")

	result := s.Result(models.WorkerHotel)
	require.True(t, result.OK())
	var payload map[string]string
	require.NoError(t, json.Unmarshal(result.Data, &payload))
	assert.Contains(t, payload["booking_url"], "https://book.voyagent.app/hotel?hotel=ritz-paris")
}
