package workers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/graph"
	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/models"
)

func TestConversationalDraftsFromCollectedData(t *testing.T) {
	mock := llm.NewMockClient().EnqueueText("F1 Air France, 2h05, 210 EUR.")

	s := graph.NewState("u@example.com", "s1", "flights to Rome")
	s.CollectedInfo[models.WorkerFlight] = &models.WorkerResult{
		Worker: models.WorkerFlight, Tool: "search_flights_oneway",
		Data: json.RawMessage(`{"outbound": [{"airline": "AF", "price": 210}]}`),
	}

	delta, err := NewConversational(mock, audit.NewDisabledRecorder()).Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Equal(t, "F1 Air France, 2h05, 210 EUR.", s.LastResponse)
	require.Len(t, mock.Calls, 1)
	assert.Contains(t, mock.Calls[0].Messages[1].Content, `"airline":"AF"`,
		"collected data reaches the prompt compacted")
	assert.Equal(t, llm.ToolChoiceNone, mock.Calls[0].ToolChoice)
}

func TestConversationalFallsBackToPreviousResults(t *testing.T) {
	mock := llm.NewMockClient().EnqueueText("The cheapest was easyJet at 150 EUR.")

	s := graph.NewState("u@example.com", "s1", "book the cheapest one")
	s.LastResults[models.WorkerFlight] = &models.WorkerResult{
		Worker: models.WorkerFlight, Tool: "search_flights_oneway",
		Data: json.RawMessage(`{"outbound": [{"airline": "U2", "price": 150}]}`),
	}

	_, err := NewConversational(mock, audit.NewDisabledRecorder()).Node(context.Background(), s)
	require.NoError(t, err)
	assert.Contains(t, mock.Calls[0].Messages[1].Content, "Previous results")
}

func TestConversationalAdvisoryPrepended(t *testing.T) {
	mock := llm.NewMockClient().EnqueueText("Here are your flights.")

	s := graph.NewState("u@example.com", "s1", "flights and fix my resume")
	s.Advisory = "I can only help with the travel part of your request."

	delta, err := NewConversational(mock, audit.NewDisabledRecorder()).Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Equal(t,
		"I can only help with the travel part of your request.\n\nHere are your flights.",
		s.LastResponse)
}

func TestConversationalModelFailureYieldsFallback(t *testing.T) {
	mock := llm.NewMockClient().EnqueueError(assert.AnError)

	s := graph.NewState("u@example.com", "s1", "flights to Rome")
	delta, err := NewConversational(mock, audit.NewDisabledRecorder()).Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.NotEmpty(t, s.LastResponse, "the user always gets something")
}

func TestConversationalErrorsRenderedAsText(t *testing.T) {
	mock := llm.NewMockClient().EnqueueText("The visa check failed, please retry later.")

	s := graph.NewState("u@example.com", "s1", "do I need a visa")
	s.CollectedInfo[models.WorkerVisa] = &models.WorkerResult{
		Worker: models.WorkerVisa,
		Err: models.NewErrorEnvelope(models.ErrCodeUpstream, "provider unavailable").
			WithSuggestion("try again in a few minutes"),
	}

	_, err := NewConversational(mock, audit.NewDisabledRecorder()).Node(context.Background(), s)
	require.NoError(t, err)

	prompt := mock.Calls[0].Messages[1].Content
	assert.Contains(t, prompt, "provider unavailable")
	assert.Contains(t, prompt, "try again in a few minutes")
}
