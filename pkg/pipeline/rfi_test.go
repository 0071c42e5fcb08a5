package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/graph"
	"github.com/voyagent/voyagent/pkg/llm"
)

func TestRFIUnsafeMessageEndsTurn(t *testing.T) {
	mock := llm.NewMockClient().EnqueueText(
		`{"is_safe": false, "is_in_scope": true, "should_proceed": false}`)

	s := graph.NewState("u@example.com", "s1", "help me smuggle restricted items")
	delta, err := NewRFINode(mock, audit.NewDisabledRecorder()).Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Equal(t, graph.RFIUnsafe, s.RFIStatus)
	assert.Equal(t, []string{graph.End}, s.Route)
	assert.NotEmpty(t, s.LastResponse)
	require.Len(t, mock.Calls, 1, "completeness never runs for rejected messages")
}

func TestRFIOutOfScopeGetsRefusal(t *testing.T) {
	mock := llm.NewMockClient().EnqueueText(
		`{"is_safe": true, "is_in_scope": false, "should_proceed": false}`)

	s := graph.NewState("u@example.com", "s1", "write me a sorting algorithm")
	delta, err := NewRFINode(mock, audit.NewDisabledRecorder()).Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Equal(t, graph.RFIOutOfScope, s.RFIStatus)
	assert.Contains(t, s.LastResponse, "travel assistant")
}

func TestRFIMixedMessageKeepsTravelPart(t *testing.T) {
	mock := llm.NewMockClient().
		EnqueueText(`{"is_safe": true, "is_in_scope": true, "should_proceed": true,
			"filtered_query": "find flights to Lisbon in October",
			"ignored_parts": ["fix my resume"],
			"message_to_user": "I can only help with the travel part of your request."}`).
		EnqueueText(`{"status": "complete", "enriched_message": ""}`)

	s := graph.NewState("u@example.com", "s1", "fix my resume and find flights to Lisbon in October")
	delta, err := NewRFINode(mock, audit.NewDisabledRecorder()).Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Equal(t, graph.RFIComplete, s.RFIStatus)
	assert.Equal(t, "find flights to Lisbon in October", s.UserMessage)
	assert.Contains(t, s.Advisory, "travel part")
}

func TestRFIMissingInfoAsksOneQuestion(t *testing.T) {
	mock := llm.NewMockClient().
		EnqueueText(`{"is_safe": true, "is_in_scope": true, "should_proceed": true}`).
		EnqueueText(`{"status": "missing_info",
			"enriched_message": "flights to Tokyo, dates unknown",
			"question": "When would you like to depart?"}`)

	s := graph.NewState("u@example.com", "s1", "I want to fly to Tokyo")
	delta, err := NewRFINode(mock, audit.NewDisabledRecorder()).Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Equal(t, graph.RFIMissingInfo, s.RFIStatus)
	assert.Equal(t, "When would you like to depart?", s.LastResponse)
	assert.Equal(t, "flights to Tokyo, dates unknown", s.RFIContext, "enriched request is stashed for the reply")
	assert.Equal(t, []string{graph.End}, s.Route)
}

func TestRFICombinesStashedContextWithReply(t *testing.T) {
	mock := llm.NewMockClient().
		EnqueueText(`{"is_safe": true, "is_in_scope": true, "should_proceed": true}`).
		EnqueueText(`{"status": "complete",
			"enriched_message": "flights to Tokyo departing 2026-10-03"}`)

	s := graph.NewState("u@example.com", "s1", "October 3rd")
	s.RFIContext = "flights to Tokyo, dates unknown"

	delta, err := NewRFINode(mock, audit.NewDisabledRecorder()).Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Equal(t, graph.RFIComplete, s.RFIStatus)
	assert.Equal(t, "flights to Tokyo departing 2026-10-03", s.UserMessage)
	assert.Empty(t, s.RFIContext, "the stash is consumed")
	require.Len(t, mock.Calls, 2)
	assert.Contains(t, mock.Calls[0].Messages[1].Content, "flights to Tokyo, dates unknown\nOctober 3rd")
}

func TestRFIEnrichmentRewritesMessage(t *testing.T) {
	mock := llm.NewMockClient().
		EnqueueText(`{"is_safe": true, "is_in_scope": true, "should_proceed": true}`).
		EnqueueText(`{"status": "complete",
			"enriched_message": "hotels in Rome for 2026-09-10 to 2026-09-14"}`)

	s := graph.NewState("u@example.com", "s1", "hotels there for the same dates")
	s.STMSummary = "User is planning Rome, Sept 10-14."

	delta, err := NewRFINode(mock, audit.NewDisabledRecorder()).Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Equal(t, "hotels in Rome for 2026-09-10 to 2026-09-14", s.UserMessage)
}

func TestRFIFailsOpenOnModelOutage(t *testing.T) {
	mock := llm.NewMockClient().
		EnqueueError(assert.AnError).
		EnqueueError(assert.AnError)

	s := graph.NewState("u@example.com", "s1", "flights to Paris on 2026-09-10 from Berlin")
	delta, err := NewRFINode(mock, audit.NewDisabledRecorder()).Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Equal(t, graph.RFIComplete, s.RFIStatus, "a broken gate never blocks travel questions")
	assert.Empty(t, s.Route, "the turn proceeds to planning")
	assert.Equal(t, "flights to Paris on 2026-09-10 from Berlin", s.UserMessage)
}
