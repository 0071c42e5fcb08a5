package plan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/graph"
	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/models"
)

func TestSanitizeDropsUnknownAgents(t *testing.T) {
	plan := sanitize([]models.Step{
		{Number: 1, Agents: []string{"flight", "teleport", "hotel"}},
	}, "flights and hotels to Paris")

	require.Len(t, plan, 1)
	assert.Equal(t, []string{"flight", "hotel"}, plan[0].Agents)
}

func TestSanitizeStripsTripAdvisorWithoutKeyword(t *testing.T) {
	plan := sanitize([]models.Step{
		{Number: 1, Agents: []string{"flight", "tripadvisor"}},
	}, "find me flights to Rome")

	require.Len(t, plan, 1)
	assert.Equal(t, []string{"flight"}, plan[0].Agents)
}

func TestSanitizeKeepsTripAdvisorForAttractions(t *testing.T) {
	plan := sanitize([]models.Step{
		{Number: 1, Agents: []string{"tripadvisor"}},
	}, "best attractions in Rome")

	require.Len(t, plan, 1)
	assert.Equal(t, []string{"tripadvisor"}, plan[0].Agents)
}

func TestSanitizeRenumbersAfterEmptySteps(t *testing.T) {
	plan := sanitize([]models.Step{
		{Number: 1, Agents: []string{"teleport"}},
		{Number: 2, Agents: []string{"utilities"}},
		{Number: 3, Agents: []string{"flight", "hotel"}},
	}, "flights hotels and holidays")

	require.Len(t, plan, 2)
	assert.Equal(t, 1, plan[0].Number)
	assert.Equal(t, 2, plan[1].Number)
}

func TestPlannerEmptyPlanSetsReady(t *testing.T) {
	mock := llm.NewMockClient().EnqueueText(`{"steps": []}`)
	p := NewPlanner(mock, audit.NewDisabledRecorder())

	s := graph.NewState("u@example.com", "s1", "thanks, that's all")
	delta, err := p.Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Empty(t, s.Plan)
	assert.True(t, s.ReadyForResponse)
}

func TestPlannerModelFailureDegradesToEmptyPlan(t *testing.T) {
	mock := llm.NewMockClient().EnqueueError(assert.AnError)
	p := NewPlanner(mock, audit.NewDisabledRecorder())

	s := graph.NewState("u@example.com", "s1", "flights to Paris")
	delta, err := p.Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)
	assert.Empty(t, s.Plan)
}

func TestExecutorLaunchesNextStep(t *testing.T) {
	s := graph.NewState("u@example.com", "s1", "hi")
	s.Plan = models.Plan{
		{Number: 1, Agents: []string{"flight", "hotel"}},
		{Number: 2, Agents: []string{"utilities"}},
	}

	delta, err := NewExecutor().Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Equal(t, 1, s.CurrentStep)
	assert.Equal(t, []string{"flight", "hotel"}, s.PendingNodes)
	assert.Equal(t, []string{graph.NodeDispatcher}, s.Route)
}

func TestExecutorExhaustedSignalsReady(t *testing.T) {
	s := graph.NewState("u@example.com", "s1", "hi")
	s.Plan = models.Plan{{Number: 1, Agents: []string{"flight"}}}
	s.CurrentStep = 1

	delta, err := NewExecutor().Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.True(t, s.ReadyForResponse)
	assert.Equal(t, []string{graph.NodeJoin}, s.Route)
}

func TestDispatcherFansOut(t *testing.T) {
	s := graph.NewState("u@example.com", "s1", "hi")
	s.PendingNodes = []string{"flight", "hotel"}

	delta, err := NewDispatcher().Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.True(t, s.ParallelMode)
	assert.Equal(t, []string{"flight", "hotel"}, s.Route)
}

func TestJoinCompleteStepAdvances(t *testing.T) {
	s := graph.NewState("u@example.com", "s1", "hi")
	s.Plan = models.Plan{{Number: 1, Agents: []string{"flight", "hotel"}}}
	s.CurrentStep = 1
	s.PendingNodes = []string{"flight", "hotel"}
	s.ParallelMode = true
	s.Results["flight"] = &models.WorkerResult{Worker: "flight"}
	s.Results["hotel"] = &models.WorkerResult{Worker: "hotel"}

	delta, err := NewJoin(20, time.Millisecond).Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Equal(t, []int{1}, s.FinishedSteps)
	assert.Empty(t, s.PendingNodes)
	assert.False(t, s.ParallelMode)
	assert.Equal(t, []string{graph.FeedbackNode("flight")}, s.Route)
}

func TestJoinPollsWhileIncomplete(t *testing.T) {
	s := graph.NewState("u@example.com", "s1", "hi")
	s.Plan = models.Plan{{Number: 1, Agents: []string{"flight"}}}
	s.CurrentStep = 1
	s.PendingNodes = []string{"flight"}

	delta, err := NewJoin(20, time.Millisecond).Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Equal(t, []string{graph.NodeJoin}, s.Route, "incomplete step re-polls")
	assert.Equal(t, 1, s.Retry(graph.CounterJoin))
}

func TestJoinTimeoutSynthesizesEnvelopes(t *testing.T) {
	s := graph.NewState("u@example.com", "s1", "hi")
	s.Plan = models.Plan{{Number: 1, Agents: []string{"flight", "hotel"}}}
	s.CurrentStep = 1
	s.PendingNodes = []string{"flight", "hotel"}
	s.Results["hotel"] = &models.WorkerResult{Worker: "hotel"}
	s.Retries[graph.CounterJoin] = 20 // budget already spent

	delta, err := NewJoin(20, time.Millisecond).Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	require.True(t, s.HasResult("flight"))
	assert.True(t, s.Result("flight").Failed())
	assert.Equal(t, models.ErrCodeIncomplete, s.Result("flight").Err.ErrorCode)
	assert.Contains(t, s.Result("flight").Err.ErrorMessage, "flight did not complete")
	assert.Equal(t, []int{1}, s.FinishedSteps, "partial step still finishes")
}

func TestJoinReadyRoutesToTripPlanner(t *testing.T) {
	s := graph.NewState("u@example.com", "s1", "hi")
	s.ReadyForResponse = true

	delta, err := NewJoin(20, time.Millisecond).Node(context.Background(), s)
	require.NoError(t, err)
	graph.Apply(s, delta)

	assert.Equal(t, []string{graph.NodeTripPlanner}, s.Route)
}
