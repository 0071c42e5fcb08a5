package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/models"
)

func TestWrapPassesDeltaThrough(t *testing.T) {
	node := Wrap("planner", "", audit.NewDisabledRecorder(),
		func(context.Context, *State) (*Delta, error) {
			return (&Delta{}).SetRoute("flight"), nil
		})

	delta, err := node(context.Background(), NewState("u@example.com", "s1", "hi"))
	require.NoError(t, err)
	assert.Equal(t, []string{"flight"}, delta.Route)
}

func TestWrapPassesErrorThrough(t *testing.T) {
	node := Wrap("planner", "", audit.NewDisabledRecorder(),
		func(context.Context, *State) (*Delta, error) {
			return nil, errors.New("provider down")
		})

	_, err := node(context.Background(), NewState("u@example.com", "s1", "hi"))
	assert.EqualError(t, err, "provider down")
}

func TestWrapPanicBecomesResultEnvelope(t *testing.T) {
	node := Wrap("flight", models.WorkerFlight, audit.NewDisabledRecorder(),
		func(context.Context, *State) (*Delta, error) {
			panic("nil map write")
		})

	delta, err := node(context.Background(), NewState("u@example.com", "s1", "flights to Rome"))
	require.NoError(t, err, "a panic never surfaces as a Go error")
	require.NotNil(t, delta)

	r := delta.Results[models.WorkerFlight]
	require.NotNil(t, r)
	require.True(t, r.Failed())
	assert.Equal(t, models.ErrCodeInternal, r.Err.ErrorCode)
	assert.Contains(t, r.Err.ErrorMessage, "flight")
}

func TestWrapPanicWithoutSlotOwner(t *testing.T) {
	node := Wrap("responder", "", audit.NewDisabledRecorder(),
		func(context.Context, *State) (*Delta, error) {
			panic("boom")
		})

	delta, err := node(context.Background(), NewState("u@example.com", "s1", "hi"))
	require.NoError(t, err)
	require.NotNil(t, delta)
	assert.Empty(t, delta.Results)
}
