package stm_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagent/voyagent/pkg/models"
	"github.com/voyagent/voyagent/pkg/stm"
	"github.com/voyagent/voyagent/test/util"
)

// joinSummarizer concatenates dropped texts so tests can assert on what
// was folded out of the window.
type joinSummarizer struct{ fail bool }

func (j *joinSummarizer) Summarize(_ context.Context, previous string, dropped []models.ChatMessage) (string, error) {
	if j.fail {
		return "", assert.AnError
	}
	parts := []string{previous}
	for _, m := range dropped {
		parts = append(parts, m.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " | ")), nil
}

func msg(role, text string, at time.Time) models.ChatMessage {
	return models.ChatMessage{Role: role, Text: text, Timestamp: at}
}

func TestStoreMissingSessionIsEmptyRecord(t *testing.T) {
	store := stm.NewStoreWithClient(util.StartRedis(t), 10, nil)

	rec, err := store.Get(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, "never-seen", rec.SessionID)
	assert.Empty(t, rec.LastMessages)
	assert.Empty(t, rec.Summary)
}

func TestStoreAppendKeepsChronologicalWindow(t *testing.T) {
	store := stm.NewStoreWithClient(util.StartRedis(t), 10, &joinSummarizer{})
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Deliver out of order; the window must come back sorted.
	require.NoError(t, store.Append(ctx, "s1", "u@example.com", msg(models.RoleAgent, "second", base.Add(time.Minute))))
	require.NoError(t, store.Append(ctx, "s1", "u@example.com", msg(models.RoleUser, "first", base)))

	rec, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rec.LastMessages, 2)
	assert.Equal(t, "first", rec.LastMessages[0].Text)
	assert.Equal(t, "second", rec.LastMessages[1].Text)
	assert.Equal(t, "u@example.com", rec.UserEmail)
}

func TestStoreOverflowFoldsIntoSummary(t *testing.T) {
	store := stm.NewStoreWithClient(util.StartRedis(t), 3, &joinSummarizer{})
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		m := msg(models.RoleUser, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Append(ctx, "s1", "u@example.com", m))
	}

	rec, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rec.LastMessages, 3, "window caps the retained messages")
	assert.Equal(t, "m2", rec.LastMessages[0].Text)
	assert.Contains(t, rec.Summary, "m0")
	assert.Contains(t, rec.Summary, "m1")
}

func TestStoreSummarizerFailureKeepsPreviousSummary(t *testing.T) {
	rdb := util.StartRedis(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	good := stm.NewStoreWithClient(rdb, 2, &joinSummarizer{})
	for i := 0; i < 3; i++ {
		m := msg(models.RoleUser, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, good.Append(ctx, "s1", "u@example.com", m))
	}
	rec, err := good.Get(ctx, "s1")
	require.NoError(t, err)
	previous := rec.Summary
	require.NotEmpty(t, previous)

	bad := stm.NewStoreWithClient(rdb, 2, &joinSummarizer{fail: true})
	require.NoError(t, bad.Append(ctx, "s1", "u@example.com", msg(models.RoleUser, "m3", base.Add(3*time.Minute))))

	rec, err = bad.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, previous, rec.Summary, "a broken summarizer never destroys the summary")
	assert.Len(t, rec.LastMessages, 2)
}

func TestStoreLastResultsRoundTrip(t *testing.T) {
	store := stm.NewStoreWithClient(util.StartRedis(t), 10, nil)
	ctx := context.Background()

	results := map[string]*models.WorkerResult{
		models.WorkerFlight: {
			Worker: models.WorkerFlight,
			Tool:   "search_flights_oneway",
			Data:   json.RawMessage(`{"outbound":[{"airline":"AF"}]}`),
		},
		models.WorkerHotel: nil, // nils are dropped
	}
	require.NoError(t, store.SetLastResults(ctx, "s1", results))

	rec, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rec.LastResults, 1)
	assert.Equal(t, "search_flights_oneway", rec.LastResults[models.WorkerFlight].Tool)
}

func TestStoreRFIContextStashAndClear(t *testing.T) {
	store := stm.NewStoreWithClient(util.StartRedis(t), 10, nil)
	ctx := context.Background()

	require.NoError(t, store.SetRFIContext(ctx, "s1", "flights to Tokyo, dates unknown"))
	rec, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "flights to Tokyo, dates unknown", rec.RFIContext)

	require.NoError(t, store.SetRFIContext(ctx, "s1", ""))
	rec, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, rec.RFIContext)
}

func TestStoreTripPlanSummary(t *testing.T) {
	store := stm.NewStoreWithClient(util.StartRedis(t), 10, nil)
	ctx := context.Background()

	steps := []models.TripPlanStepSummary{
		{ID: "1", Type: "flight", Title: "CDG to FCO", Status: "not_booked"},
	}
	require.NoError(t, store.SetTripPlanSummary(ctx, "s1", steps))

	rec, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rec.TripPlan.Steps, 1)
	assert.Equal(t, "CDG to FCO", rec.TripPlan.Steps[0].Title)
}

func TestStoreSessionsAreIsolated(t *testing.T) {
	store := stm.NewStoreWithClient(util.StartRedis(t), 10, nil)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", "a@example.com", msg(models.RoleUser, "hello from s1", time.Now())))
	rec, err := store.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, rec.LastMessages)
}
