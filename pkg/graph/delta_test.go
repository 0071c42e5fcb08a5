package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voyagent/voyagent/pkg/models"
)

func TestApplyPrefersNonNullRight(t *testing.T) {
	s := NewState("a@example.com", "s1", "hi")

	left := (&Delta{}).SetResult(models.WorkerFlight, &models.WorkerResult{Worker: models.WorkerFlight})
	right := (&Delta{}).SetResult(models.WorkerHotel, &models.WorkerResult{Worker: models.WorkerHotel})

	Apply(s, left)
	Apply(s, right)

	assert.True(t, s.HasResult(models.WorkerFlight), "left branch slot survives the merge")
	assert.True(t, s.HasResult(models.WorkerHotel), "right branch slot survives the merge")
}

func TestApplyLatestWriteWins(t *testing.T) {
	s := NewState("a@example.com", "s1", "hi")

	first := &Delta{LastResponse: ptr("draft one")}
	second := &Delta{LastResponse: ptr("draft two")}
	Apply(s, first)
	Apply(s, second)

	assert.Equal(t, "draft two", s.LastResponse)
}

func TestApplyUntouchedFieldsSurvive(t *testing.T) {
	s := NewState("a@example.com", "s1", "hi")
	s.LastResponse = "kept"
	s.RFIStatus = RFIComplete

	Apply(s, &Delta{Advisory: ptr("note")})

	assert.Equal(t, "kept", s.LastResponse)
	assert.Equal(t, RFIComplete, s.RFIStatus)
	assert.Equal(t, "note", s.Advisory)
}

func TestApplyClearResult(t *testing.T) {
	s := NewState("a@example.com", "s1", "hi")
	Apply(s, (&Delta{}).SetResult(models.WorkerFlight, &models.WorkerResult{Worker: models.WorkerFlight}))
	Apply(s, (&Delta{}).ClearResult(models.WorkerFlight))

	assert.False(t, s.HasResult(models.WorkerFlight))
}

func TestApplyCursorOnlyAdvances(t *testing.T) {
	s := NewState("a@example.com", "s1", "hi")
	s.CurrentStep = 3

	back := 1
	Apply(s, &Delta{CurrentStep: &back})
	assert.Equal(t, 3, s.CurrentStep, "cursor never moves backwards")

	forward := 4
	Apply(s, &Delta{CurrentStep: &forward})
	assert.Equal(t, 4, s.CurrentStep)
}

func TestApplyCountersMonotonic(t *testing.T) {
	s := NewState("a@example.com", "s1", "hi")

	Apply(s, &Delta{RetryIncrements: []string{CounterJoin}})
	Apply(s, &Delta{RetryIncrements: []string{CounterJoin}})
	assert.Equal(t, 2, s.Retry(CounterJoin))

	Apply(s, &Delta{RetryResets: []string{CounterJoin}})
	assert.Zero(t, s.Retry(CounterJoin))
}

func TestApplyFeedbackClearAndSet(t *testing.T) {
	s := NewState("a@example.com", "s1", "hi")

	Apply(s, &Delta{Feedback: map[string]string{models.WorkerFlight: "wrong airport"}})
	assert.Equal(t, "wrong airport", s.Feedback[models.WorkerFlight])

	Apply(s, &Delta{Feedback: map[string]string{models.WorkerFlight: ""}})
	_, ok := s.Feedback[models.WorkerFlight]
	assert.False(t, ok)
}

func TestApplyFinishedStepsAppendOnly(t *testing.T) {
	s := NewState("a@example.com", "s1", "hi")

	Apply(s, &Delta{FinishedSteps: []int{1}})
	Apply(s, &Delta{FinishedSteps: []int{2}})
	assert.Equal(t, []int{1, 2}, s.FinishedSteps)
}

func TestCloneIsolation(t *testing.T) {
	s := NewState("a@example.com", "s1", "hi")
	Apply(s, (&Delta{}).SetResult(models.WorkerVisa, &models.WorkerResult{Worker: models.WorkerVisa}))

	c := s.Clone()
	Apply(s, (&Delta{}).SetResult(models.WorkerHotel, &models.WorkerResult{Worker: models.WorkerHotel}))

	assert.False(t, c.HasResult(models.WorkerHotel), "clone must not observe later merges")
	assert.True(t, c.HasResult(models.WorkerVisa))
}
