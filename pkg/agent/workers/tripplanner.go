package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/graph"
	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/metrics"
	"github.com/voyagent/voyagent/pkg/models"
	"github.com/voyagent/voyagent/pkg/tripplan"
)

const tripPlannerPrompt = `You manage the user's saved trip plan. Decide whether the message is a
selection intent against the previous results or the current plan:
- "add" when the user picks an option to keep ("option 2", "the cheapest
  one", "add that hotel"). Resolve the selection against the previous
  results and copy its concrete details.
- "update" when the user swaps or changes a saved item ("instead of X").
- "delete" when the user removes a saved item.
- "none" when the message carries no plan mutation.
Reply with JSON only:
{"action": "add"|"update"|"delete"|"none",
 "item": {"type": string, "title": string, "details": object},
 "target_title": string}`

// plannerVerdict is the model's decision on a plan mutation.
type plannerVerdict struct {
	Action string `json:"action"`
	Item   struct {
		Type    string         `json:"type"`
		Title   string         `json:"title"`
		Details map[string]any `json:"details"`
	} `json:"item"`
	TargetTitle string `json:"target_title"`
}

// TripPlanner applies add/update/delete mutations to the trip-plan store
// from the user's selection intent, resolving references through the
// previous results cached in short-term memory.
type TripPlanner struct {
	llm   llm.Client
	store *tripplan.Store
	rec   *audit.Recorder
}

// NewTripPlanner builds the trip-plan worker.
func NewTripPlanner(client llm.Client, store *tripplan.Store, rec *audit.Recorder) *TripPlanner {
	return &TripPlanner{llm: client, store: store, rec: rec}
}

// Node inspects the message for selection intent and mutates the plan.
// A turn with no intent is a no-op; mutation failures degrade to an
// advisory result so the responder can apologize specifically.
func (p *TripPlanner) Node(ctx context.Context, s *graph.State) (*graph.Delta, error) {
	delta := &graph.Delta{}

	verdict, err := p.classify(ctx, s)
	if err != nil {
		slog.Warn("Trip-plan intent classification failed", "session_id", s.SessionID, "error", err)
		return delta, nil
	}
	if verdict.Action == "" || verdict.Action == "none" {
		return delta, nil
	}
	delta.AgentsCalled = []string{models.WorkerTripPlanner}

	result := p.apply(ctx, s, verdict)
	delta.SetResult(models.WorkerTripPlanner, result)

	// Refresh the compact plan view so the responder and the next turn's
	// STM both see the mutation.
	items, err := p.store.List(ctx, s.UserEmail, s.SessionID)
	if err != nil {
		slog.Warn("Trip-plan reload failed", "session_id", s.SessionID, "error", err)
		return delta, nil
	}
	delta.SetTripPlanSummary(tripplan.Summaries(items))
	return delta, nil
}

func (p *TripPlanner) classify(ctx context.Context, s *graph.State) (*plannerVerdict, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "User message:\n%s\n", s.UserMessage)
	if len(s.LastResults) > 0 {
		b.WriteString("\nPrevious results:\n")
		for worker, r := range s.LastResults {
			writeResult(&b, worker, r)
		}
	}
	if len(s.TripPlanSummary) > 0 {
		b.WriteString("\nCurrent plan:\n")
		for _, step := range s.TripPlanSummary {
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", step.Type, step.Title, step.Status)
		}
	}

	completion, err := p.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: tripPlannerPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
		JSONResponse: true,
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.LLMCalls.WithLabelValues(models.WorkerTripPlanner, outcome).Inc()
	if err != nil {
		return nil, fmt.Errorf("classify plan intent: %w", err)
	}

	var verdict plannerVerdict
	if err := json.Unmarshal([]byte(completion.Content), &verdict); err != nil {
		return nil, fmt.Errorf("parse plan intent: %w", err)
	}
	return &verdict, nil
}

func (p *TripPlanner) apply(ctx context.Context, s *graph.State, v *plannerVerdict) *models.WorkerResult {
	result := &models.WorkerResult{Worker: models.WorkerTripPlanner}
	var err error
	switch v.Action {
	case "add", "update":
		if v.Action == "update" && v.TargetTitle != "" && !strings.EqualFold(v.TargetTitle, v.Item.Title) {
			if delErr := p.store.DeleteByTitle(ctx, s.UserEmail, s.SessionID, v.TargetTitle); delErr != nil {
				slog.Debug("Trip-plan update target missing", "title", v.TargetTitle, "error", delErr)
			}
		}
		_, err = p.store.Upsert(ctx, tripplan.Item{
			Email:     s.UserEmail,
			SessionID: s.SessionID,
			Title:     v.Item.Title,
			Type:      v.Item.Type,
			Details:   v.Item.Details,
		})
		if err == nil {
			result.Data, _ = json.Marshal(map[string]string{
				"action": v.Action, "title": v.Item.Title,
			})
		}
	case "delete":
		target := v.TargetTitle
		if target == "" {
			target = v.Item.Title
		}
		err = p.store.DeleteByTitle(ctx, s.UserEmail, s.SessionID, target)
		if err == nil {
			result.Data, _ = json.Marshal(map[string]string{
				"action": "delete", "title": target,
			})
		}
	}
	if err != nil {
		result.Err = models.Errorf(models.ErrCodeInternal, "trip plan %s failed: %v", v.Action, err)
	}
	p.rec.APICall("trip_plan", map[string]any{
		"session_id": s.SessionID, "action": v.Action,
		"title": v.Item.Title, "error": errString(err),
	})
	return result
}
