package graph

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/metrics"
	"github.com/voyagent/voyagent/pkg/models"
)

// NodeFunc is the uniform node contract: read the state, return a delta.
// Nodes never mutate the state they receive.
type NodeFunc func(ctx context.Context, s *State) (*Delta, error)

// EdgeFunc decides the next node(s) after a node that did not set Route.
// Returning nil ends the traversal.
type EdgeFunc func(s *State) []string

// Wrap decorates a node with enter/exit audit records, latency and error
// metrics, and panic capture. A panicking node yields an internal-error
// delta instead of taking the request down; when the node owns a result
// slot the envelope lands there so downstream validators see it.
func Wrap(name string, slotOwner string, rec *audit.Recorder, fn NodeFunc) NodeFunc {
	return func(ctx context.Context, s *State) (delta *Delta, err error) {
		start := time.Now()
		rec.NodeEnter(name, s.SessionID, enterSnapshot(s))

		defer func() {
			if r := recover(); r != nil {
				slog.Error("Node panicked",
					"node", name, "session_id", s.SessionID,
					"panic", r, "stack", string(debug.Stack()))
				metrics.NodeErrors.WithLabelValues(name, "panic").Inc()
				envelope := models.Errorf(models.ErrCodeInternal, "node %s failed unexpectedly", name)
				d := &Delta{}
				if slotOwner != "" {
					d.SetResult(slotOwner, &models.WorkerResult{Worker: slotOwner, Err: envelope})
				}
				delta, err = d, nil
			}
			metrics.NodeDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
			rec.NodeExit(name, s.SessionID, exitSnapshot(delta), time.Since(start), errString(err))
		}()

		delta, err = fn(ctx, s)
		if err != nil {
			metrics.NodeErrors.WithLabelValues(name, "error").Inc()
		}
		return delta, err
	}
}

// enterSnapshot keeps audit blobs small: identity plus routing context,
// not the full result payloads.
func enterSnapshot(s *State) map[string]any {
	return map[string]any{
		"user_message": s.UserMessage,
		"current_step": s.CurrentStep,
		"route":        s.Route,
		"rfi_status":   s.RFIStatus,
		"retries":      s.Retries,
	}
}

func exitSnapshot(d *Delta) map[string]any {
	if d == nil {
		return nil
	}
	out := map[string]any{}
	if d.setRoute {
		out["route"] = d.Route
	}
	if d.LastResponse != nil {
		out["last_response_len"] = len(*d.LastResponse)
	}
	if len(d.Results) > 0 {
		workers := make([]string, 0, len(d.Results))
		for w := range d.Results {
			workers = append(workers, w)
		}
		out["result_slots"] = workers
	}
	if d.RFIStatus != nil {
		out["rfi_status"] = *d.RFIStatus
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%v", err)
}
