// Package audit provides the append-only JSON blob sink used for node
// enter/exit records, LLM call transcripts, tool interactions, and feedback
// failures. Writes are best-effort: a sink failure is logged, never fatal.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink receives append-only JSON blobs at date-partitioned paths.
type Sink interface {
	// Put stores blob at path. Implementations must be safe for
	// concurrent use.
	Put(path string, blob []byte) error
}

// DiskSink writes blobs under a local root directory. It is both the
// default sink and the fallback when a remote sink is unavailable.
type DiskSink struct {
	root string
}

// NewDiskSink creates a sink rooted at dir.
func NewDiskSink(dir string) *DiskSink { return &DiskSink{root: dir} }

func (s *DiskSink) Put(path string, blob []byte) error {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.WriteFile(full, blob, 0o644); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

// Recorder serializes audit records and routes them to the sink with the
// path scheme shared with the dashboards. A nil Recorder is a no-op, so
// call sites never nil-check.
type Recorder struct {
	mu       sync.Mutex
	sink     Sink
	fallback *DiskSink
	disabled bool
}

// NewRecorder builds a recorder over the given sink. fallbackDir is used
// when the primary sink errors; pass the same dir for a disk-only setup.
func NewRecorder(sink Sink, fallbackDir string) *Recorder {
	return &Recorder{sink: sink, fallback: NewDiskSink(fallbackDir)}
}

// NewDisabledRecorder returns a recorder that drops everything (tests).
func NewDisabledRecorder() *Recorder { return &Recorder{disabled: true} }

// put marshals v and writes it, falling back to local disk on failure.
func (r *Recorder) put(path string, v any) {
	if r == nil || r.disabled {
		return
	}
	blob, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Audit record not serializable", "path", path, "error", err)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sink.Put(path, blob); err != nil {
		slog.Warn("Audit sink write failed, falling back to disk", "path", path, "error", err)
		if r.fallback == nil {
			return
		}
		if err := r.fallback.Put(path, blob); err != nil {
			slog.Warn("Audit disk fallback failed", "path", path, "error", err)
		}
	}
}

func datePart(t time.Time) string { return t.UTC().Format("2006-01-02") }

func stamp(t time.Time) string {
	return fmt.Sprintf("%s_%s", t.UTC().Format("150405.000"), uuid.NewString()[:8])
}

// NodeEnter records a node's input snapshot.
func (r *Recorder) NodeEnter(node, sessionID string, snapshot any) {
	now := time.Now()
	r.put(
		fmt.Sprintf("agent/nodes/%s/%s/enter_%s.json", node, datePart(now), stamp(now)),
		map[string]any{"session_id": sessionID, "node": node, "at": now.UTC(), "state": snapshot},
	)
}

// NodeExit records a node's delta and latency.
func (r *Recorder) NodeExit(node, sessionID string, delta any, latency time.Duration, nodeErr string) {
	now := time.Now()
	r.put(
		fmt.Sprintf("agent/nodes/%s/%s/exit_%s.json", node, datePart(now), stamp(now)),
		map[string]any{
			"session_id": sessionID, "node": node, "at": now.UTC(),
			"delta": delta, "latency_ms": latency.Milliseconds(), "error": nodeErr,
		},
	)
}

// Interaction records a full turn transcript for a session.
func (r *Recorder) Interaction(sessionID string, record any) {
	now := time.Now()
	r.put(
		fmt.Sprintf("agent/interactions/%s/session_%s/%s.json", datePart(now), sessionID, stamp(now)),
		record,
	)
}

// FeedbackFailure records a validator that exhausted its retry budget.
func (r *Recorder) FeedbackFailure(validator, sessionID, message string) {
	now := time.Now()
	r.put(
		fmt.Sprintf("agent/feedback_failures/%s/%s.json", datePart(now), stamp(now)),
		map[string]any{
			"validator": validator, "session_id": sessionID,
			"message": message, "at": now.UTC(),
		},
	)
}

// LLMCall records one model invocation for a given agent.
func (r *Recorder) LLMCall(agentName, sessionID string, record any) {
	now := time.Now()
	r.put(
		fmt.Sprintf("agent/llm_calls/%s/%s/%s.json", agentName, datePart(now), stamp(now)),
		map[string]any{"session_id": sessionID, "at": now.UTC(), "call": record},
	)
}

// APICall records an outbound service call (tool registry, PII endpoint).
func (r *Recorder) APICall(service string, record any) {
	now := time.Now()
	r.put(
		fmt.Sprintf("api/%s/%s/%s.json", service, datePart(now), stamp(now)),
		record,
	)
}
