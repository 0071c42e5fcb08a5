// Package stm implements per-session short-term memory: a rolling window of
// recent messages, an LLM-generated summary of everything older, a cache of
// the last worker results, and a compact trip-plan view. Backed by Redis
// under key STM:<session_id>.
package stm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voyagent/voyagent/pkg/config"
	"github.com/voyagent/voyagent/pkg/models"
)

// keyPrefix namespaces STM documents in Redis.
const keyPrefix = "STM:"

// Record is the full short-term memory document for one session.
type Record struct {
	SessionID    string                             `json:"session_id"`
	UserEmail    string                             `json:"user_email"`
	LastMessages []models.ChatMessage               `json:"last_messages"`
	Summary      string                             `json:"summary,omitempty"`
	LastResults  map[string]*models.WorkerResult    `json:"last_results,omitempty"`
	TripPlan     struct {
		Steps []models.TripPlanStepSummary `json:"steps"`
	} `json:"trip_plan_summary"`
	// RFIContext carries the enriched request across a clarifying-question
	// turn: set when the assistant asked for missing info, combined with
	// the user's next reply, then cleared.
	RFIContext string    `json:"rfi_context,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Summarizer folds dropped messages into the rolling summary (3-4 lines).
// Implementations call the LLM; failures leave the previous summary intact.
type Summarizer interface {
	Summarize(ctx context.Context, previous string, dropped []models.ChatMessage) (string, error)
}

// Store provides short-term memory operations. Writes for one session are
// serialized by a per-session in-process lock; sessions are independent.
type Store struct {
	rdb        *redis.Client
	window     int
	summarizer Summarizer

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore creates a store over the given Redis instance.
func NewStore(cfg config.RedisConfig, window int, summarizer Summarizer) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		window:     window,
		summarizer: summarizer,
		locks:      make(map[string]*sync.Mutex),
	}
}

// NewStoreWithClient wires an existing Redis client (tests use miniature
// or mock servers through this).
func NewStoreWithClient(rdb *redis.Client, window int, summarizer Summarizer) *Store {
	return &Store{rdb: rdb, window: window, summarizer: summarizer, locks: make(map[string]*sync.Mutex)}
}

// Close releases the Redis connection.
func (s *Store) Close() error { return s.rdb.Close() }

// HealthCheck pings Redis with a short deadline.
func (s *Store) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(pingCtx).Err()
}

// sessionLock returns the mutex serializing writes for a session.
func (s *Store) sessionLock(sessionID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[sessionID] = mu
	}
	return mu
}

// Get loads the record for a session. A missing key returns an empty
// record, never an error.
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &Record{SessionID: sessionID}, nil
		}
		return nil, fmt.Errorf("stm get %s: %w", sessionID, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("stm decode %s: %w", sessionID, err)
	}
	return &rec, nil
}

func (s *Store) put(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("stm encode %s: %w", rec.SessionID, err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+rec.SessionID, raw, 0).Err(); err != nil {
		return fmt.Errorf("stm set %s: %w", rec.SessionID, err)
	}
	return nil
}

// Append adds a message to the session window:
//  1. Append and sort by timestamp
//  2. When the window overflows, fold the oldest messages into the
//     summary via the Summarizer and retain only the last `window`
func (s *Store) Append(ctx context.Context, sessionID, userEmail string, msg models.ChatMessage) error {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	rec.UserEmail = userEmail

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	rec.LastMessages = append(rec.LastMessages, msg)
	sort.SliceStable(rec.LastMessages, func(i, j int) bool {
		return rec.LastMessages[i].Timestamp.Before(rec.LastMessages[j].Timestamp)
	})

	if len(rec.LastMessages) > s.window {
		cut := len(rec.LastMessages) - s.window
		dropped := rec.LastMessages[:cut]
		rec.LastMessages = append([]models.ChatMessage(nil), rec.LastMessages[cut:]...)

		if s.summarizer != nil {
			summary, sumErr := s.summarizer.Summarize(ctx, rec.Summary, dropped)
			if sumErr != nil {
				// Keep the previous summary; dropped messages are still in
				// chat_turns for offline recovery.
				slog.Warn("STM summarization failed, keeping previous summary",
					"session_id", sessionID, "error", sumErr)
			} else if summary != "" {
				rec.Summary = summary
			}
		}
	}

	return s.put(ctx, rec)
}

// SetLastResults replaces the cached worker results for back-references
// like "the cheapest one". Only non-nil results are stored.
func (s *Store) SetLastResults(ctx context.Context, sessionID string, results map[string]*models.WorkerResult) error {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	filtered := make(map[string]*models.WorkerResult, len(results))
	for worker, r := range results {
		if r != nil {
			filtered[worker] = r
		}
	}
	if len(filtered) > 0 {
		rec.LastResults = filtered
	}
	return s.put(ctx, rec)
}

// SetRFIContext stashes (or clears, with "") the pending enriched request
// awaiting the user's answer to a clarifying question.
func (s *Store) SetRFIContext(ctx context.Context, sessionID, rfiContext string) error {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	rec.RFIContext = rfiContext
	return s.put(ctx, rec)
}

// SetTripPlanSummary replaces the compact trip-plan view.
func (s *Store) SetTripPlanSummary(ctx context.Context, sessionID string, steps []models.TripPlanStepSummary) error {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	rec.TripPlan.Steps = steps
	return s.put(ctx, rec)
}
