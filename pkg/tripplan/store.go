package tripplan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voyagent/voyagent/pkg/models"
)

// Item statuses.
const (
	StatusNotBooked = "not_booked"
	StatusBooked    = "booked"
	StatusCancelled = "cancelled"
)

// Sentinel errors.
var (
	ErrItemNotFound  = errors.New("trip-plan item not found")
	ErrInvalidStatus = errors.New("invalid trip-plan status")
)

func validStatus(s string) bool {
	return s == StatusNotBooked || s == StatusBooked || s == StatusCancelled
}

// Item is one row of a user's trip plan for a session.
type Item struct {
	Email         string         `json:"email"`
	SessionID     string         `json:"session_id"`
	Title         string         `json:"title"`
	Details       map[string]any `json:"details"`
	Type          string         `json:"type"`
	Status        string         `json:"status"`
	NormalizedKey string         `json:"normalized_key"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Store persists trip-plan items in travel_plan_items.
type Store struct {
	db *sql.DB
}

// NewStore wraps a database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert inserts or refreshes an item. The conflict target is
// (email, session_id, normalized_key): re-adding the same content is a
// no-op on identity and only refreshes title/status/timestamps, so the
// same selection applied twice yields exactly one row.
func (s *Store) Upsert(ctx context.Context, item Item) (*Item, error) {
	if item.Status == "" {
		item.Status = StatusNotBooked
	}
	if !validStatus(item.Status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, item.Status)
	}
	if item.Details == nil {
		item.Details = map[string]any{}
	}
	item.NormalizedKey = NormalizedKey(item.Type, item.Details, item.Title)

	rawDetails, err := json.Marshal(item.Details)
	if err != nil {
		return nil, fmt.Errorf("encode details: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO travel_plan_items
			(email, session_id, title, details, type, status, normalized_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (email, session_id, normalized_key)
		DO UPDATE SET title = EXCLUDED.title,
		              status = EXCLUDED.status,
		              updated_at = EXCLUDED.updated_at`,
		item.Email, item.SessionID, item.Title, rawDetails, item.Type,
		item.Status, item.NormalizedKey, now)
	if err != nil {
		return nil, fmt.Errorf("upsert trip-plan item %q: %w", item.Title, err)
	}
	item.UpdatedAt = now
	return &item, nil
}

// List returns the session's plan ordered by creation time.
func (s *Store) List(ctx context.Context, email, sessionID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email, session_id, title, details, type, status, normalized_key, created_at, updated_at
		FROM travel_plan_items
		WHERE email = $1 AND session_id = $2
		ORDER BY created_at`,
		email, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list trip plan for %s/%s: %w", email, sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var items []Item
	for rows.Next() {
		var it Item
		var rawDetails []byte
		if err := rows.Scan(&it.Email, &it.SessionID, &it.Title, &rawDetails,
			&it.Type, &it.Status, &it.NormalizedKey, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan trip-plan row: %w", err)
		}
		if err := json.Unmarshal(rawDetails, &it.Details); err != nil {
			return nil, fmt.Errorf("decode details for %q: %w", it.Title, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateStatus transitions one item's status by normalized key.
func (s *Store) UpdateStatus(ctx context.Context, email, sessionID, normalizedKey, status string) error {
	if !validStatus(status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE travel_plan_items
		SET status = $4, updated_at = $5
		WHERE email = $1 AND session_id = $2 AND normalized_key = $3`,
		email, sessionID, normalizedKey, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update trip-plan status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Delete removes an item by normalized key.
func (s *Store) Delete(ctx context.Context, email, sessionID, normalizedKey string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM travel_plan_items
		WHERE email = $1 AND session_id = $2 AND normalized_key = $3`,
		email, sessionID, normalizedKey)
	if err != nil {
		return fmt.Errorf("delete trip-plan item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// DeleteByTitle removes an item addressed by its display title, the way
// users refer to items ("remove the Barcelona hotel").
func (s *Store) DeleteByTitle(ctx context.Context, email, sessionID, title string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM travel_plan_items
		WHERE email = $1 AND session_id = $2 AND lower(title) = lower($3)`,
		email, sessionID, title)
	if err != nil {
		return fmt.Errorf("delete trip-plan item %q: %w", title, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Backfill computes normalized keys for legacy rows written before the
// key existed. Safe to run at every startup; it only touches rows with an
// empty key.
func (s *Store) Backfill(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email, session_id, title, details, type
		FROM travel_plan_items
		WHERE normalized_key = ''`)
	if err != nil {
		return 0, fmt.Errorf("scan legacy trip-plan rows: %w", err)
	}

	type legacyRow struct {
		email, sessionID, title, itemType string
		details                           map[string]any
	}
	var legacy []legacyRow
	for rows.Next() {
		var r legacyRow
		var rawDetails []byte
		if err := rows.Scan(&r.email, &r.sessionID, &r.title, &rawDetails, &r.itemType); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan legacy trip-plan row: %w", err)
		}
		if err := json.Unmarshal(rawDetails, &r.details); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("decode legacy details for %q: %w", r.title, err)
		}
		legacy = append(legacy, r)
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}

	updated := 0
	for _, r := range legacy {
		key := NormalizedKey(r.itemType, r.details, r.title)
		_, err := s.db.ExecContext(ctx, `
			UPDATE travel_plan_items
			SET normalized_key = $4, updated_at = $5
			WHERE email = $1 AND session_id = $2 AND title = $3`,
			r.email, r.sessionID, r.title, key, time.Now().UTC())
		if err != nil {
			// A collision means the same content already exists under the
			// key; the legacy row is the duplicate.
			slog.Warn("Trip-plan backfill skipped row",
				"email", r.email, "session_id", r.sessionID, "title", r.title, "error", err)
			continue
		}
		updated++
	}
	if updated > 0 {
		slog.Info("Trip-plan normalized keys backfilled", "rows", updated)
	}
	return updated, nil
}

// Summaries renders the compact per-item view cached in short-term memory.
func Summaries(items []Item) []models.TripPlanStepSummary {
	out := make([]models.TripPlanStepSummary, 0, len(items))
	for _, it := range items {
		summary := models.TripPlanStepSummary{
			ID:     it.NormalizedKey,
			Type:   it.Type,
			Title:  it.Title,
			Status: it.Status,
		}
		if seg, ok := it.Details["segment"].(string); ok {
			summary.Segment = seg
		}
		if t, ok := it.Details["event_time"].(string); ok {
			summary.EventTime = t
		}
		out = append(out, summary)
	}
	return out
}
