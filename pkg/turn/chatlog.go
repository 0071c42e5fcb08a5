package turn

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voyagent/voyagent/pkg/models"
)

// chatLog persists every user and agent message durably; short-term
// memory only keeps the rolling window.
type chatLog struct {
	db *sql.DB
}

func (l *chatLog) record(ctx context.Context, userEmail, sessionID, role, message string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO chat_turns (id, user_email, session_id, role, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), userEmail, sessionID, role, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record chat turn: %w", err)
	}
	return nil
}

// History loads a session's full transcript oldest-first.
func (l *chatLog) History(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT role, message, created_at
		FROM chat_turns
		WHERE session_id = $1
		ORDER BY created_at
		LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.Role, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan chat turn: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
