package models

import "time"

// Message roles for conversation history.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// ChatMessage is one entry of a session's conversation history, both in
// short-term memory and in the chat_turns table.
type ChatMessage struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnRequest is the single inbound operation of the core.
type TurnRequest struct {
	UserEmail   string `json:"user_email"`
	SessionID   string `json:"session_id"`
	UserMessage string `json:"user_message"`
}

// TurnResponse is what a completed turn returns to the caller.
type TurnResponse struct {
	Response     string   `json:"response"`
	AgentsCalled []string `json:"agents_called"`
	SessionID    string   `json:"session_id"`
}

// TripPlanStepSummary is the compact trip-plan view carried in short-term
// memory for planner context.
type TripPlanStepSummary struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Segment   string `json:"segment,omitempty"`
	Title     string `json:"title"`
	EventTime string `json:"event_time,omitempty"`
	Status    string `json:"status"`
}
