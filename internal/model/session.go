package model

import (
	"time"
)

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionWaiting   SessionStatus = "WAITING"
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCancelled SessionStatus = "CANCELLED"
	SessionTimeout   SessionStatus = "TIMEOUT"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionCancelled, SessionTimeout:
		return true
	}
	return false
}

// Session is one bounded chat interaction between a team of human/AI
// participants under one experimental condition. Status moves monotonically
// WAITING -> ACTIVE -> {COMPLETED|CANCELLED|TIMEOUT}; WAITING may also move
// straight to CANCELLED or TIMEOUT.
type Session struct {
	ID             string        `json:"id"`
	ConditionID    string        `json:"condition_id"`
	TeamSize       int           `json:"team_size"`
	RequiredHumans int           `json:"required_humans"`
	Status         SessionStatus `json:"status"`
	CompletionCode string        `json:"completion_code"`
	CreatedAt      time.Time     `json:"created_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}
