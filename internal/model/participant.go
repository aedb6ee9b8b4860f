package model

import (
	"time"
)

// Knowledge maps a topic (restaurant, location, ...) to criterion/value pairs.
// Each AI participant holds a slice of the scenario's full information; the
// slices may overlap or be disjoint across agents.
type Knowledge map[string]map[string]string

// AIConfig carries the behavioral configuration for an AI participant.
type AIConfig struct {
	Persona   string         `json:"persona,omitempty"`
	Knowledge Knowledge      `json:"knowledge,omitempty"`
	Strategy  string         `json:"strategy,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Participant is a human or AI seat in a session. Participants are soft-deleted
// by setting LeftAt; once set, the participant is excluded from turn-taking
// and broadcasts.
type Participant struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      ParticipantType `json:"type"`
	Name      string          `json:"name"`
	AIModel   string          `json:"ai_model,omitempty"`
	AIConfig  *AIConfig       `json:"ai_config,omitempty"`
	JoinedAt  time.Time       `json:"joined_at"`
	LeftAt    *time.Time      `json:"left_at,omitempty"`
}

// Present reports whether the participant is still part of the session.
func (p *Participant) Present() bool {
	return p.LeftAt == nil
}
