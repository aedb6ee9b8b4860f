// Package store defines persistence interfaces for the experiment platform
// and provides in-memory implementations. The orchestration core only
// depends on the interfaces; a database-backed implementation can be swapped
// in without touching it.
package store

import (
	"context"
	"errors"

	"github.com/team-llm/experiment-platform/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// SessionStore persists session entities.
type SessionStore interface {
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	UpdateSession(ctx context.Context, s *model.Session) error
	// ListByStatus returns sessions currently in any of the given statuses.
	ListByStatus(ctx context.Context, statuses ...model.SessionStatus) ([]*model.Session, error)
}

// ParticipantStore persists participant entities. Participants are never
// hard-deleted while a session is live; leaving sets LeftAt.
type ParticipantStore interface {
	AddParticipant(ctx context.Context, p *model.Participant) error
	GetParticipant(ctx context.Context, id string) (*model.Participant, error)
	MarkLeft(ctx context.Context, id string) error
	// Present returns not-left participants for a session in join order.
	Present(ctx context.Context, sessionID string) ([]*model.Participant, error)
	// PresentOfType returns not-left participants of one type, in join order.
	PresentOfType(ctx context.Context, sessionID string, t model.ParticipantType) ([]*model.Participant, error)
}

// MessageStore is an append-only message log. Append assigns the session's
// next sequence number; numbers are strictly increasing in persistence order
// and never reused.
type MessageStore interface {
	Append(ctx context.Context, m *model.Message) (uint64, error)
	// Recent returns the last n messages of a session in sequence order.
	Recent(ctx context.Context, sessionID string, n int) ([]model.Message, error)
	// All returns every message of a session in sequence order.
	All(ctx context.Context, sessionID string) ([]model.Message, error)
}

// ExperimentStore persists experiment definitions and their conditions.
type ExperimentStore interface {
	CreateExperiment(ctx context.Context, e *model.Experiment, conditions []*model.Condition) error
	GetExperiment(ctx context.Context, id string) (*model.Experiment, error)
	// ConditionByAccessCode resolves the condition a participant's access
	// code points at.
	ConditionByAccessCode(ctx context.Context, code string) (*model.Condition, error)
	// ConfigForCondition returns the experiment config a condition belongs to.
	ConfigForCondition(ctx context.Context, conditionID string) (*model.ExperimentConfig, error)
}
