package store

import (
	"context"
	"sync"
	"time"

	"github.com/team-llm/experiment-platform/internal/model"
)

// MemorySessionStore keeps sessions in a mutex-guarded map. Suitable for a
// single-instance deployment; all state is lost on restart.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*model.Session)}
}

func (s *MemorySessionStore) CreateSession(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemorySessionStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemorySessionStore) UpdateSession(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return ErrNotFound
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemorySessionStore) ListByStatus(_ context.Context, statuses ...model.SessionStatus) ([]*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Session
	for _, sess := range s.sessions {
		for _, st := range statuses {
			if sess.Status == st {
				cp := *sess
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

// MemoryParticipantStore keeps participants in join order per session.
type MemoryParticipantStore struct {
	mu        sync.RWMutex
	byID      map[string]*model.Participant
	bySession map[string][]string
}

// NewMemoryParticipantStore creates an empty in-memory participant store.
func NewMemoryParticipantStore() *MemoryParticipantStore {
	return &MemoryParticipantStore{
		byID:      make(map[string]*model.Participant),
		bySession: make(map[string][]string),
	}
}

func (s *MemoryParticipantStore) AddParticipant(_ context.Context, p *model.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.byID[p.ID] = &cp
	s.bySession[p.SessionID] = append(s.bySession[p.SessionID], p.ID)
	return nil
}

func (s *MemoryParticipantStore) GetParticipant(_ context.Context, id string) (*model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryParticipantStore) MarkLeft(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if p.LeftAt == nil {
		now := time.Now().UTC()
		p.LeftAt = &now
	}
	return nil
}

func (s *MemoryParticipantStore) Present(_ context.Context, sessionID string) ([]*model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presentLocked(sessionID, ""), nil
}

func (s *MemoryParticipantStore) PresentOfType(_ context.Context, sessionID string, t model.ParticipantType) ([]*model.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presentLocked(sessionID, t), nil
}

func (s *MemoryParticipantStore) presentLocked(sessionID string, t model.ParticipantType) []*model.Participant {
	var out []*model.Participant
	for _, id := range s.bySession[sessionID] {
		p := s.byID[id]
		if p == nil || !p.Present() {
			continue
		}
		if t != "" && p.Type != t {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// MemoryMessageStore is an append-only per-session message log. It owns the
// per-session sequence counters; numbers start at 1 and never repeat.
type MemoryMessageStore struct {
	mu       sync.Mutex
	messages map[string][]model.Message
	seq      map[string]uint64
}

// NewMemoryMessageStore creates an empty in-memory message log.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		messages: make(map[string][]model.Message),
		seq:      make(map[string]uint64),
	}
}

// Append assigns the session's next sequence number, stamps it on the
// message, and persists it.
func (s *MemoryMessageStore) Append(_ context.Context, m *model.Message) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[m.SessionID]++
	m.SequenceNumber = s.seq[m.SessionID]
	s.messages[m.SessionID] = append(s.messages[m.SessionID], *m)
	return m.SequenceNumber, nil
}

func (s *MemoryMessageStore) Recent(_ context.Context, sessionID string, n int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[sessionID]
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryMessageStore) All(_ context.Context, sessionID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[sessionID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// MemoryExperimentStore keeps experiment definitions and access-code indexes.
type MemoryExperimentStore struct {
	mu          sync.RWMutex
	experiments map[string]*model.Experiment
	conditions  map[string]*model.Condition
	byCode      map[string]string
}

// NewMemoryExperimentStore creates an empty in-memory experiment store.
func NewMemoryExperimentStore() *MemoryExperimentStore {
	return &MemoryExperimentStore{
		experiments: make(map[string]*model.Experiment),
		conditions:  make(map[string]*model.Condition),
		byCode:      make(map[string]string),
	}
}

func (s *MemoryExperimentStore) CreateExperiment(_ context.Context, e *model.Experiment, conditions []*model.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.experiments[e.ID] = &cp
	for _, c := range conditions {
		ccp := *c
		s.conditions[c.ID] = &ccp
		s.byCode[c.AccessCode] = c.ID
	}
	return nil
}

func (s *MemoryExperimentStore) GetExperiment(_ context.Context, id string) (*model.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.experiments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryExperimentStore) ConditionByAccessCode(_ context.Context, code string) (*model.Condition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.conditions[id]
	return &cp, nil
}

func (s *MemoryExperimentStore) ConfigForCondition(_ context.Context, conditionID string) (*model.ExperimentConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conditions[conditionID]
	if !ok {
		return nil, ErrNotFound
	}
	e, ok := s.experiments[c.ExperimentID]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Config, nil
}
