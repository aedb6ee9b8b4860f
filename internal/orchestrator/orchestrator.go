// Package orchestrator owns session lifecycle and AI turn-taking. Every
// lifecycle transition and message append for one session goes through its
// per-session lock, so ordering and terminal-state invariants hold even with
// concurrent WebSocket traffic.
package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/team-llm/experiment-platform/internal/agent"
	"github.com/team-llm/experiment-platform/internal/model"
	"github.com/team-llm/experiment-platform/internal/registry"
	"github.com/team-llm/experiment-platform/internal/store"
	"github.com/team-llm/experiment-platform/pkg/logger"
	"github.com/team-llm/experiment-platform/pkg/metrics"

	"go.uber.org/zap"
)

// historyWindow is the number of trailing messages agents see per turn.
const historyWindow = 20

// systemParticipantID marks platform-authored messages.
const systemParticipantID = "system"

// Recorder journals messages and events for research analysis. Implementations
// must never block the hot path; failures are the recorder's problem.
type Recorder interface {
	RecordMessage(m *model.Message)
	RecordEvent(sessionID string, eventType model.EventType, payload any)
}

type nopRecorder struct{}

func (nopRecorder) RecordMessage(*model.Message)             {}
func (nopRecorder) RecordEvent(string, model.EventType, any) {}

// NopRecorder returns a recorder that drops everything. Used when NATS is
// disabled.
func NopRecorder() Recorder { return nopRecorder{} }

// Options tunes orchestration behavior.
type Options struct {
	// AITurnPacing is the minimum gap between consecutive AI messages in one
	// turn-taking pass.
	AITurnPacing time.Duration

	// SessionTimeout bounds sessions whose scenario declares no duration.
	SessionTimeout time.Duration
}

// Stores bundles the persistence dependencies.
type Stores struct {
	Sessions     store.SessionStore
	Participants store.ParticipantStore
	Messages     store.MessageStore
	Experiments  store.ExperimentStore
}

// Orchestrator drives sessions from creation to a terminal state.
type Orchestrator struct {
	stores   Stores
	factory  *agent.Factory
	registry *registry.Registry
	journal  Recorder
	opts     Options
	log      *logger.Logger

	mu     sync.Mutex
	states map[string]*sessionState
}

// sessionState is the in-memory coordination state of one session.
type sessionState struct {
	// mu serializes lifecycle transitions and message appends.
	mu sync.Mutex
	// turnMu serializes AI turn-taking passes.
	turnMu sync.Mutex

	config   *model.ExperimentConfig
	agents   map[string]agent.Agent
	deadline time.Time
}

// New creates an orchestrator.
func New(stores Stores, factory *agent.Factory, reg *registry.Registry, journal Recorder, opts Options, log *logger.Logger) *Orchestrator {
	if journal == nil {
		journal = NopRecorder()
	}
	return &Orchestrator{
		stores:   stores,
		factory:  factory,
		registry: reg,
		journal:  journal,
		opts:     opts,
		log:      log,
		states:   make(map[string]*sessionState),
	}
}

func (o *Orchestrator) state(sessionID string) (*sessionState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.states[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return st, nil
}

// CreateSession creates a WAITING session for the condition the access code
// resolves to.
func (o *Orchestrator) CreateSession(ctx context.Context, accessCode string) (*model.Session, error) {
	cond, err := o.stores.Experiments.ConditionByAccessCode(ctx, accessCode)
	if err != nil {
		return nil, err
	}
	cfg, err := o.stores.Experiments.ConfigForCondition(ctx, cond.ID)
	if err != nil {
		return nil, err
	}

	sess := &model.Session{
		ID:             uuid.NewString(),
		ConditionID:    cond.ID,
		TeamSize:       len(cfg.Roles),
		RequiredHumans: cfg.RequiredHumans(),
		Status:         model.SessionWaiting,
		CompletionCode: newCompletionCode(),
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.stores.Sessions.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.states[sess.ID] = &sessionState{config: cfg}
	o.mu.Unlock()

	metrics.SessionsTotal.WithLabelValues(string(model.SessionWaiting)).Inc()
	o.log.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("condition_id", cond.ID),
		zap.Int("required_humans", sess.RequiredHumans),
	)
	return sess, nil
}

// Join adds a human participant. Reaching the configured number of humans
// activates the session and seats its AI participants.
func (o *Orchestrator) Join(ctx context.Context, sessionID, name string) (*model.Participant, error) {
	st, err := o.state(sessionID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := o.stores.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionWaiting {
		return nil, &StateError{SessionID: sessionID, Status: string(sess.Status), Op: "join"}
	}

	p := &model.Participant{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      model.ParticipantHuman,
		Name:      name,
		JoinedAt:  time.Now().UTC(),
	}
	if err := o.stores.Participants.AddParticipant(ctx, p); err != nil {
		return nil, err
	}

	o.announcePresence(sessionID, model.EventParticipantJoined, p)

	humans, err := o.stores.Participants.PresentOfType(ctx, sessionID, model.ParticipantHuman)
	if err != nil {
		return nil, err
	}
	if len(humans) >= sess.RequiredHumans {
		if err := o.activateLocked(ctx, st, sess); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// activateLocked moves a WAITING session to ACTIVE, seats AI participants and
// arms the timeout deadline. Caller holds st.mu.
func (o *Orchestrator) activateLocked(ctx context.Context, st *sessionState, sess *model.Session) error {
	now := time.Now().UTC()
	sess.Status = model.SessionActive
	sess.StartedAt = &now
	if err := o.stores.Sessions.UpdateSession(ctx, sess); err != nil {
		return err
	}

	for _, role := range st.config.AIRoles() {
		p := &model.Participant{
			ID:        uuid.NewString(),
			SessionID: sess.ID,
			Type:      model.ParticipantAI,
			Name:      role.Name,
			AIModel:   role.Model,
			AIConfig: &model.AIConfig{
				Persona:   role.Persona,
				Knowledge: role.Knowledge,
				Strategy:  role.Strategy,
				Extra:     role.Config,
			},
			JoinedAt: time.Now().UTC(),
		}
		if err := o.stores.Participants.AddParticipant(ctx, p); err != nil {
			return err
		}
		o.announcePresence(sess.ID, model.EventParticipantJoined, p)
	}

	st.agents = o.factory.CreateFromConfig(st.config)
	budget := st.config.Scenario.Duration()
	if budget <= 0 {
		budget = o.opts.SessionTimeout
	}
	st.deadline = now.Add(budget)

	metrics.SessionsTotal.WithLabelValues(string(model.SessionActive)).Inc()
	o.log.Info("session activated",
		zap.String("session_id", sess.ID),
		zap.Int("ai_agents", len(st.agents)),
		zap.Duration("budget", budget),
	)

	o.postSystemLocked(ctx, st, sess, "All team members have joined. You can start working on the task now.")
	return nil
}

// Leave soft-removes a participant. The session is cancelled when its last
// human leaves before completion; sessions configured without human seats are
// exempt.
func (o *Orchestrator) Leave(ctx context.Context, sessionID, participantID string) error {
	st, err := o.state(sessionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	p, err := o.stores.Participants.GetParticipant(ctx, participantID)
	if err != nil || p.SessionID != sessionID {
		return store.ErrNotFound
	}
	if err := o.stores.Participants.MarkLeft(ctx, participantID); err != nil {
		return err
	}
	o.registry.Disconnect(sessionID, participantID)
	o.announcePresence(sessionID, model.EventParticipantLeft, p)

	sess, err := o.stores.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() || sess.RequiredHumans == 0 {
		return nil
	}
	humans, err := o.stores.Participants.PresentOfType(ctx, sessionID, model.ParticipantHuman)
	if err != nil {
		return err
	}
	if len(humans) == 0 {
		o.terminateLocked(ctx, st, sess, model.SessionCancelled)
		o.log.Info("session cancelled, last human left",
			zap.String("session_id", sessionID),
		)
	}
	return nil
}

// Complete finishes a session through the manual trigger.
func (o *Orchestrator) Complete(ctx context.Context, sessionID string) error {
	st, err := o.state(sessionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := o.stores.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status != model.SessionActive {
		return &StateError{SessionID: sessionID, Status: string(sess.Status), Op: "complete"}
	}
	o.completeLocked(ctx, st, sess, model.TriggerManual, "")
	return nil
}

// Timeout moves a non-terminal session to TIMEOUT. Timing out an already
// terminal session is a state conflict, like any other terminal transition.
func (o *Orchestrator) Timeout(ctx context.Context, sessionID string) error {
	st, err := o.state(sessionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	sess, err := o.stores.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return &StateError{SessionID: sessionID, Status: string(sess.Status), Op: "time out"}
	}
	o.terminateLocked(ctx, st, sess, model.SessionTimeout)

	o.registry.BroadcastToSession(sessionID, &model.SessionTimeoutEvent{
		Type:    model.EventSessionTimeout,
		Message: "The session time limit has been reached.",
	}, "")
	o.journal.RecordEvent(sessionID, model.EventSessionTimeout, sess)
	o.log.Info("session timed out", zap.String("session_id", sessionID))
	return nil
}

// completeLocked finishes an ACTIVE session successfully. Caller holds st.mu.
func (o *Orchestrator) completeLocked(ctx context.Context, st *sessionState, sess *model.Session, trigger model.TriggerType, value string) {
	o.terminateLocked(ctx, st, sess, model.SessionCompleted)

	o.postSystemLocked(ctx, st, sess,
		"The task has been completed. Thank you for participating! Your completion code is "+sess.CompletionCode+".")

	event := &model.SessionCompletedEvent{
		Type:           model.EventSessionCompleted,
		CompletionCode: sess.CompletionCode,
		TriggerType:    trigger,
		TriggerValue:   value,
	}
	o.registry.BroadcastToSession(sess.ID, event, "")
	o.journal.RecordEvent(sess.ID, model.EventSessionCompleted, event)

	o.log.Info("session completed",
		zap.String("session_id", sess.ID),
		zap.String("trigger", string(trigger)),
	)
}

// terminateLocked writes the terminal status and disarms the timeout
// deadline. Caller holds st.mu and has verified the transition.
func (o *Orchestrator) terminateLocked(ctx context.Context, st *sessionState, sess *model.Session, status model.SessionStatus) {
	st.deadline = time.Time{}
	now := time.Now().UTC()
	sess.Status = status
	sess.CompletedAt = &now
	if err := o.stores.Sessions.UpdateSession(ctx, sess); err != nil {
		o.log.Error("persisting terminal status failed",
			zap.String("session_id", sess.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
	metrics.SessionsTotal.WithLabelValues(string(status)).Inc()
}

// postSystemLocked persists and broadcasts a platform message. Caller holds
// st.mu.
func (o *Orchestrator) postSystemLocked(ctx context.Context, st *sessionState, sess *model.Session, content string) {
	msg := &model.Message{
		ID:              uuid.NewString(),
		SessionID:       sess.ID,
		ParticipantID:   systemParticipantID,
		ParticipantName: "System",
		ParticipantType: model.ParticipantSystem,
		Content:         content,
		Timestamp:       time.Now().UTC(),
	}
	if _, err := o.stores.Messages.Append(ctx, msg); err != nil {
		o.log.Error("persisting system message failed",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		return
	}
	metrics.MessagesTotal.WithLabelValues(string(model.ParticipantSystem)).Inc()
	o.journal.RecordMessage(msg)
	o.registry.BroadcastToSession(sess.ID, model.NewChatEvent(msg), "")
}

func (o *Orchestrator) announcePresence(sessionID string, eventType model.EventType, p *model.Participant) {
	event := &model.PresenceEvent{
		Type:            eventType,
		ParticipantID:   p.ID,
		ParticipantName: p.Name,
	}
	o.registry.BroadcastToSession(sessionID, event, "")
	o.journal.RecordEvent(sessionID, eventType, event)
}

// newCompletionCode mints the code participants redeem for study credit.
func newCompletionCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
}
