// Package registry tracks live WebSocket connections per session and fans
// events out to them. It knows nothing about session semantics; the
// orchestrator decides what to broadcast and when.
package registry

import (
	"sync"
	"time"

	"github.com/team-llm/experiment-platform/internal/model"
	"github.com/team-llm/experiment-platform/pkg/logger"
	"github.com/team-llm/experiment-platform/pkg/metrics"

	"go.uber.org/zap"
)

// Channel is the write side of one client connection. Send marshals and
// delivers a single event; implementations must be safe for concurrent use.
type Channel interface {
	Send(v any) error
	Close() error
}

// Conn is one registered participant connection.
type Conn struct {
	Channel

	SessionID       string
	ParticipantID   string
	ParticipantName string

	mu         sync.Mutex
	lastActive time.Time
}

// Touch records inbound activity on the connection.
func (c *Conn) Touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

// LastActive returns the time of the most recent inbound frame.
func (c *Conn) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Registry indexes connections by session and participant. A participant has
// at most one live connection; a reconnect replaces the previous one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Conn

	log *logger.Logger
}

// New creates an empty connection registry.
func New(log *logger.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]map[string]*Conn),
		log:      log,
	}
}

// Connect registers a connection and announces the arrival to the session's
// other connections, so peers see reconnects as well as first joins. An
// existing connection for the same participant is closed and replaced.
func (r *Registry) Connect(c *Conn) {
	c.Touch()

	r.mu.Lock()
	conns, ok := r.sessions[c.SessionID]
	if !ok {
		conns = make(map[string]*Conn)
		r.sessions[c.SessionID] = conns
	}
	prev := conns[c.ParticipantID]
	conns[c.ParticipantID] = c
	r.mu.Unlock()

	if prev != nil {
		prev.Close()
	} else {
		metrics.WSConnectionsActive.Inc()
	}

	r.BroadcastToSession(c.SessionID, &model.PresenceEvent{
		Type:            model.EventParticipantJoined,
		ParticipantID:   c.ParticipantID,
		ParticipantName: c.ParticipantName,
	}, c.ParticipantID)

	r.log.Debug("connection registered",
		zap.String("session_id", c.SessionID),
		zap.String("participant_id", c.ParticipantID),
	)
}

// Disconnect removes a connection and closes its channel. Disconnecting an
// unknown or already-removed connection is a no-op, so transport teardown and
// registry cleanup can race safely.
func (r *Registry) Disconnect(sessionID, participantID string) {
	r.mu.Lock()
	conns := r.sessions[sessionID]
	c, ok := conns[participantID]
	if ok {
		delete(conns, participantID)
		if len(conns) == 0 {
			delete(r.sessions, sessionID)
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	c.Close()
	metrics.WSConnectionsActive.Dec()

	r.log.Debug("connection removed",
		zap.String("session_id", sessionID),
		zap.String("participant_id", participantID),
	)
}

// BroadcastToSession sends an event to every connection in a session except
// the excluded participant (empty string excludes nobody). A connection whose
// send fails is treated as implicitly disconnected and removed.
func (r *Registry) BroadcastToSession(sessionID string, event any, excludeParticipantID string) {
	r.mu.RLock()
	targets := make([]*Conn, 0, len(r.sessions[sessionID]))
	for id, c := range r.sessions[sessionID] {
		if id == excludeParticipantID {
			continue
		}
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(event); err != nil {
			r.log.Warn("broadcast send failed, dropping connection",
				zap.String("session_id", sessionID),
				zap.String("participant_id", c.ParticipantID),
				zap.Error(err),
			)
			r.Disconnect(sessionID, c.ParticipantID)
		}
	}
}

// SendPersonal delivers an event to one participant. Returns false when the
// participant has no live connection or the send fails.
func (r *Registry) SendPersonal(sessionID, participantID string, event any) bool {
	r.mu.RLock()
	c := r.sessions[sessionID][participantID]
	r.mu.RUnlock()

	if c == nil {
		return false
	}
	if err := c.Send(event); err != nil {
		r.Disconnect(sessionID, participantID)
		return false
	}
	return true
}

// Touch records activity for a participant's connection.
func (r *Registry) Touch(sessionID, participantID string) {
	r.mu.RLock()
	c := r.sessions[sessionID][participantID]
	r.mu.RUnlock()
	if c != nil {
		c.Touch()
	}
}

// SessionParticipants lists the connected participants of a session.
func (r *Registry) SessionParticipants(sessionID string) []model.ParticipantInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.ParticipantInfo, 0, len(r.sessions[sessionID]))
	for _, c := range r.sessions[sessionID] {
		out = append(out, model.ParticipantInfo{
			ParticipantID:   c.ParticipantID,
			ParticipantName: c.ParticipantName,
		})
	}
	return out
}

// snapshot returns every registered connection.
func (r *Registry) snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Conn
	for _, conns := range r.sessions {
		for _, c := range conns {
			out = append(out, c)
		}
	}
	return out
}
