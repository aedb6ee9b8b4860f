package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/team-llm/experiment-platform/internal/middleware"
	"github.com/team-llm/experiment-platform/internal/model"
	"github.com/team-llm/experiment-platform/internal/orchestrator"
	"github.com/team-llm/experiment-platform/internal/registry"
	"github.com/team-llm/experiment-platform/internal/store"
	"github.com/team-llm/experiment-platform/pkg/logger"

	"go.uber.org/zap"
)

const (
	writeWait     = 10 * time.Second
	maxFrameBytes = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Participants connect from study-hosted pages on arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsChannel adapts a gorilla connection to the registry's Channel interface.
// gorilla permits one concurrent writer, so Send serializes.
type wsChannel struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsChannel) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}

// WSHandler upgrades participant connections and dispatches inbound frames to
// the orchestrator.
type WSHandler struct {
	orch             *orchestrator.Orchestrator
	registry         *registry.Registry
	sessions         store.SessionStore
	participants     store.ParticipantStore
	maxMessageLength int
	logger           *logger.Logger
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(orch *orchestrator.Orchestrator, reg *registry.Registry, sessions store.SessionStore, participants store.ParticipantStore, maxMessageLength int, log *logger.Logger) *WSHandler {
	return &WSHandler{
		orch:             orch,
		registry:         reg,
		sessions:         sessions,
		participants:     participants,
		maxMessageLength: maxMessageLength,
		logger:           log,
	}
}

// Serve handles GET /ws/sessions/{id}?participant_id=...
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	participantID := r.URL.Query().Get("participant_id")
	if middleware.ValidateSessionID(sessionID) != nil || middleware.ValidateParticipantID(participantID) != nil {
		writeError(w, http.StatusBadRequest, "invalid session or participant ID")
		return
	}

	sess, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	p, err := h.participants.GetParticipant(r.Context(), participantID)
	if err != nil || p.SessionID != sessionID || !p.Present() {
		writeError(w, http.StatusNotFound, "participant not found in session")
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	wsConn.SetReadLimit(maxFrameBytes)

	log := h.logger.WithParticipant(sessionID, p.ID, p.Name)
	conn := &registry.Conn{
		Channel:         &wsChannel{conn: wsConn},
		SessionID:       sessionID,
		ParticipantID:   p.ID,
		ParticipantName: p.Name,
	}
	h.registry.Connect(conn)

	conn.Send(&model.SessionInfoEvent{
		Type:         model.EventSessionInfo,
		SessionID:    sessionID,
		Status:       sess.Status,
		Participants: h.registry.SessionParticipants(sessionID),
	})

	h.readLoop(conn, log)
}

// readLoop consumes frames until the connection drops. Dropping does not
// remove the participant from the session; the client reconnects with the
// same participant ID.
func (h *WSHandler) readLoop(conn *registry.Conn, log *logger.Logger) {
	defer h.registry.Disconnect(conn.SessionID, conn.ParticipantID)

	for {
		var env model.Envelope
		if err := conn.Channel.(*wsChannel).conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		h.registry.Touch(conn.SessionID, conn.ParticipantID)
		h.dispatch(conn, &env, log)
	}
}

func (h *WSHandler) dispatch(conn *registry.Conn, env *model.Envelope, log *logger.Logger) {
	ctx := context.Background()

	switch env.Type {
	case model.EventChat:
		if err := middleware.ValidateMessageContent(env.Content, h.maxMessageLength); err != nil {
			conn.Send(&model.ErrorEvent{Type: model.EventError, Code: "invalid_content", Message: err.Error()})
			return
		}
		if _, err := h.orch.OnChatMessage(ctx, conn.SessionID, conn.ParticipantID, env.Content, env.Metadata); err != nil {
			h.sendOpError(conn, err, log, "message rejected")
		}

	case model.EventTyping:
		h.registry.BroadcastToSession(conn.SessionID, &model.TypingEvent{
			Type:            model.EventTyping,
			ParticipantID:   conn.ParticipantID,
			ParticipantName: conn.ParticipantName,
			IsTyping:        env.IsTyping,
		}, conn.ParticipantID)

	case model.EventTaskComplete:
		if err := h.orch.Complete(ctx, conn.SessionID); err != nil {
			h.sendOpError(conn, err, log, "completion rejected")
		}

	case model.EventPing:
		// Touch above already refreshed activity.

	default:
		conn.Send(&model.ErrorEvent{
			Type:    model.EventError,
			Code:    "unknown_event",
			Message: "unsupported event type: " + string(env.Type),
		})
	}
}

func (h *WSHandler) sendOpError(conn *registry.Conn, err error, log *logger.Logger, fallback string) {
	var stateErr *orchestrator.StateError
	switch {
	case errors.As(err, &stateErr):
		conn.Send(&model.ErrorEvent{Type: model.EventError, Code: "invalid_state", Message: stateErr.Error()})
	case errors.Is(err, store.ErrNotFound):
		conn.Send(&model.ErrorEvent{Type: model.EventError, Code: "not_found", Message: "unknown session or participant"})
	default:
		log.Error(fallback, zap.Error(err))
		conn.Send(&model.ErrorEvent{Type: model.EventError, Code: "internal", Message: fallback})
	}
}
