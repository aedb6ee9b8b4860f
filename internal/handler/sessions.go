package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/team-llm/experiment-platform/internal/middleware"
	"github.com/team-llm/experiment-platform/internal/orchestrator"
	"github.com/team-llm/experiment-platform/internal/store"
	"github.com/team-llm/experiment-platform/pkg/logger"

	"go.uber.org/zap"
)

// SessionHandler handles the participant-facing session API.
type SessionHandler struct {
	orch         *orchestrator.Orchestrator
	sessions     store.SessionStore
	participants store.ParticipantStore
	messages     store.MessageStore
	logger       *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(orch *orchestrator.Orchestrator, sessions store.SessionStore, participants store.ParticipantStore, messages store.MessageStore, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		orch:         orch,
		sessions:     sessions,
		participants: participants,
		messages:     messages,
		logger:       log,
	}
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessCode string `json:"access_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateAccessCode(req.AccessCode); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.orch.CreateSession(r.Context(), req.AccessCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown access code")
			return
		}
		h.logger.Error("failed to create session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// Join handles POST /api/v1/sessions/{id}/join
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateParticipantName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.orch.Join(r.Context(), sessionID, req.Name)
	if err != nil {
		h.writeOrchestratorError(w, err, "failed to join session")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Leave handles POST /api/v1/sessions/{id}/leave
func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		ParticipantID string `json:"participant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateParticipantID(req.ParticipantID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.orch.Leave(r.Context(), sessionID, req.ParticipantID); err != nil {
		h.writeOrchestratorError(w, err, "failed to leave session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// Complete handles POST /api/v1/sessions/{id}/complete, the manual completion
// trigger.
func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.orch.Complete(r.Context(), sessionID); err != nil {
		h.writeOrchestratorError(w, err, "failed to complete session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// Timeout handles POST /api/v1/sessions/{id}/timeout, the external timeout
// trigger used by researchers to end a session early.
func (h *SessionHandler) Timeout(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.orch.Timeout(r.Context(), sessionID); err != nil {
		h.writeOrchestratorError(w, err, "failed to time out session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "timed_out"})
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	participants, err := h.participants.Present(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to load participants", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":      sess,
		"participants": participants,
	})
}

// Messages handles GET /api/v1/sessions/{id}/messages
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.sessions.GetSession(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	messages, err := h.messages.All(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to load messages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}

func (h *SessionHandler) writeOrchestratorError(w http.ResponseWriter, err error, fallback string) {
	var stateErr *orchestrator.StateError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &stateErr):
		writeError(w, http.StatusConflict, stateErr.Error())
	default:
		h.logger.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
