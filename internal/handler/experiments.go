// Package handler provides HTTP handlers for the API.
package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/team-llm/experiment-platform/internal/middleware"
	"github.com/team-llm/experiment-platform/internal/model"
	"github.com/team-llm/experiment-platform/internal/store"
	"github.com/team-llm/experiment-platform/pkg/logger"

	"go.uber.org/zap"
)

// maxConfigBytes caps uploaded experiment configurations.
const maxConfigBytes = 1 << 20

// ExperimentHandler handles the researcher experiment API.
type ExperimentHandler struct {
	experiments store.ExperimentStore
	logger      *logger.Logger
}

// NewExperimentHandler creates a new experiment handler.
func NewExperimentHandler(experiments store.ExperimentStore, log *logger.Logger) *ExperimentHandler {
	return &ExperimentHandler{
		experiments: experiments,
		logger:      log,
	}
}

// Create handles POST /api/v1/experiments. The request body is the experiment
// configuration as YAML; validation errors come back as 400 with the reason.
func (h *ExperimentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	cfg, err := model.ParseExperimentConfig(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	exp := &model.Experiment{
		ID:        uuid.NewString(),
		Name:      cfg.ExperimentName,
		CreatedBy: middleware.GetUserID(ctx),
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
	}

	// A config without explicit conditions still gets one, so the experiment
	// is always reachable through an access code.
	condCfgs := cfg.Conditions
	if len(condCfgs) == 0 {
		condCfgs = []model.ConditionConfig{{Name: "default"}}
	}
	conditions := make([]*model.Condition, 0, len(condCfgs))
	for _, cc := range condCfgs {
		conditions = append(conditions, &model.Condition{
			ID:           uuid.NewString(),
			ExperimentID: exp.ID,
			Name:         cc.Name,
			Description:  cc.Description,
			AccessCode:   newAccessCode(),
			CreatedAt:    time.Now().UTC(),
		})
	}

	if err := h.experiments.CreateExperiment(ctx, exp, conditions); err != nil {
		h.logger.Error("failed to create experiment", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create experiment")
		return
	}

	h.logger.Info("experiment created",
		zap.String("experiment_id", exp.ID),
		zap.String("name", exp.Name),
		zap.Int("conditions", len(conditions)),
	)
	writeJSON(w, http.StatusCreated, map[string]any{
		"experiment": exp,
		"conditions": conditions,
	})
}

// Get handles GET /api/v1/experiments/{id}
func (h *ExperimentHandler) Get(w http.ResponseWriter, r *http.Request) {
	exp, err := h.experiments.GetExperiment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// newAccessCode mints the code participants use to reach a condition.
func newAccessCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:10]
}
