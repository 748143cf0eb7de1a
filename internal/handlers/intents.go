package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/middleware"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/models"
)

type generationQueue interface {
	Enqueue(ctx context.Context, intentID uuid.UUID) error
}

type IntentHandler struct {
	intentRepo intentRepository
	alarmRepo  alarmRepository
	delivery   deliveryScheduler
	queue      generationQueue
	logger     *log.Logger
}

func NewIntentHandler(
	intentRepo intentRepository,
	alarmRepo alarmRepository,
	delivery deliveryScheduler,
	queue generationQueue,
	logger *log.Logger,
) *IntentHandler {
	return &IntentHandler{
		intentRepo: intentRepo,
		alarmRepo:  alarmRepo,
		delivery:   delivery,
		queue:      queue,
		logger:     logger,
	}
}

func (h *IntentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid intent ID", r))
		return
	}

	intent, err := h.intentRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Intent not found", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if intent.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	writeJSON(w, http.StatusOK, intent)
}

// Update edits the goal or tone. Any real change invalidates whatever
// was generated for the old wording and starts a fresh cycle.
func (h *IntentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid intent ID", r))
		return
	}

	var req models.UpdateIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.Goal == nil && req.Tone == nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Nothing to update", r))
		return
	}

	intent, err := h.intentRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Intent not found", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if intent.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	changed := false
	if req.Goal != nil && *req.Goal != intent.Goal {
		intent.SetGoal(*req.Goal)
		changed = true
	}
	if req.Tone != nil && *req.Tone != intent.Tone {
		intent.SetTone(*req.Tone)
		changed = true
	}
	if !changed {
		writeJSON(w, http.StatusOK, intent)
		return
	}

	if err := h.intentRepo.Update(r.Context(), intent); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update intent", r))
		return
	}

	h.restartGeneration(r.Context(), intent)
	writeJSON(w, http.StatusOK, intent)
}

// Retry forces a fresh generation cycle regardless of the current
// state. The user reaches for this after a failure notification.
func (h *IntentHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid intent ID", r))
		return
	}

	intent, err := h.intentRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Intent not found", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if intent.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	intent.Retry()
	if err := h.intentRepo.Update(r.Context(), intent); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update intent", r))
		return
	}

	h.restartGeneration(r.Context(), intent)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"intent_id": intent.ID,
		"status":    intent.Status,
		"version":   intent.Version,
	})
}

// restartGeneration drops the armed copy of the outdated script and
// puts the intent back in front of the workers. With an alarm attached
// the scheduler re-arms and enqueues in one pass.
func (h *IntentHandler) restartGeneration(ctx context.Context, intent *models.Intent) {
	if intent.AlarmID == nil {
		if err := h.queue.Enqueue(ctx, intent.ID); err != nil {
			h.logger.Error("generation enqueue failed", "intent_id", intent.ID, "error", err)
		}
		return
	}

	alarm, err := h.alarmRepo.GetByID(ctx, *intent.AlarmID)
	if err != nil {
		h.logger.Error("load alarm", "alarm_id", *intent.AlarmID, "error", err)
		return
	}
	if alarm.GeneratedContent != nil {
		alarm.ClearGeneratedContent()
		if err := h.alarmRepo.Update(ctx, alarm); err != nil {
			h.logger.Error("persist alarm", "alarm_id", alarm.ID, "error", err)
		}
	}
	if err := h.delivery.Schedule(ctx, alarm); err != nil {
		h.logger.Error("reschedule after intent change", "alarm_id", alarm.ID, "error", err)
	}
}
