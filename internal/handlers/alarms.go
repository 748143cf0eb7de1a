package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/middleware"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/models"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/scheduler"
)

type alarmRepository interface {
	Create(ctx context.Context, a *models.Alarm) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Alarm, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Alarm, error)
	Update(ctx context.Context, a *models.Alarm) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type intentRepository interface {
	Create(ctx context.Context, i *models.Intent) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Intent, error)
	GetByAlarmID(ctx context.Context, alarmID uuid.UUID) (*models.Intent, error)
	Update(ctx context.Context, i *models.Intent) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type deliveryScheduler interface {
	Schedule(ctx context.Context, alarm *models.Alarm) error
	Reschedule(ctx context.Context, alarmID uuid.UUID) error
}

type snoozeController interface {
	Snooze(ctx context.Context, alarmID uuid.UUID) (time.Time, error)
	Dismiss(ctx context.Context, alarmID uuid.UUID) error
}

type audioFiles interface {
	Open(name string) (*os.File, error)
	Remove(path string) error
}

// AlarmDefaults fill the optional fields of a create request.
type AlarmDefaults struct {
	Tone            string
	VoiceID         string
	FallbackSoundID string
	SnoozeDuration  time.Duration
	MaxSnoozeCount  int
}

type AlarmHandler struct {
	alarmRepo  alarmRepository
	intentRepo intentRepository
	delivery   deliveryScheduler
	snooze     snoozeController
	audio      audioFiles
	defaults   AlarmDefaults
	logger     *log.Logger
}

func NewAlarmHandler(
	alarmRepo alarmRepository,
	intentRepo intentRepository,
	delivery deliveryScheduler,
	snooze snoozeController,
	audio audioFiles,
	defaults AlarmDefaults,
	logger *log.Logger,
) *AlarmHandler {
	return &AlarmHandler{
		alarmRepo:  alarmRepo,
		intentRepo: intentRepo,
		delivery:   delivery,
		snooze:     snooze,
		audio:      audio,
		defaults:   defaults,
		logger:     logger,
	}
}

type alarmResponse struct {
	Alarm  *models.Alarm  `json:"alarm"`
	Intent *models.Intent `json:"intent,omitempty"`
}

func (h *AlarmHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAlarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	alarm := h.alarmFromRequest(userID, &req)
	if err := alarm.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
		return
	}

	if err := h.alarmRepo.Create(r.Context(), alarm); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create alarm", r))
		return
	}

	var intent *models.Intent
	if alarm.UseAIScript {
		intent = models.NewIntent(userID, &alarm.ID, req.Goal, alarm.Tone, models.IntentContext{
			Location:        req.Location,
			Note:            req.Note,
			Latitude:        req.Latitude,
			Longitude:       req.Longitude,
			CalendarFeedURL: req.CalendarFeedURL,
		})
		if err := h.intentRepo.Create(r.Context(), intent); err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create wake intent", r))
			return
		}
	}

	if err := h.delivery.Schedule(r.Context(), alarm); err != nil {
		h.logger.Error("arming after create failed", "alarm_id", alarm.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("ARMING_FAILED", "Alarm was saved but could not be armed on this device", r))
		return
	}

	writeJSON(w, http.StatusCreated, alarmResponse{Alarm: alarm, Intent: intent})
}

func (h *AlarmHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	alarms, err := h.alarmRepo.ListByUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list alarms", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alarms": alarms,
		"total":  len(alarms),
	})
}

func (h *AlarmHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid alarm ID", r))
		return
	}

	alarm, err := h.alarmRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Alarm not found", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if alarm.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	intent, err := h.intentRepo.GetByAlarmID(r.Context(), id)
	if err != nil {
		h.logger.Warn("load intent", "alarm_id", id, "error", err)
	}

	writeJSON(w, http.StatusOK, alarmResponse{Alarm: alarm, Intent: intent})
}

func (h *AlarmHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid alarm ID", r))
		return
	}

	var req models.UpdateAlarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	alarm, err := h.alarmRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Alarm not found", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if alarm.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	applyAlarmUpdate(alarm, &req)
	if err := alarm.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
		return
	}

	if err := h.alarmRepo.Update(r.Context(), alarm); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update alarm", r))
		return
	}

	intent, err := h.intentRepo.GetByAlarmID(r.Context(), id)
	if err != nil {
		h.logger.Warn("load intent", "alarm_id", id, "error", err)
	}
	intent = h.syncIntent(r.Context(), alarm, intent, &req)

	if err := h.delivery.Schedule(r.Context(), alarm); err != nil {
		h.logger.Error("arming after update failed", "alarm_id", alarm.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("ARMING_FAILED", "Alarm was saved but could not be armed on this device", r))
		return
	}

	writeJSON(w, http.StatusOK, alarmResponse{Alarm: alarm, Intent: intent})
}

func (h *AlarmHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid alarm ID", r))
		return
	}

	alarm, err := h.alarmRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Alarm not found", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if alarm.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	// Stop both wakes before the row goes away.
	alarm.SetEnabled(false)
	if err := h.delivery.Schedule(r.Context(), alarm); err != nil {
		h.logger.Warn("disarm on delete failed", "alarm_id", id, "error", err)
	}

	if intent, err := h.intentRepo.GetByAlarmID(r.Context(), id); err == nil && intent != nil {
		if intent.GeneratedContent != nil && intent.GeneratedContent.AudioPath != "" {
			if err := h.audio.Remove(intent.GeneratedContent.AudioPath); err != nil {
				h.logger.Warn("remove audio", "intent_id", intent.ID, "error", err)
			}
		}
	}

	// The intent row goes with the alarm via the FK cascade.
	if err := h.alarmRepo.Delete(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete alarm", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Alarm deleted"})
}

func (h *AlarmHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid alarm ID", r))
		return
	}

	alarm, err := h.alarmRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Alarm not found", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if alarm.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	alarm.SetEnabled(!alarm.Enabled)
	if !alarm.Enabled {
		// Disabling abandons the current firing cycle.
		alarm.ResetSnooze()
	}

	if err := h.alarmRepo.Update(r.Context(), alarm); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update alarm", r))
		return
	}

	if err := h.delivery.Schedule(r.Context(), alarm); err != nil {
		h.logger.Error("arming after toggle failed", "alarm_id", alarm.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("ARMING_FAILED", "Alarm was saved but could not be armed on this device", r))
		return
	}

	writeJSON(w, http.StatusOK, alarm)
}

func (h *AlarmHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid alarm ID", r))
		return
	}

	alarm, err := h.alarmRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Alarm not found", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if alarm.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	refireAt, err := h.snooze.Snooze(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSnoozeDisabled):
			writeJSON(w, http.StatusConflict, errorResp("SNOOZE_DISABLED", "Snooze is disabled for this alarm", r))
		case errors.Is(err, models.ErrSnoozeLimit):
			writeJSON(w, http.StatusConflict, errorResp("SNOOZE_LIMIT", "Snooze limit reached", r))
		case errors.Is(err, scheduler.ErrArmingFailed):
			writeJSON(w, http.StatusInternalServerError, errorResp("ARMING_FAILED", "The snoozed wake could not be armed", r))
		default:
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to snooze alarm", r))
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alarm_id":  id,
		"refire_at": refireAt,
	})
}

func (h *AlarmHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid alarm ID", r))
		return
	}

	alarm, err := h.alarmRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Alarm not found", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if alarm.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	if err := h.snooze.Dismiss(r.Context(), id); err != nil {
		h.logger.Error("dismiss failed", "alarm_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to dismiss alarm", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Alarm dismissed"})
}

// Audio streams the alarm's synthesized script. Range requests work, so
// the mobile player can seek.
func (h *AlarmHandler) Audio(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid alarm ID", r))
		return
	}

	alarm, err := h.alarmRepo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Alarm not found", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if alarm.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	if alarm.GeneratedContent == nil || alarm.GeneratedContent.AudioPath == "" {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "No generated audio for this alarm", r))
		return
	}

	f, err := h.audio.Open(filepath.Base(alarm.GeneratedContent.AudioPath))
	if err != nil {
		h.logger.Warn("open audio", "alarm_id", id, "error", err)
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Audio file is missing", r))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to read audio file", r))
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (h *AlarmHandler) alarmFromRequest(userID uuid.UUID, req *models.CreateAlarmRequest) *models.Alarm {
	alarm := &models.Alarm{
		UserID:          userID,
		Label:           req.Label,
		Hour:            req.Hour,
		Minute:          req.Minute,
		Enabled:         true,
		RepeatDays:      req.RepeatDays,
		Tone:            req.Tone,
		VoiceID:         req.VoiceID,
		SnoozeEnabled:   true,
		SnoozeDuration:  h.defaults.SnoozeDuration,
		MaxSnoozeCount:  h.defaults.MaxSnoozeCount,
		FallbackSoundID: req.FallbackSoundID,
		UseAIScript:     true,
		CustomAudioPath: req.CustomAudioPath,
	}
	if alarm.Tone == "" {
		alarm.Tone = h.defaults.Tone
	}
	if alarm.VoiceID == "" {
		alarm.VoiceID = h.defaults.VoiceID
	}
	if alarm.FallbackSoundID == "" {
		alarm.FallbackSoundID = h.defaults.FallbackSoundID
	}
	if req.SnoozeEnabled != nil {
		alarm.SnoozeEnabled = *req.SnoozeEnabled
	}
	if req.SnoozeDurationMin != nil {
		alarm.SnoozeDuration = time.Duration(*req.SnoozeDurationMin) * time.Minute
	}
	if req.MaxSnoozeCount != nil {
		alarm.MaxSnoozeCount = *req.MaxSnoozeCount
	}
	if req.UseTraditionalSound != nil {
		alarm.UseTraditionalSound = *req.UseTraditionalSound
	}
	if req.UseAIScript != nil {
		alarm.UseAIScript = *req.UseAIScript
	}
	return alarm
}

// syncIntent keeps the intent in step with an alarm edit: a tone change
// flows into the next script, and switching the AI script on for the
// first time seeds an empty intent the user can fill in.
func (h *AlarmHandler) syncIntent(ctx context.Context, alarm *models.Alarm, intent *models.Intent, req *models.UpdateAlarmRequest) *models.Intent {
	if !alarm.UseAIScript {
		return intent
	}

	if intent == nil {
		intent = models.NewIntent(alarm.UserID, &alarm.ID, "", alarm.Tone, models.IntentContext{})
		if err := h.intentRepo.Create(ctx, intent); err != nil {
			h.logger.Error("create intent", "alarm_id", alarm.ID, "error", err)
			return nil
		}
		return intent
	}

	if req.Tone != nil && intent.Tone != *req.Tone {
		intent.SetTone(*req.Tone)
		if err := h.intentRepo.Update(ctx, intent); err != nil {
			h.logger.Error("persist intent", "intent_id", intent.ID, "error", err)
		}
	}
	return intent
}

func applyAlarmUpdate(alarm *models.Alarm, req *models.UpdateAlarmRequest) {
	if req.Label != nil {
		alarm.Label = *req.Label
	}
	if req.Hour != nil {
		alarm.Hour = *req.Hour
	}
	if req.Minute != nil {
		alarm.Minute = *req.Minute
	}
	if req.RepeatDays != nil {
		alarm.RepeatDays = *req.RepeatDays
	}
	if req.Tone != nil {
		alarm.Tone = *req.Tone
	}
	if req.VoiceID != nil {
		alarm.VoiceID = *req.VoiceID
	}
	if req.SnoozeEnabled != nil {
		alarm.SnoozeEnabled = *req.SnoozeEnabled
	}
	if req.SnoozeDurationMin != nil {
		alarm.SnoozeDuration = time.Duration(*req.SnoozeDurationMin) * time.Minute
	}
	if req.MaxSnoozeCount != nil {
		alarm.MaxSnoozeCount = *req.MaxSnoozeCount
	}
	if req.FallbackSoundID != nil {
		alarm.FallbackSoundID = *req.FallbackSoundID
	}
	if req.UseTraditionalSound != nil {
		alarm.UseTraditionalSound = *req.UseTraditionalSound
	}
	if req.UseAIScript != nil {
		alarm.UseAIScript = *req.UseAIScript
	}
	if req.CustomAudioPath != nil {
		alarm.CustomAudioPath = req.CustomAudioPath
	}
	alarm.UpdatedAt = time.Now().UTC()
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}
