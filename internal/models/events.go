package models

import (
	"time"

	"github.com/google/uuid"
)

// WebSocket message types pushed to the app
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const (
	EventAlarmFired       = "alarm_fired"
	EventBackupFired      = "backup_fired"
	EventAlarmSnoozed     = "alarm_snoozed"
	EventAlarmDismissed   = "alarm_dismissed"
	EventGenerationStatus = "generation_status"
	EventGenerationReady  = "generation_ready"
	EventGenerationFailed = "generation_failed"
	EventArmingFailure    = "arming_failure"
)

type WakeEvent struct {
	AlarmID   uuid.UUID `json:"alarm_id"`
	FiredAt   time.Time `json:"fired_at"`
	AudioPath string    `json:"audio_path,omitempty"`
	SoundID   string    `json:"sound_id,omitempty"`
}

type SnoozeEvent struct {
	AlarmID     uuid.UUID `json:"alarm_id"`
	SnoozeCount int       `json:"snooze_count"`
	RefireAt    time.Time `json:"refire_at"`
}

type DismissEvent struct {
	AlarmID     uuid.UUID  `json:"alarm_id"`
	NextTrigger *time.Time `json:"next_trigger,omitempty"`
}

type GenerationStatusEvent struct {
	IntentID uuid.UUID  `json:"intent_id"`
	AlarmID  *uuid.UUID `json:"alarm_id,omitempty"`
	Status   string     `json:"status"`
	Attempt  int        `json:"attempt,omitempty"`
}

type GenerationReadyEvent struct {
	IntentID       uuid.UUID  `json:"intent_id"`
	AlarmID        *uuid.UUID `json:"alarm_id,omitempty"`
	WordCount      int        `json:"word_count"`
	SpokenSeconds  int        `json:"spoken_seconds"`
	AudioAvailable bool       `json:"audio_available"`
}

type GenerationFailedEvent struct {
	IntentID  uuid.UUID  `json:"intent_id"`
	AlarmID   *uuid.UUID `json:"alarm_id,omitempty"`
	Reason    string     `json:"reason"`
	WillRetry bool       `json:"will_retry"`
}

// ArmingFailureEvent is the one error class the app must show the
// user: the platform refused to schedule the wake and the morning is
// at risk.
type ArmingFailureEvent struct {
	AlarmID uuid.UUID `json:"alarm_id"`
	Message string    `json:"message"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
