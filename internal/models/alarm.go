package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSnoozeDisabled = errors.New("snooze is disabled for this alarm")
	ErrSnoozeLimit    = errors.New("snooze limit reached")
)

type Alarm struct {
	ID                  uuid.UUID         `json:"id"`
	UserID              uuid.UUID         `json:"user_id"`
	Label               string            `json:"label"`
	Hour                int               `json:"hour"`
	Minute              int               `json:"minute"`
	Enabled             bool              `json:"enabled"`
	RepeatDays          []time.Weekday    `json:"repeat_days"` // empty = one-time
	Tone                string            `json:"tone"`        // "energetic" | "calm" | "motivational" | "gentle"
	VoiceID             string            `json:"voice_id"`
	SnoozeEnabled       bool              `json:"snooze_enabled"`
	SnoozeDuration      time.Duration     `json:"snooze_duration"`
	MaxSnoozeCount      int               `json:"max_snooze_count"`
	CurrentSnoozeCount  int               `json:"current_snooze_count"`
	LastTriggeredAt     *time.Time        `json:"last_triggered_at"`
	FallbackSoundID     string            `json:"fallback_sound_id"`
	UseTraditionalSound bool              `json:"use_traditional_sound"`
	UseAIScript         bool              `json:"use_ai_script"`
	CustomAudioPath     *string           `json:"custom_audio_path"`
	GeneratedContent    *GeneratedContent `json:"generated_content"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

func (a *Alarm) Validate() error {
	if a.Hour < 0 || a.Hour > 23 {
		return fmt.Errorf("hour must be between 0 and 23, got %d", a.Hour)
	}
	if a.Minute < 0 || a.Minute > 59 {
		return fmt.Errorf("minute must be between 0 and 59, got %d", a.Minute)
	}
	for _, d := range a.RepeatDays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid repeat weekday %d", d)
		}
	}
	if !a.UseTraditionalSound && !a.UseAIScript {
		return errors.New("alarm must use a traditional sound, an AI script, or both")
	}
	if a.FallbackSoundID == "" {
		return errors.New("fallback sound is required")
	}
	if a.SnoozeEnabled {
		if a.SnoozeDuration <= 0 {
			return errors.New("snooze duration must be positive")
		}
		if a.MaxSnoozeCount < 1 {
			return errors.New("max snooze count must be at least 1")
		}
	}
	if a.CurrentSnoozeCount > a.MaxSnoozeCount {
		return fmt.Errorf("snooze count %d exceeds limit %d", a.CurrentSnoozeCount, a.MaxSnoozeCount)
	}
	return nil
}

func (a *Alarm) IsOneTime() bool {
	return len(a.RepeatDays) == 0
}

func (a *Alarm) TimeOfDay() (hour, minute int) {
	return a.Hour, a.Minute
}

func (a *Alarm) SetEnabled(enabled bool) {
	a.Enabled = enabled
	a.touch()
}

func (a *Alarm) MarkTriggered(now time.Time) {
	t := now
	a.LastTriggeredAt = &t
	a.touch()
}

func (a *Alarm) RecordSnooze() error {
	if !a.SnoozeEnabled {
		return ErrSnoozeDisabled
	}
	if a.CurrentSnoozeCount >= a.MaxSnoozeCount {
		return ErrSnoozeLimit
	}
	a.CurrentSnoozeCount++
	a.touch()
	return nil
}

func (a *Alarm) ResetSnooze() {
	a.CurrentSnoozeCount = 0
	a.touch()
}

// SetGeneratedContent replaces any prior content and drops the custom
// recording so the fresh file is what gets armed.
func (a *Alarm) SetGeneratedContent(c *GeneratedContent) {
	a.GeneratedContent = c
	a.CustomAudioPath = nil
	a.touch()
}

// ClearGeneratedContent empties the playback slot: both the generated
// audio and the custom recording reference are dropped, leaving the
// fallback sound.
func (a *Alarm) ClearGeneratedContent() {
	a.GeneratedContent = nil
	a.CustomAudioPath = nil
	a.touch()
}

func (a *Alarm) touch() {
	a.UpdatedAt = time.Now().UTC()
}

type CreateAlarmRequest struct {
	Label               string         `json:"label"`
	Hour                int            `json:"hour"`
	Minute              int            `json:"minute"`
	RepeatDays          []time.Weekday `json:"repeat_days"`
	Tone                string         `json:"tone"`
	VoiceID             string         `json:"voice_id"`
	SnoozeEnabled       *bool          `json:"snooze_enabled"`
	SnoozeDurationMin   *int           `json:"snooze_duration_minutes"`
	MaxSnoozeCount      *int           `json:"max_snooze_count"`
	FallbackSoundID     string         `json:"fallback_sound_id"`
	UseTraditionalSound *bool          `json:"use_traditional_sound"`
	UseAIScript         *bool          `json:"use_ai_script"`
	CustomAudioPath     *string        `json:"custom_audio_path"`
	Goal                string         `json:"goal"`
	Note                string         `json:"note"`
	Location            string         `json:"location"`
	Latitude            *float64       `json:"latitude"`
	Longitude           *float64       `json:"longitude"`
	CalendarFeedURL     string         `json:"calendar_feed_url"`
}

type UpdateAlarmRequest struct {
	Label               *string         `json:"label"`
	Hour                *int            `json:"hour"`
	Minute              *int            `json:"minute"`
	RepeatDays          *[]time.Weekday `json:"repeat_days"`
	Tone                *string         `json:"tone"`
	VoiceID             *string         `json:"voice_id"`
	SnoozeEnabled       *bool           `json:"snooze_enabled"`
	SnoozeDurationMin   *int            `json:"snooze_duration_minutes"`
	MaxSnoozeCount      *int            `json:"max_snooze_count"`
	FallbackSoundID     *string         `json:"fallback_sound_id"`
	UseTraditionalSound *bool           `json:"use_traditional_sound"`
	UseAIScript         *bool           `json:"use_ai_script"`
	CustomAudioPath     *string         `json:"custom_audio_path"`
}
