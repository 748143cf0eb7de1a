package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidTransition = errors.New("invalid intent transition")

type IntentStatus string

const (
	IntentPending    IntentStatus = "pending"
	IntentGenerating IntentStatus = "generating"
	IntentReady      IntentStatus = "ready"
	IntentUsed       IntentStatus = "used"
	IntentFailed     IntentStatus = "failed"
)

// Failure reasons recorded on generating -> failed.
const (
	FailReasonTimeout   = "timeout"
	FailReasonScript    = "script_generation"
	FailReasonSynthesis = "speech_synthesis"
	FailReasonAudio     = "audio_write"
)

// IntentState pairs the status with the failure reason so two failed
// intents compare equal only when they failed the same way.
type IntentState struct {
	Status IntentStatus
	Reason string
}

// Intent captures what the user wants to wake up to: a goal, a tone,
// and the context the script should be grounded in. It moves through
// pending -> generating -> ready -> used, with failed reachable from
// generating and every state re-enterable via Retry or an edit.
type Intent struct {
	ID               uuid.UUID         `json:"id"`
	UserID           uuid.UUID         `json:"user_id"`
	AlarmID          *uuid.UUID        `json:"alarm_id"`
	Goal             string            `json:"goal"`
	Tone             string            `json:"tone"`
	Context          IntentContext     `json:"context"`
	ScheduledFor     time.Time         `json:"scheduled_for"`
	Status           IntentStatus      `json:"status"`
	FailReason       string            `json:"fail_reason,omitempty"`
	Attempts         int               `json:"attempts"`
	Version          int               `json:"version"`
	GeneratedContent *GeneratedContent `json:"generated_content"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type IntentContext struct {
	Weather         string   `json:"weather,omitempty"`
	TimeOfDay       string   `json:"time_of_day,omitempty"` // "early_morning" | "morning" | "afternoon" | "evening" | "night"
	DayOfWeek       string   `json:"day_of_week,omitempty"`
	CalendarEvents  []string `json:"calendar_events,omitempty"`
	Location        string   `json:"location,omitempty"`
	Note            string   `json:"note,omitempty"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	CalendarFeedURL string   `json:"calendar_feed_url,omitempty"`
}

func NewIntent(userID uuid.UUID, alarmID *uuid.UUID, goal, tone string, ctx IntentContext) *Intent {
	now := time.Now().UTC()
	return &Intent{
		ID:        uuid.New(),
		UserID:    userID,
		AlarmID:   alarmID,
		Goal:      goal,
		Tone:      tone,
		Context:   ctx,
		Status:    IntentPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (i *Intent) State() IntentState {
	return IntentState{Status: i.Status, Reason: i.FailReason}
}

// BeginGeneration moves pending -> generating and consumes one attempt.
func (i *Intent) BeginGeneration() error {
	if i.Status != IntentPending {
		return fmt.Errorf("%w: %s -> generating", ErrInvalidTransition, i.Status)
	}
	i.Status = IntentGenerating
	i.Attempts++
	i.touch()
	return nil
}

func (i *Intent) CompleteGeneration(c *GeneratedContent) error {
	if i.Status != IntentGenerating {
		return fmt.Errorf("%w: %s -> ready", ErrInvalidTransition, i.Status)
	}
	i.Status = IntentReady
	i.FailReason = ""
	i.GeneratedContent = c
	i.touch()
	return nil
}

func (i *Intent) FailGeneration(reason string) error {
	if i.Status != IntentGenerating {
		return fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, i.Status)
	}
	i.Status = IntentFailed
	i.FailReason = reason
	i.GeneratedContent = nil
	i.touch()
	return nil
}

// MarkUsed records that playback of the generated audio started on a
// live wake event.
func (i *Intent) MarkUsed() error {
	if i.Status != IntentReady {
		return fmt.Errorf("%w: %s -> used", ErrInvalidTransition, i.Status)
	}
	i.Status = IntentUsed
	i.touch()
	return nil
}

// Retry resets the intent for a fresh generation cycle from any state.
// The version bump invalidates whatever an in-flight attempt produces.
func (i *Intent) Retry() {
	i.Status = IntentPending
	i.FailReason = ""
	i.Attempts = 0
	i.GeneratedContent = nil
	i.Version++
	i.touch()
}

// AutoRetry re-enters pending after a failure without refunding the
// attempt budget, so the one automatic retry stays exactly one.
func (i *Intent) AutoRetry() error {
	if i.Status != IntentFailed {
		return fmt.Errorf("%w: %s -> pending", ErrInvalidTransition, i.Status)
	}
	i.Status = IntentPending
	i.FailReason = ""
	i.touch()
	return nil
}

func (i *Intent) SetGoal(goal string) {
	i.Goal = goal
	i.Retry()
}

func (i *Intent) SetTone(tone string) {
	i.Tone = tone
	i.Retry()
}

func (i *Intent) SetScheduledFor(t time.Time) {
	i.ScheduledFor = t
	i.touch()
}

// ContextForAI flattens the context bundle into the prompt inputs.
// Empty fields are omitted so the prompt never carries blank lines.
func (i *Intent) ContextForAI() map[string]string {
	m := make(map[string]string)
	if i.Context.Weather != "" {
		m["weather"] = i.Context.Weather
	}
	if i.Context.TimeOfDay != "" {
		m["time_of_day"] = i.Context.TimeOfDay
	}
	if i.Context.DayOfWeek != "" {
		m["day_of_week"] = i.Context.DayOfWeek
	}
	if len(i.Context.CalendarEvents) > 0 {
		m["calendar_events"] = strings.Join(i.Context.CalendarEvents, "; ")
	}
	if i.Context.Location != "" {
		m["location"] = i.Context.Location
	}
	if i.Context.Note != "" {
		m["note"] = i.Context.Note
	}
	return m
}

func (i *Intent) touch() {
	i.UpdatedAt = time.Now().UTC()
}

// TimeOfDayBucket maps a wall-clock trigger to the coarse bucket the
// script generator is prompted with.
func TimeOfDayBucket(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 9:
		return "early_morning"
	case h >= 9 && h < 12:
		return "morning"
	case h >= 12 && h < 17:
		return "afternoon"
	case h >= 17 && h < 21:
		return "evening"
	default:
		return "night"
	}
}

type UpdateIntentRequest struct {
	Goal *string `json:"goal"`
	Tone *string `json:"tone"`
}
