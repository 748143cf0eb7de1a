package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/models"
)

var (
	ErrGenerationTimeout = errors.New("generation timed out")
	ErrGenerationFailed  = errors.New("generation failed")
)

// NotDueError is returned when an intent's generation window has not
// opened yet. Workers re-enqueue the job for OpensAt.
type NotDueError struct {
	OpensAt time.Time
}

func (e *NotDueError) Error() string {
	return fmt.Sprintf("generation not due until %s", e.OpensAt.Format(time.RFC3339))
}

// One original attempt plus the single automatic retry.
const maxGenerationAttempts = 2

type ScriptGenerator interface {
	Generate(ctx context.Context, goal, tone string, contextMap map[string]string) (string, error)
}

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, script, voiceID string) ([]byte, error)
}

// AudioStore persists synthesized audio and returns a servable path.
type AudioStore interface {
	Save(intentID uuid.UUID, version int, audio []byte) (string, error)
}

type WeatherProvider interface {
	Summary(ctx context.Context, lat, lon float64) (string, error)
}

type CalendarProvider interface {
	DaySummaries(ctx context.Context, feedURL string, day time.Time) ([]string, error)
}

type IntentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Intent, error)
	Update(ctx context.Context, intent *models.Intent) error
}

type AlarmStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Alarm, error)
	Update(ctx context.Context, alarm *models.Alarm) error
}

// Rearmer lets a settled generation update what the wake will play.
type Rearmer interface {
	Reschedule(ctx context.Context, alarmID uuid.UUID) error
}

type EventPublisher interface {
	PublishToUser(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error
}

type Clock interface {
	Now() time.Time
}

type Config struct {
	LeadTime      time.Duration
	RetryInterval time.Duration
	CallTimeout   time.Duration
	ScriptModel   string
	TTSModel      string
}

// Orchestrator drives an intent to ready before its trigger: script
// generation, speech synthesis, audio persistence, and the write-back
// into the owning alarm. Failures leave the intent failed; the wake
// still fires on the traditional sound.
type Orchestrator struct {
	intents  IntentStore
	alarms   AlarmStore
	scripts  ScriptGenerator
	speech   SpeechSynthesizer
	audio    AudioStore
	weather  WeatherProvider
	calendar CalendarProvider
	rearmer  Rearmer
	events   EventPublisher
	clock    Clock
	cfg      Config
	logger   *log.Logger
}

func NewOrchestrator(
	intents IntentStore,
	alarms AlarmStore,
	scripts ScriptGenerator,
	speech SpeechSynthesizer,
	audio AudioStore,
	weather WeatherProvider,
	calendar CalendarProvider,
	rearmer Rearmer,
	events EventPublisher,
	clock Clock,
	cfg Config,
	logger *log.Logger,
) *Orchestrator {
	return &Orchestrator{
		intents:  intents,
		alarms:   alarms,
		scripts:  scripts,
		speech:   speech,
		audio:    audio,
		weather:  weather,
		calendar: calendar,
		rearmer:  rearmer,
		events:   events,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// EnsureContent makes exactly one generation attempt if the intent
// needs one and its lead-time window is open. Ready-and-fresh content
// is a no-op; an in-flight attempt is a no-op; expired ready content
// is regenerated silently. A failed intent resumes its one automatic
// retry, provided the attempt budget and the trigger time allow it.
func (o *Orchestrator) EnsureContent(ctx context.Context, intentID uuid.UUID) error {
	intent, err := o.intents.GetByID(ctx, intentID)
	if err != nil {
		return fmt.Errorf("load intent: %w", err)
	}
	now := o.clock.Now()

	switch intent.Status {
	case models.IntentGenerating, models.IntentUsed:
		return nil
	case models.IntentReady:
		if intent.GeneratedContent != nil && !intent.GeneratedContent.IsExpired(now) {
			return nil
		}
		o.logger.Info("ready content expired, regenerating", "intent_id", intent.ID)
		intent.Retry()
		if err := o.intents.Update(ctx, intent); err != nil {
			return fmt.Errorf("persist intent: %w", err)
		}
	case models.IntentFailed:
		if intent.Attempts >= maxGenerationAttempts || !now.Before(intent.ScheduledFor) {
			return nil
		}
		if err := intent.AutoRetry(); err != nil {
			return nil
		}
		if err := o.intents.Update(ctx, intent); err != nil {
			return fmt.Errorf("persist intent: %w", err)
		}
		o.logger.Info("resuming automatic retry", "intent_id", intent.ID, "attempt", intent.Attempts+1)
	}

	if opensAt := intent.ScheduledFor.Add(-o.cfg.LeadTime); now.Before(opensAt) {
		return &NotDueError{OpensAt: opensAt}
	}

	token := intent.Version
	if err := intent.BeginGeneration(); err != nil {
		return nil
	}
	if err := o.intents.Update(ctx, intent); err != nil {
		return fmt.Errorf("persist intent: %w", err)
	}
	o.publish(ctx, intent.UserID, models.WSMessage{
		Type: models.EventGenerationStatus,
		Payload: models.GenerationStatusEvent{
			IntentID: intent.ID,
			AlarmID:  intent.AlarmID,
			Status:   string(intent.Status),
			Attempt:  intent.Attempts,
		},
	})

	started := o.clock.Now()
	content, reason, genErr := o.produce(ctx, intent)
	if genErr != nil {
		return o.settleFailure(ctx, intent.ID, token, reason, genErr)
	}
	content.GenerationLatency = o.clock.Now().Sub(started)
	return o.settleSuccess(ctx, intent.ID, token, content)
}

// produce runs the two external calls and persists the audio. The
// returned reason is the machine string recorded on failure.
func (o *Orchestrator) produce(ctx context.Context, intent *models.Intent) (*models.GeneratedContent, string, error) {
	o.enrichContext(ctx, intent)

	script, err := o.generateScript(ctx, intent)
	if err != nil {
		if errors.Is(err, ErrGenerationTimeout) {
			return nil, models.FailReasonTimeout, err
		}
		return nil, models.FailReasonScript, err
	}

	voiceID := o.voiceFor(ctx, intent)
	audio, err := o.synthesize(ctx, script, voiceID)
	if err != nil {
		if errors.Is(err, ErrGenerationTimeout) {
			return nil, models.FailReasonTimeout, err
		}
		return nil, models.FailReasonSynthesis, err
	}

	path, err := o.audio.Save(intent.ID, intent.Version, audio)
	if err != nil {
		return nil, models.FailReasonAudio, fmt.Errorf("%w: save audio: %v", ErrGenerationFailed, err)
	}

	content := models.NewGeneratedContent(script, voiceID, intent.Tone, o.clock.Now())
	content.AudioPath = path
	content.ScriptModel = o.cfg.ScriptModel
	content.TTSModel = o.cfg.TTSModel
	return content, "", nil
}

func (o *Orchestrator) generateScript(ctx context.Context, intent *models.Intent) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	script, err := o.scripts.Generate(callCtx, intent.Goal, intent.Tone, intent.ContextForAI())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: script generation: %v", ErrGenerationTimeout, err)
		}
		return "", fmt.Errorf("%w: script generation: %v", ErrGenerationFailed, err)
	}
	if strings.TrimSpace(script) == "" {
		return "", fmt.Errorf("%w: script generation returned nothing", ErrGenerationFailed)
	}
	return script, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, script, voiceID string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	audio, err := o.speech.Synthesize(callCtx, script, voiceID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: speech synthesis: %v", ErrGenerationTimeout, err)
		}
		return nil, fmt.Errorf("%w: speech synthesis: %v", ErrGenerationFailed, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: speech synthesis returned no audio", ErrGenerationFailed)
	}
	return audio, nil
}

func (o *Orchestrator) voiceFor(ctx context.Context, intent *models.Intent) string {
	if intent.AlarmID == nil {
		return ""
	}
	alarm, err := o.alarms.GetByID(ctx, *intent.AlarmID)
	if err != nil {
		o.logger.Warn("load alarm for voice", "intent_id", intent.ID, "error", err)
		return ""
	}
	return alarm.VoiceID
}

// settleSuccess commits a finished attempt unless the intent moved on
// while we were generating; a version mismatch means the goal or tone
// changed and the result is silently discarded.
func (o *Orchestrator) settleSuccess(ctx context.Context, intentID uuid.UUID, token int, content *models.GeneratedContent) error {
	intent, err := o.intents.GetByID(ctx, intentID)
	if err != nil {
		return fmt.Errorf("reload intent: %w", err)
	}
	if intent.Version != token || intent.Status != models.IntentGenerating {
		o.logger.Info("discarding stale generation result",
			"intent_id", intentID, "token", token, "version", intent.Version)
		return nil
	}

	if err := intent.CompleteGeneration(content); err != nil {
		return nil
	}
	if err := o.intents.Update(ctx, intent); err != nil {
		return fmt.Errorf("persist intent: %w", err)
	}

	if intent.AlarmID != nil {
		if alarm, err := o.alarms.GetByID(ctx, *intent.AlarmID); err == nil {
			alarm.SetGeneratedContent(content)
			if err := o.alarms.Update(ctx, alarm); err != nil {
				o.logger.Error("persist alarm content", "alarm_id", alarm.ID, "error", err)
			}
			if err := o.rearmer.Reschedule(ctx, alarm.ID); err != nil {
				o.logger.Error("re-arm with generated audio", "alarm_id", alarm.ID, "error", err)
			}
		}
	}

	o.publish(ctx, intent.UserID, models.WSMessage{
		Type: models.EventGenerationReady,
		Payload: models.GenerationReadyEvent{
			IntentID:       intent.ID,
			AlarmID:        intent.AlarmID,
			WordCount:      content.WordCount,
			SpokenSeconds:  int(content.SpokenDuration.Seconds()),
			AudioAvailable: content.AudioPath != "",
		},
	})
	o.logger.Info("content ready",
		"intent_id", intent.ID,
		"words", content.WordCount,
		"latency", content.GenerationLatency,
	)
	return nil
}

func (o *Orchestrator) settleFailure(ctx context.Context, intentID uuid.UUID, token int, reason string, cause error) error {
	intent, err := o.intents.GetByID(ctx, intentID)
	if err != nil {
		return fmt.Errorf("reload intent: %w", err)
	}
	if intent.Version != token || intent.Status != models.IntentGenerating {
		o.logger.Info("discarding stale generation failure", "intent_id", intentID)
		return nil
	}

	if err := intent.FailGeneration(reason); err != nil {
		return nil
	}
	if err := o.intents.Update(ctx, intent); err != nil {
		return fmt.Errorf("persist intent: %w", err)
	}

	willRetry := intent.Attempts < maxGenerationAttempts &&
		o.clock.Now().Add(o.cfg.RetryInterval).Before(intent.ScheduledFor)

	o.publish(ctx, intent.UserID, models.WSMessage{
		Type: models.EventGenerationFailed,
		Payload: models.GenerationFailedEvent{
			IntentID:  intent.ID,
			AlarmID:   intent.AlarmID,
			Reason:    reason,
			WillRetry: willRetry,
		},
	})
	o.logger.Error("generation failed",
		"intent_id", intent.ID,
		"reason", reason,
		"attempt", intent.Attempts,
		"will_retry", willRetry,
		"error", cause,
	)

	if !willRetry && intent.AlarmID != nil {
		// Terminal for this cycle: make sure the armed payload is the
		// traditional sound, not stale audio.
		if err := o.rearmer.Reschedule(ctx, *intent.AlarmID); err != nil {
			o.logger.Error("re-arm after terminal failure", "alarm_id", *intent.AlarmID, "error", err)
		}
	}
	return cause
}

func (o *Orchestrator) publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishToUser(ctx, userID, msg); err != nil {
		o.logger.Warn("event publish failed", "type", msg.Type, "error", err)
	}
}
