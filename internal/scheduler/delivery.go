package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/models"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/wake"
)

// ErrArmingFailed means the platform refused to schedule a wake. It
// is the one failure the app must show the user, because it cannot be
// compensated for internally.
var ErrArmingFailed = errors.New("platform refused to arm wake")

const wakeHandleTimeout = 10 * time.Second

type AlarmStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Alarm, error)
	ListEnabled(ctx context.Context) ([]*models.Alarm, error)
	Update(ctx context.Context, alarm *models.Alarm) error
}

type IntentStore interface {
	GetByAlarmID(ctx context.Context, alarmID uuid.UUID) (*models.Intent, error)
	Update(ctx context.Context, intent *models.Intent) error
}

// GenerationQueue hands an intent to the background workers.
type GenerationQueue interface {
	Enqueue(ctx context.Context, intentID uuid.UUID) error
}

type EventPublisher interface {
	PublishToUser(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error
}

// DeliveryScheduler is the single source of truth for what fires
// next. Every alarm mutation funnels through Schedule or Reschedule,
// which arm the primary wake, the fail-safe backup, and kick off
// content generation when the alarm wants an AI script.
type DeliveryScheduler struct {
	calc     *TriggerCalculator
	armer    wake.Armer
	failsafe *FailSafeMonitor
	alarms   AlarmStore
	intents  IntentStore
	queue    GenerationQueue
	events   EventPublisher
	clock    Clock
	logger   *log.Logger
}

func NewDeliveryScheduler(
	calc *TriggerCalculator,
	armer wake.Armer,
	failsafe *FailSafeMonitor,
	alarms AlarmStore,
	intents IntentStore,
	queue GenerationQueue,
	events EventPublisher,
	clock Clock,
	logger *log.Logger,
) *DeliveryScheduler {
	return &DeliveryScheduler{
		calc:     calc,
		armer:    armer,
		failsafe: failsafe,
		alarms:   alarms,
		intents:  intents,
		queue:    queue,
		events:   events,
		clock:    clock,
		logger:   logger,
	}
}

// Schedule computes the alarm's next trigger and arms both wake
// slots for it. Without a trigger it disarms instead. Safe to call
// repeatedly; the armer deduplicates identical arms.
func (s *DeliveryScheduler) Schedule(ctx context.Context, alarm *models.Alarm) error {
	now := s.clock.Now()

	trigger, ok := s.calc.NextTrigger(alarm, now)
	if !ok {
		if err := s.armer.Disarm(wake.Primary(alarm.ID)); err != nil {
			s.logger.Warn("primary disarm failed", "alarm_id", alarm.ID, "error", err)
		}
		s.failsafe.Acknowledge(alarm.ID)
		s.logger.Debug("alarm unscheduled", "alarm_id", alarm.ID, "enabled", alarm.Enabled)
		return nil
	}

	intent := s.alignIntent(ctx, alarm, trigger)

	payload := s.payloadFor(alarm, now)
	if err := s.armer.Arm(wake.Primary(alarm.ID), trigger, payload); err != nil {
		return s.armingFailure(ctx, alarm, err)
	}
	if err := s.failsafe.Arm(alarm.ID, trigger); err != nil {
		return s.armingFailure(ctx, alarm, err)
	}

	if alarm.UseAIScript && intent != nil {
		if err := s.queue.Enqueue(ctx, intent.ID); err != nil {
			s.logger.Error("generation enqueue failed", "intent_id", intent.ID, "error", err)
		}
	}

	s.logger.Info("alarm armed",
		"alarm_id", alarm.ID,
		"trigger", trigger,
		"ai_audio", payload.AudioPath != "",
	)
	return nil
}

// Reschedule reloads the alarm and re-runs Schedule. Handlers call it
// after every mutation; the worker calls it when generation settles.
func (s *DeliveryScheduler) Reschedule(ctx context.Context, alarmID uuid.UUID) error {
	alarm, err := s.alarms.GetByID(ctx, alarmID)
	if err != nil {
		return fmt.Errorf("load alarm: %w", err)
	}
	return s.Schedule(ctx, alarm)
}

// OnFired settles a firing that the user has dismissed: stamp the
// trigger, retire one-time alarms, and arm the next occurrence.
func (s *DeliveryScheduler) OnFired(ctx context.Context, alarmID uuid.UUID) error {
	alarm, err := s.alarms.GetByID(ctx, alarmID)
	if err != nil {
		return fmt.Errorf("load alarm: %w", err)
	}

	alarm.MarkTriggered(s.clock.Now())
	if alarm.IsOneTime() {
		alarm.SetEnabled(false)
	}
	if err := s.alarms.Update(ctx, alarm); err != nil {
		return fmt.Errorf("persist alarm: %w", err)
	}

	return s.Schedule(ctx, alarm)
}

// HandleWake is the platform callback for a due wake. It pushes the
// firing to the app and, for a consumed AI payload, marks the intent
// used. Scheduling only advances later, on dismissal.
func (s *DeliveryScheduler) HandleWake(id wake.ID, at time.Time, payload wake.Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), wakeHandleTimeout)
	defer cancel()

	alarm, err := s.alarms.GetByID(ctx, id.AlarmID)
	if err != nil {
		s.logger.Error("wake fired for unknown alarm", "alarm_id", id.AlarmID, "error", err)
		return
	}

	event := models.WakeEvent{
		AlarmID:   alarm.ID,
		FiredAt:   at,
		AudioPath: payload.AudioPath,
		SoundID:   payload.SoundID,
	}

	switch id.Kind {
	case wake.KindBackup:
		s.logger.Warn("backup wake fired", "alarm_id", alarm.ID)
		s.publish(ctx, alarm.UserID, models.WSMessage{Type: models.EventBackupFired, Payload: event})
	default:
		s.logger.Info("alarm fired", "alarm_id", alarm.ID, "ai_audio", payload.AudioPath != "")
		s.publish(ctx, alarm.UserID, models.WSMessage{Type: models.EventAlarmFired, Payload: event})
		s.consumeContent(ctx, alarm, payload)
	}
}

// RestoreAll replays Schedule for every enabled alarm. Run at boot:
// armed wakes do not survive a restart.
func (s *DeliveryScheduler) RestoreAll(ctx context.Context) error {
	alarms, err := s.alarms.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list enabled alarms: %w", err)
	}

	restored := 0
	for _, alarm := range alarms {
		if err := s.Schedule(ctx, alarm); err != nil {
			s.logger.Error("restore failed", "alarm_id", alarm.ID, "error", err)
			continue
		}
		restored++
	}

	s.logger.Info("alarm schedule restored", "alarms", len(alarms), "armed", restored)
	return nil
}

// alignIntent moves the alarm's intent onto the given trigger slot.
// Crossing into a new slot starts a fresh cycle: consumed or failed
// intents reset to pending and stale alarm audio is dropped so a
// failed regeneration degrades to the traditional sound rather than
// replaying last cycle's script.
func (s *DeliveryScheduler) alignIntent(ctx context.Context, alarm *models.Alarm, trigger time.Time) *models.Intent {
	if !alarm.UseAIScript {
		return nil
	}

	intent, err := s.intents.GetByAlarmID(ctx, alarm.ID)
	if err != nil {
		s.logger.Error("load intent", "alarm_id", alarm.ID, "error", err)
		return nil
	}
	if intent == nil {
		s.logger.Warn("alarm wants an AI script but has no intent", "alarm_id", alarm.ID)
		return nil
	}
	if intent.ScheduledFor.Equal(trigger) {
		return intent
	}

	intent.SetScheduledFor(trigger)
	if intent.Status == models.IntentUsed || intent.Status == models.IntentFailed {
		intent.Retry()
		alarm.ClearGeneratedContent()
		if err := s.alarms.Update(ctx, alarm); err != nil {
			s.logger.Error("persist alarm", "alarm_id", alarm.ID, "error", err)
		}
	}
	if err := s.intents.Update(ctx, intent); err != nil {
		s.logger.Error("persist intent", "intent_id", intent.ID, "error", err)
	}
	return intent
}

// payloadFor picks what the wake should play: generated audio when it
// is fresh, otherwise the user's custom recording, with the fallback
// sound always present.
func (s *DeliveryScheduler) payloadFor(alarm *models.Alarm, now time.Time) wake.Payload {
	payload := wake.Payload{SoundID: alarm.FallbackSoundID}
	if alarm.UseAIScript && alarm.GeneratedContent.Usable(now) {
		payload.AudioPath = alarm.GeneratedContent.AudioPath
		return payload
	}
	if alarm.CustomAudioPath != nil && *alarm.CustomAudioPath != "" {
		payload.AudioPath = *alarm.CustomAudioPath
	}
	return payload
}

func (s *DeliveryScheduler) consumeContent(ctx context.Context, alarm *models.Alarm, payload wake.Payload) {
	if !alarm.UseAIScript || payload.AudioPath == "" {
		return
	}

	intent, err := s.intents.GetByAlarmID(ctx, alarm.ID)
	if err != nil || intent == nil {
		return
	}
	if intent.Status != models.IntentReady || intent.GeneratedContent == nil {
		return
	}
	if intent.GeneratedContent.AudioPath != payload.AudioPath {
		return
	}

	if err := intent.MarkUsed(); err != nil {
		s.logger.Warn("mark used", "intent_id", intent.ID, "error", err)
		return
	}
	if err := s.intents.Update(ctx, intent); err != nil {
		s.logger.Error("persist intent", "intent_id", intent.ID, "error", err)
	}
}

func (s *DeliveryScheduler) armingFailure(ctx context.Context, alarm *models.Alarm, cause error) error {
	s.logger.Error("arming failed", "alarm_id", alarm.ID, "error", cause)
	s.publish(ctx, alarm.UserID, models.WSMessage{
		Type: models.EventArmingFailure,
		Payload: models.ArmingFailureEvent{
			AlarmID: alarm.ID,
			Message: "Your wake-up could not be scheduled. Check that alarms are allowed on this device.",
		},
	})
	return fmt.Errorf("%w: %v", ErrArmingFailed, cause)
}

func (s *DeliveryScheduler) publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishToUser(ctx, userID, msg); err != nil {
		s.logger.Warn("event publish failed", "type", msg.Type, "error", err)
	}
}
