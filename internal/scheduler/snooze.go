package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/models"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/wake"
)

// SnoozeController governs what a fired alarm may do next: snooze
// again, bounded by the alarm's snooze budget, or be dismissed.
type SnoozeController struct {
	delivery *DeliveryScheduler
	armer    wake.Armer
	failsafe *FailSafeMonitor
	alarms   AlarmStore
	events   EventPublisher
	clock    Clock
	logger   *log.Logger
}

func NewSnoozeController(
	delivery *DeliveryScheduler,
	armer wake.Armer,
	failsafe *FailSafeMonitor,
	alarms AlarmStore,
	events EventPublisher,
	clock Clock,
	logger *log.Logger,
) *SnoozeController {
	return &SnoozeController{
		delivery: delivery,
		armer:    armer,
		failsafe: failsafe,
		alarms:   alarms,
		events:   events,
		clock:    clock,
		logger:   logger,
	}
}

// Snooze re-arms the fired alarm a fixed duration from now. The
// repeat pattern is not consulted; a snooze is always a short
// one-shot. Returns the re-fire instant.
func (c *SnoozeController) Snooze(ctx context.Context, alarmID uuid.UUID) (time.Time, error) {
	alarm, err := c.alarms.GetByID(ctx, alarmID)
	if err != nil {
		return time.Time{}, fmt.Errorf("load alarm: %w", err)
	}

	if err := alarm.RecordSnooze(); err != nil {
		return time.Time{}, err
	}
	if err := c.alarms.Update(ctx, alarm); err != nil {
		return time.Time{}, fmt.Errorf("persist alarm: %w", err)
	}

	c.failsafe.Acknowledge(alarm.ID)

	now := c.clock.Now()
	refireAt := now.Add(alarm.SnoozeDuration)
	payload := c.delivery.payloadFor(alarm, now)

	if err := c.armer.Arm(wake.Primary(alarm.ID), refireAt, payload); err != nil {
		return time.Time{}, c.delivery.armingFailure(ctx, alarm, err)
	}
	if err := c.failsafe.Arm(alarm.ID, refireAt); err != nil {
		return time.Time{}, c.delivery.armingFailure(ctx, alarm, err)
	}

	c.delivery.publish(ctx, alarm.UserID, models.WSMessage{
		Type: models.EventAlarmSnoozed,
		Payload: models.SnoozeEvent{
			AlarmID:     alarm.ID,
			SnoozeCount: alarm.CurrentSnoozeCount,
			RefireAt:    refireAt,
		},
	})
	c.logger.Info("alarm snoozed",
		"alarm_id", alarm.ID,
		"count", alarm.CurrentSnoozeCount,
		"refire_at", refireAt,
	)
	return refireAt, nil
}

// Dismiss settles the firing: the snooze budget resets, the backup is
// acknowledged, and the delivery scheduler advances to the next
// occurrence.
func (c *SnoozeController) Dismiss(ctx context.Context, alarmID uuid.UUID) error {
	alarm, err := c.alarms.GetByID(ctx, alarmID)
	if err != nil {
		return fmt.Errorf("load alarm: %w", err)
	}

	alarm.ResetSnooze()
	if err := c.alarms.Update(ctx, alarm); err != nil {
		return fmt.Errorf("persist alarm: %w", err)
	}

	c.failsafe.Acknowledge(alarm.ID)

	if err := c.delivery.OnFired(ctx, alarm.ID); err != nil {
		return err
	}

	// OnFired may have disabled a one-time alarm; reload before
	// reporting the next occurrence.
	var next *time.Time
	if updated, err := c.alarms.GetByID(ctx, alarm.ID); err == nil {
		if at, ok := c.delivery.calc.NextTrigger(updated, c.clock.Now()); ok {
			next = &at
		}
	}
	c.delivery.publish(ctx, alarm.UserID, models.WSMessage{
		Type:    models.EventAlarmDismissed,
		Payload: models.DismissEvent{AlarmID: alarm.ID, NextTrigger: next},
	})
	c.logger.Info("alarm dismissed", "alarm_id", alarm.ID)
	return nil
}
