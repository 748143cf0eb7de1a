package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/models"
	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/wake"
)

func TestSnoozeArmsRefire(t *testing.T) {
	alarm := weekdayAlarm()
	alarm.UseAIScript = false
	firedAt := time.Date(2026, 3, 4, 7, 0, 10, 0, time.UTC)
	fx := newSchedulerFixture(firedAt, alarm)

	// The firing left a backup pending.
	fx.failsafe.Arm(alarm.ID, firedAt.Add(-10*time.Second))

	refireAt, err := fx.snooze.Snooze(context.Background(), alarm.ID)
	if err != nil {
		t.Fatalf("snooze: %v", err)
	}

	wantRefire := firedAt.Add(9 * time.Minute)
	if !refireAt.Equal(wantRefire) {
		t.Fatalf("refire at %s, want %s", refireAt, wantRefire)
	}
	if alarm.CurrentSnoozeCount != 1 {
		t.Fatalf("expected snooze count 1, got %d", alarm.CurrentSnoozeCount)
	}

	primary, ok := fx.armer.slot(wake.Primary(alarm.ID))
	if !ok || !primary.at.Equal(wantRefire) {
		t.Fatalf("primary re-fire not armed at %s", wantRefire)
	}
	backup, ok := fx.armer.slot(wake.Backup(alarm.ID))
	if !ok || !backup.at.Equal(wantRefire.Add(90*time.Second)) {
		t.Fatalf("backup not re-armed behind the snooze re-fire")
	}
	if fx.events.lastType() != models.EventAlarmSnoozed {
		t.Fatalf("expected alarm_snoozed event, got %q", fx.events.lastType())
	}
}

func TestSnoozeRejectedAtLimit(t *testing.T) {
	alarm := weekdayAlarm()
	alarm.CurrentSnoozeCount = alarm.MaxSnoozeCount
	fx := newSchedulerFixture(tuesdayMorning, alarm)

	_, err := fx.snooze.Snooze(context.Background(), alarm.ID)
	if !errors.Is(err, models.ErrSnoozeLimit) {
		t.Fatalf("expected ErrSnoozeLimit, got %v", err)
	}
	if alarm.CurrentSnoozeCount != alarm.MaxSnoozeCount {
		t.Fatalf("rejected snooze must not change the count")
	}
	if fx.armer.count() != 0 {
		t.Fatalf("rejected snooze must not arm anything")
	}
}

func TestSnoozeRejectedWhenDisabled(t *testing.T) {
	alarm := weekdayAlarm()
	alarm.SnoozeEnabled = false
	fx := newSchedulerFixture(tuesdayMorning, alarm)

	_, err := fx.snooze.Snooze(context.Background(), alarm.ID)
	if !errors.Is(err, models.ErrSnoozeDisabled) {
		t.Fatalf("expected ErrSnoozeDisabled, got %v", err)
	}
}

func TestDismissAdvancesToNextOccurrence(t *testing.T) {
	alarm := weekdayAlarm()
	alarm.UseAIScript = false
	alarm.CurrentSnoozeCount = 2
	dismissedAt := time.Date(2026, 3, 4, 7, 2, 0, 0, time.UTC) // Wednesday
	fx := newSchedulerFixture(dismissedAt, alarm)

	fx.failsafe.Arm(alarm.ID, dismissedAt.Add(-2*time.Minute))

	if err := fx.snooze.Dismiss(context.Background(), alarm.ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	if alarm.CurrentSnoozeCount != 0 {
		t.Fatalf("dismissal must reset the snooze count, got %d", alarm.CurrentSnoozeCount)
	}
	if alarm.LastTriggeredAt == nil || !alarm.LastTriggeredAt.Equal(dismissedAt) {
		t.Fatalf("dismissal must mark the alarm triggered")
	}

	wantNext := time.Date(2026, 3, 6, 7, 0, 0, 0, time.UTC) // Friday
	primary, ok := fx.armer.slot(wake.Primary(alarm.ID))
	if !ok || !primary.at.Equal(wantNext) {
		t.Fatalf("next occurrence not armed at %s", wantNext)
	}
	backup, ok := fx.armer.slot(wake.Backup(alarm.ID))
	if !ok || !backup.at.Equal(wantNext.Add(90*time.Second)) {
		t.Fatalf("backup not armed behind the next occurrence")
	}

	if fx.events.lastType() != models.EventAlarmDismissed {
		t.Fatalf("expected alarm_dismissed event, got %q", fx.events.lastType())
	}
	dismissed, okPayload := fx.events.messages[len(fx.events.messages)-1].Payload.(models.DismissEvent)
	if !okPayload {
		t.Fatalf("unexpected dismiss payload type %T", fx.events.messages[len(fx.events.messages)-1].Payload)
	}
	if dismissed.NextTrigger == nil || !dismissed.NextTrigger.Equal(wantNext) {
		t.Fatalf("dismiss event should carry the next trigger, got %v", dismissed.NextTrigger)
	}
}

func TestDismissOneTimeRetires(t *testing.T) {
	alarm := weekdayAlarm()
	alarm.UseAIScript = false
	alarm.RepeatDays = nil
	dismissedAt := time.Date(2026, 3, 4, 6, 31, 0, 0, time.UTC)
	fx := newSchedulerFixture(dismissedAt, alarm)

	fx.armer.Arm(wake.Primary(alarm.ID), dismissedAt.Add(-time.Minute), wake.Payload{SoundID: "classic_bell"})
	fx.failsafe.Arm(alarm.ID, dismissedAt.Add(-time.Minute))

	if err := fx.snooze.Dismiss(context.Background(), alarm.ID); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	if alarm.Enabled {
		t.Fatalf("one-time alarm must be disabled on dismissal")
	}
	if fx.armer.count() != 0 {
		t.Fatalf("retired alarm must have no armed wakes, got %d", fx.armer.count())
	}

	dismissed := fx.events.messages[len(fx.events.messages)-1].Payload.(models.DismissEvent)
	if dismissed.NextTrigger != nil {
		t.Fatalf("retired alarm must not advertise a next trigger")
	}
}
