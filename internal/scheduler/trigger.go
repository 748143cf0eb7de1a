package scheduler

import (
	"time"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/models"
)

// TriggerCalculator computes the next wall-clock instant an alarm
// should fire. It is pure: callers supply "now" and the result only
// depends on the arguments.
type TriggerCalculator struct{}

func NewTriggerCalculator() *TriggerCalculator {
	return &TriggerCalculator{}
}

// NextTrigger returns the earliest firing instant at or after now, in
// now's location. The second return is false when the alarm is
// disabled or its repeat set yields no occurrence.
//
// One-time alarms fire today at their time of day, or tomorrow if
// that has already passed. Repeating alarms scan today plus seven
// more days and take the first day whose weekday is in the repeat
// set; "now" lower-bounds only day zero. The constructed candidate's
// weekday is checked again before returning, so a daylight-saving or
// month-boundary shift can never produce an off-pattern firing.
func (TriggerCalculator) NextTrigger(alarm *models.Alarm, now time.Time) (time.Time, bool) {
	if alarm == nil || !alarm.Enabled {
		return time.Time{}, false
	}

	hour, minute := alarm.TimeOfDay()

	if alarm.IsOneTime() {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if candidate.Before(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, true
	}

	targets := make(map[time.Weekday]bool, len(alarm.RepeatDays))
	for _, d := range alarm.RepeatDays {
		if d >= time.Sunday && d <= time.Saturday {
			targets[d] = true
		}
	}

	for offset := 0; offset <= 7; offset++ {
		day := now.AddDate(0, 0, offset)
		weekday := day.Weekday()
		if !targets[weekday] {
			continue
		}

		candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
		if offset == 0 && candidate.Before(now) {
			continue
		}
		if candidate.Weekday() != weekday {
			continue
		}
		return candidate, true
	}

	return time.Time{}, false
}
