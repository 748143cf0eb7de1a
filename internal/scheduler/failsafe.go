package scheduler

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/wake"
)

// FailSafeMonitor guarantees the user is woken even if generation,
// caching or playback of the primary audio all fail. For every armed
// primary it arms a second, independent wake a fixed grace interval
// later. The backup payload is always the bundled sound so it cannot
// share a failure mode with the generation pipeline.
//
// The two timers are deliberate redundancy. Do not collapse them.
type FailSafeMonitor struct {
	armer         wake.Armer
	grace         time.Duration
	backupSoundID string
	logger        *log.Logger
}

func NewFailSafeMonitor(armer wake.Armer, grace time.Duration, backupSoundID string, logger *log.Logger) *FailSafeMonitor {
	return &FailSafeMonitor{
		armer:         armer,
		grace:         grace,
		backupSoundID: backupSoundID,
		logger:        logger,
	}
}

// Arm schedules the backup wake at primaryAt plus the grace interval.
func (m *FailSafeMonitor) Arm(alarmID uuid.UUID, primaryAt time.Time) error {
	at := primaryAt.Add(m.grace)
	payload := wake.Payload{SoundID: m.backupSoundID}
	if err := m.armer.Arm(wake.Backup(alarmID), at, payload); err != nil {
		return fmt.Errorf("arm backup wake: %w", err)
	}
	m.logger.Debug("backup wake armed", "alarm_id", alarmID, "at", at)
	return nil
}

// Acknowledge cancels the pending backup. Called when the user
// snoozes or dismisses the primary within the grace window, and when
// an alarm is unscheduled.
func (m *FailSafeMonitor) Acknowledge(alarmID uuid.UUID) {
	if err := m.armer.Disarm(wake.Backup(alarmID)); err != nil {
		m.logger.Warn("backup disarm failed", "alarm_id", alarmID, "error", err)
	}
}
