// Package wake models the platform wake primitive: the ability to
// fire an audio alert at a wall-clock instant even while the app is
// suspended. Every alarm owns two independent wake slots, a primary
// and a fail-safe backup.
package wake

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindPrimary Kind = "primary"
	KindBackup  Kind = "backup"
)

// ID names one of the two wake slots an alarm owns.
type ID struct {
	AlarmID uuid.UUID
	Kind    Kind
}

func Primary(alarmID uuid.UUID) ID { return ID{AlarmID: alarmID, Kind: KindPrimary} }

func Backup(alarmID uuid.UUID) ID { return ID{AlarmID: alarmID, Kind: KindBackup} }

// Payload is what the platform plays when the wake fires: a concrete
// audio file when one is available, and the bundled sound as the last
// line of defense.
type Payload struct {
	AudioPath string
	SoundID   string
}

// Armer is the platform boundary. Arming an already armed ID replaces
// the pending wake; arming with an identical instant and payload is a
// no-op.
type Armer interface {
	Arm(id ID, at time.Time, payload Payload) error
	Disarm(id ID) error
}
