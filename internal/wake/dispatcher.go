package wake

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// FireFunc receives wakes as they come due.
type FireFunc func(id ID, at time.Time, payload Payload)

// Dispatcher is an in-process Armer backed by one timer per armed
// wake. Timers do not survive a restart; boot replay re-arms them.
type Dispatcher struct {
	mu     sync.Mutex
	armed  map[ID]*armedWake
	fire   FireFunc
	logger *log.Logger
}

type armedWake struct {
	at      time.Time
	payload Payload
	timer   *time.Timer
}

func NewDispatcher(logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		armed:  make(map[ID]*armedWake),
		logger: logger,
	}
}

// Bind sets the fire callback. The scheduler is constructed after the
// dispatcher, so the callback cannot be a constructor argument.
func (d *Dispatcher) Bind(fire FireFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fire = fire
}

func (d *Dispatcher) Arm(id ID, at time.Time, payload Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cur, ok := d.armed[id]; ok {
		if cur.at.Equal(at) && cur.payload == payload {
			return nil
		}
		cur.timer.Stop()
		delete(d.armed, id)
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	w := &armedWake{at: at, payload: payload}
	w.timer = time.AfterFunc(delay, func() { d.dispatch(id) })
	d.armed[id] = w

	d.logger.Debug("wake armed", "alarm_id", id.AlarmID, "kind", id.Kind, "at", at)
	return nil
}

func (d *Dispatcher) Disarm(id ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if w, ok := d.armed[id]; ok {
		w.timer.Stop()
		delete(d.armed, id)
		d.logger.Debug("wake disarmed", "alarm_id", id.AlarmID, "kind", id.Kind)
	}
	return nil
}

func (d *Dispatcher) dispatch(id ID) {
	d.mu.Lock()
	w, ok := d.armed[id]
	if ok {
		delete(d.armed, id)
	}
	fire := d.fire
	d.mu.Unlock()

	if !ok {
		return
	}
	if fire == nil {
		d.logger.Error("wake fired with no handler bound", "alarm_id", id.AlarmID, "kind", id.Kind)
		return
	}
	fire(id, w.at, w.payload)
}

// Armed reports the pending instant for a wake slot.
func (d *Dispatcher) Armed(id ID) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.armed[id]
	if !ok {
		return time.Time{}, false
	}
	return w.at, true
}

// ArmedCount reports how many wakes are pending.
func (d *Dispatcher) ArmedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.armed)
}

// Shutdown stops every pending timer.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, w := range d.armed {
		w.timer.Stop()
		delete(d.armed, id)
	}
}
