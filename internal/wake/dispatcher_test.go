package wake

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

type firedWake struct {
	id      ID
	payload Payload
}

type fireRecorder struct {
	mu    sync.Mutex
	fired []firedWake
	ch    chan firedWake
}

func newFireRecorder() *fireRecorder {
	return &fireRecorder{ch: make(chan firedWake, 8)}
}

func (r *fireRecorder) fire(id ID, at time.Time, payload Payload) {
	r.mu.Lock()
	r.fired = append(r.fired, firedWake{id: id, payload: payload})
	r.mu.Unlock()
	r.ch <- firedWake{id: id, payload: payload}
}

func (r *fireRecorder) wait(t *testing.T) firedWake {
	t.Helper()
	select {
	case f := <-r.ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a wake to fire")
		return firedWake{}
	}
}

func testDispatcher() (*Dispatcher, *fireRecorder) {
	rec := newFireRecorder()
	d := NewDispatcher(log.New(io.Discard))
	d.Bind(rec.fire)
	return d, rec
}

func TestDispatcherFires(t *testing.T) {
	d, rec := testDispatcher()
	defer d.Shutdown()

	id := Primary(uuid.New())
	payload := Payload{AudioPath: "/audio/a.mp3", SoundID: "classic_bell"}
	if err := d.Arm(id, time.Now().Add(20*time.Millisecond), payload); err != nil {
		t.Fatalf("arm: %v", err)
	}

	fired := rec.wait(t)
	if fired.id != id {
		t.Fatalf("unexpected wake id: %+v", fired.id)
	}
	if fired.payload != payload {
		t.Fatalf("unexpected payload: %+v", fired.payload)
	}
	if d.ArmedCount() != 0 {
		t.Fatalf("fired wake should no longer be armed")
	}
}

func TestDispatcherRearmSameInstantIsNoop(t *testing.T) {
	d, _ := testDispatcher()
	defer d.Shutdown()

	id := Primary(uuid.New())
	at := time.Now().Add(time.Hour)
	payload := Payload{SoundID: "classic_bell"}

	if err := d.Arm(id, at, payload); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if err := d.Arm(id, at, payload); err != nil {
		t.Fatalf("re-arm: %v", err)
	}

	if d.ArmedCount() != 1 {
		t.Fatalf("expected exactly one armed wake, got %d", d.ArmedCount())
	}
}

func TestDispatcherRearmReplacesChangedWake(t *testing.T) {
	d, _ := testDispatcher()
	defer d.Shutdown()

	id := Primary(uuid.New())
	first := time.Now().Add(time.Hour)
	second := first.Add(30 * time.Minute)

	d.Arm(id, first, Payload{SoundID: "classic_bell"})
	d.Arm(id, second, Payload{SoundID: "classic_bell"})

	if d.ArmedCount() != 1 {
		t.Fatalf("expected exactly one armed wake, got %d", d.ArmedCount())
	}
	at, ok := d.Armed(id)
	if !ok || !at.Equal(second) {
		t.Fatalf("expected wake at %s, got %s", second, at)
	}
}

func TestDispatcherDisarmCancels(t *testing.T) {
	d, rec := testDispatcher()
	defer d.Shutdown()

	id := Primary(uuid.New())
	d.Arm(id, time.Now().Add(30*time.Millisecond), Payload{SoundID: "classic_bell"})
	if err := d.Disarm(id); err != nil {
		t.Fatalf("disarm: %v", err)
	}

	select {
	case f := <-rec.ch:
		t.Fatalf("disarmed wake fired: %+v", f)
	case <-time.After(100 * time.Millisecond):
	}
	if d.ArmedCount() != 0 {
		t.Fatalf("expected no armed wakes")
	}
}

func TestDispatcherBackupFiresAfterPrimary(t *testing.T) {
	d, rec := testDispatcher()
	defer d.Shutdown()

	alarmID := uuid.New()
	primaryAt := time.Now().Add(20 * time.Millisecond)
	d.Arm(Primary(alarmID), primaryAt, Payload{AudioPath: "/audio/a.mp3", SoundID: "classic_bell"})
	d.Arm(Backup(alarmID), primaryAt.Add(60*time.Millisecond), Payload{SoundID: "backup_chime"})

	first := rec.wait(t)
	second := rec.wait(t)

	if first.id.Kind != KindPrimary {
		t.Fatalf("expected primary to fire first, got %s", first.id.Kind)
	}
	if second.id.Kind != KindBackup {
		t.Fatalf("expected backup to fire second, got %s", second.id.Kind)
	}
	if second.payload.AudioPath != "" {
		t.Fatalf("backup must never carry generated audio, got %q", second.payload.AudioPath)
	}
}

func TestDispatcherPastInstantFiresImmediately(t *testing.T) {
	d, rec := testDispatcher()
	defer d.Shutdown()

	id := Primary(uuid.New())
	d.Arm(id, time.Now().Add(-time.Minute), Payload{SoundID: "classic_bell"})

	fired := rec.wait(t)
	if fired.id != id {
		t.Fatalf("expected past-due wake to fire, got %+v", fired.id)
	}
}
