package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/models"
)

type stubIntents struct {
	byID    map[uuid.UUID]*models.Intent
	updates int
}

func (s *stubIntents) GetByID(ctx context.Context, id uuid.UUID) (*models.Intent, error) {
	intent, ok := s.byID[id]
	if !ok {
		return nil, errors.New("intent not found")
	}
	return intent, nil
}

func (s *stubIntents) Update(ctx context.Context, intent *models.Intent) error {
	s.updates++
	return nil
}

type stubAlarms struct {
	byID map[uuid.UUID]*models.Alarm
}

func (s *stubAlarms) GetByID(ctx context.Context, id uuid.UUID) (*models.Alarm, error) {
	alarm, ok := s.byID[id]
	if !ok {
		return nil, errors.New("alarm not found")
	}
	return alarm, nil
}

func (s *stubAlarms) Update(ctx context.Context, alarm *models.Alarm) error {
	s.byID[alarm.ID] = alarm
	return nil
}

type stubScripts struct {
	script   string
	err      error
	calls    int
	lastGoal string
	lastTone string
	lastCtx  map[string]string
	hook     func()
}

func (s *stubScripts) Generate(ctx context.Context, goal, tone string, contextMap map[string]string) (string, error) {
	s.calls++
	s.lastGoal, s.lastTone, s.lastCtx = goal, tone, contextMap
	if s.hook != nil {
		s.hook()
	}
	if s.err != nil {
		return "", s.err
	}
	return s.script, nil
}

type stubSpeech struct {
	audio     []byte
	err       error
	calls     int
	lastVoice string
}

func (s *stubSpeech) Synthesize(ctx context.Context, script, voiceID string) ([]byte, error) {
	s.calls++
	s.lastVoice = voiceID
	if s.err != nil {
		return nil, s.err
	}
	return s.audio, nil
}

type stubAudioStore struct {
	err   error
	saved int
}

func (s *stubAudioStore) Save(intentID uuid.UUID, version int, audio []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saved++
	return fmt.Sprintf("/audio/%s_v%d.mp3", intentID, version), nil
}

type stubWeather struct {
	summary string
	err     error
}

func (s *stubWeather) Summary(ctx context.Context, lat, lon float64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.summary, nil
}

type stubCalendar struct {
	events []string
	err    error
}

func (s *stubCalendar) DaySummaries(ctx context.Context, feedURL string, day time.Time) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.events, nil
}

type stubRearmer struct {
	rearmed []uuid.UUID
}

func (s *stubRearmer) Reschedule(ctx context.Context, alarmID uuid.UUID) error {
	s.rearmed = append(s.rearmed, alarmID)
	return nil
}

type stubEvents struct {
	messages []models.WSMessage
}

func (s *stubEvents) PublishToUser(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error {
	s.messages = append(s.messages, msg)
	return nil
}

func (s *stubEvents) types() []string {
	out := make([]string, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.Type)
	}
	return out
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type orchFixture struct {
	intents *stubIntents
	alarms  *stubAlarms
	scripts *stubScripts
	speech  *stubSpeech
	audio   *stubAudioStore
	rearmer *stubRearmer
	events  *stubEvents
	orch    *Orchestrator
}

// Wednesday 2026-03-04 06:30 UTC, half an hour before the 07:00 trigger.
var halfHourBefore = time.Date(2026, 3, 4, 6, 30, 0, 0, time.UTC)
var triggerAt = time.Date(2026, 3, 4, 7, 0, 0, 0, time.UTC)

func newOrchFixture(now time.Time) *orchFixture {
	fx := &orchFixture{
		intents: &stubIntents{byID: make(map[uuid.UUID]*models.Intent)},
		alarms:  &stubAlarms{byID: make(map[uuid.UUID]*models.Alarm)},
		scripts: &stubScripts{script: "Good morning. Today you run."},
		speech:  &stubSpeech{audio: []byte("mp3-bytes")},
		audio:   &stubAudioStore{},
		rearmer: &stubRearmer{},
		events:  &stubEvents{},
	}
	fx.orch = NewOrchestrator(
		fx.intents, fx.alarms, fx.scripts, fx.speech, fx.audio,
		&stubWeather{summary: "4°C, clear"}, &stubCalendar{events: []string{"09:30 standup"}},
		fx.rearmer, fx.events, fixedClock{now: now},
		Config{
			LeadTime:      time.Hour,
			RetryInterval: 10 * time.Minute,
			CallTimeout:   30 * time.Second,
			ScriptModel:   "gemini-2.0-flash",
			TTSModel:      "neural2",
		},
		log.New(io.Discard),
	)
	return fx
}

func (fx *orchFixture) seedIntent(scheduledFor time.Time) (*models.Intent, *models.Alarm) {
	alarm := &models.Alarm{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Hour:            7,
		Minute:          0,
		Enabled:         true,
		VoiceID:         "en-US-Neural2-F",
		Tone:            "energetic",
		FallbackSoundID: "classic_bell",
		UseAIScript:     true,
	}
	fx.alarms.byID[alarm.ID] = alarm

	intent := models.NewIntent(alarm.UserID, &alarm.ID, "crush the morning run", "energetic", models.IntentContext{})
	intent.SetScheduledFor(scheduledFor)
	fx.intents.byID[intent.ID] = intent
	return intent, alarm
}

func TestEnsureContentHappyPath(t *testing.T) {
	fx := newOrchFixture(halfHourBefore)
	intent, alarm := fx.seedIntent(triggerAt)
	custom := "/recordings/me.m4a"
	alarm.CustomAudioPath = &custom

	if err := fx.orch.EnsureContent(context.Background(), intent.ID); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if intent.Status != models.IntentReady {
		t.Fatalf("expected ready, got %s", intent.Status)
	}
	content := intent.GeneratedContent
	if content == nil {
		t.Fatalf("expected content attached")
	}
	if content.Script != "Good morning. Today you run." {
		t.Fatalf("unexpected script %q", content.Script)
	}
	if content.AudioPath == "" {
		t.Fatalf("expected audio path recorded")
	}
	if content.ScriptModel != "gemini-2.0-flash" || content.TTSModel != "neural2" {
		t.Fatalf("expected model identifiers stamped, got %q/%q", content.ScriptModel, content.TTSModel)
	}

	if alarm.GeneratedContent != content {
		t.Fatalf("content must be written into the owning alarm")
	}
	if alarm.CustomAudioPath != nil {
		t.Fatalf("fresh content must clear the custom recording")
	}
	if len(fx.rearmer.rearmed) != 1 || fx.rearmer.rearmed[0] != alarm.ID {
		t.Fatalf("success must re-arm the alarm, got %v", fx.rearmer.rearmed)
	}
	if fx.speech.lastVoice != "en-US-Neural2-F" {
		t.Fatalf("synthesis must use the alarm's voice, got %q", fx.speech.lastVoice)
	}

	types := fx.events.types()
	if len(types) != 2 || types[0] != models.EventGenerationStatus || types[1] != models.EventGenerationReady {
		t.Fatalf("unexpected event sequence %v", types)
	}
}

func TestEnsureContentEnrichesContext(t *testing.T) {
	fx := newOrchFixture(halfHourBefore)
	intent, _ := fx.seedIntent(triggerAt)
	lat, lon := 59.91, 10.75
	intent.Context.Latitude = &lat
	intent.Context.Longitude = &lon
	intent.Context.CalendarFeedURL = "https://example.com/cal.ics"

	if err := fx.orch.EnsureContent(context.Background(), intent.ID); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	got := fx.scripts.lastCtx
	if got["weather"] != "4°C, clear" {
		t.Fatalf("weather missing from prompt context: %v", got)
	}
	if got["calendar_events"] != "09:30 standup" {
		t.Fatalf("calendar events missing from prompt context: %v", got)
	}
	if got["day_of_week"] != "Wednesday" {
		t.Fatalf("expected Wednesday, got %q", got["day_of_week"])
	}
	if got["time_of_day"] != "early_morning" {
		t.Fatalf("expected early_morning for a 07:00 trigger, got %q", got["time_of_day"])
	}
}

func TestEnsureContentNotDue(t *testing.T) {
	fx := newOrchFixture(triggerAt.Add(-3 * time.Hour))
	intent, _ := fx.seedIntent(triggerAt)

	err := fx.orch.EnsureContent(context.Background(), intent.ID)

	var notDue *NotDueError
	if !errors.As(err, &notDue) {
		t.Fatalf("expected NotDueError, got %v", err)
	}
	if !notDue.OpensAt.Equal(triggerAt.Add(-time.Hour)) {
		t.Fatalf("window opens at %s, want %s", notDue.OpensAt, triggerAt.Add(-time.Hour))
	}
	if intent.Status != models.IntentPending {
		t.Fatalf("intent must stay pending, got %s", intent.Status)
	}
	if fx.scripts.calls != 0 {
		t.Fatalf("no generation may run outside the window")
	}
}

func TestEnsureContentPastDueStillGenerates(t *testing.T) {
	fx := newOrchFixture(triggerAt.Add(2 * time.Minute))
	intent, _ := fx.seedIntent(triggerAt)

	if err := fx.orch.EnsureContent(context.Background(), intent.ID); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if intent.Status != models.IntentReady {
		t.Fatalf("past-due pending intent should still generate, got %s", intent.Status)
	}
}

func TestEnsureContentNoopStates(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*models.Intent)
	}{
		{"generating", func(i *models.Intent) {
			i.BeginGeneration()
		}},
		{"used", func(i *models.Intent) {
			i.BeginGeneration()
			i.CompleteGeneration(models.NewGeneratedContent("s", "v", "t", halfHourBefore))
			i.MarkUsed()
		}},
		{"ready and fresh", func(i *models.Intent) {
			i.BeginGeneration()
			c := models.NewGeneratedContent("s", "v", "t", halfHourBefore.Add(-time.Hour))
			c.AudioPath = "/audio/fresh.mp3"
			i.CompleteGeneration(c)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newOrchFixture(halfHourBefore)
			intent, _ := fx.seedIntent(triggerAt)
			tc.setup(intent)
			before := intent.State()

			if err := fx.orch.EnsureContent(context.Background(), intent.ID); err != nil {
				t.Fatalf("ensure: %v", err)
			}
			if intent.State() != before {
				t.Fatalf("state changed from %+v to %+v", before, intent.State())
			}
			if fx.scripts.calls != 0 {
				t.Fatalf("no generation attempt expected")
			}
		})
	}
}

func TestEnsureContentRegeneratesExpiredReady(t *testing.T) {
	fx := newOrchFixture(halfHourBefore)
	intent, _ := fx.seedIntent(triggerAt)
	intent.BeginGeneration()
	stale := models.NewGeneratedContent("old", "v", "t", halfHourBefore.Add(-8*24*time.Hour))
	stale.AudioPath = "/audio/stale.mp3"
	intent.CompleteGeneration(stale)
	version := intent.Version

	if err := fx.orch.EnsureContent(context.Background(), intent.ID); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if intent.Status != models.IntentReady {
		t.Fatalf("expected regenerated ready intent, got %s", intent.Status)
	}
	if intent.GeneratedContent == stale {
		t.Fatalf("expired content must be replaced")
	}
	if intent.Version != version+1 {
		t.Fatalf("silent regeneration starts a fresh cycle")
	}
	if fx.scripts.calls != 1 {
		t.Fatalf("expected one generation attempt, got %d", fx.scripts.calls)
	}
}

func TestEnsureContentTimeout(t *testing.T) {
	fx := newOrchFixture(halfHourBefore)
	intent, _ := fx.seedIntent(triggerAt)
	fx.scripts.err = context.DeadlineExceeded

	err := fx.orch.EnsureContent(context.Background(), intent.ID)
	if !errors.Is(err, ErrGenerationTimeout) {
		t.Fatalf("expected ErrGenerationTimeout, got %v", err)
	}
	if intent.State() != (models.IntentState{Status: models.IntentFailed, Reason: models.FailReasonTimeout}) {
		t.Fatalf("unexpected state %+v", intent.State())
	}
}

func TestEnsureContentScriptFailure(t *testing.T) {
	fx := newOrchFixture(halfHourBefore)
	intent, _ := fx.seedIntent(triggerAt)
	fx.scripts.err = errors.New("model unavailable")

	err := fx.orch.EnsureContent(context.Background(), intent.ID)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if intent.FailReason != models.FailReasonScript {
		t.Fatalf("expected script failure reason, got %q", intent.FailReason)
	}
	if intent.Attempts != 1 {
		t.Fatalf("expected one consumed attempt, got %d", intent.Attempts)
	}
	if len(fx.rearmer.rearmed) != 0 {
		t.Fatalf("first failure leaves the retry pending, no re-arm yet")
	}
}

func TestEnsureContentSynthesisFailure(t *testing.T) {
	fx := newOrchFixture(halfHourBefore)
	intent, _ := fx.seedIntent(triggerAt)
	fx.speech.err = errors.New("tts quota exhausted")

	err := fx.orch.EnsureContent(context.Background(), intent.ID)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if intent.FailReason != models.FailReasonSynthesis {
		t.Fatalf("expected synthesis failure reason, got %q", intent.FailReason)
	}
}

func TestEnsureContentSingleAutoRetryThenFallback(t *testing.T) {
	fx := newOrchFixture(halfHourBefore)
	intent, alarm := fx.seedIntent(triggerAt)
	fx.scripts.err = errors.New("model unavailable")

	ctx := context.Background()

	// First attempt fails and leaves the single retry available.
	if err := fx.orch.EnsureContent(ctx, intent.ID); err == nil {
		t.Fatalf("expected first attempt to fail")
	}
	if intent.Attempts != 1 || intent.Status != models.IntentFailed {
		t.Fatalf("after first failure: %s attempts=%d", intent.Status, intent.Attempts)
	}

	// The re-enqueued job resumes the automatic retry, which also fails.
	if err := fx.orch.EnsureContent(ctx, intent.ID); err == nil {
		t.Fatalf("expected retry to fail")
	}
	if intent.Attempts != 2 || intent.Status != models.IntentFailed {
		t.Fatalf("after retry: %s attempts=%d", intent.Status, intent.Attempts)
	}
	if len(fx.rearmer.rearmed) != 1 || fx.rearmer.rearmed[0] != alarm.ID {
		t.Fatalf("terminal failure must re-arm the traditional sound, got %v", fx.rearmer.rearmed)
	}

	// The budget is spent; nothing more runs.
	if err := fx.orch.EnsureContent(ctx, intent.ID); err != nil {
		t.Fatalf("exhausted intent should be a no-op, got %v", err)
	}
	if fx.scripts.calls != 2 {
		t.Fatalf("expected exactly two attempts, got %d", fx.scripts.calls)
	}
}

func TestEnsureContentNoRetryAfterTrigger(t *testing.T) {
	fx := newOrchFixture(triggerAt.Add(time.Minute))
	intent, _ := fx.seedIntent(triggerAt)
	intent.BeginGeneration()
	intent.FailGeneration(models.FailReasonScript)

	if err := fx.orch.EnsureContent(context.Background(), intent.ID); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if intent.Status != models.IntentFailed {
		t.Fatalf("no retry may run once the trigger has passed, got %s", intent.Status)
	}
	if fx.scripts.calls != 0 {
		t.Fatalf("no generation attempt expected")
	}
}

func TestEnsureContentDiscardsStaleResult(t *testing.T) {
	fx := newOrchFixture(halfHourBefore)
	intent, _ := fx.seedIntent(triggerAt)

	// The user edits the goal while the attempt is in flight.
	fx.scripts.hook = func() {
		intent.SetGoal("completely different plans")
	}

	if err := fx.orch.EnsureContent(context.Background(), intent.ID); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if intent.Status != models.IntentPending {
		t.Fatalf("edited intent must stay pending, got %s", intent.Status)
	}
	if intent.GeneratedContent != nil {
		t.Fatalf("stale result must be discarded")
	}
	if len(fx.rearmer.rearmed) != 0 {
		t.Fatalf("discarded result must not re-arm anything")
	}
	for _, typ := range fx.events.types() {
		if typ == models.EventGenerationReady {
			t.Fatalf("discarded result must not announce readiness")
		}
	}
}
