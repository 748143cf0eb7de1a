package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/models"
)

type AlarmRepo struct {
	pool *pgxpool.Pool
}

func NewAlarmRepo(pool *pgxpool.Pool) *AlarmRepo {
	return &AlarmRepo{pool: pool}
}

const alarmColumns = `id, user_id, label, hour, minute, enabled, repeat_days, tone, voice_id,
	snooze_enabled, snooze_duration_seconds, max_snooze_count, current_snooze_count,
	last_triggered_at, fallback_sound_id, use_traditional_sound, use_ai_script,
	custom_audio_path, generated_content, created_at, updated_at`

func (r *AlarmRepo) Create(ctx context.Context, a *models.Alarm) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	repeatDays, content, err := marshalAlarmJSON(a)
	if err != nil {
		return err
	}

	query := `INSERT INTO alarms (` + alarmColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	_, err = r.pool.Exec(ctx, query,
		a.ID, a.UserID, a.Label, a.Hour, a.Minute, a.Enabled, repeatDays, a.Tone, a.VoiceID,
		a.SnoozeEnabled, int64(a.SnoozeDuration/time.Second), a.MaxSnoozeCount, a.CurrentSnoozeCount,
		a.LastTriggeredAt, a.FallbackSoundID, a.UseTraditionalSound, a.UseAIScript,
		a.CustomAudioPath, content, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (r *AlarmRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Alarm, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+alarmColumns+` FROM alarms WHERE id = $1`, id)
	return scanAlarm(row)
}

func (r *AlarmRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Alarm, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+alarmColumns+` FROM alarms WHERE user_id = $1 ORDER BY hour, minute, created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alarms []*models.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, err
		}
		alarms = append(alarms, a)
	}
	return alarms, rows.Err()
}

// ListEnabled returns every enabled alarm across all users, used to
// rebuild the armed timers after a restart.
func (r *AlarmRepo) ListEnabled(ctx context.Context) ([]*models.Alarm, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+alarmColumns+` FROM alarms WHERE enabled = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alarms []*models.Alarm
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, err
		}
		alarms = append(alarms, a)
	}
	return alarms, rows.Err()
}

func (r *AlarmRepo) Update(ctx context.Context, a *models.Alarm) error {
	repeatDays, content, err := marshalAlarmJSON(a)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE alarms SET label = $1, hour = $2, minute = $3, enabled = $4, repeat_days = $5,
			tone = $6, voice_id = $7, snooze_enabled = $8, snooze_duration_seconds = $9,
			max_snooze_count = $10, current_snooze_count = $11, last_triggered_at = $12,
			fallback_sound_id = $13, use_traditional_sound = $14, use_ai_script = $15,
			custom_audio_path = $16, generated_content = $17, updated_at = $18
		WHERE id = $19`,
		a.Label, a.Hour, a.Minute, a.Enabled, repeatDays,
		a.Tone, a.VoiceID, a.SnoozeEnabled, int64(a.SnoozeDuration/time.Second),
		a.MaxSnoozeCount, a.CurrentSnoozeCount, a.LastTriggeredAt,
		a.FallbackSoundID, a.UseTraditionalSound, a.UseAIScript,
		a.CustomAudioPath, content, a.UpdatedAt, a.ID,
	)
	return err
}

func (r *AlarmRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM alarms WHERE id = $1", id)
	return err
}

func marshalAlarmJSON(a *models.Alarm) (repeatDays, content []byte, err error) {
	repeatDays, err = json.Marshal(a.RepeatDays)
	if err != nil {
		return nil, nil, err
	}
	if a.RepeatDays == nil {
		repeatDays = []byte("[]")
	}

	// nil content stays NULL in the database
	if a.GeneratedContent != nil {
		content, err = json.Marshal(a.GeneratedContent)
		if err != nil {
			return nil, nil, err
		}
	}
	return repeatDays, content, nil
}

func scanAlarm(row pgx.Row) (*models.Alarm, error) {
	a := &models.Alarm{}
	var repeatDays, content []byte
	var snoozeSecs int64

	err := row.Scan(
		&a.ID, &a.UserID, &a.Label, &a.Hour, &a.Minute, &a.Enabled, &repeatDays, &a.Tone, &a.VoiceID,
		&a.SnoozeEnabled, &snoozeSecs, &a.MaxSnoozeCount, &a.CurrentSnoozeCount,
		&a.LastTriggeredAt, &a.FallbackSoundID, &a.UseTraditionalSound, &a.UseAIScript,
		&a.CustomAudioPath, &content, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.SnoozeDuration = time.Duration(snoozeSecs) * time.Second
	if len(repeatDays) > 0 {
		if err := json.Unmarshal(repeatDays, &a.RepeatDays); err != nil {
			return nil, err
		}
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &a.GeneratedContent); err != nil {
			return nil, err
		}
	}
	return a, nil
}
