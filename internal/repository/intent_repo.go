package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/models"
)

type IntentRepo struct {
	pool *pgxpool.Pool
}

func NewIntentRepo(pool *pgxpool.Pool) *IntentRepo {
	return &IntentRepo{pool: pool}
}

const intentColumns = `id, user_id, alarm_id, goal, tone, context, scheduled_for, status,
	fail_reason, attempts, version, generated_content, created_at, updated_at`

func (r *IntentRepo) Create(ctx context.Context, i *models.Intent) error {
	contextJSON, content, err := marshalIntentJSON(i)
	if err != nil {
		return err
	}

	query := `INSERT INTO intents (` + intentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.pool.Exec(ctx, query,
		i.ID, i.UserID, i.AlarmID, i.Goal, i.Tone, contextJSON, i.ScheduledFor, i.Status,
		i.FailReason, i.Attempts, i.Version, content, i.CreatedAt, i.UpdatedAt,
	)
	return err
}

func (r *IntentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Intent, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+intentColumns+` FROM intents WHERE id = $1`, id)
	return scanIntent(row)
}

// GetByAlarmID returns the alarm's intent, or (nil, nil) when the alarm
// has none. An alarm carries at most one intent.
func (r *IntentRepo) GetByAlarmID(ctx context.Context, alarmID uuid.UUID) (*models.Intent, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+intentColumns+` FROM intents WHERE alarm_id = $1`, alarmID)
	intent, err := scanIntent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return intent, err
}

func (r *IntentRepo) Update(ctx context.Context, i *models.Intent) error {
	contextJSON, content, err := marshalIntentJSON(i)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE intents SET goal = $1, tone = $2, context = $3, scheduled_for = $4, status = $5,
			fail_reason = $6, attempts = $7, version = $8, generated_content = $9, updated_at = $10
		WHERE id = $11`,
		i.Goal, i.Tone, contextJSON, i.ScheduledFor, i.Status,
		i.FailReason, i.Attempts, i.Version, content, i.UpdatedAt, i.ID,
	)
	return err
}

func (r *IntentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM intents WHERE id = $1", id)
	return err
}

func marshalIntentJSON(i *models.Intent) (contextJSON, content []byte, err error) {
	contextJSON, err = json.Marshal(i.Context)
	if err != nil {
		return nil, nil, err
	}

	if i.GeneratedContent != nil {
		content, err = json.Marshal(i.GeneratedContent)
		if err != nil {
			return nil, nil, err
		}
	}
	return contextJSON, content, nil
}

func scanIntent(row pgx.Row) (*models.Intent, error) {
	i := &models.Intent{}
	var contextJSON, content []byte

	err := row.Scan(
		&i.ID, &i.UserID, &i.AlarmID, &i.Goal, &i.Tone, &contextJSON, &i.ScheduledFor, &i.Status,
		&i.FailReason, &i.Attempts, &i.Version, &content, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &i.Context); err != nil {
			return nil, err
		}
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &i.GeneratedContent); err != nil {
			return nil, err
		}
	}
	return i, nil
}
