package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hanzidex/hanzidex/internal/models"
)

// GetUserOptions returns the stored options, or the documented defaults when
// the user never saved any.
func (r *Postgres) GetUserOptions(ctx context.Context, userID int64) (*models.UserOptions, error) {
	query := `
		SELECT user_id, desired_retention, daily_new_limit, daily_review_limit,
		       bury_siblings, leech_threshold, reminders_enabled, reminder_time,
		       nudges_enabled, experiment_id, updated_at
		FROM user_options
		WHERE user_id = $1
	`

	var opts models.UserOptions
	err := r.GetContext(ctx, &opts, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultOptions(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user options (user_id: %d): %w", userID, err)
	}

	return &opts, nil
}

func (r *Postgres) UpsertUserOptions(ctx context.Context, opts *models.UserOptions) error {
	query := `
		INSERT INTO user_options (user_id, desired_retention, daily_new_limit, daily_review_limit,
		                          bury_siblings, leech_threshold, reminders_enabled, reminder_time,
		                          nudges_enabled, experiment_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			desired_retention = EXCLUDED.desired_retention,
			daily_new_limit = EXCLUDED.daily_new_limit,
			daily_review_limit = EXCLUDED.daily_review_limit,
			bury_siblings = EXCLUDED.bury_siblings,
			leech_threshold = EXCLUDED.leech_threshold,
			reminders_enabled = EXCLUDED.reminders_enabled,
			reminder_time = EXCLUDED.reminder_time,
			nudges_enabled = EXCLUDED.nudges_enabled,
			experiment_id = EXCLUDED.experiment_id,
			updated_at = NOW()
	`

	if _, err := r.ExecContext(ctx, query,
		opts.UserID, opts.DesiredRetention, opts.DailyNewLimit, opts.DailyReviewLimit,
		opts.BurySiblings, opts.LeechThreshold, opts.RemindersEnabled, opts.ReminderTime,
		opts.NudgesEnabled, opts.ExperimentID,
	); err != nil {
		return fmt.Errorf("upsert user options (user_id: %d): %w", opts.UserID, err)
	}
	return nil
}

// ListReminderTargets returns users with reminders enabled and a linked
// Telegram chat.
func (r *Postgres) ListReminderTargets(ctx context.Context) ([]*models.ReminderTarget, error) {
	query := `
		SELECT u.id AS user_id, u.telegram_chat_id, o.reminder_time, o.nudges_enabled
		FROM users u
		JOIN user_options o ON o.user_id = u.id
		WHERE o.reminders_enabled = TRUE AND u.telegram_chat_id IS NOT NULL
	`

	var targets []*models.ReminderTarget
	if err := r.SelectContext(ctx, &targets, query); err != nil {
		return nil, fmt.Errorf("list reminder targets: %w", err)
	}
	return targets, nil
}
