package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hanzidex/hanzidex/internal/models"
)

const reviewColumns = `user_id, item_id, skill_code, reviewed_at, rating_label, rating_value, duration_ms, experiment_id`

func (r *Postgres) AppendReview(ctx context.Context, ev *models.ReviewEvent) error {
	query := `
		INSERT INTO user_item_skill_reviews (` + reviewColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if _, err := r.ExecContext(ctx, query,
		ev.UserID, ev.ItemID, ev.SkillCode, ev.ReviewedAt,
		ev.RatingLabel, ev.RatingValue, ev.DurationMs, ev.ExperimentID,
	); err != nil {
		return fmt.Errorf("append review (user_id: %d, item_id: %d, skill: %s): %w", ev.UserID, ev.ItemID, ev.SkillCode, err)
	}
	return nil
}

// AppendReviewIfAbsent is the batch/import variant: a duplicate
// (user, item, skill, reviewed_at) key is silently skipped, which makes
// retried syncs replay-equivalent.
func (r *Postgres) AppendReviewIfAbsent(ctx context.Context, ev *models.ReviewEvent) error {
	query := `
		INSERT INTO user_item_skill_reviews (` + reviewColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, item_id, skill_code, reviewed_at) DO NOTHING
	`

	if _, err := r.ExecContext(ctx, query,
		ev.UserID, ev.ItemID, ev.SkillCode, ev.ReviewedAt,
		ev.RatingLabel, ev.RatingValue, ev.DurationMs, ev.ExperimentID,
	); err != nil {
		return fmt.Errorf("append review if absent (user_id: %d, item_id: %d, skill: %s): %w", ev.UserID, ev.ItemID, ev.SkillCode, err)
	}
	return nil
}

func (r *Postgres) ListReviews(ctx context.Context, userID, itemID int64, skillCode string) ([]models.ReviewEvent, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM user_item_skill_reviews
		WHERE user_id = $1 AND item_id = $2 AND skill_code = $3
		ORDER BY reviewed_at ASC
	`

	var events []models.ReviewEvent
	if err := r.SelectContext(ctx, &events, query, userID, itemID, skillCode); err != nil {
		return nil, fmt.Errorf("list reviews (user_id: %d, item_id: %d, skill: %s): %w", userID, itemID, skillCode, err)
	}

	return events, nil
}

func (r *Postgres) ListAllReviews(ctx context.Context, userID int64, since *time.Time) ([]models.ReviewEvent, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM user_item_skill_reviews
		WHERE user_id = $1 AND ($2::timestamptz IS NULL OR reviewed_at >= $2)
		ORDER BY reviewed_at ASC
	`

	var events []models.ReviewEvent
	if err := r.SelectContext(ctx, &events, query, userID, since); err != nil {
		return nil, fmt.Errorf("list all reviews (user_id: %d): %w", userID, err)
	}

	return events, nil
}

// DeleteLastReview removes only the most recent event for the tuple and
// reports whether one existed.
func (r *Postgres) DeleteLastReview(ctx context.Context, userID, itemID int64, skillCode string) (bool, error) {
	query := `
		DELETE FROM user_item_skill_reviews
		WHERE ctid IN (
			SELECT ctid FROM user_item_skill_reviews
			WHERE user_id = $1 AND item_id = $2 AND skill_code = $3
			ORDER BY reviewed_at DESC
			LIMIT 1
		)
	`

	res, err := r.ExecContext(ctx, query, userID, itemID, skillCode)
	if err != nil {
		return false, fmt.Errorf("delete last review (user_id: %d, item_id: %d, skill: %s): %w", userID, itemID, skillCode, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete last review rows affected (user_id: %d, item_id: %d): %w", userID, itemID, err)
	}
	return n > 0, nil
}

func (r *Postgres) CountReviewsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM user_item_skill_reviews WHERE user_id = $1 AND reviewed_at >= $2`

	var count int
	if err := r.GetContext(ctx, &count, query, userID, since); err != nil {
		return 0, fmt.Errorf("count reviews since (user_id: %d): %w", userID, err)
	}
	return count, nil
}

// CountFirstReviewsSince counts skills whose first-ever review falls at or
// after since, i.e. how many new skills were introduced in that window.
func (r *Postgres) CountFirstReviewsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM (
			SELECT item_id, skill_code, MIN(reviewed_at) AS first_seen
			FROM user_item_skill_reviews
			WHERE user_id = $1
			GROUP BY item_id, skill_code
		) t
		WHERE t.first_seen >= $2
	`

	var count int
	if err := r.GetContext(ctx, &count, query, userID, since); err != nil {
		return 0, fmt.Errorf("count first reviews since (user_id: %d): %w", userID, err)
	}
	return count, nil
}

func (r *Postgres) CountDueSkills(ctx context.Context, userID int64, at time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM user_item_skill_progress
		WHERE user_id = $1 AND suspended = FALSE AND COALESCE(due_at, $2) <= $2
	`

	var count int
	if err := r.GetContext(ctx, &count, query, userID, at); err != nil {
		return 0, fmt.Errorf("count due skills (user_id: %d): %w", userID, err)
	}
	return count, nil
}

func (r *Postgres) RetentionBySkill(ctx context.Context, userID int64, since time.Time) ([]*models.SkillRetention, error) {
	query := `
		SELECT r.skill_code, s.label,
		       COUNT(*)::INT AS total,
		       SUM(CASE WHEN r.rating_label <> 'again' THEN 1 ELSE 0 END)::INT AS correct
		FROM user_item_skill_reviews r
		JOIN skills s ON s.code = r.skill_code
		WHERE r.user_id = $1 AND r.reviewed_at >= $2
		GROUP BY r.skill_code, s.label
		ORDER BY r.skill_code
	`

	var rows []*models.SkillRetention
	if err := r.SelectContext(ctx, &rows, query, userID, since); err != nil {
		return nil, fmt.Errorf("retention by skill (user_id: %d): %w", userID, err)
	}
	for _, row := range rows {
		if row.Total > 0 {
			row.Retention = float64(row.Correct) / float64(row.Total)
		}
	}
	return rows, nil
}

func (r *Postgres) StabilityBySkill(ctx context.Context, userID int64) ([]*models.SkillStability, error) {
	query := `
		SELECT uisp.skill_code, s.label, AVG(uisp.stability)::FLOAT AS avg_stability
		FROM user_item_skill_progress uisp
		JOIN skills s ON s.code = uisp.skill_code
		WHERE uisp.user_id = $1 AND uisp.stability IS NOT NULL
		GROUP BY uisp.skill_code, s.label
		ORDER BY uisp.skill_code
	`

	var rows []*models.SkillStability
	if err := r.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("stability by skill (user_id: %d): %w", userID, err)
	}
	return rows, nil
}

func (r *Postgres) ListLeeches(ctx context.Context, userID int64, threshold, limit int) ([]*models.Leech, error) {
	query := `
		SELECT r.item_id, i.value, r.skill_code, s.label AS skill_label,
		       SUM(CASE WHEN r.rating_label = 'again' THEN 1 ELSE 0 END)::INT AS lapses,
		       u.level
		FROM user_item_skill_reviews r
		JOIN items i ON i.id = r.item_id
		JOIN skills s ON s.code = r.skill_code
		JOIN user_item_skill_progress u
		  ON u.user_id = r.user_id AND u.item_id = r.item_id AND u.skill_code = r.skill_code
		WHERE r.user_id = $1
		GROUP BY r.item_id, i.value, r.skill_code, s.label, u.level
		HAVING SUM(CASE WHEN r.rating_label = 'again' THEN 1 ELSE 0 END) >= $2
		ORDER BY lapses DESC, r.item_id
		LIMIT $3
	`

	var leeches []*models.Leech
	if err := r.SelectContext(ctx, &leeches, query, userID, threshold, limit); err != nil {
		return nil, fmt.Errorf("list leeches (user_id: %d, threshold: %d): %w", userID, threshold, err)
	}
	return leeches, nil
}

func (r *Postgres) DueTrend(ctx context.Context, userID int64, from time.Time, days int) ([]*models.DueCount, error) {
	query := `
		WITH day_series AS (
			SELECT generate_series($2::date, $2::date + ($3 - 1) * INTERVAL '1 day', INTERVAL '1 day')::date AS d
		)
		SELECT ds.d AS date,
		       COALESCE((
		           SELECT COUNT(*) FROM user_item_skill_progress u
		           WHERE u.user_id = $1 AND u.due_at::date = ds.d
		       ), 0)::INT AS due_count
		FROM day_series ds
		ORDER BY ds.d
	`

	var counts []*models.DueCount
	if err := r.SelectContext(ctx, &counts, query, userID, from, days); err != nil {
		return nil, fmt.Errorf("due trend (user_id: %d): %w", userID, err)
	}
	return counts, nil
}

// DailyStats returns per-day review totals, accuracy, time spent and new
// introductions over the window starting at from.
func (r *Postgres) DailyStats(ctx context.Context, userID int64, from time.Time, days int) ([]*models.DailyStat, error) {
	query := `
		WITH day_series AS (
			SELECT generate_series($2::date, $2::date + ($3 - 1) * INTERVAL '1 day', INTERVAL '1 day')::date AS d
		),
		reviews AS (
			SELECT reviewed_at::date AS day,
			       COUNT(*)::INT AS total,
			       SUM(CASE WHEN rating_label <> 'again' THEN 1 ELSE 0 END)::INT AS correct,
			       COALESCE(SUM(duration_ms), 0)::INT AS ms
			FROM user_item_skill_reviews
			WHERE user_id = $1 AND reviewed_at >= $2::date
			GROUP BY reviewed_at::date
		),
		introduced AS (
			SELECT first_seen::date AS day, COUNT(*)::INT AS new_count
			FROM (
				SELECT MIN(reviewed_at) AS first_seen
				FROM user_item_skill_reviews
				WHERE user_id = $1
				GROUP BY item_id, skill_code
			) t
			WHERE first_seen >= $2::date
			GROUP BY first_seen::date
		)
		SELECT ds.d AS date,
		       COALESCE(r.total, 0)::INT AS total,
		       COALESCE(r.correct, 0)::INT AS correct,
		       CASE WHEN COALESCE(r.total, 0) > 0 THEN r.correct::FLOAT / r.total END AS retention,
		       COALESCE(r.ms, 0)::INT AS ms,
		       COALESCE(i.new_count, 0)::INT AS new_count
		FROM day_series ds
		LEFT JOIN reviews r ON r.day = ds.d
		LEFT JOIN introduced i ON i.day = ds.d
		ORDER BY ds.d
	`

	var stats []*models.DailyStat
	if err := r.SelectContext(ctx, &stats, query, userID, from, days); err != nil {
		return nil, fmt.Errorf("daily stats (user_id: %d): %w", userID, err)
	}
	return stats, nil
}
