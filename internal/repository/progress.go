package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/hanzidex/hanzidex/internal/models"
)

func (r *Postgres) GetItemStatus(ctx context.Context, userID, itemID int64) (models.ItemStatus, error) {
	query := `SELECT status FROM user_item_progress WHERE user_id = $1 AND item_id = $2`

	var status models.ItemStatus
	if err := r.GetContext(ctx, &status, query, userID, itemID); err != nil {
		return "", fmt.Errorf("get item status (user_id: %d, item_id: %d): %w", userID, itemID, err)
	}

	return status, nil
}

// PromoteItemStatus applies status only when the row currently holds one of
// from. The guard keeps the lifecycle single-direction and makes concurrent
// promotion of a shared dependency a no-op for the loser.
func (r *Postgres) PromoteItemStatus(ctx context.Context, userID, itemID int64, from []models.ItemStatus, to models.ItemStatus) (bool, error) {
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}

	query := r.psql.Update("user_item_progress").
		Set("status", string(to)).
		Where("user_id = ? AND item_id = ?", userID, itemID).
		Where(squirrel.Eq{"status": fromStr})

	sql, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build SQL query (user_id: %d, item_id: %d): %w", userID, itemID, err)
	}

	res, err := r.ExecContext(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("promote item status (user_id: %d, item_id: %d, to: %s): %w", userID, itemID, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("promote item status rows affected (user_id: %d, item_id: %d): %w", userID, itemID, err)
	}
	return n > 0, nil
}

// EnsureSkillProgress seeds level-1 rows due at dueAt for the given skills,
// leaving existing rows untouched.
func (r *Postgres) EnsureSkillProgress(ctx context.Context, userID, itemID int64, skillCodes []string, dueAt time.Time) error {
	query := `
		INSERT INTO user_item_skill_progress (user_id, item_id, skill_code, level, due_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (user_id, item_id, skill_code) DO NOTHING
	`

	for _, code := range skillCodes {
		if _, err := r.ExecContext(ctx, query, userID, itemID, code, dueAt); err != nil {
			return fmt.Errorf("seed skill progress (user_id: %d, item_id: %d, skill: %s): %w", userID, itemID, code, err)
		}
	}
	return nil
}

func (r *Postgres) GetSkillProgress(ctx context.Context, userID, itemID int64, skillCode string) (*models.SkillProgress, error) {
	query := `
		SELECT user_id, item_id, skill_code, level, last_trained_at, due_at, stability, difficulty, suspended
		FROM user_item_skill_progress
		WHERE user_id = $1 AND item_id = $2 AND skill_code = $3
	`

	var p models.SkillProgress
	if err := r.GetContext(ctx, &p, query, userID, itemID, skillCode); err != nil {
		return nil, fmt.Errorf("get skill progress (user_id: %d, item_id: %d, skill: %s): %w", userID, itemID, skillCode, err)
	}

	return &p, nil
}

func (r *Postgres) ListItemSkillProgress(ctx context.Context, userID, itemID int64) ([]*models.SkillProgressEntry, error) {
	query := `
		SELECT uisp.user_id, uisp.item_id, uisp.skill_code, uisp.level, uisp.last_trained_at,
		       uisp.due_at, uisp.stability, uisp.difficulty, uisp.suspended,
		       i.value, i.kinds, i.pinyin, i.english_definition, s.label AS skill_label
		FROM user_item_skill_progress uisp
		JOIN items i ON i.id = uisp.item_id
		JOIN skills s ON s.code = uisp.skill_code
		WHERE uisp.user_id = $1 AND uisp.item_id = $2
		ORDER BY uisp.skill_code
	`

	var entries []*models.SkillProgressEntry
	if err := r.SelectContext(ctx, &entries, query, userID, itemID); err != nil {
		return nil, fmt.Errorf("list item skill progress (user_id: %d, item_id: %d): %w", userID, itemID, err)
	}

	return entries, nil
}

// ListDueSkillProgress returns the user's non-suspended rows ordered by due
// date ascending, with null due dates treated as due at now.
func (r *Postgres) ListDueSkillProgress(ctx context.Context, userID int64, now time.Time, limit int) ([]*models.SkillProgressEntry, error) {
	query := `
		SELECT uisp.user_id, uisp.item_id, uisp.skill_code, uisp.level, uisp.last_trained_at,
		       uisp.due_at, uisp.stability, uisp.difficulty, uisp.suspended,
		       i.value, i.kinds, i.pinyin, i.english_definition, s.label AS skill_label
		FROM user_item_skill_progress uisp
		JOIN items i ON i.id = uisp.item_id
		JOIN skills s ON s.code = uisp.skill_code
		WHERE uisp.user_id = $1 AND uisp.suspended = FALSE
		ORDER BY COALESCE(uisp.due_at, $2) ASC
		LIMIT $3
	`

	var entries []*models.SkillProgressEntry
	if err := r.SelectContext(ctx, &entries, query, userID, now, limit); err != nil {
		return nil, fmt.Errorf("list due skill progress (user_id: %d): %w", userID, err)
	}

	return entries, nil
}

func (r *Postgres) UpdateSkillSchedule(ctx context.Context, p *models.SkillProgress) error {
	query := r.psql.Update("user_item_skill_progress").
		Set("level", p.Level).
		Set("last_trained_at", p.LastTrainedAt).
		Set("due_at", p.DueAt).
		Set("stability", p.Stability).
		Set("difficulty", p.Difficulty).
		Where("user_id = ? AND item_id = ? AND skill_code = ?", p.UserID, p.ItemID, p.SkillCode)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (user_id: %d, item_id: %d, skill: %s): %w", p.UserID, p.ItemID, p.SkillCode, err)
	}

	if _, err = r.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("update skill schedule (user_id: %d, item_id: %d, skill: %s): %w", p.UserID, p.ItemID, p.SkillCode, err)
	}
	return nil
}

func (r *Postgres) SetSkillSuspended(ctx context.Context, userID, itemID int64, skillCode string, suspended bool) (bool, error) {
	query := r.psql.Update("user_item_skill_progress").
		Set("suspended", suspended).
		Where("user_id = ? AND item_id = ? AND skill_code = ?", userID, itemID, skillCode)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build SQL query (user_id: %d, item_id: %d, skill: %s): %w", userID, itemID, skillCode, err)
	}

	res, err := r.ExecContext(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("set skill suspended (user_id: %d, item_id: %d, skill: %s): %w", userID, itemID, skillCode, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set skill suspended rows affected (user_id: %d, item_id: %d): %w", userID, itemID, err)
	}
	return n > 0, nil
}
