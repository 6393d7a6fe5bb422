package repository

import (
	"context"
	"fmt"

	"github.com/hanzidex/hanzidex/internal/models"
)

func (r *Postgres) CreateUser(ctx context.Context, username string) (*models.User, error) {
	query := `
		INSERT INTO users (username)
		VALUES ($1)
		RETURNING id, username, telegram_chat_id, created_at
	`

	var user models.User
	if err := r.GetContext(ctx, &user, query, username); err != nil {
		return nil, fmt.Errorf("create user (username: %s): %w", username, err)
	}

	return &user, nil
}

func (r *Postgres) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT id, username, telegram_chat_id, created_at FROM users WHERE id = $1`

	var user models.User
	if err := r.GetContext(ctx, &user, query, userID); err != nil {
		return nil, fmt.Errorf("get user (user_id: %d): %w", userID, err)
	}

	return &user, nil
}

func (r *Postgres) SetTelegramChat(ctx context.Context, userID, chatID int64) error {
	query := r.psql.Update("users").
		Set("telegram_chat_id", chatID).
		Where("id = ?", userID)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (user_id: %d): %w", userID, err)
	}

	if _, err = r.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("set telegram chat (user_id: %d): %w", userID, err)
	}
	return nil
}

// ProvisionItemProgress creates a LOCKED progress row for every catalog item
// the user does not yet have one for. Called on registration and safe to
// repeat after catalog imports.
func (r *Postgres) ProvisionItemProgress(ctx context.Context, userID int64) (int64, error) {
	query := `
		INSERT INTO user_item_progress (user_id, item_id, status)
		SELECT $1, id, 'LOCKED' FROM items
		ON CONFLICT (user_id, item_id) DO NOTHING
	`

	res, err := r.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("provision item progress (user_id: %d): %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("provision item progress rows affected (user_id: %d): %w", userID, err)
	}
	return n, nil
}
