package repository

import (
	"context"
	"fmt"

	"github.com/hanzidex/hanzidex/internal/models"
)

const itemColumns = `
	i.id, i.value, i.kinds, i.hsk_level, i.components, i.constituent_items,
	i.radicals_contained, i.pinyin, i.english_definition, i.stroke_count`

// kindOrder puts radicals before characters before words, matching the
// order the collector's book presents new material in.
const kindOrder = `
	CASE
		WHEN i.kinds @> '["radical"]'   THEN 1
		WHEN i.kinds @> '["character"]' THEN 2
		WHEN i.kinds @> '["word"]'      THEN 3
		ELSE 4
	END`

func (r *Postgres) GetItemByID(ctx context.Context, id int64) (*models.Item, error) {
	query := `SELECT` + itemColumns + ` FROM items i WHERE i.id = $1`

	var item models.Item
	if err := r.GetContext(ctx, &item, query, id); err != nil {
		return nil, fmt.Errorf("get item (item_id: %d): %w", id, err)
	}

	return &item, nil
}

func (r *Postgres) GetItemWithStatus(ctx context.Context, userID int64, value string) (*models.ItemWithStatus, error) {
	query := `
		SELECT` + itemColumns + `, uip.status
		FROM items i
		JOIN user_item_progress uip ON i.id = uip.item_id
		WHERE uip.user_id = $1 AND i.value = $2
	`

	var item models.ItemWithStatus
	if err := r.GetContext(ctx, &item, query, userID, value); err != nil {
		return nil, fmt.Errorf("get item with status (user_id: %d, value: %s): %w", userID, value, err)
	}

	return &item, nil
}

func (r *Postgres) ListItemsByStatus(ctx context.Context, userID int64, status models.ItemStatus) ([]*models.ItemWithStatus, error) {
	query := `
		SELECT` + itemColumns + `, uip.status
		FROM items i
		JOIN user_item_progress uip ON i.id = uip.item_id
		WHERE uip.user_id = $1 AND uip.status = $2
		ORDER BY` + kindOrder + `, i.id
	`

	var items []*models.ItemWithStatus
	if err := r.SelectContext(ctx, &items, query, userID, string(status)); err != nil {
		return nil, fmt.Errorf("list items by status (user_id: %d, status: %s): %w", userID, status, err)
	}

	return items, nil
}

func (r *Postgres) ListLockedItemsByTier(ctx context.Context, userID int64, tier, limit int) ([]*models.Item, error) {
	query := `
		SELECT` + itemColumns + `
		FROM items i
		JOIN user_item_progress uip ON i.id = uip.item_id
		WHERE uip.user_id = $1
		  AND uip.status = 'LOCKED'
		  AND COALESCE(i.hsk_level, 1) = $2
		ORDER BY` + kindOrder + `, i.id
		LIMIT $3
	`

	var items []*models.Item
	if err := r.SelectContext(ctx, &items, query, userID, tier, limit); err != nil {
		return nil, fmt.Errorf("list locked items (user_id: %d, tier: %d): %w", userID, tier, err)
	}

	return items, nil
}

// FindWordsContaining returns catalog words that list value among their
// constituent characters.
func (r *Postgres) FindWordsContaining(ctx context.Context, value string) ([]*models.Item, error) {
	query := `
		SELECT` + itemColumns + `
		FROM items i
		WHERE i.kinds @> '["word"]'
		  AND i.constituent_items @> jsonb_build_array($1::text)
		ORDER BY i.id
	`

	var items []*models.Item
	if err := r.SelectContext(ctx, &items, query, value); err != nil {
		return nil, fmt.Errorf("find words containing (value: %s): %w", value, err)
	}

	return items, nil
}

func (r *Postgres) UpsertItem(ctx context.Context, item *models.Item) error {
	query := `
		INSERT INTO items (value, kinds, hsk_level, components, constituent_items,
		                   radicals_contained, pinyin, english_definition, stroke_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (value) DO UPDATE SET
			kinds = EXCLUDED.kinds,
			hsk_level = EXCLUDED.hsk_level,
			components = EXCLUDED.components,
			constituent_items = EXCLUDED.constituent_items,
			radicals_contained = EXCLUDED.radicals_contained,
			pinyin = EXCLUDED.pinyin,
			english_definition = EXCLUDED.english_definition,
			stroke_count = EXCLUDED.stroke_count
		RETURNING id
	`

	if err := r.GetContext(ctx, &item.ID, query,
		item.Value, item.Kinds, item.HSKLevel, item.Components, item.ConstituentItems,
		item.RadicalsContained, item.Pinyin, item.EnglishDefinition, item.StrokeCount,
	); err != nil {
		return fmt.Errorf("upsert item (value: %s): %w", item.Value, err)
	}
	return nil
}

// BackfillLockedProgress creates missing LOCKED rows for every (user, item)
// pair, so catalog imports reach existing users.
func (r *Postgres) BackfillLockedProgress(ctx context.Context) (int64, error) {
	query := `
		INSERT INTO user_item_progress (user_id, item_id, status)
		SELECT u.id, i.id, 'LOCKED'
		FROM users u CROSS JOIN items i
		ON CONFLICT (user_id, item_id) DO NOTHING
	`

	res, err := r.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("backfill locked progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("backfill locked progress rows affected: %w", err)
	}
	return n, nil
}
