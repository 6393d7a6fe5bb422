package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hanzidex/hanzidex/internal/models"
)

// DiscoverResult reports a discovery and its cascade.
type DiscoverResult struct {
	Messages          []string `json:"messages"`
	AffectedItems     []string `json:"affected_items"`
	AlreadyDiscovered bool     `json:"already_discovered"`
}

// Discover promotes an item to DISCOVERED and walks the unlock graph:
// a discovered character exposes its LOCKED components and radicals, and any
// word whose constituent characters are now all discovered; a plain word
// exposes its LOCKED constituent characters. Skills for the discovered item
// are seeded at level 1, due immediately. The whole cascade runs in one
// transaction and is idempotent: re-discovering is an informational no-op.
func (s *Service) Discover(ctx context.Context, userID int64, value string, now time.Time) (*DiscoverResult, error) {
	if value == "" {
		return nil, fmt.Errorf("item value required: %w", ErrInvalidInput)
	}

	result := &DiscoverResult{}
	err := s.repo.RunInTx(ctx, func(tx models.Repository) error {
		item, err := tx.GetItemWithStatus(ctx, userID, value)
		if err != nil {
			return notFound(err, "item %q", value)
		}

		promoted, err := tx.PromoteItemStatus(ctx, userID, item.ID,
			[]models.ItemStatus{models.StatusLocked, models.StatusDiscoverable}, models.StatusDiscovered)
		if err != nil {
			return err
		}
		if !promoted {
			result.AlreadyDiscovered = true
			result.Messages = append(result.Messages, fmt.Sprintf("'%s' is already discovered.", item.Value))
			return nil
		}

		result.Messages = append(result.Messages, fmt.Sprintf("'%s' discovered successfully!", item.Value))
		result.AffectedItems = append(result.AffectedItems, item.Value)

		if err := tx.EnsureSkillProgress(ctx, userID, item.ID,
			skillCodes(models.SkillsForKinds(item.Kinds)), now); err != nil {
			return err
		}

		if item.HasKind(models.KindCharacter) {
			if err := s.cascadeCharacter(ctx, tx, userID, &item.Item, result); err != nil {
				return err
			}
		}
		if item.HasKind(models.KindWord) && !item.HasKind(models.KindCharacter) {
			if err := s.cascadeWord(ctx, tx, userID, &item.Item, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyDiscovered {
		zap.S().Infow("item discovered", "user_id", userID, "value", value,
			"affected", len(result.AffectedItems))
	}
	return result, nil
}

// cascadeCharacter exposes the character's LOCKED sub-parts, then checks
// every word containing it: a word unlocks the moment its last missing
// constituent becomes DISCOVERED.
func (s *Service) cascadeCharacter(ctx context.Context, tx models.Repository, userID int64, item *models.Item, result *DiscoverResult) error {
	related := make(map[string]struct{})
	for _, v := range item.Components {
		related[v] = struct{}{}
	}
	for _, v := range item.RadicalsContained {
		related[v] = struct{}{}
	}

	for value := range related {
		target, err := tx.GetItemWithStatus(ctx, userID, value)
		if err != nil {
			// Decomposition data may reference parts outside the catalog.
			continue
		}
		if !target.HasKind(models.KindCharacter) && !target.HasKind(models.KindRadical) {
			continue
		}
		promoted, err := tx.PromoteItemStatus(ctx, userID, target.ID,
			[]models.ItemStatus{models.StatusLocked}, models.StatusDiscoverable)
		if err != nil {
			return err
		}
		if promoted {
			result.Messages = append(result.Messages, fmt.Sprintf("Related '%s' is now discoverable.", value))
			result.AffectedItems = append(result.AffectedItems, value)
		}
	}

	words, err := tx.FindWordsContaining(ctx, item.Value)
	if err != nil {
		return err
	}
	for _, word := range words {
		status, err := tx.GetItemStatus(ctx, userID, word.ID)
		if err != nil {
			continue
		}
		if status != models.StatusLocked || len(word.ConstituentItems) == 0 {
			continue
		}

		complete, err := s.allConstituentsDiscovered(ctx, tx, userID, word.ConstituentItems)
		if err != nil {
			return err
		}
		if !complete {
			continue
		}
		promoted, err := tx.PromoteItemStatus(ctx, userID, word.ID,
			[]models.ItemStatus{models.StatusLocked}, models.StatusDiscoverable)
		if err != nil {
			return err
		}
		if promoted {
			result.Messages = append(result.Messages,
				fmt.Sprintf("Word '%s' is now discoverable (all constituent characters discovered).", word.Value))
			result.AffectedItems = append(result.AffectedItems, word.Value)
		}
	}
	return nil
}

func (s *Service) cascadeWord(ctx context.Context, tx models.Repository, userID int64, item *models.Item, result *DiscoverResult) error {
	for _, value := range item.ConstituentItems {
		target, err := tx.GetItemWithStatus(ctx, userID, value)
		if err != nil {
			continue
		}
		if !target.HasKind(models.KindCharacter) {
			continue
		}
		promoted, err := tx.PromoteItemStatus(ctx, userID, target.ID,
			[]models.ItemStatus{models.StatusLocked}, models.StatusDiscoverable)
		if err != nil {
			return err
		}
		if promoted {
			result.Messages = append(result.Messages, fmt.Sprintf("Constituent '%s' is now discoverable.", value))
			result.AffectedItems = append(result.AffectedItems, value)
		}
	}
	return nil
}

func (s *Service) allConstituentsDiscovered(ctx context.Context, tx models.Repository, userID int64, constituents models.StringList) (bool, error) {
	for _, c := range constituents {
		ch, err := tx.GetItemWithStatus(ctx, userID, c)
		if err != nil {
			return false, nil // constituent missing from catalog: the word stays locked
		}
		if !ch.HasKind(models.KindCharacter) || ch.Status != models.StatusDiscovered {
			return false, nil
		}
	}
	return true, nil
}
