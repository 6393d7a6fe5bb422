package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hanzidex/hanzidex/internal/models"
	"github.com/hanzidex/hanzidex/internal/service/srs"
	"github.com/hanzidex/hanzidex/pkg/utils"
)

// TrainResult is the scheduling outcome returned after grading a skill.
type TrainResult struct {
	SkillCode    string    `json:"skill_code"`
	Level        int       `json:"level"`
	DueAt        time.Time `json:"due_at"`
	Status       string    `json:"status"`
	Stability    *float64  `json:"stability"`
	Difficulty   *float64  `json:"difficulty"`
	UsedFallback bool      `json:"used_fallback"`
	RatedAt      time.Time `json:"rated_at"`
}

// TrainSkill records one grading event and reschedules the skill. The event
// is appended to the ledger first; the new state is then computed by
// replaying the full history (including the new event's rating) through the
// scheduler, and written back in the same transaction.
func (s *Service) TrainSkill(ctx context.Context, userID, itemID int64, skillCode, ratingInput string, durationMs *int, now time.Time) (*TrainResult, error) {
	if skillCode == "" {
		return nil, fmt.Errorf("skill code required: %w", ErrInvalidInput)
	}
	rating := srs.ParseRating(ratingInput)

	var result *TrainResult
	err := s.repo.RunInTx(ctx, func(tx models.Repository) error {
		item, err := tx.GetItemByID(ctx, itemID)
		if err != nil {
			return notFound(err, "item %d", itemID)
		}
		if !skillApplies(item, skillCode) {
			return fmt.Errorf("skill %s of item %d: %w", skillCode, itemID, ErrNotFound)
		}

		status, err := tx.GetItemStatus(ctx, userID, itemID)
		if err != nil {
			return notFound(err, "item %d progress", itemID)
		}
		if status != models.StatusDiscovered {
			return fmt.Errorf("item %d: %w", itemID, ErrNotDiscovered)
		}

		if err := tx.EnsureSkillProgress(ctx, userID, itemID, []string{skillCode}, now); err != nil {
			return err
		}
		row, err := tx.GetSkillProgress(ctx, userID, itemID, skillCode)
		if err != nil {
			return notFound(err, "skill %s of item %d", skillCode, itemID)
		}

		opts, err := tx.GetUserOptions(ctx, userID)
		if err != nil {
			return err
		}

		history, err := tx.ListReviews(ctx, userID, itemID, skillCode)
		if err != nil {
			return err
		}

		ev := &models.ReviewEvent{
			UserID:       userID,
			ItemID:       itemID,
			SkillCode:    skillCode,
			ReviewedAt:   now,
			RatingLabel:  rating.Label(),
			RatingValue:  int(rating),
			DurationMs:   durationMs,
			ExperimentID: opts.ExperimentID,
		}
		if err := tx.AppendReview(ctx, ev); err != nil {
			return err
		}

		sched := s.scheduler.Schedule(toReplayHistory(history), rating, now, opts.DesiredRetention, row.Level)

		row.Level = sched.NextLevel
		row.LastTrainedAt = &now
		row.DueAt = &sched.DueAt
		row.Stability = sched.Stability
		row.Difficulty = sched.Difficulty
		if err := tx.UpdateSkillSchedule(ctx, row); err != nil {
			return err
		}

		result = &TrainResult{
			SkillCode:    skillCode,
			Level:        row.Level,
			DueAt:        sched.DueAt,
			Status:       string(srs.StatusOf(now, row.DueAt, row.Level)),
			Stability:    sched.Stability,
			Difficulty:   sched.Difficulty,
			UsedFallback: sched.UsedFallback,
			RatedAt:      now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.S().Debugw("skill trained", "user_id", userID, "item_id", itemID,
		"skill", skillCode, "rating", rating.Label(), "fallback", result.UsedFallback)
	return result, nil
}

// UndoResult reports the state after removing the latest review.
type UndoResult struct {
	SkillCode     string     `json:"skill_code"`
	DueAt         *time.Time `json:"due_at"`
	Stability     *float64   `json:"stability"`
	Difficulty    *float64   `json:"difficulty"`
	NothingToUndo bool       `json:"nothing_to_undo"`
}

// Undo removes exactly the most recent review event for the tuple and
// rebuilds scheduling state by replaying the remaining history from empty
// state. With no history left (or no primary engine) stability and
// difficulty reset to unknown and the skill is due immediately.
func (s *Service) Undo(ctx context.Context, userID, itemID int64, skillCode string, now time.Time) (*UndoResult, error) {
	result := &UndoResult{SkillCode: skillCode}
	err := s.repo.RunInTx(ctx, func(tx models.Repository) error {
		deleted, err := tx.DeleteLastReview(ctx, userID, itemID, skillCode)
		if err != nil {
			return err
		}
		if !deleted {
			result.NothingToUndo = true
			return nil
		}

		row, err := tx.GetSkillProgress(ctx, userID, itemID, skillCode)
		if err != nil {
			return notFound(err, "skill %s of item %d", skillCode, itemID)
		}
		opts, err := tx.GetUserOptions(ctx, userID)
		if err != nil {
			return err
		}
		history, err := tx.ListReviews(ctx, userID, itemID, skillCode)
		if err != nil {
			return err
		}

		stability, difficulty, dueAt := s.scheduler.Replay(toReplayHistory(history), now, opts.DesiredRetention)

		row.Stability = stability
		row.Difficulty = difficulty
		row.DueAt = &dueAt
		if len(history) == 0 {
			row.LastTrainedAt = nil
		} else {
			last := history[len(history)-1].ReviewedAt
			row.LastTrainedAt = &last
		}
		if err := tx.UpdateSkillSchedule(ctx, row); err != nil {
			return err
		}

		result.DueAt = row.DueAt
		result.Stability = stability
		result.Difficulty = difficulty
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BatchEvent is one offline-collected grading event.
type BatchEvent struct {
	ItemID      int64      `json:"item_id"`
	SkillCode   string     `json:"skill_code"`
	RatingLabel string     `json:"rating_label"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	DurationMs  *int       `json:"duration_ms"`
}

// SubmitBatch ingests offline events, applying them in strictly ascending
// timestamp order regardless of arrival order so the outcome matches the
// synchronous single-event path. Duplicate timestamps for a tuple are
// dropped. Each event reschedules its skill off the history as of that
// event's time.
func (s *Service) SubmitBatch(ctx context.Context, userID int64, events []BatchEvent, now time.Time) (int, error) {
	if len(events) == 0 {
		return 0, fmt.Errorf("events must be a non-empty array: %w", ErrInvalidInput)
	}

	for i := range events {
		if events[i].ReviewedAt == nil {
			t := now
			events[i].ReviewedAt = &t
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].ReviewedAt.Before(*events[j].ReviewedAt)
	})

	processed := 0
	err := s.repo.RunInTx(ctx, func(tx models.Repository) error {
		opts, err := tx.GetUserOptions(ctx, userID)
		if err != nil {
			return err
		}

		for _, be := range events {
			if be.ItemID == 0 || be.SkillCode == "" || be.RatingLabel == "" {
				continue
			}
			rating := srs.ParseRating(be.RatingLabel)
			at := *be.ReviewedAt

			if err := tx.EnsureSkillProgress(ctx, userID, be.ItemID, []string{be.SkillCode}, at); err != nil {
				return err
			}
			row, err := tx.GetSkillProgress(ctx, userID, be.ItemID, be.SkillCode)
			if err != nil {
				return err
			}

			history, err := tx.ListReviews(ctx, userID, be.ItemID, be.SkillCode)
			if err != nil {
				return err
			}

			if err := tx.AppendReviewIfAbsent(ctx, &models.ReviewEvent{
				UserID:       userID,
				ItemID:       be.ItemID,
				SkillCode:    be.SkillCode,
				ReviewedAt:   at,
				RatingLabel:  rating.Label(),
				RatingValue:  int(rating),
				DurationMs:   be.DurationMs,
				ExperimentID: opts.ExperimentID,
			}); err != nil {
				return err
			}

			sched := s.scheduler.Schedule(toReplayHistory(history), rating, at, opts.DesiredRetention, row.Level)

			row.Level = sched.NextLevel
			row.LastTrainedAt = &at
			row.DueAt = &sched.DueAt
			row.Stability = sched.Stability
			row.Difficulty = sched.Difficulty
			if err := tx.UpdateSkillSchedule(ctx, row); err != nil {
				return err
			}
			processed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("submit batch (user_id: %d): %w", userID, err)
	}
	return processed, nil
}

// skillApplies reports whether the skill belongs to the item's kind catalog.
func skillApplies(item *models.Item, skillCode string) bool {
	for _, s := range models.SkillsForKinds(item.Kinds) {
		if s.Code == skillCode {
			return true
		}
	}
	return false
}

func toReplayHistory(events []models.ReviewEvent) []srs.Review {
	history := make([]srs.Review, len(events))
	for i, ev := range events {
		history[i] = srs.Review{At: ev.ReviewedAt, Rating: srs.ParseRating(ev.RatingLabel)}
	}
	return history
}

func sortEventsByTime(events []models.ReviewEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].ReviewedAt.Before(events[j].ReviewedAt)
	})
}

func startOfDay(t time.Time) time.Time {
	return utils.StartOfDay(t)
}
