package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hanzidex/hanzidex/internal/models"
	"github.com/hanzidex/hanzidex/internal/service/srs"
)

// Service is the knowledge-acquisition engine: discovery over the unlock
// graph, review scheduling, and queue building. It is transport-agnostic;
// the request layer marshals its inputs and outputs.
type Service struct {
	repo      models.Repository
	scheduler *srs.Scheduler
}

func NewService(repo models.Repository, scheduler *srs.Scheduler) *Service {
	if scheduler.PrimaryAvailable() {
		zap.S().Info("scheduler: primary forgetting-curve engine wired")
	} else {
		zap.S().Warn("scheduler: no primary engine, level-table fallback only")
	}
	return &Service{repo: repo, scheduler: scheduler}
}

// RegisterUser creates a user and provisions a LOCKED progress row for every
// catalog item.
func (s *Service) RegisterUser(ctx context.Context, username string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username required: %w", ErrInvalidInput)
	}

	var user *models.User
	err := s.repo.RunInTx(ctx, func(tx models.Repository) error {
		var err error
		user, err = tx.CreateUser(ctx, username)
		if err != nil {
			return err
		}
		n, err := tx.ProvisionItemProgress(ctx, user.ID)
		if err != nil {
			return err
		}
		zap.S().Infow("user registered", "user_id", user.ID, "provisioned_items", n)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("register user (username: %s): %w", username, err)
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user %d", userID)
	}
	return user, nil
}

// LinkTelegram attaches a Telegram chat to the user so reminders can reach
// them.
func (s *Service) LinkTelegram(ctx context.Context, userID, chatID int64) error {
	if chatID == 0 {
		return fmt.Errorf("chat id required: %w", ErrInvalidInput)
	}
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return notFound(err, "user %d", userID)
	}
	if err := s.repo.SetTelegramChat(ctx, userID, chatID); err != nil {
		return fmt.Errorf("link telegram chat (user_id: %d): %w", userID, err)
	}
	return nil
}

func (s *Service) ListItemsByStatus(ctx context.Context, userID int64, status models.ItemStatus) ([]*models.ItemWithStatus, error) {
	return s.repo.ListItemsByStatus(ctx, userID, status)
}

// GetItem looks an item up by its literal value together with the user's
// unlock status for it.
func (s *Service) GetItem(ctx context.Context, userID int64, value string) (*models.ItemWithStatus, error) {
	item, err := s.repo.GetItemWithStatus(ctx, userID, value)
	if err != nil {
		return nil, notFound(err, "item %q", value)
	}
	return item, nil
}

// GenerateDailyDiscoverables promotes up to three LOCKED tier-1 items to
// DISCOVERABLE, radicals before characters before words.
func (s *Service) GenerateDailyDiscoverables(ctx context.Context, userID int64) ([]*models.Item, error) {
	var generated []*models.Item
	err := s.repo.RunInTx(ctx, func(tx models.Repository) error {
		items, err := tx.ListLockedItemsByTier(ctx, userID, 1, 3)
		if err != nil {
			return err
		}
		for _, item := range items {
			ok, err := tx.PromoteItemStatus(ctx, userID, item.ID,
				[]models.ItemStatus{models.StatusLocked}, models.StatusDiscoverable)
			if err != nil {
				return err
			}
			if ok {
				generated = append(generated, item)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate daily discoverables (user_id: %d): %w", userID, err)
	}
	return generated, nil
}

// SkillView is one skill of an item with its derived display state.
type SkillView struct {
	SkillCode      string     `json:"skill_code"`
	Label          string     `json:"label"`
	Level          int        `json:"level"`
	DueAt          *time.Time `json:"due_at"`
	LastTrainedAt  *time.Time `json:"last_trained_at"`
	Status         string     `json:"status"`
	Retrievability float64    `json:"retrievability"`
	Stability      *float64   `json:"stability"`
	Difficulty     *float64   `json:"difficulty"`
	Suspended      bool       `json:"suspended"`
	GreenUntilAt   *time.Time `json:"green_until_at"`
	RedAt          *time.Time `json:"red_at"`
}

// ListItemSkills returns the skill states for a discovered item, seeding
// missing rows and applying overdue decay correction: a red skill drops one
// level and becomes due immediately, so it re-enters training as amber.
func (s *Service) ListItemSkills(ctx context.Context, userID, itemID int64, now time.Time) ([]*SkillView, error) {
	item, err := s.repo.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, notFound(err, "item %d", itemID)
	}

	var entries []*models.SkillProgressEntry
	err = s.repo.RunInTx(ctx, func(tx models.Repository) error {
		status, err := tx.GetItemStatus(ctx, userID, item.ID)
		if err != nil {
			return notFound(err, "item %d progress", item.ID)
		}
		if status != models.StatusDiscovered {
			return fmt.Errorf("item %s: %w", item.Value, ErrNotDiscovered)
		}

		codes := skillCodes(models.SkillsForKinds(item.Kinds))
		if err := tx.EnsureSkillProgress(ctx, userID, item.ID, codes, now); err != nil {
			return err
		}

		entries, err = tx.ListItemSkillProgress(ctx, userID, item.ID)
		if err != nil {
			return err
		}

		for _, e := range entries {
			if srs.StatusOf(now, e.DueAt, e.Level) != srs.StatusRed {
				continue
			}
			if e.Level > 1 {
				e.Level--
			}
			due := now
			e.DueAt = &due
			if err := tx.UpdateSkillSchedule(ctx, &e.SkillProgress); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	views := make([]*SkillView, 0, len(entries))
	for _, e := range entries {
		views = append(views, skillView(e, now))
	}
	return views, nil
}

func skillView(e *models.SkillProgressEntry, now time.Time) *SkillView {
	v := &SkillView{
		SkillCode:      e.SkillCode,
		Label:          e.SkillLabel,
		Level:          e.Level,
		DueAt:          e.DueAt,
		LastTrainedAt:  e.LastTrainedAt,
		Status:         string(srs.StatusOf(now, e.DueAt, e.Level)),
		Retrievability: srs.Retrievability(e.LastTrainedAt, e.Stability, e.Level, now),
		Stability:      e.Stability,
		Difficulty:     e.Difficulty,
		Suspended:      e.Suspended,
	}
	if e.DueAt != nil {
		green := *e.DueAt
		red := e.DueAt.Add(srs.GraceForLevel(e.Level))
		v.GreenUntilAt = &green
		v.RedAt = &red
	}
	return v
}

// SuspendSkill toggles leech suspension for a skill.
func (s *Service) SuspendSkill(ctx context.Context, userID, itemID int64, skillCode string, suspended bool) error {
	ok, err := s.repo.SetSkillSuspended(ctx, userID, itemID, skillCode, suspended)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("skill %s of item %d: %w", skillCode, itemID, ErrNotFound)
	}
	return nil
}

// GetOptions returns the user's configuration, defaults applied when absent.
func (s *Service) GetOptions(ctx context.Context, userID int64) (*models.UserOptions, error) {
	return s.repo.GetUserOptions(ctx, userID)
}

// SaveOptions clamps and persists user configuration.
func (s *Service) SaveOptions(ctx context.Context, opts *models.UserOptions) (*models.UserOptions, error) {
	opts.DesiredRetention = srs.ClampRetention(opts.DesiredRetention)
	opts.DailyNewLimit = clampInt(opts.DailyNewLimit, 0, 200)
	opts.DailyReviewLimit = clampInt(opts.DailyReviewLimit, 0, 2000)
	opts.LeechThreshold = clampInt(opts.LeechThreshold, 1, 50)

	if err := s.repo.UpsertUserOptions(ctx, opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// StatsOverview is the analytics summary for a user.
type StatsOverview struct {
	RetentionBySkill []*models.SkillRetention `json:"retention_by_skill"`
	StabilityBySkill []*models.SkillStability `json:"stability_by_skill"`
	Leeches          []*models.Leech          `json:"leeches"`
	ReviewsToday     int                      `json:"reviews_today"`
	ReviewsLast7d    int                      `json:"reviews_last_7d"`
	ReviewsLast30d   int                      `json:"reviews_last_30d"`
	DueTrend         []*models.DueCount       `json:"due_trend"`
}

func (s *Service) Stats(ctx context.Context, userID int64, now time.Time) (*StatsOverview, error) {
	opts, err := s.repo.GetUserOptions(ctx, userID)
	if err != nil {
		return nil, err
	}

	overview := &StatsOverview{}
	if overview.RetentionBySkill, err = s.repo.RetentionBySkill(ctx, userID, now.AddDate(0, 0, -30)); err != nil {
		return nil, err
	}
	if overview.StabilityBySkill, err = s.repo.StabilityBySkill(ctx, userID); err != nil {
		return nil, err
	}
	if overview.Leeches, err = s.repo.ListLeeches(ctx, userID, opts.LeechThreshold, 50); err != nil {
		return nil, err
	}
	if overview.ReviewsToday, err = s.repo.CountReviewsSince(ctx, userID, startOfDay(now)); err != nil {
		return nil, err
	}
	if overview.ReviewsLast7d, err = s.repo.CountReviewsSince(ctx, userID, now.AddDate(0, 0, -7)); err != nil {
		return nil, err
	}
	if overview.ReviewsLast30d, err = s.repo.CountReviewsSince(ctx, userID, now.AddDate(0, 0, -30)); err != nil {
		return nil, err
	}
	if overview.DueTrend, err = s.repo.DueTrend(ctx, userID, startOfDay(now), 7); err != nil {
		return nil, err
	}
	return overview, nil
}

// StatsDaily returns the per-day activity series for the trailing window.
// The window is clamped to 1 through 90 days.
func (s *Service) StatsDaily(ctx context.Context, userID int64, days int, now time.Time) ([]*models.DailyStat, error) {
	days = clampInt(days, 1, 90)
	from := startOfDay(now).AddDate(0, 0, -(days - 1))
	stats, err := s.repo.DailyStats(ctx, userID, from, days)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []*models.DailyStat{}
	}
	return stats, nil
}

// ExportReviews returns the user's full ledger in chronological order,
// optionally restricted to the last days.
func (s *Service) ExportReviews(ctx context.Context, userID int64, days int, now time.Time) ([]models.ReviewEvent, error) {
	var since *time.Time
	if days > 0 {
		t := now.AddDate(0, 0, -days)
		since = &t
	}
	return s.repo.ListAllReviews(ctx, userID, since)
}

// ImportReviews inserts offline events in ascending timestamp order,
// skipping duplicates. With dryRun it only validates and counts.
// Import restores ledger data without rescheduling; SubmitBatch is the
// scheduling-aware path.
func (s *Service) ImportReviews(ctx context.Context, userID int64, events []models.ReviewEvent, dryRun bool) (int, error) {
	if events == nil {
		return 0, fmt.Errorf("reviews must be an array: %w", ErrInvalidInput)
	}
	sortEventsByTime(events)

	inserted := 0
	err := s.repo.RunInTx(ctx, func(tx models.Repository) error {
		for i := range events {
			ev := &events[i]
			if ev.ItemID == 0 || ev.SkillCode == "" || ev.RatingLabel == "" {
				continue
			}
			ev.UserID = userID
			rating := srs.ParseRating(ev.RatingLabel)
			ev.RatingLabel = rating.Label()
			if ev.RatingValue == 0 {
				ev.RatingValue = int(rating)
			}
			if dryRun {
				inserted++
				continue
			}
			if err := tx.AppendReviewIfAbsent(ctx, ev); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("import reviews (user_id: %d): %w", userID, err)
	}
	return inserted, nil
}

func skillCodes(skills []models.Skill) []string {
	codes := make([]string, len(skills))
	for i, sk := range skills {
		codes[i] = sk.Code
	}
	return codes
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
