package models

import (
	"context"
	"time"
)

// ReminderTarget is a user eligible for a reminder nudge.
type ReminderTarget struct {
	UserID        int64   `db:"user_id"`
	ChatID        int64   `db:"telegram_chat_id"`
	ReminderTime  *string `db:"reminder_time"`
	NudgesEnabled bool    `db:"nudges_enabled"`
}

// Repository is the persistence contract the engine runs against. An
// implementation obtained inside RunInTx routes every call through one
// transaction; mutating operations of a user action either fully commit
// or fully roll back.
type Repository interface {
	RunInTx(ctx context.Context, fn func(Repository) error) error

	// Users.
	CreateUser(ctx context.Context, username string) (*User, error)
	GetUser(ctx context.Context, userID int64) (*User, error)
	SetTelegramChat(ctx context.Context, userID, chatID int64) error
	ProvisionItemProgress(ctx context.Context, userID int64) (int64, error)

	// Catalog (read-mostly; UpsertItem serves the importer only).
	GetItemByID(ctx context.Context, id int64) (*Item, error)
	GetItemWithStatus(ctx context.Context, userID int64, value string) (*ItemWithStatus, error)
	ListItemsByStatus(ctx context.Context, userID int64, status ItemStatus) ([]*ItemWithStatus, error)
	ListLockedItemsByTier(ctx context.Context, userID int64, tier, limit int) ([]*Item, error)
	FindWordsContaining(ctx context.Context, value string) ([]*Item, error)
	UpsertItem(ctx context.Context, item *Item) error
	BackfillLockedProgress(ctx context.Context) (int64, error)

	// Lifecycle status. PromoteItemStatus is a conditional write: it only
	// applies when the current status is one of from, and reports whether
	// it did. That makes promotion idempotent under retry and concurrency.
	GetItemStatus(ctx context.Context, userID, itemID int64) (ItemStatus, error)
	PromoteItemStatus(ctx context.Context, userID, itemID int64, from []ItemStatus, to ItemStatus) (bool, error)

	// Skill progress.
	EnsureSkillProgress(ctx context.Context, userID, itemID int64, skillCodes []string, dueAt time.Time) error
	GetSkillProgress(ctx context.Context, userID, itemID int64, skillCode string) (*SkillProgress, error)
	ListItemSkillProgress(ctx context.Context, userID, itemID int64) ([]*SkillProgressEntry, error)
	ListDueSkillProgress(ctx context.Context, userID int64, now time.Time, limit int) ([]*SkillProgressEntry, error)
	UpdateSkillSchedule(ctx context.Context, p *SkillProgress) error
	SetSkillSuspended(ctx context.Context, userID, itemID int64, skillCode string, suspended bool) (bool, error)

	// Review ledger.
	AppendReview(ctx context.Context, ev *ReviewEvent) error
	AppendReviewIfAbsent(ctx context.Context, ev *ReviewEvent) error
	ListReviews(ctx context.Context, userID, itemID int64, skillCode string) ([]ReviewEvent, error)
	ListAllReviews(ctx context.Context, userID int64, since *time.Time) ([]ReviewEvent, error)
	DeleteLastReview(ctx context.Context, userID, itemID int64, skillCode string) (bool, error)
	CountReviewsSince(ctx context.Context, userID int64, since time.Time) (int, error)
	CountFirstReviewsSince(ctx context.Context, userID int64, since time.Time) (int, error)
	CountDueSkills(ctx context.Context, userID int64, at time.Time) (int, error)

	// Stats.
	RetentionBySkill(ctx context.Context, userID int64, since time.Time) ([]*SkillRetention, error)
	StabilityBySkill(ctx context.Context, userID int64) ([]*SkillStability, error)
	ListLeeches(ctx context.Context, userID int64, threshold, limit int) ([]*Leech, error)
	DueTrend(ctx context.Context, userID int64, from time.Time, days int) ([]*DueCount, error)
	DailyStats(ctx context.Context, userID int64, from time.Time, days int) ([]*DailyStat, error)

	// Options and reminders.
	GetUserOptions(ctx context.Context, userID int64) (*UserOptions, error)
	UpsertUserOptions(ctx context.Context, opts *UserOptions) error
	ListReminderTargets(ctx context.Context) ([]*ReminderTarget, error)
}
