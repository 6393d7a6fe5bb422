package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hanzidex/hanzidex/internal/models"
)

const defaultReminderTime = "09:00"

// Repository is what the reminder sweep needs from storage.
type Repository interface {
	ListReminderTargets(ctx context.Context) ([]*models.ReminderTarget, error)
	CountDueSkills(ctx context.Context, userID int64, at time.Time) (int, error)
}

// Reminder sends Telegram nudges to users whose configured reminder hour
// has arrived and who have something due.
type Reminder struct {
	api  *tgbotapi.BotAPI
	repo Repository
	cron *cron.Cron
}

func NewReminder(token string, repo Repository) (*Reminder, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot API: %w", err)
	}
	return &Reminder{api: api, repo: repo, cron: cron.New()}, nil
}

// Start registers the hourly sweep and starts the cron runner.
func (r *Reminder) Start() error {
	_, err := r.cron.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		r.Sweep(ctx, time.Now())
	})
	if err != nil {
		return fmt.Errorf("register reminder sweep: %w", err)
	}
	r.cron.Start()
	return nil
}

func (r *Reminder) Stop() {
	r.cron.Stop()
}

// Sweep messages every opted-in user whose reminder hour matches now and
// who has at least one due skill. Delivery failures are logged per user and
// never abort the sweep.
func (r *Reminder) Sweep(ctx context.Context, now time.Time) {
	targets, err := r.repo.ListReminderTargets(ctx)
	if err != nil {
		zap.S().Errorw("list reminder targets", "error", err)
		return
	}

	for _, target := range targets {
		if !hourMatches(target.ReminderTime, now) {
			continue
		}
		due, err := r.repo.CountDueSkills(ctx, target.UserID, now)
		if err != nil {
			zap.S().Errorw("count due skills", "user_id", target.UserID, "error", err)
			continue
		}
		if due == 0 {
			continue
		}

		text := fmt.Sprintf("You have %d skill(s) ready to review. 开始吧!", due)
		if _, err := r.api.Send(tgbotapi.NewMessage(target.ChatID, text)); err != nil {
			zap.S().Warnw("send reminder", "user_id", target.UserID, "error", err)
			continue
		}
		zap.S().Infow("reminder sent", "user_id", target.UserID, "due", due)
	}
}

// hourMatches reports whether now falls in the hour of the "HH:MM"
// reminder time, defaulting to 09:00 when unset or malformed.
func hourMatches(reminderTime *string, now time.Time) bool {
	raw := defaultReminderTime
	if reminderTime != nil && *reminderTime != "" {
		raw = *reminderTime
	}
	parts := strings.SplitN(raw, ":", 2)
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		hour = 9
	}
	return now.Hour() == hour
}
