package service

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/hanzidex/hanzidex/internal/models"
)

// fakeRepo is an in-memory models.Repository for service tests.
type fakeRepo struct {
	nextUserID int64
	nextItemID int64

	users    map[int64]*models.User
	items    map[int64]*models.Item
	byValue  map[string]int64
	statuses map[progressKey]models.ItemStatus
	skills   map[skillKey]*models.SkillProgress
	reviews  []models.ReviewEvent
	options  map[int64]*models.UserOptions
}

type progressKey struct {
	userID int64
	itemID int64
}

type skillKey struct {
	userID    int64
	itemID    int64
	skillCode string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    make(map[int64]*models.User),
		items:    make(map[int64]*models.Item),
		byValue:  make(map[string]int64),
		statuses: make(map[progressKey]models.ItemStatus),
		skills:   make(map[skillKey]*models.SkillProgress),
		options:  make(map[int64]*models.UserOptions),
	}
}

// addItem seeds a catalog item and a LOCKED progress row for every user.
func (f *fakeRepo) addItem(item *models.Item) *models.Item {
	f.nextItemID++
	item.ID = f.nextItemID
	f.items[item.ID] = item
	f.byValue[item.Value] = item.ID
	for userID := range f.users {
		f.statuses[progressKey{userID, item.ID}] = models.StatusLocked
	}
	return item
}

func (f *fakeRepo) addUser(username string) *models.User {
	f.nextUserID++
	u := &models.User{ID: f.nextUserID, Username: username, CreatedAt: time.Now()}
	f.users[u.ID] = u
	for itemID := range f.items {
		f.statuses[progressKey{u.ID, itemID}] = models.StatusLocked
	}
	return u
}

func (f *fakeRepo) setStatus(userID, itemID int64, status models.ItemStatus) {
	f.statuses[progressKey{userID, itemID}] = status
}

func (f *fakeRepo) RunInTx(ctx context.Context, fn func(models.Repository) error) error {
	return fn(f)
}

func (f *fakeRepo) CreateUser(ctx context.Context, username string) (*models.User, error) {
	return f.addUser(username), nil
}

func (f *fakeRepo) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeRepo) SetTelegramChat(ctx context.Context, userID, chatID int64) error {
	u, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.TelegramChatID = &chatID
	return nil
}

func (f *fakeRepo) ProvisionItemProgress(ctx context.Context, userID int64) (int64, error) {
	var n int64
	for itemID := range f.items {
		key := progressKey{userID, itemID}
		if _, ok := f.statuses[key]; !ok {
			f.statuses[key] = models.StatusLocked
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) GetItemByID(ctx context.Context, id int64) (*models.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeRepo) GetItemWithStatus(ctx context.Context, userID int64, value string) (*models.ItemWithStatus, error) {
	id, ok := f.byValue[value]
	if !ok {
		return nil, sql.ErrNoRows
	}
	status, ok := f.statuses[progressKey{userID, id}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.ItemWithStatus{Item: *f.items[id], Status: status}, nil
}

func (f *fakeRepo) ListItemsByStatus(ctx context.Context, userID int64, status models.ItemStatus) ([]*models.ItemWithStatus, error) {
	var out []*models.ItemWithStatus
	for key, got := range f.statuses {
		if key.userID != userID || got != status {
			continue
		}
		out = append(out, &models.ItemWithStatus{Item: *f.items[key.itemID], Status: got})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) ListLockedItemsByTier(ctx context.Context, userID int64, tier, limit int) ([]*models.Item, error) {
	var out []*models.Item
	for key, status := range f.statuses {
		if key.userID != userID || status != models.StatusLocked {
			continue
		}
		item := f.items[key.itemID]
		level := 1
		if item.HSKLevel != nil {
			level = *item.HSKLevel
		}
		if level == tier {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) FindWordsContaining(ctx context.Context, value string) ([]*models.Item, error) {
	var out []*models.Item
	for _, item := range f.items {
		if item.HasKind(models.KindWord) && item.ConstituentItems.Contains(value) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) UpsertItem(ctx context.Context, item *models.Item) error {
	if id, ok := f.byValue[item.Value]; ok {
		item.ID = id
		f.items[id] = item
		return nil
	}
	f.addItem(item)
	return nil
}

func (f *fakeRepo) BackfillLockedProgress(ctx context.Context) (int64, error) {
	var n int64
	for userID := range f.users {
		added, _ := f.ProvisionItemProgress(ctx, userID)
		n += added
	}
	return n, nil
}

func (f *fakeRepo) GetItemStatus(ctx context.Context, userID, itemID int64) (models.ItemStatus, error) {
	status, ok := f.statuses[progressKey{userID, itemID}]
	if !ok {
		return "", sql.ErrNoRows
	}
	return status, nil
}

func (f *fakeRepo) PromoteItemStatus(ctx context.Context, userID, itemID int64, from []models.ItemStatus, to models.ItemStatus) (bool, error) {
	key := progressKey{userID, itemID}
	current, ok := f.statuses[key]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if current == s {
			f.statuses[key] = to
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) EnsureSkillProgress(ctx context.Context, userID, itemID int64, skillCodes []string, dueAt time.Time) error {
	for _, code := range skillCodes {
		key := skillKey{userID, itemID, code}
		if _, ok := f.skills[key]; ok {
			continue
		}
		due := dueAt
		f.skills[key] = &models.SkillProgress{
			UserID:    userID,
			ItemID:    itemID,
			SkillCode: code,
			Level:     1,
			DueAt:     &due,
		}
	}
	return nil
}

func (f *fakeRepo) GetSkillProgress(ctx context.Context, userID, itemID int64, skillCode string) (*models.SkillProgress, error) {
	p, ok := f.skills[skillKey{userID, itemID, skillCode}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) entryFor(p *models.SkillProgress) *models.SkillProgressEntry {
	item := f.items[p.ItemID]
	entry := &models.SkillProgressEntry{
		SkillProgress: *p,
		Value:         item.Value,
		Kinds:         item.Kinds,
		Pinyin:        item.Pinyin,
	}
	entry.EnglishDefinition = item.EnglishDefinition
	for _, s := range models.SkillsForKinds(item.Kinds) {
		if s.Code == p.SkillCode {
			entry.SkillLabel = s.Label
		}
	}
	return entry
}

func (f *fakeRepo) ListItemSkillProgress(ctx context.Context, userID, itemID int64) ([]*models.SkillProgressEntry, error) {
	var out []*models.SkillProgressEntry
	for key, p := range f.skills {
		if key.userID == userID && key.itemID == itemID {
			out = append(out, f.entryFor(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillCode < out[j].SkillCode })
	return out, nil
}

func (f *fakeRepo) ListDueSkillProgress(ctx context.Context, userID int64, now time.Time, limit int) ([]*models.SkillProgressEntry, error) {
	var out []*models.SkillProgressEntry
	for key, p := range f.skills {
		if key.userID != userID || p.Suspended {
			continue
		}
		out = append(out, f.entryFor(p))
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := now, now
		if out[i].DueAt != nil {
			di = *out[i].DueAt
		}
		if out[j].DueAt != nil {
			dj = *out[j].DueAt
		}
		if di.Equal(dj) {
			return out[i].ItemID < out[j].ItemID
		}
		return di.Before(dj)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) UpdateSkillSchedule(ctx context.Context, p *models.SkillProgress) error {
	key := skillKey{p.UserID, p.ItemID, p.SkillCode}
	if _, ok := f.skills[key]; !ok {
		return sql.ErrNoRows
	}
	cp := *p
	f.skills[key] = &cp
	return nil
}

func (f *fakeRepo) SetSkillSuspended(ctx context.Context, userID, itemID int64, skillCode string, suspended bool) (bool, error) {
	p, ok := f.skills[skillKey{userID, itemID, skillCode}]
	if !ok {
		return false, nil
	}
	p.Suspended = suspended
	return true, nil
}

func (f *fakeRepo) AppendReview(ctx context.Context, ev *models.ReviewEvent) error {
	f.reviews = append(f.reviews, *ev)
	return nil
}

func (f *fakeRepo) AppendReviewIfAbsent(ctx context.Context, ev *models.ReviewEvent) error {
	for _, existing := range f.reviews {
		if existing.UserID == ev.UserID && existing.ItemID == ev.ItemID &&
			existing.SkillCode == ev.SkillCode && existing.ReviewedAt.Equal(ev.ReviewedAt) {
			return nil
		}
	}
	f.reviews = append(f.reviews, *ev)
	return nil
}

func (f *fakeRepo) ListReviews(ctx context.Context, userID, itemID int64, skillCode string) ([]models.ReviewEvent, error) {
	var out []models.ReviewEvent
	for _, ev := range f.reviews {
		if ev.UserID == userID && ev.ItemID == itemID && ev.SkillCode == skillCode {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReviewedAt.Before(out[j].ReviewedAt) })
	return out, nil
}

func (f *fakeRepo) ListAllReviews(ctx context.Context, userID int64, since *time.Time) ([]models.ReviewEvent, error) {
	var out []models.ReviewEvent
	for _, ev := range f.reviews {
		if ev.UserID != userID {
			continue
		}
		if since != nil && ev.ReviewedAt.Before(*since) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReviewedAt.Before(out[j].ReviewedAt) })
	return out, nil
}

func (f *fakeRepo) DeleteLastReview(ctx context.Context, userID, itemID int64, skillCode string) (bool, error) {
	latest := -1
	for i, ev := range f.reviews {
		if ev.UserID != userID || ev.ItemID != itemID || ev.SkillCode != skillCode {
			continue
		}
		if latest == -1 || ev.ReviewedAt.After(f.reviews[latest].ReviewedAt) {
			latest = i
		}
	}
	if latest == -1 {
		return false, nil
	}
	f.reviews = append(f.reviews[:latest], f.reviews[latest+1:]...)
	return true, nil
}

func (f *fakeRepo) CountReviewsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	n := 0
	for _, ev := range f.reviews {
		if ev.UserID == userID && !ev.ReviewedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) CountFirstReviewsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	first := make(map[skillKey]time.Time)
	for _, ev := range f.reviews {
		if ev.UserID != userID {
			continue
		}
		key := skillKey{ev.UserID, ev.ItemID, ev.SkillCode}
		if t, ok := first[key]; !ok || ev.ReviewedAt.Before(t) {
			first[key] = ev.ReviewedAt
		}
	}
	n := 0
	for _, t := range first {
		if !t.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) CountDueSkills(ctx context.Context, userID int64, at time.Time) (int, error) {
	n := 0
	for key, p := range f.skills {
		if key.userID != userID || p.Suspended {
			continue
		}
		if p.DueAt == nil || !p.DueAt.After(at) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) RetentionBySkill(ctx context.Context, userID int64, since time.Time) ([]*models.SkillRetention, error) {
	return nil, nil
}

func (f *fakeRepo) StabilityBySkill(ctx context.Context, userID int64) ([]*models.SkillStability, error) {
	return nil, nil
}

func (f *fakeRepo) ListLeeches(ctx context.Context, userID int64, threshold, limit int) ([]*models.Leech, error) {
	return nil, nil
}

func (f *fakeRepo) DueTrend(ctx context.Context, userID int64, from time.Time, days int) ([]*models.DueCount, error) {
	return nil, nil
}

func (f *fakeRepo) DailyStats(ctx context.Context, userID int64, from time.Time, days int) ([]*models.DailyStat, error) {
	stats := make([]*models.DailyStat, days)
	for i := range stats {
		day := from.AddDate(0, 0, i)
		stat := &models.DailyStat{Date: day}
		for _, ev := range f.reviews {
			if ev.UserID != userID || ev.ReviewedAt.Before(day) || !ev.ReviewedAt.Before(day.AddDate(0, 0, 1)) {
				continue
			}
			stat.Total++
			if ev.RatingLabel != "again" {
				stat.Correct++
			}
			if ev.DurationMs != nil {
				stat.TimeSpentMs += *ev.DurationMs
			}
		}
		if stat.Total > 0 {
			r := float64(stat.Correct) / float64(stat.Total)
			stat.Retention = &r
		}
		stats[i] = stat
	}
	return stats, nil
}

func (f *fakeRepo) GetUserOptions(ctx context.Context, userID int64) (*models.UserOptions, error) {
	if opts, ok := f.options[userID]; ok {
		cp := *opts
		return &cp, nil
	}
	return models.DefaultOptions(userID), nil
}

func (f *fakeRepo) UpsertUserOptions(ctx context.Context, opts *models.UserOptions) error {
	cp := *opts
	f.options[opts.UserID] = &cp
	return nil
}

func (f *fakeRepo) ListReminderTargets(ctx context.Context) ([]*models.ReminderTarget, error) {
	var out []*models.ReminderTarget
	for _, u := range f.users {
		if u.TelegramChatID == nil {
			continue
		}
		opts, _ := f.GetUserOptions(ctx, u.ID)
		if !opts.RemindersEnabled {
			continue
		}
		out = append(out, &models.ReminderTarget{
			UserID:        u.ID,
			ChatID:        *u.TelegramChatID,
			ReminderTime:  opts.ReminderTime,
			NudgesEnabled: opts.NudgesEnabled,
		})
	}
	return out, nil
}

var _ models.Repository = (*fakeRepo)(nil)
