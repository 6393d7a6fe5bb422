package service

import (
	"context"
	"testing"
	"time"

	"github.com/hanzidex/hanzidex/internal/models"
	"github.com/hanzidex/hanzidex/internal/service/srs"
)

func seedQueueItems(f *fakeRepo, user *models.User, n int, discovered bool) []*models.Item {
	items := make([]*models.Item, 0, n)
	for i := 0; i < n; i++ {
		item := f.addItem(&models.Item{
			Value: string(rune('一' + i)),
			Kinds: models.StringList{models.KindCharacter},
		})
		if discovered {
			f.setStatus(user.ID, item.ID, models.StatusDiscovered)
		}
		items = append(items, item)
	}
	return items
}

func TestBuildQueueOrdersRedBeforeAmber(t *testing.T) {
	f := newFakeRepo()
	user := f.addUser("learner")
	items := seedQueueItems(f, user, 2, true)
	svc := newTestService(f)
	ctx := context.Background()

	// Amber: just past due at level 3 (grace 36h).
	amberDue := testNow.Add(-time.Hour)
	f.EnsureSkillProgress(ctx, user.ID, items[0].ID, []string{models.SkillRecognition}, testNow)
	row, _ := f.GetSkillProgress(ctx, user.ID, items[0].ID, models.SkillRecognition)
	row.Level = 3
	row.DueAt = &amberDue
	trained := testNow.Add(-73 * time.Hour)
	row.LastTrainedAt = &trained
	f.UpdateSkillSchedule(ctx, row)

	// Red: far past due.
	redDue := testNow.Add(-80 * time.Hour)
	f.EnsureSkillProgress(ctx, user.ID, items[1].ID, []string{models.SkillRecognition}, testNow)
	row, _ = f.GetSkillProgress(ctx, user.ID, items[1].ID, models.SkillRecognition)
	row.Level = 3
	row.DueAt = &redDue
	f.UpdateSkillSchedule(ctx, row)

	queue, err := svc.BuildQueue(ctx, user.ID, testNow)
	if err != nil {
		t.Fatalf("BuildQueue: %v", err)
	}
	if len(queue.Entries) != 2 {
		t.Fatalf("queue has %d entries, want 2", len(queue.Entries))
	}
	if queue.Entries[0].Status != srs.StatusRed {
		t.Errorf("first entry status = %s, want red", queue.Entries[0].Status)
	}
	if queue.Entries[1].Status != srs.StatusAmber {
		t.Errorf("second entry status = %s, want amber", queue.Entries[1].Status)
	}
}

func TestBuildQueueDropsGreen(t *testing.T) {
	f := newFakeRepo()
	user := f.addUser("learner")
	items := seedQueueItems(f, user, 1, true)
	svc := newTestService(f)
	ctx := context.Background()

	future := testNow.Add(48 * time.Hour)
	f.EnsureSkillProgress(ctx, user.ID, items[0].ID, []string{models.SkillRecognition}, future)
	trained := testNow.Add(-time.Hour)
	row, _ := f.GetSkillProgress(ctx, user.ID, items[0].ID, models.SkillRecognition)
	row.LastTrainedAt = &trained
	f.UpdateSkillSchedule(ctx, row)

	queue, err := svc.BuildQueue(ctx, user.ID, testNow)
	if err != nil {
		t.Fatalf("BuildQueue: %v", err)
	}
	if len(queue.Entries) != 0 {
		t.Errorf("green skills should not enter the queue, got %d", len(queue.Entries))
	}
}

func TestBuildQueueNewLimit(t *testing.T) {
	f := newFakeRepo()
	user := f.addUser("learner")
	items := seedQueueItems(f, user, 12, true)
	svc := newTestService(f)
	ctx := context.Background()

	// Twelve never-trained skills, all due now.
	for _, item := range items {
		f.EnsureSkillProgress(ctx, user.ID, item.ID, []string{models.SkillRecognition}, testNow)
	}

	queue, err := svc.BuildQueue(ctx, user.ID, testNow)
	if err != nil {
		t.Fatalf("BuildQueue: %v", err)
	}
	// Default daily new limit is 10.
	if len(queue.Entries) != 10 {
		t.Fatalf("queue has %d entries, want 10", len(queue.Entries))
	}
	if queue.Meta.NewLimitReached {
		t.Error("new_limit_reached reflects the allowance before selection, not suppression")
	}
	if queue.Meta.SuppressedNew != 2 {
		t.Errorf("suppressed_new = %d, want 2", queue.Meta.SuppressedNew)
	}
	for _, e := range queue.Entries {
		if !e.IsNew {
			t.Errorf("entry %s should be new", e.Value)
		}
	}
}

func TestBuildQueueNewAllowanceExhausted(t *testing.T) {
	f := newFakeRepo()
	user := f.addUser("learner")
	items := seedQueueItems(f, user, 11, true)
	svc := newTestService(f)
	ctx := context.Background()

	// Ten introductions already made today: the new allowance is spent.
	for _, item := range items[:10] {
		f.EnsureSkillProgress(ctx, user.ID, item.ID, []string{models.SkillRecognition}, testNow)
		f.AppendReview(ctx, &models.ReviewEvent{
			UserID:      user.ID,
			ItemID:      item.ID,
			SkillCode:   models.SkillRecognition,
			ReviewedAt:  testNow.Add(-time.Minute),
			RatingLabel: "good",
			RatingValue: 3,
		})
		trained := testNow.Add(-time.Minute)
		row, _ := f.GetSkillProgress(ctx, user.ID, item.ID, models.SkillRecognition)
		row.LastTrainedAt = &trained
		future := testNow.Add(24 * time.Hour)
		row.DueAt = &future
		f.UpdateSkillSchedule(ctx, row)
	}
	// One untouched new skill wants in.
	f.EnsureSkillProgress(ctx, user.ID, items[10].ID, []string{models.SkillRecognition}, testNow)

	queue, err := svc.BuildQueue(ctx, user.ID, testNow)
	if err != nil {
		t.Fatalf("BuildQueue: %v", err)
	}
	for _, e := range queue.Entries {
		if e.IsNew {
			t.Errorf("new entry %s should be suppressed", e.Value)
		}
	}
	if !queue.Meta.NewLimitReached {
		t.Error("new_limit_reached should be set")
	}
	if queue.Meta.RemainingNew != 0 {
		t.Errorf("remaining_new = %d, want 0", queue.Meta.RemainingNew)
	}
}

func TestBuildQueueNewNotCappedByReviewAllowance(t *testing.T) {
	f := newFakeRepo()
	user := f.addUser("learner")
	items := seedQueueItems(f, user, 6, true)
	svc := newTestService(f)
	ctx := context.Background()

	opts := models.DefaultOptions(user.ID)
	opts.DailyReviewLimit = 2
	f.UpsertUserOptions(ctx, opts)

	// Five fresh skills plus one overdue trained one.
	for _, item := range items[:5] {
		f.EnsureSkillProgress(ctx, user.ID, item.ID, []string{models.SkillRecognition}, testNow)
	}
	overdue := testNow.Add(-10 * time.Hour)
	f.EnsureSkillProgress(ctx, user.ID, items[5].ID, []string{models.SkillRecognition}, testNow)
	row, _ := f.GetSkillProgress(ctx, user.ID, items[5].ID, models.SkillRecognition)
	row.Level = 2
	row.DueAt = &overdue
	trained := testNow.Add(-18 * time.Hour)
	row.LastTrainedAt = &trained
	f.UpdateSkillSchedule(ctx, row)

	queue, err := svc.BuildQueue(ctx, user.ID, testNow)
	if err != nil {
		t.Fatalf("BuildQueue: %v", err)
	}
	// Introductions spend only the new allowance. All five fit even though
	// the review allowance is two; the review slots are what they used up.
	if len(queue.Entries) != 5 {
		t.Fatalf("queue has %d entries, want 5", len(queue.Entries))
	}
	for _, e := range queue.Entries {
		if !e.IsNew {
			t.Errorf("entry %s should be new", e.Value)
		}
	}
	if queue.Meta.SuppressedReviews != 1 {
		t.Errorf("suppressed_reviews = %d, want 1", queue.Meta.SuppressedReviews)
	}
	if queue.Meta.ReviewLimitReached {
		t.Error("review_limit_reached should stay false while the allowance is unspent")
	}
}

func TestBuildQueueReviewLimitReached(t *testing.T) {
	f := newFakeRepo()
	user := f.addUser("learner")
	items := seedQueueItems(f, user, 1, true)
	svc := newTestService(f)
	ctx := context.Background()

	opts := models.DefaultOptions(user.ID)
	opts.DailyReviewLimit = 1
	f.UpsertUserOptions(ctx, opts)

	// One review already done today spends the whole allowance.
	f.AppendReview(ctx, &models.ReviewEvent{
		UserID:      user.ID,
		ItemID:      items[0].ID,
		SkillCode:   models.SkillRecognition,
		ReviewedAt:  testNow.Add(-time.Hour),
		RatingLabel: "good",
		RatingValue: 3,
	})
	overdue := testNow.Add(-10 * time.Hour)
	f.EnsureSkillProgress(ctx, user.ID, items[0].ID, []string{models.SkillRecognition}, testNow)
	row, _ := f.GetSkillProgress(ctx, user.ID, items[0].ID, models.SkillRecognition)
	row.Level = 2
	row.DueAt = &overdue
	trained := testNow.Add(-18 * time.Hour)
	row.LastTrainedAt = &trained
	f.UpdateSkillSchedule(ctx, row)

	queue, err := svc.BuildQueue(ctx, user.ID, testNow)
	if err != nil {
		t.Fatalf("BuildQueue: %v", err)
	}
	if len(queue.Entries) != 0 {
		t.Fatalf("queue has %d entries, want 0", len(queue.Entries))
	}
	if !queue.Meta.ReviewLimitReached {
		t.Error("review_limit_reached should be set")
	}
	if queue.Meta.RemainingReviews != 0 {
		t.Errorf("remaining_reviews = %d, want 0", queue.Meta.RemainingReviews)
	}
}

func TestBuildQueueBuriesSiblings(t *testing.T) {
	f := newFakeRepo()
	user := f.addUser("learner")
	items := seedQueueItems(f, user, 1, true)
	svc := newTestService(f)
	ctx := context.Background()

	codes := []string{models.SkillRecognition, models.SkillMeaning, models.SkillPinyin}
	f.EnsureSkillProgress(ctx, user.ID, items[0].ID, codes, testNow)

	queue, err := svc.BuildQueue(ctx, user.ID, testNow)
	if err != nil {
		t.Fatalf("BuildQueue: %v", err)
	}
	// bury_siblings defaults on: one skill per item per session.
	if len(queue.Entries) != 1 {
		t.Fatalf("queue has %d entries, want 1", len(queue.Entries))
	}

	opts := models.DefaultOptions(user.ID)
	opts.BurySiblings = false
	f.UpsertUserOptions(ctx, opts)

	queue, err = svc.BuildQueue(ctx, user.ID, testNow)
	if err != nil {
		t.Fatalf("BuildQueue: %v", err)
	}
	if len(queue.Entries) != 3 {
		t.Fatalf("queue has %d entries with burying off, want 3", len(queue.Entries))
	}
}

func TestBuildQueueCardHints(t *testing.T) {
	f := newFakeRepo()
	user := f.addUser("learner")
	pinyin := "shuǐ"
	english := "water"
	item := f.addItem(&models.Item{
		Value:             "水",
		Kinds:             models.StringList{models.KindCharacter},
		Pinyin:            &pinyin,
		EnglishDefinition: &english,
	})
	f.setStatus(user.ID, item.ID, models.StatusDiscovered)
	svc := newTestService(f)
	ctx := context.Background()

	opts := models.DefaultOptions(user.ID)
	opts.BurySiblings = false
	f.UpsertUserOptions(ctx, opts)

	f.EnsureSkillProgress(ctx, user.ID, item.ID,
		[]string{models.SkillRecognition, models.SkillMeaning, models.SkillPinyin}, testNow)

	queue, err := svc.BuildQueue(ctx, user.ID, testNow)
	if err != nil {
		t.Fatalf("BuildQueue: %v", err)
	}
	byCode := map[string]QueueEntry{}
	for _, e := range queue.Entries {
		byCode[e.SkillCode] = e
	}

	if e := byCode[models.SkillRecognition]; e.CardFront != "水" || e.CardBack != pinyin+" · "+english {
		t.Errorf("recognition card = %q / %q", e.CardFront, e.CardBack)
	}
	if e := byCode[models.SkillMeaning]; e.CardFront != english || e.CardBack != "水 · "+pinyin {
		t.Errorf("meaning card = %q / %q", e.CardFront, e.CardBack)
	}
	if e := byCode[models.SkillPinyin]; e.CardFront != "水" || e.CardBack != pinyin {
		t.Errorf("pinyin card = %q / %q", e.CardFront, e.CardBack)
	}
}
