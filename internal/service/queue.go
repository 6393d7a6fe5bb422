package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hanzidex/hanzidex/internal/models"
	"github.com/hanzidex/hanzidex/internal/service/srs"
)

const queueScanLimit = 200

// QueueEntry is one reviewable skill, already urgency-ordered and paired
// with a basic card hint for the client.
type QueueEntry struct {
	ItemID         int64             `json:"item_id"`
	Value          string            `json:"value"`
	SkillCode      string            `json:"skill_code"`
	SkillLabel     string            `json:"skill_label"`
	Level          int               `json:"level"`
	DueAt          *time.Time        `json:"due_at"`
	Status         srs.TrafficStatus `json:"status"`
	Retrievability float64           `json:"retrievability"`
	IsNew          bool              `json:"is_new"`
	CardFront      string            `json:"card_front"`
	CardBack       string            `json:"card_back"`
}

// QueueMeta explains how the daily allowances shaped the queue.
type QueueMeta struct {
	DailyNewLimit      int  `json:"daily_new_limit"`
	DailyReviewLimit   int  `json:"daily_review_limit"`
	RemainingNew       int  `json:"remaining_new"`
	RemainingReviews   int  `json:"remaining_reviews"`
	PotentialNew       int  `json:"potential_new"`
	PotentialReviews   int  `json:"potential_reviews"`
	SuppressedNew      int  `json:"suppressed_new"`
	SuppressedReviews  int  `json:"suppressed_reviews"`
	NewLimitReached    bool `json:"new_limit_reached"`
	ReviewLimitReached bool `json:"review_limit_reached"`
}

// Queue is the ordered review queue plus allowance metadata.
type Queue struct {
	Entries []QueueEntry `json:"entries"`
	Meta    QueueMeta    `json:"meta"`
}

// BuildQueue assembles the review queue: scan due rows, drop anything still
// green, order red before amber with lower retrievability first, then apply
// the daily introduction and review allowances counted from local midnight.
func (s *Service) BuildQueue(ctx context.Context, userID int64, now time.Time) (*Queue, error) {
	opts, err := s.repo.GetUserOptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get options (user_id: %d): %w", userID, err)
	}

	rows, err := s.repo.ListDueSkillProgress(ctx, userID, now, queueScanLimit)
	if err != nil {
		return nil, fmt.Errorf("list due skills (user_id: %d): %w", userID, err)
	}

	entries := make([]QueueEntry, 0, len(rows))
	for _, row := range rows {
		status := srs.StatusOf(now, row.DueAt, row.Level)
		if status == srs.StatusGreen {
			continue
		}
		front, back := cardSides(row)
		entries = append(entries, QueueEntry{
			ItemID:         row.ItemID,
			Value:          row.Value,
			SkillCode:      row.SkillCode,
			SkillLabel:     row.SkillLabel,
			Level:          row.Level,
			DueAt:          row.DueAt,
			Status:         status,
			Retrievability: srs.Retrievability(row.LastTrainedAt, row.Stability, row.Level, now),
			IsNew:          row.LastTrainedAt == nil,
			CardFront:      front,
			CardBack:       back,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Status != entries[j].Status {
			return entries[i].Status == srs.StatusRed
		}
		return entries[i].Retrievability < entries[j].Retrievability
	})

	if opts.BurySiblings {
		entries = burySiblings(entries)
	}

	var newEntries, reviewEntries []QueueEntry
	for _, e := range entries {
		if e.IsNew {
			newEntries = append(newEntries, e)
		} else {
			reviewEntries = append(reviewEntries, e)
		}
	}

	midnight := startOfDay(now)
	introducedToday, err := s.repo.CountFirstReviewsSince(ctx, userID, midnight)
	if err != nil {
		return nil, fmt.Errorf("count introductions (user_id: %d): %w", userID, err)
	}
	reviewedToday, err := s.repo.CountReviewsSince(ctx, userID, midnight)
	if err != nil {
		return nil, fmt.Errorf("count reviews (user_id: %d): %w", userID, err)
	}

	availableNew := maxInt(0, opts.DailyNewLimit-introducedToday)
	availableTotal := maxInt(0, opts.DailyReviewLimit-reviewedToday)

	// New introductions spend only the new allowance; the review allowance
	// bounds the remaining slots.
	selectedNew := takeEntries(newEntries, availableNew)
	selectedReviews := takeEntries(reviewEntries, maxInt(0, availableTotal-len(selectedNew)))

	q := &Queue{
		Entries: append(selectedNew, selectedReviews...),
		Meta: QueueMeta{
			DailyNewLimit:      opts.DailyNewLimit,
			DailyReviewLimit:   opts.DailyReviewLimit,
			RemainingNew:       availableNew,
			RemainingReviews:   availableTotal,
			PotentialNew:       len(newEntries),
			PotentialReviews:   len(reviewEntries),
			SuppressedNew:      len(newEntries) - len(selectedNew),
			SuppressedReviews:  len(reviewEntries) - len(selectedReviews),
			NewLimitReached:    availableNew == 0 && len(newEntries) > 0,
			ReviewLimitReached: availableTotal == 0 && len(reviewEntries) > 0,
		},
	}
	if q.Entries == nil {
		q.Entries = []QueueEntry{}
	}
	return q, nil
}

// burySiblings keeps only the most urgent skill of each item. Entries are
// already urgency-sorted, so the first occurrence wins.
func burySiblings(entries []QueueEntry) []QueueEntry {
	seen := make(map[int64]bool, len(entries))
	kept := entries[:0]
	for _, e := range entries {
		if seen[e.ItemID] {
			continue
		}
		seen[e.ItemID] = true
		kept = append(kept, e)
	}
	return kept
}

func cardSides(row *models.SkillProgressEntry) (front, back string) {
	pinyin := strOrEmpty(row.Pinyin)
	english := strOrEmpty(row.EnglishDefinition)

	switch row.SkillCode {
	case models.SkillMeaning, models.SkillWordMeaning:
		front = english
		if front == "" {
			front = "Meaning?"
		}
		back = joinHint(row.Value, pinyin)
	case models.SkillPinyin:
		front = row.Value
		back = pinyin
	case models.SkillWriting:
		front = row.Value
		back = joinHint(pinyin, english)
	default:
		front = row.Value
		back = joinHint(pinyin, english)
	}
	return front, back
}

func joinHint(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " · " + b
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func takeEntries(entries []QueueEntry, n int) []QueueEntry {
	if n >= len(entries) {
		n = len(entries)
	}
	return entries[:n]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
