package srs

import (
	"math"
	"time"
)

// TrafficStatus is the hard, schedule-driven display state of a skill.
type TrafficStatus string

const (
	StatusGreen TrafficStatus = "green"
	StatusAmber TrafficStatus = "amber"
	StatusRed   TrafficStatus = "red"
)

// levelIntervalHours maps a coarse level to its base interval. Levels beyond
// the table cap at the last entry.
var levelIntervalHours = []int{0, 8, 24, 72, 168, 336, 720}

const minGrace = 4 * time.Hour

// IntervalForLevel returns the base interval for a level.
func IntervalForLevel(level int) time.Duration {
	if level < 0 {
		level = 0
	}
	if level >= len(levelIntervalHours) {
		level = len(levelIntervalHours) - 1
	}
	return time.Duration(levelIntervalHours[level]) * time.Hour
}

// GraceForLevel returns how long past due a skill stays amber before
// turning red: half the base interval, but at least four hours.
func GraceForLevel(level int) time.Duration {
	if g := IntervalForLevel(level) / 2; g > minGrace {
		return g
	}
	return minGrace
}

// Retrievability estimates the probability of recall at now.
//
// A never-trained skill reads 0.6: trainable, not yet decaying. With a known
// stability (days) the decay is exp(-elapsedDays/stability); without one the
// level's base interval stands in as a synthetic stability. Clamped to
// [0.01, 0.99].
func Retrievability(lastTrainedAt *time.Time, stability *float64, level int, now time.Time) float64 {
	if lastTrainedAt == nil {
		return 0.6
	}
	elapsed := now.Sub(*lastTrainedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	var r float64
	if stability != nil && *stability > 0 {
		elapsedDays := elapsed.Hours() / 24
		r = math.Exp(-elapsedDays / *stability)
	} else {
		synthetic := IntervalForLevel(level)
		if synthetic < minGrace {
			synthetic = minGrace
		}
		r = math.Exp(-float64(elapsed) / float64(synthetic))
	}
	return clamp(r, 0.01, 0.99)
}

// StatusOf classifies a skill by its due date, not by retrievability.
// A nil due date is amber: new material is immediately trainable without
// being alarming. The two signals are allowed to disagree; status answers
// "is it overdue", retrievability answers "how confident is recall".
func StatusOf(now time.Time, dueAt *time.Time, level int) TrafficStatus {
	if dueAt == nil {
		return StatusAmber
	}
	if now.Before(*dueAt) {
		return StatusGreen
	}
	if now.Before(dueAt.Add(GraceForLevel(level))) {
		return StatusAmber
	}
	return StatusRed
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
