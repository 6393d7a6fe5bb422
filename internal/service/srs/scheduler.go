package srs

import (
	"time"

	"go.uber.org/zap"
)

// Review is one historical graded event, as the scheduler replays it.
type Review struct {
	At     time.Time
	Rating Rating
}

// Result is the scheduling outcome for one grading event.
type Result struct {
	Stability    *float64 // days; nil in fallback mode
	Difficulty   *float64 // nil in fallback mode
	DueAt        time.Time
	NextLevel    int // coarse display level hint
	UsedFallback bool
}

// Engine is a forgetting-curve algorithm behind a fixed interface. Schedule
// must reconstruct memory state by replaying the entire prior history before
// applying the new rating; desiredRetention is not versioned per event, so
// incremental caching is not an option. Replay rebuilds state from a
// (possibly truncated) history alone, for undo.
type Engine interface {
	Schedule(history []Review, rating Rating, now time.Time, desiredRetention float64) (Result, error)
	Replay(history []Review, desiredRetention float64) (Result, error)
}

// Scheduler turns grading events into updated scheduling state. The primary
// engine is injected at construction; a nil engine means fallback-only.
// Engine failures are swallowed: scheduling always yields a valid due date.
type Scheduler struct {
	engine Engine
}

func NewScheduler(engine Engine) *Scheduler {
	return &Scheduler{engine: engine}
}

// PrimaryAvailable reports whether a primary engine was wired in.
func (s *Scheduler) PrimaryAvailable() bool {
	return s.engine != nil
}

// Schedule computes the next state for a skill currently at level, given its
// full chronological history and a new rating at now.
func (s *Scheduler) Schedule(history []Review, rating Rating, now time.Time, desiredRetention float64, level int) Result {
	desiredRetention = ClampRetention(desiredRetention)

	if s.engine != nil {
		res, err := s.engine.Schedule(history, rating, now, desiredRetention)
		if err == nil {
			res.NextLevel = bumpLevel(level, rating)
			return res
		}
		zap.S().Debugw("primary scheduler failed, using fallback", "error", err)
	}
	return fallbackSchedule(level, rating, now)
}

// Replay rebuilds scheduling state from history alone, after an undo. An
// empty history, a missing engine or an engine failure all reset to unknown
// memory state with the skill due immediately.
func (s *Scheduler) Replay(history []Review, now time.Time, desiredRetention float64) (stability, difficulty *float64, dueAt time.Time) {
	if len(history) == 0 || s.engine == nil {
		return nil, nil, now
	}
	res, err := s.engine.Replay(history, ClampRetention(desiredRetention))
	if err != nil {
		zap.S().Debugw("primary replay failed, resetting state", "error", err)
		return nil, nil, now
	}
	return res.Stability, res.Difficulty, res.DueAt
}

// ClampRetention bounds a desired-retention target to [0.70, 0.99].
func ClampRetention(r float64) float64 {
	if r < 0.70 {
		return 0.70
	}
	if r > 0.99 {
		return 0.99
	}
	return r
}

// bumpLevel keeps the coarse display level moving even when the primary
// algorithm owns the real schedule.
func bumpLevel(level int, rating Rating) int {
	if level < 1 {
		level = 1
	}
	switch rating {
	case Again:
		level--
	case Easy:
		level += 2
	default:
		level++
	}
	if level < 1 {
		return 1
	}
	if level > maxLevel {
		return maxLevel
	}
	return level
}
