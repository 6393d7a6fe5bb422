package srs

import "time"

const maxLevel = 60

// fallbackSchedule is the discrete level-based heuristic used whenever the
// primary engine is unavailable or fails. It never produces stability or
// difficulty values; consumers treat their absence as "use the level-table
// decay model".
func fallbackSchedule(level int, rating Rating, now time.Time) Result {
	if level < 1 {
		level = 1
	}

	var nextLevel int
	var interval time.Duration
	switch rating {
	case Again:
		nextLevel = level - 1
		if nextLevel < 1 {
			nextLevel = 1
		}
		interval = floorDuration(IntervalForLevel(nextLevel)/4, 2*time.Hour)
	case Hard:
		nextLevel = level
		interval = floorDuration(IntervalForLevel(nextLevel)*6/10, 6*time.Hour)
	case Easy:
		nextLevel = level + 2
		if nextLevel > maxLevel {
			nextLevel = maxLevel
		}
		interval = IntervalForLevel(nextLevel) * 12 / 10
	default: // Good, including unrecognized ratings
		nextLevel = level + 1
		if nextLevel > maxLevel {
			nextLevel = maxLevel
		}
		interval = IntervalForLevel(nextLevel)
	}

	return Result{
		DueAt:        now.Add(interval),
		NextLevel:    nextLevel,
		UsedFallback: true,
	}
}

func floorDuration(d, floor time.Duration) time.Duration {
	if d < floor {
		return floor
	}
	return d
}
