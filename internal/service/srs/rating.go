package srs

import "strings"

// Rating is the user's assessment of recall quality, ordinal 1-4.
type Rating int

const (
	Again Rating = iota + 1
	Hard
	Good
	Easy
)

var ratingLabels = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

// Label returns the stored form of the rating ("again", "hard", "good", "easy").
func (r Rating) Label() string {
	if r >= Again && r <= Easy {
		return ratingLabels[r]
	}
	return ratingLabels[Good]
}

// ParseRating maps user input to a rating. Matching is case-insensitive and
// accepts the legacy success/fail labels; anything unrecognized lands on Good.
func ParseRating(input string) Rating {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "again", "fail":
		return Again
	case "hard":
		return Hard
	case "good", "success":
		return Good
	case "easy":
		return Easy
	default:
		return Good
	}
}
