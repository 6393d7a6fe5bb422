package notify

import (
	"testing"
	"time"
)

func TestHourMatches(t *testing.T) {
	nine := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	twenty := time.Date(2026, 3, 1, 20, 5, 0, 0, time.UTC)

	custom := "20:00"
	malformed := "late"

	tests := []struct {
		name string
		at   *string
		now  time.Time
		want bool
	}{
		{"default at nine", nil, nine, true},
		{"default off-hour", nil, twenty, false},
		{"custom hour", &custom, twenty, true},
		{"custom off-hour", &custom, nine, false},
		{"malformed falls back to nine", &malformed, nine, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hourMatches(tt.at, tt.now); got != tt.want {
				t.Errorf("hourMatches = %v, want %v", got, tt.want)
			}
		})
	}
}
