package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ItemStatus is the per-user lifecycle state of a catalog item.
// Transitions only ever move forward: LOCKED → DISCOVERABLE → DISCOVERED.
type ItemStatus string

const (
	StatusLocked       ItemStatus = "LOCKED"
	StatusDiscoverable ItemStatus = "DISCOVERABLE"
	StatusDiscovered   ItemStatus = "DISCOVERED"
)

// Item kinds. An item may carry several kinds at once (e.g. 女 is both a
// character and a radical).
const (
	KindCharacter = "character"
	KindWord      = "word"
	KindRadical   = "radical"
)

// StringList is a JSONB-encoded list of strings.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan StringList: unsupported type %T", src)
	}
	return json.Unmarshal(data, l)
}

// Contains reports whether the list holds the given value.
func (l StringList) Contains(v string) bool {
	for _, s := range l {
		if s == v {
			return true
		}
	}
	return false
}

// Item is a learnable unit from the shared catalog: a character, word or
// radical. Items are immutable reference data; the engine only reads them.
type Item struct {
	ID                int64      `db:"id" json:"id"`
	Value             string     `db:"value" json:"value"`
	Kinds             StringList `db:"kinds" json:"kinds"`
	HSKLevel          *int       `db:"hsk_level" json:"hsk_level"` // nil means custom material
	Components        StringList `db:"components" json:"components"`
	ConstituentItems  StringList `db:"constituent_items" json:"constituent_items"`
	RadicalsContained StringList `db:"radicals_contained" json:"radicals_contained"`
	Pinyin            *string    `db:"pinyin" json:"pinyin"`
	EnglishDefinition *string    `db:"english_definition" json:"english_definition"`
	StrokeCount       *int       `db:"stroke_count" json:"stroke_count"`
}

// HasKind reports whether the item carries the given kind tag.
func (i *Item) HasKind(kind string) bool {
	return i.Kinds.Contains(kind)
}

// ItemWithStatus is a catalog item joined with the user's lifecycle status.
type ItemWithStatus struct {
	Item
	Status ItemStatus `db:"status" json:"status"`
}

type User struct {
	ID             int64     `db:"id"`
	Username       string    `db:"username"`
	TelegramChatID *int64    `db:"telegram_chat_id"`
	CreatedAt      time.Time `db:"created_at"`
}

// Skill is a named trainable facet of an item kind. The catalog of skills
// is static and seeded by migration.
type Skill struct {
	Code  string `db:"code" json:"code"`
	Label string `db:"label" json:"label"`
}

// Skill codes.
const (
	SkillRecognition        = "recognition"
	SkillMeaning            = "meaning"
	SkillPinyin             = "pinyin"
	SkillWriting            = "writing"
	SkillWordRecognition    = "word_recognition"
	SkillWordMeaning        = "word_meaning"
	SkillRadicalRecognition = "radical_recognition"
)

// Skill catalogs per item kind. Items with multiple kinds get the union.
var (
	CharacterSkills = []Skill{
		{Code: SkillRecognition, Label: "Character Recognition"},
		{Code: SkillMeaning, Label: "Meaning Recall"},
		{Code: SkillPinyin, Label: "Pinyin Recall"},
		{Code: SkillWriting, Label: "Character Writing"},
	}
	WordSkills = []Skill{
		{Code: SkillWordRecognition, Label: "Word Recognition"},
		{Code: SkillWordMeaning, Label: "Word Meaning Recall"},
	}
	RadicalSkills = []Skill{
		{Code: SkillRadicalRecognition, Label: "Radical Recognition"},
	}
)

// SkillsForKinds returns the union of skill catalogs applicable to the
// given kind set, in catalog order.
func SkillsForKinds(kinds StringList) []Skill {
	var out []Skill
	if kinds.Contains(KindCharacter) {
		out = append(out, CharacterSkills...)
	}
	if kinds.Contains(KindWord) {
		out = append(out, WordSkills...)
	}
	if kinds.Contains(KindRadical) {
		out = append(out, RadicalSkills...)
	}
	return out
}

// SkillProgress is the per (user, item, skill) scheduling state. Stability
// and difficulty are only set when the primary algorithm produced them;
// nil means downstream consumers use the level-table decay model.
type SkillProgress struct {
	UserID        int64      `db:"user_id"`
	ItemID        int64      `db:"item_id"`
	SkillCode     string     `db:"skill_code"`
	Level         int        `db:"level"`
	LastTrainedAt *time.Time `db:"last_trained_at"`
	DueAt         *time.Time `db:"due_at"`
	Stability     *float64   `db:"stability"` // days
	Difficulty    *float64   `db:"difficulty"`
	Suspended     bool       `db:"suspended"`
}

// SkillProgressEntry is a progress row joined with its item and skill label,
// as the queue builder consumes it.
type SkillProgressEntry struct {
	SkillProgress
	Value             string     `db:"value"`
	Kinds             StringList `db:"kinds"`
	Pinyin            *string    `db:"pinyin"`
	EnglishDefinition *string    `db:"english_definition"`
	SkillLabel        string     `db:"skill_label"`
}

// ReviewEvent is one graded training event. The ledger of these events is
// append-only and is the sole replayable source of scheduling truth.
type ReviewEvent struct {
	UserID       int64     `db:"user_id" json:"user_id"`
	ItemID       int64     `db:"item_id" json:"item_id"`
	SkillCode    string    `db:"skill_code" json:"skill_code"`
	ReviewedAt   time.Time `db:"reviewed_at" json:"reviewed_at"`
	RatingLabel  string    `db:"rating_label" json:"rating_label"`
	RatingValue  int       `db:"rating_value" json:"rating_value"`
	DurationMs   *int      `db:"duration_ms" json:"duration_ms,omitempty"`
	ExperimentID *string   `db:"experiment_id" json:"experiment_id,omitempty"`
}

// UserOptions is per-user configuration with documented defaults.
type UserOptions struct {
	UserID           int64      `db:"user_id" json:"-"`
	DesiredRetention float64    `db:"desired_retention" json:"desired_retention"`
	DailyNewLimit    int        `db:"daily_new_limit" json:"daily_new_limit"`
	DailyReviewLimit int        `db:"daily_review_limit" json:"daily_review_limit"`
	BurySiblings     bool       `db:"bury_siblings" json:"bury_siblings"`
	LeechThreshold   int        `db:"leech_threshold" json:"leech_threshold"`
	RemindersEnabled bool       `db:"reminders_enabled" json:"reminders_enabled"`
	ReminderTime     *string    `db:"reminder_time" json:"reminder_time"`
	NudgesEnabled    bool       `db:"nudges_enabled" json:"nudges_enabled"`
	ExperimentID     *string    `db:"experiment_id" json:"experiment_id"`
	UpdatedAt        *time.Time `db:"updated_at" json:"-"`
}

// DefaultOptions returns the options applied when a user has never saved any.
func DefaultOptions(userID int64) *UserOptions {
	return &UserOptions{
		UserID:           userID,
		DesiredRetention: 0.9,
		DailyNewLimit:    10,
		DailyReviewLimit: 100,
		BurySiblings:     true,
		LeechThreshold:   8,
		RemindersEnabled: false,
		NudgesEnabled:    true,
	}
}

// Leech is a skill whose lapse count reached the user's leech threshold.
type Leech struct {
	ItemID     int64  `db:"item_id" json:"item_id"`
	Value      string `db:"value" json:"value"`
	SkillCode  string `db:"skill_code" json:"skill_code"`
	SkillLabel string `db:"skill_label" json:"skill_label"`
	Lapses     int    `db:"lapses" json:"lapses"`
	Level      int    `db:"level" json:"level"`
}

// SkillRetention aggregates 30-day review accuracy per skill.
type SkillRetention struct {
	SkillCode string  `db:"skill_code" json:"skill_code"`
	Label     string  `db:"label" json:"label"`
	Total     int     `db:"total" json:"total"`
	Correct   int     `db:"correct" json:"correct"`
	Retention float64 `json:"retention"`
}

// SkillStability aggregates primary-algorithm stability per skill, in days.
type SkillStability struct {
	SkillCode    string  `db:"skill_code" json:"skill_code"`
	Label        string  `db:"label" json:"label"`
	AvgStability float64 `db:"avg_stability" json:"avg_stability_days"`
}

// DueCount is the number of skills falling due on a given date.
type DueCount struct {
	Date     time.Time `db:"date" json:"date"`
	DueCount int       `db:"due_count" json:"due_count"`
}

// DailyStat is one day of review activity. Retention is nil on days
// without reviews.
type DailyStat struct {
	Date        time.Time `db:"date" json:"date"`
	Total       int       `db:"total" json:"total"`
	Correct     int       `db:"correct" json:"correct"`
	Retention   *float64  `db:"retention" json:"retention"`
	TimeSpentMs int       `db:"ms" json:"time_spent_ms"`
	NewCount    int       `db:"new_count" json:"new_count"`
}
