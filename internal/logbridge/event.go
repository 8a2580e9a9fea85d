package logbridge

import (
	"strings"
	"time"
)

// Category is the classification attached to every captured line.
type Category string

// Supported categories, in classification priority order.
const (
	CategorySuccess    Category = "success"
	CategoryError      Category = "error"
	CategoryWarning    Category = "warning"
	CategoryRare       Category = "rare"
	CategoryCouple     Category = "couple"
	CategoryActivation Category = "activation"
	CategoryInfo       Category = "info"
)

// TimestampLayout renders event times to second precision.
const TimestampLayout = "15:04:05"

// Event is a single classified diagnostic line.
type Event struct {
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
	Category  Category `json:"type"`
}

type rule struct {
	category Category
	marker   string
	keyword  string
}

// rules are checked top to bottom; the first hit wins. A line carrying both
// an error and a rare marker is therefore an error.
var rules = []rule{
	{CategorySuccess, "✅", "success"},
	{CategoryError, "❌", "error"},
	{CategoryWarning, "⚠️", "warning"},
	{CategoryRare, "💎", "rare"},
	{CategoryCouple, "💑", "couple"},
	{CategoryActivation, "🔥", "activate"},
}

// Classify maps free text onto a Category using emoji markers and
// case-insensitive keywords.
func Classify(text string) Category {
	lower := strings.ToLower(text)
	for _, r := range rules {
		if strings.Contains(text, r.marker) || strings.Contains(lower, r.keyword) {
			return r.category
		}
	}
	return CategoryInfo
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CategorySuccess, CategoryError, CategoryWarning, CategoryRare,
		CategoryCouple, CategoryActivation, CategoryInfo:
		return c, true
	default:
		return "", false
	}
}

func newEvent(category Category, message string, at time.Time) Event {
	return Event{
		Message:   message,
		Timestamp: at.Format(TimestampLayout),
		Category:  category,
	}
}
