// Package accounts defines synthesized account records, their classification
// categories, and the store interfaces workers write to and the API reads.
package accounts

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

// Category groups records by classification outcome.
type Category string

// Supported categories. Every record belongs to All.
const (
	All       Category = "all"
	Rare      Category = "rare"
	Couples   Category = "couples"
	Activated Category = "activated"
	Failed    Category = "failed"
)

// Listing caps applied by readers.
const (
	ListLimit    = 100
	PerFileLimit = 50
)

// Categories lists every category in display order.
var Categories = []Category{All, Rare, Couples, Activated, Failed}

// ErrUnknownCategory is returned for category names outside Categories.
var ErrUnknownCategory = errors.New("unknown account category")

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Categories, c) {
		return c, true
	}
	return "", false
}

// Account is one synthesized account.
type Account struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Password         string     `json:"password"`
	Region           string     `json:"region"`
	Ghost            bool       `json:"ghost,omitempty"`
	RarityScore      int        `json:"rarity_score"`
	CoupleOf         string     `json:"couple_of,omitempty"`
	Activated        bool       `json:"activated"`
	ActivationFailed bool       `json:"activation_failed,omitempty"`
	Worker           int        `json:"worker"`
	RunID            string     `json:"run_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	Categories       []Category `json:"categories"`
}

// In reports whether the record belongs to c.
func (a Account) In(c Category) bool {
	if c == All {
		return true
	}
	return slices.Contains(a.Categories, c)
}

// Sink receives records as workers produce them.
type Sink interface {
	Record(ctx context.Context, account Account) error
}

// Reader enumerates stored records by category.
type Reader interface {
	// List returns at most limit records of a category.
	List(ctx context.Context, category Category, limit int) ([]Account, error)
	// All returns every record of a category.
	All(ctx context.Context, category Category) ([]Account, error)
}

// Store is both a Sink and a Reader.
type Store interface {
	Sink
	Reader
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > ListLimit {
		return ListLimit
	}
	return limit
}
