package repositories

import (
	"errors"

	"gorm.io/gorm"
)

// ===== SHARED FILTER STRUCTS =====

type TestFilters struct {
	Published *bool  `json:"published"`
	Query     string `json:"query"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	SortBy    string `json:"sort_by"`    // "created_at", "title", "start_time"
	SortOrder string `json:"sort_order"` // "asc", "desc"
}

// Normalize clamps paging and sort fields to supported values
func (f *TestFilters) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	switch f.SortBy {
	case "created_at", "title", "start_time":
	default:
		f.SortBy = "created_at"
	}
	if f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
}

type UserFilters struct {
	Query  string // Search query for name or email
	Limit  int
	Offset int
}

// ===== ERRORS =====

// ErrNotFound is returned by stores that don't surface gorm.ErrRecordNotFound
var ErrNotFound = errors.New("record not found")

// ErrAttemptClosed is returned when a write needs an open attempt and the
// attempt is missing or already submitted
var ErrAttemptClosed = errors.New("attempt is not open")

// ErrReferenced is returned when a delete would orphan dependent rows
var ErrReferenced = errors.New("record is still referenced")

// IsNotFoundError reports whether err means the requested record does not exist
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
