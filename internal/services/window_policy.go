package services

import (
	"time"

	"github.com/SAP-F-2025/test-access-service/internal/models"
)

// WindowPolicy classifies a test's schedule against an instant. It is pure:
// the same test and instant always give the same answer.
type WindowPolicy struct {
	// DefaultBound is reported as the remaining time of a live test that
	// never closes
	DefaultBound time.Duration
}

func NewWindowPolicy(defaultBound time.Duration) WindowPolicy {
	return WindowPolicy{DefaultBound: defaultBound}
}

// Classify returns Upcoming before the start, Closed after start+duration and
// Live otherwise. A test without a start time is always live, and one without
// a duration never closes.
func (p WindowPolicy) Classify(test *models.Test, now time.Time) models.WindowState {
	if test.StartTime == nil {
		return models.WindowLive
	}
	if now.Before(*test.StartTime) {
		return models.WindowUpcoming
	}
	if end := test.EndTime(); end != nil && now.After(*end) {
		return models.WindowClosed
	}
	return models.WindowLive
}

// RemainingSeconds is the whole seconds until the test opens (Upcoming) or
// closes (Live). It is never negative and is zero once closed.
func (p WindowPolicy) RemainingSeconds(test *models.Test, now time.Time) int {
	switch p.Classify(test, now) {
	case models.WindowUpcoming:
		return wholeSeconds(test.StartTime.Sub(now))
	case models.WindowClosed:
		return 0
	}

	if test.DurationMinutes == nil {
		return wholeSeconds(p.DefaultBound)
	}
	if test.StartTime == nil {
		return *test.DurationMinutes * 60
	}
	return wholeSeconds(test.EndTime().Sub(now))
}

func wholeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}
