package models

import "time"

type AttemptState string

const (
	AttemptNotStarted AttemptState = "not_started"
	AttemptInProgress AttemptState = "in_progress"
	AttemptSubmitted  AttemptState = "submitted"
)

// Attempt is a student's single sitting of a test. At most one exists per
// (student, test) and it is terminal once submitted.
type Attempt struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	TestID        uint       `json:"test_id" gorm:"not null;uniqueIndex:idx_attempt_student_test,priority:2;index"`
	StudentID     string     `json:"student_id" gorm:"not null;size:255;uniqueIndex:idx_attempt_student_test,priority:1"`
	StartedAt     time.Time  `json:"started_at" gorm:"not null"`
	SubmittedAt   *time.Time `json:"submitted_at"`
	IsSubmitted   bool       `json:"is_submitted" gorm:"not null;default:false"`
	SubmittedLate bool       `json:"submitted_late" gorm:"not null;default:false"`

	Test *Test `json:"-" gorm:"constraint:OnDelete:RESTRICT"`

	// Derived from the test window at read time
	TimeRemainingSeconds int `json:"time_remaining_seconds" gorm:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Attempt) TableName() string {
	return "attempts"
}

// State returns the lifecycle state; a nil attempt has not been started
func (a *Attempt) State() AttemptState {
	switch {
	case a == nil:
		return AttemptNotStarted
	case a.IsSubmitted:
		return AttemptSubmitted
	default:
		return AttemptInProgress
	}
}
