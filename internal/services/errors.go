package services

import (
	"errors"
	"fmt"
)

// Sentinel errors. Handlers map these to HTTP status codes with errors.Is.
var (
	// Access
	ErrNotAuthorized = errors.New("not authorized")

	// Window
	ErrNotYetOpen   = errors.New("test has not opened yet")
	ErrWindowClosed = errors.New("test window has closed")

	// Attempt lifecycle
	ErrAttemptNotStarted = errors.New("attempt has not been started")
	ErrAttemptNotActive  = errors.New("attempt is not active")
	ErrAttemptNotFound   = errors.New("attempt not found")

	// Preconditions on teacher-side mutations
	ErrPreconditionFailed = errors.New("precondition failed")

	// Lookups
	ErrTestNotFound          = errors.New("test not found")
	ErrGroupNotFound         = errors.New("group not found")
	ErrStudentNotFound       = errors.New("student not found")
	ErrQuestionNotFound      = errors.New("question not found in test")
	ErrImportSessionNotFound = errors.New("import session not found")

	// Input
	ErrValidationFailed  = errors.New("validation failed")
	ErrInvalidImportFile = errors.New("invalid import file")
)

// Machine-readable precondition codes
const (
	ReasonNoStudentsAssigned = "no_students_assigned"
	ReasonAttemptsExist      = "attempts_exist"
	ReasonInvalidTransition  = "invalid_transition"
	ReasonSessionExpired     = "session_expired"
)

// PreconditionError explains why a teacher-side mutation was refused. Reason
// is meant to be shown to the teacher as-is.
type PreconditionError struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func NewPreconditionError(code, reason string) *PreconditionError {
	return &PreconditionError{Code: code, Reason: reason}
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPreconditionFailed, e.Reason)
}

func (e *PreconditionError) Unwrap() error {
	return ErrPreconditionFailed
}

// PermissionError records who was refused what
type PermissionError struct {
	UserID     string
	ResourceID string
	Resource   string
	Action     string
	Reason     string
}

func NewPermissionError(userID, resourceID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %s: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func (e *PermissionError) Unwrap() error {
	return ErrNotAuthorized
}

// IsPreconditionError extracts the reason of a refused mutation
func IsPreconditionError(err error) (*PreconditionError, bool) {
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
