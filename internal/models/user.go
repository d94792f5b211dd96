package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// UserRole is the closed set of roles the service understands
type UserRole string

const (
	RoleStudent     UserRole = "student"
	RoleTeacher     UserRole = "teacher"
	RoleSchoolAdmin UserRole = "school_admin"
)

var ErrUnknownRole = errors.New("unknown user role")

// ParseUserRole maps an identity-provider role name onto a UserRole.
// Unrecognised names are an error, never a default.
func ParseUserRole(name string) (UserRole, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "student", "learner":
		return RoleStudent, nil
	case "teacher", "instructor":
		return RoleTeacher, nil
	case "school_admin", "schooladmin", "admin", "administrator":
		return RoleSchoolAdmin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
}

func (r UserRole) Valid() bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleSchoolAdmin
}

// Principal is the authenticated caller, resolved once per request
type Principal struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email,omitempty"`
	Name   string   `json:"name,omitempty"`
}

func (p Principal) IsStudent() bool {
	return p.Role == RoleStudent
}

// CanManageTests reports whether the principal may author tests and groups
func (p Principal) CanManageTests() bool {
	return p.Role == RoleTeacher || p.Role == RoleSchoolAdmin
}

// Owns reports whether the principal may act on a resource created by ownerID
func (p Principal) Owns(ownerID string) bool {
	return p.Role == RoleSchoolAdmin || (p.Role == RoleTeacher && p.UserID == ownerID)
}

// User is the read-only view of an identity-provider account
type User struct {
	ID        string   `json:"id"`
	FullName  string   `json:"full_name"`
	Email     string   `json:"email"`
	Role      UserRole `json:"role"`
	AvatarURL *string  `json:"avatar_url,omitempty"`

	EmailVerified bool `json:"email_verified"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Principal converts the user into a request principal. Users whose role
// could not be resolved are rejected.
func (u *User) Principal() (Principal, error) {
	if u == nil || u.ID == "" {
		return Principal{}, fmt.Errorf("user has no id")
	}
	if !u.Role.Valid() {
		return Principal{}, fmt.Errorf("%w: user %s has role %q", ErrUnknownRole, u.ID, u.Role)
	}
	return Principal{UserID: u.ID, Role: u.Role, Email: u.Email, Name: u.FullName}, nil
}
