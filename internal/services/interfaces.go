package services

import (
	"context"
	"io"
	"time"

	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
)

// ===== TEST DTOs =====

type CreateTestRequest struct {
	Title           string              `json:"title" validate:"required,title"`
	StartTime       *time.Time          `json:"start_time"`
	DurationMinutes *int                `json:"duration_minutes" validate:"omitempty,min=1,max=1440"`
	Questions       models.QuestionTree `json:"questions"`
}

type UpdateTestRequest struct {
	Title           *string    `json:"title" validate:"omitempty,title"`
	StartTime       *time.Time `json:"start_time"`
	ClearStartTime  bool       `json:"clear_start_time"`
	DurationMinutes *int       `json:"duration_minutes" validate:"omitempty,min=1,max=1440"`
	ClearDuration   bool       `json:"clear_duration"`
}

// changesSchedule reports whether the update touches the test window
func (r *UpdateTestRequest) changesSchedule() bool {
	return r.StartTime != nil || r.ClearStartTime || r.DurationMinutes != nil || r.ClearDuration
}

type UpdateStructureRequest struct {
	Questions models.QuestionTree `json:"questions"`
}

type TestResponse struct {
	*models.Test
	WindowState      models.WindowState `json:"window_state"`
	RemainingSeconds int                `json:"remaining_seconds"`
	AttemptCount     int64              `json:"attempt_count"`
	CanEditStructure bool               `json:"can_edit_structure"`
}

type TestListResponse struct {
	Tests  []*TestResponse `json:"tests"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type PublishToggleResponse struct {
	TestID      uint `json:"test_id"`
	IsPublished bool `json:"is_published"`
}

// ===== ASSIGNMENT DTOs =====

type AssignmentRequest struct {
	DirectStudentIDs   []string `json:"direct_student_ids" validate:"omitempty,max=5000,dive,student_id"`
	GroupIDs           []uint   `json:"group_ids" validate:"omitempty,max=500"`
	ExcludedStudentIDs []string `json:"excluded_student_ids" validate:"omitempty,max=5000,dive,student_id"`
}

type AssignmentResponse struct {
	models.Assignment
	EligibleStudentIDs []string `json:"eligible_student_ids"`
}

type EligibilityResponse struct {
	TestID    uint   `json:"test_id"`
	StudentID string `json:"student_id"`
	Eligible  bool   `json:"eligible"`
}

// StudentTestView is a test as listed to an assigned student
type StudentTestView struct {
	ID               uint                `json:"id"`
	Title            string              `json:"title"`
	StartTime        *time.Time          `json:"start_time"`
	DurationMinutes  *int                `json:"duration_minutes"`
	WindowState      models.WindowState  `json:"window_state"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	AttemptState     models.AttemptState `json:"attempt_state"`
}

// ===== ATTEMPT DTOs =====

type AttemptResponse struct {
	*models.Attempt
	State            models.AttemptState `json:"state"`
	WindowState      models.WindowState  `json:"window_state"`
	AlreadySubmitted bool                `json:"already_submitted"`
}

type SaveAnswerRequest struct {
	QuestionID string `json:"question_id" validate:"required,question_id"`
	Text       string `json:"text" validate:"max=20000"`
}

type SaveAnswerResponse struct {
	QuestionID       string    `json:"question_id"`
	SavedAt          time.Time `json:"saved_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

type AnswersResponse struct {
	TestID  uint              `json:"test_id"`
	Answers map[string]string `json:"answers"`
}

// ===== GROUP DTOs =====

type CreateGroupRequest struct {
	Name       string   `json:"name" validate:"required,title"`
	StudentIDs []string `json:"student_ids" validate:"omitempty,max=5000,dive,student_id"`
}

type GroupMembersRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,max=5000,dive,student_id"`
}

type GroupMembersResponse struct {
	GroupID uint `json:"group_id"`
	Added   int  `json:"added"`
	Total   int  `json:"total"`
}

// ===== IMPORT DTOs =====

type CreateImportRequest struct {
	GroupID  uint   `form:"group_id" json:"group_id" validate:"required"`
	FileName string `json:"file_name" validate:"required,max=255"`
}

type ReviewImportRequest struct {
	RejectedRows []int `json:"rejected_rows" validate:"omitempty,dive,min=1"`
}

type ImportCommitResponse struct {
	Session *models.ImportSession `json:"session"`
	Added   int                   `json:"added"`
}

// ===== SERVICE INTERFACES =====

// AssignmentResolver derives who may take a test
type AssignmentResolver interface {
	Eligible(ctx context.Context, testID uint) (StudentSet, error)
	IsEligible(ctx context.Context, studentID string, testID uint) (bool, error)
}

// PublishGuard decides whether publish state and structure may change.
// A refusal is a *PreconditionError.
type PublishGuard interface {
	CanPublish(ctx context.Context, testID uint) error
	CanUnpublish(ctx context.Context, testID uint) error
	CanEditStructure(ctx context.Context, testID uint) error
	CanDelete(ctx context.Context, testID uint) error
}

// StudentResolver turns a request principal into a student id
type StudentResolver interface {
	ResolveStudent(ctx context.Context, principal models.Principal) (string, error)
}

type AttemptService interface {
	Start(ctx context.Context, principal models.Principal, testID uint) (*AttemptResponse, error)
	Submit(ctx context.Context, principal models.Principal, testID uint) (*AttemptResponse, error)
	GetAttempt(ctx context.Context, principal models.Principal, testID uint) (*AttemptResponse, error)
	ListByTest(ctx context.Context, principal models.Principal, testID uint) ([]*AttemptResponse, error)
}

type AnswerService interface {
	SaveAnswer(ctx context.Context, principal models.Principal, testID uint, req *SaveAnswerRequest) (*SaveAnswerResponse, error)
	GetAnswers(ctx context.Context, principal models.Principal, testID uint) (*AnswersResponse, error)
}

type TestService interface {
	Create(ctx context.Context, principal models.Principal, req *CreateTestRequest) (*TestResponse, error)
	GetByID(ctx context.Context, principal models.Principal, id uint) (*TestResponse, error)
	List(ctx context.Context, principal models.Principal, filters repositories.TestFilters) (*TestListResponse, error)
	Update(ctx context.Context, principal models.Principal, id uint, req *UpdateTestRequest) (*TestResponse, error)
	UpdateStructure(ctx context.Context, principal models.Principal, id uint, req *UpdateStructureRequest) (*TestResponse, error)
	Delete(ctx context.Context, principal models.Principal, id uint) error
	Duplicate(ctx context.Context, principal models.Principal, id uint) (*TestResponse, error)
	TogglePublish(ctx context.Context, principal models.Principal, id uint) (*PublishToggleResponse, error)

	GetAssignment(ctx context.Context, principal models.Principal, id uint) (*AssignmentResponse, error)
	SetAssignment(ctx context.Context, principal models.Principal, id uint, req *AssignmentRequest) (*AssignmentResponse, error)
	CheckEligibility(ctx context.Context, principal models.Principal, id uint, studentID string) (*EligibilityResponse, error)
	ListAvailable(ctx context.Context, principal models.Principal) ([]*StudentTestView, error)
}

type GroupService interface {
	Create(ctx context.Context, principal models.Principal, req *CreateGroupRequest) (*models.Group, error)
	Get(ctx context.Context, principal models.Principal, id uint) (*models.Group, error)
	AddMembers(ctx context.Context, principal models.Principal, id uint, req *GroupMembersRequest) (*GroupMembersResponse, error)
	RemoveMember(ctx context.Context, principal models.Principal, id uint, studentID string) error
}

type ImportService interface {
	CreateSession(ctx context.Context, principal models.Principal, req *CreateImportRequest, file io.Reader) (*models.ImportSession, error)
	GetSession(ctx context.Context, principal models.Principal, id string) (*models.ImportSession, error)
	Review(ctx context.Context, principal models.Principal, id string, req *ReviewImportRequest) (*models.ImportSession, error)
	Commit(ctx context.Context, principal models.Principal, id string) (*ImportCommitResponse, error)
	Template() ([]byte, error)
	ExpireStale(ctx context.Context) (int64, error)
}

// ServiceManager owns service construction and lifecycle
type ServiceManager interface {
	Tests() TestService
	Attempts() AttemptService
	Answers() AnswerService
	Groups() GroupService
	Imports() ImportService
	Resolver() AssignmentResolver
	Guard() PublishGuard

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
