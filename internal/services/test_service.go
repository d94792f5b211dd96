package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/SAP-F-2025/test-access-service/internal/events"
	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
	"github.com/SAP-F-2025/test-access-service/internal/validator"
)

const copyTitleSuffix = " (Copy)"

type testService struct {
	repo      repositories.Repository
	resolver  AssignmentResolver
	policy    WindowPolicy
	clock     Clock
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
}

func NewTestService(
	repo repositories.Repository,
	resolver AssignmentResolver,
	policy WindowPolicy,
	clock Clock,
	publisher events.EventPublisher,
	logger *slog.Logger,
	validator *validator.Validator,
) TestService {
	return &testService{
		repo:      repo,
		resolver:  resolver,
		policy:    policy,
		clock:     clock,
		publisher: publisher,
		logger:    logger,
		validator: validator,
	}
}

// ===== CRUD =====

func (s *testService) Create(ctx context.Context, principal models.Principal, req *CreateTestRequest) (*TestResponse, error) {
	s.logger.Info("Creating test", "title", req.Title, "creator_id", principal.UserID)

	if !principal.CanManageTests() {
		return nil, NewPermissionError(principal.UserID, "", "test", "create", "teacher role required")
	}
	if err := validate(s.validator, req); err != nil {
		return nil, err
	}
	if err := req.Questions.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	test := &models.Test{
		Title:           strings.TrimSpace(req.Title),
		StartTime:       utcPtr(req.StartTime),
		DurationMinutes: req.DurationMinutes,
		CreatedBy:       principal.UserID,
	}
	test.SetQuestions(req.Questions)

	if err := s.repo.Test().Create(ctx, test); err != nil {
		return nil, fmt.Errorf("failed to create test: %w", err)
	}

	s.logger.Info("Test created", "test_id", test.ID, "creator_id", principal.UserID)
	return s.response(ctx, test)
}

func (s *testService) GetByID(ctx context.Context, principal models.Principal, id uint) (*TestResponse, error) {
	test, err := loadOwnedTest(ctx, s.repo, principal, id, "view")
	if err != nil {
		return nil, err
	}
	return s.response(ctx, test)
}

func (s *testService) List(ctx context.Context, principal models.Principal, filters repositories.TestFilters) (*TestListResponse, error) {
	if !principal.CanManageTests() {
		return nil, NewPermissionError(principal.UserID, "", "test", "list", "teacher role required")
	}
	filters.Normalize()

	var (
		tests []*models.Test
		total int64
		err   error
	)
	if principal.Role == models.RoleSchoolAdmin {
		tests, total, err = s.repo.Test().List(ctx, filters)
	} else {
		tests, total, err = s.repo.Test().ListByCreator(ctx, principal.UserID, filters)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}

	out := make([]*TestResponse, 0, len(tests))
	for _, test := range tests {
		resp, err := s.response(ctx, test)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}

	return &TestListResponse{
		Tests:  out,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

func (s *testService) Update(ctx context.Context, principal models.Principal, id uint, req *UpdateTestRequest) (*TestResponse, error) {
	if _, err := loadOwnedTest(ctx, s.repo, principal, id, "update"); err != nil {
		return nil, err
	}
	if err := validate(s.validator, req); err != nil {
		return nil, err
	}

	var test *models.Test
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		var err error
		if test, err = lockTest(ctx, tx, id); err != nil {
			return err
		}

		// Moving the window under a running attempt is a structural change
		if req.changesSchedule() {
			if err := guardFor(tx).CanEditStructure(ctx, id); err != nil {
				return err
			}
		}

		if req.Title != nil {
			test.Title = strings.TrimSpace(*req.Title)
		}
		switch {
		case req.ClearStartTime:
			test.StartTime = nil
		case req.StartTime != nil:
			test.StartTime = utcPtr(req.StartTime)
		}
		switch {
		case req.ClearDuration:
			test.DurationMinutes = nil
		case req.DurationMinutes != nil:
			test.DurationMinutes = req.DurationMinutes
		}

		if err := tx.Test().Update(ctx, test); err != nil {
			return fmt.Errorf("failed to update test: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Test updated", "test_id", id, "user_id", principal.UserID)
	return s.response(ctx, test)
}

func (s *testService) UpdateStructure(ctx context.Context, principal models.Principal, id uint, req *UpdateStructureRequest) (*TestResponse, error) {
	if _, err := loadOwnedTest(ctx, s.repo, principal, id, "edit"); err != nil {
		return nil, err
	}
	if err := req.Questions.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	var test *models.Test
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		var err error
		if test, err = lockTest(ctx, tx, id); err != nil {
			return err
		}
		if err := guardFor(tx).CanEditStructure(ctx, id); err != nil {
			return err
		}

		test.SetQuestions(req.Questions)
		if err := tx.Test().Update(ctx, test); err != nil {
			return fmt.Errorf("failed to update test structure: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Test structure updated",
		"test_id", id,
		"questions", len(req.Questions.IDs()))
	return s.response(ctx, test)
}

// Delete removes a test and its assignment. The attempt check runs with the
// test row locked so a concurrent start cannot slip in between.
func (s *testService) Delete(ctx context.Context, principal models.Principal, id uint) error {
	if _, err := loadOwnedTest(ctx, s.repo, principal, id, "delete"); err != nil {
		return err
	}

	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if _, err := lockTest(ctx, tx, id); err != nil {
			return err
		}
		if err := guardFor(tx).CanDelete(ctx, id); err != nil {
			return err
		}

		if err := tx.Assignment().DeleteByTest(ctx, id); err != nil {
			return fmt.Errorf("failed to delete test: %w", err)
		}
		if err := tx.Test().Delete(ctx, id); err != nil {
			if errors.Is(err, repositories.ErrReferenced) {
				return NewPreconditionError(ReasonAttemptsExist, "cannot delete: students have already started")
			}
			return fmt.Errorf("failed to delete test: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Test deleted", "test_id", id, "user_id", principal.UserID)
	return nil
}

// Duplicate copies title, schedule and questions into a new unpublished test
// owned by the caller. Assignment and attempts are not copied.
func (s *testService) Duplicate(ctx context.Context, principal models.Principal, id uint) (*TestResponse, error) {
	source, err := loadOwnedTest(ctx, s.repo, principal, id, "duplicate")
	if err != nil {
		return nil, err
	}

	title := source.Title + copyTitleSuffix
	if len(title) > 200 {
		title = title[:200]
	}

	copied := &models.Test{
		Title:           title,
		StartTime:       source.StartTime,
		DurationMinutes: source.DurationMinutes,
		CreatedBy:       principal.UserID,
	}
	copied.SetQuestions(source.Questions())

	if err := s.repo.Test().Create(ctx, copied); err != nil {
		return nil, fmt.Errorf("failed to duplicate test: %w", err)
	}

	s.logger.Info("Test duplicated", "source_id", id, "test_id", copied.ID)
	return s.response(ctx, copied)
}

func (s *testService) TogglePublish(ctx context.Context, principal models.Principal, id uint) (*PublishToggleResponse, error) {
	if _, err := loadOwnedTest(ctx, s.repo, principal, id, "publish"); err != nil {
		return nil, err
	}

	var publish bool
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		test, err := lockTest(ctx, tx, id)
		if err != nil {
			return err
		}

		guard := guardFor(tx)
		publish = !test.IsPublished
		if publish {
			err = guard.CanPublish(ctx, id)
		} else {
			err = guard.CanUnpublish(ctx, id)
		}
		if err != nil {
			return err
		}

		if err := tx.Test().SetPublished(ctx, id, publish); err != nil {
			return fmt.Errorf("failed to change publish state: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := events.TestUnpublished
	if publish {
		eventType = events.TestPublished
	}
	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(eventType, s.clock.Now(), map[string]interface{}{
		"test_id": id,
		"user_id": principal.UserID,
	}))

	s.logger.Info("Test publish state changed", "test_id", id, "is_published", publish)
	return &PublishToggleResponse{TestID: id, IsPublished: publish}, nil
}

// ===== ASSIGNMENT =====

func (s *testService) GetAssignment(ctx context.Context, principal models.Principal, id uint) (*AssignmentResponse, error) {
	if _, err := loadOwnedTest(ctx, s.repo, principal, id, "view assignment of"); err != nil {
		return nil, err
	}

	assignment, err := s.repo.Assignment().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	eligible, err := s.resolver.Eligible(ctx, id)
	if err != nil {
		return nil, err
	}

	return &AssignmentResponse{Assignment: *assignment, EligibleStudentIDs: eligible.Sorted()}, nil
}

// SetAssignment replaces the three id-sets of a test. A published test must
// keep at least one eligible student.
func (s *testService) SetAssignment(ctx context.Context, principal models.Principal, id uint, req *AssignmentRequest) (*AssignmentResponse, error) {
	if _, err := loadOwnedTest(ctx, s.repo, principal, id, "assign"); err != nil {
		return nil, err
	}
	if err := validate(s.validator, req); err != nil {
		return nil, err
	}

	assignment := &models.Assignment{
		TestID:             id,
		DirectStudentIDs:   uniqueStrings(req.DirectStudentIDs),
		GroupIDs:           uniqueUints(req.GroupIDs),
		ExcludedStudentIDs: uniqueStrings(req.ExcludedStudentIDs),
	}

	if err := requireStudents(ctx, s.repo.User(), assignment.DirectStudentIDs); err != nil {
		return nil, err
	}

	var eligible StudentSet
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		test, err := lockTest(ctx, tx, id)
		if err != nil {
			return err
		}

		existing, err := tx.Group().ExistingIDs(ctx, assignment.GroupIDs)
		if err != nil {
			return fmt.Errorf("failed to check groups: %w", err)
		}
		if len(existing) != len(assignment.GroupIDs) {
			return ErrGroupNotFound
		}

		if err := tx.Assignment().Replace(ctx, assignment); err != nil {
			return fmt.Errorf("failed to replace assignment: %w", err)
		}

		eligible, err = NewAssignmentResolver(tx).Eligible(ctx, id)
		if err != nil {
			return err
		}
		if test.IsPublished && len(eligible) == 0 {
			return NewPreconditionError(ReasonNoStudentsAssigned,
				"a published test must keep at least one student assigned")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Test assignment replaced",
		"test_id", id,
		"direct", len(assignment.DirectStudentIDs),
		"groups", len(assignment.GroupIDs),
		"excluded", len(assignment.ExcludedStudentIDs),
		"eligible", len(eligible))

	return &AssignmentResponse{Assignment: *assignment, EligibleStudentIDs: eligible.Sorted()}, nil
}

// CheckEligibility answers whether a student may take a test. Managers may
// ask about anyone on their tests; students only about themselves.
func (s *testService) CheckEligibility(ctx context.Context, principal models.Principal, id uint, studentID string) (*EligibilityResponse, error) {
	if principal.IsStudent() {
		if studentID == "" {
			studentID = principal.UserID
		}
		if studentID != principal.UserID {
			return nil, NewPermissionError(principal.UserID, testIDString(id), "test", "check eligibility on", "students can only check themselves")
		}

		test, err := s.repo.Test().GetByID(ctx, id)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return nil, ErrTestNotFound
			}
			return nil, fmt.Errorf("failed to get test: %w", err)
		}
		if !test.IsPublished {
			return &EligibilityResponse{TestID: id, StudentID: studentID, Eligible: false}, nil
		}
	} else {
		if _, err := loadOwnedTest(ctx, s.repo, principal, id, "check eligibility on"); err != nil {
			return nil, err
		}
		if studentID == "" {
			return nil, fmt.Errorf("%w: student is required", ErrValidationFailed)
		}
	}

	eligible, err := s.resolver.IsEligible(ctx, studentID, id)
	if err != nil {
		return nil, err
	}
	return &EligibilityResponse{TestID: id, StudentID: studentID, Eligible: eligible}, nil
}

// ListAvailable returns the published tests the calling student may take
func (s *testService) ListAvailable(ctx context.Context, principal models.Principal) ([]*StudentTestView, error) {
	studentID, err := NewStudentResolver().ResolveStudent(ctx, principal)
	if err != nil {
		return nil, err
	}

	candidates, err := s.repo.Assignment().CandidateTestIDs(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find assigned tests: %w", err)
	}
	tests, err := s.repo.Test().GetByIDs(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to load assigned tests: %w", err)
	}
	sort.Slice(tests, func(i, j int) bool { return tests[i].ID < tests[j].ID })

	now := s.clock.Now()
	out := make([]*StudentTestView, 0, len(tests))
	for _, test := range tests {
		if !test.IsPublished {
			continue
		}
		// Candidates ignore exclusions
		eligible, err := s.resolver.IsEligible(ctx, studentID, test.ID)
		if err != nil {
			return nil, err
		}
		if !eligible {
			continue
		}

		state := models.AttemptNotStarted
		attempt, err := s.repo.Attempt().GetByStudentAndTest(ctx, studentID, test.ID)
		switch {
		case err == nil:
			state = attempt.State()
		case !repositories.IsNotFoundError(err):
			return nil, fmt.Errorf("failed to get attempt: %w", err)
		}

		out = append(out, &StudentTestView{
			ID:               test.ID,
			Title:            test.Title,
			StartTime:        test.StartTime,
			DurationMinutes:  test.DurationMinutes,
			WindowState:      s.policy.Classify(test, now),
			RemainingSeconds: s.policy.RemainingSeconds(test, now),
			AttemptState:     state,
		})
	}
	return out, nil
}

// ===== HELPERS =====

func (s *testService) response(ctx context.Context, test *models.Test) (*TestResponse, error) {
	count, err := s.repo.Attempt().CountByTest(ctx, test.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}

	now := s.clock.Now()
	return &TestResponse{
		Test:             test,
		WindowState:      s.policy.Classify(test, now),
		RemainingSeconds: s.policy.RemainingSeconds(test, now),
		AttemptCount:     count,
		CanEditStructure: count == 0,
	}, nil
}
