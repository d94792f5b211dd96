package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/SAP-F-2025/test-access-service/internal/events"
	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
	"github.com/SAP-F-2025/test-access-service/internal/validator"
)

type studentResolver struct{}

// NewStudentResolver returns a resolver that accepts only student principals
func NewStudentResolver() StudentResolver {
	return studentResolver{}
}

func (studentResolver) ResolveStudent(ctx context.Context, principal models.Principal) (string, error) {
	if !principal.IsStudent() || principal.UserID == "" {
		return "", NewPermissionError(principal.UserID, "", "test", "attempt", "only students can take tests")
	}
	return principal.UserID, nil
}

// accessGate runs the checks every student-side operation shares: the caller
// is a student, the test exists and is published, and the student is
// eligible.
type accessGate struct {
	repo     repositories.Repository
	resolver AssignmentResolver
	students StudentResolver
}

func (g *accessGate) check(ctx context.Context, principal models.Principal, testID uint) (string, *models.Test, error) {
	studentID, err := g.students.ResolveStudent(ctx, principal)
	if err != nil {
		return "", nil, err
	}

	test, err := g.repo.Test().GetByID(ctx, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return "", nil, ErrTestNotFound
		}
		return "", nil, fmt.Errorf("failed to get test: %w", err)
	}

	if !test.IsPublished {
		return "", nil, NewPermissionError(studentID, testIDString(testID), "test", "access", "test is not published")
	}

	eligible, err := g.resolver.IsEligible(ctx, studentID, testID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to check eligibility: %w", err)
	}
	if !eligible {
		return "", nil, NewPermissionError(studentID, testIDString(testID), "test", "access", "student is not assigned")
	}

	return studentID, test, nil
}

// loadOwnedTest loads a test the principal may manage
func loadOwnedTest(ctx context.Context, repo repositories.Repository, principal models.Principal, testID uint, action string) (*models.Test, error) {
	if !principal.CanManageTests() {
		return nil, NewPermissionError(principal.UserID, testIDString(testID), "test", action, "teacher role required")
	}

	test, err := repo.Test().GetByID(ctx, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	if !principal.Owns(test.CreatedBy) {
		return nil, NewPermissionError(principal.UserID, testIDString(testID), "test", action, "not the owner")
	}
	return test, nil
}

// lockTest re-reads a test inside a transaction and holds it until commit
func lockTest(ctx context.Context, tx repositories.Repository, testID uint) (*models.Test, error) {
	test, err := tx.Test().LockForUpdate(ctx, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to lock test: %w", err)
	}
	return test, nil
}

func validate(v *validator.Validator, req interface{}) error {
	if err := v.Validate(req); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	return nil
}

// publishEvent delivers an event on a best-effort basis
func publishEvent(ctx context.Context, publisher events.EventPublisher, logger *slog.Logger, event events.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish event",
			"error", err,
			"event_type", event.Type,
			"event_id", event.ID)
	}
}

func testIDString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// unknownStudents returns the ids that do not name a student account
func unknownStudents(ctx context.Context, users repositories.UserRepository, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	found, err := users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up students: %w", err)
	}
	known := make(map[string]struct{}, len(found))
	for _, user := range found {
		if user.Role == models.RoleStudent {
			known[user.ID] = struct{}{}
		}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func requireStudents(ctx context.Context, users repositories.UserRepository, ids []string) error {
	missing, err := unknownStudents(ctx, users, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrStudentNotFound, strings.Join(missing, ", "))
	}
	return nil
}
