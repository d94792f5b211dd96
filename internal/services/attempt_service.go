package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/test-access-service/internal/cache"
	"github.com/SAP-F-2025/test-access-service/internal/events"
	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
)

type attemptService struct {
	repo      repositories.Repository
	gate      *accessGate
	policy    WindowPolicy
	clock     Clock
	answers   *cache.AnswersCache
	publisher events.EventPublisher
	logger    *slog.Logger
}

func NewAttemptService(
	repo repositories.Repository,
	resolver AssignmentResolver,
	students StudentResolver,
	policy WindowPolicy,
	clock Clock,
	answers *cache.AnswersCache,
	publisher events.EventPublisher,
	logger *slog.Logger,
) AttemptService {
	return &attemptService{
		repo:      repo,
		gate:      &accessGate{repo: repo, resolver: resolver, students: students},
		policy:    policy,
		clock:     clock,
		answers:   answers,
		publisher: publisher,
		logger:    logger,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) Start(ctx context.Context, principal models.Principal, testID uint) (*AttemptResponse, error) {
	s.logger.Info("Starting test attempt",
		"test_id", testID,
		"user_id", principal.UserID)

	studentID, test, err := s.gate.check(ctx, principal, testID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	existing, err := s.currentAttempt(ctx, studentID, testID)
	if err != nil {
		return nil, err
	}

	// A finished attempt is shown as-is whatever the window says
	if existing.State() == models.AttemptSubmitted {
		return s.response(existing, test, now, true), nil
	}

	switch s.policy.Classify(test, now) {
	case models.WindowUpcoming:
		return nil, ErrNotYetOpen
	case models.WindowClosed:
		return nil, ErrWindowClosed
	}

	if existing != nil {
		s.logger.Info("Resuming existing attempt", "attempt_id", existing.ID)
		return s.response(existing, test, now, false), nil
	}

	attempt, created, err := s.repo.Attempt().CreateIfAbsent(ctx, &models.Attempt{
		TestID:    testID,
		StudentID: studentID,
		StartedAt: now,
	})
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	if created {
		s.logger.Info("Test attempt started",
			"attempt_id", attempt.ID,
			"test_id", testID,
			"student_id", studentID)

		publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.AttemptStarted, now, map[string]interface{}{
			"attempt_id": attempt.ID,
			"test_id":    testID,
			"student_id": studentID,
			"started_at": attempt.StartedAt,
		}))
	}

	return s.response(attempt, test, now, attempt.IsSubmitted), nil
}

func (s *attemptService) Submit(ctx context.Context, principal models.Principal, testID uint) (*AttemptResponse, error) {
	s.logger.Info("Submitting test attempt",
		"test_id", testID,
		"user_id", principal.UserID)

	studentID, test, err := s.gate.check(ctx, principal, testID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	attempt, err := s.currentAttempt(ctx, studentID, testID)
	if err != nil {
		return nil, err
	}

	if attempt.State() == models.AttemptSubmitted {
		return s.response(attempt, test, now, true), nil
	}

	window := s.policy.Classify(test, now)
	if window == models.WindowUpcoming {
		return nil, ErrNotYetOpen
	}
	if attempt == nil {
		return nil, ErrAttemptNotStarted
	}

	// An attempt still in progress after close is finalised with what was
	// saved before the window shut
	late := window == models.WindowClosed

	submitted, err := s.repo.Attempt().MarkSubmitted(ctx, attempt.ID, now, late)
	if err != nil {
		return nil, fmt.Errorf("failed to submit attempt: %w", err)
	}

	if !submitted {
		// A concurrent submit won; report its snapshot
		attempt, err = s.currentAttempt(ctx, studentID, testID)
		if err != nil {
			return nil, err
		}
		return s.response(attempt, test, now, true), nil
	}

	attempt.IsSubmitted = true
	attempt.SubmittedAt = &now
	attempt.SubmittedLate = late
	s.answers.Invalidate(ctx, studentID, testID)

	s.logger.Info("Test attempt submitted",
		"attempt_id", attempt.ID,
		"test_id", testID,
		"student_id", studentID,
		"late", late)

	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.AttemptSubmitted, now, map[string]interface{}{
		"attempt_id":     attempt.ID,
		"test_id":        testID,
		"student_id":     studentID,
		"submitted_at":   now,
		"submitted_late": late,
	}))

	return s.response(attempt, test, now, false), nil
}

func (s *attemptService) GetAttempt(ctx context.Context, principal models.Principal, testID uint) (*AttemptResponse, error) {
	studentID, test, err := s.gate.check(ctx, principal, testID)
	if err != nil {
		return nil, err
	}

	attempt, err := s.currentAttempt(ctx, studentID, testID)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, ErrAttemptNotFound
	}

	return s.response(attempt, test, s.clock.Now(), attempt.IsSubmitted), nil
}

func (s *attemptService) ListByTest(ctx context.Context, principal models.Principal, testID uint) ([]*AttemptResponse, error) {
	test, err := loadOwnedTest(ctx, s.repo, principal, testID, "list attempts of")
	if err != nil {
		return nil, err
	}

	attempts, err := s.repo.Attempt().ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	now := s.clock.Now()
	out := make([]*AttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		out = append(out, s.response(attempt, test, now, false))
	}
	return out, nil
}

// ===== HELPERS =====

// currentAttempt returns the student's attempt, or nil when none exists
func (s *attemptService) currentAttempt(ctx context.Context, studentID string, testID uint) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByStudentAndTest(ctx, studentID, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return attempt, nil
}

func (s *attemptService) response(attempt *models.Attempt, test *models.Test, now time.Time, alreadySubmitted bool) *AttemptResponse {
	window := s.policy.Classify(test, now)
	if attempt.IsSubmitted {
		attempt.TimeRemainingSeconds = 0
	} else {
		attempt.TimeRemainingSeconds = s.policy.RemainingSeconds(test, now)
	}

	return &AttemptResponse{
		Attempt:          attempt,
		State:            attempt.State(),
		WindowState:      window,
		AlreadySubmitted: alreadySubmitted,
	}
}
