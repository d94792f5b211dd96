package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SAP-F-2025/test-access-service/internal/cache"
	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
	"github.com/SAP-F-2025/test-access-service/internal/validator"
)

type answerService struct {
	repo      repositories.Repository
	gate      *accessGate
	policy    WindowPolicy
	clock     Clock
	cache     *cache.AnswersCache
	logger    *slog.Logger
	validator *validator.Validator
}

func NewAnswerService(
	repo repositories.Repository,
	resolver AssignmentResolver,
	students StudentResolver,
	policy WindowPolicy,
	clock Clock,
	answers *cache.AnswersCache,
	logger *slog.Logger,
	validator *validator.Validator,
) AnswerService {
	return &answerService{
		repo:      repo,
		gate:      &accessGate{repo: repo, resolver: resolver, students: students},
		policy:    policy,
		clock:     clock,
		cache:     answers,
		logger:    logger,
		validator: validator,
	}
}

// SaveAnswer upserts one answer. Concurrent saves to the same question are
// last-write-wins in the order the store applies them.
func (s *answerService) SaveAnswer(ctx context.Context, principal models.Principal, testID uint, req *SaveAnswerRequest) (*SaveAnswerResponse, error) {
	if err := validate(s.validator, req); err != nil {
		return nil, err
	}

	studentID, test, err := s.gate.check(ctx, principal, testID)
	if err != nil {
		return nil, err
	}

	attempt, err := s.repo.Attempt().GetByStudentAndTest(ctx, studentID, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotActive
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.State() != models.AttemptInProgress {
		return nil, ErrAttemptNotActive
	}

	now := s.clock.Now()
	switch s.policy.Classify(test, now) {
	case models.WindowUpcoming:
		return nil, ErrNotYetOpen
	case models.WindowClosed:
		return nil, ErrWindowClosed
	}

	if !test.Questions().Contains(req.QuestionID) {
		return nil, ErrQuestionNotFound
	}

	answer := &models.Answer{
		StudentID:  studentID,
		TestID:     testID,
		QuestionID: req.QuestionID,
		Content:    req.Text,
		UpdatedAt:  now,
	}
	if err := s.repo.Answer().Upsert(ctx, answer); err != nil {
		if errors.Is(err, repositories.ErrAttemptClosed) {
			return nil, ErrAttemptNotActive
		}
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}
	s.cache.Invalidate(ctx, studentID, testID)

	s.logger.Debug("Answer saved",
		"test_id", testID,
		"student_id", studentID,
		"question_id", req.QuestionID)

	return &SaveAnswerResponse{
		QuestionID:       req.QuestionID,
		SavedAt:          now,
		RemainingSeconds: s.policy.RemainingSeconds(test, now),
	}, nil
}

// GetAnswers returns the saved answers of the caller's attempt. A student who
// has not started gets an empty map.
func (s *answerService) GetAnswers(ctx context.Context, principal models.Principal, testID uint) (*AnswersResponse, error) {
	studentID, _, err := s.gate.check(ctx, principal, testID)
	if err != nil {
		return nil, err
	}

	answers, err := s.cache.Get(ctx, studentID, testID, func() (map[string]string, error) {
		rows, err := s.repo.Answer().ListByStudentAndTest(ctx, studentID, testID)
		if err != nil {
			return nil, fmt.Errorf("failed to list answers: %w", err)
		}
		out := make(map[string]string, len(rows))
		for _, row := range rows {
			out[row.QuestionID] = row.Content
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	return &AnswersResponse{TestID: testID, Answers: answers}, nil
}
