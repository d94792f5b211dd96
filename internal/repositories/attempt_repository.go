package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/test-access-service/internal/models"
)

type AttemptRepository interface {
	// CreateIfAbsent inserts the attempt unless one already exists for the
	// same (student, test). It returns the stored row and whether this call
	// created it.
	CreateIfAbsent(ctx context.Context, attempt *models.Attempt) (*models.Attempt, bool, error)
	GetByStudentAndTest(ctx context.Context, studentID string, testID uint) (*models.Attempt, error)

	// MarkSubmitted finalises an attempt only if it is not yet submitted.
	// Exactly one concurrent caller gets true.
	MarkSubmitted(ctx context.Context, id uint, submittedAt time.Time, late bool) (bool, error)

	CountByTest(ctx context.Context, testID uint) (int64, error)
	ListByTest(ctx context.Context, testID uint) ([]*models.Attempt, error)
}

type AnswerRepository interface {
	// Upsert writes content for (student, test, question), replacing any
	// previous content and timestamp. The write happens only while the
	// student's attempt on the test exists and is not submitted; otherwise
	// it returns ErrAttemptClosed and stores nothing.
	Upsert(ctx context.Context, answer *models.Answer) error
	ListByStudentAndTest(ctx context.Context, studentID string, testID uint) ([]*models.Answer, error)
}
