package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewAttemptPostgreSQL(db *gorm.DB, helpers *SharedHelpers) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:      db,
		helpers: helpers,
	}
}

// CreateIfAbsent relies on the unique (student_id, test_id) index so that
// concurrent starts converge on one row
func (a *AttemptPostgreSQL) CreateIfAbsent(ctx context.Context, attempt *models.Attempt) (*models.Attempt, bool, error) {
	row := *attempt
	result := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "test_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if errors.Is(result.Error, gorm.ErrForeignKeyViolated) {
		return nil, false, fmt.Errorf("failed to create attempt: %w", repositories.ErrNotFound)
	}
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to create attempt: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return &row, true, nil
	}

	existing, err := a.GetByStudentAndTest(ctx, attempt.StudentID, attempt.TestID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (a *AttemptPostgreSQL) GetByStudentAndTest(ctx context.Context, studentID string, testID uint) (*models.Attempt, error) {
	var attempt models.Attempt
	err := a.db.WithContext(ctx).
		Where("student_id = ? AND test_id = ?", studentID, testID).
		First(&attempt).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return &attempt, nil
}

// MarkSubmitted is a conditional update; only the caller that flips
// is_submitted sees a row affected
func (a *AttemptPostgreSQL) MarkSubmitted(ctx context.Context, id uint, submittedAt time.Time, late bool) (bool, error) {
	result := a.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND is_submitted = ?", id, false).
		Updates(map[string]interface{}{
			"is_submitted":   true,
			"submitted_at":   submittedAt,
			"submitted_late": late,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to submit attempt: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	var count int64
	if err := a.db.WithContext(ctx).Model(&models.Attempt{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check attempt: %w", err)
	}
	if count == 0 {
		return false, repositories.ErrNotFound
	}
	return false, nil
}

func (a *AttemptPostgreSQL) CountByTest(ctx context.Context, testID uint) (int64, error) {
	count, err := a.helpers.CountAttempts(ctx, testID)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

func (a *AttemptPostgreSQL) ListByTest(ctx context.Context, testID uint) ([]*models.Attempt, error) {
	var attempts []*models.Attempt
	err := a.db.WithContext(ctx).
		Where("test_id = ?", testID).
		Order("id ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

type AnswerPostgreSQL struct {
	db *gorm.DB
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db}
}

// upsertOpenAnswer inserts or overwrites an answer only while the attempt
// row is unsubmitted. FOR SHARE makes the insert wait for a concurrent
// submit and then re-check is_submitted.
const upsertOpenAnswer = `
INSERT INTO answers (student_id, test_id, question_id, content, updated_at)
SELECT ?, ?, ?, ?, ?
WHERE EXISTS (
	SELECT 1 FROM attempts
	WHERE student_id = ? AND test_id = ? AND is_submitted = false
	FOR SHARE
)
ON CONFLICT (student_id, test_id, question_id)
DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at`

// Upsert keeps one row per (student, test, question); the last write wins
func (a *AnswerPostgreSQL) Upsert(ctx context.Context, answer *models.Answer) error {
	if answer.UpdatedAt.IsZero() {
		answer.UpdatedAt = time.Now()
	}
	result := a.db.WithContext(ctx).Exec(upsertOpenAnswer,
		answer.StudentID, answer.TestID, answer.QuestionID, answer.Content, answer.UpdatedAt,
		answer.StudentID, answer.TestID)
	if result.Error != nil {
		return fmt.Errorf("failed to save answer: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrAttemptClosed
	}
	return nil
}

func (a *AnswerPostgreSQL) ListByStudentAndTest(ctx context.Context, studentID string, testID uint) ([]*models.Answer, error) {
	var answers []*models.Answer
	err := a.db.WithContext(ctx).
		Where("student_id = ? AND test_id = ?", studentID, testID).
		Order("question_id ASC").
		Find(&answers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	return answers, nil
}
