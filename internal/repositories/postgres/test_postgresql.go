package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/test-access-service/internal/cache"
	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
)

type TestPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewTestPostgreSQL(db *gorm.DB, helpers *SharedHelpers, cacheManager *cache.CacheManager) repositories.TestRepository {
	return &TestPostgreSQL{
		db:           db,
		helpers:      helpers,
		cacheManager: cacheManager,
	}
}

func (t *TestPostgreSQL) Create(ctx context.Context, test *models.Test) error {
	if err := t.db.WithContext(ctx).Create(test).Error; err != nil {
		return fmt.Errorf("failed to create test: %w", err)
	}
	return nil
}

// GetByID retrieves a test by ID with caching
func (t *TestPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Test, error) {
	var test models.Test

	err := t.cacheManager.Test.CacheOrExecute(ctx, cache.TestKey(id), &test, cache.TestCacheConfig.TTL, func() (interface{}, error) {
		var dbTest models.Test
		if err := t.db.WithContext(ctx).First(&dbTest, id).Error; err != nil {
			return nil, fmt.Errorf("failed to get test: %w", err)
		}
		return &dbTest, nil
	})
	if err != nil {
		return nil, err
	}

	return &test, nil
}

func (t *TestPostgreSQL) GetByIDs(ctx context.Context, ids []uint) ([]*models.Test, error) {
	if len(ids) == 0 {
		return []*models.Test{}, nil
	}

	var tests []*models.Test
	if err := t.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&tests).Error; err != nil {
		return nil, fmt.Errorf("failed to get tests: %w", err)
	}
	return tests, nil
}

// Update saves the editable columns of the test and invalidates cache.
// Publish state only changes through SetPublished.
func (t *TestPostgreSQL) Update(ctx context.Context, test *models.Test) error {
	result := t.db.WithContext(ctx).
		Model(&models.Test{}).
		Where("id = ?", test.ID).
		Select("title", "start_time", "duration_minutes", "question_tree", "updated_at").
		Updates(test)
	if result.Error != nil {
		return fmt.Errorf("failed to update test: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}

	t.cacheManager.InvalidateTest(ctx, test.ID)
	return nil
}

func (t *TestPostgreSQL) Delete(ctx context.Context, id uint) error {
	result := t.db.WithContext(ctx).Delete(&models.Test{}, id)
	if errors.Is(result.Error, gorm.ErrForeignKeyViolated) {
		return fmt.Errorf("failed to delete test: %w", repositories.ErrReferenced)
	}
	if result.Error != nil {
		return fmt.Errorf("failed to delete test: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}

	t.cacheManager.InvalidateTest(ctx, id)
	t.cacheManager.DropTestAnswers(ctx, id)
	return nil
}

func (t *TestPostgreSQL) SetPublished(ctx context.Context, id uint, published bool) error {
	result := t.db.WithContext(ctx).
		Model(&models.Test{}).
		Where("id = ?", id).
		Update("is_published", published)
	if result.Error != nil {
		return fmt.Errorf("failed to update publish state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}

	t.cacheManager.InvalidateTest(ctx, id)
	return nil
}

// LockForUpdate reads past the cache with SELECT ... FOR UPDATE. Attempt
// inserts take a key share lock on the test row and wait behind it.
func (t *TestPostgreSQL) LockForUpdate(ctx context.Context, id uint) (*models.Test, error) {
	var test models.Test
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&test, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock test: %w", err)
	}
	return &test, nil
}

func (t *TestPostgreSQL) ListByCreator(ctx context.Context, creatorID string, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	query := t.db.WithContext(ctx).Model(&models.Test{}).Where("created_by = ?", creatorID)
	return t.list(query, filters)
}

func (t *TestPostgreSQL) List(ctx context.Context, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	return t.list(t.db.WithContext(ctx).Model(&models.Test{}), filters)
}

func (t *TestPostgreSQL) list(query *gorm.DB, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	filters.Normalize()
	query = t.helpers.ApplyTestFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count tests: %w", err)
	}

	var tests []*models.Test
	query = t.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&tests).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list tests: %w", err)
	}

	return tests, total, nil
}

type AssignmentPostgreSQL struct {
	db *gorm.DB
}

func NewAssignmentPostgreSQL(db *gorm.DB) repositories.AssignmentRepository {
	return &AssignmentPostgreSQL{db: db}
}

func (a *AssignmentPostgreSQL) Get(ctx context.Context, testID uint) (*models.Assignment, error) {
	assignment := &models.Assignment{
		TestID:             testID,
		DirectStudentIDs:   []string{},
		GroupIDs:           []uint{},
		ExcludedStudentIDs: []string{},
	}
	db := a.db.WithContext(ctx)

	if err := db.Model(&models.TestDirectStudent{}).
		Where("test_id = ?", testID).
		Order("student_id").
		Pluck("student_id", &assignment.DirectStudentIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to get direct students: %w", err)
	}
	if err := db.Model(&models.TestGroup{}).
		Where("test_id = ?", testID).
		Order("group_id").
		Pluck("group_id", &assignment.GroupIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to get assigned groups: %w", err)
	}
	if err := db.Model(&models.TestExcludedStudent{}).
		Where("test_id = ?", testID).
		Order("student_id").
		Pluck("student_id", &assignment.ExcludedStudentIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to get excluded students: %w", err)
	}

	return assignment, nil
}

// Replace swaps all three id-sets of a test in one transaction
func (a *AssignmentPostgreSQL) Replace(ctx context.Context, assignment *models.Assignment) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteAssignment(tx, assignment.TestID); err != nil {
			return err
		}

		direct := make([]models.TestDirectStudent, 0, len(assignment.DirectStudentIDs))
		for _, id := range assignment.DirectStudentIDs {
			direct = append(direct, models.TestDirectStudent{TestID: assignment.TestID, StudentID: id})
		}
		groups := make([]models.TestGroup, 0, len(assignment.GroupIDs))
		for _, id := range assignment.GroupIDs {
			groups = append(groups, models.TestGroup{TestID: assignment.TestID, GroupID: id})
		}
		excluded := make([]models.TestExcludedStudent, 0, len(assignment.ExcludedStudentIDs))
		for _, id := range assignment.ExcludedStudentIDs {
			excluded = append(excluded, models.TestExcludedStudent{TestID: assignment.TestID, StudentID: id})
		}

		if len(direct) > 0 {
			if err := tx.CreateInBatches(direct, 500).Error; err != nil {
				return fmt.Errorf("failed to store direct students: %w", err)
			}
		}
		if len(groups) > 0 {
			if err := tx.CreateInBatches(groups, 500).Error; err != nil {
				return fmt.Errorf("failed to store assigned groups: %w", err)
			}
		}
		if len(excluded) > 0 {
			if err := tx.CreateInBatches(excluded, 500).Error; err != nil {
				return fmt.Errorf("failed to store excluded students: %w", err)
			}
		}
		return nil
	})
}

func (a *AssignmentPostgreSQL) DeleteByTest(ctx context.Context, testID uint) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteAssignment(tx, testID)
	})
}

func deleteAssignment(tx *gorm.DB, testID uint) error {
	for _, model := range []interface{}{
		&models.TestDirectStudent{},
		&models.TestGroup{},
		&models.TestExcludedStudent{},
	} {
		if err := tx.Where("test_id = ?", testID).Delete(model).Error; err != nil {
			return fmt.Errorf("failed to clear assignment: %w", err)
		}
	}
	return nil
}

// CandidateTestIDs unions direct and group assignment; exclusions are left to
// the resolver
func (a *AssignmentPostgreSQL) CandidateTestIDs(ctx context.Context, studentID string) ([]uint, error) {
	var ids []uint
	err := a.db.WithContext(ctx).Raw(`
		SELECT test_id FROM test_direct_students WHERE student_id = ?
		UNION
		SELECT tg.test_id FROM test_groups tg
		JOIN group_members gm ON gm.group_id = tg.group_id
		WHERE gm.student_id = ?
		ORDER BY test_id`, studentID, studentID).
		Scan(&ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find candidate tests: %w", err)
	}
	return ids, nil
}
