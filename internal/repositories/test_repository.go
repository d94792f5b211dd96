package repositories

import (
	"context"

	"github.com/SAP-F-2025/test-access-service/internal/models"
)

type TestRepository interface {
	Create(ctx context.Context, test *models.Test) error
	GetByID(ctx context.Context, id uint) (*models.Test, error)
	GetByIDs(ctx context.Context, ids []uint) ([]*models.Test, error)
	Update(ctx context.Context, test *models.Test) error
	Delete(ctx context.Context, id uint) error
	ListByCreator(ctx context.Context, creatorID string, filters TestFilters) ([]*models.Test, int64, error)
	List(ctx context.Context, filters TestFilters) ([]*models.Test, int64, error)
	SetPublished(ctx context.Context, id uint, published bool) error

	// LockForUpdate re-reads the test and holds it against concurrent
	// writers until the surrounding transaction ends
	LockForUpdate(ctx context.Context, id uint) (*models.Test, error)
}

// AssignmentRepository stores the three id-sets of a test's assignment.
// It never stores the derived eligible set.
type AssignmentRepository interface {
	// Get returns the assignment of a test; a test with nothing assigned
	// yields an empty assignment, not an error
	Get(ctx context.Context, testID uint) (*models.Assignment, error)
	Replace(ctx context.Context, assignment *models.Assignment) error
	DeleteByTest(ctx context.Context, testID uint) error

	// CandidateTestIDs returns tests where the student is assigned directly
	// or through a group, before exclusions are applied
	CandidateTestIDs(ctx context.Context, studentID string) ([]uint, error)
}
