package repositories

import (
	"context"

	"github.com/SAP-F-2025/test-access-service/internal/models"
)

// UserRepository interface for user operations (the identity provider owns user data)
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	List(ctx context.Context, filters UserFilters) ([]*models.User, int64, error)

	ExistsByID(ctx context.Context, id string) (bool, error)
	HasRole(ctx context.Context, id string, role models.UserRole) (bool, error)
}
