package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
)

// SharedHelpers contains common database operations
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// CountAttempts counts attempts for a test
func (h *SharedHelpers) CountAttempts(ctx context.Context, testID uint) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("test_id = ?", testID).
		Count(&count).Error
	return count, err
}

// ApplyTestFilters applies common filters to test queries
func (h *SharedHelpers) ApplyTestFilters(query *gorm.DB, filters repositories.TestFilters) *gorm.DB {
	if filters.Published != nil {
		query = query.Where("is_published = ?", *filters.Published)
	}
	if filters.Query != "" {
		query = query.Where("title ILIKE ?", "%"+filters.Query+"%")
	}
	return query
}

// ApplyPaginationAndSort applies pagination and sorting with SQL injection protection
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	// Whitelist allowed sort columns
	allowedSortColumns := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"id":         true,
		"title":      true,
		"start_time": true,
	}

	if sortBy == "" || !allowedSortColumns[sortBy] {
		sortBy = "created_at"
	}

	if sortOrder != "asc" && sortOrder != "ASC" {
		sortOrder = "DESC"
	} else {
		sortOrder = "ASC"
	}

	// id breaks ties so pages are stable
	query = query.Order(sortBy + " " + sortOrder).Order("id " + sortOrder)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	return query
}
