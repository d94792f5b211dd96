package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
)

type GroupPostgreSQL struct {
	db *gorm.DB
}

func NewGroupPostgreSQL(db *gorm.DB) repositories.GroupRepository {
	return &GroupPostgreSQL{db: db}
}

// Create inserts the group together with its initial members
func (g *GroupPostgreSQL) Create(ctx context.Context, group *models.Group) error {
	if err := g.db.WithContext(ctx).Create(group).Error; err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

func (g *GroupPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Group, error) {
	var group models.Group
	err := g.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("student_id ASC")
		}).
		First(&group, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &group, nil
}

func (g *GroupPostgreSQL) ExistingIDs(ctx context.Context, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return []uint{}, nil
	}

	var existing []uint
	err := g.db.WithContext(ctx).
		Model(&models.Group{}).
		Where("id IN ?", ids).
		Order("id").
		Pluck("id", &existing).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check groups: %w", err)
	}
	return existing, nil
}

func (g *GroupPostgreSQL) GetMemberIDs(ctx context.Context, groupID uint) ([]string, error) {
	if err := g.requireGroup(ctx, groupID); err != nil {
		return nil, err
	}

	var ids []string
	err := g.db.WithContext(ctx).
		Model(&models.GroupMember{}).
		Where("group_id = ?", groupID).
		Order("student_id").
		Pluck("student_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	return ids, nil
}

func (g *GroupPostgreSQL) AddMembers(ctx context.Context, groupID uint, studentIDs []string) (int, error) {
	if err := g.requireGroup(ctx, groupID); err != nil {
		return 0, err
	}
	if len(studentIDs) == 0 {
		return 0, nil
	}

	members := make([]models.GroupMember, 0, len(studentIDs))
	for _, id := range studentIDs {
		members = append(members, models.GroupMember{GroupID: groupID, StudentID: id})
	}

	result := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&members, 500)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to add group members: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (g *GroupPostgreSQL) RemoveMember(ctx context.Context, groupID uint, studentID string) error {
	result := g.db.WithContext(ctx).
		Where("group_id = ? AND student_id = ?", groupID, studentID).
		Delete(&models.GroupMember{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove group member: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (g *GroupPostgreSQL) requireGroup(ctx context.Context, groupID uint) error {
	var count int64
	if err := g.db.WithContext(ctx).Model(&models.Group{}).Where("id = ?", groupID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check group: %w", err)
	}
	if count == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

type ImportSessionPostgreSQL struct {
	db *gorm.DB
}

func NewImportSessionPostgreSQL(db *gorm.DB) repositories.ImportSessionRepository {
	return &ImportSessionPostgreSQL{db: db}
}

func (s *ImportSessionPostgreSQL) Create(ctx context.Context, session *models.ImportSession) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create import session: %w", err)
	}
	return nil
}

func (s *ImportSessionPostgreSQL) GetByID(ctx context.Context, id string) (*models.ImportSession, error) {
	var session models.ImportSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get import session: %w", err)
	}
	return &session, nil
}

func (s *ImportSessionPostgreSQL) Update(ctx context.Context, session *models.ImportSession) error {
	result := s.db.WithContext(ctx).
		Model(&models.ImportSession{}).
		Where("id = ?", session.ID).
		Select("status", "rows", "reviewed_at", "committed_at", "updated_at").
		Updates(session)
	if result.Error != nil {
		return fmt.Errorf("failed to update import session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (s *ImportSessionPostgreSQL) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.ImportSession{}).
		Where("created_at < ? AND status IN ?", cutoff, []models.ImportStatus{models.ImportPending, models.ImportReviewed}).
		Updates(map[string]interface{}{
			"status":     models.ImportExpired,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire import sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
