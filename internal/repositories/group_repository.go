package repositories

import (
	"context"
	"time"

	"github.com/SAP-F-2025/test-access-service/internal/models"
)

type GroupRepository interface {
	Create(ctx context.Context, group *models.Group) error
	GetByID(ctx context.Context, id uint) (*models.Group, error)
	ExistingIDs(ctx context.Context, ids []uint) ([]uint, error)
	GetMemberIDs(ctx context.Context, groupID uint) ([]string, error)

	// AddMembers adds students to a group, ignoring existing members, and
	// returns how many were new
	AddMembers(ctx context.Context, groupID uint, studentIDs []string) (int, error)
	RemoveMember(ctx context.Context, groupID uint, studentID string) error
}

type ImportSessionRepository interface {
	Create(ctx context.Context, session *models.ImportSession) error
	GetByID(ctx context.Context, id string) (*models.ImportSession, error)
	Update(ctx context.Context, session *models.ImportSession) error

	// ExpireBefore marks pending and reviewed sessions created before cutoff
	// as expired and returns how many changed
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
