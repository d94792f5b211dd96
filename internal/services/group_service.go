package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
	"github.com/SAP-F-2025/test-access-service/internal/validator"
)

type groupService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
}

func NewGroupService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator) GroupService {
	return &groupService{
		repo:      repo,
		logger:    logger,
		validator: validator,
	}
}

func (s *groupService) Create(ctx context.Context, principal models.Principal, req *CreateGroupRequest) (*models.Group, error) {
	if !principal.CanManageTests() {
		return nil, NewPermissionError(principal.UserID, "", "group", "create", "teacher role required")
	}
	if err := validate(s.validator, req); err != nil {
		return nil, err
	}

	studentIDs := uniqueStrings(req.StudentIDs)
	if err := requireStudents(ctx, s.repo.User(), studentIDs); err != nil {
		return nil, err
	}

	group := &models.Group{
		Name:      strings.TrimSpace(req.Name),
		CreatedBy: principal.UserID,
	}
	for _, id := range studentIDs {
		group.Members = append(group.Members, models.GroupMember{StudentID: id})
	}

	if err := s.repo.Group().Create(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	s.logger.Info("Group created",
		"group_id", group.ID,
		"members", len(group.Members),
		"creator_id", principal.UserID)
	return group, nil
}

func (s *groupService) Get(ctx context.Context, principal models.Principal, id uint) (*models.Group, error) {
	return loadOwnedGroup(ctx, s.repo, principal, id, "view")
}

// AddMembers adds students to a group; membership changes apply to every
// test the group is assigned to on the next eligibility check
func (s *groupService) AddMembers(ctx context.Context, principal models.Principal, id uint, req *GroupMembersRequest) (*GroupMembersResponse, error) {
	if _, err := loadOwnedGroup(ctx, s.repo, principal, id, "update"); err != nil {
		return nil, err
	}
	if err := validate(s.validator, req); err != nil {
		return nil, err
	}

	studentIDs := uniqueStrings(req.StudentIDs)
	if err := requireStudents(ctx, s.repo.User(), studentIDs); err != nil {
		return nil, err
	}

	added, err := s.repo.Group().AddMembers(ctx, id, studentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to add members: %w", err)
	}
	members, err := s.repo.Group().GetMemberIDs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}

	s.logger.Info("Group members added", "group_id", id, "added", added)
	return &GroupMembersResponse{GroupID: id, Added: added, Total: len(members)}, nil
}

func (s *groupService) RemoveMember(ctx context.Context, principal models.Principal, id uint, studentID string) error {
	if _, err := loadOwnedGroup(ctx, s.repo, principal, id, "update"); err != nil {
		return err
	}

	if err := s.repo.Group().RemoveMember(ctx, id, studentID); err != nil {
		if repositories.IsNotFoundError(err) {
			return fmt.Errorf("%w: %s is not a member", ErrStudentNotFound, studentID)
		}
		return fmt.Errorf("failed to remove member: %w", err)
	}

	s.logger.Info("Group member removed", "group_id", id, "student_id", studentID)
	return nil
}

func loadOwnedGroup(ctx context.Context, repo repositories.Repository, principal models.Principal, id uint, action string) (*models.Group, error) {
	resourceID := strconv.FormatUint(uint64(id), 10)
	if !principal.CanManageTests() {
		return nil, NewPermissionError(principal.UserID, resourceID, "group", action, "teacher role required")
	}

	group, err := repo.Group().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	if !principal.Owns(group.CreatedBy) {
		return nil, NewPermissionError(principal.UserID, resourceID, "group", action, "not the owner")
	}
	return group, nil
}
