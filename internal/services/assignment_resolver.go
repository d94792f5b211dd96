package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/SAP-F-2025/test-access-service/internal/repositories"
)

// StudentSet is a set of student ids
type StudentSet map[string]struct{}

func (s StudentSet) Contains(studentID string) bool {
	_, ok := s[studentID]
	return ok
}

// Sorted returns the members in ascending order
func (s StudentSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ResolveEligible computes (direct ∪ members of every group) \ excluded.
// With no direct students and no groups the result is empty.
func ResolveEligible(direct []string, groupMembers [][]string, excluded []string) StudentSet {
	eligible := StudentSet{}
	for _, id := range direct {
		eligible[id] = struct{}{}
	}
	for _, members := range groupMembers {
		for _, id := range members {
			eligible[id] = struct{}{}
		}
	}
	for _, id := range excluded {
		delete(eligible, id)
	}
	return eligible
}

type assignmentResolver struct {
	repo repositories.Repository
}

// NewAssignmentResolver returns the resolver every access check goes through.
// Results are computed from live group membership on each call.
func NewAssignmentResolver(repo repositories.Repository) AssignmentResolver {
	return &assignmentResolver{repo: repo}
}

func (r *assignmentResolver) Eligible(ctx context.Context, testID uint) (StudentSet, error) {
	assignment, err := r.repo.Assignment().Get(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	if assignment.IsEmpty() {
		return StudentSet{}, nil
	}

	groupMembers := make([][]string, 0, len(assignment.GroupIDs))
	for _, groupID := range assignment.GroupIDs {
		members, err := r.repo.Group().GetMemberIDs(ctx, groupID)
		if err != nil {
			// A deleted group contributes nobody
			if repositories.IsNotFoundError(err) {
				continue
			}
			return nil, fmt.Errorf("failed to load members of group %d: %w", groupID, err)
		}
		groupMembers = append(groupMembers, members)
	}

	return ResolveEligible(assignment.DirectStudentIDs, groupMembers, assignment.ExcludedStudentIDs), nil
}

func (r *assignmentResolver) IsEligible(ctx context.Context, studentID string, testID uint) (bool, error) {
	eligible, err := r.Eligible(ctx, testID)
	if err != nil {
		return false, err
	}
	return eligible.Contains(studentID), nil
}
