package services

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/test-access-service/internal/repositories"
)

type publishGuard struct {
	repo     repositories.Repository
	resolver AssignmentResolver
}

func NewPublishGuard(repo repositories.Repository, resolver AssignmentResolver) PublishGuard {
	return &publishGuard{repo: repo, resolver: resolver}
}

// guardFor binds a guard to one transaction so its reads see the rows the
// caller has locked
func guardFor(tx repositories.Repository) PublishGuard {
	return NewPublishGuard(tx, NewAssignmentResolver(tx))
}

func (g *publishGuard) CanPublish(ctx context.Context, testID uint) error {
	eligible, err := g.resolver.Eligible(ctx, testID)
	if err != nil {
		return err
	}
	if len(eligible) == 0 {
		return NewPreconditionError(ReasonNoStudentsAssigned, "no students assigned")
	}
	return nil
}

func (g *publishGuard) CanUnpublish(ctx context.Context, testID uint) error {
	return g.requireNoAttempts(ctx, testID, "cannot unpublish")
}

func (g *publishGuard) CanEditStructure(ctx context.Context, testID uint) error {
	return g.requireNoAttempts(ctx, testID, "cannot edit structure")
}

func (g *publishGuard) CanDelete(ctx context.Context, testID uint) error {
	return g.requireNoAttempts(ctx, testID, "cannot delete")
}

func (g *publishGuard) requireNoAttempts(ctx context.Context, testID uint, action string) error {
	count, err := g.repo.Attempt().CountByTest(ctx, testID)
	if err != nil {
		return fmt.Errorf("failed to count attempts: %w", err)
	}
	if count > 0 {
		return NewPreconditionError(ReasonAttemptsExist,
			fmt.Sprintf("%s: students have already started (%d attempts)", action, count))
	}
	return nil
}
