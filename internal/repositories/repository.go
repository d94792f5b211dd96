package repositories

import "context"

// Repository aggregates every store the service reads and writes
type Repository interface {
	// Test domain
	Test() TestRepository
	Assignment() AssignmentRepository

	// Group domain
	Group() GroupRepository
	ImportSession() ImportSessionRepository

	// Attempt domain
	Attempt() AttemptRepository
	Answer() AnswerRepository

	// User domain (read-only, owned by the identity provider)
	User() UserRepository

	// WithTransaction runs fn against a repository bound to one transaction.
	// fn returning an error rolls everything back.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
