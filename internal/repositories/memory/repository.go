// Package memory is an in-process implementation of the repository layer,
// used for local runs without Postgres and by service and handler tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
)

type attemptKey struct {
	studentID string
	testID    uint
}

type answerKey struct {
	studentID  string
	testID     uint
	questionID string
}

type state struct {
	tests      map[uint]models.Test
	nextTestID uint

	direct   map[uint]map[string]struct{}
	groupsOf map[uint]map[uint]struct{}
	excluded map[uint]map[string]struct{}

	groups      map[uint]models.Group
	members     map[uint]map[string]time.Time
	nextGroupID uint

	attempts      map[attemptKey]models.Attempt
	attemptKeys   map[uint]attemptKey
	nextAttemptID uint

	answers      map[answerKey]models.Answer
	nextAnswerID uint

	imports map[string]models.ImportSession
}

func newState() *state {
	return &state{
		tests:       map[uint]models.Test{},
		direct:      map[uint]map[string]struct{}{},
		groupsOf:    map[uint]map[uint]struct{}{},
		excluded:    map[uint]map[string]struct{}{},
		groups:      map[uint]models.Group{},
		members:     map[uint]map[string]time.Time{},
		attempts:    map[attemptKey]models.Attempt{},
		attemptKeys: map[uint]attemptKey{},
		answers:     map[answerKey]models.Answer{},
		imports:     map[string]models.ImportSession{},
	}
}

func (s *state) clone() *state {
	c := &state{
		tests:         make(map[uint]models.Test, len(s.tests)),
		nextTestID:    s.nextTestID,
		direct:        cloneNested(s.direct),
		groupsOf:      cloneNested(s.groupsOf),
		excluded:      cloneNested(s.excluded),
		groups:        make(map[uint]models.Group, len(s.groups)),
		members:       cloneNested(s.members),
		nextGroupID:   s.nextGroupID,
		attempts:      make(map[attemptKey]models.Attempt, len(s.attempts)),
		attemptKeys:   make(map[uint]attemptKey, len(s.attemptKeys)),
		nextAttemptID: s.nextAttemptID,
		answers:       make(map[answerKey]models.Answer, len(s.answers)),
		nextAnswerID:  s.nextAnswerID,
		imports:       make(map[string]models.ImportSession, len(s.imports)),
	}
	for k, v := range s.tests {
		c.tests[k] = v
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.attempts {
		c.attempts[k] = v
	}
	for k, v := range s.attemptKeys {
		c.attemptKeys[k] = v
	}
	for k, v := range s.answers {
		c.answers[k] = v
	}
	for k, v := range s.imports {
		c.imports[k] = v
	}
	return c
}

func cloneNested[K comparable, V comparable, T any](in map[K]map[V]T) map[K]map[V]T {
	out := make(map[K]map[V]T, len(in))
	for k, inner := range in {
		m := make(map[V]T, len(inner))
		for ik, iv := range inner {
			m[ik] = iv
		}
		out[k] = m
	}
	return out
}

// Repository implements repositories.Repository on mutex-guarded maps
type Repository struct {
	mu   *sync.RWMutex
	st   **state
	inTx bool

	users repositories.UserRepository
}

// NewRepository creates an empty store. users may be nil, in which case an
// empty user directory is used.
func NewRepository(users repositories.UserRepository) *Repository {
	if users == nil {
		users = NewUserDirectory()
	}
	st := newState()
	return &Repository{
		mu:    &sync.RWMutex{},
		st:    &st,
		users: users,
	}
}

func (r *Repository) state() *state {
	return *r.st
}

func (r *Repository) Test() repositories.TestRepository {
	return &testStore{r: r}
}

func (r *Repository) Assignment() repositories.AssignmentRepository {
	return &assignmentStore{r: r}
}

func (r *Repository) Group() repositories.GroupRepository {
	return &groupStore{r: r}
}

func (r *Repository) ImportSession() repositories.ImportSessionRepository {
	return &importStore{r: r}
}

func (r *Repository) Attempt() repositories.AttemptRepository {
	return &attemptStore{r: r}
}

func (r *Repository) Answer() repositories.AnswerRepository {
	return &answerStore{r: r}
}

func (r *Repository) User() repositories.UserRepository {
	return r.users
}

// WithTransaction holds the store's write lock while fn runs and restores a
// snapshot when fn fails. fn must only use the repository it is given; the
// outer repository blocks until the transaction ends.
func (r *Repository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	if r.inTx {
		return fn(r)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.state().clone()
	tx := &Repository{mu: &sync.RWMutex{}, st: r.st, inTx: true, users: r.users}
	if err := fn(tx); err != nil {
		*r.st = snapshot
		return err
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *Repository) Close() error {
	return nil
}

// RepositoryManager implements repositories.RepositoryManager for the memory store
type RepositoryManager struct {
	users repositories.UserRepository
	repo  *Repository
}

func NewRepositoryManager(users repositories.UserRepository) repositories.RepositoryManager {
	return &RepositoryManager{users: users}
}

func (rm *RepositoryManager) Initialize() error {
	rm.repo = NewRepository(rm.users)
	return nil
}

func (rm *RepositoryManager) GetRepository() repositories.Repository {
	return rm.repo
}

func (rm *RepositoryManager) HealthCheck(ctx context.Context) error {
	if rm.repo == nil {
		return fmt.Errorf("repository not initialized")
	}
	return rm.repo.Ping(ctx)
}

func (rm *RepositoryManager) Shutdown(ctx context.Context) error {
	return nil
}
