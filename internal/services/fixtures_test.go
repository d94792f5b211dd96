package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/test-access-service/internal/cache"
	"github.com/SAP-F-2025/test-access-service/internal/events"
	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
	"github.com/SAP-F-2025/test-access-service/internal/repositories/memory"
	"github.com/SAP-F-2025/test-access-service/internal/validator"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var (
	teacher      = models.Principal{UserID: "teacher-1", Role: models.RoleTeacher}
	otherTeacher = models.Principal{UserID: "teacher-2", Role: models.RoleTeacher}
	schoolAdmin  = models.Principal{UserID: "admin-1", Role: models.RoleSchoolAdmin}
)

func studentPrincipal(id string) models.Principal {
	return models.Principal{UserID: id, Role: models.RoleStudent}
}

type fixture struct {
	ctx       context.Context
	repo      *memory.Repository
	users     *memory.UserDirectory
	clock     *fakeClock
	publisher *events.MockEventPublisher
	services  ServiceManager
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithRedis(t, nil)
}

func newFixtureWithRedis(t *testing.T, client *redis.Client) *fixture {
	return buildFixture(t, client, nil)
}

// newFixtureWrapped runs the services over wrap(store). f.repo stays the
// bare store so setup and assertions bypass the wrapper.
func newFixtureWrapped(t *testing.T, wrap func(*memory.Repository) repositories.Repository) *fixture {
	return buildFixture(t, nil, wrap)
}

func buildFixture(t *testing.T, client *redis.Client, wrap func(*memory.Repository) repositories.Repository) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := memory.NewUserDirectory(
		&models.User{ID: "s1", FullName: "Student One", Role: models.RoleStudent},
		&models.User{ID: "s2", FullName: "Student Two", Role: models.RoleStudent},
		&models.User{ID: "s3", FullName: "Student Three", Role: models.RoleStudent},
		&models.User{ID: "s4", FullName: "Student Four", Role: models.RoleStudent},
		&models.User{ID: "teacher-1", FullName: "Teacher One", Role: models.RoleTeacher},
	)

	f := &fixture{
		ctx:       context.Background(),
		repo:      memory.NewRepository(users),
		users:     users,
		clock:     &fakeClock{now: baseTime},
		publisher: events.NewMockEventPublisher(logger),
	}

	var repo repositories.Repository = f.repo
	if wrap != nil {
		repo = wrap(f.repo)
	}

	f.services = NewServiceManager(ServiceDependencies{
		Repo:      repo,
		Cache:     cache.NewCacheManager(client),
		Publisher: f.publisher,
		Logger:    logger,
		Validator: validator.New(),
		Clock:     f.clock,
	}, DefaultServiceManagerConfig())

	if err := f.services.Initialize(f.ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return f
}

func sampleTree() models.QuestionTree {
	return models.QuestionTree{
		{ID: "q1", Prompt: "Define entropy", Marks: 5},
		{ID: "q2", Prompt: "Thermodynamics", Marks: 0, Children: []models.QuestionNode{
			{ID: "q2a", Prompt: "First law", Marks: 3},
			{ID: "q2b", Prompt: "Second law", Marks: 3},
		}},
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrInt(n int) *int              { return &n }

// createTest stores a teacher-1 test directly in the repository
func (f *fixture) createTest(t *testing.T, start *time.Time, duration *int) *models.Test {
	t.Helper()
	test := &models.Test{
		Title:           "Physics midterm",
		StartTime:       start,
		DurationMinutes: duration,
		CreatedBy:       teacher.UserID,
	}
	test.SetQuestions(sampleTree())
	if err := f.repo.Test().Create(f.ctx, test); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return test
}

// publishFor assigns the students directly and publishes the test
func (f *fixture) publishFor(t *testing.T, testID uint, studentIDs ...string) {
	t.Helper()
	err := f.repo.Assignment().Replace(f.ctx, &models.Assignment{TestID: testID, DirectStudentIDs: studentIDs})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if err := f.repo.Test().SetPublished(f.ctx, testID, true); err != nil {
		t.Fatalf("SetPublished() error = %v", err)
	}
}

// liveTest is a published 60 minute test that opened at baseTime
func (f *fixture) liveTest(t *testing.T, studentIDs ...string) *models.Test {
	t.Helper()
	test := f.createTest(t, ptrTime(baseTime), ptrInt(60))
	f.publishFor(t, test.ID, studentIDs...)
	return test
}
