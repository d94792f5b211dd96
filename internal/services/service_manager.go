package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/test-access-service/internal/cache"
	"github.com/SAP-F-2025/test-access-service/internal/events"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
	"github.com/SAP-F-2025/test-access-service/internal/validator"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	// Remaining time reported for live tests that never close
	WindowDefaultBound time.Duration

	// Age after which an uncommitted roster import expires
	ImportSessionTTL time.Duration
}

// DefaultServiceManagerConfig returns the settings used when none are configured
func DefaultServiceManagerConfig() ServiceManagerConfig {
	return ServiceManagerConfig{
		WindowDefaultBound: 24 * time.Hour,
		ImportSessionTTL:   24 * time.Hour,
	}
}

// Validate validates the service manager configuration
func (c ServiceManagerConfig) Validate() error {
	var errs []error
	if c.WindowDefaultBound <= 0 {
		errs = append(errs, errors.New("window default bound must be positive"))
	}
	if c.ImportSessionTTL <= 0 {
		errs = append(errs, errors.New("import session TTL must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// ServiceDependencies are the collaborators shared by every service
type ServiceDependencies struct {
	Repo      repositories.Repository
	Cache     *cache.CacheManager
	Publisher events.EventPublisher
	Logger    *slog.Logger
	Validator *validator.Validator
	Clock     Clock
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	deps   ServiceDependencies
	config ServiceManagerConfig

	// Service instances
	resolver       AssignmentResolver
	guard          PublishGuard
	testService    TestService
	attemptService AttemptService
	answerService  AnswerService
	groupService   GroupService
	importService  ImportService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(deps ServiceDependencies, config ServiceManagerConfig) ServiceManager {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewCacheManager(nil)
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	return &serviceManager{deps: deps, config: config}
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.deps.Logger.Info("Initializing service manager")

	if err := sm.config.Validate(); err != nil {
		return err
	}
	if sm.deps.Repo == nil {
		return fmt.Errorf("failed to initialize services: repository is required")
	}

	d := sm.deps
	policy := NewWindowPolicy(sm.config.WindowDefaultBound)
	students := NewStudentResolver()
	answers := cache.NewAnswersCache(d.Cache)

	sm.resolver = NewAssignmentResolver(d.Repo)
	sm.guard = NewPublishGuard(d.Repo, sm.resolver)
	sm.testService = NewTestService(d.Repo, sm.resolver, policy, d.Clock, d.Publisher, d.Logger, d.Validator)
	sm.attemptService = NewAttemptService(d.Repo, sm.resolver, students, policy, d.Clock, answers, d.Publisher, d.Logger)
	sm.answerService = NewAnswerService(d.Repo, sm.resolver, students, policy, d.Clock, answers, d.Logger, d.Validator)
	sm.groupService = NewGroupService(d.Repo, d.Logger, d.Validator)
	sm.importService = NewImportService(d.Repo, d.Clock, sm.config.ImportSessionTTL, d.Publisher, d.Logger, d.Validator)

	sm.initialized = true
	sm.deps.Logger.Info("Service manager initialized successfully")

	return nil
}

func (sm *serviceManager) mustBeInitialized() {
	if !sm.initialized {
		panic("service manager not initialized")
	}
}

// Service getters
func (sm *serviceManager) Tests() TestService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.testService
}

func (sm *serviceManager) Attempts() AttemptService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.attemptService
}

func (sm *serviceManager) Answers() AnswerService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.answerService
}

func (sm *serviceManager) Groups() GroupService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.groupService
}

func (sm *serviceManager) Imports() ImportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.importService
}

func (sm *serviceManager) Resolver() AssignmentResolver {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.resolver
}

func (sm *serviceManager) Guard() PublishGuard {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	sm.mustBeInitialized()
	return sm.guard
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.deps.Repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	// Redis is optional; only a configured but unreachable cache is unhealthy
	if err := sm.deps.Cache.HealthCheck(ctx); err != nil && !errors.Is(err, cache.ErrCacheNotAvailable) {
		return err
	}

	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.deps.Logger.Info("Shutting down service manager")

	if sm.deps.Publisher != nil {
		if err := sm.deps.Publisher.Close(); err != nil {
			sm.deps.Logger.Error("Failed to close event publisher", "error", err)
		}
	}
	if err := sm.deps.Repo.Close(); err != nil {
		sm.deps.Logger.Error("Failed to close repository", "error", err)
	}

	sm.shutdown = true
	sm.deps.Logger.Info("Service manager shut down completed")

	return nil
}
