package casdoor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"

	"github.com/SAP-F-2025/test-access-service/internal/cache"
	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
)

// CasdoorConfig holds the configuration for Casdoor connection
type CasdoorConfig struct {
	Endpoint         string
	ClientID         string
	ClientSecret     string
	Certificate      string
	OrganizationName string
	ApplicationName  string
}

// userSource is the part of the Casdoor SDK client the directory reads from
type userSource interface {
	GetUserByUserId(userId string) (*casdoorsdk.User, error)
	GetPaginationUsers(p int, pageSize int, queryMap map[string]string) ([]*casdoorsdk.User, int, error)
}

type UserCasdoor struct {
	client userSource
	cache  *cache.CacheManager
}

// NewClient builds a Casdoor SDK client from config
func NewClient(config CasdoorConfig) *casdoorsdk.Client {
	return casdoorsdk.NewClient(
		config.Endpoint,
		config.ClientID,
		config.ClientSecret,
		config.Certificate,
		config.OrganizationName,
		config.ApplicationName,
	)
}

func NewUserCasdoor(config CasdoorConfig, cacheManager *cache.CacheManager) repositories.UserRepository {
	return newUserCasdoor(NewClient(config), cacheManager)
}

func newUserCasdoor(client userSource, cacheManager *cache.CacheManager) *UserCasdoor {
	if cacheManager == nil {
		cacheManager = cache.NewCacheManager(nil)
	}
	return &UserCasdoor{client: client, cache: cacheManager}
}

// ===== CONVERSION METHODS =====

// convertCasdoorUserToModel converts Casdoor user to internal model
func convertCasdoorUserToModel(casdoorUser *casdoorsdk.User) *models.User {
	if casdoorUser == nil {
		return nil
	}

	var createdAt, updatedAt time.Time
	if casdoorUser.CreatedTime != "" {
		createdAt, _ = time.Parse(time.RFC3339, casdoorUser.CreatedTime)
	}
	if casdoorUser.UpdatedTime != "" {
		updatedAt, _ = time.Parse(time.RFC3339, casdoorUser.UpdatedTime)
	}

	var avatar *string
	if casdoorUser.Avatar != "" {
		avatar = &casdoorUser.Avatar
	}

	return &models.User{
		ID:            casdoorUser.Id,
		FullName:      casdoorUser.DisplayName,
		Email:         casdoorUser.Email,
		Role:          ResolveRole(casdoorUser),
		AvatarURL:     avatar,
		EmailVerified: casdoorUser.EmailVerified,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
}

// ResolveRole picks the most privileged recognised role from the user's
// Casdoor roles and type. Users with no recognised role get an empty role
// and are refused as principals.
func ResolveRole(user *casdoorsdk.User) models.UserRole {
	if user.IsAdmin {
		return models.RoleSchoolAdmin
	}

	names := []string{user.Type}
	for _, role := range user.Roles {
		if role != nil {
			names = append(names, role.Name)
		}
	}

	var best models.UserRole
	for _, name := range names {
		mapped, err := models.ParseUserRole(name)
		if err != nil {
			continue
		}
		if rank(mapped) > rank(best) {
			best = mapped
		}
	}
	return best
}

func rank(role models.UserRole) int {
	switch role {
	case models.RoleSchoolAdmin:
		return 3
	case models.RoleTeacher:
		return 2
	case models.RoleStudent:
		return 1
	default:
		return 0
	}
}

// ===== BASIC READ OPERATIONS =====

// GetByID retrieves a user by ID
func (u *UserCasdoor) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := u.cache.User.CacheOrExecute(ctx, "id:"+id, &user, cache.UserCacheConfig.TTL, func() (interface{}, error) {
		casdoorUser, err := u.client.GetUserByUserId(id)
		if err != nil {
			return nil, fmt.Errorf("failed to get user from Casdoor: %w", err)
		}
		if casdoorUser == nil {
			return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
		}
		return convertCasdoorUserToModel(casdoorUser), nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByIDs retrieves multiple users by their IDs; unknown ids are skipped
func (u *UserCasdoor) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return []*models.User{}, nil
	}

	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		user, err := u.GetByID(ctx, id)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				continue
			}
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// ===== VALIDATION AND CHECKS =====

// ExistsByID checks if a user exists by ID
func (u *UserCasdoor) ExistsByID(ctx context.Context, id string) (bool, error) {
	cacheKey := "id:" + id
	if cached, err := u.cache.Exists.GetString(ctx, cacheKey); err == nil {
		return cached == "true", nil
	}

	_, err := u.GetByID(ctx, id)
	exists := err == nil
	if err != nil && !repositories.IsNotFoundError(err) {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}

	cache.SafeSetString(ctx, u.cache.Exists, cacheKey, strconv.FormatBool(exists), cache.ExistsCacheConfig.TTL)
	return exists, nil
}

// HasRole checks if a user has a specific role
func (u *UserCasdoor) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	user, err := u.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return role == user.Role, nil
}

// ===== LIST AND SEARCH OPERATIONS =====

// List retrieves a paginated list of users with optional filters
func (u *UserCasdoor) List(ctx context.Context, filters repositories.UserFilters) ([]*models.User, int64, error) {
	if filters.Limit <= 0 {
		filters.Limit = 10
	}
	if filters.Limit > 100 {
		filters.Limit = 100
	}

	// Casdoor pages are 1-indexed
	page := (filters.Offset / filters.Limit) + 1
	if page < 1 {
		page = 1
	}

	queryMap := make(map[string]string)
	if filters.Query != "" {
		queryMap["field"] = "email"
		queryMap["value"] = filters.Query
	}

	casdoorUsers, count, err := u.client.GetPaginationUsers(page, filters.Limit, queryMap)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get users from Casdoor: %w", err)
	}

	users := make([]*models.User, 0, len(casdoorUsers))
	for _, casdoorUser := range casdoorUsers {
		user := convertCasdoorUserToModel(casdoorUser)
		if user == nil {
			continue
		}
		users = append(users, user)
		cache.SafeSet(ctx, u.cache.User, "id:"+user.ID, user, cache.UserCacheConfig.TTL)
	}

	return users, int64(count), nil
}
