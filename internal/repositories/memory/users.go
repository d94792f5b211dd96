package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
)

// UserDirectory is a static user source for local runs and tests
type UserDirectory struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewUserDirectory(users ...*models.User) *UserDirectory {
	d := &UserDirectory{users: map[string]models.User{}}
	for _, u := range users {
		d.Put(u)
	}
	return d
}

func (d *UserDirectory) Put(user *models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = *user
}

func (d *UserDirectory) GetByID(ctx context.Context, id string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &user, nil
}

func (d *UserDirectory) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := d.users[id]; ok {
			users = append(users, &user)
		}
	}
	return users, nil
}

func (d *UserDirectory) List(ctx context.Context, filters repositories.UserFilters) ([]*models.User, int64, error) {
	d.mu.RLock()
	var all []*models.User
	query := strings.ToLower(filters.Query)
	for _, user := range d.users {
		user := user
		if query != "" && !strings.Contains(strings.ToLower(user.FullName), query) && !strings.Contains(strings.ToLower(user.Email), query) {
			continue
		}
		all = append(all, &user)
	}
	d.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))

	if filters.Limit <= 0 {
		filters.Limit = 10
	}
	if filters.Offset >= len(all) {
		return []*models.User{}, total, nil
	}
	end := filters.Offset + filters.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[filters.Offset:end], total, nil
}

func (d *UserDirectory) ExistsByID(ctx context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[id]
	return ok, nil
}

func (d *UserDirectory) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	user, err := d.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return user.Role == role, nil
}
