package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
)

type testStore struct {
	r *Repository
}

func (s *testStore) Create(ctx context.Context, test *models.Test) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	st := s.r.state()
	st.nextTestID++
	test.ID = st.nextTestID
	now := time.Now()
	if test.CreatedAt.IsZero() {
		test.CreatedAt = now
	}
	test.UpdatedAt = now
	st.tests[test.ID] = *test
	return nil
}

func (s *testStore) GetByID(ctx context.Context, id uint) (*models.Test, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	test, ok := s.r.state().tests[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &test, nil
}

func (s *testStore) GetByIDs(ctx context.Context, ids []uint) ([]*models.Test, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	tests := make([]*models.Test, 0, len(ids))
	for _, id := range ids {
		if test, ok := s.r.state().tests[id]; ok {
			tests = append(tests, &test)
		}
	}
	return tests, nil
}

func (s *testStore) Update(ctx context.Context, test *models.Test) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	st := s.r.state()
	if _, ok := st.tests[test.ID]; !ok {
		return repositories.ErrNotFound
	}
	test.UpdatedAt = time.Now()
	st.tests[test.ID] = *test
	return nil
}

func (s *testStore) Delete(ctx context.Context, id uint) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	st := s.r.state()
	if _, ok := st.tests[id]; !ok {
		return repositories.ErrNotFound
	}
	for key := range st.attempts {
		if key.testID == id {
			return repositories.ErrReferenced
		}
	}
	delete(st.tests, id)
	return nil
}

func (s *testStore) SetPublished(ctx context.Context, id uint, published bool) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	st := s.r.state()
	test, ok := st.tests[id]
	if !ok {
		return repositories.ErrNotFound
	}
	test.IsPublished = published
	test.UpdatedAt = time.Now()
	st.tests[id] = test
	return nil
}

// LockForUpdate is a plain read; a memory transaction already excludes
// every other writer
func (s *testStore) LockForUpdate(ctx context.Context, id uint) (*models.Test, error) {
	return s.GetByID(ctx, id)
}

func (s *testStore) ListByCreator(ctx context.Context, creatorID string, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	return s.list(func(t *models.Test) bool { return t.CreatedBy == creatorID }, filters)
}

func (s *testStore) List(ctx context.Context, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	return s.list(func(*models.Test) bool { return true }, filters)
}

func (s *testStore) list(match func(*models.Test) bool, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	filters.Normalize()

	s.r.mu.RLock()
	var all []*models.Test
	query := strings.ToLower(strings.TrimSpace(filters.Query))
	for _, test := range s.r.state().tests {
		test := test
		if !match(&test) {
			continue
		}
		if filters.Published != nil && test.IsPublished != *filters.Published {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(test.Title), query) {
			continue
		}
		all = append(all, &test)
	}
	s.r.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		if filters.SortOrder == "desc" {
			return lessTest(all[j], all[i], filters.SortBy)
		}
		return lessTest(all[i], all[j], filters.SortBy)
	})

	total := int64(len(all))
	if filters.Offset >= len(all) {
		return []*models.Test{}, total, nil
	}
	end := filters.Offset + filters.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[filters.Offset:end], total, nil
}

func lessTest(a, b *models.Test, sortBy string) bool {
	switch sortBy {
	case "title":
		if a.Title != b.Title {
			return a.Title < b.Title
		}
	case "start_time":
		at, bt := timeOrZero(a.StartTime), timeOrZero(b.StartTime)
		if !at.Equal(bt) {
			return at.Before(bt)
		}
	default:
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	return a.ID < b.ID
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

type assignmentStore struct {
	r *Repository
}

func (s *assignmentStore) Get(ctx context.Context, testID uint) (*models.Assignment, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	st := s.r.state()
	assignment := &models.Assignment{
		TestID:             testID,
		DirectStudentIDs:   sortedKeys(st.direct[testID]),
		ExcludedStudentIDs: sortedKeys(st.excluded[testID]),
	}
	for groupID := range st.groupsOf[testID] {
		assignment.GroupIDs = append(assignment.GroupIDs, groupID)
	}
	sort.Slice(assignment.GroupIDs, func(i, j int) bool { return assignment.GroupIDs[i] < assignment.GroupIDs[j] })
	return assignment, nil
}

func (s *assignmentStore) Replace(ctx context.Context, assignment *models.Assignment) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	st := s.r.state()
	testID := assignment.TestID

	st.direct[testID] = toSet(assignment.DirectStudentIDs)
	st.excluded[testID] = toSet(assignment.ExcludedStudentIDs)
	groups := make(map[uint]struct{}, len(assignment.GroupIDs))
	for _, id := range assignment.GroupIDs {
		groups[id] = struct{}{}
	}
	st.groupsOf[testID] = groups
	return nil
}

func (s *assignmentStore) DeleteByTest(ctx context.Context, testID uint) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	st := s.r.state()
	delete(st.direct, testID)
	delete(st.excluded, testID)
	delete(st.groupsOf, testID)
	return nil
}

func (s *assignmentStore) CandidateTestIDs(ctx context.Context, studentID string) ([]uint, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	st := s.r.state()
	seen := map[uint]struct{}{}
	for testID, students := range st.direct {
		if _, ok := students[studentID]; ok {
			seen[testID] = struct{}{}
		}
	}
	for testID, groups := range st.groupsOf {
		for groupID := range groups {
			if _, ok := st.members[groupID][studentID]; ok {
				seen[testID] = struct{}{}
				break
			}
		}
	}

	ids := make([]uint, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
