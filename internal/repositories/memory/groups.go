package memory

import (
	"context"
	"sort"
	"time"

	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
)

type groupStore struct {
	r *Repository
}

func (s *groupStore) Create(ctx context.Context, group *models.Group) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	st := s.r.state()
	st.nextGroupID++
	group.ID = st.nextGroupID
	now := time.Now()
	group.CreatedAt, group.UpdatedAt = now, now

	members := make(map[string]time.Time, len(group.Members))
	for i := range group.Members {
		group.Members[i].GroupID = group.ID
		group.Members[i].CreatedAt = now
		members[group.Members[i].StudentID] = now
	}
	st.members[group.ID] = members

	stored := *group
	stored.Members = nil
	st.groups[group.ID] = stored
	return nil
}

func (s *groupStore) GetByID(ctx context.Context, id uint) (*models.Group, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	st := s.r.state()
	group, ok := st.groups[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	for _, studentID := range sortedKeys(st.members[id]) {
		group.Members = append(group.Members, models.GroupMember{
			GroupID:   id,
			StudentID: studentID,
			CreatedAt: st.members[id][studentID],
		})
	}
	return &group, nil
}

func (s *groupStore) ExistingIDs(ctx context.Context, ids []uint) ([]uint, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	var existing []uint
	for _, id := range ids {
		if _, ok := s.r.state().groups[id]; ok {
			existing = append(existing, id)
		}
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i] < existing[j] })
	return existing, nil
}

func (s *groupStore) GetMemberIDs(ctx context.Context, groupID uint) ([]string, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	st := s.r.state()
	if _, ok := st.groups[groupID]; !ok {
		return nil, repositories.ErrNotFound
	}
	return sortedKeys(st.members[groupID]), nil
}

func (s *groupStore) AddMembers(ctx context.Context, groupID uint, studentIDs []string) (int, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	st := s.r.state()
	if _, ok := st.groups[groupID]; !ok {
		return 0, repositories.ErrNotFound
	}
	members := st.members[groupID]
	if members == nil {
		members = map[string]time.Time{}
		st.members[groupID] = members
	}

	added := 0
	now := time.Now()
	for _, id := range studentIDs {
		if _, ok := members[id]; ok {
			continue
		}
		members[id] = now
		added++
	}
	return added, nil
}

func (s *groupStore) RemoveMember(ctx context.Context, groupID uint, studentID string) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	members, ok := s.r.state().members[groupID]
	if !ok {
		return repositories.ErrNotFound
	}
	if _, ok := members[studentID]; !ok {
		return repositories.ErrNotFound
	}
	delete(members, studentID)
	return nil
}

type importStore struct {
	r *Repository
}

func (s *importStore) Create(ctx context.Context, session *models.ImportSession) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	s.r.state().imports[session.ID] = *session
	return nil
}

func (s *importStore) GetByID(ctx context.Context, id string) (*models.ImportSession, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	session, ok := s.r.state().imports[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &session, nil
}

func (s *importStore) Update(ctx context.Context, session *models.ImportSession) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	st := s.r.state()
	if _, ok := st.imports[session.ID]; !ok {
		return repositories.ErrNotFound
	}
	session.UpdatedAt = time.Now()
	st.imports[session.ID] = *session
	return nil
}

func (s *importStore) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	var expired int64
	st := s.r.state()
	for id, session := range st.imports {
		if !session.CreatedAt.Before(cutoff) || !session.Status.CanTransitionTo(models.ImportExpired) {
			continue
		}
		session.Status = models.ImportExpired
		session.UpdatedAt = time.Now()
		st.imports[id] = session
		expired++
	}
	return expired, nil
}
