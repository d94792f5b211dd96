package memory

import (
	"context"
	"sort"
	"time"

	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
)

type attemptStore struct {
	r *Repository
}

func (s *attemptStore) CreateIfAbsent(ctx context.Context, attempt *models.Attempt) (*models.Attempt, bool, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	st := s.r.state()
	key := attemptKey{studentID: attempt.StudentID, testID: attempt.TestID}
	if _, ok := st.tests[attempt.TestID]; !ok {
		return nil, false, repositories.ErrNotFound
	}
	if existing, ok := st.attempts[key]; ok {
		return &existing, false, nil
	}

	st.nextAttemptID++
	stored := *attempt
	stored.ID = st.nextAttemptID
	now := time.Now()
	stored.CreatedAt, stored.UpdatedAt = now, now
	st.attempts[key] = stored
	st.attemptKeys[stored.ID] = key
	return &stored, true, nil
}

func (s *attemptStore) GetByStudentAndTest(ctx context.Context, studentID string, testID uint) (*models.Attempt, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	attempt, ok := s.r.state().attempts[attemptKey{studentID: studentID, testID: testID}]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &attempt, nil
}

func (s *attemptStore) MarkSubmitted(ctx context.Context, id uint, submittedAt time.Time, late bool) (bool, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	st := s.r.state()
	key, ok := st.attemptKeys[id]
	if !ok {
		return false, repositories.ErrNotFound
	}
	attempt := st.attempts[key]
	if attempt.IsSubmitted {
		return false, nil
	}
	attempt.IsSubmitted = true
	attempt.SubmittedAt = &submittedAt
	attempt.SubmittedLate = late
	attempt.UpdatedAt = time.Now()
	st.attempts[key] = attempt
	return true, nil
}

func (s *attemptStore) CountByTest(ctx context.Context, testID uint) (int64, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	var count int64
	for key := range s.r.state().attempts {
		if key.testID == testID {
			count++
		}
	}
	return count, nil
}

func (s *attemptStore) ListByTest(ctx context.Context, testID uint) ([]*models.Attempt, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	var attempts []*models.Attempt
	for key, attempt := range s.r.state().attempts {
		if key.testID == testID {
			attempt := attempt
			attempts = append(attempts, &attempt)
		}
	}
	sort.Slice(attempts, func(i, j int) bool { return attempts[i].ID < attempts[j].ID })
	return attempts, nil
}

type answerStore struct {
	r *Repository
}

func (s *answerStore) Upsert(ctx context.Context, answer *models.Answer) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	st := s.r.state()
	attempt, ok := st.attempts[attemptKey{studentID: answer.StudentID, testID: answer.TestID}]
	if !ok || attempt.IsSubmitted {
		return repositories.ErrAttemptClosed
	}

	key := answerKey{studentID: answer.StudentID, testID: answer.TestID, questionID: answer.QuestionID}
	if answer.UpdatedAt.IsZero() {
		answer.UpdatedAt = time.Now()
	}
	if existing, ok := st.answers[key]; ok {
		answer.ID = existing.ID
	} else {
		st.nextAnswerID++
		answer.ID = st.nextAnswerID
	}
	st.answers[key] = *answer
	return nil
}

func (s *answerStore) ListByStudentAndTest(ctx context.Context, studentID string, testID uint) ([]*models.Answer, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	var answers []*models.Answer
	for key, answer := range s.r.state().answers {
		if key.studentID == studentID && key.testID == testID {
			answer := answer
			answers = append(answers, &answer)
		}
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].QuestionID < answers[j].QuestionID })
	return answers, nil
}
