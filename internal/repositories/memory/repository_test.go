package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
)

func seedTest(t *testing.T, repo *Repository) uint {
	t.Helper()
	test := &models.Test{Title: "Physics", CreatedBy: "t1"}
	if err := repo.Test().Create(context.Background(), test); err != nil {
		t.Fatal(err)
	}
	return test.ID
}

func TestAttemptStore_CreateIfAbsentConcurrent(t *testing.T) {
	repo := NewRepository(nil)
	ctx := context.Background()
	testID := seedTest(t, repo)
	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	var created int32
	var wg sync.WaitGroup
	results := make([]*models.Attempt, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			attempt, isNew, err := repo.Attempt().CreateIfAbsent(ctx, &models.Attempt{
				TestID:    testID,
				StudentID: "s1",
				StartedAt: start.Add(time.Duration(i) * time.Second),
			})
			if err != nil {
				t.Errorf("CreateIfAbsent() error = %v", err)
				return
			}
			if isNew {
				atomic.AddInt32(&created, 1)
			}
			results[i] = attempt
		}(i)
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("created %d attempts, want 1", created)
	}
	for _, a := range results {
		if a == nil || a.ID != results[0].ID || !a.StartedAt.Equal(results[0].StartedAt) {
			t.Fatalf("attempts disagree: %+v vs %+v", a, results[0])
		}
	}
}

func TestAttemptStore_MarkSubmittedOnce(t *testing.T) {
	repo := NewRepository(nil)
	ctx := context.Background()
	attempt, _, _ := repo.Attempt().CreateIfAbsent(ctx, &models.Attempt{TestID: seedTest(t, repo), StudentID: "s1", StartedAt: time.Now()})

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Attempt().MarkSubmitted(ctx, attempt.ID, time.Now(), false)
			if err != nil {
				t.Errorf("MarkSubmitted() error = %v", err)
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("MarkSubmitted succeeded %d times, want 1", wins)
	}
	if _, err := repo.Attempt().MarkSubmitted(ctx, 999, time.Now(), false); !repositories.IsNotFoundError(err) {
		t.Errorf("MarkSubmitted(unknown) error = %v, want not found", err)
	}
}

func TestAnswerStore_UpsertOverwrites(t *testing.T) {
	repo := NewRepository(nil)
	ctx := context.Background()
	testID := seedTest(t, repo)
	for _, student := range []string{"s1", "s2"} {
		repo.Attempt().CreateIfAbsent(ctx, &models.Attempt{TestID: testID, StudentID: student, StartedAt: time.Now()})
	}

	first := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	if err := repo.Answer().Upsert(ctx, &models.Answer{StudentID: "s1", TestID: testID, QuestionID: "q1", Content: "a", UpdatedAt: first}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Answer().Upsert(ctx, &models.Answer{StudentID: "s1", TestID: testID, QuestionID: "q1", Content: "b", UpdatedAt: first.Add(time.Minute)}); err != nil {
		t.Fatal(err)
	}
	_ = repo.Answer().Upsert(ctx, &models.Answer{StudentID: "s2", TestID: testID, QuestionID: "q1", Content: "other"})

	answers, err := repo.Answer().ListByStudentAndTest(ctx, "s1", testID)
	if err != nil {
		t.Fatal(err)
	}
	if len(answers) != 1 || answers[0].Content != "b" || !answers[0].UpdatedAt.Equal(first.Add(time.Minute)) {
		t.Fatalf("answers = %+v", answers)
	}
}

func TestAnswerStore_UpsertNeedsOpenAttempt(t *testing.T) {
	repo := NewRepository(nil)
	ctx := context.Background()
	testID := seedTest(t, repo)

	answer := &models.Answer{StudentID: "s1", TestID: testID, QuestionID: "q1", Content: "a"}
	if err := repo.Answer().Upsert(ctx, answer); !errors.Is(err, repositories.ErrAttemptClosed) {
		t.Fatalf("Upsert() without attempt error = %v, want ErrAttemptClosed", err)
	}

	attempt, _, err := repo.Attempt().CreateIfAbsent(ctx, &models.Attempt{TestID: testID, StudentID: "s1", StartedAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Answer().Upsert(ctx, answer); err != nil {
		t.Fatalf("Upsert() on open attempt error = %v", err)
	}

	repo.Attempt().MarkSubmitted(ctx, attempt.ID, time.Now(), false)
	late := &models.Answer{StudentID: "s1", TestID: testID, QuestionID: "q1", Content: "after submit"}
	if err := repo.Answer().Upsert(ctx, late); !errors.Is(err, repositories.ErrAttemptClosed) {
		t.Fatalf("Upsert() after submit error = %v, want ErrAttemptClosed", err)
	}

	answers, _ := repo.Answer().ListByStudentAndTest(ctx, "s1", testID)
	if len(answers) != 1 || answers[0].Content != "a" {
		t.Errorf("answers = %+v, want the pre-submit content only", answers)
	}
}

func TestTestStore_AttemptsReferenceTest(t *testing.T) {
	repo := NewRepository(nil)
	ctx := context.Background()
	testID := seedTest(t, repo)

	if _, _, err := repo.Attempt().CreateIfAbsent(ctx, &models.Attempt{TestID: testID + 1, StudentID: "s1", StartedAt: time.Now()}); !repositories.IsNotFoundError(err) {
		t.Fatalf("CreateIfAbsent() on missing test error = %v, want not found", err)
	}
	if _, _, err := repo.Attempt().CreateIfAbsent(ctx, &models.Attempt{TestID: testID, StudentID: "s1", StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Test().Delete(ctx, testID); !errors.Is(err, repositories.ErrReferenced) {
		t.Fatalf("Delete() with attempts error = %v, want ErrReferenced", err)
	}
	if _, err := repo.Test().GetByID(ctx, testID); err != nil {
		t.Errorf("test gone after refused delete: %v", err)
	}
}

func TestRepository_WithTransactionRollsBack(t *testing.T) {
	repo := NewRepository(nil)
	ctx := context.Background()

	group := &models.Group{Name: "7B", CreatedBy: "t1"}
	if err := repo.Group().Create(ctx, group); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if _, err := tx.Group().AddMembers(ctx, group.ID, []string{"s1", "s2"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTransaction() error = %v, want boom", err)
	}

	members, _ := repo.Group().GetMemberIDs(ctx, group.ID)
	if len(members) != 0 {
		t.Fatalf("members after rollback = %v, want none", members)
	}

	err = repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		_, err := tx.Group().AddMembers(ctx, group.ID, []string{"s1"})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	members, _ = repo.Group().GetMemberIDs(ctx, group.ID)
	if len(members) != 1 || members[0] != "s1" {
		t.Fatalf("members after commit = %v", members)
	}
}

func TestRepository_WithTransactionExcludesOuterWriters(t *testing.T) {
	repo := NewRepository(nil)
	ctx := context.Background()

	inTx := make(chan struct{})
	written := make(chan error, 1)
	outside := &models.Group{Name: "outside", CreatedBy: "t1"}
	boom := errors.New("boom")

	err := repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Group().Create(ctx, &models.Group{Name: "rolled back", CreatedBy: "t1"}); err != nil {
			return err
		}
		go func() {
			close(inTx)
			written <- repo.Group().Create(ctx, outside)
		}()
		<-inTx

		select {
		case err := <-written:
			t.Errorf("outer write finished inside the transaction: %v", err)
		case <-time.After(20 * time.Millisecond):
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTransaction() error = %v, want boom", err)
	}

	if err := <-written; err != nil {
		t.Fatalf("outer Create() error = %v", err)
	}
	got, err := repo.Group().GetByID(ctx, outside.ID)
	if err != nil || got.Name != "outside" {
		t.Fatalf("outer group after rollback = %+v, %v", got, err)
	}
	ids, _ := repo.Group().ExistingIDs(ctx, []uint{1, 2})
	if len(ids) != 1 {
		t.Errorf("groups after rollback = %v, want only the outer write", ids)
	}
}

func TestAssignmentStore_CandidateTestIDs(t *testing.T) {
	repo := NewRepository(nil)
	ctx := context.Background()

	group := &models.Group{Name: "7B", Members: []models.GroupMember{{StudentID: "s2"}}}
	_ = repo.Group().Create(ctx, group)

	_ = repo.Assignment().Replace(ctx, &models.Assignment{TestID: 1, DirectStudentIDs: []string{"s1"}})
	_ = repo.Assignment().Replace(ctx, &models.Assignment{TestID: 2, GroupIDs: []uint{group.ID}})
	_ = repo.Assignment().Replace(ctx, &models.Assignment{TestID: 3, DirectStudentIDs: []string{"s1"}, GroupIDs: []uint{group.ID}})

	ids, _ := repo.Assignment().CandidateTestIDs(ctx, "s1")
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("CandidateTestIDs(s1) = %v", ids)
	}
	ids, _ = repo.Assignment().CandidateTestIDs(ctx, "s2")
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 3 {
		t.Errorf("CandidateTestIDs(s2) = %v", ids)
	}

	got, _ := repo.Assignment().Get(ctx, 99)
	if !got.IsEmpty() {
		t.Errorf("unknown test assignment = %+v, want empty", got)
	}
}

func TestImportStore_ExpireBefore(t *testing.T) {
	repo := NewRepository(nil)
	ctx := context.Background()
	now := time.Now()

	_ = repo.ImportSession().Create(ctx, &models.ImportSession{ID: "old-pending", Status: models.ImportPending, CreatedAt: now.Add(-48 * time.Hour)})
	_ = repo.ImportSession().Create(ctx, &models.ImportSession{ID: "old-committed", Status: models.ImportCommitted, CreatedAt: now.Add(-48 * time.Hour)})
	_ = repo.ImportSession().Create(ctx, &models.ImportSession{ID: "fresh", Status: models.ImportReviewed, CreatedAt: now})

	n, err := repo.ImportSession().ExpireBefore(ctx, now.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("ExpireBefore() = %d, %v; want 1", n, err)
	}
	s, _ := repo.ImportSession().GetByID(ctx, "old-pending")
	if s.Status != models.ImportExpired {
		t.Errorf("old-pending status = %s", s.Status)
	}
	s, _ = repo.ImportSession().GetByID(ctx, "old-committed")
	if s.Status != models.ImportCommitted {
		t.Errorf("old-committed status = %s", s.Status)
	}
}
