package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/test-access-service/internal/events"
	"github.com/SAP-F-2025/test-access-service/internal/models"
)

func TestAttemptService_Start(t *testing.T) {
	f := newFixture(t)
	test := f.liveTest(t, "s1")
	attempts := f.services.Attempts()

	f.clock.Set(baseTime.Add(5 * time.Minute))
	first, err := attempts.Start(f.ctx, studentPrincipal("s1"), test.ID)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if first.State != models.AttemptInProgress {
		t.Errorf("State = %v, want in_progress", first.State)
	}
	if first.TimeRemainingSeconds != 55*60 {
		t.Errorf("TimeRemainingSeconds = %d, want %d", first.TimeRemainingSeconds, 55*60)
	}

	// Starting again is a no-op that keeps the original start time
	f.clock.Set(baseTime.Add(20 * time.Minute))
	second, err := attempts.Start(f.ctx, studentPrincipal("s1"), test.ID)
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if second.ID != first.ID || !second.StartedAt.Equal(baseTime.Add(5*time.Minute)) {
		t.Errorf("second start changed the attempt: %+v", second.Attempt)
	}
	if got := len(f.publisher.EventsOfType(events.AttemptStarted)); got != 1 {
		t.Errorf("published %d attempt.started events, want 1", got)
	}
}

func TestAttemptService_StartGuards(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(t *testing.T, f *fixture) uint
		principal models.Principal
		at        time.Time
		wantErr   error
	}{
		{
			name: "unassigned student",
			setup: func(t *testing.T, f *fixture) uint {
				return f.liveTest(t, "s1").ID
			},
			principal: studentPrincipal("s2"),
			at:        baseTime,
			wantErr:   ErrNotAuthorized,
		},
		{
			name: "excluded student",
			setup: func(t *testing.T, f *fixture) uint {
				test := f.liveTest(t, "s1", "s2")
				f.repo.Assignment().Replace(f.ctx, &models.Assignment{
					TestID:             test.ID,
					DirectStudentIDs:   []string{"s1", "s2"},
					ExcludedStudentIDs: []string{"s2"},
				})
				return test.ID
			},
			principal: studentPrincipal("s2"),
			at:        baseTime,
			wantErr:   ErrNotAuthorized,
		},
		{
			name: "unpublished test",
			setup: func(t *testing.T, f *fixture) uint {
				return f.createTest(t, ptrTime(baseTime), ptrInt(60)).ID
			},
			principal: studentPrincipal("s1"),
			at:        baseTime,
			wantErr:   ErrNotAuthorized,
		},
		{
			name: "teacher cannot take a test",
			setup: func(t *testing.T, f *fixture) uint {
				return f.liveTest(t, "s1").ID
			},
			principal: teacher,
			at:        baseTime,
			wantErr:   ErrNotAuthorized,
		},
		{
			name: "missing test",
			setup: func(t *testing.T, f *fixture) uint {
				return 404
			},
			principal: studentPrincipal("s1"),
			at:        baseTime,
			wantErr:   ErrTestNotFound,
		},
		{
			name: "before the window opens",
			setup: func(t *testing.T, f *fixture) uint {
				return f.liveTest(t, "s1").ID
			},
			principal: studentPrincipal("s1"),
			at:        baseTime.Add(-time.Minute),
			wantErr:   ErrNotYetOpen,
		},
		{
			name: "after the window closes",
			setup: func(t *testing.T, f *fixture) uint {
				return f.liveTest(t, "s1").ID
			},
			principal: studentPrincipal("s1"),
			at:        baseTime.Add(61 * time.Minute),
			wantErr:   ErrWindowClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			testID := tt.setup(t, f)
			f.clock.Set(tt.at)

			_, err := f.services.Attempts().Start(f.ctx, tt.principal, testID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Start() error = %v, want %v", err, tt.wantErr)
			}
			if count, _ := f.repo.Attempt().CountByTest(f.ctx, testID); count != 0 {
				t.Errorf("rejected start created %d attempts", count)
			}
		})
	}
}

func TestAttemptService_SubmitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	test := f.liveTest(t, "s1")
	attempts := f.services.Attempts()
	s1 := studentPrincipal("s1")

	if _, err := attempts.Start(f.ctx, s1, test.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.clock.Set(baseTime.Add(30 * time.Minute))
	first, err := attempts.Submit(f.ctx, s1, test.ID)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if first.State != models.AttemptSubmitted || first.AlreadySubmitted || first.SubmittedLate {
		t.Fatalf("first submit = %+v", first)
	}

	f.clock.Set(baseTime.Add(40 * time.Minute))
	second, err := attempts.Submit(f.ctx, s1, test.ID)
	if err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	if !second.AlreadySubmitted {
		t.Error("second submit not reported as already submitted")
	}
	if !second.SubmittedAt.Equal(baseTime.Add(30 * time.Minute)) {
		t.Errorf("SubmittedAt moved to %v", second.SubmittedAt)
	}
	if got := len(f.publisher.EventsOfType(events.AttemptSubmitted)); got != 1 {
		t.Errorf("published %d attempt.submitted events, want 1", got)
	}

	// A submitted attempt is reported, not reopened
	again, err := attempts.Start(f.ctx, s1, test.ID)
	if err != nil {
		t.Fatalf("Start() after submit error = %v", err)
	}
	if again.State != models.AttemptSubmitted || !again.AlreadySubmitted {
		t.Errorf("Start() after submit = %+v", again)
	}
}

func TestAttemptService_ConcurrentSubmit(t *testing.T) {
	f := newFixture(t)
	test := f.liveTest(t, "s1")
	attempts := f.services.Attempts()
	s1 := studentPrincipal("s1")

	if _, err := attempts.Start(f.ctx, s1, test.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := attempts.Submit(f.ctx, s1, test.ID)
			if err != nil {
				t.Errorf("Submit() error = %v", err)
				return
			}
			if !resp.AlreadySubmitted {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if fresh != 1 {
		t.Errorf("%d submits performed the transition, want 1", fresh)
	}
	if got := len(f.publisher.EventsOfType(events.AttemptSubmitted)); got != 1 {
		t.Errorf("published %d attempt.submitted events, want 1", got)
	}
}

func TestAttemptService_SubmitGuards(t *testing.T) {
	t.Run("not yet open", func(t *testing.T) {
		f := newFixture(t)
		test := f.liveTest(t, "s1")
		f.clock.Set(baseTime.Add(-time.Second))

		_, err := f.services.Attempts().Submit(f.ctx, studentPrincipal("s1"), test.ID)
		if !errors.Is(err, ErrNotYetOpen) {
			t.Fatalf("Submit() error = %v, want ErrNotYetOpen", err)
		}
	})

	t.Run("never started", func(t *testing.T) {
		f := newFixture(t)
		test := f.liveTest(t, "s1")

		_, err := f.services.Attempts().Submit(f.ctx, studentPrincipal("s1"), test.ID)
		if !errors.Is(err, ErrAttemptNotStarted) {
			t.Fatalf("Submit() error = %v, want ErrAttemptNotStarted", err)
		}
	})

	t.Run("after close is accepted late", func(t *testing.T) {
		f := newFixture(t)
		test := f.liveTest(t, "s1")
		s1 := studentPrincipal("s1")
		if _, err := f.services.Attempts().Start(f.ctx, s1, test.ID); err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		f.clock.Set(baseTime.Add(2 * time.Hour))
		resp, err := f.services.Attempts().Submit(f.ctx, s1, test.ID)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if !resp.IsSubmitted || !resp.SubmittedLate || resp.WindowState != models.WindowClosed {
			t.Errorf("late submit = %+v", resp)
		}
	})
}

func TestAttemptService_GroupAssignedWalkthrough(t *testing.T) {
	// startTime = T, duration = 60, student S assigned via a group
	f := newFixture(t)
	test := f.createTest(t, ptrTime(baseTime), ptrInt(60))
	group := &models.Group{Name: "Form 3", CreatedBy: teacher.UserID, Members: []models.GroupMember{{StudentID: "s1"}}}
	if err := f.repo.Group().Create(f.ctx, group); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	f.repo.Assignment().Replace(f.ctx, &models.Assignment{TestID: test.ID, GroupIDs: []uint{group.ID}})
	f.repo.Test().SetPublished(f.ctx, test.ID, true)

	attempts := f.services.Attempts()
	answers := f.services.Answers()
	s1 := studentPrincipal("s1")

	f.clock.Set(baseTime.Add(-5 * time.Minute))
	if _, err := attempts.Start(f.ctx, s1, test.ID); !errors.Is(err, ErrNotYetOpen) {
		t.Fatalf("Start() at T-5m error = %v, want ErrNotYetOpen", err)
	}

	f.clock.Set(baseTime.Add(10 * time.Minute))
	resp, err := attempts.Start(f.ctx, s1, test.ID)
	if err != nil {
		t.Fatalf("Start() at T+10m error = %v", err)
	}
	if resp.TimeRemainingSeconds != 3000 {
		t.Errorf("TimeRemainingSeconds = %d, want 3000", resp.TimeRemainingSeconds)
	}

	if _, err := answers.SaveAnswer(f.ctx, s1, test.ID, &SaveAnswerRequest{QuestionID: "q1", Text: "hello"}); err != nil {
		t.Fatalf("SaveAnswer() error = %v", err)
	}
	f.clock.Set(baseTime.Add(12 * time.Minute))
	if _, err := answers.SaveAnswer(f.ctx, s1, test.ID, &SaveAnswerRequest{QuestionID: "q1", Text: "hello world"}); err != nil {
		t.Fatalf("SaveAnswer() error = %v", err)
	}
	got, err := answers.GetAnswers(f.ctx, s1, test.ID)
	if err != nil {
		t.Fatalf("GetAnswers() error = %v", err)
	}
	if len(got.Answers) != 1 || got.Answers["q1"] != "hello world" {
		t.Errorf("GetAnswers() = %v, want {q1: hello world}", got.Answers)
	}

	f.clock.Set(baseTime.Add(65 * time.Minute))
	_, err = answers.SaveAnswer(f.ctx, s1, test.ID, &SaveAnswerRequest{QuestionID: "q1", Text: "too late"})
	if !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("SaveAnswer() at T+65m error = %v, want ErrWindowClosed", err)
	}
}

func TestAttemptService_ListByTest(t *testing.T) {
	f := newFixture(t)
	test := f.liveTest(t, "s1", "s2")
	attempts := f.services.Attempts()

	attempts.Start(f.ctx, studentPrincipal("s1"), test.ID)
	attempts.Start(f.ctx, studentPrincipal("s2"), test.ID)
	attempts.Submit(f.ctx, studentPrincipal("s2"), test.ID)

	list, err := attempts.ListByTest(f.ctx, teacher, test.ID)
	if err != nil {
		t.Fatalf("ListByTest() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListByTest() returned %d attempts, want 2", len(list))
	}

	if _, err := attempts.ListByTest(f.ctx, otherTeacher, test.ID); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("ListByTest() by another teacher error = %v, want ErrNotAuthorized", err)
	}
	if _, err := attempts.ListByTest(f.ctx, schoolAdmin, test.ID); err != nil {
		t.Errorf("ListByTest() by admin error = %v", err)
	}
}

func TestAttemptService_GetAttempt(t *testing.T) {
	f := newFixture(t)
	test := f.liveTest(t, "s1")
	s1 := studentPrincipal("s1")

	if _, err := f.services.Attempts().GetAttempt(f.ctx, s1, test.ID); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("GetAttempt() before start error = %v, want ErrAttemptNotFound", err)
	}

	f.services.Attempts().Start(f.ctx, s1, test.ID)
	resp, err := f.services.Attempts().GetAttempt(f.ctx, s1, test.ID)
	if err != nil {
		t.Fatalf("GetAttempt() error = %v", err)
	}
	if resp.State != models.AttemptInProgress || resp.WindowState != models.WindowLive {
		t.Errorf("GetAttempt() = %+v", resp)
	}
}
