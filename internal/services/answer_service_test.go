package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestAnswerService_SaveAnswerGuards(t *testing.T) {
	f := newFixture(t)
	test := f.liveTest(t, "s1", "s2")
	answers := f.services.Answers()
	s1 := studentPrincipal("s1")

	req := &SaveAnswerRequest{QuestionID: "q1", Text: "draft"}
	if _, err := answers.SaveAnswer(f.ctx, s1, test.ID, req); !errors.Is(err, ErrAttemptNotActive) {
		t.Fatalf("SaveAnswer() before start error = %v, want ErrAttemptNotActive", err)
	}

	if _, err := f.services.Attempts().Start(f.ctx, s1, test.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := answers.SaveAnswer(f.ctx, s1, test.ID, &SaveAnswerRequest{QuestionID: "q9", Text: "x"}); !errors.Is(err, ErrQuestionNotFound) {
		t.Errorf("SaveAnswer() unknown question error = %v, want ErrQuestionNotFound", err)
	}
	if _, err := answers.SaveAnswer(f.ctx, s1, test.ID, &SaveAnswerRequest{QuestionID: "", Text: "x"}); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("SaveAnswer() empty question error = %v, want ErrValidationFailed", err)
	}
	if _, err := answers.SaveAnswer(f.ctx, studentPrincipal("s3"), test.ID, req); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("SaveAnswer() by unassigned student error = %v, want ErrNotAuthorized", err)
	}

	// Nested questions accept answers too
	resp, err := answers.SaveAnswer(f.ctx, s1, test.ID, &SaveAnswerRequest{QuestionID: "q2b", Text: "entropy increases"})
	if err != nil {
		t.Fatalf("SaveAnswer() error = %v", err)
	}
	if resp.RemainingSeconds != 3600 {
		t.Errorf("RemainingSeconds = %d, want 3600", resp.RemainingSeconds)
	}

	if _, err := f.services.Attempts().Submit(f.ctx, s1, test.ID); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := answers.SaveAnswer(f.ctx, s1, test.ID, req); !errors.Is(err, ErrAttemptNotActive) {
		t.Errorf("SaveAnswer() after submit error = %v, want ErrAttemptNotActive", err)
	}
}

func TestAnswerService_GetAnswersBeforeStart(t *testing.T) {
	f := newFixture(t)
	test := f.liveTest(t, "s1")

	got, err := f.services.Answers().GetAnswers(f.ctx, studentPrincipal("s1"), test.ID)
	if err != nil {
		t.Fatalf("GetAnswers() error = %v", err)
	}
	if got.Answers == nil || len(got.Answers) != 0 {
		t.Errorf("GetAnswers() = %v, want empty map", got.Answers)
	}
}

func TestAnswerService_ConcurrentSavesKeepOneRowPerQuestion(t *testing.T) {
	f := newFixture(t)
	test := f.liveTest(t, "s1")
	s1 := studentPrincipal("s1")
	f.services.Attempts().Start(f.ctx, s1, test.ID)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			qid := "q1"
			if i%2 == 1 {
				qid = "q2a"
			}
			_, err := f.services.Answers().SaveAnswer(f.ctx, s1, test.ID, &SaveAnswerRequest{
				QuestionID: qid,
				Text:       fmt.Sprintf("keystroke %d", i),
			})
			if err != nil {
				t.Errorf("SaveAnswer() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	rows, err := f.repo.Answer().ListByStudentAndTest(f.ctx, "s1", test.ID)
	if err != nil {
		t.Fatalf("ListByStudentAndTest() error = %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("stored %d answer rows, want 2", len(rows))
	}
}

func TestAnswerService_CachedReadsSeeNewWrites(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := newFixtureWithRedis(t, client)
	test := f.liveTest(t, "s1")
	s1 := studentPrincipal("s1")
	answers := f.services.Answers()

	f.services.Attempts().Start(f.ctx, s1, test.ID)
	answers.SaveAnswer(f.ctx, s1, test.ID, &SaveAnswerRequest{QuestionID: "q1", Text: "v1"})

	got, err := answers.GetAnswers(f.ctx, s1, test.ID)
	if err != nil || got.Answers["q1"] != "v1" {
		t.Fatalf("GetAnswers() = %v, %v; want q1=v1", got, err)
	}

	f.clock.Set(baseTime.Add(time.Minute))
	answers.SaveAnswer(f.ctx, s1, test.ID, &SaveAnswerRequest{QuestionID: "q1", Text: "v2"})

	got, err = answers.GetAnswers(f.ctx, s1, test.ID)
	if err != nil || got.Answers["q1"] != "v2" {
		t.Fatalf("GetAnswers() after overwrite = %v, %v; want q1=v2", got, err)
	}
}
