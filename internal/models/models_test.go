package models

import (
	"errors"
	"testing"
	"time"
)

func sampleTree() QuestionTree {
	return QuestionTree{
		{ID: "q1", Prompt: "Define a set", Marks: 2},
		{ID: "q2", Prompt: "Sets", Children: []QuestionNode{
			{ID: "q2a", Prompt: "Union", Marks: 3},
			{ID: "q2b", Prompt: "Difference", Marks: 3, Children: []QuestionNode{
				{ID: "q2b-i", Prompt: "Example", Marks: 1},
			}},
		}},
	}
}

func TestQuestionTree_Contains(t *testing.T) {
	tree := sampleTree()
	for _, id := range []string{"q1", "q2", "q2a", "q2b-i"} {
		if !tree.Contains(id) {
			t.Errorf("Contains(%q) = false", id)
		}
	}
	if tree.Contains("q3") {
		t.Error("Contains(q3) = true")
	}
	if (QuestionTree{}).Contains("q1") {
		t.Error("empty tree contains q1")
	}
}

func TestQuestionTree_IDsAndMarks(t *testing.T) {
	tree := sampleTree()
	want := []string{"q1", "q2", "q2a", "q2b", "q2b-i"}
	got := tree.IDs()
	if len(got) != len(want) {
		t.Fatalf("IDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("IDs() = %v, want %v", got, want)
		}
	}
	if tree.TotalMarks() != 9 {
		t.Errorf("TotalMarks() = %d, want 9", tree.TotalMarks())
	}
}

func TestQuestionTree_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tree    QuestionTree
		wantErr bool
	}{
		{name: "valid", tree: sampleTree()},
		{name: "empty", tree: QuestionTree{}},
		{name: "blank id", tree: QuestionTree{{ID: " "}}, wantErr: true},
		{name: "duplicate across levels", tree: QuestionTree{{ID: "a", Children: []QuestionNode{{ID: "a"}}}}, wantErr: true},
		{name: "negative marks", tree: QuestionTree{{ID: "a", Marks: -1}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.tree.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTest_EndTime(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	duration := 45

	test := &Test{}
	if test.EndTime() != nil {
		t.Error("EndTime() without start should be nil")
	}
	test.StartTime = &start
	if test.EndTime() != nil {
		t.Error("EndTime() without duration should be nil")
	}
	test.DurationMinutes = &duration
	if got := test.EndTime(); got == nil || !got.Equal(start.Add(45*time.Minute)) {
		t.Errorf("EndTime() = %v", got)
	}
}

func TestParseUserRole(t *testing.T) {
	tests := []struct {
		in      string
		want    UserRole
		wantErr bool
	}{
		{in: "student", want: RoleStudent},
		{in: " Teacher ", want: RoleTeacher},
		{in: "admin", want: RoleSchoolAdmin},
		{in: "school_admin", want: RoleSchoolAdmin},
		{in: "proctor", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUserRole(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownRole) {
					t.Fatalf("ParseUserRole(%q) error = %v, want ErrUnknownRole", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParseUserRole(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestPrincipal_Owns(t *testing.T) {
	teacher := Principal{UserID: "t1", Role: RoleTeacher}
	admin := Principal{UserID: "a1", Role: RoleSchoolAdmin}
	student := Principal{UserID: "t1", Role: RoleStudent}

	if !teacher.Owns("t1") || teacher.Owns("t2") {
		t.Error("teacher ownership should be limited to own resources")
	}
	if !admin.Owns("t2") {
		t.Error("school admin should own every resource")
	}
	if student.Owns("t1") {
		t.Error("students never own tests")
	}
}

func TestUser_Principal(t *testing.T) {
	if _, err := (&User{ID: "u1"}).Principal(); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole for empty role, got %v", err)
	}
	p, err := (&User{ID: "u1", Role: RoleTeacher, Email: "t@example.com"}).Principal()
	if err != nil || p.UserID != "u1" || p.Role != RoleTeacher {
		t.Errorf("Principal() = %+v, %v", p, err)
	}
}

func TestImportStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to ImportStatus
		want     bool
	}{
		{ImportPending, ImportReviewed, true},
		{ImportPending, ImportCommitted, false},
		{ImportReviewed, ImportCommitted, true},
		{ImportReviewed, ImportExpired, true},
		{ImportCommitted, ImportExpired, false},
		{ImportExpired, ImportReviewed, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestAttempt_State(t *testing.T) {
	var none *Attempt
	if none.State() != AttemptNotStarted {
		t.Error("nil attempt should be not_started")
	}
	if (&Attempt{}).State() != AttemptInProgress {
		t.Error("unsubmitted attempt should be in_progress")
	}
	if (&Attempt{IsSubmitted: true}).State() != AttemptSubmitted {
		t.Error("submitted attempt should be submitted")
	}
}
