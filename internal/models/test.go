package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// QuestionNode is one node of a test's question tree. Leaves and inner nodes
// both carry an id and can receive answers.
type QuestionNode struct {
	ID       string         `json:"id"`
	Prompt   string         `json:"prompt"`
	Marks    int            `json:"marks"`
	Children []QuestionNode `json:"children,omitempty"`
}

// QuestionTree is the ordered, hierarchical question structure of a test
type QuestionTree []QuestionNode

// Contains reports whether a node with the given id exists anywhere in the tree
func (t QuestionTree) Contains(id string) bool {
	for _, node := range t {
		if node.ID == id || QuestionTree(node.Children).Contains(id) {
			return true
		}
	}
	return false
}

// IDs returns every node id in depth-first order
func (t QuestionTree) IDs() []string {
	var ids []string
	for _, node := range t {
		ids = append(ids, node.ID)
		ids = append(ids, QuestionTree(node.Children).IDs()...)
	}
	return ids
}

// TotalMarks sums the marks of every node in the tree
func (t QuestionTree) TotalMarks() int {
	total := 0
	for _, node := range t {
		total += node.Marks + QuestionTree(node.Children).TotalMarks()
	}
	return total
}

// Validate checks that node ids are non-empty and unique across the tree and
// that marks are never negative
func (t QuestionTree) Validate() error {
	seen := make(map[string]struct{})
	return t.validate(seen)
}

func (t QuestionTree) validate(seen map[string]struct{}) error {
	for _, node := range t {
		id := strings.TrimSpace(node.ID)
		if id == "" {
			return fmt.Errorf("question node with empty id")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate question id %q", id)
		}
		seen[id] = struct{}{}
		if node.Marks < 0 {
			return fmt.Errorf("question %q has negative marks", id)
		}
		if err := QuestionTree(node.Children).validate(seen); err != nil {
			return err
		}
	}
	return nil
}

// Test is a timed test built by a teacher and offered to assigned students
type Test struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	Title           string     `json:"title" gorm:"not null;size:200"`
	StartTime       *time.Time `json:"start_time"`
	DurationMinutes *int       `json:"duration_minutes"`
	IsPublished     bool       `json:"is_published" gorm:"default:false;index"`

	QuestionTree datatypes.JSONType[QuestionTree] `json:"question_tree" gorm:"type:jsonb"`

	CreatedBy string    `json:"created_by" gorm:"not null;size:255;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Test) TableName() string {
	return "tests"
}

// Questions returns the test's question tree
func (t *Test) Questions() QuestionTree {
	return t.QuestionTree.Data()
}

// SetQuestions replaces the test's question tree
func (t *Test) SetQuestions(tree QuestionTree) {
	t.QuestionTree = datatypes.NewJSONType(tree)
}

// EndTime returns the close instant, or nil when the test has no bounded end
func (t *Test) EndTime() *time.Time {
	if t.StartTime == nil || t.DurationMinutes == nil {
		return nil
	}
	end := t.StartTime.Add(time.Duration(*t.DurationMinutes) * time.Minute)
	return &end
}

// WindowState is the temporal classification of a test at an instant
type WindowState string

const (
	WindowUpcoming WindowState = "upcoming"
	WindowLive     WindowState = "live"
	WindowClosed   WindowState = "closed"
)
