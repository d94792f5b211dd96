package models

import (
	"time"

	"gorm.io/datatypes"
)

type ImportStatus string

const (
	ImportPending   ImportStatus = "pending"
	ImportReviewed  ImportStatus = "reviewed"
	ImportCommitted ImportStatus = "committed"
	ImportExpired   ImportStatus = "expired"
)

// CanTransitionTo reports whether the session may move from s to next
func (s ImportStatus) CanTransitionTo(next ImportStatus) bool {
	switch s {
	case ImportPending:
		return next == ImportReviewed || next == ImportExpired
	case ImportReviewed:
		return next == ImportCommitted || next == ImportExpired
	default:
		return false
	}
}

// ImportRow is one parsed roster line
type ImportRow struct {
	RowNumber int    `json:"row_number"`
	StudentID string `json:"student_id"`
	Name      string `json:"name,omitempty"`
	Rejected  bool   `json:"rejected"`
	Reason    string `json:"reason,omitempty"`
}

// ImportSession stages a roster upload until a teacher reviews and commits it
// into a group's membership
type ImportSession struct {
	ID       string       `json:"id" gorm:"primaryKey;size:36"`
	GroupID  uint         `json:"group_id" gorm:"not null;index"`
	FileName string       `json:"file_name" gorm:"size:255"`
	Status   ImportStatus `json:"status" gorm:"not null;size:20;index"`

	Rows datatypes.JSONType[[]ImportRow] `json:"rows" gorm:"type:jsonb"`

	CreatedBy   string     `json:"created_by" gorm:"not null;size:255;index"`
	CreatedAt   time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	CommittedAt *time.Time `json:"committed_at"`
}

func (ImportSession) TableName() string {
	return "import_sessions"
}

func (s *ImportSession) RowList() []ImportRow {
	return s.Rows.Data()
}

func (s *ImportSession) SetRows(rows []ImportRow) {
	s.Rows = datatypes.NewJSONType(rows)
}

// AcceptedStudentIDs returns the student ids of rows not rejected
func (s *ImportSession) AcceptedStudentIDs() []string {
	var ids []string
	for _, row := range s.RowList() {
		if !row.Rejected {
			ids = append(ids, row.StudentID)
		}
	}
	return ids
}
