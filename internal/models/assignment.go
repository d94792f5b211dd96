package models

// Assignment holds the three independent id-sets that decide who may take a
// test. The effective student set is derived from them on demand and is
// never stored.
type Assignment struct {
	TestID             uint     `json:"test_id"`
	DirectStudentIDs   []string `json:"direct_student_ids"`
	GroupIDs           []uint   `json:"group_ids"`
	ExcludedStudentIDs []string `json:"excluded_student_ids"`
}

// IsEmpty reports whether nobody is assigned, ignoring exclusions
func (a *Assignment) IsEmpty() bool {
	return a == nil || (len(a.DirectStudentIDs) == 0 && len(a.GroupIDs) == 0)
}

type TestDirectStudent struct {
	TestID    uint   `gorm:"primaryKey"`
	StudentID string `gorm:"primaryKey;size:255;index"`
}

func (TestDirectStudent) TableName() string {
	return "test_direct_students"
}

type TestGroup struct {
	TestID  uint `gorm:"primaryKey"`
	GroupID uint `gorm:"primaryKey;index"`
}

func (TestGroup) TableName() string {
	return "test_groups"
}

type TestExcludedStudent struct {
	TestID    uint   `gorm:"primaryKey"`
	StudentID string `gorm:"primaryKey;size:255"`
}

func (TestExcludedStudent) TableName() string {
	return "test_excluded_students"
}
