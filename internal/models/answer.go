package models

import "time"

// Answer is the latest saved text for one question of one student's attempt
type Answer struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	StudentID  string    `json:"student_id" gorm:"not null;size:255;uniqueIndex:idx_answer_key,priority:1"`
	TestID     uint      `json:"test_id" gorm:"not null;uniqueIndex:idx_answer_key,priority:2"`
	QuestionID string    `json:"question_id" gorm:"not null;size:100;uniqueIndex:idx_answer_key,priority:3"`
	Content    string    `json:"content" gorm:"type:text"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Answer) TableName() string {
	return "answers"
}
