package models

import "time"

// Group is a named set of students that can be assigned to tests as a unit
type Group struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	Name      string        `json:"name" gorm:"not null;size:200"`
	CreatedBy string        `json:"created_by" gorm:"not null;size:255;index"`
	Members   []GroupMember `json:"members,omitempty" gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (Group) TableName() string {
	return "groups"
}

type GroupMember struct {
	GroupID   uint      `json:"group_id" gorm:"primaryKey"`
	StudentID string    `json:"student_id" gorm:"primaryKey;size:255;index"`
	CreatedAt time.Time `json:"created_at"`
}

func (GroupMember) TableName() string {
	return "group_members"
}
