package domain

import (
	"time"

	"gorm.io/gorm"
)

// Inquiry statuses
const (
	InquiryStatusNew     = "new"
	InquiryStatusRead    = "read"
	InquiryStatusReplied = "replied"
)

// ValidInquiryStatus reports whether s is a known inquiry status.
func ValidInquiryStatus(s string) bool {
	switch s {
	case InquiryStatusNew, InquiryStatusRead, InquiryStatusReplied:
		return true
	}
	return false
}

// FacultyInquiry represents a prospective faculty member's inquiry.
// At most one inquiry per email may be in the new status.
type FacultyInquiry struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Name      string     `gorm:"not null" json:"name"`
	Email     string     `gorm:"not null;index;uniqueIndex:idx_open_inquiry_email,where:status = 'new'" json:"email"`
	Phone     string     `gorm:"not null" json:"phone"`
	Query     string     `gorm:"type:text;not null" json:"query"`
	Status    string     `gorm:"default:'new';index" json:"status"` // new, read, replied
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// TableName specifies the table name for FacultyInquiry
func (FacultyInquiry) TableName() string {
	return "faculty_inquiries"
}

// BeforeCreate hook
func (i *FacultyInquiry) BeforeCreate(tx *gorm.DB) error {
	i.CreatedAt = time.Now().UTC()
	if i.Status == "" {
		i.Status = InquiryStatusNew
	}
	return nil
}

// BeforeUpdate hook
func (i *FacultyInquiry) BeforeUpdate(tx *gorm.DB) error {
	now := time.Now().UTC()
	i.UpdatedAt = &now
	return nil
}
