package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleMember = "member"
	RoleStaff  = "staff"
)

// User is a farm member or a staff account
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Subject   string         `gorm:"uniqueIndex;not null" json:"subject"` // identity provider subject ('sub' claim)
	Name      string         `gorm:"not null" json:"name"`
	Email     string         `gorm:"uniqueIndex;not null" json:"email"`
	Phone     string         `json:"phone"`
	Address   string         `gorm:"type:text" json:"address"`
	Role      string         `gorm:"not null;default:'member'" json:"role"` // "member" or "staff"
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

func (u User) IsStaff() bool {
	return u.Role == RoleStaff
}
