package models

import (
	"time"

	"bazari/internal/domain"

	"gorm.io/gorm"
)

type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"size:100;not null" json:"name"`
	Email        string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	Role         string         `gorm:"size:20;not null;index;default:'USER'" json:"role"` // USER | ADMIN
	GoogleID     *string        `gorm:"uniqueIndex;size:255" json:"-"`                     // nil for email signups
	AvatarURL    string         `gorm:"size:512" json:"avatar_url,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) IsAdmin() bool { return u.Role == domain.RoleAdmin }

func (User) TableName() string {
	return "users"
}
