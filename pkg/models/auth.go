package models

import (
	"time"
)

// Roles a user can hold
const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

// BaseModel is the base model for all entities
type BaseModel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User represents an agent or administrator of the inbox
type User struct {
	BaseModel
	Username     string `gorm:"size:120;uniqueIndex;not null" json:"username" validate:"required"`
	Name         string `gorm:"size:200;not null" json:"name"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`
	Role         string `gorm:"size:16;not null;default:'employee'" json:"role" validate:"required,oneof=admin employee"`
	IsActive     bool   `gorm:"default:true" json:"is_active"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
