package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRole distinguishes regular teachers from administrators.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// User is a mini-program user identified by their WeChat openid.
type User struct {
	ID        string    `json:"id" gorm:"type:char(36);primaryKey"`
	OpenID    string    `json:"openid" gorm:"column:openid;size:100;uniqueIndex;not null"`
	Nickname  string    `json:"nickname" gorm:"size:100"`
	AvatarURL *string   `json:"avatar_url" gorm:"size:500"`
	Phone     *string   `json:"phone" gorm:"size:20"`
	Email     *string   `json:"email" gorm:"size:100"`
	Role      UserRole  `json:"role" gorm:"type:enum('user','admin');default:'user'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user may act on entities owned by others.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// BeforeCreate sets UUID before creating the record.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// UserStats summarises what a user has uploaded and had analysed.
type UserStats struct {
	RecordingCount int64 `json:"recording_count"`
	ReportCount    int64 `json:"report_count"`
	TotalDuration  int64 `json:"total_duration"`
}

// ProfileUpdate carries the mutable profile fields. Nil means unchanged.
type ProfileUpdate struct {
	Nickname  *string
	AvatarURL *string
	Phone     *string
	Email     *string
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Nickname == nil && p.AvatarURL == nil && p.Phone == nil && p.Email == nil
}
