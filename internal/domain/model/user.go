package model

import (
	"strings"
	"time"
)

type Timestamp struct {
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null"`
}

type User struct {
	ID                string     `json:"id" gorm:"type:uuid;primaryKey"`
	Email             string     `json:"email" gorm:"type:varchar(256);not null"`
	NormalizedEmail   string     `json:"-" gorm:"type:varchar(256);not null;uniqueIndex"`
	PasswordHash      string     `json:"-" gorm:"column:password_hash;not null"`
	DisplayName       *string    `json:"displayName" gorm:"type:varchar(100)"`
	Phone             *string    `json:"phone" gorm:"type:varchar(20)"`
	EmailConfirmed    bool       `json:"emailConfirmed" gorm:"not null;default:false"`
	AccessFailedCount int        `json:"-" gorm:"not null;default:0"`
	LockoutEnd        *time.Time `json:"-"`
	Roles             []Role     `json:"-" gorm:"many2many:user_roles;constraint:OnDelete:CASCADE"`
	Timestamps        Timestamp  `json:"timestamps" gorm:"embedded"`
}

// ロックアウト中かどうか
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnd != nil && u.LockoutEnd.After(now)
}

// RoleNamesはプリロード済みのロール名
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// 大文字小文字を区別しない一意性のための正規化
func NormalizeEmail(email string) string {
	return strings.ToUpper(strings.TrimSpace(email))
}
