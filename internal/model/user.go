// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーのロールを表す。
type Role string

const (
	// RoleAdmin は管理者ロール。
	RoleAdmin Role = "admin"
	// RoleModerator はモデレーターロール。
	RoleModerator Role = "moderator"
	// RoleUser は一般ユーザーロール。登録時のデフォルト。
	RoleUser Role = "user"
)

// IsValid は定義済みのロールかどうかを返す。
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	default:
		return false
	}
}

// User はサービス利用ユーザーを表す。
// Username と Email は大文字小文字を区別する一意キー。
type User struct {
	ID             string
	Username       string
	Email          string
	Role           Role
	HashedPassword string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasRole はユーザーのロールが指定ロールのいずれかに含まれるかを返す。
func (u *User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
