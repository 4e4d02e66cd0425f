package models

import "time"

// Role gates what a user may change. Viewers are read-only.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleViewer    Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDeveloper, RoleViewer:
		return true
	}
	return false
}

// User represents a user in the system
type User struct {
	ID        int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"column:name"`
	Email     string    `json:"email" gorm:"column:email"`
	Password  string    `json:"-" gorm:"column:password"` // bcrypt hash, never serialized
	Role      Role      `json:"role" gorm:"column:role"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// CanWrite reports whether the user may create or modify services and rules.
func (u *User) CanWrite() bool {
	return u.Role == RoleAdmin || u.Role == RoleDeveloper
}

// IsAdmin reports whether the user sees every service regardless of owner.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// OwnerScope returns the owner filter for store queries: 0 for admins, the
// user's own ID otherwise.
func (u *User) OwnerScope() int64 {
	if u.IsAdmin() {
		return 0
	}
	return u.ID
}
