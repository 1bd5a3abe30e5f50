package models

import "time"

// UserRole represents a user's position within the extension office hierarchy.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleDepartment UserRole = "DEPARTMENT"
	RoleCECHead    UserRole = "CEC_HEAD"
	RoleVPDirector UserRole = "VP_DIRECTOR"
	RoleCOO        UserRole = "COO"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	DepartmentID *int64     `db:"department_id" json:"department_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Actor identifies the authenticated user performing an operation. Services
// receive it explicitly; nothing below the handler layer reads ambient
// session state.
type Actor struct {
	UserID string
	Role   UserRole
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
