package identity

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var (
	// CodeRegex constrains role and permission codes: upper snake, leading letter.
	CodeRegex = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)
	// UsernameRegex constrains usernames to alphanumerics plus underscore.
	UsernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// Audit carries the shared bookkeeping columns embedded by every entity.
type Audit struct {
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at,omitempty"`
	CreatedBy *uuid.UUID `bun:"created_by,nullzero,type:uuid" json:"created_by,omitempty"`
	UpdatedBy *uuid.UUID `bun:"updated_by,nullzero,type:uuid" json:"updated_by,omitempty"`
}

// Touch refreshes the update timestamp.
func (a *Audit) Touch(now time.Time) {
	a.UpdatedAt = now
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
}

// User is the credential record for a principal.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Username      string    `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string    `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string    `bun:"password_hash,notnull" json:"-"`
	FirstName     string    `bun:"first_name" json:"first_name,omitempty"`
	LastName      string    `bun:"last_name" json:"last_name,omitempty"`
	IsActive      bool      `bun:"is_active,notnull" json:"is_active"`
	Version       int64     `bun:"version,notnull" json:"version"`
	Audit
}

// FullName joins first and last name, either may be empty.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Role groups permissions under a unique code used for authorization checks.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id,omitempty"`
	RoleName      string    `bun:"role_name,notnull,unique" json:"role_name,omitempty"`
	RoleCode      string    `bun:"role_code,notnull,unique" json:"role_code,omitempty"`
	Description   string    `bun:"description" json:"description,omitempty"`
	IsActive      bool      `bun:"is_active,notnull" json:"is_active"`
	Version       int64     `bun:"version,notnull" json:"version"`
	Audit
}

// Permission is a single grantable capability on a resource.
type Permission struct {
	bun.BaseModel  `bun:"table:permissions,alias:per"`
	ID             uuid.UUID `bun:"id,pk,type:uuid" json:"id,omitempty"`
	PermissionName string    `bun:"permission_name,notnull" json:"permission_name,omitempty"`
	PermissionCode string    `bun:"permission_code,notnull,unique" json:"permission_code,omitempty"`
	ResourceName   string    `bun:"resource_name,notnull" json:"resource_name,omitempty"`
	ActionType     string    `bun:"action_type,notnull" json:"action_type,omitempty"`
	IsActive       bool      `bun:"is_active,notnull" json:"is_active"`
	Version        int64     `bun:"version,notnull" json:"version"`
	Audit
}

// UserRole links a user to a role. The composite primary key makes
// assignment idempotence a store-level constraint: a race between two
// concurrent assigns yields exactly one row.
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:url"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid" json:"user_id"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid" json:"role_id"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`

	User *User `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Role *Role `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`
}

// RolePermission links a role to a permission, one level up the hierarchy.
type RolePermission struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rpr"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid" json:"role_id"`
	PermissionID  uuid.UUID `bun:"permission_id,pk,type:uuid" json:"permission_id"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`

	Role       *Role       `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`
	Permission *Permission `bun:"rel:belongs-to,join:permission_id=id" json:"permission,omitempty"`
}

// AuthenticatedUser is what login, refresh, and current-user lookups return:
// the credential record plus the active role codes resolved for it.
type AuthenticatedUser struct {
	User  *User    `json:"user"`
	Roles []string `json:"roles"`
}

// Pagination bounds list queries feeding the batch resolver.
type Pagination struct {
	Offset int
	Limit  int
}

// Normalize clamps the pagination window to sane defaults.
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 200 {
		p.Limit = 200
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
