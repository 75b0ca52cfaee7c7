package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	Register(ctx context.Context, payload RegisterPayload) (*User, error)
	Login(ctx context.Context, identifier, password string) (string, *AuthenticatedUser, error)
	RefreshSession(ctx context.Context, oldToken string) (string, *AuthenticatedUser, error)
	CurrentUser(ctx context.Context, subject string) (*AuthenticatedUser, error)
	VerifyToken(raw string) (string, error)
}

// UserStore is the slice of the users repository the authenticator needs.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByUsernameOrEmail(ctx context.Context, identifier string) (*User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Register(ctx context.Context, user *User) (*User, error)
}

// RoleSource resolves active role codes for a single principal, used to
// enrich authenticated users without leaking the full resolver surface.
type RoleSource interface {
	RoleCodesForUser(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Clock supplies the current time so token expiry is testable.
type Clock func() time.Time

type noopRoleSource struct{}

func (noopRoleSource) RoleCodesForUser(context.Context, uuid.UUID) ([]string, error) {
	return []string{}, nil
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
