package identity

import (
	"database/sql"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

const (
	TextCodeUsernameExists         = "USERNAME_EXISTS"
	TextCodeEmailExists            = "EMAIL_EXISTS"
	TextCodePasswordMismatch       = "PASSWORD_MISMATCH"
	TextCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	TextCodeUserInactive           = "USER_INACTIVE"
	TextCodeUserNotFound           = "USER_NOT_FOUND"
	TextCodeRoleNotFound           = "ROLE_NOT_FOUND"
	TextCodeRoleExists             = "ROLE_EXISTS"
	TextCodePermissionExists       = "PERMISSION_EXISTS"
	TextCodePermissionNotFound     = "PERMISSION_NOT_FOUND"
	TextCodeRoleAlreadyAssigned    = "ROLE_ALREADY_ASSIGNED"
	TextCodeRoleNotAssigned        = "ROLE_NOT_ASSIGNED"
	TextCodeRoleInUse              = "ROLE_IN_USE"
	TextCodePermissionInUse        = "PERMISSION_IN_USE"
	TextCodeTokenMalformed         = "TOKEN_MALFORMED"
	TextCodeTokenExpired           = "TOKEN_EXPIRED"
	TextCodeTokenNotRefreshable    = "TOKEN_NOT_REFRESHABLE"
	TextCodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// ErrUsernameExists is returned when registering a username that is taken.
var ErrUsernameExists = errors.New("username already exists", errors.CategoryConflict).
	WithTextCode(TextCodeUsernameExists).
	WithCode(errors.CodeConflict)

// ErrEmailExists is returned when registering an email that is taken.
var ErrEmailExists = errors.New("email already in use", errors.CategoryConflict).
	WithTextCode(TextCodeEmailExists).
	WithCode(errors.CodeConflict)

// ErrPasswordMismatch is returned when password and confirmation differ.
var ErrPasswordMismatch = errors.New("password and confirmation do not match", errors.CategoryValidation).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(errors.CodeBadRequest)

// ErrInvalidCredentials conflates unknown identifier and wrong password so a
// failed login never reveals which check failed.
var ErrInvalidCredentials = errors.New("invalid username or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrUserInactive is returned when the account exists but is deactivated.
var ErrUserInactive = errors.New("account is deactivated", errors.CategoryAuth).
	WithTextCode(TextCodeUserInactive).
	WithCode(errors.CodeForbidden)

// ErrUserNotFound is returned for lookups of unknown users.
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrRoleNotFound is returned for lookups of unknown roles.
var ErrRoleNotFound = errors.New("role not found", errors.CategoryNotFound).
	WithTextCode(TextCodeRoleNotFound).
	WithCode(errors.CodeNotFound)

// ErrRoleExists is returned when a role name or code is already taken.
var ErrRoleExists = errors.New("role name or code already exists", errors.CategoryConflict).
	WithTextCode(TextCodeRoleExists).
	WithCode(errors.CodeConflict)

// ErrPermissionExists is returned when a permission code is already taken.
var ErrPermissionExists = errors.New("permission code already exists", errors.CategoryConflict).
	WithTextCode(TextCodePermissionExists).
	WithCode(errors.CodeConflict)

// ErrPermissionNotFound is returned for lookups of unknown permissions.
var ErrPermissionNotFound = errors.New("permission not found", errors.CategoryNotFound).
	WithTextCode(TextCodePermissionNotFound).
	WithCode(errors.CodeNotFound)

// ErrAlreadyAssigned is returned when an association link already exists.
var ErrAlreadyAssigned = errors.New("association already exists", errors.CategoryConflict).
	WithTextCode(TextCodeRoleAlreadyAssigned).
	WithCode(errors.CodeConflict)

// ErrNotAssigned is returned when revoking an association link that is absent.
var ErrNotAssigned = errors.New("association does not exist", errors.CategoryNotFound).
	WithTextCode(TextCodeRoleNotAssigned).
	WithCode(errors.CodeBadRequest)

// ErrRoleInUse rejects deleting a role while users still hold it.
var ErrRoleInUse = errors.New("role is still assigned to users", errors.CategoryConflict).
	WithTextCode(TextCodeRoleInUse).
	WithCode(errors.CodeConflict)

// ErrPermissionInUse rejects deleting a permission while roles still carry it.
var ErrPermissionInUse = errors.New("permission is still assigned to roles", errors.CategoryConflict).
	WithTextCode(TextCodePermissionInUse).
	WithCode(errors.CodeConflict)

// ErrTokenMalformed covers bad structure and bad signatures. Such tokens are
// never valid and never refreshable.
var ErrTokenMalformed = errors.New("token is malformed or has an invalid signature", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired covers signature-valid tokens past their expiry.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenNotRefreshable is returned when refresh is requested for a token
// that is malformed or expired beyond the grace window.
var ErrTokenNotRefreshable = errors.New("token can no longer be refreshed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenNotRefreshable).
	WithCode(errors.CodeUnauthorized)

// ErrConcurrentModification is returned when an optimistic-lock version check
// fails at write time.
var ErrConcurrentModification = errors.New("record was modified concurrently", errors.CategoryConflict).
	WithTextCode(TextCodeConcurrentModification).
	WithCode(errors.CodeConflict)

// isUniqueViolation reports whether err is a unique-constraint failure on the
// given column. Matches both mattn and modernc sqlite error strings.
// detailed returns an enriched copy of sentinel that still matches it under
// errors.Is: the clone keeps the sentinel as its source so unwrapping
// reaches the original value.
func detailed(sentinel *errors.Error, metadata map[string]any) *errors.Error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	clone.Source = sentinel
	return clone.WithMetadata(metadata)
}

// isNoRows reports a missing record from either the repository layer or a
// direct bun query.
func isNoRows(err error) bool {
	return repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}
