package identity

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-errors"
)

const passwordSpecials = "@$!%*?&"

// RegisterPayload carries a registration request.
type RegisterPayload struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
}

// Validate enforces field formats and the password policy. Confirmation
// mismatch is reported by the authenticator before uniqueness checks, not
// here, so a malformed confirmation never reveals whether a name is taken.
func (p RegisterPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Username,
			validation.Required,
			validation.Length(3, 50),
			validation.Match(UsernameRegex),
		),
		validation.Field(&p.Email,
			validation.Required,
			validation.Length(3, 100),
			is.Email,
		),
		validation.Field(&p.Password,
			validation.Required,
			validation.Length(8, 100),
			validation.By(passwordPolicy),
		),
		validation.Field(&p.ConfirmPassword, validation.Required),
		validation.Field(&p.FirstName, validation.Length(0, 100)),
		validation.Field(&p.LastName, validation.Length(0, 100)),
	)
}

// RoleCreatePayload carries a role-creation request.
type RoleCreatePayload struct {
	RoleName    string `json:"role_name"`
	RoleCode    string `json:"role_code"`
	Description string `json:"description"`
}

func (p RoleCreatePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.RoleName, validation.Required, validation.Length(2, 50)),
		validation.Field(&p.RoleCode,
			validation.Required,
			validation.Length(2, 30),
			validation.Match(CodeRegex),
		),
		validation.Field(&p.Description, validation.Length(0, 200)),
	)
}

// PermissionCreatePayload carries a permission-creation request.
type PermissionCreatePayload struct {
	PermissionName string `json:"permission_name"`
	PermissionCode string `json:"permission_code"`
	ResourceName   string `json:"resource_name"`
	ActionType     string `json:"action_type"`
}

func (p PermissionCreatePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.PermissionName, validation.Required, validation.Length(2, 100)),
		validation.Field(&p.PermissionCode,
			validation.Required,
			validation.Match(CodeRegex),
		),
		validation.Field(&p.ResourceName, validation.Required, validation.Length(2, 100)),
		validation.Field(&p.ActionType, validation.Required, validation.Length(2, 50)),
	)
}

// UpdateUserPayload mutates profile fields under optimistic concurrency: the
// stored version must equal Version at write time.
type UpdateUserPayload struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Version   int64  `json:"version"`
}

func (p UpdateUserPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Length(3, 100), is.Email),
		validation.Field(&p.FirstName, validation.Length(0, 100)),
		validation.Field(&p.LastName, validation.Length(0, 100)),
		validation.Field(&p.Version, validation.Min(0)),
	)
}

// passwordPolicy requires upper, lower, digit, and one special character.
func passwordPolicy(value any) error {
	password, _ := value.(string)

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSpecials, r):
			hasSpecial = true
		}
	}

	if hasUpper && hasLower && hasDigit && hasSpecial {
		return nil
	}

	return errors.New(
		"password must contain upper, lower, digit, and one of "+passwordSpecials,
		errors.CategoryValidation,
	)
}
