package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// Auther orchestrates registration, login, and session refresh on top of the
// credential store, password hasher, token service, and role resolver.
type Auther struct {
	users            UserStore
	roles            RoleSource
	hasher           PasswordAuthenticator
	tokenService     TokenService
	activitySink     ActivitySink
	logger           Logger
	now              Clock
	deterministicIDs bool
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(users UserStore, opts Config) *Auther {
	return &Auther{
		users:        users,
		roles:        noopRoleSource{},
		hasher:       bcryptHasher{},
		tokenService: NewTokenService(opts),
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithTokenService sets a custom token service, replacing the one built from
// the Config.
func (s *Auther) WithTokenService(ts TokenService) *Auther {
	if ts != nil {
		s.tokenService = ts
	}
	return s
}

// WithRoleSource wires the permission resolver so authenticated users carry
// their active role codes.
func (s *Auther) WithRoleSource(roles RoleSource) *Auther {
	if roles != nil {
		s.roles = roles
	}
	return s
}

// WithPasswordAuthenticator sets a custom password hasher.
func (s *Auther) WithPasswordAuthenticator(hasher PasswordAuthenticator) *Auther {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithDeterministicIDs derives user ids from the registration email instead
// of generating random UUIDs.
func (s *Auther) WithDeterministicIDs(enabled bool) *Auther {
	s.deterministicIDs = enabled
	return s
}

// WithClock overrides the wall clock, mostly for tests.
func (s *Auther) WithClock(clock Clock) *Auther {
	if clock != nil {
		s.now = clock
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Register creates a new active user. Confirmation mismatch is checked before
// either uniqueness lookup so the error never reveals whether a name is taken.
func (s *Auther) Register(ctx context.Context, payload RegisterPayload) (*User, error) {
	if err := payload.Validate(); err != nil {
		s.emitAuthEvent(ctx, ActivityEventRegisterFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"username": payload.Username,
			"error":    err.Error(),
		})
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	if payload.Password != payload.ConfirmPassword {
		return nil, s.registerFailure(ctx, payload.Username, ErrPasswordMismatch)
	}

	if taken, err := s.users.ExistsByUsername(ctx, payload.Username); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check username uniqueness")
	} else if taken {
		return nil, s.registerFailure(ctx, payload.Username, ErrUsernameExists)
	}

	if taken, err := s.users.ExistsByEmail(ctx, payload.Email); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
	} else if taken {
		return nil, s.registerFailure(ctx, payload.Username, ErrEmailExists)
	}

	hash, err := s.hasher.HashPassword(payload.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user := &User{
		ID:           s.newUserID(payload.Email),
		Username:     payload.Username,
		Email:        payload.Email,
		PasswordHash: hash,
		FirstName:    payload.FirstName,
		LastName:     payload.LastName,
		IsActive:     true,
		Version:      0,
	}
	user.Touch(s.now())

	created, err := s.users.Register(ctx, user)
	if err != nil {
		// A concurrent registration can slip past the pre-checks; the unique
		// constraints are the authority.
		switch {
		case isUniqueViolation(err, "users.username"):
			return nil, s.registerFailure(ctx, payload.Username, ErrUsernameExists)
		case isUniqueViolation(err, "users.email"):
			return nil, s.registerFailure(ctx, payload.Username, ErrEmailExists)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist user")
	}

	s.emitAuthEvent(ctx, ActivityEventRegisterSuccess, actorForUser(created), created.ID.String(), map[string]any{
		"username": created.Username,
	})

	return created, nil
}

// Login verifies credentials for a username or email and issues a session
// token. Unknown identifier and wrong password both come back as
// ErrInvalidCredentials; a deactivated account fails ErrUserInactive instead.
func (s *Auther) Login(ctx context.Context, identifier, password string) (string, *AuthenticatedUser, error) {
	user, err := s.users.GetByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return "", nil, s.loginFailure(ctx, identifier, ErrInvalidCredentials)
		}
		return "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user during login")
	}

	if !user.IsActive {
		return "", nil, s.loginFailure(ctx, identifier, ErrUserInactive)
	}

	if err := s.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return "", nil, s.loginFailure(ctx, identifier, ErrInvalidCredentials)
	}

	token, err := s.tokenService.Issue(user.Username)
	if err != nil {
		return "", nil, err
	}

	authenticated, err := s.withRoles(ctx, user)
	if err != nil {
		return "", nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, actorForUser(user), user.ID.String(), map[string]any{
		"identifier": identifier,
	})

	return token, authenticated, nil
}

// RefreshSession exchanges an expired-but-authentic token for a fresh one.
// Existence and active status are rechecked on every refresh, not just at the
// original login.
func (s *Auther) RefreshSession(ctx context.Context, oldToken string) (string, *AuthenticatedUser, error) {
	if !s.tokenService.CanRefresh(oldToken) {
		return "", nil, s.refreshFailure(ctx, "", ErrTokenNotRefreshable)
	}

	claims, err := s.tokenService.ParseAllowExpired(oldToken)
	if err != nil {
		return "", nil, s.refreshFailure(ctx, "", ErrTokenNotRefreshable)
	}

	subject := claims.Subject()

	user, err := s.users.GetByUsername(ctx, subject)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return "", nil, s.refreshFailure(ctx, subject, ErrUserNotFound)
		}
		return "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user during refresh")
	}

	if !user.IsActive {
		return "", nil, s.refreshFailure(ctx, subject, ErrUserInactive)
	}

	token, err := s.tokenService.Issue(user.Username)
	if err != nil {
		return "", nil, err
	}

	authenticated, err := s.withRoles(ctx, user)
	if err != nil {
		return "", nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventRefreshSuccess, actorForUser(user), user.ID.String(), nil)

	return token, authenticated, nil
}

// CurrentUser fetches the user record for an authenticated subject.
func (s *Auther) CurrentUser(ctx context.Context, subject string) (*AuthenticatedUser, error) {
	user, err := s.users.GetByUsername(ctx, subject)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up current user")
	}

	return s.withRoles(ctx, user)
}

// VerifyToken resolves a raw bearer token to its authenticated subject. This
// is the request-scoped check the access-control gate calls per request.
func (s *Auther) VerifyToken(raw string) (string, error) {
	claims, err := s.tokenService.Parse(raw)
	if err != nil {
		return "", err
	}
	return claims.Subject(), nil
}

func (s *Auther) withRoles(ctx context.Context, user *User) (*AuthenticatedUser, error) {
	codes, err := s.roles.RoleCodesForUser(ctx, user.ID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve role codes")
	}
	if codes == nil {
		codes = []string{}
	}

	return &AuthenticatedUser{User: user, Roles: codes}, nil
}

func (s *Auther) newUserID(email string) uuid.UUID {
	if s.deterministicIDs {
		if id, err := hashid.NewUUID(email); err == nil {
			return id
		}
	}
	return uuid.New()
}

func (s *Auther) registerFailure(ctx context.Context, username string, cause error) error {
	s.emitAuthEvent(ctx, ActivityEventRegisterFailure, ActorRef{Type: "unknown"}, "", map[string]any{
		"username": username,
		"error":    cause.Error(),
	})
	return cause
}

func (s *Auther) loginFailure(ctx context.Context, identifier string, cause error) error {
	s.logger.Warn("login failed", "identifier", identifier, "error", cause)
	s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
		"identifier": identifier,
		"error":      cause.Error(),
	})
	return cause
}

func (s *Auther) refreshFailure(ctx context.Context, subject string, cause error) error {
	s.logger.Warn("session refresh failed", "subject", subject, "error", cause)
	s.emitAuthEvent(ctx, ActivityEventRefreshFailure, ActorRef{Type: "unknown"}, "", map[string]any{
		"subject": subject,
		"error":   cause.Error(),
	})
	return cause
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func actorForUser(user *User) ActorRef {
	if user == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: user.ID.String(), Type: "user"}
}

var _ Authenticator = (*Auther)(nil)
