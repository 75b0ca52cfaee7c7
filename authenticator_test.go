package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	identity "github.com/orps2678/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(username, email, password string, active bool) *identity.User {
	return &identity.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: "hashed:" + reverseString(password),
		IsActive:     active,
	}
}

func validRegisterPayload() identity.RegisterPayload {
	return identity.RegisterPayload{
		Username:        "alice",
		Email:           "alice@example.com",
		Password:        "Sup3r@secret",
		ConfirmPassword: "Sup3r@secret",
		FirstName:       "Alice",
		LastName:        "Chen",
	}
}

func newTestAuther(store identity.UserStore, now *time.Time) *identity.Auther {
	cfg := identity.SimpleConfig{
		SigningKey:         "test-signing-key",
		TokenExpiration:    1,
		RefreshGracePeriod: 24,
		Issuer:             "identity-test",
	}

	auther := identity.NewAuthenticator(store, cfg).
		WithLogger(quietLogger{}).
		WithPasswordAuthenticator(plainHasher{})

	if now != nil {
		auther.
			WithClock(func() time.Time { return *now }).
			WithTokenService(identity.NewTokenService(cfg,
				identity.WithTokenClock(func() time.Time { return *now }),
				identity.WithTokenLogger(quietLogger{}),
			))
	}

	return auther
}

func TestAuther_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an active user and allows login", func(t *testing.T) {
		store := newFakeUserStore()
		auther := newTestAuther(store, nil)

		created, err := auther.Register(ctx, validRegisterPayload())
		require.NoError(t, err)

		assert.Equal(t, "alice", created.Username)
		assert.True(t, created.IsActive)
		assert.Equal(t, int64(0), created.Version)
		assert.NotEqual(t, uuid.Nil, created.ID)
		assert.NotContains(t, created.PasswordHash, "Sup3r@secret")

		token, authenticated, err := auther.Login(ctx, "alice", "Sup3r@secret")
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.Equal(t, created.ID, authenticated.User.ID)
	})

	t.Run("rejects duplicate username even with a new email", func(t *testing.T) {
		store := newFakeUserStore(seedUser("alice", "original@example.com", "pw", true))
		auther := newTestAuther(store, nil)

		_, err := auther.Register(ctx, validRegisterPayload())
		assert.ErrorIs(t, err, identity.ErrUsernameExists)
	})

	t.Run("rejects duplicate email even with a new username", func(t *testing.T) {
		store := newFakeUserStore(seedUser("somebody", "alice@example.com", "pw", true))
		auther := newTestAuther(store, nil)

		_, err := auther.Register(ctx, validRegisterPayload())
		assert.ErrorIs(t, err, identity.ErrEmailExists)
	})

	t.Run("reports password mismatch before running uniqueness checks", func(t *testing.T) {
		store := newFakeUserStore(seedUser("alice", "alice@example.com", "pw", true))
		auther := newTestAuther(store, nil)

		payload := validRegisterPayload()
		payload.ConfirmPassword = "D1ffer3nt@pw"

		_, err := auther.Register(ctx, payload)
		assert.ErrorIs(t, err, identity.ErrPasswordMismatch)
		assert.Zero(t, store.uniquenessChecks())
	})

	t.Run("rejects a payload that fails field validation", func(t *testing.T) {
		store := newFakeUserStore()
		auther := newTestAuther(store, nil)

		payload := validRegisterPayload()
		payload.Username = "al"

		_, err := auther.Register(ctx, payload)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, identity.ErrUsernameExists)
	})

	t.Run("maps a constraint race to the matching conflict error", func(t *testing.T) {
		store := newFakeUserStore()
		store.registerErr = errUniqueEmail{}
		auther := newTestAuther(store, nil)

		_, err := auther.Register(ctx, validRegisterPayload())
		assert.ErrorIs(t, err, identity.ErrEmailExists)
	})

	t.Run("emits register activity events", func(t *testing.T) {
		store := newFakeUserStore()
		sink := &recordingSink{}
		auther := newTestAuther(store, nil).WithActivitySink(sink)

		_, err := auther.Register(ctx, validRegisterPayload())
		require.NoError(t, err)

		_, err = auther.Register(ctx, validRegisterPayload())
		require.Error(t, err)

		assert.Equal(t, []identity.ActivityEventType{
			identity.ActivityEventRegisterSuccess,
			identity.ActivityEventRegisterFailure,
		}, sink.eventTypes())
	})

	t.Run("deterministic ids derive the same uuid from the same email", func(t *testing.T) {
		first, err := newTestAuther(newFakeUserStore(), nil).
			WithDeterministicIDs(true).
			Register(ctx, validRegisterPayload())
		require.NoError(t, err)

		second, err := newTestAuther(newFakeUserStore(), nil).
			WithDeterministicIDs(true).
			Register(ctx, validRegisterPayload())
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, first.ID)
		assert.Equal(t, first.ID, second.ID)

		other := validRegisterPayload()
		other.Email = "alice+alt@example.com"
		third, err := newTestAuther(newFakeUserStore(), nil).
			WithDeterministicIDs(true).
			Register(ctx, other)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, third.ID)

		random, err := newTestAuther(newFakeUserStore(), nil).
			Register(ctx, validRegisterPayload())
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, random.ID)
	})
}

type errUniqueEmail struct{}

func (errUniqueEmail) Error() string { return "UNIQUE constraint failed: users.email" }

func TestAuther_Login(t *testing.T) {
	ctx := context.Background()

	active := seedUser("alice", "alice@example.com", "Sup3r@secret", true)
	inactive := seedUser("bob", "bob@example.com", "Sup3r@secret", false)

	t.Run("issues a token for correct credentials", func(t *testing.T) {
		store := newFakeUserStore(active)
		auther := newTestAuther(store, nil).
			WithRoleSource(staticRoleSource{codes: []string{"ADMIN", "EDITOR"}})

		token, authenticated, err := auther.Login(ctx, "alice", "Sup3r@secret")
		require.NoError(t, err)

		assert.True(t, auther.TokenService().Validate(token, "alice"))
		assert.Equal(t, []string{"ADMIN", "EDITOR"}, authenticated.Roles)
	})

	t.Run("accepts the email as identifier", func(t *testing.T) {
		store := newFakeUserStore(active)
		auther := newTestAuther(store, nil)

		_, authenticated, err := auther.Login(ctx, "alice@example.com", "Sup3r@secret")
		require.NoError(t, err)
		assert.Equal(t, "alice", authenticated.User.Username)
	})

	t.Run("inactive account fails before the password is checked", func(t *testing.T) {
		store := newFakeUserStore(inactive)
		auther := newTestAuther(store, nil)

		_, _, err := auther.Login(ctx, "bob", "Sup3r@secret")
		assert.ErrorIs(t, err, identity.ErrUserInactive)

		_, _, err = auther.Login(ctx, "bob", "totally-wrong")
		assert.ErrorIs(t, err, identity.ErrUserInactive)
	})

	t.Run("wrong password and unknown user are indistinguishable", func(t *testing.T) {
		store := newFakeUserStore(active)
		auther := newTestAuther(store, nil)

		_, _, wrongPassword := auther.Login(ctx, "alice", "totally-wrong")
		_, _, unknownUser := auther.Login(ctx, "nobody", "Sup3r@secret")

		assert.ErrorIs(t, wrongPassword, identity.ErrInvalidCredentials)
		assert.ErrorIs(t, unknownUser, identity.ErrInvalidCredentials)
	})

	t.Run("users without roles get an empty slice", func(t *testing.T) {
		store := newFakeUserStore(active)
		auther := newTestAuther(store, nil)

		_, authenticated, err := auther.Login(ctx, "alice", "Sup3r@secret")
		require.NoError(t, err)

		assert.NotNil(t, authenticated.Roles)
		assert.Empty(t, authenticated.Roles)
	})
}

func TestAuther_RefreshSession(t *testing.T) {
	ctx := context.Background()

	t.Run("exchanges an expired-in-grace token and rechecks the account", func(t *testing.T) {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		user := seedUser("alice", "alice@example.com", "Sup3r@secret", true)
		store := newFakeUserStore(user)
		auther := newTestAuther(store, &now)

		token, _, err := auther.Login(ctx, "alice", "Sup3r@secret")
		require.NoError(t, err)

		now = now.Add(61 * time.Minute)
		require.False(t, auther.TokenService().Validate(token, "alice"))

		refreshed, authenticated, err := auther.RefreshSession(ctx, token)
		require.NoError(t, err)

		assert.True(t, auther.TokenService().Validate(refreshed, "alice"))
		assert.Equal(t, user.ID, authenticated.User.ID)
	})

	t.Run("rejects a token whose subject no longer exists", func(t *testing.T) {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		user := seedUser("alice", "alice@example.com", "Sup3r@secret", true)
		store := newFakeUserStore(user)
		auther := newTestAuther(store, &now)

		token, _, err := auther.Login(ctx, "alice", "Sup3r@secret")
		require.NoError(t, err)

		emptyStore := newFakeUserStore()
		gone := newTestAuther(emptyStore, &now)

		_, _, err = gone.RefreshSession(ctx, token)
		assert.ErrorIs(t, err, identity.ErrUserNotFound)
	})

	t.Run("rejects a token for a deactivated account", func(t *testing.T) {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		user := seedUser("alice", "alice@example.com", "Sup3r@secret", true)
		store := newFakeUserStore(user)
		auther := newTestAuther(store, &now)

		token, _, err := auther.Login(ctx, "alice", "Sup3r@secret")
		require.NoError(t, err)

		user.IsActive = false

		_, _, err = auther.RefreshSession(ctx, token)
		assert.ErrorIs(t, err, identity.ErrUserInactive)
	})

	t.Run("rejects garbage tokens outright", func(t *testing.T) {
		store := newFakeUserStore()
		auther := newTestAuther(store, nil)

		_, _, err := auther.RefreshSession(ctx, "a.b.c")
		assert.ErrorIs(t, err, identity.ErrTokenNotRefreshable)
	})
}

func TestAuther_CurrentUserAndVerify(t *testing.T) {
	ctx := context.Background()
	user := seedUser("alice", "alice@example.com", "Sup3r@secret", true)

	t.Run("resolves the current user with roles", func(t *testing.T) {
		store := newFakeUserStore(user)
		auther := newTestAuther(store, nil).
			WithRoleSource(staticRoleSource{codes: []string{"VIEWER"}})

		authenticated, err := auther.CurrentUser(ctx, "alice")
		require.NoError(t, err)

		assert.Equal(t, user.ID, authenticated.User.ID)
		assert.Equal(t, []string{"VIEWER"}, authenticated.Roles)
	})

	t.Run("unknown subject fails not-found", func(t *testing.T) {
		store := newFakeUserStore()
		auther := newTestAuther(store, nil)

		_, err := auther.CurrentUser(ctx, "nobody")
		assert.ErrorIs(t, err, identity.ErrUserNotFound)
	})

	t.Run("verify resolves a raw token to its subject", func(t *testing.T) {
		store := newFakeUserStore(user)
		auther := newTestAuther(store, nil)

		token, _, err := auther.Login(ctx, "alice", "Sup3r@secret")
		require.NoError(t, err)

		subject, err := auther.VerifyToken(token)
		require.NoError(t, err)
		assert.Equal(t, "alice", subject)

		_, err = auther.VerifyToken("garbage")
		assert.Error(t, err)
	})
}
