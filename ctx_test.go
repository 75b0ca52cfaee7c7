package identity_test

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	identity "github.com/orps2678/go-identity"
	"github.com/stretchr/testify/assert"
)

func TestSubjectContext(t *testing.T) {
	ctx := context.Background()

	_, ok := identity.SubjectFrom(ctx)
	assert.False(t, ok)

	ctx = identity.WithSubject(ctx, "alice")

	subject, ok := identity.SubjectFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "alice", subject)
}

func TestClaimsContext(t *testing.T) {
	ctx := context.Background()

	_, ok := identity.ClaimsFrom(ctx)
	assert.False(t, ok)

	claims := &identity.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
	}
	ctx = identity.WithClaims(ctx, claims)

	got, ok := identity.ClaimsFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "alice", got.Subject())
}

func TestContextKeysDoNotCollide(t *testing.T) {
	claims := &identity.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
	}

	ctx := identity.WithClaims(identity.WithSubject(context.Background(), "bob"), claims)

	subject, ok := identity.SubjectFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "bob", subject)

	got, ok := identity.ClaimsFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "alice", got.Subject())
}
