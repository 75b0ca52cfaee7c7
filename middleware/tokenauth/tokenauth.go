// Package tokenauth provides a fiber middleware that authenticates requests
// from a bearer token and attaches the session claims to the request.
package tokenauth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	identity "github.com/orps2678/go-identity"
)

var (
	// ErrMissingOrMalformed covers requests that never present a usable
	// token: absent header, wrong scheme, or a string that is not the
	// three-segment compact format.
	ErrMissingOrMalformed = errors.New("missing or malformed bearer token")
)

type Config struct {
	// TokenService verifies presented tokens. Required.
	TokenService identity.TokenService

	// Filter skips the middleware for matching requests.
	Filter func(c *fiber.Ctx) bool

	// SuccessHandler runs after the token has been verified. Defaults to
	// passing the request on.
	SuccessHandler fiber.Handler

	// ErrorHandler maps extraction and verification failures to a
	// response. The default answers 400 for missing or malformed tokens
	// and 401 for everything else.
	ErrorHandler fiber.ErrorHandler

	// ContextKey is the fiber Locals key the claims are stored under.
	// Defaults to "claims".
	ContextKey string

	// AuthScheme is the expected Authorization scheme. Defaults to
	// "Bearer".
	AuthScheme string
}

func configDefault(config ...Config) Config {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenService == nil {
		panic("tokenauth: TokenService is required")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "claims"
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	return cfg
}

func defaultErrorHandler(c *fiber.Ctx, err error) error {
	if errors.Is(err, ErrMissingOrMalformed) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": ErrMissingOrMalformed.Error(),
		})
	}

	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "invalid or expired token",
	})
}

// New returns a middleware that extracts the bearer token from the
// Authorization header, verifies it, and stores the claims in Locals under
// ContextKey. The request's user context is enriched with the claims and
// subject so downstream code can read the principal without touching the
// transport.
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := extractToken(c, cfg.AuthScheme)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if !cfg.TokenService.IsValidFormat(raw) {
			return cfg.ErrorHandler(c, ErrMissingOrMalformed)
		}

		claims, err := cfg.TokenService.Parse(raw)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(cfg.ContextKey, claims)

		ctx := identity.WithClaims(c.UserContext(), claims)
		ctx = identity.WithSubject(ctx, claims.Subject())
		c.SetUserContext(ctx)

		return cfg.SuccessHandler(c)
	}
}

// ClaimsFromLocals reads the session claims the middleware stored for this
// request. Returns nil when the request never passed the middleware.
func ClaimsFromLocals(c *fiber.Ctx, contextKey string) *identity.SessionClaims {
	if contextKey == "" {
		contextKey = "claims"
	}

	claims, ok := c.Locals(contextKey).(*identity.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}

func extractToken(c *fiber.Ctx, scheme string) (string, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", ErrMissingOrMalformed
	}

	prefix := scheme + " "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingOrMalformed
	}

	raw := strings.TrimSpace(header[len(prefix):])
	if raw == "" {
		return "", ErrMissingOrMalformed
	}

	return raw, nil
}
