package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// nearExpiryThreshold is how close to expiry a token must be before
// IsNearExpiry suggests a refresh.
const nearExpiryThreshold = 30 * time.Minute

// TokenService issues, validates, and refreshes signed session tokens.
type TokenService interface {
	Issue(subject string) (string, error)
	Parse(raw string) (*SessionClaims, error)
	ParseAllowExpired(raw string) (*SessionClaims, error)
	IsExpired(claims *SessionClaims) bool
	Validate(raw, expectedSubject string) bool
	CanRefresh(raw string) bool
	Refresh(oldToken string) (string, error)
	RemainingTime(raw string) time.Duration
	IsNearExpiry(raw string) bool
	IsValidFormat(raw string) bool
}

// TokenServiceImpl implements TokenService with HS256 over a shared secret.
// Tokens are stateless: the server keeps no session table and expiry is
// checked lazily at validation time.
type TokenServiceImpl struct {
	signingKey   []byte
	ttl          time.Duration
	refreshGrace time.Duration
	issuer       string
	now          Clock
	logger       Logger
}

// TokenServiceOption customizes a TokenServiceImpl.
type TokenServiceOption func(*TokenServiceImpl)

// WithTokenClock overrides the wall clock, mostly for tests.
func WithTokenClock(clock Clock) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenLogger overrides the default logger.
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a TokenService from the shared Config.
func NewTokenService(cfg Config, opts ...TokenServiceOption) *TokenServiceImpl {
	ts := &TokenServiceImpl{
		signingKey:   []byte(cfg.GetSigningKey()),
		ttl:          time.Duration(cfg.GetTokenExpiration()) * time.Hour,
		refreshGrace: time.Duration(cfg.GetRefreshGracePeriod()) * time.Hour,
		issuer:       cfg.GetIssuer(),
		now:          time.Now,
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts
}

// Issue builds claims for the subject with a fresh TTL and signs them.
func (ts *TokenServiceImpl) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("token subject must not be empty", errors.CategoryBadInput)
	}

	now := ts.now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}

// Parse verifies the signature and decodes claims, enforcing expiry.
func (ts *TokenServiceImpl) Parse(raw string) (*SessionClaims, error) {
	return ts.parse(raw, false)
}

// ParseAllowExpired verifies the signature and decodes claims without
// enforcing expiry. The refresh path needs claims out of expired tokens
// while still rejecting anything forged or corrupt.
func (ts *TokenServiceImpl) ParseAllowExpired(raw string) (*SessionClaims, error) {
	return ts.parse(raw, true)
}

func (ts *TokenServiceImpl) parse(raw string, allowExpired bool) (*SessionClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(func() time.Time { return ts.now() }),
	}
	if allowExpired {
		parserOptions = append(parserOptions, jwt.WithoutClaimsValidation())
	}
	if ts.issuer != "" && !allowExpired {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token parse encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, detailed(ErrTokenMalformed, map[string]any{"cause": err.Error()})
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		ts.logger.Error("token parse could not decode session claims")
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// IsExpired reports whether the claims are at or past their expiry. Claims
// without an expiry are treated as expired.
func (ts *TokenServiceImpl) IsExpired(claims *SessionClaims) bool {
	if claims == nil || claims.RegisteredClaims.ExpiresAt == nil {
		return true
	}
	return !ts.now().Before(claims.Expires())
}

// Validate reports whether raw is well formed, signed by us, owned by
// expectedSubject, and not expired. Parse failures yield false, never an
// error: callers treat any failure mode as "unauthenticated".
func (ts *TokenServiceImpl) Validate(raw, expectedSubject string) bool {
	claims, err := ts.Parse(raw)
	if err != nil {
		return false
	}

	if claims.Subject() != expectedSubject {
		return false
	}

	return !ts.IsExpired(claims)
}

// CanRefresh reports whether raw may be exchanged for a fresh token. The two
// failure modes are asymmetric and checked separately: a bad signature or
// structure is never refreshable, while an expired-but-authentic token is
// refreshable until the grace window closes.
func (ts *TokenServiceImpl) CanRefresh(raw string) bool {
	claims, err := ts.ParseAllowExpired(raw)
	if err != nil {
		return false
	}

	if claims.RegisteredClaims.ExpiresAt == nil {
		return false
	}

	return ts.now().Sub(claims.Expires()) < ts.refreshGrace
}

// Refresh exchanges a signature-valid, possibly expired token for a brand-new
// one with a fresh TTL. No password is required.
func (ts *TokenServiceImpl) Refresh(oldToken string) (string, error) {
	if !ts.CanRefresh(oldToken) {
		return "", ErrTokenNotRefreshable
	}

	claims, err := ts.ParseAllowExpired(oldToken)
	if err != nil {
		return "", ErrTokenNotRefreshable
	}

	subject := claims.Subject()
	if strings.TrimSpace(subject) == "" {
		return "", ErrTokenMalformed
	}

	return ts.Issue(subject)
}

// RemainingTime returns how long until the token expires, zero when it is
// expired or cannot be decoded.
func (ts *TokenServiceImpl) RemainingTime(raw string) time.Duration {
	claims, err := ts.ParseAllowExpired(raw)
	if err != nil || claims.RegisteredClaims.ExpiresAt == nil {
		return 0
	}

	remaining := claims.Expires().Sub(ts.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsNearExpiry reports whether the token expires within the refresh-hint
// threshold. Undecodable tokens count as near expiry.
func (ts *TokenServiceImpl) IsNearExpiry(raw string) bool {
	claims, err := ts.Parse(raw)
	if err != nil {
		return true
	}
	return claims.Expires().Sub(ts.now()) < nearExpiryThreshold
}

// IsValidFormat checks the three-segment compact layout without touching the
// signature.
func (ts *TokenServiceImpl) IsValidFormat(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	return len(strings.Split(raw, ".")) == 3
}

var _ TokenService = (*TokenServiceImpl)(nil)
