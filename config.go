package identity

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetRefreshGracePeriod() int
	GetIssuer() string
	GetContextKey() string
	GetAuthScheme() string
}

// SimpleConfig is a plain-struct Config for wiring without a config framework.
type SimpleConfig struct {
	SigningKey         string
	TokenExpiration    int // hours
	RefreshGracePeriod int // hours
	Issuer             string
	ContextKey         string
	AuthScheme         string
}

func (c SimpleConfig) GetSigningKey() string { return c.SigningKey }

func (c SimpleConfig) GetTokenExpiration() int {
	if c.TokenExpiration <= 0 {
		return 24
	}
	return c.TokenExpiration
}

func (c SimpleConfig) GetRefreshGracePeriod() int {
	if c.RefreshGracePeriod <= 0 {
		return 24
	}
	return c.RefreshGracePeriod
}

func (c SimpleConfig) GetIssuer() string { return c.Issuer }

func (c SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return "claims"
	}
	return c.ContextKey
}

func (c SimpleConfig) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return "Bearer"
	}
	return c.AuthScheme
}

var _ Config = SimpleConfig{}
