package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication backend used by the application.
type AuthMode string

const (
	// AuthModeGoTrue uses a GoTrue (Supabase Auth) server.
	AuthModeGoTrue AuthMode = "gotrue"
	// AuthModeOIDC uses an OpenID Connect provider with the password grant.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeMock uses in-memory dev accounts (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "gotrue", "oidc", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: gotrue, oidc, mock)", v)
	}
}

// GoTrueConfig contains the auth REST API settings.
type GoTrueConfig struct {
	URL     string `env:"URL"      envDefault:"http://localhost:9999"`
	AnonKey string `env:"ANON_KEY"`
	// JWTSecret enables HS256 verification of access tokens when set.
	JWTSecret     string        `env:"JWT_SECRET"`
	RefreshMargin time.Duration `env:"REFRESH_MARGIN" envDefault:"60s"`
	Timeout       time.Duration `env:"TIMEOUT"        envDefault:"10s"`
	AutoRefresh   bool          `env:"AUTO_REFRESH"   envDefault:"true"`
}

// OIDCConfig contains OpenID Connect configuration.
type OIDCConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"scribe"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email offline_access"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// DevAuthConfig seeds the single mock account.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID   string `env:"USER_ID"  envDefault:"dev-user"`
	Email    string `env:"EMAIL"    envDefault:"dev@example.com"`
	Password string `env:"PASSWORD" envDefault:"dev-password"`
	Name     string `env:"NAME"     envDefault:"Dev Editor"`
	// Role is assigned to the dev account in the in-memory role store.
	Role string `env:"ROLE" envDefault:"super_admin"`
	// RequireConfirmation keeps signed-up accounts unusable until confirmed.
	RequireConfirmation bool `env:"REQUIRE_CONFIRMATION" envDefault:"false"`
}

// SessionStoreKind selects where the backend session is persisted.
type SessionStoreKind string

const (
	SessionStoreRedis  SessionStoreKind = "redis"
	SessionStoreMemory SessionStoreKind = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for SessionStoreKind.
func (k *SessionStoreKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "redis", "memory":
		*k = SessionStoreKind(v)
		return nil
	default:
		return fmt.Errorf("invalid session store: %q (valid options: redis, memory)", v)
	}
}

// SessionConfig controls session persistence.
type SessionConfig struct {
	Store SessionStoreKind `env:"STORE" envDefault:"memory"`
	// Key names the persisted session, one per device or CLI profile.
	Key string `env:"KEY" envDefault:"scribe.auth.session"`
	// Prefix namespaces Redis keys.
	Prefix string `env:"REDIS_PREFIX" envDefault:"scribe:session:"`
	// Retention bounds how long a refreshable session is kept in Redis.
	Retention time.Duration `env:"RETENTION" envDefault:"720h"`
	// EncryptionKey seals Redis payloads with AES-256-GCM. A 64-character hex
	// string is used as the raw key, anything else is hashed. Empty stores plain JSON.
	EncryptionKey string `env:"ENCRYPTION_KEY"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication backend to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"gotrue"`

	// RedirectURL is the landing page of the verification email sent on sign-up.
	RedirectURL string `env:"AUTH_REDIRECT_URL" envDefault:"http://localhost:5173/"`

	GoTrue  GoTrueConfig  `envPrefix:"GOTRUE_"`
	OIDC    OIDCConfig    `envPrefix:"OIDC_"`
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
	Session SessionConfig `envPrefix:"AUTH_SESSION_"`
}

// Sanitize normalises URLs and clamps durations.
func (c *AuthConfig) Sanitize() {
	c.RedirectURL = strings.TrimSpace(c.RedirectURL)
	c.GoTrue.URL = strings.TrimRight(strings.TrimSpace(c.GoTrue.URL), "/")
	c.OIDC.DiscoveryURL = strings.TrimSpace(c.OIDC.DiscoveryURL)
	if c.GoTrue.RefreshMargin < 0 {
		c.GoTrue.RefreshMargin = 0
	}
	if c.GoTrue.Timeout <= 0 {
		c.GoTrue.Timeout = 10 * time.Second
	}
	if c.Session.Key = strings.TrimSpace(c.Session.Key); c.Session.Key == "" {
		c.Session.Key = "scribe.auth.session"
	}
	if c.Session.Retention <= 0 {
		c.Session.Retention = 30 * 24 * time.Hour
	}
}
