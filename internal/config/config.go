package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// LocalCookieDomain is the development domain sentinel. Cookies set for it
// carry no Domain attribute so browsers accept them on bare localhost.
const LocalCookieDomain = "localhost"

// Key-miss policies for tokens whose kid is not in the cached key set.
const (
	KeyMissFail    = "fail"
	KeyMissRefresh = "refresh"
)

// Config holds the service settings, read from the environment (and .env).
type Config struct {
	AppName string `env:"APP_NAME" envDefault:"RAG ChatBot"`
	Env     string `env:"ENV" envDefault:"development"`
	Addr    string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8000"`

	BackendURL  string `env:"BACKEND_URL,required,notEmpty"`
	FrontendURL string `env:"FRONTEND_URL,required,notEmpty"`

	SupabaseURL     string `env:"SUPABASE_URL,required,notEmpty"`
	SupabaseAnonKey string `env:"SUPABASE_ANON_KEY,required,notEmpty"`

	JWTSecretKey           string `env:"JWT_SECRET_KEY,required,notEmpty"`
	JWTAlgorithm           string `env:"JWT_ALGORITHM" envDefault:"HS256"`
	RefreshTokenExpireDays int    `env:"REFRESH_TOKEN_EXPIRE_DAYS" envDefault:"7"`

	CookieDomain   string `env:"COOKIE_DOMAIN" envDefault:"localhost"`
	CookieSecure   bool   `env:"COOKIE_SECURE" envDefault:"false"`
	CookieSameSite string `env:"COOKIE_SAMESITE" envDefault:"lax"`
	CookieHTTPOnly bool   `env:"COOKIE_HTTPONLY" envDefault:"true"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	OAuthProvider     string `env:"OAUTH_PROVIDER" envDefault:"google"`
	OAuthCallbackPath string `env:"OAUTH_CALLBACK_PATH" envDefault:"/auth/callback"`

	AccessTTL          time.Duration `env:"SESSION_ACCESS_TTL" envDefault:"1h"`
	AccessTTLFromToken bool          `env:"SESSION_ACCESS_TTL_FROM_TOKEN" envDefault:"false"`

	JWKSCacheTTL           time.Duration `env:"JWKS_CACHE_TTL" envDefault:"1h"`
	JWKSKeyMissPolicy      string        `env:"JWKS_KEY_MISS_POLICY" envDefault:"fail"`
	JWKSMinRefreshInterval time.Duration `env:"JWKS_MIN_REFRESH_INTERVAL" envDefault:"30s"`

	ProviderRefreshTimeout time.Duration `env:"PROVIDER_REFRESH_TIMEOUT" envDefault:"10s"`
	ProviderRevokeTimeout  time.Duration `env:"PROVIDER_REVOKE_TIMEOUT" envDefault:"5s"`

	OTELEnable      bool    `env:"OTEL_ENABLE" envDefault:"false"`
	OTELEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1.0"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the service configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.SupabaseURL = strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	cfg.FrontendURL = strings.TrimRight(strings.TrimSpace(cfg.FrontendURL), "/")
	cfg.CORSAllowedOrigins = trimCSV(cfg.CORSAllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the auth components cannot run with.
func (c Config) Validate() error {
	switch strings.ToLower(c.CookieSameSite) {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("COOKIE_SAMESITE must be lax, strict or none, got %q", c.CookieSameSite)
	}
	// Browsers drop SameSite=None cookies that are not Secure.
	if strings.EqualFold(c.CookieSameSite, "none") && !c.CookieSecure {
		return fmt.Errorf("COOKIE_SAMESITE=none requires COOKIE_SECURE=true")
	}
	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("JWT_ALGORITHM must be an HMAC algorithm, got %q", c.JWTAlgorithm)
	}
	switch c.JWKSKeyMissPolicy {
	case KeyMissFail, KeyMissRefresh:
	default:
		return fmt.Errorf("JWKS_KEY_MISS_POLICY must be %q or %q, got %q", KeyMissFail, KeyMissRefresh, c.JWKSKeyMissPolicy)
	}
	if c.JWKSCacheTTL <= 0 {
		return fmt.Errorf("JWKS_CACHE_TTL must be positive")
	}
	if c.RefreshTokenExpireDays <= 0 {
		return fmt.Errorf("REFRESH_TOKEN_EXPIRE_DAYS must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool  { return c.Env == "production" }
func (c Config) IsDevelopment() bool { return c.Env == "development" }

// JWKSURL is the identity provider's published key set.
func (c Config) JWKSURL() string {
	return c.SupabaseURL + "/auth/v1/keys"
}

// RefreshTTL is the refresh cookie lifetime.
func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpireDays) * 24 * time.Hour
}

// trimCSV removes empty entries from a string slice.
func trimCSV(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			result = append(result, v)
		}
	}
	return result
}
