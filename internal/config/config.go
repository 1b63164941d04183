package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2/github"
)

// Config contains runtime configuration values. It is built once at startup
// and never mutated afterwards.
type Config struct {
	Environment string
	HTTPPort    string
	DatabaseURL string
	ServiceName string

	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	JWTIssuer          string
	JWTAudience        string

	CookieSecret   string
	PendingFlowTTL time.Duration

	GithubClientID     string
	GithubClientSecret string
	GithubAuthURL      string
	GithubTokenURL     string
	GithubProfileURL   string
	GithubScopes       string
	GithubRedirectURI  string

	AdminEmail    string
	AdminPassword string

	RateLimitRPM      int
	TelemetryEndpoint string
	TelemetryInsecure bool

	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// IsProduction reports whether the service runs with production hardening
// (secure, httponly cookies).
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment: getEnv("APP_ENV", "development"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		ServiceName: getEnv("SERVICE_NAME", "inkwell-auth"),

		AccessTokenSecret:  os.Getenv("JWT_ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: os.Getenv("JWT_REFRESH_TOKEN_SECRET"),
		AccessTokenTTL:     getDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:    getDuration("REFRESH_TOKEN_TTL", 14*24*time.Hour),
		JWTIssuer:          getEnv("JWT_ISSUER", "inkwell"),
		JWTAudience:        getEnv("JWT_AUDIENCE", "inkwell-web"),

		CookieSecret:   os.Getenv("COOKIE_SECRET"),
		PendingFlowTTL: getDuration("OAUTH2_PENDING_TTL", 180*time.Second),

		GithubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GithubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GithubAuthURL:      getEnv("GITHUB_AUTH_URL", github.Endpoint.AuthURL),
		GithubTokenURL:     getEnv("GITHUB_TOKEN_URL", github.Endpoint.TokenURL),
		GithubProfileURL:   getEnv("GITHUB_PROFILE_URL", "https://api.github.com/user"),
		GithubScopes:       getEnv("GITHUB_SCOPES", "read:user"),
		GithubRedirectURI:  os.Getenv("GITHUB_REDIRECT_URI"),

		AdminEmail:    strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword: strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),

		RateLimitRPM:      getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure: getBool("OTEL_EXPORTER_OTLP_INSECURE", true),

		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", true),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AccessTokenSecret == "" || cfg.RefreshTokenSecret == "" {
		return Config{}, fmt.Errorf("JWT_ACCESS_TOKEN_SECRET and JWT_REFRESH_TOKEN_SECRET are required")
	}
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		return Config{}, fmt.Errorf("access and refresh token secrets must differ")
	}
	if len(cfg.CookieSecret) < 32 {
		return Config{}, fmt.Errorf("COOKIE_SECRET must be at least 32 bytes")
	}
	if cfg.GithubClientID == "" || cfg.GithubClientSecret == "" || cfg.GithubRedirectURI == "" {
		return Config{}, fmt.Errorf("GITHUB_CLIENT_ID, GITHUB_CLIENT_SECRET and GITHUB_REDIRECT_URI are required")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
