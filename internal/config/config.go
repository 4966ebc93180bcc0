// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"capgate.org/internal/auth"
)

// Config holds every setting the service reads at startup.
type Config struct {
	Secret          string
	TokenTTL        time.Duration
	SingleUseTokens bool
	Issuer          string
	BcryptCost      int

	DatabaseURL string
	HTTPAddr    string
	GRPCAddr    string
	LogLevel    string

	RolesFile string

	OAuth OAuthConfig

	SigninRatePerSec int
	SigninBurst      int
}

// OAuthConfig describes the OIDC provider used for the oauth sign-in path.
type OAuthConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether any OAuth setting was provided.
func (o OAuthConfig) Enabled() bool {
	return o.IssuerURL != "" || o.ClientID != "" || o.ClientSecret != "" || o.RedirectURL != ""
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads configuration through getenv and validates it.
func LoadFrom(getenv func(string) string) (*Config, error) {
	env := envReader{get: getenv}
	cfg := &Config{
		Secret:          env.str("SECRET", ""),
		TokenTTL:        env.duration("TOKEN_LIFETIME", auth.DefaultTokenTTL),
		SingleUseTokens: env.boolean("SINGLE_USE_TOKENS", false),
		Issuer:          env.str("TOKEN_ISSUER", auth.DefaultIssuer),
		BcryptCost:      env.integer("BCRYPT_COST", bcrypt.DefaultCost),

		DatabaseURL: env.str("DATABASE_URL", ""),
		HTTPAddr:    env.str("HTTP_ADDR", ":8080"),
		GRPCAddr:    env.str("GRPC_ADDR", ""),
		LogLevel:    env.str("LOG_LEVEL", "info"),
		RolesFile:   env.str("ROLES_FILE", ""),

		OAuth: OAuthConfig{
			IssuerURL:    env.str("OAUTH_ISSUER_URL", ""),
			ClientID:     env.str("OAUTH_CLIENT_ID", ""),
			ClientSecret: env.str("OAUTH_CLIENT_SECRET", ""),
			RedirectURL:  env.str("OAUTH_REDIRECT_URL", ""),
		},

		SigninRatePerSec: env.integer("SIGNIN_RATE_PER_SEC", 5),
		SigninBurst:      env.integer("SIGNIN_BURST", 10),
	}
	if len(env.errs) > 0 {
		return nil, fmt.Errorf("%w: %s", auth.ErrConfiguration, strings.Join(env.errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Secret) == "" {
		problems = append(problems, "SECRET is required")
	}
	if c.TokenTTL <= 0 {
		problems = append(problems, "TOKEN_LIFETIME must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		problems = append(problems, fmt.Sprintf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.HTTPAddr == "" {
		problems = append(problems, "HTTP_ADDR is required")
	}
	if c.OAuth.Enabled() && (c.OAuth.IssuerURL == "" || c.OAuth.ClientID == "" || c.OAuth.RedirectURL == "") {
		problems = append(problems, "OAUTH_ISSUER_URL, OAUTH_CLIENT_ID and OAUTH_REDIRECT_URL must be set together")
	}
	if c.SigninRatePerSec <= 0 || c.SigninBurst <= 0 {
		problems = append(problems, "SIGNIN_RATE_PER_SEC and SIGNIN_BURST must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", auth.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// TokenOptions translates token settings into TokenService options.
func (c *Config) TokenOptions() []auth.TokenOption {
	return []auth.TokenOption{
		auth.WithIssuer(c.Issuer),
		auth.WithTTL(c.TokenTTL),
		auth.WithSingleUse(c.SingleUseTokens),
	}
}

type rolesFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadRoles returns the role definitions in path, or the built-in defaults
// when path is empty.
func LoadRoles(path string) (map[auth.RoleName][]auth.Capability, error) {
	if path == "" {
		return auth.DefaultRoles(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read roles file: %v", auth.ErrConfiguration, err)
	}
	return ParseRoles(data)
}

// ParseRoles decodes a YAML document of the form
//
//	roles:
//	  admin: [create, read, update, delete]
func ParseRoles(data []byte) (map[auth.RoleName][]auth.Capability, error) {
	var doc rolesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse roles file: %v", auth.ErrConfiguration, err)
	}
	if len(doc.Roles) == 0 {
		return nil, fmt.Errorf("%w: roles file defines no roles", auth.ErrConfiguration)
	}
	out := make(map[auth.RoleName][]auth.Capability, len(doc.Roles))
	for name, caps := range doc.Roles {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: role with empty name", auth.ErrConfiguration)
		}
		parsed := auth.ParseCapabilities(caps)
		for _, c := range parsed {
			if !auth.KnownCapability(c) {
				return nil, fmt.Errorf("%w: role %q grants unknown capability %q", auth.ErrConfiguration, name, c)
			}
		}
		out[auth.RoleName(name)] = parsed
	}
	return out, nil
}

type envReader struct {
	get  func(string) string
	errs []string
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (e *envReader) boolean(key string, def bool) bool {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

// duration accepts Go durations ("5m") and bare seconds ("300").
func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}
