package config

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/federated"
)

// Prefix is prepended to every environment variable name
const Prefix = "IDENTITY_"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the service configuration, loaded from IDENTITY_* variables.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":3000"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	DatabaseDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DatabaseDSN    string `env:"DB_DSN" envDefault:"file:identity.db?cache=shared&_fk=1"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SigningKey string        `env:"JWT_SECRET"`
	Issuer     string        `env:"JWT_ISSUER" envDefault:"go-identity"`
	TokenTTL   time.Duration `env:"JWT_TTL" envDefault:"24h"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"12"`

	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionCookie string        `env:"SESSION_COOKIE" envDefault:"identity_session"`
	CookieSecure  bool          `env:"COOKIE_SECURE" envDefault:"true"`

	StartingCredits        int      `env:"STARTING_CREDITS" envDefault:"5"`
	RequireCreditOperation bool     `env:"REQUIRE_CREDIT_OPERATION" envDefault:"false"`
	UseHashedIDs           bool     `env:"USE_HASHED_IDS" envDefault:"false"`
	Levels                 []string `env:"LEVELS" envSeparator:","`
	Tracks                 []string `env:"TRACKS" envSeparator:","`

	OIDCIssuer       string        `env:"OIDC_ISSUER" envDefault:"https://accounts.google.com"`
	OIDCClientID     string        `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret string        `env:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL  string        `env:"OIDC_REDIRECT_URL"`
	StateKey         string        `env:"STATE_KEY"`
	StateSigningKey  string        `env:"STATE_SIGNING_KEY"`
	StateTTL         time.Duration `env:"STATE_TTL" envDefault:"10m"`
}

var _ identity.Config = Config{}

// Load parses the environment and validates the result
func Load() (Config, error) {
	return LoadWith(env.Options{})
}

// LoadWith parses with custom env options, mainly to inject an environment
// map in tests. The IDENTITY_ prefix is always applied.
func LoadWith(opts env.Options) (Config, error) {
	opts.Prefix = Prefix
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to parse environment")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the loaded values
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.HTTPAddr, validation.Required),
		validation.Field(&c.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.DatabaseDriver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&c.DatabaseDSN, validation.Required),
		validation.Field(&c.SessionCookie, validation.Required),
		validation.Field(&c.StartingCredits, validation.Min(0)),
		validation.Field(&c.LogFormat, validation.In("json", "text")),
		validation.Field(&c.StateKey, c.federated(validation.Required, validation.By(aesKeyLength))...),
		validation.Field(&c.StateSigningKey, c.federated(validation.Required)...),
		validation.Field(&c.OIDCClientSecret, c.federated(validation.Required)...),
		validation.Field(&c.OIDCRedirectURL, c.federated(validation.Required)...),
	)
	if err == nil {
		return nil
	}

	fields := map[string]any{}
	if errs, ok := err.(validation.Errors); ok {
		for name, fieldErr := range errs {
			fields[name] = fieldErr.Error()
		}
	}
	return identity.ValidationError("invalid configuration", fields)
}

// federated returns rules only when an OIDC client is configured
func (c Config) federated(rules ...validation.Rule) []validation.Rule {
	if !c.FederationEnabled() {
		return nil
	}
	return rules
}

func aesKeyLength(value interface{}) error {
	s, _ := value.(string)
	switch len(s) {
	case 16, 24, 32:
		return nil
	}
	return errors.New("must be 16, 24 or 32 bytes")
}

// FederationEnabled reports whether an OIDC client is configured
func (c Config) FederationEnabled() bool {
	return strings.TrimSpace(c.OIDCClientID) != ""
}

// Provider returns the OIDC client registration
func (c Config) Provider() federated.ProviderConfig {
	return federated.ProviderConfig{
		IssuerURL:    c.OIDCIssuer,
		ClientID:     c.OIDCClientID,
		ClientSecret: c.OIDCClientSecret,
		RedirectURL:  c.OIDCRedirectURL,
	}
}

func (c Config) GetSigningKey() string           { return c.SigningKey }
func (c Config) GetIssuer() string               { return c.Issuer }
func (c Config) GetTokenTTL() time.Duration      { return c.TokenTTL }
func (c Config) GetStartingCredits() int         { return c.StartingCredits }
func (c Config) GetRequireCreditOperation() bool { return c.RequireCreditOperation }
func (c Config) GetUseHashedIDs() bool           { return c.UseHashedIDs }

func (c Config) GetLevels() []string {
	if len(c.Levels) == 0 {
		return identity.DefaultLevels
	}
	return c.Levels
}

func (c Config) GetTracks() []string {
	if len(c.Tracks) == 0 {
		return identity.DefaultTracks
	}
	return c.Tracks
}
