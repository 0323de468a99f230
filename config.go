package auth

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/joho/godotenv"
)

const (
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"

	SessionStoreSQL   = "sql"
	SessionStoreRedis = "redis"
)

// ProviderOptions holds the OAuth client credentials of one provider
type ProviderOptions struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	RedirectURL  string   `env:"REDIRECT_URL"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

// Enabled reports whether both client id and secret are set
func (p ProviderOptions) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Options is the service configuration read from the environment
type Options struct {
	AppEnv   string `env:"APP_ENV" envDefault:"production"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"file:auth.db?cache=shared&_fk=1"`
	AutoMigrate    bool   `env:"DATABASE_AUTO_MIGRATE" envDefault:"true"`

	JWTSecret  string        `env:"JWT_SECRET"`
	JWTIssuer  string        `env:"JWT_ISSUER" envDefault:"inflow-auth"`
	AccessTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"JWT_REFRESH_TTL" envDefault:"336h"`

	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"true"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	SessionStore       string        `env:"SESSION_STORE" envDefault:"sql"`
	RedisAddr          string        `env:"REDIS_ADDR"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	RedisDB            int           `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix        string        `env:"REDIS_PREFIX" envDefault:"auth"`
	MaxSessionsPerUser int           `env:"MAX_SESSIONS_PER_USER" envDefault:"5"`
	SweepInterval      time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1h"`

	OAuthEnabled         bool   `env:"OAUTH_ENABLED" envDefault:"false"`
	OAuthStateSecret     string `env:"OAUTH_STATE_SECRET"`
	OAuthRedirectSuccess string `env:"OAUTH_REDIRECT_SUCCESS" envDefault:"/"`
	OAuthRedirectFailure string `env:"OAUTH_REDIRECT_FAILURE" envDefault:"/login"`

	Google ProviderOptions `envPrefix:"GOOGLE_"`
	Kakao  ProviderOptions `envPrefix:"KAKAO_"`
	Naver  ProviderOptions `envPrefix:"NAVER_"`
}

var _ Config = (*Options)(nil)

// LoadOptions reads a .env file when present and parses the environment
func LoadOptions(files ...string) (*Options, error) {
	_ = godotenv.Load(files...)

	opts := &Options{}
	if err := env.Parse(opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Validate checks the options are usable
func (o *Options) Validate() error {
	err := validation.ValidateStruct(o,
		validation.Field(&o.JWTSecret, validation.Required, validation.Length(16, 0)),
		validation.Field(&o.DatabaseDriver, validation.Required, validation.In(DatabaseDriverSQLite, DatabaseDriverPostgres)),
		validation.Field(&o.DatabaseURL, validation.Required),
		validation.Field(&o.AccessTTL, validation.Required),
		validation.Field(&o.RefreshTTL, validation.Required),
		validation.Field(&o.SessionStore, validation.Required, validation.In(SessionStoreSQL, SessionStoreRedis)),
		validation.Field(&o.MaxSessionsPerUser, validation.Required, validation.Min(1)),
		validation.Field(&o.OAuthRedirectSuccess, is.RequestURI),
		validation.Field(&o.OAuthRedirectFailure, is.RequestURI),
	)
	if err != nil {
		return NewInvalidInputError("invalid configuration: "+err.Error(), nil)
	}

	if o.SessionStore == SessionStoreRedis && o.RedisAddr == "" {
		return NewInvalidInputError("invalid configuration: REDIS_ADDR is required for the redis session store", nil)
	}

	if o.OAuthEnabled && o.OAuthStateSecret == "" {
		return NewInvalidInputError("invalid configuration: OAUTH_STATE_SECRET is required when OAuth is enabled", nil)
	}

	return nil
}

// IsDevelopment reports whether APP_ENV is development
func (o *Options) IsDevelopment() bool {
	return o.AppEnv == "development"
}

func (o *Options) GetSigningKey() string {
	return o.JWTSecret
}

func (o *Options) GetIssuer() string {
	return o.JWTIssuer
}

func (o *Options) GetAccessTTL() time.Duration {
	return o.AccessTTL
}

func (o *Options) GetRefreshTTL() time.Duration {
	return o.RefreshTTL
}

func (o *Options) GetMaxSessionsPerUser() int {
	return o.MaxSessionsPerUser
}

func (o *Options) GetCookieSecure() bool {
	return o.CookieSecure
}

func (o *Options) GetCookieDomain() string {
	return o.CookieDomain
}

// GetProviders returns the credentials of every known provider keyed by name
func (o *Options) GetProviders() map[string]ProviderOptions {
	return map[string]ProviderOptions{
		"google": o.Google,
		"kakao":  o.Kakao,
		"naver":  o.Naver,
	}
}
