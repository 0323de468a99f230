package auth_test

import (
	"testing"
	"time"

	"github.com/inflowhq/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptionsDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	opts, err := auth.LoadOptions("testdata/missing.env")
	require.NoError(t, err)

	assert.Equal(t, ":8080", opts.HTTPAddr)
	assert.Equal(t, auth.DatabaseDriverSQLite, opts.DatabaseDriver)
	assert.Equal(t, 15*time.Minute, opts.GetAccessTTL())
	assert.Equal(t, 14*24*time.Hour, opts.GetRefreshTTL())
	assert.Equal(t, 5, opts.GetMaxSessionsPerUser())
	assert.Equal(t, time.Hour, opts.SweepInterval)
	assert.True(t, opts.GetCookieSecure())
	assert.Equal(t, auth.SessionStoreSQL, opts.SessionStore)
	assert.False(t, opts.OAuthEnabled)
	assert.False(t, opts.IsDevelopment())
}

func TestLoadOptionsFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("COOKIE_DOMAIN", "inflow.test")
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("MAX_SESSIONS_PER_USER", "3")
	t.Setenv("OAUTH_ENABLED", "true")
	t.Setenv("OAUTH_STATE_SECRET", "state-secret")
	t.Setenv("GOOGLE_CLIENT_ID", "google-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "google-secret")
	t.Setenv("GOOGLE_SCOPES", "openid,email")
	t.Setenv("KAKAO_CLIENT_ID", "kakao-id")

	opts, err := auth.LoadOptions("testdata/missing.env")
	require.NoError(t, err)

	assert.True(t, opts.IsDevelopment())
	assert.Equal(t, 5*time.Minute, opts.GetAccessTTL())
	assert.False(t, opts.GetCookieSecure())
	assert.Equal(t, "inflow.test", opts.GetCookieDomain())
	assert.Equal(t, 3, opts.GetMaxSessionsPerUser())

	providers := opts.GetProviders()
	require.Len(t, providers, 3)
	assert.True(t, providers["google"].Enabled())
	assert.Equal(t, []string{"openid", "email"}, providers["google"].Scopes)
	assert.False(t, providers["kakao"].Enabled())
	assert.False(t, providers["naver"].Enabled())
}

func TestOptionsValidate(t *testing.T) {
	valid := func() *auth.Options {
		return &auth.Options{
			DatabaseDriver:       auth.DatabaseDriverSQLite,
			DatabaseURL:          "file::memory:",
			JWTSecret:            testSecret,
			AccessTTL:            time.Minute,
			RefreshTTL:           time.Hour,
			SessionStore:         auth.SessionStoreSQL,
			MaxSessionsPerUser:   5,
			OAuthRedirectSuccess: "/",
			OAuthRedirectFailure: "/login",
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(o *auth.Options)
	}{
		{name: "missing secret", mutate: func(o *auth.Options) { o.JWTSecret = "" }},
		{name: "short secret", mutate: func(o *auth.Options) { o.JWTSecret = "short" }},
		{name: "unknown driver", mutate: func(o *auth.Options) { o.DatabaseDriver = "mysql" }},
		{name: "unknown session store", mutate: func(o *auth.Options) { o.SessionStore = "memcached" }},
		{name: "zero session cap", mutate: func(o *auth.Options) { o.MaxSessionsPerUser = 0 }},
		{name: "redis without address", mutate: func(o *auth.Options) { o.SessionStore = auth.SessionStoreRedis }},
		{name: "oauth without state secret", mutate: func(o *auth.Options) { o.OAuthEnabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid()
			tt.mutate(opts)
			err := opts.Validate()
			require.Error(t, err)
			assert.Equal(t, 400, auth.HTTPStatus(err))
		})
	}
}
