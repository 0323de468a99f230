package social

import (
	"context"
	"database/sql"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-router"
	"github.com/inflowhq/go-auth"
	"github.com/inflowhq/go-auth/repository"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/oauth2"

	_ "github.com/mattn/go-sqlite3"
)

var _ IdentityRepository = (*repository.UserIdentities)(nil)

var schema = []string{
	`CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT UNIQUE,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT,
    display_name TEXT NOT NULL,
    role TEXT NOT NULL,
    status TEXT NOT NULL,
    website_url TEXT,
    last_login_at TIMESTAMP NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);`,
	`CREATE TABLE user_identities (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    provider_user_id TEXT NOT NULL,
    provider_email TEXT,
    linked_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
    CONSTRAINT uq_user_identities_user_provider UNIQUE (user_id, provider),
    CONSTRAINT uq_user_identities_provider_user UNIQUE (provider, provider_user_id)
);`,
	`CREATE TABLE refresh_sessions (
    jti TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    user_agent_hash TEXT,
    ip_hash TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`,
	`CREATE TABLE influencer_profiles (
    user_id TEXT NOT NULL PRIMARY KEY,
    display_name TEXT NOT NULL,
    categories TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);`,
	`CREATE TABLE advertiser_companies (
    user_id TEXT NOT NULL PRIMARY KEY,
    company_name TEXT NOT NULL,
    business_number TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);`,
}

func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())
	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	for _, stmt := range schema {
		_, err = bunDB.Exec(stmt)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = bunDB.Close()
	})
	return bunDB
}

type staticConfig struct{}

func (staticConfig) GetSigningKey() string        { return "social-test-secret-0123456789" }
func (staticConfig) GetIssuer() string            { return "inflow-test" }
func (staticConfig) GetAccessTTL() time.Duration  { return 15 * time.Minute }
func (staticConfig) GetRefreshTTL() time.Duration { return 14 * 24 * time.Hour }
func (staticConfig) GetMaxSessionsPerUser() int   { return 5 }
func (staticConfig) GetCookieSecure() bool        { return true }
func (staticConfig) GetCookieDomain() string      { return "" }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// stubProvider returns a canned profile for any code
type stubProvider struct {
	name        string
	profile     *OAuthProfile
	exchangeErr error
	userInfoErr error

	mu        sync.Mutex
	lastState string
	codes     []string
}

func (p *stubProvider) Name() string {
	return p.name
}

func (p *stubProvider) AuthCodeURL(state string) string {
	p.mu.Lock()
	p.lastState = state
	p.mu.Unlock()
	return "https://provider.example/authorize?state=" + url.QueryEscape(state)
}

func (p *stubProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	p.mu.Lock()
	p.codes = append(p.codes, code)
	p.mu.Unlock()
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return &oauth2.Token{AccessToken: "provider-token", TokenType: "Bearer"}, nil
}

func (p *stubProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*OAuthProfile, error) {
	if p.userInfoErr != nil {
		return nil, p.userInfoErr
	}
	profile := *p.profile
	return &profile, nil
}

type fixture struct {
	db            *bun.DB
	clock         *testClock
	repo          auth.RepositoryManager
	identities    *repository.UserIdentities
	integrator    *Integrator
	service       *auth.AuthService
	issuer        *auth.TokenIssuer
	states        *StateCodec
	provider      *stubProvider
	authenticator *Authenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupDB(t)
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	repo := auth.NewRepositoryManager(db)
	identities := repository.NewUserIdentities(clock.Now)

	issuer := auth.NewTokenIssuer(staticConfig{}, auth.WithTokenClock(clock.Now), auth.WithTokenLogger(nopLogger{}))
	registry := auth.NewSessionRegistry(repo.Sessions(), repo.Users(),
		auth.WithRegistryClock(clock.Now),
		auth.WithRegistryLogger(nopLogger{}),
	)
	service := auth.NewAuthService(repo, issuer, registry,
		auth.WithServiceClock(clock.Now),
		auth.WithServiceLogger(nopLogger{}),
	)

	integrator := NewIntegrator(repo, identities,
		WithIntegratorClock(clock.Now),
		WithIntegratorLogger(nopLogger{}),
	)

	provider := &stubProvider{
		name: ProviderGoogle,
		profile: &OAuthProfile{
			Provider:       ProviderGoogle,
			ProviderUserID: "g-100",
			Email:          "Jane@Example.com",
			EmailVerified:  true,
			Name:           "Jane Doe",
		},
	}

	states := NewStateCodec("state-secret", WithStateClock(clock.Now))
	authenticator := NewAuthenticator(NewProviderRegistry(true, provider), states, integrator, service,
		WithAuthenticatorLogger(nopLogger{}),
	)

	return &fixture{
		db:            db,
		clock:         clock,
		repo:          repo,
		identities:    identities,
		integrator:    integrator,
		service:       service,
		issuer:        issuer,
		states:        states,
		provider:      provider,
		authenticator: authenticator,
	}
}

func (f *fixture) createUser(t *testing.T, email, passwordHash string, status auth.UserStatus) *auth.User {
	t.Helper()

	user := &auth.User{
		Email:       &email,
		DisplayName: "Existing",
		Role:        auth.RoleInfluencer,
		Status:      status,
	}
	if passwordHash != "" {
		user.PasswordHash = &passwordHash
	}
	created, err := f.repo.Users().Create(context.Background(), user)
	require.NoError(t, err)
	return created
}

func (f *fixture) attach(t *testing.T, user *auth.User, provider, providerUserID string) {
	t.Helper()
	err := f.identities.Attach(context.Background(), f.db, &auth.UserIdentity{
		UserID:         user.ID,
		Provider:       provider,
		ProviderUserID: providerUserID,
	})
	require.NoError(t, err)
}

func profileFor(provider, id, email string) *OAuthProfile {
	return &OAuthProfile{Provider: provider, ProviderUserID: id, Email: email, EmailVerified: email != "", Name: "Someone"}
}

// cookieContext records cookies written by the cookie transport
type cookieContext struct {
	*router.MockContext
	mu      sync.Mutex
	written []*router.Cookie
}

func newCookieContext() *cookieContext {
	return &cookieContext{MockContext: router.NewMockContext()}
}

func (c *cookieContext) Cookie(cookie *router.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, cookie)
}
