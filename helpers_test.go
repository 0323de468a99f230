package auth_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-router"
	"github.com/inflowhq/go-auth"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteCreateUsers = `CREATE TABLE users (
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
);`
	sqliteCreateUserIdentities = `CREATE TABLE user_identities (
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
);`
	sqliteCreateRefreshSessions = `CREATE TABLE refresh_sessions (
    jti TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    user_agent_hash TEXT,
    ip_hash TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`
	sqliteCreateInfluencerProfiles = `CREATE TABLE influencer_profiles (
    user_id TEXT NOT NULL PRIMARY KEY,
    display_name TEXT NOT NULL,
    categories TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`
	sqliteCreateAdvertiserCompanies = `CREATE TABLE advertiser_companies (
    user_id TEXT NOT NULL PRIMARY KEY,
    company_name TEXT NOT NULL,
    business_number TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`
)

const testSecret = "test-secret-0123456789"

func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	for _, stmt := range []string{
		sqliteCreateUsers,
		sqliteCreateUserIdentities,
		sqliteCreateRefreshSessions,
		sqliteCreateInfluencerProfiles,
		sqliteCreateAdvertiserCompanies,
	} {
		_, err = bunDB.Exec(stmt)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = bunDB.Close()
	})

	return bunDB
}

type staticConfig struct {
	signingKey  string
	issuer      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	maxSessions int
	secure      bool
	domain      string
}

func newStaticConfig() staticConfig {
	return staticConfig{
		signingKey:  testSecret,
		issuer:      "inflow-test",
		accessTTL:   15 * time.Minute,
		refreshTTL:  14 * 24 * time.Hour,
		maxSessions: 5,
		secure:      true,
	}
}

func (c staticConfig) GetSigningKey() string        { return c.signingKey }
func (c staticConfig) GetIssuer() string            { return c.issuer }
func (c staticConfig) GetAccessTTL() time.Duration  { return c.accessTTL }
func (c staticConfig) GetRefreshTTL() time.Duration { return c.refreshTTL }
func (c staticConfig) GetMaxSessionsPerUser() int   { return c.maxSessions }
func (c staticConfig) GetCookieSecure() bool        { return c.secure }
func (c staticConfig) GetCookieDomain() string      { return c.domain }

// testClock is a settable clock shared by every component of a fixture
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
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

// recordingLogger keeps every message so tests can assert on warnings
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

func (l *recordingLogger) log(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.log("debug", msg, args...) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.log("info", msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args...) }
func (l *recordingLogger) Error(msg string, args ...any) { l.log("error", msg, args...) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

// fastHasher keeps service tests quick, bcrypt itself is covered in bcrypt_test.go
type fastHasher struct{}

func (fastHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", auth.ErrNoEmptyString
	}
	return "plain:" + password, nil
}

func (fastHasher) ComparePasswordAndHash(password, hash string) error {
	if hash == "" || hash != "plain:"+password {
		return auth.ErrMismatchedHashAndPassword
	}
	return nil
}

type fixture struct {
	db       *bun.DB
	clock    *testClock
	logger   *recordingLogger
	repo     auth.RepositoryManager
	issuer   *auth.TokenIssuer
	registry *auth.SessionRegistry
	service  *auth.AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupDB(t)
	clock := newTestClock()
	logger := &recordingLogger{}
	cfg := newStaticConfig()

	repo := auth.NewRepositoryManager(db)
	issuer := auth.NewTokenIssuer(cfg, auth.WithTokenClock(clock.Now), auth.WithTokenLogger(logger))
	registry := auth.NewSessionRegistry(repo.Sessions(), repo.Users(),
		auth.WithRegistryClock(clock.Now),
		auth.WithRegistryLogger(logger),
		auth.WithMaxSessionsPerUser(cfg.GetMaxSessionsPerUser()),
	)
	service := auth.NewAuthService(repo, issuer, registry,
		auth.WithServiceClock(clock.Now),
		auth.WithServiceLogger(logger),
		auth.WithPasswordAuthenticator(fastHasher{}),
	)

	return &fixture{
		db:       db,
		clock:    clock,
		logger:   logger,
		repo:     repo,
		issuer:   issuer,
		registry: registry,
		service:  service,
	}
}

func (f *fixture) createUser(t *testing.T, email, password string, status auth.UserStatus) *auth.User {
	t.Helper()

	user := &auth.User{
		Email:       &email,
		DisplayName: "Test User",
		Role:        auth.RoleInfluencer,
		Status:      status,
	}
	if password != "" {
		hash, err := fastHasher{}.HashPassword(password)
		require.NoError(t, err)
		user.PasswordHash = &hash
	}

	created, err := f.repo.Users().Create(context.Background(), user)
	require.NoError(t, err)
	return created
}

// cookieContext serves request cookies from a map and records written ones
type cookieContext struct {
	*router.MockContext
	mu      sync.Mutex
	cookies map[string]string
	written []*router.Cookie
	body    []byte
}

func newCookieContext() *cookieContext {
	return &cookieContext{
		MockContext: router.NewMockContext(),
		cookies:     map[string]string{},
	}
}

func (c *cookieContext) Cookies(key string, defaultValue ...string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.cookies[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (c *cookieContext) Cookie(cookie *router.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, cookie)
}

// Bind decodes the JSON request body set by the test
func (c *cookieContext) Bind(v any) error {
	if c.body == nil {
		return errors.New("empty request body")
	}
	return json.Unmarshal(c.body, v)
}

func (c *cookieContext) writtenCookie(name string) *router.Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.written) - 1; i >= 0; i-- {
		if c.written[i].Name == name {
			return c.written[i]
		}
	}
	return nil
}
