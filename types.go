package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger takes a message followed by key/value pairs
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAccessTTL() time.Duration
	GetRefreshTTL() time.Duration
	GetMaxSessionsPerUser() int
	GetCookieSecure() bool
	GetCookieDomain() string
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// UserLookup is the narrow view of the credential store the session registry needs
type UserLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
}

// ClientInfo carries request metadata recorded with a refresh session
type ClientInfo struct {
	UserAgent string
	IP        string
}

// TokenPair is the transient result of issuing tokens, never persisted as a whole
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	JTI              string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// DefaultLogger returns the stdout logger used when none is configured
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] AUTH " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] AUTH " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] AUTH " + format(msg, args...))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] AUTH " + format(msg, args...))
}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return newline(b.String())
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
