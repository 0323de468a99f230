package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTypeRefresh is the typ claim carried by refresh tokens
const TokenTypeRefresh = "refresh"

// AccessClaims is the payload of a short lived access token
type AccessClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	UserRole  string `json:"role,omitempty"`
	TokenType string `json:"typ,omitempty"`
}

// UserID parses the subject, returning uuid.Nil when it is not a uuid
func (c *AccessClaims) UserID() uuid.UUID {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Role returns the global role
func (c *AccessClaims) Role() UserRole {
	return UserRole(c.UserRole)
}

// HasRole checks if the token carries one of the given roles
func (c *AccessClaims) HasRole(roles ...UserRole) bool {
	for _, r := range roles {
		if UserRole(c.UserRole) == r {
			return true
		}
	}
	return false
}

// Expires returns the expiration time
func (c *AccessClaims) Expires() time.Time {
	return numericTime(c.ExpiresAt)
}

// IssuedAt returns the issued at time
func (c *AccessClaims) IssuedAt() time.Time {
	return numericTime(c.RegisteredClaims.IssuedAt)
}

// Principal returns the identity carried by the token
func (c *AccessClaims) Principal() Principal {
	return Principal{
		UserID: c.UserID(),
		Email:  c.Email,
		Role:   c.UserRole,
	}
}

// RefreshClaims is the payload of a refresh token, the jti keys the
// server side session
type RefreshClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"typ"`
}

// JTI returns the token id
func (c *RefreshClaims) JTI() string {
	return c.ID
}

// UserID parses the subject, returning uuid.Nil when it is not a uuid
func (c *RefreshClaims) UserID() uuid.UUID {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Expires returns the expiration time
func (c *RefreshClaims) Expires() time.Time {
	return numericTime(c.ExpiresAt)
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
