package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the account lifecycle status
type UserStatus string

const (
	UserStatusPending   UserStatus = "PENDING"
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
	UserStatusDeleted   UserStatus = "DELETED"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Email         *string    `bun:"email,unique" json:"email,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username"`
	PasswordHash  *string    `bun:"password_hash" json:"-"`
	DisplayName   string     `bun:"display_name,notnull" json:"displayName"`
	Role          UserRole   `bun:"role,notnull" json:"role"`
	Status        UserStatus `bun:"status,notnull" json:"status"`
	WebsiteURL    string     `bun:"website_url" json:"websiteUrl,omitempty"`
	LastLoginAt   *time.Time `bun:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull" json:"updatedAt"`
}

// HasPassword reports whether the user can authenticate with a password
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != nil && *u.PasswordHash != ""
}

// EmailAddress returns the email or an empty string for OAuth-only accounts
func (u *User) EmailAddress() string {
	if u == nil || u.Email == nil {
		return ""
	}
	return *u.Email
}

// IsActive reports whether the user can authenticate at all
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

// UserIdentity links a User to one external provider account
type UserIdentity struct {
	bun.BaseModel  `bun:"table:user_identities,alias:uid"`
	ID             uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	UserID         uuid.UUID `bun:"user_id,notnull,type:uuid" json:"userId"`
	Provider       string    `bun:"provider,notnull" json:"provider"`
	ProviderUserID string    `bun:"provider_user_id,notnull" json:"-"`
	ProviderEmail  string    `bun:"provider_email" json:"email,omitempty"`
	LinkedAt       time.Time `bun:"linked_at,notnull" json:"linkedAt"`
	UpdatedAt      time.Time `bun:"updated_at,notnull" json:"lastUpdated"`
}

// RefreshSession is a whitelist entry keyed by the refresh token jti.
// Sessions are never updated in place.
type RefreshSession struct {
	bun.BaseModel `bun:"table:refresh_sessions,alias:rs"`
	JTI           string    `bun:"jti,pk" json:"jti"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid" json:"userId"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expiresAt"`
	UserAgentHash *string   `bun:"user_agent_hash" json:"-"`
	IPHash        *string   `bun:"ip_hash" json:"-"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// IsExpired reports whether the session expiry is at or before now
func (s *RefreshSession) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// NewSessionParams describes a session to be inserted
type NewSessionParams struct {
	UserID        uuid.UUID
	JTI           string
	ExpiresAt     time.Time
	UserAgentHash string
	IPHash        string
	CreatedAt     time.Time
}

func (p NewSessionParams) toModel(now time.Time) *RefreshSession {
	if !p.CreatedAt.IsZero() {
		now = p.CreatedAt
	}
	return &RefreshSession{
		JTI:           p.JTI,
		UserID:        p.UserID,
		ExpiresAt:     p.ExpiresAt.UTC(),
		UserAgentHash: optionalString(p.UserAgentHash),
		IPHash:        optionalString(p.IPHash),
		CreatedAt:     now.UTC(),
	}
}

// InfluencerProfile is created alongside INFLUENCER accounts
type InfluencerProfile struct {
	bun.BaseModel `bun:"table:influencer_profiles,alias:ifp"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid" json:"userId"`
	DisplayName   string    `bun:"display_name,notnull" json:"displayName"`
	Categories    string    `bun:"categories,notnull" json:"categories"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// AdvertiserCompany is created alongside ADVERTISER accounts
type AdvertiserCompany struct {
	bun.BaseModel  `bun:"table:advertiser_companies,alias:adc"`
	UserID         uuid.UUID `bun:"user_id,pk,type:uuid" json:"userId"`
	CompanyName    string    `bun:"company_name,notnull" json:"companyName"`
	BusinessNumber string    `bun:"business_number,notnull" json:"businessNumber"`
	CreatedAt      time.Time `bun:"created_at,notnull" json:"createdAt"`
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
