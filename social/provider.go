package social

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
)

// Supported provider names
const (
	ProviderGoogle = "google"
	ProviderKakao  = "kakao"
	ProviderNaver  = "naver"
)

// KnownProviders lists every provider an identity can be linked to
var KnownProviders = []string{ProviderGoogle, ProviderKakao, ProviderNaver}

// IsKnownProvider reports whether name is one of KnownProviders
func IsKnownProvider(name string) bool {
	for _, p := range KnownProviders {
		if p == name {
			return true
		}
	}
	return false
}

// Provider defines the contract for OAuth2 login providers.
type Provider interface {
	// Name returns the provider identifier (e.g., "google", "kakao").
	Name() string

	// AuthCodeURL returns the URL to redirect users for authorization.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// UserInfo fetches the user's profile using the access token.
	UserInfo(ctx context.Context, token *oauth2.Token) (*OAuthProfile, error)
}

// OAuthProfile is the normalized user profile returned by a provider
type OAuthProfile struct {
	Provider       string `json:"provider"`
	ProviderUserID string `json:"providerUserId"`
	Email          string `json:"email,omitempty"`
	EmailVerified  bool   `json:"emailVerified"`
	Name           string `json:"name,omitempty"`
	AvatarURL      string `json:"avatarUrl,omitempty"`

	Raw map[string]any `json:"-"`
}

// UsernameHint returns the local part of the email, or the name when the
// provider did not share an email.
func (p *OAuthProfile) UsernameHint() string {
	if p == nil {
		return ""
	}
	if i := strings.Index(p.Email, "@"); i > 0 {
		return p.Email[:i]
	}
	return p.Name
}
