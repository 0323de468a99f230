package kakao

import (
	"net/http"

	"github.com/inflowhq/go-auth/social"
	"golang.org/x/oauth2"
)

const (
	defaultAuthURL     = "https://kauth.kakao.com/oauth/authorize"
	defaultTokenURL    = "https://kauth.kakao.com/oauth/token"
	defaultUserInfoURL = "https://kapi.kakao.com/v2/user/me"
)

// Config holds Kakao OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default Kakao consent items.
func DefaultScopes() []string {
	return []string{"profile_nickname", "profile_image", "account_email"}
}

// New creates a new Kakao provider. Kakao expects the client secret in
// the token request body.
func New(cfg Config) *social.OAuth2Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return social.NewOAuth2Provider(social.ProviderKakao, config, cfg.UserInfoURL, mapProfile,
		social.WithHTTPClient(cfg.HTTPClient),
	)
}
