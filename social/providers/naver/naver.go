package naver

import (
	"net/http"

	"github.com/inflowhq/go-auth/social"
	"golang.org/x/oauth2"
)

const (
	defaultAuthURL     = "https://nid.naver.com/oauth2.0/authorize"
	defaultTokenURL    = "https://nid.naver.com/oauth2.0/token"
	defaultUserInfoURL = "https://openapi.naver.com/v1/nid/me"
)

// Config holds Naver OAuth configuration. Naver takes its consent items
// from the developer console so there are no scopes.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

// New creates a new Naver provider.
func New(cfg Config) *social.OAuth2Provider {
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
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return social.NewOAuth2Provider(social.ProviderNaver, config, cfg.UserInfoURL, mapProfile,
		social.WithHTTPClient(cfg.HTTPClient),
	)
}
