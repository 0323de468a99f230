package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// ProfileMapper turns a provider user info payload into an OAuthProfile
type ProfileMapper func(body []byte) (*OAuthProfile, error)

// OAuth2Provider implements Provider on top of an oauth2.Config and a
// JSON user info endpoint. Google, Kakao and Naver only differ in their
// endpoints and profile payloads.
type OAuth2Provider struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
	mapProfile  ProfileMapper
	httpClient  *http.Client
	authOptions []oauth2.AuthCodeOption
}

// OAuth2Option customizes an OAuth2Provider
type OAuth2Option func(*OAuth2Provider)

// WithHTTPClient sets the client used for token exchange and user info calls
func WithHTTPClient(client *http.Client) OAuth2Option {
	return func(p *OAuth2Provider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithAuthCodeOptions appends extra parameters to the authorization URL
func WithAuthCodeOptions(opts ...oauth2.AuthCodeOption) OAuth2Option {
	return func(p *OAuth2Provider) {
		p.authOptions = append(p.authOptions, opts...)
	}
}

// NewOAuth2Provider creates a provider
func NewOAuth2Provider(name string, config *oauth2.Config, userInfoURL string, mapper ProfileMapper, opts ...OAuth2Option) *OAuth2Provider {
	p := &OAuth2Provider{
		name:        name,
		config:      config,
		userInfoURL: userInfoURL,
		mapProfile:  mapper,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

var _ Provider = (*OAuth2Provider)(nil)

func (p *OAuth2Provider) Name() string {
	return p.name
}

// Config returns the underlying oauth2 configuration
func (p *OAuth2Provider) Config() *oauth2.Config {
	return p.config
}

func (p *OAuth2Provider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, p.authOptions...)
}

func (p *OAuth2Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return nil, newProviderError(p.name, "token exchange", 0, err)
	}
	if token.AccessToken == "" {
		return nil, newProviderError(p.name, "token exchange", 0, fmt.Errorf("empty access token"))
	}
	return token, nil
}

func (p *OAuth2Provider) UserInfo(ctx context.Context, token *oauth2.Token) (*OAuthProfile, error) {
	client := p.config.Client(p.clientContext(ctx), token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, newProviderError(p.name, "user info", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, newProviderError(p.name, "user info", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		perr := newProviderError(p.name, "user info", resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
		var raw map[string]any
		if json.Unmarshal(body, &raw) == nil {
			perr.Raw = raw
		}
		return nil, perr
	}

	profile, err := p.mapProfile(body)
	if err != nil {
		return nil, newProviderError(p.name, "user info", resp.StatusCode, err)
	}
	profile.Provider = p.name
	if profile.ProviderUserID == "" {
		return nil, newProviderError(p.name, "user info", resp.StatusCode, fmt.Errorf("profile without user id"))
	}
	return profile, nil
}

func (p *OAuth2Provider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}
