package providers

import (
	"net/http"

	"github.com/inflowhq/go-auth"
	"github.com/inflowhq/go-auth/social"
	"github.com/inflowhq/go-auth/social/providers/google"
	"github.com/inflowhq/go-auth/social/providers/kakao"
	"github.com/inflowhq/go-auth/social/providers/naver"
)

// FromOptions builds the provider registry once at startup. Providers
// missing a client id or secret are left out.
func FromOptions(opts *auth.Options, client *http.Client) *social.ProviderRegistry {
	configured := opts.GetProviders()

	list := []social.Provider{}
	if p, ok := configured[social.ProviderGoogle]; ok && p.Enabled() {
		list = append(list, google.New(google.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  p.RedirectURL,
			Scopes:       p.Scopes,
			HTTPClient:   client,
		}))
	}
	if p, ok := configured[social.ProviderKakao]; ok && p.Enabled() {
		list = append(list, kakao.New(kakao.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  p.RedirectURL,
			Scopes:       p.Scopes,
			HTTPClient:   client,
		}))
	}
	if p, ok := configured[social.ProviderNaver]; ok && p.Enabled() {
		list = append(list, naver.New(naver.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  p.RedirectURL,
			HTTPClient:   client,
		}))
	}

	return social.NewProviderRegistry(opts.OAuthEnabled, list...)
}
