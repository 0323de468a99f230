package auth

import (
	"time"

	"github.com/goliatone/go-router"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// CookieWriter is the part of router.Context the cookie transport needs
type CookieWriter interface {
	Cookie(cookie *router.Cookie)
	Cookies(key string, defaultValue ...string) string
}

// CookieOptions configures the token cookies
type CookieOptions struct {
	Secure        bool
	Domain        string
	AccessPath    string
	RefreshPath   string
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
}

// CookieTransport is the only component that reads or writes token cookies
type CookieTransport struct {
	opts CookieOptions
	now  func() time.Time
}

func NewCookieTransport(opts CookieOptions) *CookieTransport {
	if opts.AccessPath == "" {
		opts.AccessPath = "/"
	}
	if opts.RefreshPath == "" {
		opts.RefreshPath = "/auth"
	}
	if opts.AccessMaxAge <= 0 {
		opts.AccessMaxAge = DefaultAccessTTL
	}
	if opts.RefreshMaxAge <= 0 {
		opts.RefreshMaxAge = DefaultRefreshTTL
	}
	return &CookieTransport{opts: opts, now: time.Now}
}

// CookieOptionsFromConfig derives cookie options from the auth config
func CookieOptionsFromConfig(cfg Config) CookieOptions {
	return CookieOptions{
		Secure:        cfg.GetCookieSecure(),
		Domain:        cfg.GetCookieDomain(),
		AccessMaxAge:  cfg.GetAccessTTL(),
		RefreshMaxAge: cfg.GetRefreshTTL(),
	}
}

// SetTokens writes both token cookies
func (t *CookieTransport) SetTokens(ctx CookieWriter, pair *TokenPair) {
	if pair == nil {
		return
	}
	now := t.now()
	ctx.Cookie(t.cookie(AccessTokenCookie, pair.AccessToken, t.opts.AccessPath, "Lax", t.opts.AccessMaxAge, now))
	ctx.Cookie(t.cookie(RefreshTokenCookie, pair.RefreshToken, t.opts.RefreshPath, "Strict", t.opts.RefreshMaxAge, now))
}

// Clear expires both token cookies on their own paths
func (t *CookieTransport) Clear(ctx CookieWriter) {
	for _, c := range []*router.Cookie{
		t.expired(AccessTokenCookie, t.opts.AccessPath, "Lax"),
		t.expired(RefreshTokenCookie, t.opts.RefreshPath, "Strict"),
	} {
		ctx.Cookie(c)
	}
}

func (t *CookieTransport) AccessToken(ctx CookieWriter) string {
	return ctx.Cookies(AccessTokenCookie)
}

func (t *CookieTransport) RefreshToken(ctx CookieWriter) string {
	return ctx.Cookies(RefreshTokenCookie)
}

func (t *CookieTransport) cookie(name, value, path, sameSite string, maxAge time.Duration, now time.Time) *router.Cookie {
	return &router.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   t.opts.Domain,
		MaxAge:   int(maxAge / time.Second),
		Expires:  now.Add(maxAge),
		Secure:   t.opts.Secure,
		HTTPOnly: true,
		SameSite: sameSite,
	}
}

func (t *CookieTransport) expired(name, path, sameSite string) *router.Cookie {
	return &router.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   t.opts.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   t.opts.Secure,
		HTTPOnly: true,
		SameSite: sameSite,
	}
}
