package social

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/inflowhq/go-auth"
)

// HTTPController handles OAuth login and account linking routes.
type HTTPController struct {
	authenticator *Authenticator
	integrator    *Integrator
	transport     *auth.CookieTransport
	protect       router.MiddlewareFunc
	config        HTTPConfig
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// SuccessRedirect is where the browser lands after a callback (default: "/")
	SuccessRedirect string

	// FailureRedirect receives ?error= on failed callbacks (default: "/login")
	FailureRedirect string

	Logger auth.Logger
	Debug  bool
}

// HTTPConfigFromOptions reads the redirect targets from the service options
func HTTPConfigFromOptions(opts *auth.Options) HTTPConfig {
	return HTTPConfig{
		SuccessRedirect: opts.OAuthRedirectSuccess,
		FailureRedirect: opts.OAuthRedirectFailure,
		Debug:           opts.IsDevelopment(),
	}
}

// NewHTTPController creates a new controller. protect guards the routes
// that need a signed in user.
func NewHTTPController(authenticator *Authenticator, integrator *Integrator, transport *auth.CookieTransport, protect router.MiddlewareFunc, cfg HTTPConfig) *HTTPController {
	if cfg.SuccessRedirect == "" {
		cfg.SuccessRedirect = "/"
	}
	if cfg.FailureRedirect == "" {
		cfg.FailureRedirect = "/login"
	}
	if cfg.Logger == nil {
		cfg.Logger = auth.DefaultLogger()
	}

	return &HTTPController{
		authenticator: authenticator,
		integrator:    integrator,
		transport:     transport,
		protect:       protect,
		config:        cfg,
	}
}

// RegisterRoutes registers the OAuth routes. Static paths go first so they
// are not captured by /auth/:provider, and the password auth routes must be
// registered before this controller for the same reason.
func (c *HTTPController) RegisterRoutes(r auth.RouteRegistrar) {
	r.Get("/auth/providers", c.ListProviders).SetName("oauth.providers")
	r.Get("/auth/link", c.LinkedAccounts, c.protect).SetName("oauth.link.list")
	r.Get("/auth/link/:provider/callback", c.LinkCallback).SetName("oauth.link.callback")
	r.Get("/auth/link/:provider", c.BeginLink, c.protect).SetName("oauth.link.begin")
	r.Delete("/auth/link/:provider", c.Unlink, c.protect).SetName("oauth.link.delete")
	r.Get("/auth/:provider/callback", c.Callback).SetName("oauth.callback")
	r.Get("/auth/:provider", c.BeginAuth).SetName("oauth.begin")
}

// ListProviders returns available providers.
func (c *HTTPController) ListProviders(ctx router.Context) error {
	return ctx.JSON(router.StatusOK, map[string]any{
		"success":   true,
		"providers": c.authenticator.Providers(),
	})
}

// BeginAuth starts the OAuth login flow.
func (c *HTTPController) BeginAuth(ctx router.Context) error {
	redirect, err := c.authenticator.BeginAuth(ctx.Context(), ctx.Param("provider"), ActionLogin, uuid.Nil,
		WithRedirectURL(c.safeRedirect(ctx.Query("redirect"))),
		WithRequestedRole(ctx.Query("role")),
	)
	if err != nil {
		return c.fail(ctx, "begin", err)
	}
	return ctx.Redirect(redirect.URL, http.StatusTemporaryRedirect)
}

// BeginLink starts the flow that links a provider to the signed in user.
func (c *HTTPController) BeginLink(ctx router.Context) error {
	principal, ok := auth.GetRouterPrincipal(ctx)
	if !ok {
		return auth.RenderError(ctx, auth.ErrUnauthenticated)
	}

	redirect, err := c.authenticator.BeginAuth(ctx.Context(), ctx.Param("provider"), ActionLink, principal.UserID)
	if err != nil {
		return c.fail(ctx, "begin-link", err)
	}
	return ctx.Redirect(redirect.URL, http.StatusTemporaryRedirect)
}

// Callback handles the provider redirect. A link state is honored here
// too since providers usually allow a single redirect URL.
func (c *HTTPController) Callback(ctx router.Context) error {
	return c.callback(ctx, ActionLogin)
}

// LinkCallback handles the provider redirect of link flows.
func (c *HTTPController) LinkCallback(ctx router.Context) error {
	return c.callback(ctx, ActionLink)
}

func (c *HTTPController) callback(ctx router.Context, action string) error {
	providerName := ctx.Param("provider")
	stateToken := ctx.Query("state")

	if state, err := c.authenticator.DecodeState(stateToken); err == nil {
		action = state.Action
	}

	if errCode := ctx.Query("error"); errCode != "" {
		c.config.Logger.Info("oauth provider returned error", "provider", providerName, "error", errCode, "description", ctx.Query("error_description"))
		return c.failureRedirect(ctx, action, providerName, errCode)
	}

	result, err := c.authenticator.CompleteAuth(ctx.Context(), providerName, ctx.Query("code"), stateToken, auth.ClientInfoFromContext(ctx))
	if err != nil {
		if c.config.Debug {
			c.config.Logger.Debug("oauth callback failed", "provider", providerName, "action", action, "details", print.MaybePrettyJSON(auth.NewErrorResponse(err)))
		}
		return c.failureRedirect(ctx, action, providerName, errorCode(err))
	}

	if result.Action == ActionLink {
		target := appendQueryParam(c.config.SuccessRedirect, "action", ActionLink)
		target = appendQueryParam(target, "provider", result.Provider)
		target = appendQueryParam(target, "success", "true")
		return ctx.Redirect(target, http.StatusTemporaryRedirect)
	}

	c.transport.SetTokens(ctx, result.Tokens)

	target := result.Redirect
	if target == "" {
		target = c.config.SuccessRedirect
	}
	if result.IsNewUser {
		target = appendQueryParam(target, "new_user", "true")
	}
	return ctx.Redirect(target, http.StatusTemporaryRedirect)
}

// Unlink removes a provider from the signed in user.
func (c *HTTPController) Unlink(ctx router.Context) error {
	principal, ok := auth.GetRouterPrincipal(ctx)
	if !ok {
		return auth.RenderError(ctx, auth.ErrUnauthenticated)
	}

	provider := strings.ToLower(ctx.Param("provider"))
	if err := c.integrator.Unlink(ctx.Context(), principal.UserID, provider); err != nil {
		return c.fail(ctx, "unlink", err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("%s account has been successfully unlinked", provider),
	})
}

// LinkedAccounts returns the linked providers of the signed in user.
func (c *HTTPController) LinkedAccounts(ctx router.Context) error {
	principal, ok := auth.GetRouterPrincipal(ctx)
	if !ok {
		return auth.RenderError(ctx, auth.ErrUnauthenticated)
	}

	view, err := c.integrator.LinkedAccounts(ctx.Context(), principal.UserID)
	if err != nil {
		return c.fail(ctx, "linked-accounts", err)
	}
	return ctx.JSON(router.StatusOK, view)
}

func (c *HTTPController) failureRedirect(ctx router.Context, action, provider, code string) error {
	target := appendQueryParam(c.config.FailureRedirect, "error", code)
	if action == ActionLink {
		target = appendQueryParam(target, "action", ActionLink)
		target = appendQueryParam(target, "provider", provider)
	}
	return ctx.Redirect(target, http.StatusTemporaryRedirect)
}

func (c *HTTPController) fail(ctx router.Context, action string, err error) error {
	if c.config.Debug {
		c.config.Logger.Debug("oauth request failed", "action", action, "details", print.MaybePrettyJSON(auth.NewErrorResponse(err)))
	}
	return auth.RenderError(ctx, err)
}

// safeRedirect only keeps same site relative paths
func (c *HTTPController) safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return ""
	}
	return target
}

func errorCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" && richErr.Category != goerrors.CategoryInternal {
		return strings.ToLower(richErr.TextCode)
	}
	return "oauth_failed"
}

func appendQueryParam(rawURL, key, value string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err == nil {
		query := parsed.Query()
		query.Set(key, value)
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
