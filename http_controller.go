package auth

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteRegistrar is the part of router.Router the controllers need
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

type AuthControllerRoutes struct {
	Signup    string
	Login     string
	Refresh   string
	Logout    string
	LogoutAll string
	Me        string
	Sessions  string
	Password  string
}

// AuthController serves the password auth and session endpoints
type AuthController struct {
	Debug     bool
	Logger    Logger
	Service   *AuthService
	Transport *CookieTransport
	Routes    *AuthControllerRoutes
	protect   router.MiddlewareFunc
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(service *AuthService, transport *CookieTransport, protect router.MiddlewareFunc, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:    defLogger{},
		Service:   service,
		Transport: transport,
		protect:   protect,
		Routes: &AuthControllerRoutes{
			Signup:    "/auth/signup",
			Login:     "/auth/login",
			Refresh:   "/auth/refresh",
			Logout:    "/auth/logout",
			LogoutAll: "/auth/logout-all",
			Me:        "/auth/me",
			Sessions:  "/auth/sessions",
			Password:  "/auth/password",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	return c
}

// RegisterRoutes mounts the auth endpoints
func (a *AuthController) RegisterRoutes(r RouteRegistrar) {
	r.Post(a.Routes.Signup, a.Signup).SetName("auth.signup")
	r.Post(a.Routes.Login, a.Login).SetName("auth.login")
	r.Post(a.Routes.Refresh, a.Refresh).SetName("auth.refresh")
	r.Post(a.Routes.Logout, a.Logout).SetName("auth.logout")
	r.Post(a.Routes.LogoutAll, a.LogoutAll, a.protect).SetName("auth.logout-all")
	r.Get(a.Routes.Me, a.Me, a.protect).SetName("auth.me")
	r.Get(a.Routes.Sessions, a.Sessions, a.protect).SetName("auth.sessions")
	r.Post(a.Routes.Password, a.SetPassword, a.protect).SetName("auth.password")
}

// LoginRequest is the login payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// SetPasswordRequest is the set-password payload
type SetPasswordRequest struct {
	Password string `form:"password" json:"password"`
}

func (a *AuthController) Signup(ctx router.Context) error {
	payload := new(SignupInput)
	if err := ctx.Bind(payload); err != nil {
		return RenderError(ctx, NewInvalidInputError("invalid request body", nil))
	}

	result, err := a.Service.Signup(ctx.Context(), *payload, ClientInfoFromContext(ctx))
	if err != nil {
		return a.fail(ctx, "signup", err)
	}

	a.Transport.SetTokens(ctx, result.Tokens)

	return ctx.JSON(http.StatusCreated, map[string]any{
		"success": true,
		"user":    result.User,
	})
}

func (a *AuthController) Login(ctx router.Context) error {
	payload := new(LoginRequest)
	if err := ctx.Bind(payload); err != nil {
		return RenderError(ctx, NewInvalidInputError("invalid request body", nil))
	}

	if err := payload.Validate(); err != nil {
		return RenderError(ctx, validationError(err))
	}

	result, err := a.Service.Login(ctx.Context(), payload.Email, payload.Password, ClientInfoFromContext(ctx))
	if err != nil {
		return a.fail(ctx, "login", err)
	}

	a.Transport.SetTokens(ctx, result.Tokens)

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
		"user":    result.User,
	})
}

func (a *AuthController) Refresh(ctx router.Context) error {
	result, err := a.Service.Refresh(ctx.Context(), a.Transport.RefreshToken(ctx), ClientInfoFromContext(ctx))
	if err != nil {
		a.Transport.Clear(ctx)
		return a.fail(ctx, "refresh", err)
	}

	a.Transport.SetTokens(ctx, result.Tokens)

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

func (a *AuthController) Logout(ctx router.Context) error {
	a.Service.Logout(ctx.Context(), a.Transport.RefreshToken(ctx))
	a.Transport.Clear(ctx)

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

func (a *AuthController) LogoutAll(ctx router.Context) error {
	principal, ok := GetRouterPrincipal(ctx)
	if !ok {
		return RenderError(ctx, ErrUnauthenticated)
	}

	count, err := a.Service.LogoutAll(ctx.Context(), principal.UserID)
	if err != nil {
		return a.fail(ctx, "logout-all", err)
	}

	a.Transport.Clear(ctx)

	return ctx.JSON(router.StatusOK, map[string]any{
		"success":      true,
		"sessionCount": count,
	})
}

func (a *AuthController) Me(ctx router.Context) error {
	principal, ok := GetRouterPrincipal(ctx)
	if !ok {
		return RenderError(ctx, ErrUnauthenticated)
	}

	view, err := a.Service.Me(ctx.Context(), principal.UserID)
	if err != nil {
		return a.fail(ctx, "me", err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success":        true,
		"user":           view.User,
		"linkedAccounts": view.LinkedAccounts,
		"hasPassword":    view.HasPassword,
		"authMethods":    view.AuthMethods,
	})
}

func (a *AuthController) Sessions(ctx router.Context) error {
	principal, ok := GetRouterPrincipal(ctx)
	if !ok {
		return RenderError(ctx, ErrUnauthenticated)
	}

	count, err := a.Service.SessionStatus(ctx.Context(), principal.UserID)
	if err != nil {
		return a.fail(ctx, "sessions", err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success":            true,
		"activeSessionCount": count,
	})
}

func (a *AuthController) SetPassword(ctx router.Context) error {
	principal, ok := GetRouterPrincipal(ctx)
	if !ok {
		return RenderError(ctx, ErrUnauthenticated)
	}

	payload := new(SetPasswordRequest)
	if err := ctx.Bind(payload); err != nil {
		return RenderError(ctx, NewInvalidInputError("invalid request body", nil))
	}

	if err := a.Service.SetPassword(ctx.Context(), principal.UserID, payload.Password); err != nil {
		return a.fail(ctx, "set-password", err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success": true,
	})
}

func (a *AuthController) fail(ctx router.Context, action string, err error) error {
	if a.Debug {
		a.Logger.Debug("auth request failed", "action", action, "details", print.MaybePrettyJSON(NewErrorResponse(err)))
	}
	return RenderError(ctx, err)
}

// ClientInfoFromContext reads the user agent and ip of the request
func ClientInfoFromContext(ctx router.Context) ClientInfo {
	return ClientInfo{
		UserAgent: ctx.GetString("User-Agent", ""),
		IP:        ctx.IP(),
	}
}
