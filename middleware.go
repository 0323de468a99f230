package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-router"
	"github.com/inflowhq/go-auth/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use auth helpers directly.
type ValidationListener = jwtware.ValidationListener

// RequireAuthOption customizes the RequireAuth middleware
type RequireAuthOption func(*jwtware.Config)

// WithValidationListeners runs listeners after the access token was verified
func WithValidationListeners(listeners ...ValidationListener) RequireAuthOption {
	return func(cfg *jwtware.Config) {
		cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
	}
}

// WithAuthErrorHandler overrides the 401 JSON response
func WithAuthErrorHandler(handler router.ErrorHandler) RequireAuthOption {
	return func(cfg *jwtware.Config) {
		if handler != nil {
			cfg.ErrorHandler = handler
		}
	}
}

// RequireAuth verifies the access token from the access_token cookie, or an
// Authorization Bearer header, and stores the Principal for later handlers.
func RequireAuth(issuer *TokenIssuer, opts ...RequireAuthOption) router.MiddlewareFunc {
	cfg := jwtware.Config{
		TokenLookup:    "cookie:" + AccessTokenCookie + ",header:" + router.HeaderAuthorization,
		AuthScheme:     "Bearer",
		ContextKey:     PrincipalLocalsKey,
		TokenValidator: accessTokenValidator{issuer: issuer},
		LocalsValue: func(claims jwt.Claims) any {
			return principalFromClaims(claims)
		},
		ContextEnricher: ContextEnricherAdapter,
		ErrorHandler: func(ctx router.Context, err error) error {
			return RenderError(ctx, unauthenticated(err))
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return jwtware.New(cfg)
}

// RequireRole rejects principals whose role is not listed. It must run
// after RequireAuth.
func RequireRole(roles ...UserRole) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			principal, ok := GetRouterPrincipal(ctx)
			if !ok {
				return RenderError(ctx, ErrUnauthenticated)
			}
			if !principal.HasRole(roles...) {
				return RenderError(ctx, ErrForbiddenRole)
			}
			return next(ctx)
		}
	}
}

// Chain composes middleware, the first one runs outermost
func Chain(mws ...router.MiddlewareFunc) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		for i := len(mws) - 1; i >= 0; i-- {
			if mws[i] != nil {
				next = mws[i](next)
			}
		}
		return next
	}
}

// ContextEnricherAdapter stores the Principal of verified access claims in
// the standard context.
func ContextEnricherAdapter(c context.Context, claims jwt.Claims) context.Context {
	access, ok := claims.(*AccessClaims)
	if !ok {
		return c
	}
	return WithPrincipal(c, access.Principal())
}

type accessTokenValidator struct {
	issuer *TokenIssuer
}

func (v accessTokenValidator) Validate(token string) (jwt.Claims, error) {
	claims, err := v.issuer.VerifyAccess(token)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func principalFromClaims(claims jwt.Claims) Principal {
	if access, ok := claims.(*AccessClaims); ok {
		return access.Principal()
	}
	return Principal{}
}

func unauthenticated(err error) error {
	if IsTokenExpiredError(err) {
		return ErrTokenExpired
	}
	return ErrUnauthenticated
}
