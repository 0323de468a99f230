package social

import (
	"context"

	"github.com/google/uuid"
	"github.com/inflowhq/go-auth"
)

// SessionIssuer issues the local token pair once a user is resolved
type SessionIssuer interface {
	IssueSession(ctx context.Context, user *auth.User, client auth.ClientInfo) (*auth.TokenPair, error)
}

// Authenticator orchestrates OAuth login and link flows.
type Authenticator struct {
	providers  *ProviderRegistry
	states     StateManager
	integrator *Integrator
	sessions   SessionIssuer
	logger     auth.Logger
	metrics    auth.Metrics
}

// AuthenticatorOption configures the authenticator.
type AuthenticatorOption func(*Authenticator)

func WithAuthenticatorLogger(logger auth.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithAuthenticatorMetrics(m auth.Metrics) AuthenticatorOption {
	return func(a *Authenticator) {
		a.metrics = auth.NormalizeMetrics(m)
	}
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(providers *ProviderRegistry, states StateManager, integrator *Integrator, sessions SessionIssuer, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		providers:  providers,
		states:     states,
		integrator: integrator,
		sessions:   sessions,
		logger:     auth.DefaultLogger(),
		metrics:    auth.NopMetrics{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// AuthRedirect contains the provider URL the user is sent to.
type AuthRedirect struct {
	URL      string
	State    string
	Provider string
}

// CompleteResult is the outcome of a callback
type CompleteResult struct {
	User      *auth.User
	Tokens    *auth.TokenPair
	IsNewUser bool
	Linked    bool
	Provider  string
	Action    string
	Redirect  string
}

// BeginAuthOption configures BeginAuth.
type BeginAuthOption func(*beginAuthConfig)

type beginAuthConfig struct {
	redirect string
	role     string
}

// WithRedirectURL stores where to send the user after a successful login
func WithRedirectURL(url string) BeginAuthOption {
	return func(c *beginAuthConfig) {
		c.redirect = url
	}
}

// WithRequestedRole stores the role for users created by this flow
func WithRequestedRole(role string) BeginAuthOption {
	return func(c *beginAuthConfig) {
		c.role = role
	}
}

// BeginAuth builds the provider redirect. Link flows carry the user id
// of the current session in the signed state.
func (a *Authenticator) BeginAuth(ctx context.Context, providerName, action string, linkUserID uuid.UUID, opts ...BeginAuthOption) (*AuthRedirect, error) {
	provider, err := a.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	cfg := &beginAuthConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	state := &OAuthState{
		Provider: provider.Name(),
		Action:   action,
		Redirect: cfg.redirect,
		Role:     cfg.role,
	}
	switch action {
	case ActionLogin, "":
		state.Action = ActionLogin
	case ActionLink:
		if linkUserID == uuid.Nil {
			return nil, auth.ErrUnauthenticated
		}
		state.LinkUserID = linkUserID.String()
	default:
		return nil, auth.NewInvalidInputError("unknown oauth action", map[string]any{"action": action})
	}

	token, err := a.states.Encode(state)
	if err != nil {
		return nil, err
	}

	return &AuthRedirect{
		URL:      provider.AuthCodeURL(token),
		State:    token,
		Provider: provider.Name(),
	}, nil
}

// DecodeState exposes the verified state so callers can route failures
func (a *Authenticator) DecodeState(token string) (*OAuthState, error) {
	return a.states.Decode(token)
}

// CompleteAuth finishes the OAuth flow after callback. Login flows get a
// fresh token pair, link flows only attach the identity.
func (a *Authenticator) CompleteAuth(ctx context.Context, providerName, code, stateToken string, client auth.ClientInfo) (*CompleteResult, error) {
	label := providerName
	if !IsKnownProvider(label) {
		label = "unknown"
	}

	result, err := a.completeAuth(ctx, providerName, code, stateToken, client)
	if err != nil {
		a.metrics.RecordOAuth(label, auth.ResultFailure)
		return nil, err
	}
	a.metrics.RecordOAuth(label, auth.ResultSuccess)
	return result, nil
}

func (a *Authenticator) completeAuth(ctx context.Context, providerName, code, stateToken string, client auth.ClientInfo) (*CompleteResult, error) {
	provider, err := a.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	state, err := a.states.Decode(stateToken)
	if err != nil {
		return nil, err
	}
	if state.Provider != provider.Name() {
		a.logger.Warn("oauth state provider mismatch", "state_provider", state.Provider, "provider", provider.Name())
		return nil, ErrInvalidState
	}

	if code == "" {
		return nil, auth.NewInvalidInputError("authorization code is required", nil)
	}

	token, err := provider.Exchange(ctx, code)
	if err != nil {
		a.logger.Warn("oauth token exchange failed", "provider", provider.Name(), "error", err)
		return nil, wrapProviderError(ErrTokenExchangeFailed, provider.Name(), "exchange", err)
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		a.logger.Warn("oauth user info failed", "provider", provider.Name(), "error", err)
		return nil, wrapProviderError(ErrUserInfoFailed, provider.Name(), "user_info", err)
	}

	out := &CompleteResult{
		Provider: provider.Name(),
		Action:   state.Action,
		Redirect: state.Redirect,
	}

	if state.Action == ActionLink {
		userID, err := uuid.Parse(state.LinkUserID)
		if err != nil {
			return nil, ErrInvalidState
		}
		res, err := a.integrator.IntegrateUser(ctx, profile, true, userID)
		if err != nil {
			return nil, err
		}
		out.User = res.User
		out.Linked = res.Linked
		return out, nil
	}

	var opts []IntegrateOption
	if role, ok := auth.ParseRole(state.Role); ok {
		opts = append(opts, WithSignupRole(role))
	}

	res, err := a.integrator.IntegrateUser(ctx, profile, false, uuid.Nil, opts...)
	if err != nil {
		return nil, err
	}

	tokens, err := a.sessions.IssueSession(ctx, res.User, client)
	if err != nil {
		return nil, a.integrator.internal(err, "failed to issue session")
	}

	a.logger.Info("oauth login", "user_id", res.User.ID, "provider", provider.Name(), "new_user", res.IsNewUser)

	out.User = res.User
	out.Tokens = tokens
	out.IsNewUser = res.IsNewUser
	out.Linked = res.Linked
	return out, nil
}

// Providers lists the configured provider names
func (a *Authenticator) Providers() []string {
	return a.providers.Names()
}
