package auth

import (
	"context"
	stderrors "errors"
	"net/url"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SignupInput is a local signup request
type SignupInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	WebsiteURL  string `json:"websiteUrl"`
}

// Validate will run validation rules
func (in SignupInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(6, 50)),
		validation.Field(&in.Username, validation.Length(2, 50)),
		validation.Field(&in.DisplayName, validation.Required, validation.Length(2, 50)),
		validation.Field(&in.Role, validation.Required, validation.By(selfServiceRole)),
		validation.Field(&in.WebsiteURL, validation.By(absoluteHTTPURL)),
	)
}

var (
	errRoleNotSelfService = stderrors.New("must be INFLUENCER or ADVERTISER")
	errNotAbsoluteURL     = stderrors.New("must be an absolute http(s) URL")
)

func selfServiceRole(value any) error {
	s, _ := value.(string)
	role, ok := ParseRole(s)
	if !ok || !role.IsSelfService() {
		return errRoleNotSelfService
	}
	return nil
}

func absoluteHTTPURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errNotAbsoluteURL
	}
	return nil
}

// AuthResult is the outcome of a successful signup, login or refresh
type AuthResult struct {
	User   *User
	Tokens *TokenPair
}

// LinkedAccount is the public view of a UserIdentity
type LinkedAccount struct {
	Provider    string    `json:"provider"`
	Email       string    `json:"email,omitempty"`
	LinkedAt    time.Time `json:"linkedAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// AuthMethods summarizes how a user can sign in
type AuthMethods struct {
	Password  bool     `json:"password"`
	OAuth     bool     `json:"oauth"`
	Providers []string `json:"providers"`
}

// AccountView is returned by Me
type AccountView struct {
	User           *User           `json:"user"`
	LinkedAccounts []LinkedAccount `json:"linkedAccounts"`
	HasPassword    bool            `json:"hasPassword"`
	AuthMethods    AuthMethods     `json:"authMethods"`
}

// ToLinkedAccounts maps identities to their public view
func ToLinkedAccounts(identities []*UserIdentity) []LinkedAccount {
	out := make([]LinkedAccount, 0, len(identities))
	for _, identity := range identities {
		if identity == nil {
			continue
		}
		out = append(out, LinkedAccount{
			Provider:    identity.Provider,
			Email:       identity.ProviderEmail,
			LinkedAt:    identity.LinkedAt,
			LastUpdated: identity.UpdatedAt,
		})
	}
	return out
}

// AuthService orchestrates signup, login, refresh and logout
type AuthService struct {
	repo     RepositoryManager
	issuer   *TokenIssuer
	sessions *SessionRegistry
	hasher   PasswordAuthenticator
	states   UserStateMachine
	activity ActivitySink
	logger   Logger
	metrics  Metrics
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption customizes the AuthService
type ServiceOption func(*AuthService)

func WithServiceLogger(logger Logger) ServiceOption {
	return func(s *AuthService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithServiceMetrics(m Metrics) ServiceOption {
	return func(s *AuthService) {
		s.metrics = NormalizeMetrics(m)
	}
}

func WithActivitySink(sink ActivitySink) ServiceOption {
	return func(s *AuthService) {
		s.activity = normalizeActivitySink(sink)
	}
}

func WithPasswordAuthenticator(hasher PasswordAuthenticator) ServiceOption {
	return func(s *AuthService) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewAuthService(repo RepositoryManager, issuer *TokenIssuer, sessions *SessionRegistry, opts ...ServiceOption) *AuthService {
	s := &AuthService{
		repo:     repo,
		issuer:   issuer,
		sessions: sessions,
		hasher:   BcryptHasher{},
		activity: noopActivitySink{},
		logger:   defLogger{},
		metrics:  NopMetrics{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.states = NewUserStateMachine(repo.Users(),
		WithStateMachineLogger(s.logger),
		WithStateMachineActivitySink(s.activity),
		WithStateMachineClock(s.now),
		WithStateMachineHook(s.revokeUnlessActive),
	)
	return s
}

// Signup creates a local account and opens a session. An email that
// already belongs to any account fails with ErrEmailTaken.
func (s *AuthService) Signup(ctx context.Context, in SignupInput, client ClientInfo) (*AuthResult, error) {
	if err := in.Validate(); err != nil {
		return nil, validationError(err)
	}

	role, _ := ParseRole(in.Role)
	email := NormalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var user *User
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		users := s.repo.Users()

		if _, err := users.FindByEmailTx(ctx, tx, email); err == nil {
			return ErrEmailTaken
		} else if !IsNotFound(err) {
			return err
		}

		if username == "" {
			if username, err = users.AvailableUsernameTx(ctx, tx, getUsername("", email)); err != nil {
				return err
			}
		}

		user, err = users.CreateTx(ctx, tx, &User{
			Email:        &email,
			Username:     username,
			PasswordHash: &hash,
			DisplayName:  strings.TrimSpace(in.DisplayName),
			Role:         role,
			Status:       UserStatusActive,
			WebsiteURL:   in.WebsiteURL,
		})
		return err
	})
	if err != nil {
		return nil, s.internal(err, "signup failed")
	}

	s.ensureProfile(ctx, user)

	pair, err := s.IssueSession(ctx, user, client)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSignup()
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventSignup,
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"role": string(user.Role)},
	})

	return &AuthResult{User: user, Tokens: pair}, nil
}

// Login authenticates with email and password. Unknown email, passwordless
// account and wrong password all fail with the same error.
func (s *AuthService) Login(ctx context.Context, email, password string, client ClientInfo) (*AuthResult, error) {
	user, err := s.repo.Users().FindByEmail(ctx, email)
	if err != nil {
		if !IsNotFound(err) {
			return nil, s.internal(err, "login failed")
		}
		s.burnPasswordCheck(password)
		return nil, s.loginFailed(ctx, "", "unknown email")
	}

	if !user.HasPassword() {
		s.burnPasswordCheck(password)
		return nil, s.loginFailed(ctx, user.ID.String(), "no password set")
	}

	if err := s.hasher.ComparePasswordAndHash(password, derefString(user.PasswordHash)); err != nil {
		return nil, s.loginFailed(ctx, user.ID.String(), "password mismatch")
	}

	if !user.IsActive() {
		s.metrics.RecordLogin(ResultInactive)
		s.logger.Info("login rejected for inactive account", "user_id", user.ID, "status", user.Status)
		return nil, ErrAccountInactive
	}

	now := s.now().UTC()
	if err := s.repo.Users().TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", "user_id", user.ID, "error", err)
	} else {
		user.LastLoginAt = &now
	}

	pair, err := s.IssueSession(ctx, user, client)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLogin(ResultSuccess)
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    user.ID.String(),
	})

	return &AuthResult{User: user, Tokens: pair}, nil
}

// Refresh rotates the refresh token. Every failure surfaces as
// ErrInvalidRefreshToken, the reason is only logged.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, s.refreshFailed(ctx, "", "missing refresh token", nil)
	}

	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, s.refreshFailed(ctx, "", "refresh token verification failed", err)
	}

	uaHash := HashClientValue(client.UserAgent)
	ipHash := HashClientValue(client.IP)

	session, err := s.sessions.Validate(ctx, claims.JTI(), uaHash, ipHash)
	if err != nil {
		return nil, s.refreshFailed(ctx, claims.Subject, "refresh session rejected", err)
	}

	if session.UserID != claims.UserID() {
		_ = s.sessions.Revoke(ctx, session.JTI)
		return nil, s.refreshFailed(ctx, claims.Subject, "refresh session owner mismatch", nil)
	}

	user, err := s.repo.Users().FindByID(ctx, session.UserID)
	if err != nil {
		return nil, s.refreshFailed(ctx, claims.Subject, "refresh user lookup failed", err)
	}

	if !user.IsActive() {
		return nil, s.refreshFailed(ctx, claims.Subject, "refresh user inactive", nil)
	}

	pair, err := s.issuer.IssuePair(user)
	if err != nil {
		return nil, s.refreshFailed(ctx, claims.Subject, "token issue failed", err)
	}

	_, err = s.sessions.Rotate(ctx, claims.JTI(), NewSessionParams{
		UserID:        user.ID,
		JTI:           pair.JTI,
		ExpiresAt:     pair.RefreshExpiresAt,
		UserAgentHash: uaHash,
		IPHash:        ipHash,
	})
	if err != nil {
		return nil, s.refreshFailed(ctx, claims.Subject, "refresh session already rotated", err)
	}

	s.metrics.RecordRefresh(ResultSuccess)
	return &AuthResult{User: user, Tokens: pair}, nil
}

// Logout revokes the session named by the refresh token. It never fails.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	claims := s.issuer.Decode(refreshToken)
	if claims == nil || claims.JTI() == "" {
		return
	}
	if err := s.sessions.Revoke(ctx, claims.JTI()); err != nil {
		s.logger.Warn("logout revoke failed", "jti", claims.JTI(), "error", err)
	}
}

// LogoutAll revokes every session of the user
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventLogoutAll,
		UserID:    userID.String(),
		Metadata:  map[string]any{"sessions": n},
	})
	return n, nil
}

// Me returns the account view of the user
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*AccountView, error) {
	user, err := s.repo.Users().FindByID(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, s.internal(err, "failed to load user")
	}

	identities, err := s.repo.Users().ListIdentities(ctx, userID)
	if err != nil {
		return nil, s.internal(err, "failed to load linked accounts")
	}

	linked := ToLinkedAccounts(identities)
	providers := make([]string, 0, len(linked))
	for _, account := range linked {
		providers = append(providers, account.Provider)
	}

	return &AccountView{
		User:           user,
		LinkedAccounts: linked,
		HasPassword:    user.HasPassword(),
		AuthMethods: AuthMethods{
			Password:  user.HasPassword(),
			OAuth:     len(providers) > 0,
			Providers: providers,
		},
	}, nil
}

// SetPassword adds a password to an account that only signs in through a
// social provider, so it can later unlink its last identity.
func (s *AuthService) SetPassword(ctx context.Context, userID uuid.UUID, password string) error {
	err := validation.Validate(password, validation.Required, validation.Length(6, 50))
	if err != nil {
		return NewInvalidInputError(err.Error(), map[string]any{"password": err.Error()})
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return err
	}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		users := s.repo.Users()
		user, err := users.FindByIDTx(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !user.IsActive() {
			return ErrAccountInactive
		}
		if user.HasPassword() {
			return ErrPasswordAlreadySet
		}
		return users.SetPasswordHashTx(ctx, tx, userID, hash)
	})
	if err != nil {
		return s.internal(err, "failed to set password")
	}

	s.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordSet,
		UserID:    userID.String(),
	})
	return nil
}

// SessionStatus returns the number of active sessions of the user
func (s *AuthService) SessionStatus(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := s.sessions.CountActive(ctx, userID)
	if err != nil {
		return 0, s.internal(err, "failed to count sessions")
	}
	return n, nil
}

// IssueSession issues a token pair for the user and whitelists its refresh token
func (s *AuthService) IssueSession(ctx context.Context, user *User, client ClientInfo) (*TokenPair, error) {
	pair, err := s.issuer.IssuePair(user)
	if err != nil {
		return nil, err
	}

	_, err = s.sessions.Create(ctx, user.ID, pair.JTI, pair.RefreshExpiresAt,
		HashClientValue(client.UserAgent), HashClientValue(client.IP))
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// ChangeStatus moves the user through its lifecycle. Leaving ACTIVE
// revokes every session of the user.
func (s *AuthService) ChangeStatus(ctx context.Context, actor ActorRef, userID uuid.UUID, status UserStatus, opts ...TransitionOption) (*User, error) {
	user, err := s.repo.Users().FindByID(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, s.internal(err, "failed to load user")
	}
	return s.states.Transition(ctx, actor, user, status, opts...)
}

func (s *AuthService) ensureProfile(ctx context.Context, user *User) {
	if err := s.repo.Profiles().EnsureForUser(ctx, user); err != nil {
		s.logger.Warn("failed to create role profile", "user_id", user.ID, "role", user.Role, "error", err)
	}
}

func (s *AuthService) revokeUnlessActive(ctx context.Context, tc TransitionContext) error {
	if tc.To == UserStatusActive {
		return nil
	}
	_, err := s.sessions.RevokeAll(ctx, tc.User.ID)
	return err
}

func (s *AuthService) loginFailed(ctx context.Context, userID, reason string) error {
	s.metrics.RecordLogin(ResultFailure)
	s.logger.Info("login failed", "reason", reason, "user_id", userID)
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		UserID:    userID,
		Metadata:  map[string]any{"reason": reason},
	})
	return ErrInvalidCredentials
}

func (s *AuthService) refreshFailed(ctx context.Context, subject, reason string, cause error) error {
	s.metrics.RecordRefresh(ResultFailure)
	if cause != nil {
		s.logger.Info("refresh rejected", "reason", reason, "sub", subject, "error", cause)
	} else {
		s.logger.Info("refresh rejected", "reason", reason, "sub", subject)
	}
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventRefreshRejected,
		UserID:    subject,
		Metadata:  map[string]any{"reason": reason},
	})
	return ErrInvalidRefreshToken
}

// burnPasswordCheck runs a bcrypt comparison so missing accounts take as
// long to reject as wrong passwords.
func (s *AuthService) burnPasswordCheck(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.HashPassword("not-a-real-password")
	})
	if s.dummyHash != "" {
		_ = s.hasher.ComparePasswordAndHash(password, s.dummyHash)
	}
}

func (s *AuthService) record(ctx context.Context, event ActivityEvent) {
	RecordActivity(ctx, s.activity, s.logger, s.now(), event)
}

// internal passes domain errors through and wraps anything else
func (s *AuthService) internal(err error, msg string) error {
	if IsNotFound(err) {
		return ErrUserNotFound
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Category != errors.CategoryInternal {
		return err
	}
	s.logger.Error(msg, "error", err)
	return errors.Wrap(err, errors.CategoryInternal, msg).WithCode(errors.CodeInternal)
}

func validationError(err error) error {
	fields := map[string]any{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			fields[field] = ferr.Error()
		}
	}
	return NewInvalidInputError(err.Error(), fields)
}
