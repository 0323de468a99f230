package social

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/inflowhq/go-auth"
	"github.com/uptrace/bun"
)

// IntegrationResult describes what IntegrateUser did
type IntegrationResult struct {
	User      *auth.User
	Identity  *auth.UserIdentity
	IsNewUser bool
	// Linked is set when a new identity row was attached
	Linked bool
}

// LinkedAccountsView lists the authentication methods of a user
type LinkedAccountsView struct {
	Identities       []auth.LinkedAccount `json:"identities"`
	HasPassword      bool                 `json:"hasPassword"`
	PrimaryEmail     string               `json:"primaryEmail,omitempty"`
	TotalAuthMethods int                  `json:"totalAuthMethods"`
}

// Integrator maps provider identities to local users
type Integrator struct {
	repo        auth.RepositoryManager
	identities  IdentityRepository
	logger      auth.Logger
	activity    auth.ActivitySink
	now         func() time.Time
	defaultRole auth.UserRole
}

// IntegratorOption customizes the integrator
type IntegratorOption func(*Integrator)

func WithIntegratorLogger(logger auth.Logger) IntegratorOption {
	return func(i *Integrator) {
		if logger != nil {
			i.logger = logger
		}
	}
}

func WithIntegratorActivity(sink auth.ActivitySink) IntegratorOption {
	return func(i *Integrator) {
		i.activity = sink
	}
}

func WithIntegratorClock(now func() time.Time) IntegratorOption {
	return func(i *Integrator) {
		if now != nil {
			i.now = now
		}
	}
}

// WithDefaultSignupRole sets the role of users created through OAuth
// when the flow did not request one.
func WithDefaultSignupRole(role auth.UserRole) IntegratorOption {
	return func(i *Integrator) {
		if role.IsSelfService() {
			i.defaultRole = role
		}
	}
}

// NewIntegrator creates an integrator
func NewIntegrator(repo auth.RepositoryManager, identities IdentityRepository, opts ...IntegratorOption) *Integrator {
	i := &Integrator{
		repo:        repo,
		identities:  identities,
		logger:      auth.DefaultLogger(),
		now:         time.Now,
		defaultRole: auth.RoleInfluencer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// IntegrateOption tunes a single IntegrateUser call
type IntegrateOption func(*integrateConfig)

type integrateConfig struct {
	role auth.UserRole
}

// WithSignupRole sets the role used if the call creates a user
func WithSignupRole(role auth.UserRole) IntegrateOption {
	return func(c *integrateConfig) {
		c.role = role
	}
}

// IntegrateUser resolves the local user for a provider profile.
//
// Outside link mode the identity, then the email, decide which user signs
// in, and a passwordless user is created when neither matches. In link mode
// the identity is attached to existingUserID. The whole flow runs in one
// transaction.
func (i *Integrator) IntegrateUser(ctx context.Context, profile *OAuthProfile, linkMode bool, existingUserID uuid.UUID, opts ...IntegrateOption) (*IntegrationResult, error) {
	if profile == nil || profile.ProviderUserID == "" {
		return nil, auth.NewInvalidInputError("provider profile is incomplete", nil)
	}
	if !IsKnownProvider(profile.Provider) {
		return nil, ErrUnsupportedProvider
	}

	cfg := integrateConfig{role: i.defaultRole}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if !cfg.role.IsSelfService() {
		cfg.role = i.defaultRole
	}

	email := auth.NormalizeEmail(profile.Email)

	var result *IntegrationResult
	err := i.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if linkMode {
			result, err = i.linkTx(ctx, tx, profile, email, existingUserID)
		} else {
			result, err = i.loginTx(ctx, tx, profile, email, cfg.role)
		}
		return err
	})
	if err != nil {
		return nil, i.internal(err, "failed to integrate oauth profile")
	}

	if result.IsNewUser {
		if err := i.repo.Profiles().EnsureForUser(ctx, result.User); err != nil {
			i.logger.Warn("failed to create role profile", "user_id", result.User.ID, "role", result.User.Role, "error", err)
		}
	}

	event := auth.ActivityEventSocialLogin
	if result.Linked {
		event = auth.ActivityEventSocialLinked
	}
	i.record(ctx, auth.ActivityEvent{
		EventType: event,
		UserID:    result.User.ID.String(),
		Metadata: map[string]any{
			"provider": profile.Provider,
			"new_user": result.IsNewUser,
		},
	})

	return result, nil
}

func (i *Integrator) linkTx(ctx context.Context, tx bun.IDB, profile *OAuthProfile, email string, userID uuid.UUID) (*IntegrationResult, error) {
	user, err := i.repo.Users().FindByIDTx(ctx, tx, userID)
	if err != nil {
		if auth.IsNotFound(err) {
			return nil, auth.ErrUserNotFound
		}
		return nil, err
	}

	identity, err := i.identities.FindByProviderUser(ctx, tx, profile.Provider, profile.ProviderUserID)
	if err != nil {
		return nil, err
	}
	if identity != nil {
		if identity.UserID != user.ID {
			return nil, ErrIdentityLinkedElsewhere
		}
		if err := i.identities.Touch(ctx, tx, identity, email, i.now()); err != nil {
			return nil, err
		}
		return &IntegrationResult{User: user, Identity: identity}, nil
	}

	return i.attachTx(ctx, tx, user, profile, email)
}

func (i *Integrator) loginTx(ctx context.Context, tx bun.IDB, profile *OAuthProfile, email string, role auth.UserRole) (*IntegrationResult, error) {
	users := i.repo.Users()

	identity, err := i.identities.FindByProviderUser(ctx, tx, profile.Provider, profile.ProviderUserID)
	if err != nil {
		return nil, err
	}
	if identity != nil {
		user, err := users.FindByIDTx(ctx, tx, identity.UserID)
		if err != nil {
			return nil, err
		}
		if !user.IsActive() {
			return nil, auth.ErrAccountInactive
		}
		if err := i.identities.Touch(ctx, tx, identity, email, i.now()); err != nil {
			return nil, err
		}
		return &IntegrationResult{User: user, Identity: identity}, nil
	}

	if email == "" {
		return nil, ErrMissingEmail
	}

	user, err := users.FindByEmailTx(ctx, tx, email)
	switch {
	case err == nil:
		if !profile.EmailVerified {
			return nil, ErrEmailNotVerified
		}
		if !user.IsActive() {
			return nil, auth.ErrAccountInactive
		}
		return i.attachTx(ctx, tx, user, profile, email)
	case !auth.IsNotFound(err):
		return nil, err
	}

	username, err := users.AvailableUsernameTx(ctx, tx, profile.UsernameHint())
	if err != nil {
		return nil, err
	}

	displayName := strings.TrimSpace(profile.Name)
	if displayName == "" {
		displayName = username
	}

	user, err = users.CreateTx(ctx, tx, &auth.User{
		Email:       &email,
		Username:    username,
		DisplayName: displayName,
		Role:        role,
		Status:      auth.UserStatusActive,
	})
	if err != nil {
		return nil, err
	}

	result, err := i.attachTx(ctx, tx, user, profile, email)
	if err != nil {
		return nil, err
	}
	result.IsNewUser = true
	return result, nil
}

func (i *Integrator) attachTx(ctx context.Context, tx bun.IDB, user *auth.User, profile *OAuthProfile, email string) (*IntegrationResult, error) {
	existing, err := i.identities.FindByUserAndProvider(ctx, tx, user.ID, profile.Provider)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrProviderAlreadyLinked
	}

	identity := &auth.UserIdentity{
		UserID:         user.ID,
		Provider:       profile.Provider,
		ProviderUserID: profile.ProviderUserID,
		ProviderEmail:  email,
	}
	if err := i.identities.Attach(ctx, tx, identity); err != nil {
		return nil, err
	}

	i.logger.Info("oauth identity linked", "user_id", user.ID, "provider", profile.Provider)
	return &IntegrationResult{User: user, Identity: identity, Linked: true}, nil
}

// Unlink removes the provider identity of the user. The last remaining
// authentication method cannot be removed.
func (i *Integrator) Unlink(ctx context.Context, userID uuid.UUID, provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !IsKnownProvider(provider) {
		return ErrUnsupportedProvider
	}

	err := i.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := i.repo.Users().FindByIDTx(ctx, tx, userID)
		if err != nil {
			if auth.IsNotFound(err) {
				return auth.ErrUserNotFound
			}
			return err
		}

		count, err := i.identities.CountByUser(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		if totalAuthMethods(count, user) <= 1 {
			return ErrLastAuthMethod
		}

		deleted, err := i.identities.DeleteByUserAndProvider(ctx, tx, user.ID, provider)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return ErrProviderNotLinked
		}
		return nil
	})
	if err != nil {
		return i.internal(err, "failed to unlink provider")
	}

	i.logger.Info("oauth identity unlinked", "user_id", userID, "provider", provider)
	i.record(ctx, auth.ActivityEvent{
		EventType: auth.ActivityEventSocialUnlinked,
		UserID:    userID.String(),
		Metadata:  map[string]any{"provider": provider},
	})
	return nil
}

// LinkedAccounts lists identities newest first along with the password state
func (i *Integrator) LinkedAccounts(ctx context.Context, userID uuid.UUID) (*LinkedAccountsView, error) {
	var view *LinkedAccountsView
	err := i.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := i.repo.Users().FindByIDTx(ctx, tx, userID)
		if err != nil {
			if auth.IsNotFound(err) {
				return auth.ErrUserNotFound
			}
			return err
		}

		identities, err := i.identities.ListByUser(ctx, tx, userID)
		if err != nil {
			return err
		}

		view = &LinkedAccountsView{
			Identities:       auth.ToLinkedAccounts(identities),
			HasPassword:      user.HasPassword(),
			PrimaryEmail:     user.EmailAddress(),
			TotalAuthMethods: totalAuthMethods(len(identities), user),
		}
		return nil
	})
	if err != nil {
		return nil, i.internal(err, "failed to list linked accounts")
	}
	return view, nil
}

func totalAuthMethods(identities int, user *auth.User) int {
	if user.HasPassword() {
		return identities + 1
	}
	return identities
}

func (i *Integrator) record(ctx context.Context, event auth.ActivityEvent) {
	auth.RecordActivity(ctx, i.activity, i.logger, i.now(), event)
}

// internal passes domain errors through and wraps anything else
func (i *Integrator) internal(err error, msg string) error {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Category != errors.CategoryInternal {
		return err
	}
	i.logger.Error(msg, "error", err)
	return errors.Wrap(err, errors.CategoryInternal, msg).WithCode(errors.CodeInternal)
}
