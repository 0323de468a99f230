package social

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/inflowhq/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrateUserCreatesPasswordlessUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.integrator.IntegrateUser(ctx, profileFor(ProviderGoogle, "g-1", "New.Person@Example.com"), false, uuid.Nil)
	require.NoError(t, err)

	assert.True(t, res.IsNewUser)
	assert.True(t, res.Linked)
	assert.Equal(t, "new.person@example.com", res.User.EmailAddress())
	assert.Equal(t, "new.person", res.User.Username)
	assert.Equal(t, "Someone", res.User.DisplayName)
	assert.Equal(t, auth.RoleInfluencer, res.User.Role)
	assert.Equal(t, auth.UserStatusActive, res.User.Status)
	assert.False(t, res.User.HasPassword())

	identity, err := f.identities.FindByProviderUser(ctx, f.db, ProviderGoogle, "g-1")
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, res.User.ID, identity.UserID)
	assert.Equal(t, "new.person@example.com", identity.ProviderEmail)

	profile := &auth.InfluencerProfile{}
	err = f.db.NewSelect().Model(profile).Where("user_id = ?", res.User.ID).Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Someone", profile.DisplayName)
}

func TestIntegrateUserRequestedRole(t *testing.T) {
	f := newFixture(t)

	res, err := f.integrator.IntegrateUser(context.Background(), profileFor(ProviderNaver, "n-1", "brand@example.com"), false, uuid.Nil,
		WithSignupRole(auth.RoleAdvertiser))
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdvertiser, res.User.Role)

	admin, err := f.integrator.IntegrateUser(context.Background(), profileFor(ProviderNaver, "n-2", "sneaky@example.com"), false, uuid.Nil,
		WithSignupRole(auth.RoleAdmin))
	require.NoError(t, err)
	assert.Equal(t, auth.RoleInfluencer, admin.User.Role, "admin is never self service")
}

func TestIntegrateUserReturningIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.integrator.IntegrateUser(ctx, profileFor(ProviderKakao, "k-1", "kim@example.com"), false, uuid.Nil)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	second, err := f.integrator.IntegrateUser(ctx, profileFor(ProviderKakao, "k-1", "kim.new@example.com"), false, uuid.Nil)
	require.NoError(t, err)

	assert.Equal(t, first.User.ID, second.User.ID)
	assert.False(t, second.IsNewUser)
	assert.False(t, second.Linked)

	identity, err := f.identities.FindByProviderUser(ctx, f.db, ProviderKakao, "k-1")
	require.NoError(t, err)
	assert.Equal(t, "kim.new@example.com", identity.ProviderEmail)
	assert.True(t, identity.UpdatedAt.After(identity.LinkedAt))
}

func TestIntegrateUserMatchesByEmail(t *testing.T) {
	f := newFixture(t)
	existing := f.createUser(t, "jane@example.com", "hash", auth.UserStatusActive)

	res, err := f.integrator.IntegrateUser(context.Background(), profileFor(ProviderGoogle, "g-7", "JANE@example.com"), false, uuid.Nil)
	require.NoError(t, err)

	assert.Equal(t, existing.ID, res.User.ID)
	assert.False(t, res.IsNewUser)
	assert.True(t, res.Linked)
	assert.True(t, res.User.HasPassword())
}

func TestIntegrateUserUnverifiedEmailDoesNotMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := f.createUser(t, "jane@example.com", "hash", auth.UserStatusActive)

	profile := profileFor(ProviderKakao, "k-unverified", "jane@example.com")
	profile.EmailVerified = false

	res, err := f.integrator.IntegrateUser(ctx, profile, false, uuid.Nil)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrEmailNotVerified)
	assert.Equal(t, 409, auth.HTTPStatus(err))

	count, err := f.repo.Users().CountIdentities(ctx, existing.ID)
	require.NoError(t, err)
	assert.Zero(t, count, "no identity attached to the existing account")

	identity, err := f.identities.FindByProviderUser(ctx, f.db, ProviderKakao, "k-unverified")
	require.NoError(t, err)
	assert.Nil(t, identity)

	fresh := profileFor(ProviderKakao, "k-fresh", "fresh@example.com")
	fresh.EmailVerified = false
	created, err := f.integrator.IntegrateUser(ctx, fresh, false, uuid.Nil)
	require.NoError(t, err)
	assert.True(t, created.IsNewUser, "an unclaimed email still creates an account")
}

func TestIntegrateUserRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	suspended := f.createUser(t, "suspended@example.com", "hash", auth.UserStatusSuspended)
	f.attach(t, suspended, ProviderKakao, "k-suspended")
	f.createUser(t, "pending@example.com", "", auth.UserStatusPending)

	linked := f.createUser(t, "linked@example.com", "hash", auth.UserStatusActive)
	f.attach(t, linked, ProviderGoogle, "g-other")

	tests := []struct {
		name    string
		profile *OAuthProfile
		want    error
	}{
		{name: "inactive by identity", profile: profileFor(ProviderKakao, "k-suspended", ""), want: auth.ErrAccountInactive},
		{name: "inactive by email", profile: profileFor(ProviderGoogle, "g-pending", "pending@example.com"), want: auth.ErrAccountInactive},
		{name: "no email", profile: profileFor(ProviderGoogle, "g-anon", ""), want: ErrMissingEmail},
		{name: "provider already linked", profile: profileFor(ProviderGoogle, "g-second", "linked@example.com"), want: ErrProviderAlreadyLinked},
		{name: "unknown provider", profile: profileFor("github", "gh-1", "a@example.com"), want: ErrUnsupportedProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.integrator.IntegrateUser(ctx, tt.profile, false, uuid.Nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	count, err := f.repo.Users().CountIdentities(ctx, linked.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "a rejected flow leaves nothing behind")
}

func TestIntegrateUserLinkMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := f.createUser(t, "owner@example.com", "hash", auth.UserStatusActive)
	other := f.createUser(t, "other@example.com", "hash", auth.UserStatusActive)
	f.attach(t, other, ProviderNaver, "n-taken")

	t.Run("attaches to the session user", func(t *testing.T) {
		res, err := f.integrator.IntegrateUser(ctx, profileFor(ProviderGoogle, "g-owner", "different@gmail.com"), true, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, owner.ID, res.User.ID)
		assert.True(t, res.Linked)
		assert.False(t, res.IsNewUser)
	})

	t.Run("relinking the same identity is a no-op", func(t *testing.T) {
		res, err := f.integrator.IntegrateUser(ctx, profileFor(ProviderGoogle, "g-owner", ""), true, owner.ID)
		require.NoError(t, err)
		assert.False(t, res.Linked)
	})

	t.Run("identity owned by someone else", func(t *testing.T) {
		_, err := f.integrator.IntegrateUser(ctx, profileFor(ProviderNaver, "n-taken", ""), true, owner.ID)
		assert.ErrorIs(t, err, ErrIdentityLinkedElsewhere)
	})

	t.Run("second account of the same provider", func(t *testing.T) {
		_, err := f.integrator.IntegrateUser(ctx, profileFor(ProviderGoogle, "g-owner-2", ""), true, owner.ID)
		assert.ErrorIs(t, err, ErrProviderAlreadyLinked)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := f.integrator.IntegrateUser(ctx, profileFor(ProviderKakao, "k-x", ""), true, uuid.New())
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})
}

func TestUnlink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	withPassword := f.createUser(t, "pw@example.com", "hash", auth.UserStatusActive)
	f.attach(t, withPassword, ProviderGoogle, "g-pw")

	oauthOnly := f.createUser(t, "oauth@example.com", "", auth.UserStatusActive)
	f.attach(t, oauthOnly, ProviderGoogle, "g-oauth")
	f.attach(t, oauthOnly, ProviderKakao, "k-oauth")

	passwordOnly := f.createUser(t, "only@example.com", "hash", auth.UserStatusActive)

	assert.ErrorIs(t, f.integrator.Unlink(ctx, withPassword.ID, "github"), ErrUnsupportedProvider)
	assert.ErrorIs(t, f.integrator.Unlink(ctx, uuid.New(), ProviderGoogle), auth.ErrUserNotFound)
	assert.ErrorIs(t, f.integrator.Unlink(ctx, passwordOnly.ID, ProviderGoogle), ErrLastAuthMethod)
	assert.ErrorIs(t, f.integrator.Unlink(ctx, oauthOnly.ID, ProviderNaver), ErrProviderNotLinked)

	require.NoError(t, f.integrator.Unlink(ctx, withPassword.ID, " Google "))
	require.NoError(t, f.integrator.Unlink(ctx, oauthOnly.ID, ProviderKakao))
	assert.ErrorIs(t, f.integrator.Unlink(ctx, oauthOnly.ID, ProviderGoogle), ErrLastAuthMethod)

	remaining, err := f.identities.CountByUser(ctx, f.db, oauthOnly.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	require.NoError(t, f.service.SetPassword(ctx, oauthOnly.ID, "secret1"))
	require.NoError(t, f.integrator.Unlink(ctx, oauthOnly.ID, ProviderGoogle), "a password makes the last identity removable")

	remaining, err = f.identities.CountByUser(ctx, f.db, oauthOnly.ID)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	_, err = f.service.Login(ctx, "oauth@example.com", "secret1", auth.ClientInfo{})
	assert.NoError(t, err)
}

func TestLinkedAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.createUser(t, "multi@example.com", "hash", auth.UserStatusActive)
	f.attach(t, user, ProviderGoogle, "g-m")
	f.clock.Advance(time.Minute)
	f.attach(t, user, ProviderNaver, "n-m")

	view, err := f.integrator.LinkedAccounts(ctx, user.ID)
	require.NoError(t, err)

	require.Len(t, view.Identities, 2)
	assert.Equal(t, ProviderNaver, view.Identities[0].Provider, "newest first")
	assert.Equal(t, ProviderGoogle, view.Identities[1].Provider)
	assert.True(t, view.HasPassword)
	assert.Equal(t, "multi@example.com", view.PrimaryEmail)
	assert.Equal(t, 3, view.TotalAuthMethods)

	_, err = f.integrator.LinkedAccounts(ctx, uuid.New())
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}
