package social

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/inflowhq/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestHTTPController(f *fixture) *HTTPController {
	transport := auth.NewCookieTransport(auth.CookieOptions{Secure: true})
	protect := func(next router.HandlerFunc) router.HandlerFunc { return next }
	return NewHTTPController(f.authenticator, f.integrator, transport, protect, HTTPConfig{
		SuccessRedirect: "https://app.example/oauth/success",
		FailureRedirect: "https://app.example/oauth/failure",
		Logger:          nopLogger{},
		Debug:           true,
	})
}

func newCallbackContext(provider string, query map[string]string) *cookieContext {
	ctx := newCookieContext()
	ctx.ParamsM["provider"] = provider
	for k, v := range query {
		ctx.QueriesM[k] = v
	}
	ctx.On("Context").Return(context.Background())
	ctx.On("GetString", "User-Agent", "").Return("go-test")
	ctx.On("IP").Return("127.0.0.1")
	return ctx
}

func captureRedirect(ctx *cookieContext) *string {
	var location string
	ctx.On("Redirect", mock.Anything, []int{http.StatusTemporaryRedirect}).Run(func(args mock.Arguments) {
		location = args.String(0)
	}).Return(nil)
	return &location
}

func captureJSON(ctx *cookieContext, status int) *any {
	var body any
	ctx.On("JSON", status, mock.Anything).Run(func(args mock.Arguments) {
		body = args.Get(1)
	}).Return(nil)
	return &body
}

func TestHTTPControllerBeginAuthRedirects(t *testing.T) {
	f := newFixture(t)
	controller := newTestHTTPController(f)

	ctx := newCallbackContext(ProviderGoogle, map[string]string{"redirect": "/after", "role": "ADVERTISER"})
	location := captureRedirect(ctx)

	require.NoError(t, controller.BeginAuth(ctx))
	require.NotEmpty(t, *location)

	parsed, err := url.Parse(*location)
	require.NoError(t, err)
	state, err := f.states.Decode(parsed.Query().Get("state"))
	require.NoError(t, err)
	assert.Equal(t, "/after", state.Redirect)
	assert.Equal(t, "ADVERTISER", state.Role)
	assert.Equal(t, ActionLogin, state.Action)
}

func TestHTTPControllerBeginAuthDropsOffsiteRedirect(t *testing.T) {
	f := newFixture(t)
	controller := newTestHTTPController(f)

	ctx := newCallbackContext(ProviderGoogle, map[string]string{"redirect": "//evil.example/steal"})
	location := captureRedirect(ctx)

	require.NoError(t, controller.BeginAuth(ctx))
	parsed, err := url.Parse(*location)
	require.NoError(t, err)
	state, err := f.states.Decode(parsed.Query().Get("state"))
	require.NoError(t, err)
	assert.Empty(t, state.Redirect)
}

func TestHTTPControllerBeginAuthUnknownProvider(t *testing.T) {
	f := newFixture(t)
	controller := newTestHTTPController(f)

	ctx := newCallbackContext("myspace", nil)
	body := captureJSON(ctx, http.StatusNotFound)

	require.NoError(t, controller.BeginAuth(ctx))
	res, ok := (*body).(auth.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, TextCodeProviderNotFound, res.Error.TextCode)
}

func TestHTTPControllerCallbackSetsCookies(t *testing.T) {
	f := newFixture(t)
	controller := newTestHTTPController(f)

	redirect, err := f.authenticator.BeginAuth(context.Background(), ProviderGoogle, ActionLogin, [16]byte{})
	require.NoError(t, err)

	ctx := newCallbackContext(ProviderGoogle, map[string]string{"code": "auth-code", "state": redirect.State})
	location := captureRedirect(ctx)

	require.NoError(t, controller.Callback(ctx))
	assert.Equal(t, "https://app.example/oauth/success?new_user=true", *location)

	names := []string{}
	for _, c := range ctx.written {
		names = append(names, c.Name)
		assert.NotEmpty(t, c.Value)
	}
	assert.ElementsMatch(t, []string{auth.AccessTokenCookie, auth.RefreshTokenCookie}, names)
}

func TestHTTPControllerCallbackFailureRedirects(t *testing.T) {
	f := newFixture(t)
	controller := newTestHTTPController(f)

	t.Run("provider error", func(t *testing.T) {
		ctx := newCallbackContext(ProviderGoogle, map[string]string{"error": "access_denied"})
		location := captureRedirect(ctx)

		require.NoError(t, controller.Callback(ctx))
		assert.Equal(t, "https://app.example/oauth/failure?error=access_denied", *location)
		assert.Empty(t, ctx.written)
	})

	t.Run("invalid state", func(t *testing.T) {
		ctx := newCallbackContext(ProviderGoogle, map[string]string{"code": "c", "state": "forged"})
		location := captureRedirect(ctx)

		require.NoError(t, controller.Callback(ctx))
		assert.Equal(t, "https://app.example/oauth/failure?error=social_invalid_state", *location)
		assert.Empty(t, ctx.written)
	})
}

func TestHTTPControllerLinkCallback(t *testing.T) {
	f := newFixture(t)
	controller := newTestHTTPController(f)
	user := f.createUser(t, "owner@example.com", "hash", auth.UserStatusActive)

	redirect, err := f.authenticator.BeginAuth(context.Background(), ProviderGoogle, ActionLink, user.ID)
	require.NoError(t, err)

	ctx := newCallbackContext(ProviderGoogle, map[string]string{"code": "auth-code", "state": redirect.State})
	location := captureRedirect(ctx)

	require.NoError(t, controller.LinkCallback(ctx))

	parsed, err := url.Parse(*location)
	require.NoError(t, err)
	assert.Equal(t, "/oauth/success", parsed.Path)
	assert.Equal(t, "link", parsed.Query().Get("action"))
	assert.Equal(t, ProviderGoogle, parsed.Query().Get("provider"))
	assert.Equal(t, "true", parsed.Query().Get("success"))
	assert.Empty(t, ctx.written, "linking issues no cookies")

	failed := newCallbackContext(ProviderGoogle, map[string]string{"error": "access_denied"})
	failedLocation := captureRedirect(failed)
	require.NoError(t, controller.LinkCallback(failed))

	parsed, err = url.Parse(*failedLocation)
	require.NoError(t, err)
	assert.Equal(t, "/oauth/failure", parsed.Path)
	assert.Equal(t, "access_denied", parsed.Query().Get("error"))
	assert.Equal(t, "link", parsed.Query().Get("action"))
	assert.Equal(t, ProviderGoogle, parsed.Query().Get("provider"))
}

func TestHTTPControllerBeginLinkRequiresPrincipal(t *testing.T) {
	f := newFixture(t)
	controller := newTestHTTPController(f)
	user := f.createUser(t, "owner@example.com", "hash", auth.UserStatusActive)

	anonymous := newCallbackContext(ProviderGoogle, nil)
	body := captureJSON(anonymous, http.StatusUnauthorized)
	require.NoError(t, controller.BeginLink(anonymous))
	require.NotNil(t, *body)

	ctx := newCallbackContext(ProviderGoogle, nil)
	ctx.LocalsMock[auth.PrincipalLocalsKey] = auth.Principal{UserID: user.ID, Role: string(user.Role)}
	location := captureRedirect(ctx)

	require.NoError(t, controller.BeginLink(ctx))
	parsed, err := url.Parse(*location)
	require.NoError(t, err)
	state, err := f.states.Decode(parsed.Query().Get("state"))
	require.NoError(t, err)
	assert.Equal(t, ActionLink, state.Action)
	assert.Equal(t, user.ID.String(), state.LinkUserID)
}

func TestHTTPControllerUnlinkAndList(t *testing.T) {
	f := newFixture(t)
	controller := newTestHTTPController(f)

	user := f.createUser(t, "owner@example.com", "", auth.UserStatusActive)
	f.attach(t, user, ProviderGoogle, "g-1")
	f.attach(t, user, ProviderKakao, "k-1")
	principal := auth.Principal{UserID: user.ID, Role: string(user.Role)}

	list := newCallbackContext("", nil)
	list.LocalsMock[auth.PrincipalLocalsKey] = principal
	listed := captureJSON(list, router.StatusOK)
	require.NoError(t, controller.LinkedAccounts(list))
	view, ok := (*listed).(*LinkedAccountsView)
	require.True(t, ok)
	assert.Len(t, view.Identities, 2)
	assert.False(t, view.HasPassword)

	unlink := newCallbackContext(ProviderKakao, nil)
	unlink.LocalsMock[auth.PrincipalLocalsKey] = principal
	unlinked := captureJSON(unlink, router.StatusOK)
	require.NoError(t, controller.Unlink(unlink))
	assert.Equal(t, map[string]any{
		"success": true,
		"message": "kakao account has been successfully unlinked",
	}, *unlinked)

	last := newCallbackContext(ProviderGoogle, nil)
	last.LocalsMock[auth.PrincipalLocalsKey] = principal
	rejected := captureJSON(last, http.StatusForbidden)
	require.NoError(t, controller.Unlink(last))
	res, ok := (*rejected).(auth.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, "Cannot unlink the last authentication method. Please set a password first.", res.Error.Message)
}
