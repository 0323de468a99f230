package social

import "github.com/goliatone/go-errors"

const (
	TextCodeProviderNotFound      = "SOCIAL_PROVIDER_NOT_FOUND"
	TextCodeUnsupportedProvider   = "SOCIAL_UNSUPPORTED_PROVIDER"
	TextCodeOAuthDisabled         = "SOCIAL_OAUTH_DISABLED"
	TextCodeInvalidState          = "SOCIAL_INVALID_STATE"
	TextCodeStateExpired          = "SOCIAL_STATE_EXPIRED"
	TextCodeTokenExchangeFail     = "SOCIAL_TOKEN_EXCHANGE_FAILED"
	TextCodeUserInfoFail          = "SOCIAL_USER_INFO_FAILED"
	TextCodeMissingEmail          = "SOCIAL_MISSING_EMAIL"
	TextCodeEmailNotVerified      = "SOCIAL_EMAIL_NOT_VERIFIED"
	TextCodeIdentityLinkedToOther = "SOCIAL_IDENTITY_LINKED_ELSEWHERE"
	TextCodeProviderAlreadyLinked = "SOCIAL_PROVIDER_ALREADY_LINKED"
	TextCodeProviderNotLinked     = "SOCIAL_PROVIDER_NOT_LINKED"
	TextCodeLastAuthMethod        = "SOCIAL_LAST_AUTH_METHOD"
)

// ErrProviderNotFound is returned when a requested provider is not configured.
var ErrProviderNotFound = errors.New("social provider not found", errors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(errors.CodeNotFound)

// ErrUnsupportedProvider is returned for provider names outside KnownProviders.
var ErrUnsupportedProvider = errors.New("Unsupported provider", errors.CategoryBadInput).
	WithTextCode(TextCodeUnsupportedProvider).
	WithCode(errors.CodeBadRequest)

// ErrOAuthDisabled is returned by every OAuth entry point when OAUTH_ENABLED is off.
var ErrOAuthDisabled = errors.New("OAuth login is disabled", errors.CategoryNotFound).
	WithTextCode(TextCodeOAuthDisabled).
	WithCode(errors.CodeNotFound)

// ErrInvalidState is returned when the OAuth state is invalid or tampered.
var ErrInvalidState = errors.New("invalid oauth state", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(errors.CodeBadRequest)

// ErrStateExpired is returned when the OAuth state has expired.
var ErrStateExpired = errors.New("oauth state expired", errors.CategoryBadInput).
	WithTextCode(TextCodeStateExpired).
	WithCode(errors.CodeBadRequest)

// ErrTokenExchangeFailed is returned when a provider token exchange fails.
var ErrTokenExchangeFailed = errors.New("token exchange failed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExchangeFail).
	WithCode(errors.CodeUnauthorized)

// ErrUserInfoFailed is returned when fetching user info fails.
var ErrUserInfoFailed = errors.New("failed to fetch user info", errors.CategoryAuth).
	WithTextCode(TextCodeUserInfoFail).
	WithCode(errors.CodeUnauthorized)

// ErrMissingEmail is returned when a new identity arrives without an email.
var ErrMissingEmail = errors.New("Provider did not share an email address", errors.CategoryBadInput).
	WithTextCode(TextCodeMissingEmail).
	WithCode(errors.CodeBadRequest)

// ErrEmailNotVerified is returned when an unverified provider email belongs
// to an existing account. The user has to sign in and link the provider.
var ErrEmailNotVerified = errors.New("Provider email is not verified, sign in and link the account instead", errors.CategoryConflict).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeConflict)

var ErrIdentityLinkedElsewhere = errors.New("provider account already linked to another user", errors.CategoryConflict).
	WithTextCode(TextCodeIdentityLinkedToOther).
	WithCode(errors.CodeConflict)

var ErrProviderAlreadyLinked = errors.New("another account of this provider is already linked", errors.CategoryConflict).
	WithTextCode(TextCodeProviderAlreadyLinked).
	WithCode(errors.CodeConflict)

var ErrProviderNotLinked = errors.New("provider not linked", errors.CategoryBadInput).
	WithTextCode(TextCodeProviderNotLinked).
	WithCode(errors.CodeBadRequest)

// ErrLastAuthMethod is returned when unlinking would remove the last auth method.
var ErrLastAuthMethod = errors.New("Cannot unlink the last authentication method. Please set a password first.", errors.CategoryAuthz).
	WithTextCode(TextCodeLastAuthMethod).
	WithCode(errors.CodeForbidden)
