package auth

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials   = "AUTH_INVALID_CREDENTIALS"
	TextCodeAccountInactive      = "AUTH_ACCOUNT_INACTIVE"
	TextCodeInvalidRefreshToken  = "AUTH_INVALID_REFRESH_TOKEN"
	TextCodeUnauthenticated      = "AUTH_UNAUTHENTICATED"
	TextCodeForbiddenRole        = "AUTH_FORBIDDEN_ROLE"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
	TextCodeTokenMalformed       = "TOKEN_MALFORMED"
	TextCodeEmailTaken           = "USER_EMAIL_TAKEN"
	TextCodeUsernameTaken        = "USER_USERNAME_TAKEN"
	TextCodeUserNotFound         = "USER_NOT_FOUND"
	TextCodeInvalidInput         = "INVALID_INPUT"
	TextCodeEmptyPassword        = "PASSWORD_EMPTY"
	TextCodePasswordMismatch     = "PASSWORD_MISMATCH"
	TextCodeSessionNotFound      = "SESSION_NOT_FOUND"
	TextCodeInvalidTransition    = "INVALID_USER_STATE_TRANSITION"
	TextCodeTerminalState        = "TERMINAL_USER_STATE"
	TextCodeInvalidConfiguration = "INVALID_CONFIGURATION"
	TextCodePasswordAlreadySet   = "PASSWORD_ALREADY_SET"
)

// ErrInvalidCredentials is shared by unknown email, passwordless account and
// wrong password so login responses cannot be used to enumerate accounts.
var ErrInvalidCredentials = errors.New("Invalid email or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrAccountInactive is returned when a non ACTIVE user tries to authenticate.
var ErrAccountInactive = errors.New("Account is not active", errors.CategoryAuth).
	WithTextCode(TextCodeAccountInactive).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidRefreshToken is the only error the refresh chain surfaces.
var ErrInvalidRefreshToken = errors.New("Invalid refresh token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidRefreshToken).
	WithCode(errors.CodeUnauthorized)

// ErrUnauthenticated is returned by protected routes without a valid access token.
var ErrUnauthenticated = errors.New("Authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrForbiddenRole is returned when the principal role is not allowed on a route.
var ErrForbiddenRole = errors.New("Insufficient role for this resource", errors.CategoryAuthz).
	WithTextCode(TextCodeForbiddenRole).
	WithCode(errors.CodeForbidden)

var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

var ErrEmailTaken = errors.New("Email is already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrPasswordAlreadySet is returned by SetPassword for accounts that already
// sign in with a password.
var ErrPasswordAlreadySet = errors.New("Password is already set", errors.CategoryConflict).
	WithTextCode(TextCodePasswordAlreadySet).
	WithCode(errors.CodeConflict)

var ErrUsernameTaken = errors.New("Username is already taken", errors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(errors.CodeConflict)

var ErrUserNotFound = errors.New("User not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword wraps the bcrypt mismatch
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrSessionNotFound is returned by session stores when a jti is not whitelisted.
var ErrSessionNotFound = errors.New("refresh session not found", errors.CategoryNotFound).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(errors.CodeNotFound)

var ErrInvalidTransition = errors.New("invalid user state transition", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(errors.CodeBadRequest)

// ErrTerminalState is returned when attempting to move away from DELETED.
var ErrTerminalState = errors.New("user state is terminal", errors.CategoryConflict).
	WithTextCode(TextCodeTerminalState).
	WithCode(errors.CodeConflict)

// NewInvalidInputError builds a BadRequest carrying the specific validation message.
func NewInvalidInputError(message string, fields map[string]any) *errors.Error {
	err := errors.New(message, errors.CategoryBadInput).
		WithTextCode(TextCodeInvalidInput).
		WithCode(errors.CodeBadRequest)
	if len(fields) > 0 {
		err = err.WithMetadata(fields)
	}
	return err
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// HTTPStatus resolves the response status for an error.
func HTTPStatus(err error) int {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Code != 0 {
		return richErr.Code
	}
	return errors.CodeInternal
}
