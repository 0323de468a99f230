package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 14 * 24 * time.Hour
)

// TokenIssuer signs and verifies HS256 access and refresh tokens.
// It never consults the session whitelist.
type TokenIssuer struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	newJTI     func() string
	logger     Logger
}

// TokenIssuerOption customizes a TokenIssuer
type TokenIssuerOption func(*TokenIssuer)

// WithTokenClock injects a custom clock used for signing and verification
func WithTokenClock(now func() time.Time) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if now != nil {
			ti.now = now
		}
	}
}

func WithTokenLogger(logger Logger) TokenIssuerOption {
	return func(ti *TokenIssuer) {
		if logger != nil {
			ti.logger = logger
		}
	}
}

// NewTokenIssuer creates a TokenIssuer from the config, zero TTLs fall back to defaults
func NewTokenIssuer(cfg Config, opts ...TokenIssuerOption) *TokenIssuer {
	ti := &TokenIssuer{
		signingKey: []byte(cfg.GetSigningKey()),
		issuer:     cfg.GetIssuer(),
		accessTTL:  cfg.GetAccessTTL(),
		refreshTTL: cfg.GetRefreshTTL(),
		now:        time.Now,
		newJTI:     uuid.NewString,
		logger:     defLogger{},
	}

	if ti.accessTTL <= 0 {
		ti.accessTTL = DefaultAccessTTL
	}

	if ti.refreshTTL <= 0 {
		ti.refreshTTL = DefaultRefreshTTL
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ti)
		}
	}
	return ti
}

func (ti *TokenIssuer) AccessTTL() time.Duration {
	return ti.accessTTL
}

func (ti *TokenIssuer) RefreshTTL() time.Duration {
	return ti.refreshTTL
}

// IssueAccessToken signs an access token for the user
func (ti *TokenIssuer) IssueAccessToken(userID uuid.UUID, email string, role UserRole) (string, time.Time, error) {
	now := ti.now()
	exp := now.Add(ti.accessTTL)
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:    email,
		UserRole: string(role),
	}

	token, err := ti.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// IssueRefreshToken signs a refresh token with a fresh jti
func (ti *TokenIssuer) IssueRefreshToken(userID uuid.UUID) (token, jti string, exp time.Time, err error) {
	now := ti.now()
	exp = now.Add(ti.refreshTTL)
	jti = ti.newJTI()
	claims := &RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			Subject:   userID.String(),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		TokenType: TokenTypeRefresh,
	}

	token, err = ti.sign(claims)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, jti, exp, nil
}

// IssuePair signs both tokens for the user
func (ti *TokenIssuer) IssuePair(user *User) (*TokenPair, error) {
	if user == nil || user.ID == uuid.Nil {
		return nil, errors.New("user is required to issue tokens", errors.CategoryInternal)
	}

	access, accessExp, err := ti.IssueAccessToken(user.ID, user.EmailAddress(), user.Role)
	if err != nil {
		return nil, err
	}

	refresh, jti, refreshExp, err := ti.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		JTI:              jti,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess validates signature, expiry and issuer of an access token
func (ti *TokenIssuer) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := ti.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != "" || claims.UserID() == uuid.Nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// VerifyRefresh validates signature, expiry and issuer of a refresh token
func (ti *TokenIssuer) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := ti.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh || claims.ID == "" || claims.UserID() == uuid.Nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// Decode reads refresh claims without verifying anything, nil on failure.
// Only use it for best effort cleanup.
func (ti *TokenIssuer) Decode(tokenString string) *RefreshClaims {
	if tokenString == "" {
		return nil
	}
	claims := &RefreshClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil
	}
	return claims
}

func (ti *TokenIssuer) sign(claims jwt.Claims) (string, error) {
	if len(ti.signingKey) == 0 {
		return "", errors.New("signing key is not configured", errors.CategoryInternal).
			WithTextCode(TextCodeInvalidConfiguration)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ti.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

func (ti *TokenIssuer) parse(tokenString string, claims jwt.Claims) error {
	if tokenString == "" {
		return ErrTokenMalformed
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	}
	if ti.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ti.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ti.logger.Warn("token issuer rejected unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenMalformed
	}

	if !token.Valid {
		return ErrTokenMalformed
	}
	return nil
}
