package social

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Flow actions carried in the state
const (
	ActionLogin = "login"
	ActionLink  = "link"
)

// DefaultStateTTL bounds how long a user can stay on the provider consent page
const DefaultStateTTL = 10 * time.Minute

const stateAudience = "oauth-state"

// StateManager handles OAuth state encoding and verification.
type StateManager interface {
	Encode(state *OAuthState) (string, error)
	Decode(token string) (*OAuthState, error)
}

// OAuthState contains the data stored in the OAuth state parameter.
type OAuthState struct {
	Provider   string `json:"provider"`
	Action     string `json:"action"`
	LinkUserID string `json:"link_user_id,omitempty"`
	Redirect   string `json:"redirect,omitempty"`
	Role       string `json:"role,omitempty"`
	Nonce      string `json:"nonce"`

	jwt.RegisteredClaims
}

// StateCodec signs the state as a short lived HS256 JWT
type StateCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

var _ StateManager = (*StateCodec)(nil)

// StateOption customizes the codec
type StateOption func(*StateCodec)

// WithStateTTL overrides DefaultStateTTL
func WithStateTTL(ttl time.Duration) StateOption {
	return func(c *StateCodec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithStateClock injects a custom clock
func WithStateClock(now func() time.Time) StateOption {
	return func(c *StateCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewStateCodec creates a codec signing with secret
func NewStateCodec(secret string, opts ...StateOption) *StateCodec {
	c := &StateCodec{
		secret: []byte(secret),
		ttl:    DefaultStateTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Encode signs the state, filling in nonce and expiry.
func (c *StateCodec) Encode(state *OAuthState) (string, error) {
	if state == nil || state.Provider == "" {
		return "", ErrInvalidState
	}
	if state.Action == "" {
		state.Action = ActionLogin
	}
	if state.Nonce == "" {
		nonce, err := generateNonce()
		if err != nil {
			return "", err
		}
		state.Nonce = nonce
	}

	now := c.now()
	state.Audience = jwt.ClaimStrings{stateAudience}
	state.IssuedAt = jwt.NewNumericDate(now)
	state.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))

	return jwt.NewWithClaims(jwt.SigningMethodHS256, state).SignedString(c.secret)
}

// Decode verifies signature and expiry. Expired states return
// ErrStateExpired, anything else wrong returns ErrInvalidState.
func (c *StateCodec) Decode(token string) (*OAuthState, error) {
	if token == "" {
		return nil, ErrInvalidState
	}

	state := &OAuthState{}
	_, err := jwt.ParseWithClaims(token, state, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrStateExpired
		}
		return nil, ErrInvalidState
	}

	if state.Provider == "" || (state.Action != ActionLogin && state.Action != ActionLink) {
		return nil, ErrInvalidState
	}
	if state.Action == ActionLink && state.LinkUserID == "" {
		return nil, ErrInvalidState
	}
	return state, nil
}

func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
