package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultMaxSessionsPerUser caps concurrent refresh sessions per user
const DefaultMaxSessionsPerUser = 5

// SessionRegistry owns the refresh session whitelist lifecycle
type SessionRegistry struct {
	store       SessionStore
	users       UserLookup
	maxSessions int
	now         func() time.Time
	logger      Logger
	metrics     Metrics
}

// RegistryOption customizes a SessionRegistry
type RegistryOption func(*SessionRegistry)

func WithRegistryLogger(logger Logger) RegistryOption {
	return func(r *SessionRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRegistryMetrics(m Metrics) RegistryOption {
	return func(r *SessionRegistry) {
		r.metrics = NormalizeMetrics(m)
	}
}

// WithRegistryClock injects a custom clock
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *SessionRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMaxSessionsPerUser overrides the per user cap, values below 1 are ignored
func WithMaxSessionsPerUser(n int) RegistryOption {
	return func(r *SessionRegistry) {
		if n > 0 {
			r.maxSessions = n
		}
	}
}

func NewSessionRegistry(store SessionStore, users UserLookup, opts ...RegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		store:       store,
		users:       users,
		maxSessions: DefaultMaxSessionsPerUser,
		now:         time.Now,
		logger:      defLogger{},
		metrics:     NopMetrics{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Create records a new session. Expired sessions of the user are removed
// and the oldest are evicted so the user keeps at most the configured cap.
func (r *SessionRegistry) Create(ctx context.Context, userID uuid.UUID, jti string, expiresAt time.Time, uaHash, ipHash string) (*RefreshSession, error) {
	session, err := r.store.InsertCapped(ctx, NewSessionParams{
		UserID:        userID,
		JTI:           jti,
		ExpiresAt:     expiresAt,
		UserAgentHash: uaHash,
		IPHash:        ipHash,
		CreatedAt:     r.now(),
	}, r.maxSessions, r.now())
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create refresh session")
	}
	return session, nil
}

// Validate checks the jti is whitelisted, unexpired and owned by an active user.
// Client fingerprint mismatches are logged and counted only.
func (r *SessionRegistry) Validate(ctx context.Context, jti, uaHash, ipHash string) (*RefreshSession, error) {
	session, err := r.store.Get(ctx, jti)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			r.logger.Error("refresh session lookup failed", "jti", jti, "error", err)
		}
		return nil, ErrInvalidRefreshToken
	}

	if session.IsExpired(r.now()) {
		r.discard(ctx, jti, "expired")
		return nil, ErrInvalidRefreshToken
	}

	user, err := r.users.FindByID(ctx, session.UserID)
	switch {
	case IsNotFound(err):
		r.discard(ctx, jti, "user missing")
		return nil, ErrInvalidRefreshToken
	case err != nil:
		r.logger.Error("refresh session user lookup failed", "user_id", session.UserID, "jti", jti, "error", err)
		return nil, ErrInvalidRefreshToken
	case !user.IsActive():
		r.discard(ctx, jti, "user inactive")
		return nil, ErrInvalidRefreshToken
	}

	if stored := derefString(session.UserAgentHash); stored != "" && uaHash != "" && stored != uaHash {
		r.logger.Warn("refresh session user agent changed", "user_id", session.UserID, "jti", jti)
		r.metrics.RecordFingerprintMismatch("user_agent")
	}

	if stored := derefString(session.IPHash); stored != "" && ipHash != "" && stored != ipHash {
		r.logger.Warn("refresh session ip changed", "user_id", session.UserID, "jti", jti)
		r.metrics.RecordFingerprintMismatch("ip")
	}

	return session, nil
}

// Rotate atomically replaces oldJTI with the next session. Only one of
// several concurrent rotations of the same jti succeeds.
func (r *SessionRegistry) Rotate(ctx context.Context, oldJTI string, next NewSessionParams) (*RefreshSession, error) {
	if next.CreatedAt.IsZero() {
		next.CreatedAt = r.now()
	}
	session, err := r.store.Rotate(ctx, oldJTI, next)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			r.logger.Error("refresh session rotation failed", "jti", oldJTI, "error", err)
		}
		return nil, ErrInvalidRefreshToken
	}
	r.metrics.RecordRotation()
	return session, nil
}

// Revoke removes the session. Unknown jtis are not an error.
func (r *SessionRegistry) Revoke(ctx context.Context, jti string) error {
	if jti == "" {
		return nil
	}
	removed, err := r.store.DeleteByJTI(ctx, jti)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh session")
	}
	if removed {
		r.metrics.RecordRevocations(1)
	}
	return nil
}

// RevokeAll removes every session of the user and returns how many were removed
func (r *SessionRegistry) RevokeAll(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := r.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh sessions")
	}
	r.metrics.RecordRevocations(n)
	return n, nil
}

// SweepExpired deletes every expired session
func (r *SessionRegistry) SweepExpired(ctx context.Context) (int, error) {
	n, err := r.store.DeleteExpired(ctx, r.now())
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to sweep refresh sessions")
	}
	r.metrics.RecordSweep(n)
	return n, nil
}

// CountActive returns the number of unexpired sessions of the user
func (r *SessionRegistry) CountActive(ctx context.Context, userID uuid.UUID) (int, error) {
	return r.store.CountActive(ctx, userID, r.now())
}

func (r *SessionRegistry) discard(ctx context.Context, jti, reason string) {
	if _, err := r.store.DeleteByJTI(ctx, jti); err != nil {
		r.logger.Error("failed to discard refresh session", "jti", jti, "reason", reason, "error", err)
		return
	}
	r.logger.Debug("discarded refresh session", "jti", jti, "reason", reason)
}

// HashClientValue returns the hex SHA-256 of a user agent or ip.
// Empty input returns an empty string meaning not supplied.
func HashClientValue(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
