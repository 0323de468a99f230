package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/inflowhq/go-auth"
	"github.com/redis/go-redis/v9"
)

// ErrSessionExists is returned when a jti is inserted twice
var ErrSessionExists = errors.New("refresh session already exists")

// Every script keeps three structures in sync: the session hash, the
// per user set scored by creation time and the global set scored by
// expiry. Members of the sets whose hash is gone are cleaned up lazily.

const insertSessionScript = `
local session_prefix = ARGV[10]
local prune = tonumber(ARGV[9])

if ARGV[8] == "1" then
  local now = tonumber(ARGV[7])
  local members = redis.call("ZRANGE", KEYS[2], 0, -1)
  for _, jti in ipairs(members) do
    local exp = redis.call("HGET", session_prefix .. jti, "expires_at")
    if not exp or tonumber(exp) <= now then
      redis.call("DEL", session_prefix .. jti)
      redis.call("ZREM", KEYS[2], jti)
      redis.call("ZREM", KEYS[3], jti)
    end
  end
end

if prune >= 0 then
  local stale = redis.call("ZREVRANGE", KEYS[2], prune, -1)
  for _, jti in ipairs(stale) do
    redis.call("DEL", session_prefix .. jti)
    redis.call("ZREM", KEYS[2], jti)
    redis.call("ZREM", KEYS[3], jti)
  end
end

if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end

redis.call("HSET", KEYS[1], "user_id", ARGV[2], "expires_at", ARGV[3], "created_at", ARGV[4], "ua", ARGV[5], "ip", ARGV[6])
redis.call("PEXPIREAT", KEYS[1], ARGV[3])
redis.call("ZADD", KEYS[2], ARGV[4], ARGV[1])
redis.call("ZADD", KEYS[3], ARGV[3], ARGV[1])
return 1
`

const rotateSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return -1
end

local old_user = redis.call("HGET", KEYS[1], "user_id")
redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[4], ARGV[1])
if old_user then
  redis.call("ZREM", ARGV[8] .. old_user, ARGV[1])
end

redis.call("HSET", KEYS[2], "user_id", ARGV[3], "expires_at", ARGV[4], "created_at", ARGV[5], "ua", ARGV[6], "ip", ARGV[7])
redis.call("PEXPIREAT", KEYS[2], ARGV[4])
redis.call("ZADD", KEYS[3], ARGV[5], ARGV[2])
redis.call("ZADD", KEYS[4], ARGV[4], ARGV[2])
return 1
`

const deleteSessionScript = `
local user = redis.call("HGET", KEYS[1], "user_id")
local existed = redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
if user then
  redis.call("ZREM", ARGV[2] .. user, ARGV[1])
end
return existed
`

const deleteUserSessionsScript = `
local members = redis.call("ZRANGE", KEYS[1], 0, -1)
local removed = 0
for _, jti in ipairs(members) do
  removed = removed + redis.call("DEL", ARGV[1] .. jti)
  redis.call("ZREM", KEYS[2], jti)
end
redis.call("DEL", KEYS[1])
return removed
`

const deleteExpiredForUserScript = `
local now = tonumber(ARGV[2])
local members = redis.call("ZRANGE", KEYS[1], 0, -1)
local removed = 0
for _, jti in ipairs(members) do
  local exp = redis.call("HGET", ARGV[1] .. jti, "expires_at")
  if not exp or tonumber(exp) <= now then
    redis.call("DEL", ARGV[1] .. jti)
    redis.call("ZREM", KEYS[1], jti)
    redis.call("ZREM", KEYS[2], jti)
    removed = removed + 1
  end
end
return removed
`

const sweepExpiredScript = `
local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[3])
for _, jti in ipairs(expired) do
  local user = redis.call("HGET", ARGV[1] .. jti, "user_id")
  redis.call("DEL", ARGV[1] .. jti)
  if user then
    redis.call("ZREM", ARGV[2] .. user, jti)
  end
  redis.call("ZREM", KEYS[1], jti)
end
return #expired
`

const pruneUserSessionsScript = `
local stale = redis.call("ZREVRANGE", KEYS[1], tonumber(ARGV[2]), -1)
for _, jti in ipairs(stale) do
  redis.call("DEL", ARGV[1] .. jti)
  redis.call("ZREM", KEYS[1], jti)
  redis.call("ZREM", KEYS[2], jti)
end
return #stale
`

const countActiveScript = `
local now = tonumber(ARGV[2])
local members = redis.call("ZRANGE", KEYS[1], 0, -1)
local active = 0
for _, jti in ipairs(members) do
  local exp = redis.call("HGET", ARGV[1] .. jti, "expires_at")
  if exp and tonumber(exp) > now then
    active = active + 1
  end
end
return active
`

var (
	insertSessionLua        = redis.NewScript(insertSessionScript)
	rotateSessionLua        = redis.NewScript(rotateSessionScript)
	deleteSessionLua        = redis.NewScript(deleteSessionScript)
	deleteUserSessionsLua   = redis.NewScript(deleteUserSessionsScript)
	deleteExpiredForUserLua = redis.NewScript(deleteExpiredForUserScript)
	sweepExpiredLua         = redis.NewScript(sweepExpiredScript)
	pruneUserSessionsLua    = redis.NewScript(pruneUserSessionsScript)
	countActiveLua          = redis.NewScript(countActiveScript)
)

// RedisSessionStore keeps the refresh session whitelist in Redis.
// Scripts build keys from the prefix, so on a cluster every key must
// hash to the same slot, e.g. with a "{auth}" prefix.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ auth.SessionStore = (*RedisSessionStore)(nil)

// RedisSessionOption customizes the store
type RedisSessionOption func(*RedisSessionStore)

// WithRedisClock sets the clock used for created_at defaults
func WithRedisClock(now func() time.Time) RedisSessionOption {
	return func(s *RedisSessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRedisSessionStore creates a store, prefix defaults to "auth"
func NewRedisSessionStore(client redis.UniversalClient, prefix string, opts ...RedisSessionOption) *RedisSessionStore {
	if prefix == "" {
		prefix = "auth"
	}
	s := &RedisSessionStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisSessionStore) sessionPrefix() string { return s.prefix + ":rs:" }
func (s *RedisSessionStore) userPrefix() string    { return s.prefix + ":rs-user:" }
func (s *RedisSessionStore) expiryKey() string     { return s.prefix + ":rs-expiry" }

func (s *RedisSessionStore) sessionKey(jti string) string {
	return s.sessionPrefix() + jti
}

func (s *RedisSessionStore) userKey(userID uuid.UUID) string {
	return s.userPrefix() + userID.String()
}

func (s *RedisSessionStore) Insert(ctx context.Context, params auth.NewSessionParams) (*auth.RefreshSession, error) {
	return s.insert(ctx, params, false, -1, time.Time{})
}

// InsertCapped drops the user's expired sessions and keeps the newest
// keep-1 before inserting. keep <= 0 disables the cap.
func (s *RedisSessionStore) InsertCapped(ctx context.Context, params auth.NewSessionParams, keep int, now time.Time) (*auth.RefreshSession, error) {
	prune := -1
	if keep > 0 {
		prune = keep - 1
	}
	return s.insert(ctx, params, true, prune, now)
}

func (s *RedisSessionStore) insert(ctx context.Context, params auth.NewSessionParams, sweep bool, prune int, now time.Time) (*auth.RefreshSession, error) {
	record, err := s.record(params)
	if err != nil {
		return nil, err
	}

	keys := []string{s.sessionKey(record.JTI), s.userKey(record.UserID), s.expiryKey()}
	sweepFlag := "0"
	if sweep {
		sweepFlag = "1"
	}
	args := append(s.sessionArgs(record), now.UnixMilli(), sweepFlag, prune, s.sessionPrefix())

	res, err := insertSessionLua.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		return nil, fmt.Errorf("insert refresh session: %w", err)
	}
	if res == 0 {
		return nil, ErrSessionExists
	}
	return record, nil
}

func (s *RedisSessionStore) Get(ctx context.Context, jti string) (*auth.RefreshSession, error) {
	fields, err := s.client.HGetAll(ctx, s.sessionKey(jti)).Result()
	if err != nil {
		return nil, fmt.Errorf("get refresh session: %w", err)
	}
	if len(fields) == 0 {
		return nil, auth.ErrSessionNotFound
	}
	return decodeSession(jti, fields)
}

func (s *RedisSessionStore) DeleteByJTI(ctx context.Context, jti string) (bool, error) {
	keys := []string{s.sessionKey(jti), s.expiryKey()}
	n, err := deleteSessionLua.Run(ctx, s.client, keys, jti, s.userPrefix()).Int64()
	if err != nil {
		return false, fmt.Errorf("delete refresh session: %w", err)
	}
	return n > 0, nil
}

func (s *RedisSessionStore) DeleteByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	keys := []string{s.userKey(userID), s.expiryKey()}
	n, err := deleteUserSessionsLua.Run(ctx, s.client, keys, s.sessionPrefix()).Int()
	if err != nil {
		return 0, fmt.Errorf("delete user refresh sessions: %w", err)
	}
	return n, nil
}

func (s *RedisSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	keys := []string{s.expiryKey()}
	n, err := sweepExpiredLua.Run(ctx, s.client, keys, s.sessionPrefix(), s.userPrefix(), now.UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("sweep refresh sessions: %w", err)
	}
	return n, nil
}

func (s *RedisSessionStore) DeleteExpiredForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	keys := []string{s.userKey(userID), s.expiryKey()}
	n, err := deleteExpiredForUserLua.Run(ctx, s.client, keys, s.sessionPrefix(), now.UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("delete expired user refresh sessions: %w", err)
	}
	return n, nil
}

func (s *RedisSessionStore) PruneForUser(ctx context.Context, userID uuid.UUID, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	keys := []string{s.userKey(userID), s.expiryKey()}
	n, err := pruneUserSessionsLua.Run(ctx, s.client, keys, s.sessionPrefix(), keep).Int()
	if err != nil {
		return 0, fmt.Errorf("prune user refresh sessions: %w", err)
	}
	return n, nil
}

func (s *RedisSessionStore) CountActive(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	keys := []string{s.userKey(userID)}
	n, err := countActiveLua.Run(ctx, s.client, keys, s.sessionPrefix(), now.UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("count refresh sessions: %w", err)
	}
	return n, nil
}

func (s *RedisSessionStore) Rotate(ctx context.Context, oldJTI string, next auth.NewSessionParams) (*auth.RefreshSession, error) {
	record, err := s.record(next)
	if err != nil {
		return nil, err
	}

	keys := []string{s.sessionKey(oldJTI), s.sessionKey(record.JTI), s.userKey(record.UserID), s.expiryKey()}
	args := append([]any{oldJTI}, s.sessionArgs(record)...)
	args = append(args, s.userPrefix())

	res, err := rotateSessionLua.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		return nil, fmt.Errorf("rotate refresh session: %w", err)
	}
	switch res {
	case 0:
		return nil, auth.ErrSessionNotFound
	case -1:
		return nil, ErrSessionExists
	}
	return record, nil
}

func (s *RedisSessionStore) record(params auth.NewSessionParams) (*auth.RefreshSession, error) {
	if params.JTI == "" || params.UserID == uuid.Nil {
		return nil, auth.NewInvalidInputError("session jti and user are required", nil)
	}

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	record := &auth.RefreshSession{
		JTI:       params.JTI,
		UserID:    params.UserID,
		ExpiresAt: time.UnixMilli(params.ExpiresAt.UnixMilli()).UTC(),
		CreatedAt: time.UnixMilli(createdAt.UnixMilli()).UTC(),
	}
	if params.UserAgentHash != "" {
		ua := params.UserAgentHash
		record.UserAgentHash = &ua
	}
	if params.IPHash != "" {
		ip := params.IPHash
		record.IPHash = &ip
	}
	return record, nil
}

// sessionArgs are jti, user, expires_at, created_at, ua and ip
func (s *RedisSessionStore) sessionArgs(record *auth.RefreshSession) []any {
	return []any{
		record.JTI,
		record.UserID.String(),
		record.ExpiresAt.UnixMilli(),
		record.CreatedAt.UnixMilli(),
		deref(record.UserAgentHash),
		deref(record.IPHash),
	}
}

func decodeSession(jti string, fields map[string]string) (*auth.RefreshSession, error) {
	userID, err := uuid.Parse(fields["user_id"])
	if err != nil {
		return nil, fmt.Errorf("refresh session %s: user id: %w", jti, err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("refresh session %s: expires_at: %w", jti, err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("refresh session %s: created_at: %w", jti, err)
	}

	record := &auth.RefreshSession{
		JTI:       jti,
		UserID:    userID,
		ExpiresAt: time.UnixMilli(expiresAt).UTC(),
		CreatedAt: time.UnixMilli(createdAt).UTC(),
	}
	if ua := fields["ua"]; ua != "" {
		record.UserAgentHash = &ua
	}
	if ip := fields["ip"]; ip != "" {
		record.IPHash = &ip
	}
	return record, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
