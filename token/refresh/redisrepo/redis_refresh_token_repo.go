// Package redisrepo stores refresh tokens in Redis hashes. Rotation, use and
// revocation run as Lua scripts so each check-and-write is atomic.
package redisrepo

import (
	"context"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/token/refresh"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultRetention = 24 * time.Hour

// checkTokenLua is shared by the scripts that redeem a token. It returns the
// name of the failed precondition, or nil.
const checkTokenLua = `
local function check(key, hash, now)
  if redis.call('EXISTS', key) == 0 then return 'not_found' end
  if redis.call('HGET', key, 'secret_hash') ~= hash then return 'not_found' end
  if redis.call('HGET', key, 'superseded_by') ~= '' then return 'superseded' end
  if tonumber(redis.call('HGET', key, 'revoked_at')) > 0 then return 'revoked' end
  if now >= tonumber(redis.call('HGET', key, 'expires_at')) then return 'expired' end
  local idle = tonumber(redis.call('HGET', key, 'idle_expires_at'))
  if idle > 0 and now >= idle then return 'expired' end
  return nil
end
`

// createTokenLua
// KEYS[1] = token key, KEYS[2] = session index key
// ARGV[1] = token id, ARGV[2] = key ttl ms, ARGV[3..] = field/value pairs
var createTokenLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return {err='exists'}
end
for i = 3, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
redis.call('PEXPIRE', KEYS[1], ARGV[2])
redis.call('SADD', KEYS[2], ARGV[1])
if redis.call('PTTL', KEYS[2]) < tonumber(ARGV[2]) then
  redis.call('PEXPIRE', KEYS[2], ARGV[2])
end
return 1
`)

// rotateTokenLua supersedes the old token and stores its successor.
// KEYS[1] = old key, KEYS[2] = new key, KEYS[3] = session index key
// ARGV[1] = secret hash, ARGV[2] = now ms, ARGV[3] = new id,
// ARGV[4] = new key ttl ms, ARGV[5..] = new field/value pairs
var rotateTokenLua = redis.NewScript(checkTokenLua + `
local failure = check(KEYS[1], ARGV[1], tonumber(ARGV[2]))
if failure then
  return {err=failure}
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {err='exists'}
end
redis.call('HSET', KEYS[1], 'superseded_by', ARGV[3], 'last_used_at', ARGV[2])
for i = 5, #ARGV, 2 do
  redis.call('HSET', KEYS[2], ARGV[i], ARGV[i+1])
end
redis.call('PEXPIRE', KEYS[2], ARGV[4])
redis.call('SADD', KEYS[3], ARGV[3])
if redis.call('PTTL', KEYS[3]) < tonumber(ARGV[4]) then
  redis.call('PEXPIRE', KEYS[3], ARGV[4])
end
return 1
`)

// touchTokenLua records a use of a non-rotating token.
// KEYS[1] = token key
// ARGV[1] = secret hash, ARGV[2] = now ms, ARGV[3] = idle expiry ms (0 = none)
var touchTokenLua = redis.NewScript(checkTokenLua + `
local failure = check(KEYS[1], ARGV[1], tonumber(ARGV[2]))
if failure then
  return {err=failure}
end
redis.call('HSET', KEYS[1], 'last_used_at', ARGV[2], 'idle_expires_at', ARGV[3])
return 1
`)

// revokeSessionLua revokes every live token listed in a session index. The
// token keys share the index key's hash tag, so they live in the same slot.
// KEYS[1] = session index key
// ARGV[1] = now ms, ARGV[2] = token key prefix
var revokeSessionLua = redis.NewScript(`
local n = 0
for _, id in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  local key = ARGV[2] .. id
  if redis.call('EXISTS', key) == 1 and tonumber(redis.call('HGET', key, 'revoked_at')) == 0 then
    redis.call('HSET', key, 'revoked_at', ARGV[1])
    n = n + 1
  end
end
return n
`)

var _ refresh.Repo = (*Repo)(nil)

type Repo struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

type Option func(*Repo)

// WithRetention sets how long a token is kept after it expires, so that a
// late replay of a rotated token is still recognised as reuse.
func WithRetention(d time.Duration) Option {
	return func(r *Repo) {
		r.retention = d
	}
}

func New(client redis.UniversalClient, prefix string, options ...Option) *Repo {
	if prefix == "" {
		prefix = "idp"
	}
	r := &Repo{redis: client, prefix: prefix, retention: defaultRetention}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *Repo) tokenPrefix(tenantID string) string {
	return r.prefix + ":rt:{" + tenantID + "}:"
}

func (r *Repo) tokenKey(tenantID, id string) string {
	return r.tokenPrefix(tenantID) + id
}

func (r *Repo) sessionKey(tenantID, sessionID string) string {
	return r.prefix + ":rtsession:{" + tenantID + "}:" + sessionID
}

func (r *Repo) ttl(t refresh.Token, now time.Time) int64 {
	return t.ExpiresAt.Sub(now).Milliseconds() + r.retention.Milliseconds()
}

func (r *Repo) Create(ctx context.Context, t refresh.Token) error {
	args := append([]interface{}{t.ID, r.ttl(t, t.CreatedAt)}, fields(t)...)
	keys := []string{r.tokenKey(t.TenantID, t.ID), r.sessionKey(t.TenantID, t.SessionID)}
	if err := createTokenLua.Run(ctx, r.redis, keys, args...).Err(); err != nil {
		return mapScriptError(err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, tenantID, id string) (*refresh.Token, error) {
	values, err := r.redis.HGetAll(ctx, r.tokenKey(tenantID, id)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "[Repo.Get]")
	}
	if len(values) == 0 {
		return nil, apperrors.New(apperrors.KindNotFound, "refresh token not found")
	}
	return decode(values)
}

func (r *Repo) Rotate(ctx context.Context, tenantID, oldID, secretHash string, next refresh.Token, now time.Time) error {
	keys := []string{
		r.tokenKey(tenantID, oldID),
		r.tokenKey(next.TenantID, next.ID),
		r.sessionKey(next.TenantID, next.SessionID),
	}
	args := append([]interface{}{secretHash, now.UnixMilli(), next.ID, r.ttl(next, now)}, fields(next)...)
	if err := rotateTokenLua.Run(ctx, r.redis, keys, args...).Err(); err != nil {
		return mapScriptError(err)
	}
	return nil
}

func (r *Repo) Touch(ctx context.Context, tenantID, id, secretHash string, now, idleExpiresAt time.Time) error {
	keys := []string{r.tokenKey(tenantID, id)}
	if err := touchTokenLua.Run(ctx, r.redis, keys, secretHash, now.UnixMilli(), millis(idleExpiresAt)).Err(); err != nil {
		return mapScriptError(err)
	}
	return nil
}

func (r *Repo) RevokeSession(ctx context.Context, tenantID, sessionID string, now time.Time) (int, error) {
	keys := []string{r.sessionKey(tenantID, sessionID)}
	n, err := revokeSessionLua.Run(ctx, r.redis, keys, now.UnixMilli(), r.tokenPrefix(tenantID)).Int()
	if err != nil {
		return 0, errors.Wrap(err, "[Repo.RevokeSession]")
	}
	return n, nil
}

func fields(t refresh.Token) []interface{} {
	rotating := "0"
	if t.Rotating {
		rotating = "1"
	}
	var revokedAt int64
	if t.RevokedAt != nil {
		revokedAt = t.RevokedAt.UnixMilli()
	}
	return []interface{}{
		"id", t.ID,
		"tenant_id", t.TenantID,
		"session_id", t.SessionID,
		"client_id", t.ClientID,
		"user_id", t.UserID,
		"secret_hash", t.SecretHash,
		"rotating", rotating,
		"scope", t.Scope,
		"audience", t.Audience,
		"organization", t.Organization,
		"created_at", t.CreatedAt.UnixMilli(),
		"expires_at", t.ExpiresAt.UnixMilli(),
		"idle_expires_at", millis(t.IdleExpiresAt),
		"last_used_at", millis(t.LastUsedAt),
		"superseded_by", t.SupersededBy,
		"revoked_at", revokedAt,
	}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}

func decode(values map[string]string) (*refresh.Token, error) {
	t := &refresh.Token{
		ID:           values["id"],
		TenantID:     values["tenant_id"],
		SessionID:    values["session_id"],
		ClientID:     values["client_id"],
		UserID:       values["user_id"],
		SecretHash:   values["secret_hash"],
		Rotating:     values["rotating"] == "1",
		Scope:        values["scope"],
		Audience:     values["audience"],
		Organization: values["organization"],
		SupersededBy: values["superseded_by"],
	}
	ints := map[string]int64{}
	for _, f := range []string{"created_at", "expires_at", "idle_expires_at", "last_used_at", "revoked_at"} {
		v, err := strconv.ParseInt(values[f], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "[Repo.decode] %s", f)
		}
		ints[f] = v
	}
	t.CreatedAt = fromMillis(ints["created_at"])
	t.ExpiresAt = fromMillis(ints["expires_at"])
	t.IdleExpiresAt = fromMillis(ints["idle_expires_at"])
	t.LastUsedAt = fromMillis(ints["last_used_at"])
	if ints["revoked_at"] > 0 {
		revokedAt := fromMillis(ints["revoked_at"])
		t.RevokedAt = &revokedAt
	}
	return t, nil
}

func mapScriptError(err error) error {
	switch strings.TrimPrefix(err.Error(), "ERR ") {
	case "not_found":
		return refresh.ErrInvalidToken
	case "revoked":
		return refresh.ErrRevoked
	case "superseded":
		return refresh.ErrSuperseded
	case "expired":
		return refresh.ErrExpired
	case "exists":
		return refresh.ErrTokenExists
	}
	return apperrors.WithKind(apperrors.KindStorage, err, "redis refresh token script")
}
