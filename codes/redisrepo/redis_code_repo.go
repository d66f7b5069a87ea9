// Package redisrepo stores codes in Redis hashes and redeems them with Lua
// scripts so the check-and-mark sequence runs as one atomic unit.
package redisrepo

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-identity-server/codes"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultRetention = 24 * time.Hour

// insertCodeLua writes a new code hash unless the key already exists.
// KEYS[1] = code key
// ARGV[1] = key ttl in ms
// ARGV[2..] = field/value pairs
var insertCodeLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return {err='exists'}
end
for i = 2, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return 1
`)

// consumeCodeLua checks not-used, not-expired and subject, then marks used.
// KEYS[1] = code key
// ARGV[1] = now unix ms
// ARGV[2] = expected subject ('' skips the check)
//
// Returns the hash on success, or one of the errors
// "not_found", "already_used", "expired", "mismatch".
var consumeCodeLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
local now = tonumber(ARGV[1])
if tonumber(redis.call('HGET', KEYS[1], 'used_at')) > 0 then
  return {err='already_used'}
end
if now >= tonumber(redis.call('HGET', KEYS[1], 'expires_at')) then
  return {err='expired'}
end
if ARGV[2] ~= '' and redis.call('HGET', KEYS[1], 'subject') ~= ARGV[2] then
  return {err='mismatch'}
end
redis.call('HSET', KEYS[1], 'used_at', ARGV[1])
return redis.call('HGETALL', KEYS[1])
`)

// consumePairLua redeems an email-change request and its verification code
// together. Either both are marked used or neither is.
// KEYS[1] = request key, KEYS[2] = verification key
// ARGV[1] = now unix ms
var consumePairLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 0 then
  return {err='not_found'}
end
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='unresolved'}
end
if redis.call('HGET', KEYS[2], 'correlation_id') ~= redis.call('HGET', KEYS[1], 'id') then
  return {err='mismatch'}
end
if redis.call('HGET', KEYS[2], 'subject') ~= redis.call('HGET', KEYS[1], 'subject') then
  return {err='mismatch'}
end
local requestUsed = tonumber(redis.call('HGET', KEYS[1], 'used_at')) > 0
local verificationUsed = tonumber(redis.call('HGET', KEYS[2], 'used_at')) > 0
if requestUsed and verificationUsed then
  return {err='already_used'}
end
if requestUsed ~= verificationUsed then
  return {err='partial'}
end
local now = tonumber(ARGV[1])
if now >= tonumber(redis.call('HGET', KEYS[1], 'expires_at')) or now >= tonumber(redis.call('HGET', KEYS[2], 'expires_at')) then
  return {err='expired'}
end
redis.call('HSET', KEYS[1], 'used_at', ARGV[1])
redis.call('HSET', KEYS[2], 'used_at', ARGV[1])
return {redis.call('HGETALL', KEYS[1]), redis.call('HGETALL', KEYS[2])}
`)

var _ codes.Repo = (*Repo)(nil)

type Repo struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

type Option func(*Repo)

// WithRetention sets how long a code is kept after it expires, so that
// late redemptions still report already_used or expired rather than invalid.
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

// key uses a hash tag on the tenant so both codes of a pair share a slot.
func (r *Repo) key(tenantID string, ref codes.Ref) string {
	return r.prefix + ":code:{" + tenantID + "}:" + string(ref.Type) + ":" + ref.ID
}

func (r *Repo) Insert(ctx context.Context, code codes.Code) error {
	payload, err := json.Marshal(code.Payload)
	if err != nil {
		return errors.Wrap(err, "[Repo.Insert] marshal payload")
	}
	args := []interface{}{
		code.ExpiresAt.Sub(code.CreatedAt).Milliseconds() + r.retention.Milliseconds(),
		"tenant_id", code.TenantID,
		"id", code.ID,
		"type", string(code.Type),
		"subject", code.Subject,
		"correlation_id", code.CorrelationID,
		"payload", string(payload),
		"created_at", code.CreatedAt.UnixMilli(),
		"expires_at", code.ExpiresAt.UnixMilli(),
		"used_at", 0,
	}
	err = insertCodeLua.Run(ctx, r.redis, []string{r.key(code.TenantID, codes.Ref{Type: code.Type, ID: code.ID})}, args...).Err()
	if err != nil {
		if scriptError(err) == "exists" {
			return codes.ErrCodeExists
		}
		return errors.Wrap(err, "[Repo.Insert]")
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, tenantID string, ref codes.Ref) (*codes.Code, error) {
	fields, err := r.redis.HGetAll(ctx, r.key(tenantID, ref)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "[Repo.Get]")
	}
	if len(fields) == 0 {
		return nil, codes.ErrInvalidCode
	}
	return decode(fields)
}

func (r *Repo) Consume(ctx context.Context, tenantID string, ref codes.Ref, expectedSubject string, now time.Time) (*codes.Code, error) {
	res, err := consumeCodeLua.Run(ctx, r.redis, []string{r.key(tenantID, ref)}, now.UnixMilli(), expectedSubject).Result()
	if err != nil {
		return nil, mapScriptError(err)
	}
	fields, err := pairsToMap(res)
	if err != nil {
		return nil, err
	}
	return decode(fields)
}

func (r *Repo) ConsumePair(ctx context.Context, tenantID string, request, verification codes.Ref, now time.Time) (*codes.Code, *codes.Code, error) {
	keys := []string{r.key(tenantID, request), r.key(tenantID, verification)}
	res, err := consumePairLua.Run(ctx, r.redis, keys, now.UnixMilli()).Result()
	if err != nil {
		return nil, nil, mapScriptError(err)
	}
	both, ok := res.([]interface{})
	if !ok || len(both) != 2 {
		return nil, nil, errors.Errorf("[Repo.ConsumePair] unexpected lua result %T", res)
	}
	reqFields, err := pairsToMap(both[0])
	if err != nil {
		return nil, nil, err
	}
	verFields, err := pairsToMap(both[1])
	if err != nil {
		return nil, nil, err
	}
	req, err := decode(reqFields)
	if err != nil {
		return nil, nil, err
	}
	ver, err := decode(verFields)
	if err != nil {
		return nil, nil, err
	}
	return req, ver, nil
}

// DeleteExpired is a no-op: Redis removes codes through key expiry.
func (r *Repo) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

// scriptError strips the prefix some Redis versions add to script errors.
func scriptError(err error) string {
	return strings.TrimPrefix(err.Error(), "ERR ")
}

func mapScriptError(err error) error {
	switch scriptError(err) {
	case "not_found":
		return codes.ErrInvalidCode
	case "already_used":
		return codes.ErrAlreadyUsed
	case "expired":
		return codes.ErrExpired
	case "mismatch":
		return codes.ErrSubjectMismatch
	case "unresolved":
		return codes.ErrUnresolvedRequest
	case "partial":
		return codes.ErrPartiallyConsumed
	}
	return apperrors.WithKind(apperrors.KindStorage, err, "redis code script")
}

func pairsToMap(res interface{}) (map[string]string, error) {
	list, ok := res.([]interface{})
	if !ok || len(list)%2 != 0 {
		return nil, errors.Errorf("[pairsToMap] unexpected hash result %T", res)
	}
	out := make(map[string]string, len(list)/2)
	for i := 0; i < len(list); i += 2 {
		k, _ := list[i].(string)
		v, _ := list[i+1].(string)
		out[k] = v
	}
	return out, nil
}

func decode(fields map[string]string) (*codes.Code, error) {
	c := &codes.Code{
		TenantID:      fields["tenant_id"],
		ID:            fields["id"],
		Type:          codes.Type(fields["type"]),
		Subject:       fields["subject"],
		CorrelationID: fields["correlation_id"],
	}
	if p := fields["payload"]; p != "" && p != "null" {
		if err := json.Unmarshal([]byte(p), &c.Payload); err != nil {
			return nil, errors.Wrap(err, "[decode] payload")
		}
	}
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "[decode] created_at")
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "[decode] expires_at")
	}
	used, err := strconv.ParseInt(fields["used_at"], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "[decode] used_at")
	}
	c.CreatedAt = time.UnixMilli(created)
	c.ExpiresAt = time.UnixMilli(expires)
	if used > 0 {
		u := time.UnixMilli(used)
		c.UsedAt = &u
	}
	return c, nil
}
