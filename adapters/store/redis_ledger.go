package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/layer-3/keeper/core"
	"github.com/layer-3/keeper/ports"
	"github.com/redis/go-redis/v9"
)

// Each record is a hash under sessionPrefix+H(refresh) with fields access,
// subject, exp (unix ms) and state. accessPrefix+H(access) points back to
// H(refresh). Both keys expire with the refresh token, so Redis sweeps them.
var startScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'access', ARGV[1], 'subject', ARGV[3], 'exp', ARGV[4], 'state', 'open')
redis.call('PEXPIREAT', KEYS[1], ARGV[4])
redis.call('SET', KEYS[2], ARGV[2])
redis.call('PEXPIREAT', KEYS[2], ARGV[4])
return 1
`)

var closeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('HSET', KEYS[1], 'state', 'closed')
end
return 1
`)

var rotateScript = redis.NewScript(`
local old = redis.call('HMGET', KEYS[1], 'state', 'exp')
if old[1] ~= 'open' or tonumber(old[2]) <= tonumber(ARGV[1]) then
	return 0
end
if redis.call('EXISTS', KEYS[2]) == 1 then
	return -1
end
redis.call('HSET', KEYS[1], 'state', 'closed')
redis.call('HSET', KEYS[2], 'access', ARGV[2], 'subject', ARGV[4], 'exp', ARGV[5], 'state', 'open')
redis.call('PEXPIREAT', KEYS[2], ARGV[5])
redis.call('SET', KEYS[3], ARGV[3])
redis.call('PEXPIREAT', KEYS[3], ARGV[5])
return 1
`)

// RedisLedger is a Redis implementation of the Ledger interface
type RedisLedger struct {
	client        *redis.Client
	sessionPrefix string
	accessPrefix  string
	now           func() time.Time
}

// NewRedisLedger creates a new Redis ledger
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{
		client:        client,
		sessionPrefix: "keeper:session:",
		accessPrefix:  "keeper:access:",
		now:           time.Now,
	}
}

var _ ports.Ledger = (*RedisLedger)(nil)

// StartSession stores a new open record
func (s *RedisLedger) StartSession(ctx context.Context, record core.SessionRecord) error {
	refreshHash, accessHash := hashToken(record.Refresh), hashToken(record.Access)

	created, err := startScript.Run(ctx, s.client,
		[]string{s.sessionPrefix + refreshHash, s.accessPrefix + accessHash},
		accessHash, refreshHash, record.Subject, record.RefreshExpiresAt.UnixMilli(),
	).Int()
	if err != nil {
		return storeError("failed to start session", err)
	}
	if created == 0 {
		return ErrSessionExists
	}

	return nil
}

// IsOpen checks if the session of an access token is still open
func (s *RedisLedger) IsOpen(ctx context.Context, access string) (bool, error) {
	refreshHash, err := s.client.Get(ctx, s.accessPrefix+hashToken(access)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, storeError("failed to look up access token", err)
	}

	_, usable, err := s.load(ctx, refreshHash)
	return usable, err
}

// IsRefreshable checks if a refresh token may still be rotated
func (s *RedisLedger) IsRefreshable(ctx context.Context, refresh string) (bool, error) {
	_, usable, err := s.load(ctx, hashToken(refresh))
	return usable, err
}

// CheckTuple checks if both tokens belong to the same open record
func (s *RedisLedger) CheckTuple(ctx context.Context, access, refresh string) (bool, error) {
	vals, err := s.client.HMGet(ctx, s.sessionPrefix+hashToken(refresh), "access", "state").Result()
	if err != nil {
		return false, storeError("failed to check session tuple", err)
	}

	storedAccess, _ := vals[0].(string)
	state, _ := vals[1].(string)
	return storedAccess == hashToken(access) && core.SessionState(state) == core.SessionOpen, nil
}

// CloseSession marks the record of a refresh token closed
func (s *RedisLedger) CloseSession(ctx context.Context, refresh string) error {
	if err := closeScript.Run(ctx, s.client, []string{s.sessionPrefix + hashToken(refresh)}).Err(); err != nil {
		return storeError("failed to close session", err)
	}
	return nil
}

// Rotate closes the old record and stores next in a single script
func (s *RedisLedger) Rotate(ctx context.Context, oldRefresh string, next core.SessionRecord) error {
	refreshHash, accessHash := hashToken(next.Refresh), hashToken(next.Access)

	res, err := rotateScript.Run(ctx, s.client,
		[]string{
			s.sessionPrefix + hashToken(oldRefresh),
			s.sessionPrefix + refreshHash,
			s.accessPrefix + accessHash,
		},
		s.now().UnixMilli(), accessHash, refreshHash, next.Subject, next.RefreshExpiresAt.UnixMilli(),
	).Int()
	if err != nil {
		return storeError("failed to rotate session", err)
	}

	switch res {
	case 0:
		return core.ErrTokenInvalid
	case -1:
		return ErrSessionExists
	}
	return nil
}

// Sweep is a no-op: every key carries the refresh expiry as its TTL
func (s *RedisLedger) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

// load reads a record and reports whether it is usable now
func (s *RedisLedger) load(ctx context.Context, refreshHash string) (core.SessionRecord, bool, error) {
	vals, err := s.client.HMGet(ctx, s.sessionPrefix+refreshHash, "subject", "exp", "state").Result()
	if err != nil {
		return core.SessionRecord{}, false, storeError("failed to load session", err)
	}

	subject, _ := vals[0].(string)
	exp, _ := vals[1].(string)
	state, _ := vals[2].(string)
	if state == "" {
		return core.SessionRecord{}, false, nil
	}

	expMs, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return core.SessionRecord{}, false, storeError("corrupt session record", err)
	}

	record := core.SessionRecord{
		Subject:          subject,
		RefreshExpiresAt: time.UnixMilli(expMs),
		State:            core.SessionState(state),
	}
	return record, record.Usable(s.now()), nil
}

// hashToken keys records by token digest so raw bearer tokens never reach Redis
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func storeError(msg string, err error) error {
	return fmt.Errorf("%s: %w: %v", msg, core.ErrStoreOperationFailed, err)
}
