package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"authcore/internal/ledger/domain"
)

// consumeScript deletes a live record and returns its fields. Deleting is the
// "used" mark: a second caller finds nothing.
var consumeScript = redis.NewScript(`
local exp = redis.call('HGET', KEYS[1], 'expires_at')
if not exp then return false end
if tonumber(exp) <= tonumber(ARGV[1]) then return false end
local v = redis.call('HGETALL', KEYS[1])
redis.call('DEL', KEYS[1])
return v
`)

var revokeScript = redis.NewScript(`
local exp = redis.call('HGET', KEYS[1], 'expires_at')
if not exp then return false end
if tonumber(exp) <= tonumber(ARGV[1]) then return false end
if redis.call('HGET', KEYS[1], 'revoked') == '1' then return false end
redis.call('HSET', KEYS[1], 'revoked', '1', 'revoked_at', ARGV[1])
return redis.call('HGETALL', KEYS[1])
`)

// revokeAllScript walks the user's token set; members whose record has expired are dropped.
var revokeAllScript = redis.NewScript(`
local n = 0
for _, h in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  local k = ARGV[2] .. h
  local rev = redis.call('HGET', k, 'revoked')
  if not rev then
    redis.call('SREM', KEYS[1], h)
  elseif rev == '0' then
    redis.call('HSET', k, 'revoked', '1', 'revoked_at', ARGV[1])
    n = n + 1
  end
end
return n
`)

// RedisRepository is the token ledger on Redis. Records are hashes whose key
// expires at the record's expiry, so no sweeping is needed. It needs a single
// Redis node: RevokeAllRefreshTokens touches keys it only learns inside its script.
type RedisRepository struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisRepository returns a ledger repository on rdb. prefix namespaces all keys (e.g. "authcore:").
func NewRedisRepository(rdb *redis.Client, prefix string) *RedisRepository {
	return &RedisRepository{rdb: rdb, prefix: prefix}
}

func (r *RedisRepository) otpKey(userID, codeHash string) string {
	return r.prefix + "otp:" + userID + ":" + codeHash
}

func (r *RedisRepository) refreshPrefix() string { return r.prefix + "rt:" }

func (r *RedisRepository) refreshKey(tokenHash string) string { return r.refreshPrefix() + tokenHash }

func (r *RedisRepository) refreshIDKey(id string) string { return r.prefix + "rtid:" + id }

func (r *RedisRepository) userRefreshKey(userID string) string { return r.prefix + "rtu:" + userID }

func (r *RedisRepository) resetKey(tokenHash string) string { return r.prefix + "prt:" + tokenHash }

func ms(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// CreateOTP stores the OTP under (user, code hash) with native expiry.
func (r *RedisRepository) CreateOTP(ctx context.Context, c *domain.OTPCode) error {
	key := r.otpKey(c.UserID, c.CodeHash)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"id":         c.ID,
		"user_id":    c.UserID,
		"code_hash":  c.CodeHash,
		"purpose":    string(c.Purpose),
		"expires_at": ms(c.ExpiresAt),
		"created_at": ms(c.CreatedAt),
	})
	pipe.PExpireAt(ctx, key, c.ExpiresAt)
	_, err := pipe.Exec(ctx)
	return err
}

// ConsumeOTP atomically takes the live OTP of userID with codeHash.
func (r *RedisRepository) ConsumeOTP(ctx context.Context, userID, codeHash string, now time.Time) (*domain.OTPCode, error) {
	vals, err := runFields(ctx, consumeScript, r.rdb, []string{r.otpKey(userID, codeHash)}, now.UnixMilli())
	if err != nil || vals == nil {
		return nil, err
	}
	usedAt := time.UnixMilli(now.UnixMilli()).UTC()
	return &domain.OTPCode{
		ID:        vals["id"],
		UserID:    vals["user_id"],
		CodeHash:  vals["code_hash"],
		Purpose:   domain.Purpose(vals["purpose"]),
		ExpiresAt: msField(vals, "expires_at"),
		CreatedAt: msField(vals, "created_at"),
		Used:      true,
		UsedAt:    &usedAt,
	}, nil
}

// CreateRefreshToken stores the token record, an id index and the user's token set membership.
func (r *RedisRepository) CreateRefreshToken(ctx context.Context, t *domain.RefreshToken) error {
	key := r.refreshKey(t.TokenHash)
	userKey := r.userRefreshKey(t.UserID)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"id":         t.ID,
		"user_id":    t.UserID,
		"token_hash": t.TokenHash,
		"expires_at": ms(t.ExpiresAt),
		"revoked":    "0",
		"created_at": ms(t.CreatedAt),
	})
	pipe.PExpireAt(ctx, key, t.ExpiresAt)
	pipe.Set(ctx, r.refreshIDKey(t.ID), t.TokenHash, 0)
	pipe.PExpireAt(ctx, r.refreshIDKey(t.ID), t.ExpiresAt)
	pipe.SAdd(ctx, userKey, t.TokenHash)
	pipe.PExpireAt(ctx, userKey, t.ExpiresAt)
	_, err := pipe.Exec(ctx)
	return err
}

// GetRefreshToken returns the refresh token entry for id, or nil if not found or expired.
func (r *RedisRepository) GetRefreshToken(ctx context.Context, id string) (*domain.RefreshToken, error) {
	hash, err := r.rdb.Get(ctx, r.refreshIDKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	vals, err := r.rdb.HGetAll(ctx, r.refreshKey(hash)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return refreshFromFields(vals), nil
}

// RevokeRefreshToken atomically revokes the live token with tokenHash.
func (r *RedisRepository) RevokeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	vals, err := runFields(ctx, revokeScript, r.rdb, []string{r.refreshKey(tokenHash)}, now.UnixMilli())
	if err != nil || vals == nil {
		return nil, err
	}
	return refreshFromFields(vals), nil
}

// RevokeAllRefreshTokens revokes every unrevoked token of userID in one script.
func (r *RedisRepository) RevokeAllRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error) {
	return revokeAllScript.Run(ctx, r.rdb, []string{r.userRefreshKey(userID)}, now.UnixMilli(), r.refreshPrefix()).Int64()
}

// CreateResetToken stores the reset token with native expiry.
func (r *RedisRepository) CreateResetToken(ctx context.Context, t *domain.ResetToken) error {
	key := r.resetKey(t.TokenHash)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"id":         t.ID,
		"user_id":    t.UserID,
		"token_hash": t.TokenHash,
		"expires_at": ms(t.ExpiresAt),
		"created_at": ms(t.CreatedAt),
	})
	pipe.PExpireAt(ctx, key, t.ExpiresAt)
	_, err := pipe.Exec(ctx)
	return err
}

// GetResetToken returns the live reset token with tokenHash without spending it.
func (r *RedisRepository) GetResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error) {
	vals, err := r.rdb.HGetAll(ctx, r.resetKey(tokenHash)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	t := resetFromFields(vals)
	if !t.ExpiresAt.After(now) {
		return nil, nil
	}
	return t, nil
}

// ConsumeResetToken atomically takes the live reset token with tokenHash.
func (r *RedisRepository) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error) {
	vals, err := runFields(ctx, consumeScript, r.rdb, []string{r.resetKey(tokenHash)}, now.UnixMilli())
	if err != nil || vals == nil {
		return nil, err
	}
	usedAt := time.UnixMilli(now.UnixMilli()).UTC()
	t := resetFromFields(vals)
	t.Used = true
	t.UsedAt = &usedAt
	return t, nil
}

// ReleaseResetToken stores t again; consuming deleted it.
func (r *RedisRepository) ReleaseResetToken(ctx context.Context, t *domain.ResetToken, now time.Time) error {
	if !t.ExpiresAt.After(now) {
		return nil
	}
	return r.CreateResetToken(ctx, t)
}

// DeleteExpired is a no-op: Redis expires keys itself.
func (r *RedisRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// runFields runs a script returning HGETALL output or nil. A nil reply yields (nil, nil).
func runFields(ctx context.Context, s *redis.Script, rdb redis.Scripter, keys []string, args ...interface{}) (map[string]string, error) {
	flat, err := s.Run(ctx, rdb, keys, args...).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		out[flat[i]] = flat[i+1]
	}
	return out, nil
}

func msField(vals map[string]string, name string) time.Time {
	n, _ := strconv.ParseInt(vals[name], 10, 64)
	return time.UnixMilli(n).UTC()
}

func resetFromFields(vals map[string]string) *domain.ResetToken {
	return &domain.ResetToken{
		ID:        vals["id"],
		UserID:    vals["user_id"],
		TokenHash: vals["token_hash"],
		ExpiresAt: msField(vals, "expires_at"),
		CreatedAt: msField(vals, "created_at"),
	}
}

func refreshFromFields(vals map[string]string) *domain.RefreshToken {
	t := &domain.RefreshToken{
		ID:        vals["id"],
		UserID:    vals["user_id"],
		TokenHash: vals["token_hash"],
		ExpiresAt: msField(vals, "expires_at"),
		Revoked:   vals["revoked"] == "1",
		CreatedAt: msField(vals, "created_at"),
	}
	if _, ok := vals["revoked_at"]; ok {
		ts := msField(vals, "revoked_at")
		t.RevokedAt = &ts
	}
	return t
}
