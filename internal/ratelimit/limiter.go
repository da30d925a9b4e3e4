// Package ratelimit counts attempts in Redis and refuses a subject once it
// exceeds a rule's budget within the rule's window.
package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule is an attempt budget: at most Max attempts per Window.
type Rule struct {
	Name   string
	Max    int64
	Window time.Duration
}

var (
	// LoginRule throttles password attempts per email.
	LoginRule = Rule{Name: "login", Max: 5, Window: 15 * time.Minute}
	// OTPRule throttles OTP guesses per user.
	OTPRule = Rule{Name: "otp", Max: 5, Window: 10 * time.Minute}
	// ForgotRule throttles reset emails per address and client IP.
	ForgotRule = Rule{Name: "forgot", Max: 5, Window: 15 * time.Minute}
	// ForgotIPRule caps reset requests from one client IP across all addresses.
	ForgotIPRule = Rule{Name: "forgot_ip", Max: 20, Window: 15 * time.Minute}
)

// Limiter is a Redis-backed attempt counter.
type Limiter struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewLimiter returns a Limiter on rdb. prefix namespaces keys (e.g. "authcore:").
func NewLimiter(rdb redis.UniversalClient, prefix string) *Limiter {
	return &Limiter{rdb: rdb, prefix: prefix}
}

func (l *Limiter) key(rule Rule, subject string) string {
	return l.prefix + "attempts:" + rule.Name + ":" + strings.ToLower(subject)
}

// reserveScript counts one attempt and starts the window on the first one. A
// counter found without an expiry gets one, so a key never outlives its window.
var reserveScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Reserve counts one attempt of subject against rule before the attempt is
// evaluated and reports whether it is within budget. Callers Reset on success.
func (l *Limiter) Reserve(ctx context.Context, rule Rule, subject string) (bool, error) {
	n, err := reserveScript.Run(ctx, l.rdb, []string{l.key(rule, subject)}, rule.Window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n <= rule.Max, nil
}

// Reset clears the counter, e.g. after a successful attempt.
func (l *Limiter) Reset(ctx context.Context, rule Rule, subject string) error {
	return l.rdb.Del(ctx, l.key(rule, subject)).Err()
}

// TTL returns how long until subject's counter for rule expires.
func (l *Limiter) TTL(ctx context.Context, rule Rule, subject string) (time.Duration, error) {
	return l.rdb.TTL(ctx, l.key(rule, subject)).Result()
}
