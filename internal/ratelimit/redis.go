package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/credence/internal/model"
	"github.com/redis/go-redis/v9"
)

// admitScript prunes, checks, and records an attempt atomically.
// KEYS[1] actor window, KEYS[2] actor+operation window.
// ARGV: now ms, window ms, total limit, operation limit (0 = none), member.
// Returns {allowed, count, oldest ms}.
var admitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local oplimit = tonumber(ARGV[4])
local member = ARGV[5]
local cutoff = now - window

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', cutoff)
local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
	local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	return {0, count, tonumber(oldest[2])}
end

if oplimit > 0 then
	redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', cutoff)
	local opcount = redis.call('ZCARD', KEYS[2])
	if opcount >= oplimit then
		local oldest = redis.call('ZRANGE', KEYS[2], 0, 0, 'WITHSCORES')
		return {0, count, tonumber(oldest[2])}
	end
	redis.call('ZADD', KEYS[2], now, member)
	redis.call('PEXPIRE', KEYS[2], window)
end

redis.call('ZADD', KEYS[1], now, member)
redis.call('PEXPIRE', KEYS[1], window)
return {1, count + 1, 0}
`)

// RedisWindow is an Admitter whose windows live in Redis sorted sets, so
// limits hold across several processes. Keys expire with the window, which
// keeps idle actors from accumulating. The global limit is not enforced here.
type RedisWindow struct {
	client redis.UniversalClient
	cfg    Config
	now    func() time.Time
	vip    map[string]bool
}

// NewRedisWindow creates a Redis-backed limiter.
func NewRedisWindow(client redis.UniversalClient, cfg Config) *RedisWindow {
	cfg = cfg.withDefaults()
	vip := make(map[string]bool, len(cfg.VIPActors))
	for _, a := range cfg.VIPActors {
		vip[a] = true
	}
	return &RedisWindow{client: client, cfg: cfg, now: time.Now, vip: vip}
}

// Admit records an attempt in Redis if it fits in the window.
func (l *RedisWindow) Admit(ctx context.Context, actorID string, op model.InputKind) (Decision, error) {
	if actorID == "" {
		return Decision{}, ErrMissingActor
	}

	now := l.now()
	total, perOp := l.cfg.limits(l.vip[actorID], op)
	keys := []string{actorKey(actorID), actorKey(actorID) + ":" + string(op)}
	member := fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())

	res, err := admitScript.Run(ctx, l.client, keys,
		now.UnixMilli(), l.cfg.Window.Milliseconds(), total, perOp, member,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis admit %s: %w", actorID, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("redis admit %s: unexpected reply %v", actorID, res)
	}

	if res[0] == 1 {
		return Decision{Allowed: true, Limit: total, Remaining: total - int(res[1])}, nil
	}

	limit := total
	if int(res[1]) < total {
		limit = perOp
	}
	oldest := time.UnixMilli(res[2])
	return Decision{Limit: limit, RetryAfter: retryAfter(l.cfg.Window, now, oldest)}, nil
}

// Reset forgets an actor's windows.
func (l *RedisWindow) Reset(ctx context.Context, actorID string) error {
	keys := []string{actorKey(actorID)}
	for _, kind := range []model.InputKind{model.KindText, model.KindURL, model.KindImage} {
		keys = append(keys, actorKey(actorID)+":"+string(kind))
	}
	return l.client.Del(ctx, keys...).Err()
}

// actorKey hash-tags the actor so both keys land in one cluster slot.
func actorKey(actorID string) string {
	return "credence:v1:rl:{" + actorID + "}"
}
