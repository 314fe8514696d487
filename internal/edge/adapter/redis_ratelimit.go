package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aelexs/edge-session-gateway/internal/edge/app"
	redisclient "github.com/aelexs/edge-session-gateway/internal/redis"
)

// rateLimitScript atomically increments a counter and sets a TTL on the
// first write. This avoids the MULTI/EXEC approach which cannot
// conditionally EXPIRE only on the first increment, and avoids depending
// on EXPIRE ... NX (Redis 7.0+).
const rateLimitScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`

// Compile-time check: RateLimiter satisfies app.RateLimiter.
var _ app.RateLimiter = (*RateLimiter)(nil)

// RateLimiter implements fixed-window rate limiting backed by Redis.
// Errors are returned to the caller; the app layer decides which limits
// fail open and which fail closed (ADR-021 §5.1).
type RateLimiter struct {
	cmd redisclient.Cmdable
}

// NewRateLimiter creates a RateLimiter that uses cmd for Redis operations.
func NewRateLimiter(cmd redisclient.Cmdable) *RateLimiter {
	return &RateLimiter{cmd: cmd}
}

// CheckAndIncrement atomically increments the counter for key and checks
// whether the count exceeds limit within a fixed window of windowSeconds.
// Returns (true, nil) if the request is allowed, (false, nil) if the
// limit is exceeded, and (false, err) on Redis failure.
func (r *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit, windowSeconds int) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis.ratelimit.check")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "EVAL"),
	)

	count, err := r.cmd.Eval(ctx, rateLimitScript, []string{key}, windowSeconds).Int64()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("rate limit check %q: %w", key, err)
	}

	return count <= int64(limit), nil
}
