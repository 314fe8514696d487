package adapter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aelexs/edge-session-gateway/internal/edge/app"
	redisclient "github.com/aelexs/edge-session-gateway/internal/redis"
)

// denylistPrefix is the Redis key prefix for revoked refresh token hashes.
// Key pattern: revoked_rt:{sha256(token)} per ADR-021 §5.2. Raw tokens
// never reach Redis.
const denylistPrefix = "revoked_rt:"

// Compile-time check: Denylist satisfies app.Denylist.
var _ app.Denylist = (*Denylist)(nil)

// Denylist tracks revoked refresh tokens in Redis. Entries carry the
// remaining token lifetime as TTL, so the set stays bounded by the number
// of logouts inside one refresh window.
//
// Reads fail open (ADR-021 §5.2): the caller treats a Redis error as "not
// revoked" and keeps serving. The backend still rejects the token at the
// next exchange, so the exposure window is bounded by the access token
// lifetime.
type Denylist struct {
	cmd redisclient.Cmdable
}

// NewDenylist creates a Denylist that uses cmd for Redis operations.
func NewDenylist(cmd redisclient.Cmdable) *Denylist {
	return &Denylist{cmd: cmd}
}

// Revoke marks a refresh token hash as revoked for ttl.
func (d *Denylist) Revoke(ctx context.Context, tokenHash string, ttl time.Duration) error {
	ctx, span := tracer.Start(ctx, "redis.denylist.revoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "SET"),
	)

	if ttl <= 0 {
		ttl = time.Second
	}

	err := d.cmd.Set(ctx, denylistPrefix+tokenHash, "1", ttl).Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("denylist token: %w", err)
	}

	return nil
}

// IsRevoked checks whether a refresh token hash has been revoked. On Redis
// failure it returns (false, err); the caller decides, and the shipped
// caller fails open.
func (d *Denylist) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis.denylist.is_revoked")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "EXISTS"),
	)

	result, err := d.cmd.Exists(ctx, denylistPrefix+tokenHash).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("check denylist: %w", err)
	}

	return result > 0, nil
}
