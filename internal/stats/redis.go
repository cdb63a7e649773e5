package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRecorder writes decision counts to Redis hashes:
//
//	<prefix>:total                  field <class>:<outcome>, cumulative
//	<prefix>:minute:<YYYYMMDDhhmm>  field <class>:<outcome>, expires after ttl
//
// Rate-limit state itself never lives in Redis.
type RedisRecorder struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisRecorder creates a recorder. An empty prefix uses "gatekeeper:stats".
func NewRedisRecorder(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisRecorder {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "gatekeeper:stats"
	}
	return &RedisRecorder{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *RedisRecorder) Record(ctx context.Context, ev Event) error {
	if r == nil || r.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := eventField(ev)
	bucketKey := r.minuteKey(at)

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.totalKey(), field, 1)
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, bucketKey, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record decision in redis: %w", err)
	}
	return nil
}

// Ping checks connectivity, for startup and health reporting.
func (r *RedisRecorder) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisRecorder) Close() error {
	return r.rdb.Close()
}

func (r *RedisRecorder) totalKey() string {
	return r.prefix + ":total"
}

func (r *RedisRecorder) minuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
}

func eventField(ev Event) string {
	class := ev.RuleClass
	if class == "" {
		class = "none"
	}
	return class + ":" + string(ev.Outcome)
}
