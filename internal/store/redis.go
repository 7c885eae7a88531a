package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions tunes client timeouts. Zero values fall back to short
// defaults so a dead redis degrades requests instead of hanging them.
type RedisOptions struct {
	Addr         string
	DialTimeout  time.Duration
	OpTimeout    time.Duration
	HealthExpiry time.Duration
}

func (o RedisOptions) withDefaults() RedisOptions {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 2 * time.Second
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = time.Second
	}
	if o.HealthExpiry <= 0 {
		o.HealthExpiry = 2 * time.Second
	}
	return o
}

// Redis wraps a redis client.
type Redis struct {
	Client *redis.Client

	healthExpiry time.Duration
}

// NewRedis builds a client with the given timeouts applied to dial,
// read, and write paths.
func NewRedis(opts RedisOptions) *Redis {
	opts = opts.withDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.OpTimeout,
		WriteTimeout: opts.OpTimeout,
	})
	return &Redis{Client: client, healthExpiry: opts.HealthExpiry}
}

// Healthy verifies connectivity under its own short deadline so health
// probes cannot pile up behind a stalled server.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, r.healthExpiry)
	defer cancel()
	return r.Client.Ping(ctx).Err() == nil
}
