package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolOptionsDefaults(t *testing.T) {
	o := PoolOptions{}.withDefaults()
	assert.Equal(t, 10, o.MaxOpenConns)
	assert.Equal(t, 5, o.MaxIdleConns)
	assert.Equal(t, time.Hour, o.ConnMaxLifetime)
	assert.Equal(t, 5*time.Second, o.PingTimeout)
}

func TestPoolOptionsIdleCappedByOpen(t *testing.T) {
	o := PoolOptions{MaxOpenConns: 4, MaxIdleConns: 40}.withDefaults()
	assert.Equal(t, 4, o.MaxOpenConns)
	assert.Equal(t, 2, o.MaxIdleConns)

	// A single-connection pool still keeps one idle slot.
	o = PoolOptions{MaxOpenConns: 1}.withDefaults()
	assert.Equal(t, 1, o.MaxIdleConns)
}

func TestRedisOptionsDefaults(t *testing.T) {
	o := RedisOptions{Addr: "localhost:6379"}.withDefaults()
	assert.Equal(t, 2*time.Second, o.DialTimeout)
	assert.Equal(t, time.Second, o.OpTimeout)

	o = RedisOptions{Addr: "localhost:6379", DialTimeout: 5 * time.Second, OpTimeout: 3 * time.Second}.withDefaults()
	assert.Equal(t, 5*time.Second, o.DialTimeout)
	assert.Equal(t, 3*time.Second, o.OpTimeout)
}

func TestRedisHealthyNilSafe(t *testing.T) {
	var r *Redis
	assert.False(t, r.Healthy(context.Background()))
	assert.False(t, (&Redis{}).Healthy(context.Background()))
}
