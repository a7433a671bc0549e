package redis

import (
	"context"
	"testing"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient_AppliesPoolOptions(t *testing.T) {
	client := NewRedisClient(&config.RedisConfig{
		Addr:         "localhost:6379",
		DB:           2,
		PoolSize:     7,
		MinIdleConns: 2,
		MaxRetries:   1,
		DialTimeout:  time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 4 * time.Second,
	})
	defer client.Close()

	opts := client.Options()
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 2, opts.MinIdleConns)
	assert.Equal(t, 1, opts.MaxRetries)
	assert.Equal(t, time.Second, opts.DialTimeout)
	assert.Equal(t, 3*time.Second, opts.ReadTimeout)
	assert.Equal(t, 4*time.Second, opts.WriteTimeout)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), &config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestConnect_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Connect(context.Background(), &config.RedisConfig{Addr: addr, MaxRetries: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}
