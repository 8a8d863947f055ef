package database

import (
	"context"
	"testing"

	"survey-sync/internal/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)

	client := NewRedis(config.RedisConfig{Address: mr.Addr()})
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()))

	fromURL, err := NewRedisFromURL("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	defer fromURL.Close()
	require.NoError(t, fromURL.Ping(context.Background()))
}

func TestNewRedisFromURL_Invalid(t *testing.T) {
	_, err := NewRedisFromURL("http://not-redis")
	assert.Error(t, err)
}

func TestNewPostgres_OpensLazily(t *testing.T) {
	client, err := NewPostgres(config.PostgresConfig{
		Host: "127.0.0.1", Port: 1, Database: "survey", User: "u", SSLMode: "disable",
		MaxConnections: 2, MaxIdle: 1,
	})
	require.NoError(t, err)
	assert.NotNil(t, client.DB)
	assert.NoError(t, client.Close())
}
