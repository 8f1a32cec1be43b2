package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/collection-planner/internal/logging"
	"github.com/signalsfoundry/collection-planner/internal/store"
)

func TestServeCommandRegistered(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", cmd.Name())

	for _, name := range []string{"config", "listen-addr", "metrics-addr", "redis-addr", "max-concurrent"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestBuildCacheDefaultsToMemory(t *testing.T) {
	serveFlags.redisAddr = ""
	cache, closeCache := buildCache(context.Background(), logging.Noop())
	defer closeCache()

	_, ok := cache.(*store.Memory)
	assert.True(t, ok)
}

func TestServeMetricsNilCollector(t *testing.T) {
	assert.Nil(t, serveMetrics(":0", nil, logging.Noop()))
}
