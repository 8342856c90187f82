package main

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/secureauth/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunNeverGrantsMoreThanMax(t *testing.T) {
	for _, backend := range []string{"memory", "redis"} {
		t.Run(backend, func(t *testing.T) {
			t.Setenv("REDIS_ADDR", "")
			limiter, cleanup, err := newLimiter(backend, "")
			require.NoError(t, err)
			defer cleanup()

			policy := ratelimit.Policy{MaxAttempts: 3, Window: time.Hour, Block: time.Hour}
			res, err := run(context.Background(), limiter, policy, 10, 500, 16)
			require.NoError(t, err)

			assert.Zero(t, res.violations)
			assert.Equal(t, int64(30), res.allowed)
			assert.Equal(t, int64(470), res.denied)
			assert.Equal(t, 500, res.stats.ops)
		})
	}
}

func TestNewLimiterRejectsUnknownBackend(t *testing.T) {
	_, _, err := newLimiter("etcd", "")
	assert.Error(t, err)
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(1), percentile(samples, 0))
	assert.Equal(t, time.Duration(5), percentile(samples, 50))
	assert.Equal(t, time.Duration(10), percentile(samples, 100))
}
