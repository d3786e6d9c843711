package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/civic-console/metrics"
)

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := metrics.NewPrometheus(reg)
	require.NoError(t, err)

	p.CacheRead("accounts", metrics.CacheHit)
	p.CacheRead("accounts", metrics.CacheHit)
	p.CacheRead("accounts", metrics.CacheMiss)
	p.CacheRefetch("workspaces")
	p.CacheInvalidated("accounts", 3)
	p.TokenRefresh(metrics.RefreshFailed)
	p.SessionCleared()

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 6, count)

	_, err = metrics.NewPrometheus(reg)
	require.Error(t, err, "registering twice must fail")
}
