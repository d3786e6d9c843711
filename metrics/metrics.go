// Package metrics exposes cache and session counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Cache outcomes for a read.
const (
	CacheHit      = "hit"
	CacheStaleHit = "stale_hit"
	CacheMiss     = "miss"
)

// Refresh outcomes.
const (
	RefreshSucceeded = "succeeded"
	RefreshFailed    = "failed"
	RefreshShared    = "shared"
	RefreshSkipped   = "skipped"
)

// Recorder is what the cache and API client report to.
type Recorder interface {
	CacheRead(resource, outcome string)
	CacheRefetch(resource string)
	CacheInvalidated(resource string, entries int)
	TokenRefresh(outcome string)
	SessionCleared()
}

// Nop discards everything.
type Nop struct{}

func (Nop) CacheRead(string, string) {}
func (Nop) CacheRefetch(string) {}
func (Nop) CacheInvalidated(string, int) {}
func (Nop) TokenRefresh(string) {}
func (Nop) SessionCleared() {}

var _ Recorder = Nop{}

// Prometheus implements Recorder with counters registered on a registry.
type Prometheus struct {
	cacheReads      *prometheus.CounterVec
	cacheRefetches  *prometheus.CounterVec
	invalidations   *prometheus.CounterVec
	tokenRefreshes  *prometheus.CounterVec
	sessionsCleared prometheus.Counter
}

var _ Recorder = (*Prometheus)(nil)

func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		cacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "cache",
			Name:      "reads_total",
			Help:      "Cache reads by resource and outcome.",
		}, []string{"resource", "outcome"}),
		cacheRefetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "cache",
			Name:      "background_refetches_total",
			Help:      "Background refetches started by resource.",
		}, []string{"resource"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "cache",
			Name:      "invalidated_entries_total",
			Help:      "Entries marked expired by mutations.",
		}, []string{"resource"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "auth",
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
		sessionsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "auth",
			Name:      "sessions_cleared_total",
			Help:      "Sessions cleared after a failed refresh.",
		}),
	}

	for _, c := range []prometheus.Collector{p.cacheReads, p.cacheRefetches, p.invalidations, p.tokenRefreshes, p.sessionsCleared} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) CacheRead(resource, outcome string) {
	p.cacheReads.WithLabelValues(resource, outcome).Inc()
}

func (p *Prometheus) CacheRefetch(resource string) {
	p.cacheRefetches.WithLabelValues(resource).Inc()
}

func (p *Prometheus) CacheInvalidated(resource string, entries int) {
	p.invalidations.WithLabelValues(resource).Add(float64(entries))
}

func (p *Prometheus) TokenRefresh(outcome string) {
	p.tokenRefreshes.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) SessionCleared() {
	p.sessionsCleared.Inc()
}
