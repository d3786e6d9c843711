package config

import "time"

type CacheConfig interface {
	GetStaleTime() time.Duration
	GetExpireTime() time.Duration
	GetRetryCount() int
	GetRetryWaitMin() time.Duration
	GetRetryWaitMax() time.Duration
	GetRefetchOnFocus() bool
	GetRefetchOnReconnect() bool
	GetSweepInterval() time.Duration
}

type Cache struct {
	source
}

var _ CacheConfig = Cache{}

func (c Cache) GetStaleTime() time.Duration {
	return c.duration("CACHE_STALE_TIME", 5*time.Minute)
}

func (c Cache) GetExpireTime() time.Duration {
	return c.duration("CACHE_EXPIRE_TIME", 30*time.Minute)
}

func (c Cache) GetRetryCount() int {
	return c.integer("CACHE_RETRY_COUNT", 3)
}

func (c Cache) GetRetryWaitMin() time.Duration {
	return c.duration("CACHE_RETRY_WAIT_MIN", time.Second)
}

func (c Cache) GetRetryWaitMax() time.Duration {
	return c.duration("CACHE_RETRY_WAIT_MAX", 30*time.Second)
}

func (c Cache) GetRefetchOnFocus() bool {
	return c.boolean("CACHE_REFETCH_ON_FOCUS", true)
}

func (c Cache) GetRefetchOnReconnect() bool {
	return c.boolean("CACHE_REFETCH_ON_RECONNECT", false)
}

func (c Cache) GetSweepInterval() time.Duration {
	return c.duration("CACHE_SWEEP_INTERVAL", time.Minute)
}
