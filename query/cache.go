// Package query is a keyed read-through cache with stale-while-revalidate
// reads and mutation-scoped invalidation.
package query

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/civic-console/apiclient"
	"github.com/jrsteele09/civic-console/metrics"
)

// NoRetry disables retries for a query. Auth scoped reads use it, since their
// failures are handled by the session.
const NoRetry = -1

// Policy holds the cache wide defaults.
type Policy struct {
	StaleTime          time.Duration
	ExpireTime         time.Duration
	Retry              int
	RetryWaitMin       time.Duration
	RetryWaitMax       time.Duration
	RefetchOnFocus     bool
	RefetchOnReconnect bool
}

func DefaultPolicy() Policy {
	return Policy{
		StaleTime:      5 * time.Minute,
		ExpireTime:     30 * time.Minute,
		Retry:          3,
		RetryWaitMin:   time.Second,
		RetryWaitMax:   30 * time.Second,
		RefetchOnFocus: true,
	}
}

type fetchFunc func(ctx context.Context) (interface{}, error)

// settings are the effective options of the last query that read an entry.
type settings struct {
	staleTime   time.Duration
	expireTime  time.Duration
	retry       int
	onFocus     bool
	onReconnect bool
}

type entry struct {
	key         Key
	data        interface{}
	hasData     bool
	fetchedAt   time.Time
	staleAt     time.Time
	expiresAt   time.Time
	invalidated bool
	observers   int
	// version changes whenever the entry is invalidated or written, so a fetch
	// that started earlier can't overwrite newer state.
	version  uint64
	fetch    fetchFunc
	settings settings
}

// Cache is safe for concurrent use.
type Cache struct {
	policy    Policy
	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
	backoff   retryablehttp.Backoff
	retryable func(error) bool
	logger    zerolog.Logger
	recorder  metrics.Recorder

	mu         sync.Mutex
	entries    map[string]*entry
	generation uint64

	flights    singleflight.Group
	background sync.WaitGroup
	// refetching holds the flight ids with a background refetch running.
	refetching map[string]struct{}
}

type Option func(*Cache)

func WithPolicy(p Policy) Option {
	return func(c *Cache) {
		c.policy = p
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Cache) {
		c.nowFunc = now
	}
}

// WithSleepFunc replaces the wait between retries.
func WithSleepFunc(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Cache) {
		c.sleepFunc = sleep
	}
}

func WithBackoff(b retryablehttp.Backoff) Option {
	return func(c *Cache) {
		c.backoff = b
	}
}

// WithRetryable replaces the predicate deciding which fetch errors are retried.
func WithRetryable(fn func(error) bool) Option {
	return func(c *Cache) {
		c.retryable = fn
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(c *Cache) {
		c.recorder = r
	}
}

func New(options ...Option) *Cache {
	c := &Cache{
		policy:    DefaultPolicy(),
		nowFunc:   time.Now,
		sleepFunc: sleepContext,
		backoff:   retryablehttp.DefaultBackoff,
		retryable: apiclient.IsRetryable,
		logger:    log.Logger,
		recorder:  metrics.Nop{},
		entries:   map[string]*entry{},

		refetching: map[string]struct{}{},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Cache) Policy() Policy {
	return c.policy
}

// Query describes one cached read. Zero durations and a zero Retry fall back
// to the cache policy.
type Query[T any] struct {
	Key        Key
	Fetch      func(ctx context.Context) (T, error)
	StaleTime  time.Duration
	ExpireTime time.Duration
	Retry      int
	// DisableFocusRefetch opts out of refetching when the window regains focus.
	DisableFocusRefetch bool
	// RefetchOnReconnect opts in to refetching after connectivity returns.
	RefetchOnReconnect bool
}

func (c *Cache) settingsFor(staleTime, expireTime time.Duration, retry int, disableFocus, onReconnect bool) settings {
	s := settings{
		staleTime:   c.policy.StaleTime,
		expireTime:  c.policy.ExpireTime,
		retry:       c.policy.Retry,
		onFocus:     c.policy.RefetchOnFocus && !disableFocus,
		onReconnect: c.policy.RefetchOnReconnect || onReconnect,
	}
	if staleTime > 0 {
		s.staleTime = staleTime
	}
	if expireTime > 0 {
		s.expireTime = expireTime
	}
	if s.expireTime < s.staleTime {
		s.expireTime = s.staleTime
	}
	switch {
	case retry == NoRetry:
		s.retry = 0
	case retry > 0:
		s.retry = retry
	}
	return s
}

// Fetch reads q through the cache. Fresh data is returned without a call;
// stale data is returned and refetched in the background; absent, expired or
// invalidated data is fetched before returning.
func Fetch[T any](ctx context.Context, c *Cache, q Query[T]) (T, error) {
	var zero T
	fetch := func(ctx context.Context) (interface{}, error) {
		return q.Fetch(ctx)
	}
	v, err := c.read(ctx, q.Key, fetch, c.settingsFor(q.StaleTime, q.ExpireTime, q.Retry, q.DisableFocusRefetch, q.RefetchOnReconnect))
	if err != nil {
		return zero, err
	}
	return as[T](q.Key, v)
}

func (c *Cache) read(ctx context.Context, key Key, fetch fetchFunc, s settings) (interface{}, error) {
	now := c.nowFunc()

	c.mu.Lock()
	e, ok := c.entries[key.id()]
	if !ok {
		e = &entry{key: append(Key(nil), key...)}
		c.entries[key.id()] = e
	}
	e.fetch = fetch
	e.settings = s
	f := c.flightFor(e)

	if e.hasData && !e.invalidated {
		data := e.data
		switch {
		case now.Before(e.staleAt):
			c.mu.Unlock()
			c.recorder.CacheRead(key.Resource(), metrics.CacheHit)
			return data, nil
		case now.Before(e.expiresAt):
			c.mu.Unlock()
			c.recorder.CacheRead(key.Resource(), metrics.CacheStaleHit)
			c.refetchInBackground(ctx, f)
			return data, nil
		}
	}
	c.mu.Unlock()

	c.recorder.CacheRead(key.Resource(), metrics.CacheMiss)
	return c.load(ctx, f)
}

// flight is a fetch of one entry as it was when the fetch was requested.
type flight struct {
	key        Key
	fetch      fetchFunc
	settings   settings
	version    uint64
	generation uint64
}

// flightFor must be called with c.mu held.
func (c *Cache) flightFor(e *entry) flight {
	return flight{key: e.key, fetch: e.fetch, settings: e.settings, version: e.version, generation: c.generation}
}

func (f flight) id() string {
	return f.key.id() + "@" + strconv.FormatUint(f.version, 10) + "/" + strconv.FormatUint(f.generation, 10)
}

// load runs f once no matter how many callers ask concurrently. The shared
// fetch is detached from the caller's cancellation.
func (c *Cache) load(ctx context.Context, f flight) (interface{}, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(f.id(), func() (interface{}, error) {
		return c.fetchAndStore(detached, f)
	})
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) fetchAndStore(ctx context.Context, f flight) (interface{}, error) {
	v, err := c.withRetry(ctx, f.key, f.fetch, f.settings.retry)
	if err != nil {
		c.logger.Debug().Err(err).Str("key", f.key.String()).Msg("cache fetch failed")
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[f.key.id()]
	if !ok || f.generation != c.generation || f.version != e.version {
		// Removed, cleared, written or invalidated while in flight: hand the
		// result to the waiting callers but keep it out of the cache.
		return v, nil
	}
	c.write(e, v, c.nowFunc())
	return v, nil
}

func (c *Cache) withRetry(ctx context.Context, key Key, fetch fetchFunc, retries int) (interface{}, error) {
	for attempt := 0; ; attempt++ {
		v, err := fetch(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= retries || !c.retryable(err) {
			return nil, err
		}
		wait := c.backoff(c.policy.RetryWaitMin, c.policy.RetryWaitMax, attempt, nil)
		c.logger.Debug().Err(err).Str("key", key.String()).Int("attempt", attempt+1).Dur("wait", wait).Msg("retrying cache fetch")
		if err := c.sleepFunc(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// refetchInBackground starts a refetch unless one is already running for the
// same flight, and reports whether it started one.
func (c *Cache) refetchInBackground(ctx context.Context, f flight) bool {
	id := f.id()
	c.mu.Lock()
	if _, running := c.refetching[id]; running {
		c.mu.Unlock()
		return false
	}
	c.refetching[id] = struct{}{}
	c.mu.Unlock()

	c.recorder.CacheRefetch(f.key.Resource())
	detached := context.WithoutCancel(ctx)
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		defer func() {
			c.mu.Lock()
			delete(c.refetching, id)
			c.mu.Unlock()
		}()
		if _, err := c.load(detached, f); err != nil {
			c.logger.Warn().Err(err).Str("key", f.key.String()).Msg("background refetch failed")
		}
	}()
	return true
}

// Wait blocks until every background refetch started so far has finished.
func (c *Cache) Wait() {
	c.background.Wait()
}

// SetData writes v as fresh data for key using the cache policy windows.
func (c *Cache) SetData(key Key, v interface{}) {
	now := c.nowFunc()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.id()]
	if !ok {
		e = &entry{key: append(Key(nil), key...), settings: c.settingsFor(0, 0, 0, false, false)}
		c.entries[key.id()] = e
	}
	c.write(e, v, now)
}

func (c *Cache) write(e *entry, v interface{}, now time.Time) {
	e.data = v
	e.hasData = true
	e.fetchedAt = now
	e.staleAt = now.Add(e.settings.staleTime)
	e.expiresAt = now.Add(e.settings.expireTime)
	e.invalidated = false
	e.version++
}

// GetData returns the cached value for key without fetching, whatever its age.
func GetData[T any](c *Cache, key Key) (T, bool) {
	var zero T
	c.mu.Lock()
	e, ok := c.entries[key.id()]
	if !ok || !e.hasData {
		c.mu.Unlock()
		return zero, false
	}
	v := e.data
	c.mu.Unlock()

	t, err := as[T](key, v)
	if err != nil {
		return zero, false
	}
	return t, true
}

// Invalidate marks every entry under prefix as expired and refetches those
// with observers. It returns the number of entries marked.
func (c *Cache) Invalidate(ctx context.Context, prefix Key) int {
	c.mu.Lock()
	var observed []flight
	n := 0
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.invalidated = true
		e.version++
		n++
		if e.observers > 0 && e.fetch != nil {
			observed = append(observed, c.flightFor(e))
		}
	}
	c.mu.Unlock()

	if n > 0 {
		c.recorder.CacheInvalidated(prefix.Resource(), n)
		c.logger.Debug().Str("prefix", prefix.String()).Int("entries", n).Msg("cache invalidated")
	}
	for _, f := range observed {
		c.refetchInBackground(ctx, f)
	}
	return n
}

// Remove drops every entry under prefix.
func (c *Cache) Remove(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Clear drops everything. Fetches in flight complete for their callers but
// are not stored.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]*entry{}
	c.generation++
	c.logger.Debug().Msg("cache cleared")
}

// Sweep evicts entries past their expiry window that nobody observes, and
// returns how many were evicted.
func (c *Cache) Sweep() int {
	now := c.nowFunc()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if e.observers > 0 {
			continue
		}
		if !e.hasData || !now.Before(e.expiresAt) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Len is the number of entries, with or without data.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func as[T any](key Key, v interface{}) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, &TypeError{Key: key, Got: v}
	}
	return t, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
