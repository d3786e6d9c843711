package query

import (
	"context"
	"sync"
)

// Observer marks an entry as actively displayed. Observed entries are refetched
// after invalidation and on focus, and are never swept.
type Observer struct {
	cache *Cache
	key   Key
	entry *entry
	once  sync.Once
}

// Observe registers an observer for q.Key and reads it, so observing a stale
// entry triggers its refetch. The observer is returned even when the read
// fails and must be closed.
func Observe[T any](ctx context.Context, c *Cache, q Query[T]) (T, *Observer, error) {
	c.mu.Lock()
	e, ok := c.entries[q.Key.id()]
	if !ok {
		e = &entry{key: append(Key(nil), q.Key...)}
		c.entries[q.Key.id()] = e
	}
	e.observers++
	c.mu.Unlock()

	obs := &Observer{cache: c, key: e.key, entry: e}
	v, err := Fetch(ctx, c, q)
	return v, obs, err
}

func (o *Observer) Key() Key {
	return o.key
}

// Close releases the observer. It is safe to call more than once. An observer
// left over from before Clear releases nothing.
func (o *Observer) Close() {
	o.once.Do(func() {
		c := o.cache
		c.mu.Lock()
		defer c.mu.Unlock()
		if e := o.entry; c.entries[o.key.id()] == e && e.observers > 0 {
			e.observers--
		}
	})
}

// Focus refetches the observed entries that are stale or invalidated and whose
// query allows refetching on focus. It returns how many refetches started.
func (c *Cache) Focus(ctx context.Context) int {
	return c.refetchObserved(ctx, func(s settings) bool { return s.onFocus })
}

// Reconnect is Focus for queries that opted in to refetching on reconnect.
func (c *Cache) Reconnect(ctx context.Context) int {
	return c.refetchObserved(ctx, func(s settings) bool { return s.onReconnect })
}

func (c *Cache) refetchObserved(ctx context.Context, enabled func(settings) bool) int {
	now := c.nowFunc()
	c.mu.Lock()
	var due []flight
	for _, e := range c.entries {
		if e.observers == 0 || e.fetch == nil || !enabled(e.settings) {
			continue
		}
		if e.invalidated || !e.hasData || !now.Before(e.staleAt) {
			due = append(due, c.flightFor(e))
		}
	}
	c.mu.Unlock()

	started := 0
	for _, f := range due {
		if c.refetchInBackground(ctx, f) {
			started++
		}
	}
	return started
}
