package query

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Mutation is a server write together with the cache entries it affects.
type Mutation[T any] struct {
	Name string
	Call func(ctx context.Context) (T, error)
	// Invalidates lists the key prefixes marked expired after a successful call.
	// Nothing else is touched.
	Invalidates []Key
	// Patch, when set, is a detail entry updated in place with the response
	// before invalidation. Merge combines the cached value with the response
	// and defaults to MergeJSON.
	Patch Key
	Merge func(prev, next T) (T, error)
}

// Mutate runs m.Call and, only on success, applies the patch and invalidates
// the declared keys.
func Mutate[T any](ctx context.Context, c *Cache, m Mutation[T]) (T, error) {
	result, err := m.Call(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Str("mutation", m.Name).Msg("mutation failed, cache untouched")
		return result, err
	}

	if len(m.Patch) > 0 {
		patchEntry(c, m, result)
	}
	for _, key := range m.Invalidates {
		c.Invalidate(ctx, key)
	}
	return result, nil
}

func patchEntry[T any](c *Cache, m Mutation[T], result T) {
	prev, ok := GetData[T](c, m.Patch)
	if !ok {
		return
	}
	merge := m.Merge
	if merge == nil {
		merge = MergeJSON[T]
	}
	merged, err := merge(prev, result)
	if err != nil {
		c.logger.Warn().Err(err).Str("mutation", m.Name).Str("key", m.Patch.String()).Msg("could not patch cached entry")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[m.Patch.id()]; ok && e.hasData {
		e.data = merged
		e.version++
	}
}

// MergeJSON overlays the non-null top level fields of next on prev, going
// through their JSON encoding.
func MergeJSON[T any](prev, next T) (T, error) {
	var zero T
	base, err := toObject(prev)
	if err != nil {
		return zero, errors.Wrap(err, "MergeJSON prev")
	}
	overlay, err := toObject(next)
	if err != nil {
		return zero, errors.Wrap(err, "MergeJSON next")
	}
	for k, v := range overlay {
		if string(v) == "null" {
			continue
		}
		base[k] = v
	}

	raw, err := json.Marshal(base)
	if err != nil {
		return zero, errors.Wrap(err, "MergeJSON encode")
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, errors.Wrap(err, "MergeJSON decode")
	}
	return out, nil
}

func toObject(v interface{}) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	obj := map[string]json.RawMessage{}
	if string(raw) == "null" {
		return obj, nil
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}
