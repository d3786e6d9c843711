// Package storage provides the durable key/value backends that hold the
// console's persisted client state.
package storage

import (
	"context"

	"github.com/pkg/errors"
)

var ErrClosed = errors.New("storage closed")

// KV is a string-keyed store. Get reports whether the key exists. Delete with
// several keys removes them in a single backend operation where supported.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}
