package storage

import (
	"context"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Redis stores keys as plain redis strings with no expiry.
type Redis struct {
	client *goredis.Client
}

var _ KV = (*Redis)(nil)

func NewRedis(client *goredis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	if r.client == nil {
		return "", false, ErrClosed
	}
	v, err := r.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "storage.Redis Get")
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if r.client == nil {
		return ErrClosed
	}
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return errors.Wrap(err, "storage.Redis Set")
	}
	return nil
}

// Delete issues one DEL for all keys, which redis applies atomically.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if r.client == nil {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "storage.Redis Del")
	}
	return nil
}
