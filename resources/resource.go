package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/jrsteele09/civic-console/apiclient"
	"github.com/jrsteele09/civic-console/query"
)

// resource describes one REST collection and the cache keys of its records.
type resource[T any] struct {
	path     string // "/accounts"
	plural   string // list envelope member
	singular string // record envelope member
	keys     query.KeyFactory
}

// scope is the tenant context of a call. Filter becomes the query string of a
// list and is also used as the list key parameter.
type scope struct {
	accountID string
	filter    url.Values
}

func (s scope) listKey(keys query.KeyFactory) query.Key {
	if len(s.filter) == 0 {
		return keys.Lists()
	}
	return keys.List(s.filter.Encode())
}

func (r resource[T]) listQuery(s *Service, sc scope) query.Query[[]T] {
	return query.Query[[]T]{
		Key: sc.listKey(r.keys),
		Fetch: func(ctx context.Context) ([]T, error) {
			var raw json.RawMessage
			req := apiclient.Request{Method: http.MethodGet, Path: r.path, Query: sc.filter, AccountID: sc.accountID}
			if err := s.api.Do(ctx, req, &raw); err != nil {
				return nil, err
			}
			return NormalizeList[T](raw, r.plural)
		},
	}
}

func (r resource[T]) list(ctx context.Context, s *Service, sc scope) ([]T, error) {
	return query.Fetch(ctx, s.cache, r.listQuery(s, sc))
}

// observe reads the list and keeps it observed until the observer is closed.
func (r resource[T]) observe(ctx context.Context, s *Service, sc scope) ([]T, *query.Observer, error) {
	return query.Observe(ctx, s.cache, r.listQuery(s, sc))
}

func (r resource[T]) get(ctx context.Context, s *Service, sc scope, id string) (T, error) {
	if id == "" {
		var zero T
		return zero, errors.Wrapf(IDRequiredErr, "get %s", r.singular)
	}
	return query.Fetch(ctx, s.cache, query.Query[T]{
		Key: r.keys.Detail(id),
		Fetch: func(ctx context.Context) (T, error) {
			return r.call(ctx, s, apiclient.Request{Method: http.MethodGet, Path: r.path + "/" + url.PathEscape(id), AccountID: sc.accountID})
		},
	})
}

func (r resource[T]) create(ctx context.Context, s *Service, sc scope, body interface{}) (T, error) {
	return query.Mutate(ctx, s.cache, query.Mutation[T]{
		Name: "create " + r.singular,
		Call: func(ctx context.Context) (T, error) {
			return r.call(ctx, s, apiclient.Request{Method: http.MethodPost, Path: r.path, Body: body, AccountID: sc.accountID})
		},
		Invalidates: []query.Key{sc.listKey(r.keys)},
	})
}

// update patches the cached detail with the response and invalidates it along
// with the scoped list.
func (r resource[T]) update(ctx context.Context, s *Service, sc scope, id string, body interface{}) (T, error) {
	if id == "" {
		var zero T
		return zero, errors.Wrapf(IDRequiredErr, "update %s", r.singular)
	}
	return query.Mutate(ctx, s.cache, query.Mutation[T]{
		Name: "update " + r.singular,
		Call: func(ctx context.Context) (T, error) {
			return r.call(ctx, s, apiclient.Request{Method: http.MethodPut, Path: r.path + "/" + url.PathEscape(id), Body: body, AccountID: sc.accountID})
		},
		Patch:       r.keys.Detail(id),
		Invalidates: []query.Key{r.keys.Detail(id), sc.listKey(r.keys)},
	})
}

func (r resource[T]) remove(ctx context.Context, s *Service, sc scope, id string) error {
	if id == "" {
		return errors.Wrapf(IDRequiredErr, "delete %s", r.singular)
	}
	_, err := query.Mutate(ctx, s.cache, query.Mutation[struct{}]{
		Name: "delete " + r.singular,
		Call: func(ctx context.Context) (struct{}, error) {
			req := apiclient.Request{Method: http.MethodDelete, Path: r.path + "/" + url.PathEscape(id), AccountID: sc.accountID}
			return struct{}{}, s.api.Do(ctx, req, nil)
		},
		Invalidates: []query.Key{r.keys.Detail(id), sc.listKey(r.keys)},
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("resource", r.singular).Str("id", id).Msg("deleted")
	return nil
}

func (r resource[T]) call(ctx context.Context, s *Service, req apiclient.Request) (T, error) {
	var zero T
	var raw json.RawMessage
	if err := s.api.Do(ctx, req, &raw); err != nil {
		return zero, err
	}
	return NormalizeRecord[T](raw, r.singular)
}
