package apiclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/civic-console/apiclient"
	apperrors "github.com/jrsteele09/civic-console/internal/errors"
	"github.com/jrsteele09/civic-console/storage"
	"github.com/jrsteele09/civic-console/token"
	"github.com/jrsteele09/civic-console/users"
)

// fakeAPI serves a protected /accounts endpoint that accepts only validToken,
// and a refresh endpoint whose behaviour is set per test.
type fakeAPI struct {
	validToken string
	// arrivals, when set, holds every /accounts response until all expected
	// requests have arrived.
	arrivals *sync.WaitGroup

	refresh      func(w http.ResponseWriter, r *http.Request)
	refreshCalls atomic.Int32

	mu          sync.Mutex
	authHeaders []string
	accountIDs  []string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		f.refresh(w, r)
	})
	mux.HandleFunc("GET /accounts", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
		f.accountIDs = append(f.accountIDs, r.Header.Get(apiclient.HeaderAccountID))
		f.mu.Unlock()

		if f.arrivals != nil {
			f.arrivals.Done()
			f.arrivals.Wait()
		}
		if r.Header.Get("Authorization") != "Bearer "+f.validToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"message":"jwt expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"a1","name":"Springfield"}]}`))
	})
	mux.HandleFunc("GET /forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"success":false,"message":"not your account"}`))
	})
	mux.HandleFunc("GET /broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /bad-json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":`))
	})
	return mux
}

func (f *fakeAPI) headers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authHeaders...)
}

func renewTo(access, refresh string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]string{"accessToken": access, "refreshToken": refresh},
		})
	}
}

type fixture struct {
	api    *fakeAPI
	server *httptest.Server
	store  *token.Store
	client *apiclient.Client
	hooks  atomic.Int32
}

func newFixture(t *testing.T, validToken string) *fixture {
	t.Helper()
	f := &fixture{api: &fakeAPI{validToken: validToken}}
	f.api.refresh = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	f.server = httptest.NewServer(f.api.handler())
	t.Cleanup(f.server.Close)

	f.store = token.NewStore(storage.NewMemory(), token.WithLogger(zerolog.Nop()))
	client, err := apiclient.New(f.server.URL, f.store,
		apiclient.WithLogger(zerolog.Nop()),
		apiclient.WithSessionClearedHook(func() { f.hooks.Add(1) }),
	)
	require.NoError(t, err)
	f.client = client
	return f
}

func TestDecide(t *testing.T) {
	plain := apiclient.Request{Method: http.MethodGet, Path: "/accounts"}
	credential := apiclient.Request{Method: http.MethodPost, Path: "/auth/login", SkipAuthRefresh: true}

	tests := []struct {
		name    string
		req     apiclient.Request
		status  int
		err     error
		retried bool
		want    apiclient.Outcome
	}{
		{"ok", plain, http.StatusOK, nil, false, apiclient.OutcomeSucceed},
		{"created", plain, http.StatusCreated, nil, false, apiclient.OutcomeSucceed},
		{"no content", plain, http.StatusNoContent, nil, true, apiclient.OutcomeSucceed},
		{"first 401 refreshes", plain, http.StatusUnauthorized, nil, false, apiclient.OutcomeRefreshThenRetry},
		{"second 401 fails", plain, http.StatusUnauthorized, nil, true, apiclient.OutcomeFail},
		{"credential 401 fails", credential, http.StatusUnauthorized, nil, false, apiclient.OutcomeFail},
		{"403 fails", plain, http.StatusForbidden, nil, false, apiclient.OutcomeFail},
		{"500 fails", plain, http.StatusInternalServerError, nil, false, apiclient.OutcomeFail},
		{"404 fails", plain, http.StatusNotFound, nil, false, apiclient.OutcomeFail},
		{"transport fails", plain, 0, context.DeadlineExceeded, false, apiclient.OutcomeFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, apiclient.Decide(tt.req, tt.status, tt.err, tt.retried))
		})
	}
}

func TestClient_RequestHeaders(t *testing.T) {
	f := newFixture(t, "abc.def.ghi")
	f.store.SetTokens("abc.def.ghi", "refresh-1")

	var out apiclient.Envelope
	err := f.client.Get(context.Background(), "/accounts", url.Values{"accountId": {"acc-9"}}, &out)
	require.NoError(t, err)
	require.NotNil(t, out.Success)
	require.True(t, *out.Success)

	require.Equal(t, []string{"Bearer abc.def.ghi"}, f.api.headers())
	require.Equal(t, []string{"acc-9"}, f.api.accountIDs)
	require.Zero(t, f.api.refreshCalls.Load())
}

func TestClient_NoTokenSendsNoAuthorization(t *testing.T) {
	f := newFixture(t, "abc.def.ghi")

	err := f.client.Do(context.Background(), apiclient.Request{Path: "/accounts", SkipAuthRefresh: true}, nil)
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	require.Equal(t, []string{""}, f.api.headers())
}

func TestClient_RefreshThenRetry(t *testing.T) {
	f := newFixture(t, "abc.def.ghi")
	f.api.refresh = renewTo("abc.def.ghi", "refresh-2")
	f.store.SetTokens("old.access.token", "refresh-1")

	var raw json.RawMessage
	require.NoError(t, f.client.Get(context.Background(), "/accounts", nil, &raw))

	data, err := apiclient.UnwrapData(raw)
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"a1","name":"Springfield"}]`, string(data))

	require.Equal(t, []string{"Bearer old.access.token", "Bearer abc.def.ghi"}, f.api.headers())
	require.Equal(t, int32(1), f.api.refreshCalls.Load())
	require.Equal(t, "abc.def.ghi", f.store.AccessToken())
	require.Equal(t, "refresh-2", f.store.RefreshToken())
	require.Zero(t, f.hooks.Load())
}

func TestClient_NonRotatingRefreshKeepsRefreshToken(t *testing.T) {
	f := newFixture(t, "new.access.token")
	f.api.refresh = renewTo("new.access.token", "")
	f.store.SetTokens("old.access.token", "refresh-1")

	require.NoError(t, f.client.Get(context.Background(), "/accounts", nil, nil))
	require.Equal(t, "new.access.token", f.store.AccessToken())
	require.Equal(t, "refresh-1", f.store.RefreshToken())
}

func TestClient_RetriesAtMostOnce(t *testing.T) {
	// The refreshed token is still rejected.
	f := newFixture(t, "never.matches.anything")
	f.api.refresh = renewTo("abc.def.ghi", "refresh-2")
	f.store.SetTokens("old.access.token", "refresh-1")

	err := f.client.Get(context.Background(), "/accounts", nil, nil)
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)

	require.Len(t, f.api.headers(), 2)
	require.Equal(t, int32(1), f.api.refreshCalls.Load())
	require.Equal(t, "abc.def.ghi", f.store.AccessToken(), "a retry failure does not clear the session")
	require.Zero(t, f.hooks.Load())
}

func TestClient_RefreshFailureClearsSession(t *testing.T) {
	f := newFixture(t, "abc.def.ghi")
	f.store.SetTokens("old.access.token", "refresh-1")
	f.store.SetUser(&users.Profile{ID: "u1", Role: users.RoleAgent})

	err := f.client.Get(context.Background(), "/accounts", nil, nil)
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)

	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apiclient.KindSessionExpired, apiErr.Kind)
	require.Equal(t, "Your session has expired. Please sign in again.", apiErr.UserMessage())

	require.Len(t, f.api.headers(), 1, "the original request is not retried")
	require.Empty(t, f.store.AccessToken())
	require.Empty(t, f.store.RefreshToken())
	require.Nil(t, f.store.User())
	require.Equal(t, int32(1), f.hooks.Load())
}

func TestClient_RefreshWithoutAccessTokenFails(t *testing.T) {
	f := newFixture(t, "abc.def.ghi")
	f.api.refresh = renewTo("abc.def.ghi", "refresh-2")
	f.store.SetRefreshToken("refresh-1")

	err := f.client.Get(context.Background(), "/accounts", nil, nil)
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.Zero(t, f.api.refreshCalls.Load())
	require.Empty(t, f.store.RefreshToken())
	require.Equal(t, int32(1), f.hooks.Load())
}

func TestClient_RefreshWithoutAccessTokenInResponseFails(t *testing.T) {
	f := newFixture(t, "abc.def.ghi")
	f.api.refresh = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"refreshToken":"refresh-2"}}`))
	}
	f.store.SetTokens("old.access.token", "refresh-1")

	err := f.client.Get(context.Background(), "/accounts", nil, nil)
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.ErrorIs(t, err, apperrors.ErrInvalidResponse)
	require.Empty(t, f.store.AccessToken())
}

func TestClient_RefreshTimeout(t *testing.T) {
	f := newFixture(t, "abc.def.ghi")
	f.api.refresh = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}
	f.store.SetTokens("old.access.token", "refresh-1")

	client, err := apiclient.New(f.server.URL, f.store,
		apiclient.WithLogger(zerolog.Nop()),
		apiclient.WithRefreshTimeout(50*time.Millisecond),
	)
	require.NoError(t, err)

	err = client.Get(context.Background(), "/accounts", nil, nil)
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.Empty(t, f.store.AccessToken())
}

func TestClient_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	f := newFixture(t, "abc.def.ghi")
	refresh := renewTo("abc.def.ghi", "refresh-2")
	f.api.refresh = func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		refresh(w, r)
	}
	f.store.SetTokens("old.access.token", "refresh-1")

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.client.Get(context.Background(), "/accounts", nil, nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), f.api.refreshCalls.Load())
	require.Equal(t, "abc.def.ghi", f.store.AccessToken())
}

func TestClient_ConcurrentRefreshFailureFiresHooksOnce(t *testing.T) {
	f := newFixture(t, "abc.def.ghi")
	f.api.refresh = func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusUnauthorized)
	}
	f.store.SetTokens("old.access.token", "refresh-1")

	const callers = 8
	f.api.arrivals = &sync.WaitGroup{}
	f.api.arrivals.Add(callers)

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.client.Get(context.Background(), "/accounts", nil, nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	}

	require.Equal(t, int32(1), f.api.refreshCalls.Load())
	require.Equal(t, int32(1), f.hooks.Load())
}

func TestClient_FailuresThatKeepTheSession(t *testing.T) {
	tests := []struct {
		name     string
		req      apiclient.Request
		sentinel error
		kind     apiclient.Kind
		message  string
	}{
		{
			name:     "forbidden",
			req:      apiclient.Request{Path: "/forbidden"},
			sentinel: apperrors.ErrForbidden,
			kind:     apiclient.KindForbidden,
			message:  "You do not have permission to perform this action.",
		},
		{
			name:     "server error",
			req:      apiclient.Request{Path: "/broken"},
			sentinel: apperrors.ErrServer,
			kind:     apiclient.KindServer,
			message:  "Server error, please try again later.",
		},
		{
			name:     "not found",
			req:      apiclient.Request{Path: "/missing"},
			sentinel: apperrors.ErrNotFound,
			kind:     apiclient.KindClient,
			message:  "Not Found",
		},
		{
			name:     "credential endpoint 401",
			req:      apiclient.Request{Path: "/accounts", SkipAuthRefresh: true},
			sentinel: apperrors.ErrUnauthenticated,
			kind:     apiclient.KindUnauthenticated,
			message:  "Your session has expired. Please sign in again.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "abc.def.ghi")
			f.store.SetTokens("wrong.access.token", "refresh-1")

			err := f.client.Do(context.Background(), tt.req, nil)
			require.ErrorIs(t, err, tt.sentinel)

			var apiErr *apiclient.Error
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tt.kind, apiErr.Kind)
			require.Equal(t, tt.message, apiErr.UserMessage())

			require.Zero(t, f.api.refreshCalls.Load())
			require.Equal(t, "wrong.access.token", f.store.AccessToken())
			require.Zero(t, f.hooks.Load())
		})
	}
}

func TestClient_TransportErrorKeepsSession(t *testing.T) {
	f := newFixture(t, "abc.def.ghi")
	f.store.SetTokens("abc.def.ghi", "refresh-1")
	f.server.Close()

	err := f.client.Get(context.Background(), "/accounts", nil, nil)
	require.ErrorIs(t, err, apperrors.ErrTransport)
	require.True(t, apiclient.IsRetryable(err))
	require.False(t, apiclient.IsAuthError(err))
	require.Equal(t, "abc.def.ghi", f.store.AccessToken())
}

func TestClient_InvalidJSON(t *testing.T) {
	f := newFixture(t, "abc.def.ghi")

	var out apiclient.Envelope
	err := f.client.Get(context.Background(), "/bad-json", nil, &out)
	require.ErrorIs(t, err, apperrors.ErrInvalidResponse)
	require.False(t, apiclient.IsRetryable(err))
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	store := token.NewStore(storage.NewMemory(), token.WithLogger(zerolog.Nop()))
	for _, base := range []string{"", "localhost:3000", "ftp://host/api"} {
		_, err := apiclient.New(base, store)
		require.Error(t, err, base)
	}
	_, err := apiclient.New("http://localhost:3000/api/v1/", nil)
	require.Error(t, err)
}

func TestUnwrapData(t *testing.T) {
	t.Run("enveloped", func(t *testing.T) {
		data, err := apiclient.UnwrapData(json.RawMessage(`{"success":true,"data":{"id":"x"}}`))
		require.NoError(t, err)
		require.JSONEq(t, `{"id":"x"}`, string(data))
	})
	t.Run("bare object", func(t *testing.T) {
		data, err := apiclient.UnwrapData(json.RawMessage(`{"accounts":[]}`))
		require.NoError(t, err)
		require.JSONEq(t, `{"accounts":[]}`, string(data))
	})
	t.Run("bare array", func(t *testing.T) {
		data, err := apiclient.UnwrapData(json.RawMessage(` [1,2] `))
		require.NoError(t, err)
		require.Equal(t, "[1,2]", string(data))
	})
	t.Run("reported failure", func(t *testing.T) {
		_, err := apiclient.UnwrapData(json.RawMessage(`{"success":false,"message":"Name taken"}`))
		require.ErrorIs(t, err, apperrors.ErrClient)
		var apiErr *apiclient.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "Name taken", apiErr.UserMessage())
	})
	t.Run("malformed", func(t *testing.T) {
		_, err := apiclient.UnwrapData(json.RawMessage(`{"data":`))
		require.ErrorIs(t, err, apperrors.ErrInvalidResponse)
	})
}
