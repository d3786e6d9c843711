package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/civic-console/apiclient"
	"github.com/jrsteele09/civic-console/auth"
	"github.com/jrsteele09/civic-console/guard"
	apperrors "github.com/jrsteele09/civic-console/internal/errors"
	"github.com/jrsteele09/civic-console/storage"
	"github.com/jrsteele09/civic-console/token"
	"github.com/jrsteele09/civic-console/users"
)

const (
	testEmail    = "clerk@springfield.gov"
	testPassword = "correct horse"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "exp": exp.Unix()}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

// platform is a fake of the REST API's auth endpoints.
type platform struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
	bodies   map[string][]string
}

func newPlatform() *platform {
	return &platform{handlers: map[string]http.HandlerFunc{}, calls: map[string]int{}, bodies: map[string][]string{}}
}

func (p *platform) on(pattern string, h http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[pattern] = h
}

func (p *platform) count(pattern string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[pattern]
}

func (p *platform) body(pattern string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b := p.bodies[pattern]; len(b) > 0 {
		return b[len(b)-1]
	}
	return ""
}

func (p *platform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pattern := r.Method + " " + r.URL.Path
	body, _ := io.ReadAll(r.Body)

	p.mu.Lock()
	p.calls[pattern]++
	p.bodies[pattern] = append(p.bodies[pattern], string(body))
	h := p.handlers[pattern]
	p.mu.Unlock()

	if h == nil {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func respond(status int, body interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

type fixture struct {
	api     *platform
	store   *token.Store
	client  *apiclient.Client
	session *auth.Session
	logouts atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{api: newPlatform()}
	server := httptest.NewServer(f.api)
	t.Cleanup(server.Close)

	f.store = token.NewStore(storage.NewMemory(), token.WithLogger(zerolog.Nop()))
	client, err := apiclient.New(server.URL, f.store, apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	f.client = client

	session, err := auth.NewSession(client, f.store,
		auth.WithLogger(zerolog.Nop()),
		auth.WithLogoutHook(func() { f.logouts.Add(1) }),
	)
	require.NoError(t, err)
	client.OnSessionCleared(session.Reset)
	f.session = session
	return f
}

func loginResponse(access, refresh string, profile map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"user":         profile,
			"accessToken":  access,
			"refreshToken": refresh,
		},
	}
}

func TestSession_LoginThenGuardAllows(t *testing.T) {
	f := newFixture(t)
	access := signedToken(t, time.Now().Add(time.Hour))
	f.api.on("POST /auth/login", respond(http.StatusOK, loginResponse(access, "refresh-1", map[string]interface{}{
		"id": "u1", "email": testEmail, "firstName": "Marge", "lastName": "Simpson", "role": "department_manager",
	})))

	before := f.session.Snapshot()
	require.Equal(t, auth.StateInit, before.State)
	blocked := guard.Evaluate(before, "/accounts/a1")
	require.Equal(t, guard.ActionRedirect, blocked.Action)

	p, err := f.session.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, "u1", p.ID)
	require.Equal(t, users.RoleDepartmentManager, p.Role)
	require.JSONEq(t, `{"email":"`+testEmail+`","password":"`+testPassword+`"}`, f.api.body("POST /auth/login"))

	snap := f.session.Snapshot()
	require.True(t, snap.IsAuthenticated())
	require.Equal(t, auth.StateAuthenticated, snap.State)
	require.False(t, snap.IsLoading)
	require.Equal(t, access, f.store.AccessToken())
	require.Equal(t, "refresh-1", f.store.RefreshToken())
	require.Equal(t, "u1", f.store.User().ID)

	require.Equal(t, guard.ActionAllow, guard.Evaluate(snap, "/accounts/a1").Action)
	require.Equal(t, "/accounts/a1", guard.PostLoginTarget("/accounts/a1"))

	caps := f.session.Capabilities()
	require.True(t, caps.CanManageUsers)
	require.False(t, caps.CanCreateAccounts)
}

func TestSession_LoginTokensUnderTokensKey(t *testing.T) {
	f := newFixture(t)
	f.api.on("POST /auth/login", respond(http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"appOwner": map[string]interface{}{"id": "o1", "email": testEmail},
			"tokens":   map[string]string{"accessToken": "a.b.c", "refreshToken": "r"},
		},
	}))

	p, err := f.session.Login(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, users.KindAppOwner, p.Kind)
	require.Equal(t, users.RoleAppOwner, p.Role)
	require.Equal(t, "a.b.c", f.store.AccessToken())
}

func TestSession_LoginFailuresLeaveStateUnchanged(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		sentinel error
	}{
		{
			name:     "bad credentials",
			handler:  respond(http.StatusUnauthorized, map[string]interface{}{"success": false, "message": "Invalid email or password"}),
			sentinel: apperrors.ErrUnauthenticated,
		},
		{
			name:     "missing token pair",
			handler:  respond(http.StatusOK, map[string]interface{}{"success": true, "data": map[string]interface{}{"user": map[string]string{"id": "u1"}}}),
			sentinel: apperrors.ErrInvalidResponse,
		},
		{
			name:     "missing refresh token",
			handler:  respond(http.StatusOK, loginResponse("a.b.c", "", map[string]interface{}{"id": "u1"})),
			sentinel: apperrors.ErrInvalidResponse,
		},
		{
			name: "missing user",
			handler: respond(http.StatusOK, map[string]interface{}{"success": true, "data": map[string]string{
				"accessToken": "a.b.c", "refreshToken": "r",
			}}),
			sentinel: apperrors.ErrInvalidResponse,
		},
		{
			name:     "server error",
			handler:  respond(http.StatusInternalServerError, map[string]string{"message": "boom"}),
			sentinel: apperrors.ErrServer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.api.on("POST /auth/login", tt.handler)

			_, err := f.session.Login(context.Background(), testEmail, testPassword)
			require.ErrorIs(t, err, tt.sentinel)

			snap := f.session.Snapshot()
			require.Equal(t, auth.StateInit, snap.State)
			require.False(t, snap.IsLoading)
			require.Nil(t, snap.User)
			require.Empty(t, f.store.AccessToken())
			require.Zero(t, f.api.count("POST /auth/refresh-token"))
		})
	}
}

func TestSession_LoginValidatesBeforeCalling(t *testing.T) {
	f := newFixture(t)
	for _, creds := range [][2]string{{"", testPassword}, {"not-an-email", testPassword}, {testEmail, ""}} {
		_, err := f.session.Login(context.Background(), creds[0], creds[1])
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	}
	require.Zero(t, f.api.count("POST /auth/login"))
}

func TestSession_RegisterAppOwnerForcesRole(t *testing.T) {
	f := newFixture(t)
	f.api.on("POST /auth/register/app-owner", respond(http.StatusCreated, loginResponse("a.b.c", "r", map[string]interface{}{
		"id": "o1", "email": testEmail, "role": "viewer",
	})))

	p, err := f.session.RegisterAppOwner(context.Background(), auth.RegisterAppOwnerRequest{
		FirstName: "Monty", LastName: "Burns", Email: testEmail, Password: testPassword,
	})
	require.NoError(t, err)
	require.Equal(t, users.RoleAppOwner, p.Role)
	require.Equal(t, users.KindAppOwner, p.Kind)
	require.True(t, f.session.Capabilities().CanAccessAllAccounts)
	require.Equal(t, users.RoleAppOwner, f.store.User().Role)

	_, err = f.session.RegisterAppOwner(context.Background(), auth.RegisterAppOwnerRequest{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestSession_RegisterUser(t *testing.T) {
	f := newFixture(t)
	f.api.on("POST /auth/register/user", respond(http.StatusCreated, loginResponse("a.b.c", "r", map[string]interface{}{
		"id": "u2", "email": testEmail, "role": "viewer", "accountId": "acc-1",
	})))

	p, err := f.session.RegisterUser(context.Background(), auth.RegisterUserRequest{
		InvitationToken: "inv-1", FirstName: "Ned", LastName: "Flanders", Password: testPassword,
	})
	require.NoError(t, err)
	require.Equal(t, users.RoleViewer, p.Role)
	require.Equal(t, "acc-1", p.AccountID)
	require.True(t, f.session.IsAuthenticated())

	var sent map[string]string
	require.NoError(t, json.Unmarshal([]byte(f.api.body("POST /auth/register/user")), &sent))
	require.Equal(t, "inv-1", sent["token"])
}

func TestSession_AcceptInvitation(t *testing.T) {
	f := newFixture(t)
	f.api.on("GET /auth/accept-invitation/user", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "inv-1" {
			respond(http.StatusNotFound, map[string]string{"message": "Invitation not found"})(w, r)
			return
		}
		respond(http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"invitation": map[string]string{"email": testEmail, "role": "agent", "accountId": "acc-1"},
			},
		})(w, r)
	})

	inv, err := f.session.AcceptInvitation(context.Background(), "inv-1")
	require.NoError(t, err)
	require.Equal(t, testEmail, inv.Email)
	require.Equal(t, users.RoleAgent, inv.Role)
	require.False(t, f.session.IsAuthenticated())

	_, err = f.session.AcceptInvitation(context.Background(), "nope")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.session.AcceptInvitation(context.Background(), "")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestSession_FetchCurrentUser(t *testing.T) {
	me := map[string]interface{}{
		"success": true,
		"data":    map[string]interface{}{"user": map[string]string{"id": "u1", "email": testEmail, "role": "account_admin"}},
	}

	t.Run("no token is anonymous without a call", func(t *testing.T) {
		f := newFixture(t)
		p, err := f.session.FetchCurrentUser(context.Background())
		require.NoError(t, err)
		require.Nil(t, p)
		require.Equal(t, auth.StateAnonymous, f.session.Snapshot().State)
		require.Zero(t, f.api.count("GET /auth/me"))
	})

	t.Run("expired token is anonymous without a call", func(t *testing.T) {
		f := newFixture(t)
		f.store.SetTokens(signedToken(t, time.Now().Add(-time.Minute)), "refresh-1")
		p, err := f.session.FetchCurrentUser(context.Background())
		require.NoError(t, err)
		require.Nil(t, p)
		require.Equal(t, auth.StateAnonymous, f.session.Snapshot().State)
		require.Zero(t, f.api.count("GET /auth/me"))
		require.Zero(t, f.api.count("POST /auth/refresh-token"))
		require.NotEmpty(t, f.store.RefreshToken(), "hydration does not clear an expired session")
	})

	t.Run("valid token hydrates", func(t *testing.T) {
		f := newFixture(t)
		f.api.on("GET /auth/me", respond(http.StatusOK, me))
		f.store.SetTokens(signedToken(t, time.Now().Add(time.Hour)), "refresh-1")

		p, err := f.session.FetchCurrentUser(context.Background())
		require.NoError(t, err)
		require.Equal(t, users.RoleAccountAdmin, p.Role)
		require.Equal(t, auth.StateAuthenticated, f.session.Snapshot().State)
		require.Equal(t, "u1", f.store.User().ID)
	})

	t.Run("server failure keeps the cached user", func(t *testing.T) {
		f := newFixture(t)
		f.api.on("GET /auth/me", respond(http.StatusBadGateway, map[string]string{"message": "upstream"}))
		f.store.SetTokens(signedToken(t, time.Now().Add(time.Hour)), "refresh-1")
		f.store.SetUser(&users.Profile{ID: "cached", Kind: users.KindUser, Role: users.RoleAgent})

		p, err := f.session.FetchCurrentUser(context.Background())
		require.ErrorIs(t, err, apperrors.ErrServer)
		require.Equal(t, "cached", p.ID)
		require.True(t, f.session.IsAuthenticated())
		require.NotEmpty(t, f.store.AccessToken())
	})

	t.Run("forbidden clears the session", func(t *testing.T) {
		f := newFixture(t)
		f.api.on("GET /auth/me", respond(http.StatusForbidden, map[string]string{"message": "disabled"}))
		f.store.SetTokens(signedToken(t, time.Now().Add(time.Hour)), "refresh-1")
		f.store.SetUser(&users.Profile{ID: "cached", Role: users.RoleAgent})

		_, err := f.session.FetchCurrentUser(context.Background())
		require.ErrorIs(t, err, apperrors.ErrForbidden)
		require.False(t, f.session.IsAuthenticated())
		require.Empty(t, f.store.AccessToken())
		require.Nil(t, f.store.User())
	})

	t.Run("malformed profile keeps the cached user", func(t *testing.T) {
		f := newFixture(t)
		f.api.on("GET /auth/me", respond(http.StatusOK, map[string]interface{}{"success": true, "data": map[string]string{"email": "no-id"}}))
		f.store.SetTokens(signedToken(t, time.Now().Add(time.Hour)), "refresh-1")

		p, err := f.session.FetchCurrentUser(context.Background())
		require.ErrorIs(t, err, apperrors.ErrInvalidResponse)
		require.Nil(t, p)
		require.Equal(t, auth.StateAnonymous, f.session.Snapshot().State)
	})
}

func TestSession_RefreshFailureThenFetchIsAnonymous(t *testing.T) {
	f := newFixture(t)
	f.api.on("GET /auth/me", respond(http.StatusUnauthorized, map[string]string{"message": "jwt expired"}))
	f.api.on("POST /auth/refresh-token", respond(http.StatusInternalServerError, map[string]string{"message": "boom"}))
	f.store.SetTokens(signedToken(t, time.Now().Add(time.Hour)), "refresh-1")
	f.store.SetUser(&users.Profile{ID: "u1", Role: users.RoleAgent})

	_, err := f.session.FetchCurrentUser(context.Background())
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.Equal(t, 1, f.api.count("GET /auth/me"))
	require.Equal(t, 1, f.api.count("POST /auth/refresh-token"))

	require.Empty(t, f.store.AccessToken())
	require.Empty(t, f.store.RefreshToken())
	require.Nil(t, f.store.User())
	require.False(t, f.session.IsAuthenticated())

	p, err := f.session.FetchCurrentUser(context.Background())
	require.NoError(t, err)
	require.Nil(t, p)
	require.Equal(t, auth.StateAnonymous, f.session.Snapshot().State)
	require.Equal(t, 1, f.api.count("GET /auth/me"), "no network call once the session is gone")
}

func TestSession_Logout(t *testing.T) {
	t.Run("revokes and clears", func(t *testing.T) {
		f := newFixture(t)
		f.api.on("POST /auth/logout", respond(http.StatusOK, map[string]bool{"success": true}))
		f.store.SetTokens("a.b.c", "refresh-1")
		f.store.SetUser(&users.Profile{ID: "u1", Role: users.RoleAgent})

		f.session.Logout(context.Background())

		require.JSONEq(t, `{"refreshToken":"refresh-1"}`, f.api.body("POST /auth/logout"))
		require.Empty(t, f.store.AccessToken())
		require.Nil(t, f.store.User())
		require.Equal(t, auth.StateAnonymous, f.session.Snapshot().State)
		require.Equal(t, int32(1), f.logouts.Load())
	})

	t.Run("server failure still clears", func(t *testing.T) {
		f := newFixture(t)
		f.api.on("POST /auth/logout", respond(http.StatusUnauthorized, map[string]string{"message": "expired"}))
		f.store.SetTokens("a.b.c", "refresh-1")

		f.session.Logout(context.Background())

		require.Empty(t, f.store.RefreshToken())
		require.Zero(t, f.api.count("POST /auth/refresh-token"))
		require.Equal(t, int32(1), f.logouts.Load())
	})

	t.Run("without a refresh token skips the server", func(t *testing.T) {
		f := newFixture(t)
		f.session.Logout(context.Background())
		require.Zero(t, f.api.count("POST /auth/logout"))
		require.Equal(t, int32(1), f.logouts.Load())
	})
}

func TestNewSession_RequiresDependencies(t *testing.T) {
	store := token.NewStore(storage.NewMemory())
	_, err := auth.NewSession(nil, store)
	require.Error(t, err)
}
