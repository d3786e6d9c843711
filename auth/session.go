package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/civic-console/apiclient"
	apperrors "github.com/jrsteele09/civic-console/internal/errors"
	"github.com/jrsteele09/civic-console/users"
)

// State is where the session is in its lifecycle.
type State int

const (
	StateInit State = iota
	StateHydrating
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateHydrating:
		return "hydrating"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent view of the session at one instant.
type Snapshot struct {
	User      *users.Profile
	State     State
	IsLoading bool
}

func (s Snapshot) IsAuthenticated() bool {
	return s.User != nil
}

// TokenStore is the part of the token store the session reads and writes.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(accessToken, refreshToken string)
	User() *users.Profile
	SetUser(p *users.Profile)
	ClearAll()
	IsExpired(rawToken string) bool
}

// API is the call surface of apiclient.Client.
type API interface {
	Do(ctx context.Context, req apiclient.Request, out interface{}) error
}

// ProfileFetcher loads the current user's profile.
type ProfileFetcher func(ctx context.Context) (*users.Profile, error)

// Session owns the signed-in user for one console process. It is the only
// component besides the API client's refresh path that writes the token store.
type Session struct {
	api       API
	tokens    TokenStore
	validator *Validator
	fetch     ProfileFetcher
	logger    zerolog.Logger

	mu      sync.RWMutex
	user    *users.Profile
	state   State
	loading bool

	hooksMu     sync.RWMutex
	logoutHooks []func()
}

type SessionOption func(*Session)

// WithProfileFetcher routes FetchCurrentUser through fetch instead of a direct
// GET /auth/me, typically a cached read.
func WithProfileFetcher(fetch ProfileFetcher) SessionOption {
	return func(s *Session) {
		s.fetch = fetch
	}
}

func WithLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithLogoutHook registers fn to run after Logout cleared the local state.
func WithLogoutHook(fn func()) SessionOption {
	return func(s *Session) {
		s.logoutHooks = append(s.logoutHooks, fn)
	}
}

func NewSession(api API, tokens TokenStore, options ...SessionOption) (*Session, error) {
	if api == nil {
		return nil, errors.New("[NewSession] api client is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewSession] token store is required")
	}

	s := &Session{
		api:       api,
		tokens:    tokens,
		validator: NewValidator(),
		logger:    log.Logger,
		state:     StateInit,
	}
	s.fetch = s.fetchMe
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{User: s.user, State: s.state, IsLoading: s.loading}
}

func (s *Session) IsAuthenticated() bool {
	return s.Snapshot().IsAuthenticated()
}

// Capabilities derives the console flags from the current role.
func (s *Session) Capabilities() users.Capabilities {
	return s.Snapshot().User.Capabilities()
}

// OnLogout registers fn to run after Logout cleared the local state.
func (s *Session) OnLogout(fn func()) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.logoutHooks = append(s.logoutHooks, fn)
}

// Reset drops the in-memory user without touching storage. The API client
// calls it after a failed refresh has already cleared the store.
func (s *Session) Reset() {
	s.set(nil, StateAnonymous)
}

// FetchCurrentUser hydrates the session. Without a usable access token it goes
// anonymous without a network call; it never refreshes on its own. An auth
// failure clears the session, any other failure keeps the last known user.
func (s *Session) FetchCurrentUser(ctx context.Context) (*users.Profile, error) {
	access := s.tokens.AccessToken()
	if access == "" {
		s.set(nil, StateAnonymous)
		return nil, nil
	}
	if s.tokens.IsExpired(access) {
		s.logger.Debug().Msg("access token expired, session is anonymous until renewed")
		s.set(nil, StateAnonymous)
		return nil, nil
	}

	s.begin()
	p, err := s.fetch(ctx)
	if err != nil {
		if apiclient.IsAuthError(err) {
			s.logger.Info().Err(err).Msg("current user rejected, clearing session")
			s.tokens.ClearAll()
			s.set(nil, StateAnonymous)
			return nil, err
		}

		cached := s.lastKnownUser()
		s.logger.Warn().Err(err).Bool("cached", cached != nil).Msg("current user unavailable, keeping last known user")
		if cached != nil {
			s.set(cached, StateAuthenticated)
		} else {
			s.set(nil, StateAnonymous)
		}
		return cached, err
	}

	s.tokens.SetUser(p)
	s.set(p, StateAuthenticated)
	return p, nil
}

// Login exchanges credentials for a token pair and profile. On failure the
// session is left as it was and the error is returned for display.
func (s *Session) Login(ctx context.Context, email, password string) (*users.Profile, error) {
	if err := s.validator.ValidateCredentials(email, password); err != nil {
		return nil, err
	}
	return s.authenticate(ctx, "[Login]", apiclient.Request{
		Method: http.MethodPost,
		Path:   LoginPath,
		Body:   loginRequest{Email: email, Password: password},
	}, "")
}

// RegisterAppOwner signs up a platform owner and signs them in. The resulting
// profile is always tagged app_owner.
func (s *Session) RegisterAppOwner(ctx context.Context, req RegisterAppOwnerRequest) (*users.Profile, error) {
	if err := s.validator.ValidateAppOwnerRegistration(req); err != nil {
		return nil, err
	}
	return s.authenticate(ctx, "[RegisterAppOwner]", apiclient.Request{
		Method: http.MethodPost,
		Path:   RegisterAppOwnerPath,
		Body:   req,
	}, users.RoleAppOwner)
}

// RegisterUser completes an invitation sign-up and signs the user in.
func (s *Session) RegisterUser(ctx context.Context, req RegisterUserRequest) (*users.Profile, error) {
	if err := s.validator.ValidateUserRegistration(req); err != nil {
		return nil, err
	}
	return s.authenticate(ctx, "[RegisterUser]", apiclient.Request{
		Method: http.MethodPost,
		Path:   RegisterUserPath,
		Body:   req,
	}, "")
}

// AcceptInvitation looks up a pending invitation. It doesn't change the session.
func (s *Session) AcceptInvitation(ctx context.Context, invitationToken string) (*Invitation, error) {
	if invitationToken == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidCredentials, InvitationTokenRequiredErr.Error())
	}

	var raw json.RawMessage
	err := s.api.Do(ctx, apiclient.Request{
		Method:          http.MethodGet,
		Path:            AcceptInvitationPath,
		Query:           url.Values{"token": {invitationToken}},
		SkipAuthRefresh: true,
	}, &raw)
	if err != nil {
		return nil, errors.Wrap(err, "[AcceptInvitation]")
	}

	data, err := apiclient.UnwrapData(raw)
	if err != nil {
		return nil, errors.Wrap(err, "[AcceptInvitation]")
	}
	var nested struct {
		Invitation json.RawMessage `json:"invitation"`
	}
	if err := json.Unmarshal(data, &nested); err == nil && isObject(nested.Invitation) {
		data = nested.Invitation
	}

	var inv Invitation
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, errors.Wrapf(apperrors.ErrInvalidResponse, "[AcceptInvitation] %v", err)
	}
	if inv.Email == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidResponse, "[AcceptInvitation] invitation without email")
	}
	if inv.Role != "" && !inv.Role.Valid() {
		return nil, errors.Wrapf(apperrors.ErrInvalidResponse, "[AcceptInvitation] unknown role %q", inv.Role)
	}
	return &inv, nil
}

// Logout tells the server to revoke the refresh token, best effort, and always
// clears local state.
func (s *Session) Logout(ctx context.Context) {
	defer func() {
		s.tokens.ClearAll()
		s.set(nil, StateAnonymous)
		s.runLogoutHooks()
	}()

	refreshToken := s.tokens.RefreshToken()
	if refreshToken == "" {
		return
	}
	err := s.api.Do(ctx, apiclient.Request{
		Method:          http.MethodPost,
		Path:            LogoutPath,
		Body:            logoutRequest{RefreshToken: refreshToken},
		SkipAuthRefresh: true,
	}, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("server logout failed, clearing local session anyway")
	}
}

func (s *Session) authenticate(ctx context.Context, op string, req apiclient.Request, forceRole users.Role) (*users.Profile, error) {
	req.SkipAuthRefresh = true

	prev := s.Snapshot()
	s.begin()
	restore := func() { s.restore(prev) }

	var raw json.RawMessage
	if err := s.api.Do(ctx, req, &raw); err != nil {
		restore()
		return nil, errors.Wrap(err, op)
	}

	data, err := apiclient.UnwrapData(raw)
	if err != nil {
		restore()
		return nil, errors.Wrap(err, op)
	}
	var creds credentialResponse
	if err := json.Unmarshal(data, &creds); err != nil {
		restore()
		return nil, errors.Wrapf(apperrors.ErrInvalidResponse, "%s %v", op, err)
	}
	if !creds.hasProfile() {
		restore()
		return nil, errors.Wrapf(apperrors.ErrInvalidResponse, "%s response carries no user", op)
	}
	pair := creds.pair()
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		restore()
		return nil, errors.Wrapf(apperrors.ErrInvalidResponse, "%s response carries no token pair", op)
	}

	p, err := users.Normalize(data)
	if err != nil {
		restore()
		return nil, errors.Wrap(err, op)
	}
	if forceRole != "" {
		p.Role = forceRole
		if forceRole == users.RoleAppOwner {
			p.Kind = users.KindAppOwner
		}
	}

	s.tokens.SetTokens(pair.AccessToken, pair.RefreshToken)
	s.tokens.SetUser(p)
	s.set(p, StateAuthenticated)
	s.logger.Info().Str("user_id", p.ID).Str("role", string(p.Role)).Msg("signed in")
	return p, nil
}

func (s *Session) fetchMe(ctx context.Context) (*users.Profile, error) {
	var raw json.RawMessage
	if err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: MePath}, &raw); err != nil {
		return nil, err
	}
	data, err := apiclient.UnwrapData(raw)
	if err != nil {
		return nil, err
	}
	return users.Normalize(data)
}

func (s *Session) lastKnownUser() *users.Profile {
	s.mu.RLock()
	user := s.user
	s.mu.RUnlock()
	if user != nil {
		return user
	}
	return s.tokens.User()
}

func (s *Session) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateHydrating
	s.loading = true
}

func (s *Session) set(user *users.Profile, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.state = state
	s.loading = false
}

func (s *Session) restore(prev Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = prev.User
	s.state = prev.State
	s.loading = prev.IsLoading
}

func (s *Session) runLogoutHooks() {
	s.hooksMu.RLock()
	hooks := append([]func(){}, s.logoutHooks...)
	s.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}
