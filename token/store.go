package token

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	apperrors "github.com/jrsteele09/civic-console/internal/errors"
	"github.com/jrsteele09/civic-console/storage"
	"github.com/jrsteele09/civic-console/users"
)

const (
	DefaultNamespace = "civic_console_"

	accessTokenKey  = "accessToken"
	refreshTokenKey = "refreshToken"
	userKey         = "user"

	defaultStorageTimeout = 2 * time.Second
)

// Store is the single source of truth for the credential pair and the cached
// user profile. Reads never fail: a storage error is logged and reported as
// absent, which is the logged-out state.
type Store struct {
	kv        storage.KV
	namespace string
	timeout   time.Duration
	nowFunc   func() time.Time
	logger    zerolog.Logger
	mu        sync.Mutex // serialises writes
}

var _ oauth2.TokenSource = (*Store)(nil)

type StoreOption func(*Store)

func WithNamespace(namespace string) StoreOption {
	return func(s *Store) {
		s.namespace = namespace
	}
}

func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func WithStorageTimeout(timeout time.Duration) StoreOption {
	return func(s *Store) {
		s.timeout = timeout
	}
}

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(kv storage.KV, options ...StoreOption) *Store {
	s := &Store{
		kv:        kv,
		namespace: DefaultNamespace,
		timeout:   defaultStorageTimeout,
		nowFunc:   time.Now,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) AccessToken() string {
	return s.read(accessTokenKey)
}

func (s *Store) RefreshToken() string {
	return s.read(refreshTokenKey)
}

func (s *Store) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(accessTokenKey, token)
}

func (s *Store) SetRefreshToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(refreshTokenKey, token)
}

// SetTokens stores a freshly minted pair. An empty refresh token keeps the
// current one, for servers that don't rotate refresh tokens.
func (s *Store) SetTokens(accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(accessTokenKey, accessToken)
	if refreshToken != "" {
		s.write(refreshTokenKey, refreshToken)
	}
}

// User returns the cached profile. Corrupted entries, including the literal
// strings "undefined" and "null", are removed and reported as absent.
func (s *Store) User() *users.Profile {
	raw := strings.TrimSpace(s.read(userKey))
	if raw == "" {
		return nil
	}

	if raw == "undefined" || raw == "null" {
		s.logger.Warn().Str("key", s.key(userKey)).Msg("cached user holds a placeholder value, clearing")
		s.ClearUser()
		return nil
	}

	var p users.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key(userKey)).Msg("cached user is not valid JSON, clearing")
		s.ClearUser()
		return nil
	}
	if p.ID == "" {
		s.logger.Warn().Str("key", s.key(userKey)).Msg("cached user has no id, clearing")
		s.ClearUser()
		return nil
	}
	return &p
}

func (s *Store) SetUser(p *users.Profile) {
	if p == nil {
		s.ClearUser()
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode user profile")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(userKey, string(raw))
}

func (s *Store) ClearUser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delete(userKey)
}

// ClearAll removes the access token, refresh token and user in one storage
// operation.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delete(accessTokenKey, refreshTokenKey, userKey)
}

// IsExpired applies IsTokenExpired using the store's clock.
func (s *Store) IsExpired(rawToken string) bool {
	return isExpiredAt(rawToken, s.nowFunc())
}

// Token implements oauth2.TokenSource over the stored pair.
func (s *Store) Token() (*oauth2.Token, error) {
	access := s.AccessToken()
	if access == "" {
		return nil, apperrors.ErrNoAccessToken
	}
	return &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken(),
		Expiry:       ExpiresAt(access),
	}, nil
}

func (s *Store) key(name string) string {
	return s.namespace + name
}

func (s *Store) read(name string) string {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	v, ok, err := s.kv.Get(ctx, s.key(name))
	if err != nil {
		s.logger.Error().Err(err).Str("key", s.key(name)).Msg("token store read failed")
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

// write and delete must be called with s.mu held.
func (s *Store) write(name, value string) {
	if value == "" {
		s.delete(name)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.kv.Set(ctx, s.key(name), value); err != nil {
		s.logger.Error().Err(err).Str("key", s.key(name)).Msg("token store write failed")
	}
}

func (s *Store) delete(names ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	keys := make([]string, 0, len(names))
	for _, n := range names {
		keys = append(keys, s.key(n))
	}
	if err := s.kv.Delete(ctx, keys...); err != nil {
		s.logger.Error().Err(err).Strs("keys", keys).Msg("token store delete failed")
	}
}
