package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/civic-console/metrics"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultRefreshTimeout = 10 * time.Second

	RefreshPath = "/auth/refresh-token"

	HeaderAccountID = "x-account-id"
	HeaderRequestID = "X-Request-ID"

	maxResponseBytes = 4 << 20
)

// TokenStore is the part of the token store the client needs.
type TokenStore interface {
	oauth2.TokenSource
	AccessToken() string
	RefreshToken() string
	SetTokens(accessToken, refreshToken string)
	ClearAll()
}

// Request describes one API call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	// AccountID scopes the call to a tenant via x-account-id.
	AccountID string
	// SkipAuthRefresh keeps a 401 from starting a refresh. Set on the
	// credential endpoints, where a 401 means bad credentials.
	SkipAuthRefresh bool
}

// Client is the single HTTP client for the platform API. A 401 triggers one
// shared token refresh followed by exactly one retry of the original request.
type Client struct {
	baseURL     string
	tokens      TokenStore
	http        *http.Client
	refreshHTTP *http.Client
	logger      zerolog.Logger
	recorder    metrics.Recorder

	refreshGroup singleflight.Group

	hooksMu sync.RWMutex
	hooks   []func()
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithRefreshHTTPClient replaces the client used for the refresh call. It must
// not route through this Client.
func WithRefreshHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.refreshHTTP = c
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.http.Timeout = d
	}
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.refreshHTTP.Timeout = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(cl *Client) {
		cl.recorder = r
	}
}

// WithSessionClearedHook registers fn to run after a failed refresh wiped the
// token store.
func WithSessionClearedHook(fn func()) Option {
	return func(cl *Client) {
		cl.hooks = append(cl.hooks, fn)
	}
}

func New(baseURL string, tokens TokenStore, options ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "apiclient.New parse base url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Errorf("apiclient.New invalid base url %q", baseURL)
	}
	if tokens == nil {
		return nil, errors.New("apiclient.New token store is required")
	}

	c := &Client{
		baseURL:     baseURL,
		tokens:      tokens,
		http:        &http.Client{Timeout: DefaultRequestTimeout},
		refreshHTTP: &http.Client{Timeout: DefaultRefreshTimeout},
		logger:      log.Logger,
		recorder:    metrics.Nop{},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// OnSessionCleared registers fn to run after a failed refresh wiped the token
// store. Hooks run once per failed refresh, in registration order.
func (c *Client) OnSessionCleared(fn func()) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = append(c.hooks, fn)
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs req and decodes a 2xx body into out when out is non-nil. Every
// failure is an *Error.
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	var body []byte
	if req.Body != nil {
		var err error
		if body, err = json.Marshal(req.Body); err != nil {
			return &Error{Op: req.op(), Kind: KindClient, Err: errors.Wrap(err, "encode body")}
		}
	}

	res := c.send(ctx, req, body)
	switch Decide(req, res.status, res.transportErr, false) {
	case OutcomeSucceed:
		return c.decode(req, res, out)
	case OutcomeRefreshThenRetry:
		if err := c.refreshAfter(req, res.usedToken); err != nil {
			return err
		}
		res = c.send(ctx, req, body)
		if Decide(req, res.status, res.transportErr, true) == OutcomeSucceed {
			return c.decode(req, res, out)
		}
		return c.fail(req, res)
	default:
		return c.fail(req, res)
	}
}

// Get is Do with GET and no body.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

type result struct {
	status       int
	payload      []byte
	usedToken    string
	transportErr error
}

func (c *Client) send(ctx context.Context, req Request, body []byte) result {
	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return result{transportErr: errors.Wrap(err, "build request")}
	}

	used := c.authorize(httpReq)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if accountID := req.accountID(); accountID != "" {
		httpReq.Header.Set(HeaderAccountID, accountID)
	}
	httpReq.Header.Set(HeaderRequestID, uuid.NewString())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return result{usedToken: used, transportErr: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return result{usedToken: used, transportErr: errors.Wrap(err, "read response")}
	}
	return result{status: resp.StatusCode, payload: payload, usedToken: used}
}

// authorize sets the bearer header from the store and returns the token used.
func (c *Client) authorize(r *http.Request) string {
	tok, err := c.tokens.Token()
	if err != nil || tok.AccessToken == "" {
		return ""
	}
	tok.SetAuthHeader(r)
	return tok.AccessToken
}

func (c *Client) decode(req Request, res result, out interface{}) error {
	if out == nil || len(bytes.TrimSpace(res.payload)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], res.payload...)
		return nil
	}
	if err := json.Unmarshal(res.payload, out); err != nil {
		return &Error{Op: req.op(), StatusCode: res.status, Kind: KindInvalidResponse, Err: err}
	}
	return nil
}

func (c *Client) fail(req Request, res result) error {
	if res.transportErr != nil {
		c.logger.Error().Err(res.transportErr).Str("op", req.op()).Msg("api request failed without a response")
		return &Error{Op: req.op(), Kind: KindTransport, Err: res.transportErr}
	}

	apiErr := &Error{
		Op:         req.op(),
		StatusCode: res.status,
		Kind:       kindForStatus(res.status),
		Message:    messageFrom(res.payload),
	}
	event := c.logger.Debug()
	switch apiErr.Kind {
	case KindServer:
		event = c.logger.Error()
	case KindForbidden:
		event = c.logger.Warn()
	case KindUnauthenticated:
		event = c.logger.Warn()
	}
	event.Str("op", apiErr.Op).Int("status", res.status).Str("message", apiErr.Message).Msg("api request failed")
	return apiErr
}

func (r Request) op() string {
	return r.Method + " " + r.Path
}

func (r Request) accountID() string {
	if r.AccountID != "" {
		return r.AccountID
	}
	return r.Query.Get("accountId")
}
