// Package guard decides whether a console page may be shown for the current
// session state.
package guard

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/civic-console/auth"
)

const (
	LoginPath      = "/login"
	DefaultLanding = "/dashboard"
	RedirectParam  = "redirect"
)

// Action is what to do with a request for a guarded page.
type Action int

const (
	ActionWait Action = iota + 1
	ActionRedirect
	ActionAllow
)

func (a Action) String() string {
	switch a {
	case ActionWait:
		return "wait"
	case ActionRedirect:
		return "redirect"
	case ActionAllow:
		return "allow"
	default:
		return "unknown"
	}
}

// Decision is the outcome of Evaluate. Location is set for redirects.
type Decision struct {
	Action   Action
	Location string
}

// Evaluate is a pure function of the session snapshot. While the session is
// loading nothing is decided; an anonymous visitor is sent to the login page
// with the attempted path captured.
func Evaluate(s auth.Snapshot, path string) Decision {
	switch {
	case s.IsLoading:
		return Decision{Action: ActionWait}
	case !s.IsAuthenticated():
		return Decision{Action: ActionRedirect, Location: LoginURL(path)}
	default:
		return Decision{Action: ActionAllow}
	}
}

// LoginURL is the login page with path captured for after sign-in.
func LoginURL(path string) string {
	if !isSafeLocalPath(path) || path == LoginPath {
		return LoginPath
	}
	return LoginPath + "?" + RedirectParam + "=" + url.QueryEscape(path)
}

// PostLoginTarget is where to go after a successful login: the captured path
// when it is a local path, else the default landing page.
func PostLoginTarget(captured string) string {
	if !isSafeLocalPath(captured) {
		return DefaultLanding
	}
	if p, _, _ := strings.Cut(captured, "?"); p == LoginPath {
		return DefaultLanding
	}
	return captured
}

// isSafeLocalPath rejects anything that could leave the console, such as
// absolute URLs and protocol relative paths.
func isSafeLocalPath(p string) bool {
	if p == "" || p[0] != '/' || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Scheme == "" && u.Host == ""
}

// SnapshotReader is satisfied by *auth.Session.
type SnapshotReader interface {
	Snapshot() auth.Snapshot
}

type options struct {
	retryAfter  time.Duration
	placeholder string
}

type Option func(*options)

// WithRetryAfter sets the Retry-After hint sent while the session loads.
func WithRetryAfter(d time.Duration) Option {
	return func(o *options) {
		o.retryAfter = d
	}
}

// WithPlaceholder sets the body sent while the session loads.
func WithPlaceholder(body string) Option {
	return func(o *options) {
		o.placeholder = body
	}
}

// Middleware applies Evaluate to every request: wait answers 503 with a
// neutral placeholder, redirect answers 303 to the login page, allow passes
// through.
func Middleware(reader SnapshotReader, opts ...Option) func(http.HandlerFunc) http.HandlerFunc {
	o := options{retryAfter: time.Second, placeholder: "Loading…"}
	for _, opt := range opts {
		opt(&o)
	}
	retryAfter := strconv.Itoa(max(1, int(o.retryAfter.Round(time.Second)/time.Second)))

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			d := Evaluate(reader.Snapshot(), r.URL.RequestURI())
			switch d.Action {
			case ActionAllow:
				next(w, r)
			case ActionRedirect:
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
			default:
				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("Cache-Control", "no-store")
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(o.placeholder))
			}
		}
	}
}
