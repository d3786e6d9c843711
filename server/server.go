package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/civic-console/auth"
	"github.com/jrsteele09/civic-console/internal/config"
	"github.com/jrsteele09/civic-console/query"
	"github.com/jrsteele09/civic-console/resources"
)

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	appName   string
	mux       *http.ServeMux
	routes    []string
	session   *auth.Session
	resources *resources.Service
	metrics   http.Handler
	logger    zerolog.Logger

	// views keeps the dashboard's lists observed between page loads.
	viewsMu sync.Mutex
	views   map[string]*query.Observer
}

type Option func(*Server)

// WithMetricsHandler serves h on /metrics instead of the default registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(c config.EnvConfig, session *auth.Session, svc *resources.Service, options ...Option) (*Server, error) {
	if session == nil {
		return nil, errors.New("[Server New] session is required")
	}
	if svc == nil {
		return nil, errors.New("[Server New] resource service is required")
	}

	s := &Server{
		env:       c.GetEnv(),
		appName:   c.GetAppName(),
		mux:       http.NewServeMux(),
		session:   session,
		resources: svc,
		metrics:   promhttp.Handler(),
		logger:    log.Logger,
		views:     map[string]*query.Observer{},
	}
	for _, opt := range options {
		opt(s)
	}

	if err := s.initRoutes(); err != nil {
		return nil, errors.Wrap(err, "[Server New] failed to register routes")
	}
	s.logRoutes()
	session.OnLogout(s.ReleaseViews)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.logger.Info().Msg(routeLine(parts[0], parts[1]))
		} else {
			s.logger.Info().Msg(routeLine("", parts[0]))
		}
	}
}

func routeLine(method, path string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	return fmt.Sprintf("[%-19s] %s", color+paddedMethod+ResetColor, path)
}
