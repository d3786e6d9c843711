package server

import (
	"html/template"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/jrsteele09/civic-console/query"
	"github.com/jrsteele09/civic-console/resources"
	"github.com/jrsteele09/civic-console/users"
)

// DashboardPageData contains data for rendering the dashboard
type DashboardPageData struct {
	AppName      string
	UserName     string
	Role         users.Role
	Capabilities users.Capabilities
	Accounts     []resources.Account
	Workspaces   []resources.Workspace
	Error        string
}

// DashboardHandler renders the landing page. The account and workspace lists
// are loaded in parallel and stay observed, so focus events and mutations
// refresh them in the background.
func (s *Server) DashboardHandler(tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := s.session.Snapshot().User
		data := DashboardPageData{
			AppName:      s.appName,
			UserName:     user.DisplayName(),
			Capabilities: user.Capabilities(),
		}
		if user != nil {
			data.Role = user.Role
		}

		g, ctx := errgroup.WithContext(r.Context())
		if data.Capabilities.CanAccessAllAccounts {
			g.Go(func() error {
				list, obs, err := s.resources.ObserveAccounts(ctx)
				s.keepView(obs)
				data.Accounts = list
				return err
			})
		}
		if user != nil && user.AccountID != "" {
			g.Go(func() error {
				list, obs, err := s.resources.ObserveWorkspaces(ctx, user.AccountID)
				s.keepView(obs)
				data.Workspaces = list
				return err
			})
		}

		status := http.StatusOK
		if err := g.Wait(); err != nil {
			var message string
			status, message = describeError(err)
			data.Error = message
			s.logger.Warn().Err(err).Msg("dashboard loaded with errors")
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		w.WriteHeader(status)
		if err := tmpl.Execute(w, data); err != nil {
			s.logger.Error().Err(err).Msg("failed to render dashboard")
		}
	}
}

// keepView holds obs until the next render of the same list or logout.
func (s *Server) keepView(obs *query.Observer) {
	if obs == nil {
		return
	}
	id := obs.Key().String()
	s.viewsMu.Lock()
	prev := s.views[id]
	s.views[id] = obs
	s.viewsMu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// ReleaseViews closes every list observer the dashboard holds. It runs on
// logout and whenever the API client clears the session.
func (s *Server) ReleaseViews() {
	s.viewsMu.Lock()
	views := s.views
	s.views = map[string]*query.Observer{}
	s.viewsMu.Unlock()
	for _, obs := range views {
		obs.Close()
	}
}
