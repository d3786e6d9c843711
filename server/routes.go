package server

import (
	"net/http"

	"github.com/jrsteele09/civic-console/guard"
)

func (s *Server) initRoutes() error {
	loginPage, err := ParseTemplate("login.html")
	if err != nil {
		return err
	}
	dashboardPage, err := ParseTemplate("dashboard.html")
	if err != nil {
		return err
	}
	requireSession := guard.Middleware(s.session)

	s.RegisterRouteFunc("GET /{$}", ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare()...))

	// SESSION
	s.RegisterRouteFunc("GET "+RouteLogin, ChainMiddleware(s.LoginPageHandler(loginPage), s.HTMLMiddleWare()...))
	s.RegisterRouteFunc("POST "+RouteLogin, ChainMiddleware(s.LoginSubmissionHandler(loginPage), s.HTMLMiddleWare()...))
	s.RegisterRouteFunc("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))

	// Pages behind the route guard
	s.RegisterRouteFunc("GET "+RouteDashboard, ChainMiddleware(s.DashboardHandler(dashboardPage), s.HTMLMiddleWare(requireSession)...))

	// JSON behind the route guard
	s.RegisterRouteFunc("GET "+RouteMe, ChainMiddleware(s.MeHandler(), s.APIMiddleware(requireSession)...))
	s.RegisterRouteFunc("GET "+RouteAccounts, ChainMiddleware(s.AccountsListHandler(), s.APIMiddleware(requireSession)...))
	s.RegisterRouteFunc("GET "+RouteAccount, ChainMiddleware(s.AccountHandler(), s.APIMiddleware(requireSession)...))
	s.RegisterRouteFunc("DELETE "+RouteAccount, ChainMiddleware(s.AccountDeleteHandler(), s.APIMiddleware(requireSession)...))
	s.RegisterRouteFunc("GET "+RouteAccountWorkspaces, ChainMiddleware(s.AccountWorkspacesHandler(), s.APIMiddleware(requireSession)...))
	s.RegisterRouteFunc("POST "+RouteFocusEvent, ChainMiddleware(s.FocusEventHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics)
	return nil
}

// IndexHandler sends visitors to the landing page, which the guard may bounce
// to the login page.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, RouteDashboard, http.StatusSeeOther)
	}
}
