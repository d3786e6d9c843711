package server

import "github.com/jrsteele09/civic-console/guard"

// Route path constants
const (
	// Session
	RouteLogin  = guard.LoginPath
	RouteLogout = "/logout"

	// Pages
	RouteDashboard = guard.DefaultLanding

	// JSON
	RouteMe                = "/me"
	RouteAccounts          = "/accounts"
	RouteAccount           = "/accounts/{id}"
	RouteAccountWorkspaces = "/accounts/{id}/workspaces"

	// Window lifecycle events forwarded by the shell
	RouteFocusEvent = "/events/focus"

	RouteMetrics = "/metrics"
)
