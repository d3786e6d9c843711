package server

import (
	"net/http"

	"github.com/jrsteele09/civic-console/resources"
	"github.com/jrsteele09/civic-console/users"
)

type meResponse struct {
	User         *users.Profile     `json:"user"`
	DisplayName  string             `json:"displayName"`
	Capabilities users.Capabilities `json:"capabilities"`
}

type focusResponse struct {
	Event     string `json:"event"`
	Refetched int    `json:"refetched"`
}

const (
	focusEvent     = "focus"
	reconnectEvent = "reconnect"
)

// MeHandler returns the signed in profile and its derived capabilities.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := s.session.Snapshot().User
		if user == nil {
			s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Not signed in."})
			return
		}
		s.writeJSON(w, http.StatusOK, meResponse{User: user, DisplayName: user.DisplayName(), Capabilities: user.Capabilities()})
	}
}

// AccountsListHandler lists every account for app owners and only the user's
// own account for everyone else.
func (s *Server) AccountsListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.visibleAccounts(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, list)
	}
}

func (s *Server) visibleAccounts(r *http.Request) ([]resources.Account, error) {
	user := s.session.Snapshot().User
	if user.Capabilities().CanAccessAllAccounts {
		return s.resources.ListAccounts(r.Context())
	}
	if user == nil || user.AccountID == "" {
		return []resources.Account{}, nil
	}
	account, err := s.resources.GetAccount(r.Context(), user.AccountID)
	if err != nil {
		return nil, err
	}
	return []resources.Account{account}, nil
}

func (s *Server) AccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !s.mayReadAccount(id) {
			s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "You do not have permission to view this account."})
			return
		}
		account, err := s.resources.GetAccount(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, account)
	}
}

func (s *Server) AccountDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.session.Capabilities().CanCreateAccounts {
			s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "You do not have permission to perform this action."})
			return
		}
		if err := s.resources.DeleteAccount(r.Context(), r.PathValue("id")); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) AccountWorkspacesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !s.mayReadAccount(id) {
			s.writeJSON(w, http.StatusForbidden, errorResponse{Error: "You do not have permission to view this account."})
			return
		}
		list, err := s.resources.ListWorkspaces(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, list)
	}
}

// FocusEventHandler refetches observed queries when the shell reports that the
// window regained focus, or with ?event=reconnect that connectivity returned.
func (s *Server) FocusEventHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		event := r.URL.Query().Get("event")
		if event == "" {
			event = focusEvent
		}

		cache := s.resources.Cache()
		var n int
		switch event {
		case focusEvent:
			n = cache.Focus(r.Context())
		case reconnectEvent:
			n = cache.Reconnect(r.Context())
		default:
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown event " + event})
			return
		}
		s.writeJSON(w, http.StatusOK, focusResponse{Event: event, Refetched: n})
	}
}

func (s *Server) mayReadAccount(id string) bool {
	user := s.session.Snapshot().User
	if user == nil {
		return false
	}
	return user.Capabilities().CanAccessAllAccounts || user.AccountID == id
}
