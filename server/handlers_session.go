package server

import (
	"html/template"
	"net/http"

	"github.com/jrsteele09/civic-console/apiclient"
	"github.com/jrsteele09/civic-console/guard"
	apperrors "github.com/jrsteele09/civic-console/internal/errors"
)

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	AppName  string
	Redirect string
	Email    string // Preserve email on error
	Error    string
}

// LoginPageHandler renders the login form (GET /login). A signed in visitor is
// sent straight on to the captured redirect.
func (s *Server) LoginPageHandler(tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirect := r.URL.Query().Get(guard.RedirectParam)
		if s.session.IsAuthenticated() {
			http.Redirect(w, r, guard.PostLoginTarget(redirect), http.StatusSeeOther)
			return
		}
		s.renderLogin(w, tmpl, http.StatusOK, LoginPageData{Redirect: redirect})
	}
}

// LoginSubmissionHandler signs in with the posted credentials (POST /login).
func (s *Server) LoginSubmissionHandler(tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			s.renderLogin(w, tmpl, http.StatusBadRequest, LoginPageData{Error: "Invalid form submission."})
			return
		}
		email := r.PostFormValue("email")
		redirect := r.PostFormValue(guard.RedirectParam)

		if _, err := s.session.Login(r.Context(), email, r.PostFormValue("password")); err != nil {
			status, message := loginFailure(err)
			s.logger.Debug().Err(err).Int("status", status).Msg("login rejected")
			s.renderLogin(w, tmpl, status, LoginPageData{Redirect: redirect, Email: email, Error: message})
			return
		}
		http.Redirect(w, r, guard.PostLoginTarget(redirect), http.StatusSeeOther)
	}
}

// LogoutHandler ends the session and returns to the login page (POST /logout).
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.session.Logout(r.Context())
		http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
	}
}

func (s *Server) renderLogin(w http.ResponseWriter, tmpl *template.Template, status int, data LoginPageData) {
	data.AppName = s.appName
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error().Err(err).Msg("failed to render login page")
	}
}

func loginFailure(err error) (int, string) {
	var apiErr *apiclient.Error
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusBadRequest, "Enter a valid email address and password."
	case apperrors.As(err, &apiErr) && apiErr.Kind == apiclient.KindUnauthenticated:
		return http.StatusUnauthorized, "Invalid email or password."
	case apperrors.As(err, &apiErr):
		return statusForKind(apiErr), apiErr.UserMessage()
	case apperrors.Is(err, apperrors.ErrInvalidResponse):
		return http.StatusBadGateway, "The server sent an unexpected response."
	default:
		return http.StatusInternalServerError, "Sign in failed, please try again."
	}
}
