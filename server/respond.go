package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/civic-console/apiclient"
	apperrors "github.com/jrsteele09/civic-console/internal/errors"
	"github.com/jrsteele09/civic-console/resources"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write json response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := describeError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg(Red + "request failed" + ResetColor)
	} else {
		s.logger.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request rejected")
	}
	s.writeJSON(w, status, errorResponse{Error: message})
}

// describeError maps a failure to the status and message shown to the browser.
func describeError(err error) (int, string) {
	var apiErr *apiclient.Error
	switch {
	case apperrors.Is(err, resources.NameRequiredErr), apperrors.Is(err, resources.IDRequiredErr):
		return http.StatusBadRequest, err.Error()
	case apperrors.As(err, &apiErr):
		return statusForKind(apiErr), apiErr.UserMessage()
	case apperrors.Is(err, apperrors.ErrInvalidResponse):
		return http.StatusBadGateway, "The server sent an unexpected response."
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

func statusForKind(e *apiclient.Error) int {
	switch e.Kind {
	case apiclient.KindUnauthenticated, apiclient.KindSessionExpired:
		return http.StatusUnauthorized
	case apiclient.KindForbidden:
		return http.StatusForbidden
	case apiclient.KindTransport:
		return http.StatusServiceUnavailable
	case apiclient.KindServer, apiclient.KindInvalidResponse:
		return http.StatusBadGateway
	default:
		if e.StatusCode >= 400 && e.StatusCode < 500 {
			return e.StatusCode
		}
		return http.StatusBadRequest
	}
}
