package config

import (
	"strings"
	"time"
)

type APIConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetRefreshTimeout() time.Duration
}

type API struct {
	source
}

var _ APIConfig = API{}

// GetBaseURL returns the versioned REST API root, e.g. "https://api.example.com/api/v1"
func (a API) GetBaseURL() string {
	return strings.TrimRight(a.get("API_BASE_URL", "http://localhost:3000/api/v1"), "/")
}

func (a API) GetRequestTimeout() time.Duration {
	return a.duration("API_REQUEST_TIMEOUT", 30*time.Second)
}

// GetRefreshTimeout bounds the token refresh call separately from normal requests.
func (a API) GetRefreshTimeout() time.Duration {
	return a.duration("API_REFRESH_TIMEOUT", 10*time.Second)
}
