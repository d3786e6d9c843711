package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/civic-console/internal/errors"
	"github.com/jrsteele09/civic-console/metrics"
)

const refreshFlightKey = "refresh"

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// refreshAfter renews the access token after req failed with usedToken. All
// callers that arrive while a refresh is in flight wait for that one.
func (c *Client) refreshAfter(req Request, usedToken string) error {
	current := c.tokens.AccessToken()
	switch {
	case current != "" && current != usedToken:
		// Renewed while this request was on the wire.
		c.recorder.TokenRefresh(metrics.RefreshSkipped)
		c.logger.Debug().Str("op", req.op()).Msg("access token already renewed, retrying")
		return nil
	case current == "" && usedToken != "":
		// Cleared while this request was on the wire.
		return &Error{Op: req.op(), StatusCode: http.StatusUnauthorized, Kind: KindSessionExpired, Err: apperrors.ErrNoAccessToken}
	}

	_, err, shared := c.refreshGroup.Do(refreshFlightKey, func() (interface{}, error) {
		return nil, c.refresh()
	})
	if shared {
		c.recorder.TokenRefresh(metrics.RefreshShared)
	}
	if err != nil {
		return &Error{Op: req.op(), StatusCode: http.StatusUnauthorized, Kind: KindSessionExpired, Err: err}
	}
	return nil
}

// refresh runs detached from any caller's context so one cancelled request
// can't fail the refresh for everyone waiting on it.
func (c *Client) refresh() error {
	refreshToken, accessToken := c.tokens.RefreshToken(), c.tokens.AccessToken()
	if refreshToken == "" || accessToken == "" {
		return c.clearSession(errors.Wrap(apperrors.ErrNoRefreshToken, "[refresh]"))
	}

	timeout := c.refreshHTTP.Timeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	renewed, err := c.requestRefresh(ctx, refreshToken)
	if err != nil {
		return c.clearSession(err)
	}

	c.tokens.SetTokens(renewed.AccessToken, renewed.RefreshToken)
	c.recorder.TokenRefresh(metrics.RefreshSucceeded)
	c.logger.Info().Bool("rotated", renewed.RefreshToken != "").Msg("access token refreshed")
	return nil
}

func (c *Client) requestRefresh(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, errors.Wrap(err, "[refresh] encode body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RefreshPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "[refresh] build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.refreshHTTP.Do(req)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrRefreshFailed, err.Error())
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(err, "[refresh] read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Wrapf(apperrors.ErrRefreshFailed, "[refresh] status %d", resp.StatusCode)
	}

	data, err := UnwrapData(payload)
	if err != nil {
		return nil, errors.Wrap(err, "[refresh]")
	}
	var renewed refreshResponse
	if err := json.Unmarshal(data, &renewed); err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidResponse, "[refresh] "+err.Error())
	}
	if renewed.AccessToken == "" {
		return nil, errors.Wrap(apperrors.ErrInvalidResponse, "[refresh] response carries no access token")
	}
	return &renewed, nil
}

// clearSession wipes the store and notifies the hooks. It runs inside the
// single flight, so hooks fire once per failed refresh.
func (c *Client) clearSession(cause error) error {
	c.logger.Warn().Err(cause).Msg("token refresh failed, clearing session")
	c.tokens.ClearAll()
	c.recorder.TokenRefresh(metrics.RefreshFailed)
	c.recorder.SessionCleared()

	c.hooksMu.RLock()
	hooks := append([]func(){}, c.hooks...)
	c.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
	return cause
}
