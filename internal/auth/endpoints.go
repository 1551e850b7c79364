// internal/auth/endpoints.go — token revocation, validation, and raw
// authorized requests against the provider's auxiliary endpoints.
package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/jashephe/gmail-notifier/internal/gmail"
)

// DoAuthorized issues an HTTP request carrying a Bearer token for the
// current access token and returns the raw response body.
func (a *Authorizer) DoAuthorized(ctx context.Context, method, rawURL string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &gmail.RequestError{Reason: err.Error()}
	}
	res, err := a.HTTPClient().Do(req)
	if err != nil {
		return nil, translateTokenError(err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &gmail.ConnectionError{Err: err}
	}
	return data, nil
}

// Revoke asks the provider to revoke the refresh token (which also revokes
// any access tokens minted from it) and stops the renewal timer.
func (a *Authorizer) Revoke(ctx context.Context) error {
	a.mu.Lock()
	token := a.refreshToken
	revokeURL := a.cfg.RevokeURL
	a.mu.Unlock()

	u, err := url.Parse(revokeURL)
	if err != nil {
		return &gmail.RequestError{Reason: "could not construct the revocation URL"}
	}
	q := url.Values{}
	q.Set("token", token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &gmail.RequestError{Reason: err.Error()}
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return &gmail.ConnectionError{Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		a.Close()
		return nil
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return &gmail.ConnectionError{Err: err}
	}
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if jsonErr := json.Unmarshal(data, &payload); jsonErr == nil && payload.Error != "" {
		return &gmail.APIError{Code: payload.Error, Description: payload.ErrorDescription}
	}
	return &gmail.ResponseError{Reason: "revocation endpoint returned an unparseable payload"}
}

// Validate checks the current access token against the provider's tokeninfo
// endpoint. The token is valid only if its audience matches our client ID.
func (a *Authorizer) Validate(ctx context.Context) (bool, error) {
	a.mu.Lock()
	accessToken := a.accessToken
	validateURL := a.cfg.ValidateURL
	clientID := a.cfg.ClientID
	a.mu.Unlock()

	u, err := url.Parse(validateURL)
	if err != nil {
		return false, &gmail.RequestError{Reason: "could not construct the validation URL"}
	}
	q := url.Values{}
	q.Set("access_token", accessToken)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, &gmail.RequestError{Reason: err.Error()}
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, &gmail.ConnectionError{Err: err}
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return false, &gmail.ConnectionError{Err: err}
	}
	var payload struct {
		Audience string `json:"aud"`
	}
	if jsonErr := json.Unmarshal(data, &payload); jsonErr != nil {
		return false, &gmail.ResponseError{Reason: "tokeninfo endpoint returned an unparseable payload"}
	}
	return payload.Audience == clientID, nil
}
