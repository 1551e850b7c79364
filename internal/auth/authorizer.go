// internal/auth/authorizer.go
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jashephe/gmail-notifier/internal/gmail"
)

const (
	// DefaultRenewOffset is how long before access-token expiry a renewal is
	// scheduled. Renewal always happens strictly before expiry.
	DefaultRenewOffset = 30 * time.Second

	// renewRetryInterval spaces out renewal attempts after a failed refresh.
	// The stale token stays in place until one succeeds.
	renewRetryInterval = time.Minute

	redirectURI = "urn:ietf:wg:oauth:2.0:oob"

	scopeProfile       = "https://www.googleapis.com/auth/userinfo.profile"
	scopeGmailReadonly = "https://www.googleapis.com/auth/gmail.readonly"
)

// ClientConfig carries the OAuth2 client identity plus the provider
// endpoints. Endpoints default to Google's; tests point them at httptest
// servers.
type ClientConfig struct {
	ClientID     string
	ClientSecret string

	AuthURL     string
	TokenURL    string
	RevokeURL   string
	ValidateURL string
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.AuthURL == "" {
		c.AuthURL = google.Endpoint.AuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = google.Endpoint.TokenURL
	}
	if c.RevokeURL == "" {
		c.RevokeURL = "https://accounts.google.com/o/oauth2/revoke"
	}
	if c.ValidateURL == "" {
		c.ValidateURL = "https://www.googleapis.com/oauth2/v3/tokeninfo"
	}
	return c
}

func (c ClientConfig) oauth2Config() *oauth2.Config {
	c = c.withDefaults()
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{scopeProfile, scopeGmailReadonly},
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthURL,
			TokenURL: c.TokenURL,
		},
	}
}

// ConsentURL returns the interactive authorization URL the user must visit
// to obtain a one-time authorization code.
func ConsentURL(cfg ClientConfig) string {
	return cfg.oauth2Config().AuthCodeURL("", oauth2.AccessTypeOffline)
}

// Authorizer owns one account's OAuth2 refresh/access token pair. It renews
// the access token proactively on its own timer and implements
// oauth2.TokenSource so an authorized transport always carries a live token.
type Authorizer struct {
	cfg ClientConfig
	log *slog.Logger

	mu           sync.Mutex
	refreshToken string
	accessToken  string
	expiry       time.Time
	httpClient   *http.Client
	renew        *time.Timer
	closed       bool

	renewOffset time.Duration
	now         func() time.Time
}

// New constructs an Authorizer from an existing token triple and schedules
// the first renewal.
func New(cfg ClientConfig, log *slog.Logger, refreshToken, accessToken string, expiry time.Time) *Authorizer {
	if log == nil {
		log = slog.Default()
	}
	a := &Authorizer{
		cfg:          cfg.withDefaults(),
		log:          log,
		refreshToken: refreshToken,
		accessToken:  accessToken,
		expiry:       expiry,
		renewOffset:  DefaultRenewOffset,
		now:          time.Now,
	}
	a.mu.Lock()
	a.scheduleRenewalLocked()
	a.mu.Unlock()
	return a
}

// NewFromAuthorizationCode exchanges a one-time authorization code for a
// token triple at the provider's token endpoint.
func NewFromAuthorizationCode(ctx context.Context, cfg ClientConfig, log *slog.Logger, code string) (*Authorizer, error) {
	tok, err := cfg.oauth2Config().Exchange(ctx, code)
	if err != nil {
		return nil, translateTokenError(err)
	}
	if tok.RefreshToken == "" || tok.AccessToken == "" {
		return nil, &gmail.ResponseError{Reason: "token response missing refresh or access token"}
	}
	return New(cfg, log, tok.RefreshToken, tok.AccessToken, tok.Expiry), nil
}

// NewFromRefreshToken mints a fresh access token from a persisted refresh
// token. A server-side-revoked token surfaces as an APIError here.
func NewFromRefreshToken(ctx context.Context, cfg ClientConfig, log *slog.Logger, refreshToken string) (*Authorizer, error) {
	accessToken, expiry, err := exchangeRefreshToken(ctx, cfg, refreshToken)
	if err != nil {
		return nil, err
	}
	return New(cfg, log, refreshToken, accessToken, expiry), nil
}

func exchangeRefreshToken(ctx context.Context, cfg ClientConfig, refreshToken string) (string, time.Time, error) {
	ts := cfg.oauth2Config().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return "", time.Time{}, translateTokenError(err)
	}
	if tok.AccessToken == "" {
		return "", time.Time{}, &gmail.ResponseError{Reason: "token response missing access token"}
	}
	return tok.AccessToken, tok.Expiry, nil
}

func translateTokenError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.ErrorCode != "" {
			return &gmail.APIError{Code: rerr.ErrorCode, Description: rerr.ErrorDescription}
		}
		return &gmail.ResponseError{Reason: "token endpoint returned an unparseable payload"}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &gmail.ConnectionError{Err: err}
	}
	// The endpoint answered but the payload was not a usable token.
	return &gmail.ResponseError{Reason: err.Error()}
}

// RefreshToken returns the long-lived refresh token, for persistence and
// revocation.
func (a *Authorizer) RefreshToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshToken
}

// Expiry returns the current access token's expiry.
func (a *Authorizer) Expiry() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.expiry
}

// Token implements oauth2.TokenSource. It returns the current access token
// while it is valid and refreshes synchronously otherwise, so a request is
// never sent with an expired token even if the renewal timer has fallen
// behind.
func (a *Authorizer) Token() (*oauth2.Token, error) {
	a.mu.Lock()
	if a.accessToken != "" && a.now().Before(a.expiry.Add(-a.renewOffset)) {
		tok := &oauth2.Token{AccessToken: a.accessToken, RefreshToken: a.refreshToken, Expiry: a.expiry}
		a.mu.Unlock()
		return tok, nil
	}
	a.mu.Unlock()

	if err := a.RefreshAccessToken(context.Background()); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return &oauth2.Token{AccessToken: a.accessToken, RefreshToken: a.refreshToken, Expiry: a.expiry}, nil
}

// RefreshAccessToken exchanges the refresh token for a new access token and
// replaces the in-memory pair. On failure the stale token stays in place.
func (a *Authorizer) RefreshAccessToken(ctx context.Context) error {
	a.mu.Lock()
	refreshToken := a.refreshToken
	a.mu.Unlock()

	accessToken, expiry, err := exchangeRefreshToken(ctx, a.cfg, refreshToken)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.accessToken = accessToken
	a.expiry = expiry
	a.scheduleRenewalLocked()
	a.mu.Unlock()
	return nil
}

// scheduleRenewalLocked arms the renewal timer at expiry − renewOffset,
// replacing any pending one. Callers hold a.mu.
func (a *Authorizer) scheduleRenewalLocked() {
	if a.closed {
		return
	}
	if a.renew != nil {
		a.renew.Stop()
	}
	delay := renewalDelay(a.now(), a.expiry, a.renewOffset)
	a.renew = time.AfterFunc(delay, a.renewNow)
}

func (a *Authorizer) renewNow() {
	if err := a.RefreshAccessToken(context.Background()); err != nil {
		a.log.Warn("could not refresh access token; keeping stale token", "error", err)
		a.mu.Lock()
		if !a.closed {
			if a.renew != nil {
				a.renew.Stop()
			}
			a.renew = time.AfterFunc(renewRetryInterval, a.renewNow)
		}
		a.mu.Unlock()
	}
}

// renewalDelay computes how long to wait before renewing a token expiring at
// expiry. The result always lands strictly before expiry and is never
// negative.
func renewalDelay(now, expiry time.Time, offset time.Duration) time.Duration {
	d := expiry.Add(-offset).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// HTTPClient returns a client whose transport injects the current access
// token into every request. The token source is live, so the client never
// needs to be rebuilt after a token change.
func (a *Authorizer) HTTPClient() *http.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.httpClient == nil {
		a.httpClient = oauth2.NewClient(context.Background(), a)
	}
	return a.httpClient
}

// Closed reports whether the renewal timer has been shut down.
func (a *Authorizer) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Close stops the renewal timer. The authorizer is unusable afterwards.
func (a *Authorizer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.renew != nil {
		a.renew.Stop()
		a.renew = nil
	}
}

var _ oauth2.TokenSource = (*Authorizer)(nil)
