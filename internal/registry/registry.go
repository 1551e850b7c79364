// internal/registry/registry.go
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/jashephe/gmail-notifier/internal/account"
	"github.com/jashephe/gmail-notifier/internal/auth"
	"github.com/jashephe/gmail-notifier/internal/config"
	"github.com/jashephe/gmail-notifier/internal/gmail"
	"github.com/jashephe/gmail-notifier/internal/rate"
	"github.com/jashephe/gmail-notifier/internal/reach"
	"github.com/jashephe/gmail-notifier/internal/runtime"
	"github.com/jashephe/gmail-notifier/internal/secret"
)

// Index is the persisted account index: which accounts exist and with what
// settings. The production implementation is *config.Config.
type Index interface {
	AccountEmails() []string
	AccountSettingsFor(email string) config.AccountSettings
	SetAccount(email string, s config.AccountSettings) error
	RemoveAccount(email string) error
}

// Registry owns the collection of accounts, their persistence, and the
// shared polling scheduler.
type Registry struct {
	log       *slog.Logger
	secrets   secret.Store
	index     Index
	clientCfg auth.ClientConfig
	limiter   rate.Limiter
	reach     reach.Checker

	// Seams for tests; production defaults hit the real provider.
	newCodeAuthorizer  func(ctx context.Context, code string) (*auth.Authorizer, error)
	newTokenAuthorizer func(ctx context.Context, token string) (*auth.Authorizer, error)
	newClient          func(ctx context.Context, a *auth.Authorizer) (gmail.Client, error)

	mu         sync.Mutex
	accounts   []*account.Account
	lastUpdate time.Time
	interval   time.Duration
	leeway     time.Duration
	ticker     *time.Ticker
	running    bool
	stopCh     chan struct{}
	triggerCh  chan struct{}
	reschedCh  chan struct{}
	onAdd      []func(*account.Account)
}

// Options configure a Registry.
type Options struct {
	Secrets   secret.Store
	Index     Index
	ClientCfg auth.ClientConfig
	Limiter   rate.Limiter
	Reach     reach.Checker
	Interval  time.Duration
	Leeway    time.Duration
	Logger    *slog.Logger
}

// New builds a Registry. The scheduler does not run until Start.
func New(opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 20 * time.Second
	}
	leeway := opts.Leeway
	if leeway < 0 {
		leeway = 0
	}
	reachable := opts.Reach
	if reachable == nil {
		reachable = reach.Static(true)
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.None{}
	}
	r := &Registry{
		log:       log,
		secrets:   opts.Secrets,
		index:     opts.Index,
		clientCfg: opts.ClientCfg,
		limiter:   limiter,
		reach:     reachable,
		interval:  interval,
		leeway:    leeway,
		triggerCh: make(chan struct{}, 1),
		reschedCh: make(chan struct{}, 1),
	}
	r.newCodeAuthorizer = func(ctx context.Context, code string) (*auth.Authorizer, error) {
		return auth.NewFromAuthorizationCode(ctx, r.clientCfg, r.log, code)
	}
	r.newTokenAuthorizer = func(ctx context.Context, token string) (*auth.Authorizer, error) {
		return auth.NewFromRefreshToken(ctx, r.clientCfg, r.log, token)
	}
	r.newClient = func(ctx context.Context, a *auth.Authorizer) (gmail.Client, error) {
		return runtime.NewGmailClient(ctx, a)
	}
	return r
}

// Accounts returns a snapshot of the account list in insertion order.
func (r *Registry) Accounts() []*account.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*account.Account, len(r.accounts))
	copy(out, r.accounts)
	return out
}

// LastUpdate returns the time of the last scheduler firing that polled.
func (r *Registry) LastUpdate() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUpdate
}

// Reachable reports the current network-reachability state.
func (r *Registry) Reachable() bool { return r.reach.Reachable() }

// OnAccountAdded registers fn to be called for every account added to the
// registry after registration time.
func (r *Registry) OnAccountAdded(fn func(*account.Account)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAdd = append(r.onAdd, fn)
}

func (r *Registry) containsEmail(email string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email() == email {
			return true
		}
	}
	return false
}

func toAccountSettings(s config.AccountSettings) account.Settings {
	return account.Settings{
		FilterQuery:   s.FilterQuery,
		MaxMessages:   s.MaxMessages,
		FetchSnippets: s.ShowSnippets,
		FetchRaw:      s.AllowQuicklook,
	}
}

func fromAccountSettings(s account.Settings) config.AccountSettings {
	return config.AccountSettings{
		FilterQuery:    s.FilterQuery,
		MaxMessages:    s.MaxMessages,
		ShowSnippets:   s.FetchSnippets,
		AllowQuicklook: s.FetchRaw,
	}
}

func (r *Registry) buildAccount(ctx context.Context, authorizer *auth.Authorizer, settings account.Settings) (*account.Account, error) {
	client, err := r.newClient(ctx, authorizer)
	if err != nil {
		return nil, fmt.Errorf("create provider client: %w", err)
	}
	props, err := account.FetchProperties(ctx, client)
	if err != nil {
		return nil, err
	}
	return account.New(authorizer, client, r.limiter, r.log, props, settings), nil
}

// append installs the account, notifies subscribers, and kicks off an
// immediate refresh.
func (r *Registry) append(ctx context.Context, acct *account.Account) {
	r.mu.Lock()
	r.accounts = append(r.accounts, acct)
	subs := make([]func(*account.Account), len(r.onAdd))
	copy(subs, r.onAdd)
	r.mu.Unlock()

	for _, fn := range subs {
		fn(acct)
	}
	go acct.RefreshMessages(ctx)
}

// AddAccount exchanges the authorization code, fetches the account's
// identity, and installs it. A duplicate email fails with an OperationError
// after revoking the freshly issued tokens, so they don't leak.
func (r *Registry) AddAccount(ctx context.Context, code string) (*account.Account, error) {
	authorizer, err := r.newCodeAuthorizer(ctx, code)
	if err != nil {
		return nil, err
	}
	acct, err := r.buildAccount(ctx, authorizer, account.DefaultSettings())
	if err != nil {
		authorizer.Close()
		return nil, err
	}
	if r.containsEmail(acct.Email()) {
		if revokeErr := authorizer.Revoke(ctx); revokeErr != nil {
			r.log.Warn("could not revoke duplicate account's tokens", "account", acct.Email(), "error", revokeErr)
		}
		// Revoke only closes on success; stop the renewal timer regardless.
		authorizer.Close()
		return nil, &gmail.OperationError{Reason: fmt.Sprintf("the account %q already exists", acct.Email())}
	}

	if err := r.secrets.Save(secret.TokenKey(acct.Email()), []byte(authorizer.RefreshToken())); err != nil {
		r.log.Error("could not persist refresh token", "account", acct.Email(), "error", err)
	}
	if err := r.index.SetAccount(acct.Email(), fromAccountSettings(acct.Settings())); err != nil {
		r.log.Error("could not persist account settings", "account", acct.Email(), "error", err)
	}

	r.append(ctx, acct)
	return acct, nil
}

// RemoveAccount removes the account at index, deletes its persisted secret,
// and revokes its refresh token. Removal from the list is unconditional;
// only the revocation can fail, and a failure is reported without undoing
// the removal.
func (r *Registry) RemoveAccount(ctx context.Context, index int) error {
	r.mu.Lock()
	if index < 0 || index >= len(r.accounts) {
		r.mu.Unlock()
		return &gmail.OperationError{Reason: fmt.Sprintf("no account at position %d", index)}
	}
	acct := r.accounts[index]
	r.accounts = append(r.accounts[:index], r.accounts[index+1:]...)
	r.mu.Unlock()

	if err := r.secrets.Delete(secret.TokenKey(acct.Email())); err != nil {
		r.log.Warn("could not delete persisted secret", "account", acct.Email(), "error", err)
	}
	if err := r.index.RemoveAccount(acct.Email()); err != nil {
		r.log.Warn("could not update account index", "account", acct.Email(), "error", err)
	}
	if err := acct.Authorizer().Revoke(ctx); err != nil {
		return fmt.Errorf("revoke tokens for %s: %w", acct.Email(), err)
	}
	return nil
}

// RestoreAccounts rebuilds accounts persisted in the index at startup. Each
// failure produces a warning and is returned; the rest proceed.
func (r *Registry) RestoreAccounts(ctx context.Context) []error {
	var warnings []error
	for _, email := range r.index.AccountEmails() {
		data, err := r.secrets.Get(secret.TokenKey(email))
		if err != nil {
			warnings = append(warnings, fmt.Errorf("load authorization token for %s: %w", email, err))
			r.log.Warn("skipping account: could not load its authorization token", "account", email, "error", err)
			continue
		}
		authorizer, err := r.newTokenAuthorizer(ctx, string(data))
		if err != nil {
			warnings = append(warnings, fmt.Errorf("restore account %s: %w", email, err))
			r.log.Warn("skipping account: stored token was rejected", "account", email, "error", err)
			continue
		}
		settings := toAccountSettings(r.index.AccountSettingsFor(email))
		acct, err := r.buildAccount(ctx, authorizer, settings)
		if err != nil {
			authorizer.Close()
			warnings = append(warnings, fmt.Errorf("restore account %s: %w", email, err))
			r.log.Warn("skipping account: could not fetch its properties", "account", email, "error", err)
			continue
		}
		if r.containsEmail(acct.Email()) {
			warnings = append(warnings, &gmail.OperationError{Reason: fmt.Sprintf("the account %q already exists", acct.Email())})
			authorizer.Close()
			continue
		}
		r.append(ctx, acct)
	}
	return warnings
}

// Start launches the shared polling scheduler. Each firing fans out one
// refresh per account; a slow account never blocks the others. A stopped
// registry can be started again.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.ticker = time.NewTicker(r.interval)
	stop := r.stopCh
	r.mu.Unlock()

	go r.loop(ctx, stop)
}

// Stop halts the scheduler. In-flight refreshes are not cancelled.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	r.ticker.Stop()
	close(r.stopCh)
}

// SetInterval cancels the pending tick and reschedules at the new interval.
// The running loop is woken so it picks up the new ticker immediately rather
// than blocking on the stopped one.
func (r *Registry) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.interval = d
	running := r.running
	if running {
		r.ticker.Stop()
		r.ticker = time.NewTicker(d)
	}
	r.mu.Unlock()

	if running {
		select {
		case r.reschedCh <- struct{}{}:
		default:
		}
	}
}

// RefreshNow triggers one immediate polling round outside the schedule.
func (r *Registry) RefreshNow() {
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

// loop owns stop for its whole lifetime, so a loop from a previous
// Start/Stop cycle can never latch onto a successor's stop channel.
func (r *Registry) loop(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		r.mu.Lock()
		tick := r.ticker.C
		leeway := r.leeway
		r.mu.Unlock()

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-r.reschedCh:
			// SetInterval swapped the ticker; loop around to block on it.
		case <-r.triggerCh:
			r.pollAll(ctx)
		case <-tick:
			// The leeway window lets rounds land off the exact beat, so many
			// timers in the process don't align into one thundering herd.
			if leeway > 0 {
				jitter := time.Duration(rand.Int63n(int64(leeway)))
				select {
				case <-time.After(jitter):
				case <-stop:
					return
				}
			}
			r.pollAll(ctx)
		}
	}
}

func (r *Registry) pollAll(ctx context.Context) {
	accounts := r.Accounts()
	if len(accounts) == 0 || !r.reach.Reachable() {
		return
	}
	for _, acct := range accounts {
		go acct.RefreshMessages(ctx)
	}
	r.mu.Lock()
	r.lastUpdate = time.Now()
	r.mu.Unlock()
}
