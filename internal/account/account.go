// internal/account/account.go
package account

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jashephe/gmail-notifier/internal/auth"
	"github.com/jashephe/gmail-notifier/internal/gmail"
	"github.com/jashephe/gmail-notifier/internal/rate"
)

// Settings control what an account fetches on each refresh.
type Settings struct {
	// FilterQuery is the Gmail search query selecting messages of interest.
	FilterQuery string
	// MaxMessages bounds how many messages one refresh downloads.
	MaxMessages int
	// FetchSnippets controls whether message snippets are kept.
	FetchSnippets bool
	// FetchRaw controls whether raw RFC 2822 downloads are permitted.
	FetchRaw bool
}

// DefaultSettings matches the behavior of a freshly added account.
func DefaultSettings() Settings {
	return Settings{
		FilterQuery:   "in:INBOX is:unread",
		MaxMessages:   5,
		FetchSnippets: true,
		FetchRaw:      true,
	}
}

// Properties is the identity triple fetched from the provider for an
// authorized user.
type Properties struct {
	Email       string
	DisplayName string
	AvatarURL   string
}

// FetchProperties combines the profile and person lookups. The two calls run
// concurrently and both must succeed.
func FetchProperties(ctx context.Context, client gmail.Client) (Properties, error) {
	var props Properties
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		email, err := client.EmailAddress(ctx)
		if err != nil {
			return err
		}
		props.Email = email
		return nil
	})
	g.Go(func() error {
		name, avatarURL, err := client.Person(ctx)
		if err != nil {
			return err
		}
		props.DisplayName = name
		props.AvatarURL = avatarURL
		return nil
	})
	if err := g.Wait(); err != nil {
		return Properties{}, err
	}
	return props, nil
}

// DeltaFunc receives the (removed, added) pair after a refresh changes the
// stored message set.
type DeltaFunc func(gmail.Delta)

// Account binds an authorizer to a mail identity and tracks the last-known
// message set. Equality between accounts is by email address alone.
type Account struct {
	authorizer *auth.Authorizer
	client     gmail.Client
	limiter    rate.Limiter
	log        *slog.Logger

	email       string
	displayName string
	avatarURL   string

	mu       sync.Mutex
	settings Settings
	messages gmail.MessageSet
	onDelta  []DeltaFunc
}

// New constructs an Account around an authorizer, its identity, and the
// client used to reach the provider.
func New(authorizer *auth.Authorizer, client gmail.Client, limiter rate.Limiter, log *slog.Logger, props Properties, settings Settings) *Account {
	if log == nil {
		log = slog.Default()
	}
	if limiter == nil {
		limiter = rate.None{}
	}
	return &Account{
		authorizer:  authorizer,
		client:      client,
		limiter:     limiter,
		log:         log.With("account", props.Email),
		email:       props.Email,
		displayName: props.DisplayName,
		avatarURL:   props.AvatarURL,
		settings:    settings,
		messages:    gmail.MessageSet{},
	}
}

func (a *Account) Email() string                { return a.email }
func (a *Account) DisplayName() string          { return a.displayName }
func (a *Account) AvatarURL() string            { return a.avatarURL }
func (a *Account) Authorizer() *auth.Authorizer { return a.authorizer }

// Equal reports whether two accounts denote the same mail identity.
func (a *Account) Equal(b *Account) bool {
	return b != nil && a.email == b.email
}

// Settings returns a snapshot of the account's behavioral settings.
func (a *Account) Settings() Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// SetSettings replaces the behavioral settings. In-flight refreshes keep the
// settings they started with.
func (a *Account) SetSettings(s Settings) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = s
}

// Messages returns a snapshot of the current message set.
func (a *Account) Messages() gmail.MessageSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.messages.Clone()
}

// OnDelta registers fn to run after every refresh that changes the message
// set. Callbacks run on the refreshing goroutine, after the whole round has
// settled.
func (a *Account) OnDelta(fn DeltaFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onDelta = append(a.onDelta, fn)
}

// FetchMessageIDs lists the IDs matching the account's filter query, bounded
// by MaxMessages. The query is captured when the call starts; later settings
// changes do not affect it.
func (a *Account) FetchMessageIDs(ctx context.Context) ([]gmail.MessageID, error) {
	settings := a.Settings()
	if strings.TrimSpace(settings.FilterQuery) == "" {
		return nil, &gmail.RequestError{Reason: "could not construct the message query: empty search query"}
	}
	if settings.MaxMessages <= 0 {
		return nil, &gmail.RequestError{Reason: "could not construct the message query: max messages must be positive"}
	}
	return a.client.ListMessageIDs(ctx, settings.FilterQuery, int64(settings.MaxMessages))
}

// FetchMessage fetches and parses one full message, stamped with this
// account's email for deep linking.
func (a *Account) FetchMessage(ctx context.Context, id gmail.MessageID) (gmail.Message, error) {
	msg, err := a.client.GetMessage(ctx, id)
	if err != nil {
		return gmail.Message{}, err
	}
	msg.AccountEmail = a.email
	return msg, nil
}

// FetchRawMessage fetches the RFC 2822 bytes of one message, for preview.
func (a *Account) FetchRawMessage(ctx context.Context, id gmail.MessageID) ([]byte, error) {
	if !a.Settings().FetchRaw {
		return nil, &gmail.OperationError{Reason: "raw message downloads are disabled for this account"}
	}
	return a.client.GetRawMessage(ctx, id)
}

// CheckQuery runs query against the provider without touching the stored
// settings or message set, returning how many messages matched. This backs
// the interactive "test this filter" flow.
func (a *Account) CheckQuery(ctx context.Context, query string) (int, error) {
	if strings.TrimSpace(query) == "" {
		return 0, &gmail.RequestError{Reason: "could not construct the message query: empty search query"}
	}
	ids, err := a.client.ListMessageIDs(ctx, query, int64(a.Settings().MaxMessages))
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// RefreshMessages fetches the current message set and publishes a delta if
// it differs from the stored one. It never fails outward: a failed ID
// listing aborts the round with a log line, and an individual message fetch
// failure drops only that message.
func (a *Account) RefreshMessages(ctx context.Context) {
	settings := a.Settings()

	ids, err := a.FetchMessageIDs(ctx)
	if err != nil {
		a.log.Warn("could not list messages", "error", err)
		return
	}

	results := make([]*gmail.Message, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id gmail.MessageID) {
			defer wg.Done()
			if waitErr := a.limiter.Wait(ctx); waitErr != nil {
				return
			}
			msg, fetchErr := a.FetchMessage(ctx, id)
			if fetchErr != nil {
				a.log.Warn("dropping message from refresh", "id", id, "error", fetchErr)
				return
			}
			if !settings.FetchSnippets {
				msg.Snippet = ""
			}
			results[i] = &msg
		}(i, id)
	}
	wg.Wait()

	var fetched []gmail.Message
	for _, m := range results {
		if m != nil {
			fetched = append(fetched, *m)
		}
	}
	newSet := gmail.NewMessageSet(fetched)

	a.mu.Lock()
	delta := gmail.Diff(a.messages, newSet)
	// The set is replaced even when the delta is empty, so a refresh that
	// changes nothing still observes the latest server state.
	a.messages = newSet
	subs := make([]DeltaFunc, len(a.onDelta))
	copy(subs, a.onDelta)
	a.mu.Unlock()

	if delta.Empty() {
		return
	}
	for _, fn := range subs {
		fn(delta)
	}
}
