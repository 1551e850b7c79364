// internal/notify/notify.go
package notify

import (
	"log/slog"
	"time"

	"github.com/jashephe/gmail-notifier/internal/account"
	"github.com/jashephe/gmail-notifier/internal/gmail"
	"github.com/jashephe/gmail-notifier/internal/registry"
)

// Notification is one desktop notification's content. ID is the provider's
// message ID, making withdrawal by ID possible.
type Notification struct {
	ID        string
	Title     string
	Subtitle  string
	Body      string
	Timestamp time.Time
	URL       string
}

// Sink presents notifications to the user. The production implementation
// talks to the desktop notification service; tests use Memory.
type Sink interface {
	Show(n Notification) error
	Withdraw(id string) error
}

// ActivationFunc is invoked with a notification's deep-link URL when the
// user interacts with it.
type ActivationFunc func(url string)

// Activatable is implemented by sinks that can report user interaction.
type Activatable interface {
	OnActivation(fn ActivationFunc)
}

// FromMessage maps a message onto its notification.
func FromMessage(m gmail.Message) Notification {
	return Notification{
		ID:        string(m.ID),
		Title:     m.Subject,
		Subtitle:  m.Sender,
		Body:      m.Snippet,
		Timestamp: m.Received,
		URL:       m.WebURL(),
	}
}

// Bridge subscribes to account message deltas and translates them into
// show/withdraw commands on the sink.
type Bridge struct {
	sink Sink
	log  *slog.Logger
}

func NewBridge(sink Sink, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{sink: sink, log: log}
}

// Attach shows the account's current messages and follows its deltas from
// then on. Showing the existing set covers messages that arrived before the
// bridge attached, such as after a process restart.
func (b *Bridge) Attach(acct *account.Account) {
	for _, m := range acct.Messages() {
		b.show(m)
	}
	acct.OnDelta(func(d gmail.Delta) {
		for _, m := range d.Removed {
			if err := b.sink.Withdraw(string(m.ID)); err != nil {
				b.log.Warn("could not withdraw notification", "id", m.ID, "error", err)
			}
		}
		for _, m := range d.Added {
			b.show(m)
		}
	})
}

// AttachRegistry attaches to every current account and to all future ones.
func (b *Bridge) AttachRegistry(r *registry.Registry) {
	r.OnAccountAdded(b.Attach)
	for _, acct := range r.Accounts() {
		b.Attach(acct)
	}
}

func (b *Bridge) show(m gmail.Message) {
	if err := b.sink.Show(FromMessage(m)); err != nil {
		b.log.Warn("could not show notification", "id", m.ID, "error", err)
	}
}
