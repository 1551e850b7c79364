// internal/gmail/types.go
package gmail

import (
	"net/url"
	"time"
)

type MessageID string

const webEndpoint = "https://mail.google.com/mail/"

// Message is a fully parsed Gmail message. It is a value once constructed;
// identity is the message ID alone.
type Message struct {
	ID           MessageID
	ThreadID     string
	Subject      string
	Sender       string
	Received     time.Time
	Snippet      string
	AccountEmail string
}

// WebURL returns the browser fallback link for the message, of the form
// https://mail.google.com/mail/?authuser=<email>#inbox/<id>.
func (m Message) WebURL() string {
	u, err := url.Parse(webEndpoint)
	if err != nil {
		return webEndpoint
	}
	q := url.Values{}
	q.Set("authuser", m.AccountEmail)
	u.RawQuery = q.Encode()
	u.Fragment = "inbox/" + string(m.ID)
	return u.String()
}

// MessageSet holds messages deduplicated by ID.
type MessageSet map[MessageID]Message

// NewMessageSet builds a set from a slice; later duplicates win.
func NewMessageSet(msgs []Message) MessageSet {
	set := make(MessageSet, len(msgs))
	for _, m := range msgs {
		set[m.ID] = m
	}
	return set
}

// Clone returns a shallow copy safe to hand to concurrent readers.
func (s MessageSet) Clone() MessageSet {
	out := make(MessageSet, len(s))
	for id, m := range s {
		out[id] = m
	}
	return out
}

// Delta describes the difference between two message-set snapshots.
// Removed and Added are disjoint by construction.
type Delta struct {
	Removed []Message
	Added   []Message
}

// Empty reports whether the delta carries no changes.
func (d Delta) Empty() bool {
	return len(d.Removed) == 0 && len(d.Added) == 0
}

// Diff computes the set difference between two snapshots by message ID:
// Removed = old − new, Added = new − old.
func Diff(oldSet, newSet MessageSet) Delta {
	var d Delta
	for id, m := range oldSet {
		if _, ok := newSet[id]; !ok {
			d.Removed = append(d.Removed, m)
		}
	}
	for id, m := range newSet {
		if _, ok := oldSet[id]; !ok {
			d.Added = append(d.Added, m)
		}
	}
	return d
}
