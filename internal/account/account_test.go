package account

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jashephe/gmail-notifier/internal/gmail"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClient struct {
	mu          sync.Mutex
	email       string
	emailErr    error
	displayName string
	avatarURL   string
	personErr   error

	ids         []gmail.MessageID
	listErr     error
	listQueries []string
	listMaxes   []int64

	messages map[gmail.MessageID]gmail.Message
	fetchErr map[gmail.MessageID]error
	raw      map[gmail.MessageID][]byte
}

func newFakeClient(ids ...string) *fakeClient {
	f := &fakeClient{
		email:       "user@example.com",
		displayName: "Test User",
		avatarURL:   "https://example.com/avatar.png",
		messages:    map[gmail.MessageID]gmail.Message{},
		fetchErr:    map[gmail.MessageID]error{},
		raw:         map[gmail.MessageID][]byte{},
	}
	f.setIDs(ids...)
	return f
}

func (f *fakeClient) setIDs(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = nil
	for _, id := range ids {
		mid := gmail.MessageID(id)
		f.ids = append(f.ids, mid)
		if _, ok := f.messages[mid]; !ok {
			f.messages[mid] = gmail.Message{
				ID:       mid,
				ThreadID: "t-" + id,
				Subject:  "subject " + id,
				Sender:   "sender@example.com",
				Received: time.Unix(1700000000, 0),
				Snippet:  "snippet " + id,
			}
		}
	}
}

func (f *fakeClient) EmailAddress(ctx context.Context) (string, error) {
	_ = ctx
	if f.emailErr != nil {
		return "", f.emailErr
	}
	return f.email, nil
}

func (f *fakeClient) Person(ctx context.Context) (string, string, error) {
	_ = ctx
	if f.personErr != nil {
		return "", "", f.personErr
	}
	return f.displayName, f.avatarURL, nil
}

func (f *fakeClient) ListMessageIDs(ctx context.Context, query string, maxResults int64) ([]gmail.MessageID, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listQueries = append(f.listQueries, query)
	f.listMaxes = append(f.listMaxes, maxResults)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]gmail.MessageID(nil), f.ids...), nil
}

func (f *fakeClient) GetMessage(ctx context.Context, id gmail.MessageID) (gmail.Message, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[id]; err != nil {
		return gmail.Message{}, err
	}
	m, ok := f.messages[id]
	if !ok {
		return gmail.Message{}, &gmail.ResponseError{Reason: "unknown message"}
	}
	return m, nil
}

func (f *fakeClient) GetRawMessage(ctx context.Context, id gmail.MessageID) ([]byte, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.raw[id]; ok {
		return data, nil
	}
	return nil, &gmail.ResponseError{Reason: "no raw body"}
}

var _ gmail.Client = (*fakeClient)(nil)

func testAccount(client gmail.Client) *Account {
	props := Properties{Email: "user@example.com", DisplayName: "Test User"}
	return New(nil, client, nil, slogDiscard(), props, DefaultSettings())
}

func sortedIDs(set gmail.MessageSet) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, string(id))
	}
	sort.Strings(out)
	return out
}

func TestFetchProperties(t *testing.T) {
	fake := newFakeClient()
	props, err := FetchProperties(context.Background(), fake)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if props.Email != "user@example.com" {
		t.Fatalf("email: got %q", props.Email)
	}
	if props.DisplayName != "Test User" {
		t.Fatalf("display name: got %q", props.DisplayName)
	}
	if props.AvatarURL == "" {
		t.Fatalf("avatar URL missing")
	}
}

func TestFetchPropertiesFailsIfEitherCallFails(t *testing.T) {
	fake := newFakeClient()
	fake.personErr = &gmail.ConnectionError{Err: errors.New("boom")}
	if _, err := FetchProperties(context.Background(), fake); err == nil {
		t.Fatalf("expected an error when the person lookup fails")
	}

	fake = newFakeClient()
	fake.emailErr = &gmail.APIError{Code: "403", Description: "forbidden"}
	if _, err := FetchProperties(context.Background(), fake); err == nil {
		t.Fatalf("expected an error when the profile lookup fails")
	}
}

func TestFetchMessageIDs(t *testing.T) {
	fake := newFakeClient("m1", "m2")
	acct := testAccount(fake)

	ids, err := acct.FetchMessageIDs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "m1" || ids[1] != "m2" {
		t.Fatalf("ids: got %v", ids)
	}
	if fake.listQueries[0] != "in:INBOX is:unread" {
		t.Fatalf("query: got %q", fake.listQueries[0])
	}
	if fake.listMaxes[0] != 5 {
		t.Fatalf("max results: got %d", fake.listMaxes[0])
	}
}

func TestFetchMessageIDsRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
	}{
		{"empty-query", Settings{FilterQuery: "  ", MaxMessages: 5}},
		{"zero-max", Settings{FilterQuery: "is:unread", MaxMessages: 0}},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			acct := testAccount(newFakeClient())
			acct.SetSettings(tc.settings)
			_, err := acct.FetchMessageIDs(context.Background())
			var rerr *gmail.RequestError
			if !errors.As(err, &rerr) {
				t.Fatalf("expected RequestError, got %v", err)
			}
		})
	}
}

func TestFetchMessageStampsAccountEmail(t *testing.T) {
	fake := newFakeClient("m1")
	acct := testAccount(fake)

	m, err := acct.FetchMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.AccountEmail != "user@example.com" {
		t.Fatalf("account email not stamped: %q", m.AccountEmail)
	}
}

func TestRefreshMessagesEmitsDelta(t *testing.T) {
	fake := newFakeClient("m1", "m2")
	acct := testAccount(fake)

	var mu sync.Mutex
	var deltas []gmail.Delta
	acct.OnDelta(func(d gmail.Delta) {
		mu.Lock()
		deltas = append(deltas, d)
		mu.Unlock()
	})

	acct.RefreshMessages(context.Background())

	got := sortedIDs(acct.Messages())
	if len(got) != 2 || got[0] != "m1" || got[1] != "m2" {
		t.Fatalf("stored set: got %v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}
	if len(deltas[0].Added) != 2 || len(deltas[0].Removed) != 0 {
		t.Fatalf("delta: %+v", deltas[0])
	}
}

func TestRefreshMessagesNoDeltaWhenUnchanged(t *testing.T) {
	fake := newFakeClient("m1", "m2")
	acct := testAccount(fake)

	acct.RefreshMessages(context.Background())

	var fired int
	acct.OnDelta(func(gmail.Delta) { fired++ })
	acct.RefreshMessages(context.Background())

	if fired != 0 {
		t.Fatalf("expected no delta for an unchanged set, got %d", fired)
	}
	if got := sortedIDs(acct.Messages()); len(got) != 2 {
		t.Fatalf("stored set: got %v", got)
	}
}

func TestRefreshMessagesDropsFailedFetches(t *testing.T) {
	fake := newFakeClient("m1", "m2", "m3")
	fake.fetchErr["m3"] = &gmail.ConnectionError{Err: errors.New("timeout")}
	acct := testAccount(fake)

	acct.RefreshMessages(context.Background())

	got := sortedIDs(acct.Messages())
	if len(got) != 2 || got[0] != "m1" || got[1] != "m2" {
		t.Fatalf("expected partial result {m1,m2}, got %v", got)
	}
}

func TestRefreshMessagesRemovals(t *testing.T) {
	fake := newFakeClient("m1", "m2")
	acct := testAccount(fake)
	acct.RefreshMessages(context.Background())

	var mu sync.Mutex
	var deltas []gmail.Delta
	acct.OnDelta(func(d gmail.Delta) {
		mu.Lock()
		deltas = append(deltas, d)
		mu.Unlock()
	})

	fake.setIDs("m2", "m4")
	acct.RefreshMessages(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}
	d := deltas[0]
	if len(d.Removed) != 1 || d.Removed[0].ID != "m1" {
		t.Fatalf("removed: %+v", d.Removed)
	}
	if len(d.Added) != 1 || d.Added[0].ID != "m4" {
		t.Fatalf("added: %+v", d.Added)
	}
}

func TestRefreshMessagesListFailureLeavesSetAlone(t *testing.T) {
	fake := newFakeClient("m1")
	acct := testAccount(fake)
	acct.RefreshMessages(context.Background())

	fake.mu.Lock()
	fake.listErr = &gmail.APIError{Code: "500", Description: "backend error"}
	fake.mu.Unlock()

	var fired int
	acct.OnDelta(func(gmail.Delta) { fired++ })
	acct.RefreshMessages(context.Background())

	if fired != 0 {
		t.Fatalf("a failed listing must not emit a delta")
	}
	if got := sortedIDs(acct.Messages()); len(got) != 1 || got[0] != "m1" {
		t.Fatalf("stored set should be untouched, got %v", got)
	}
}

func TestRefreshMessagesHonorsSnippetSetting(t *testing.T) {
	fake := newFakeClient("m1")
	acct := testAccount(fake)
	settings := acct.Settings()
	settings.FetchSnippets = false
	acct.SetSettings(settings)

	acct.RefreshMessages(context.Background())

	m := acct.Messages()["m1"]
	if m.Snippet != "" {
		t.Fatalf("snippet should be blank when disabled, got %q", m.Snippet)
	}
}

func TestFetchRawMessage(t *testing.T) {
	fake := newFakeClient("m1")
	fake.raw["m1"] = []byte("From: sender@example.com\r\n\r\nbody")
	acct := testAccount(fake)

	data, err := acct.FetchRawMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected raw bytes")
	}

	settings := acct.Settings()
	settings.FetchRaw = false
	acct.SetSettings(settings)
	_, err = acct.FetchRawMessage(context.Background(), "m1")
	var oerr *gmail.OperationError
	if !errors.As(err, &oerr) {
		t.Fatalf("expected OperationError when disabled, got %v", err)
	}
}

func TestCheckQuery(t *testing.T) {
	fake := newFakeClient("m1", "m2")
	acct := testAccount(fake)

	count, err := acct.CheckQuery(context.Background(), "from:boss@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("count: got %d", count)
	}
	if q := fake.listQueries[len(fake.listQueries)-1]; q != "from:boss@example.com" {
		t.Fatalf("query: got %q", q)
	}

	if _, err := acct.CheckQuery(context.Background(), "   "); err == nil {
		t.Fatalf("expected an error for an empty query")
	}
}

func TestAccountEqualityByEmail(t *testing.T) {
	a := New(nil, newFakeClient(), nil, slogDiscard(), Properties{Email: "same@example.com", DisplayName: "A"}, DefaultSettings())
	b := New(nil, newFakeClient(), nil, slogDiscard(), Properties{Email: "same@example.com", DisplayName: "B"}, DefaultSettings())
	c := New(nil, newFakeClient(), nil, slogDiscard(), Properties{Email: "other@example.com", DisplayName: "A"}, DefaultSettings())

	if !a.Equal(a) {
		t.Fatalf("equality must be reflexive")
	}
	if !a.Equal(b) || !b.Equal(a) {
		t.Fatalf("accounts with the same email must be equal regardless of display name")
	}
	if a.Equal(c) {
		t.Fatalf("accounts with different emails must not be equal")
	}
	if a.Equal(nil) {
		t.Fatalf("nil is never equal")
	}
}

func TestMessageIDListScenario(t *testing.T) {
	// A provider response with no message list at all yields zero IDs, not
	// an error; the fake models that by returning an empty slice.
	fake := newFakeClient()
	acct := testAccount(fake)
	ids, err := acct.FetchMessageIDs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no ids, got %v", ids)
	}
}
