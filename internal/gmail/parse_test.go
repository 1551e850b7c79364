package gmail

import (
	"errors"
	"testing"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"
)

func fullMessage() *gmailv1.Message {
	return &gmailv1.Message{
		Id:           "m1",
		ThreadId:     "t1",
		InternalDate: 1700000000000,
		Snippet:      "You&#39;re invited &amp; welcome",
		Payload: &gmailv1.MessagePart{
			Headers: []*gmailv1.MessagePartHeader{
				{Name: "Subject", Value: "Hello"},
				{Name: "From", Value: "Alice <alice@example.com>"},
				{Name: "To", Value: "bob@example.com"},
			},
		},
	}
}

func TestParseMessage(t *testing.T) {
	m, err := ParseMessage(fullMessage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != "m1" || m.ThreadID != "t1" {
		t.Fatalf("unexpected identity: %+v", m)
	}
	if m.Subject != "Hello" {
		t.Fatalf("subject: got %q", m.Subject)
	}
	if m.Sender != "Alice <alice@example.com>" {
		t.Fatalf("sender: got %q", m.Sender)
	}
	if want := time.UnixMilli(1700000000000); !m.Received.Equal(want) {
		t.Fatalf("received: got %v want %v", m.Received, want)
	}
	if m.Snippet != "You're invited & welcome" {
		t.Fatalf("snippet entities not unescaped: got %q", m.Snippet)
	}
}

func TestParseMessageMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*gmailv1.Message)
	}{
		{"nil-message", nil},
		{"missing-id", func(m *gmailv1.Message) { m.Id = "" }},
		{"missing-thread", func(m *gmailv1.Message) { m.ThreadId = "" }},
		{"missing-payload", func(m *gmailv1.Message) { m.Payload = nil }},
		{"missing-subject", func(m *gmailv1.Message) {
			m.Payload.Headers = m.Payload.Headers[1:]
		}},
		{"missing-from", func(m *gmailv1.Message) {
			m.Payload.Headers = []*gmailv1.MessagePartHeader{{Name: "Subject", Value: "Hello"}}
		}},
		{"missing-date", func(m *gmailv1.Message) { m.InternalDate = 0 }},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			var in *gmailv1.Message
			if tc.mutate != nil {
				in = fullMessage()
				tc.mutate(in)
			}
			_, err := ParseMessage(in)
			var rerr *ResponseError
			if !errors.As(err, &rerr) {
				t.Fatalf("expected ResponseError, got %v", err)
			}
		})
	}
}
