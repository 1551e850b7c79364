// internal/gmail/parse.go
package gmail

import (
	"html"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// ParseMessage converts a format=full API message into a Message. It fails
// with a ResponseError when any required field (id, thread id, Subject or
// From header, internal date) is absent.
func ParseMessage(m *gmailv1.Message) (Message, error) {
	if m == nil || m.Id == "" {
		return Message{}, &ResponseError{Reason: "message payload missing id"}
	}
	if m.ThreadId == "" {
		return Message{}, &ResponseError{Reason: "message payload missing thread id"}
	}
	if m.Payload == nil {
		return Message{}, &ResponseError{Reason: "message payload missing headers"}
	}

	var subject, sender string
	var haveSubject, haveSender bool
	for _, h := range m.Payload.Headers {
		switch h.Name {
		case "Subject":
			subject, haveSubject = h.Value, true
		case "From":
			sender, haveSender = h.Value, true
		}
	}
	if !haveSubject {
		return Message{}, &ResponseError{Reason: "message payload missing Subject header"}
	}
	if !haveSender {
		return Message{}, &ResponseError{Reason: "message payload missing From header"}
	}
	if m.InternalDate <= 0 {
		return Message{}, &ResponseError{Reason: "message payload missing internal date"}
	}

	return Message{
		ID:       MessageID(m.Id),
		ThreadID: m.ThreadId,
		Subject:  subject,
		Sender:   sender,
		Received: time.UnixMilli(m.InternalDate),
		Snippet:  html.UnescapeString(m.Snippet),
	}, nil
}
