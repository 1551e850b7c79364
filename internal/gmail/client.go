package gmail

import "context"

// Client is the narrow provider surface required by the notifier core.
// The production implementation wraps the Google API services; tests use
// hand-rolled fakes.
type Client interface {
	// EmailAddress fetches the authorized user's Gmail profile address.
	EmailAddress(ctx context.Context) (string, error)
	// Person fetches the authorized user's display name and avatar URL.
	Person(ctx context.Context) (displayName, avatarURL string, err error)
	// ListMessageIDs lists message IDs matching the query, at most maxResults.
	ListMessageIDs(ctx context.Context, query string, maxResults int64) ([]MessageID, error)
	// GetMessage fetches one full message. AccountEmail is left blank for the
	// caller to fill in.
	GetMessage(ctx context.Context, id MessageID) (Message, error)
	// GetRawMessage fetches the RFC 2822 bytes of one message.
	GetRawMessage(ctx context.Context, id MessageID) ([]byte, error)
}
