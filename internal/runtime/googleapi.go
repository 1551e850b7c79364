// internal/runtime/googleapi.go — adapts the Google API services to our small interface
package runtime

import (
	"context"
	"encoding/base64"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	peoplev1 "google.golang.org/api/people/v1"

	gc "github.com/jashephe/gmail-notifier/internal/gmail"
)

const userID = "me"

type googleClient struct {
	mail   *gmailv1.Service
	people *peoplev1.Service
}

// NewGoogleAPIClient wraps the Gmail and People services behind gmail.Client.
func NewGoogleAPIClient(mail *gmailv1.Service, people *peoplev1.Service) gc.Client {
	return &googleClient{mail: mail, people: people}
}

func (g *googleClient) EmailAddress(ctx context.Context) (string, error) {
	profile, err := g.mail.Users.GetProfile(userID).Context(ctx).Do()
	if err != nil {
		return "", gc.ClassifyAPIError(err)
	}
	if profile.EmailAddress == "" {
		return "", &gc.ResponseError{Reason: "profile missing email address"}
	}
	return profile.EmailAddress, nil
}

func (g *googleClient) Person(ctx context.Context) (string, string, error) {
	person, err := g.people.People.Get("people/" + userID).
		PersonFields("names,photos").Context(ctx).Do()
	if err != nil {
		return "", "", gc.ClassifyAPIError(err)
	}
	if len(person.Names) == 0 || person.Names[0].DisplayName == "" {
		return "", "", &gc.ResponseError{Reason: "person record missing display name"}
	}
	var avatarURL string
	if len(person.Photos) > 0 {
		avatarURL = person.Photos[0].Url
	}
	return person.Names[0].DisplayName, avatarURL, nil
}

func (g *googleClient) ListMessageIDs(ctx context.Context, query string, maxResults int64) ([]gc.MessageID, error) {
	res, err := g.mail.Users.Messages.List(userID).
		Q(query).MaxResults(maxResults).Context(ctx).Do()
	if err != nil {
		return nil, gc.ClassifyAPIError(err)
	}
	// An absent message list means zero results, not an error.
	ids := make([]gc.MessageID, 0, len(res.Messages))
	for _, m := range res.Messages {
		if m.Id != "" {
			ids = append(ids, gc.MessageID(m.Id))
		}
	}
	return ids, nil
}

func (g *googleClient) GetMessage(ctx context.Context, id gc.MessageID) (gc.Message, error) {
	msg, err := g.mail.Users.Messages.Get(userID, string(id)).
		Format("full").Context(ctx).Do()
	if err != nil {
		return gc.Message{}, gc.ClassifyAPIError(err)
	}
	return gc.ParseMessage(msg)
}

func (g *googleClient) GetRawMessage(ctx context.Context, id gc.MessageID) ([]byte, error) {
	msg, err := g.mail.Users.Messages.Get(userID, string(id)).
		Format("raw").Context(ctx).Do()
	if err != nil {
		return nil, gc.ClassifyAPIError(err)
	}
	if msg.Raw == "" {
		return nil, &gc.ResponseError{Reason: "message payload missing raw body"}
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(msg.Raw, "="))
	if err != nil {
		return nil, &gc.ResponseError{Reason: "raw body is not valid base64url"}
	}
	return raw, nil
}

// NewGmailClient builds the production client from an OAuth2 token source,
// typically an *auth.Authorizer.
func NewGmailClient(ctx context.Context, ts TokenSource) (gc.Client, error) {
	mail, err := gmailv1.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, err
	}
	people, err := peoplev1.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, err
	}
	return NewGoogleAPIClient(mail, people), nil
}
