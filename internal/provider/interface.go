package provider

import (
	"context"
	"time"
)

// DefaultMaxResults bounds how many emails are fetched per address when
// the caller does not say otherwise.
const DefaultMaxResults = 100

// RawEmail is one message as returned by the upstream mailbox gateway,
// before normalization into a conversation thread.
type RawEmail struct {
	// ID is the provider's message id.
	ID string `json:"id"`

	// ThreadID groups messages into a conversation. Falls back to the
	// message id upstream when the provider has no threading.
	ThreadID string `json:"thread_id"`

	Subject string `json:"subject"`

	// From and To are raw header values, possibly "Name <addr>".
	From string `json:"from"`
	To   string `json:"to"`

	// Timestamp is unix seconds; zero when the date header was
	// unparseable.
	Timestamp int64 `json:"timestamp"`

	Body    string `json:"body"`
	Snippet string `json:"snippet"`
}

// Time converts the unix timestamp.
func (e RawEmail) Time() time.Time {
	return time.Unix(e.Timestamp, 0).UTC()
}

// Client fetches raw mailbox data for an address.
type Client interface {
	// FetchEmails returns emails sent to or from the address, capped
	// at maxResults.
	FetchEmails(ctx context.Context, address string,
		maxResults int) ([]RawEmail, error)
}
