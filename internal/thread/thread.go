// Package thread models provider-fetched email conversations and normalizes
// them into the ordered, deduplicated form the rest of the pipeline expects.
package thread

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Message is a single email within a conversation thread. Messages are
// immutable once constructed; ordering key is (Timestamp, Seq) where Seq is
// the provider-assigned sequence id used to break timestamp ties.
type Message struct {
	// ID is the provider-assigned message id, unique within a thread.
	ID string

	// Seq is the provider-assigned sequence id, used as the tie-breaker
	// when two messages carry the same timestamp.
	Seq int64

	// Sender is the From header value, possibly in "Name <addr>" form.
	Sender string

	// Recipient is the To header value.
	Recipient string

	// Timestamp is when the message was sent.
	Timestamp time.Time

	// Body is the plain-text message body.
	Body string

	// FromUser is true when the message was sent by the account owner
	// rather than the counterparty.
	FromUser bool
}

// Thread is an ordered conversation of messages sharing a provider thread id.
// Invariant: Messages is sorted ascending by (Timestamp, Seq) and contains no
// duplicate message ids.
type Thread struct {
	ThreadID string
	Subject  string
	Messages []Message
}

// Last returns the most recent message in the thread. The normalizer
// guarantees at least one message, so callers may use this unconditionally on
// normalized threads.
func (t *Thread) Last() Message {
	return t.Messages[len(t.Messages)-1]
}

// Participants returns the sorted set of unique email addresses that appear
// as sender or recipient anywhere in the thread.
func (t *Thread) Participants() []string {
	seen := make(map[string]struct{})
	for _, m := range t.Messages {
		if addr := ExtractAddress(m.Sender); addr != "" {
			seen[addr] = struct{}{}
		}
		for _, to := range strings.Split(m.Recipient, ",") {
			if addr := ExtractAddress(to); addr != "" {
				seen[addr] = struct{}{}
			}
		}
	}

	participants := make([]string, 0, len(seen))
	for addr := range seen {
		participants = append(participants, addr)
	}
	sort.Strings(participants)

	return participants
}

// MalformedThreadError is returned when a raw conversation cannot be
// normalized into a usable thread. It is a client error and is never retried.
type MalformedThreadError struct {
	ThreadID string
	Reason   string
}

// Error returns the error message.
func (e *MalformedThreadError) Error() string {
	return fmt.Sprintf("malformed thread %q: %s", e.ThreadID, e.Reason)
}

// Normalize converts a raw provider-fetched conversation into a Thread
// satisfying the ordering and uniqueness invariants. Duplicate message ids
// are collapsed with last-seen-wins semantics, except that a duplicate with
// an empty body never supersedes one whose body is populated. The transform
// is pure.
func Normalize(threadID, subject string, raw []Message) (Thread, error) {
	if threadID == "" {
		return Thread{}, &MalformedThreadError{
			Reason: "missing thread id",
		}
	}
	if strings.TrimSpace(subject) == "" {
		return Thread{}, &MalformedThreadError{
			ThreadID: threadID,
			Reason:   "missing subject",
		}
	}

	// Deduplicate by message id. Re-fetching a thread can surface the
	// same message twice, sometimes with the body elided.
	byID := make(map[string]Message)
	order := make([]string, 0, len(raw))
	for _, m := range raw {
		if m.ID == "" {
			continue
		}

		prev, ok := byID[m.ID]
		if !ok {
			byID[m.ID] = m
			order = append(order, m.ID)
			continue
		}

		if strings.TrimSpace(m.Body) == "" &&
			strings.TrimSpace(prev.Body) != "" {

			continue
		}
		byID[m.ID] = m
	}

	if len(byID) == 0 {
		return Thread{}, &MalformedThreadError{
			ThreadID: threadID,
			Reason:   "no usable messages after normalization",
		}
	}

	messages := make([]Message, 0, len(byID))
	for _, id := range order {
		messages = append(messages, byID[id])
	}

	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Timestamp.Equal(messages[j].Timestamp) {
			return messages[i].Seq < messages[j].Seq
		}
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})

	return Thread{
		ThreadID: threadID,
		Subject:  CleanSubject(subject),
		Messages: messages,
	}, nil
}

// replyPrefixes are the subject prefixes stripped by CleanSubject, checked
// case-insensitively.
var replyPrefixes = []string{"re:", "fwd:", "fw:"}

// CleanSubject strips any number of leading Re:/Fwd:/Fw: prefixes from a
// subject line. If stripping would leave nothing, the original subject is
// returned unchanged.
func CleanSubject(subject string) string {
	cleaned := strings.TrimSpace(subject)

	for {
		stripped := false
		lower := strings.ToLower(cleaned)
		for _, prefix := range replyPrefixes {
			if strings.HasPrefix(lower, prefix) {
				cleaned = strings.TrimSpace(
					cleaned[len(prefix):],
				)
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}

	if cleaned == "" {
		return subject
	}

	return cleaned
}

// addrPattern matches the address portion of a "Name <addr>" header value.
var addrPattern = regexp.MustCompile(`<(.+?)>`)

// ExtractAddress pulls the bare email address out of a header value such as
// "Ada Lovelace <ada@example.com>". A value without angle brackets is
// returned as-is when it looks like an address, otherwise the empty string.
func ExtractAddress(headerValue string) string {
	trimmed := strings.TrimSpace(headerValue)

	if match := addrPattern.FindStringSubmatch(trimmed); match != nil {
		return match[1]
	}

	if strings.Contains(trimmed, "@") {
		return trimmed
	}

	return ""
}
