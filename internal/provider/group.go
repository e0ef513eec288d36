package provider

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/roasbeef/draftsmith/internal/thread"
)

// GroupThreads folds a flat fetch result into normalized conversation
// threads, newest activity first. Groups that fail normalization are
// skipped with a warning rather than failing the whole listing: a single
// damaged conversation should not hide the rest of the mailbox.
func GroupThreads(address string, emails []RawEmail,
	log *slog.Logger) []thread.Thread {

	if log == nil {
		log = slog.Default()
	}

	grouped := make(map[string][]RawEmail)
	var order []string
	for _, email := range emails {
		key := email.ThreadID
		if key == "" {
			key = email.ID
		}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], email)
	}

	contact := strings.ToLower(thread.ExtractAddress(address))

	threads := make([]thread.Thread, 0, len(order))
	for _, key := range order {
		group := grouped[key]

		msgs := make([]thread.Message, len(group))
		for i, email := range group {
			sender := thread.ExtractAddress(email.From)
			msgs[i] = thread.Message{
				ID:        email.ID,
				Seq:       int64(i),
				Sender:    sender,
				Recipient: thread.ExtractAddress(email.To),
				Timestamp: email.Time(),
				Body:      email.Body,
				FromUser: strings.ToLower(sender) !=
					contact,
			}
		}

		subject := thread.CleanSubject(group[0].Subject)
		t, err := thread.Normalize(key, subject, msgs)
		if err != nil {
			log.Warn("Skipping malformed thread",
				"thread_id", key, "err", err)
			continue
		}

		threads = append(threads, t)
	}

	// Most recent activity first.
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].Last().Timestamp.After(
			threads[j].Last().Timestamp,
		)
	})

	return threads
}

// FindThread returns the thread with the given id, if present.
func FindThread(threads []thread.Thread, threadID string) (thread.Thread,
	bool) {

	for _, t := range threads {
		if t.ThreadID == threadID {
			return t, true
		}
	}
	return thread.Thread{}, false
}
