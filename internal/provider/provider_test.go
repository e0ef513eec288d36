package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchEmails(t *testing.T) {
	t.Parallel()

	sample := []RawEmail{
		{
			ID:        "m1",
			ThreadID:  "t1",
			Subject:   "Re: budget",
			From:      "Alice <alice@example.com>",
			To:        "bob@example.com",
			Timestamp: 1700000000,
			Body:      "numbers attached",
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/emails/alice@example.com",
				r.URL.Path)
			require.Equal(t, "25",
				r.URL.Query().Get("max_results"))
			require.NoError(
				t, json.NewEncoder(w).Encode(sample),
			)
		},
	))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 0, nil)
	emails, err := client.FetchEmails(
		context.Background(), "alice@example.com", 25,
	)
	require.NoError(t, err)
	require.Equal(t, sample, emails)
	require.Equal(t,
		time.Unix(1700000000, 0).UTC(), emails[0].Time())
}

func TestFetchEmailsUnavailable(t *testing.T) {
	t.Parallel()

	t.Run("bad status", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream down",
					http.StatusBadGateway)
			},
		))
		defer srv.Close()

		client := NewHTTPClient(srv.URL, 0, nil)
		_, err := client.FetchEmails(
			context.Background(), "x@example.com", 0,
		)
		require.True(t, IsUnavailable(err))
		require.ErrorContains(t, err, "502")
	})

	t.Run("connection refused", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(nil)
		srv.Close()

		client := NewHTTPClient(srv.URL, time.Second, nil)
		_, err := client.FetchEmails(
			context.Background(), "x@example.com", 0,
		)
		require.True(t, IsUnavailable(err))
	})
}

func TestGroupThreads(t *testing.T) {
	t.Parallel()

	emails := []RawEmail{
		{
			ID: "a1", ThreadID: "tA", Subject: "Re: standup",
			From: "Carol <carol@example.com>",
			To:   "me@example.com",
			Timestamp: 2000, Body: "see you then",
		},
		{
			ID: "a2", ThreadID: "tA", Subject: "standup",
			From: "me@example.com", To: "carol@example.com",
			Timestamp: 1000, Body: "can we meet?",
		},
		{
			ID: "b1", ThreadID: "tB", Subject: "invoice",
			From: "carol@example.com", To: "me@example.com",
			Timestamp: 5000, Body: "invoice attached",
		},
	}

	threads := GroupThreads("carol@example.com", emails, nil)
	require.Len(t, threads, 2)

	// Newest activity first.
	require.Equal(t, "tB", threads[0].ThreadID)
	require.Equal(t, "tA", threads[1].ThreadID)

	// Subject prefix stripped, messages time ordered.
	require.Equal(t, "standup", threads[1].Subject)
	require.Equal(t, "a2", threads[1].Messages[0].ID)
	require.Equal(t, "a1", threads[1].Messages[1].ID)

	// FromUser marks messages not sent by the contact.
	require.True(t, threads[1].Messages[0].FromUser)
	require.False(t, threads[1].Messages[1].FromUser)
}

func TestGroupThreadsSkipsMalformed(t *testing.T) {
	t.Parallel()

	emails := []RawEmail{
		{
			ID: "ok1", ThreadID: "good", Subject: "hello",
			From: "a@example.com", To: "b@example.com",
			Timestamp: 100, Body: "hi",
		},
		// Blank subject makes this group malformed.
		{
			ID: "bad1", ThreadID: "bad", Subject: "   ",
			From: "a@example.com", To: "b@example.com",
			Timestamp: 200, Body: "??",
		},
	}

	threads := GroupThreads("a@example.com", emails, nil)
	require.Len(t, threads, 1)
	require.Equal(t, "good", threads[0].ThreadID)
}

func TestFindThread(t *testing.T) {
	t.Parallel()

	emails := []RawEmail{{
		ID: "m", ThreadID: "t9", Subject: "s",
		From: "a@x.com", To: "b@x.com", Timestamp: 1, Body: "b",
	}}
	threads := GroupThreads("a@x.com", emails, nil)

	got, ok := FindThread(threads, "t9")
	require.True(t, ok)
	require.Equal(t, "t9", got.ThreadID)

	_, ok = FindThread(threads, "missing")
	require.False(t, ok)
}
