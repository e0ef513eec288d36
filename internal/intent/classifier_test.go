package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roasbeef/draftsmith/internal/llm"
	"github.com/roasbeef/draftsmith/internal/thread"
	"github.com/stretchr/testify/require"
)

// fakeLLM returns a canned response or error and records the last
// request it saw.
type fakeLLM struct {
	resp    string
	err     error
	lastReq llm.Request
}

func (f *fakeLLM) Complete(_ context.Context,
	req llm.Request) (string, error) {

	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.resp, nil
}

func testThread(n int, newest time.Time) thread.Thread {
	msgs := make([]thread.Message, n)
	for i := range msgs {
		msgs[i] = thread.Message{
			ID:        string(rune('a' + i)),
			Seq:       int64(i),
			Sender:    "peer@example.com",
			Recipient: "me@example.com",
			Timestamp: newest.Add(
				-time.Duration(n-1-i) * time.Hour,
			),
			Body: "message body",
		}
	}
	return thread.Thread{
		ThreadID: "t1",
		Subject:  "Quarterly planning",
		Messages: msgs,
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	for _, want := range allIntents {
		got, err := Parse(want.String())
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	got, err := Parse("  Follow_Up ")
	require.NoError(t, err)
	require.Equal(t, IntentFollowUp, got)

	got, err = Parse("scheduling")
	require.Error(t, err)
	require.Equal(t, IntentUnknown, got)
}

// TestClassifyModelPath checks the happy path plus salvage of verbose
// answers and the out-of-enum mapping.
func TestClassifyModelPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp string
		want Intent
	}{
		{"exact label", "reminder", IntentReminder},
		{"padded label", "  Reply\n", IntentReply},
		{"verbose answer",
			"The best intent here is follow_up because the " +
				"sender is waiting.",
			IntentFollowUp},
		{"out of enum", "scheduling", IntentUnknown},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fake := &fakeLLM{resp: tc.resp}
			c := NewClassifier(DefaultConfig(), fake, nil)

			got := c.Classify(context.Background(),
				testThread(3, time.Now()), "")
			require.Equal(t, tc.want, got)
		})
	}
}

// TestClassifyPromptWindow verifies the trailing window bound and goal
// inclusion.
func TestClassifyPromptWindow(t *testing.T) {
	t.Parallel()

	fake := &fakeLLM{resp: "reply"}
	c := NewClassifier(Config{MaxMessages: 2}, fake, nil)

	c.Classify(context.Background(), testThread(5, time.Now()),
		"ask about the deadline")

	require.Contains(t, fake.lastReq.Prompt, "Email #1:")
	require.Contains(t, fake.lastReq.Prompt, "Email #2:")
	require.NotContains(t, fake.lastReq.Prompt, "Email #3:")
	require.Contains(t, fake.lastReq.Prompt,
		"User's Goal: ask about the deadline")
	require.Contains(t, fake.lastReq.System, "ONLY ONE WORD")
}

// TestClassifyFallback exercises the heuristic when the model call
// fails, and the heuristic branches directly.
func TestClassifyFallback(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	newClassifier := func() *Classifier {
		c := NewClassifier(
			DefaultConfig(),
			&fakeLLM{err: errors.New("connection refused")},
			nil,
		)
		c.now = func() time.Time { return now }
		return c
	}

	t.Run("stale thread is follow_up", func(t *testing.T) {
		t.Parallel()

		c := newClassifier()
		stale := testThread(3, now.Add(-8*24*time.Hour))
		require.Equal(t, IntentFollowUp,
			c.Classify(context.Background(), stale, ""))
	})

	t.Run("single fresh message without goal is inquiry",
		func(t *testing.T) {
			t.Parallel()

			c := newClassifier()
			fresh := testThread(1, now.Add(-time.Hour))
			require.Equal(t, IntentInquiry,
				c.Classify(context.Background(), fresh, ""))
		})

	t.Run("single fresh message with goal is reply",
		func(t *testing.T) {
			t.Parallel()

			c := newClassifier()
			fresh := testThread(1, now.Add(-time.Hour))
			require.Equal(t, IntentReply,
				c.Classify(context.Background(), fresh,
					"confirm the meeting"))
		})

	t.Run("fresh multi-message thread is reply", func(t *testing.T) {
		t.Parallel()

		c := newClassifier()
		fresh := testThread(4, now.Add(-2*time.Hour))
		require.Equal(t, IntentReply,
			c.Classify(context.Background(), fresh, ""))
	})

	t.Run("empty thread is unknown", func(t *testing.T) {
		t.Parallel()

		c := newClassifier()
		require.Equal(t, IntentUnknown,
			c.Heuristic(thread.Thread{}, ""))
	})
}
