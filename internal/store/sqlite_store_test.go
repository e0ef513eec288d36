package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/draftsmith/internal/db"
	"github.com/roasbeef/draftsmith/internal/intent"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// testStore opens a fresh migrated store under a temp dir.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath, slog.Default())
	require.NoError(t, err)

	store := NewSQLiteStore(database, slog.Default())
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

func sampleParams() SaveParams {
	return SaveParams{
		EmailAddress:     "alice@example.com",
		ThreadSubject:    "Quarterly review",
		Intent:           intent.IntentReply,
		Subject:          "Re: Quarterly review",
		EmailBody:        "Sounds good, see you Thursday.",
		Tone:             "professional",
		EmailGoal:        fn.Some("confirm the meeting"),
		ThreadEmailCount: 4,
	}
}

func TestSaveAndGet(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()

	saved, err := store.SaveGeneration(ctx, sampleParams())
	require.NoError(t, err)
	require.NotEmpty(t, saved.SessionID)
	require.False(t, saved.CreatedAt.IsZero())
	require.Equal(t, saved.CreatedAt, saved.LastModified)

	got, err := store.GetSession(ctx, saved.SessionID)
	require.NoError(t, err)
	require.Equal(t, saved, got)

	require.Equal(t, "alice@example.com", got.EmailAddress)
	require.Equal(t, intent.IntentReply, got.Intent)
	require.Equal(t, "confirm the meeting", got.EmailGoal.UnwrapOr(""))
	require.True(t, got.SelectedEmailIndex.IsNone())
	require.False(t, got.IsNewEmail)

	// The counter moved with the insert.
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.TotalGenerations)
	require.EqualValues(t, 1, stats.CurrentSessions)
}

// TestSaveSessionIDCollision pins the id source so the second save first
// produces a duplicate session_id and must retry with a fresh one.
func TestSaveSessionIDCollision(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()

	ids := []string{"dup-id", "dup-id", "fresh-id"}
	store.newID = func() string {
		next := ids[0]
		ids = ids[1:]
		return next
	}

	first, err := store.SaveGeneration(ctx, sampleParams())
	require.NoError(t, err)
	require.Equal(t, "dup-id", first.SessionID)

	second, err := store.SaveGeneration(ctx, sampleParams())
	require.NoError(t, err)
	require.Equal(t, "fresh-id", second.SessionID)
	require.Empty(t, ids)

	// Both rows landed and the counter reflects two saves, not three
	// attempts.
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.TotalGenerations)
	require.EqualValues(t, 2, stats.CurrentSessions)
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	store := testStore(t)

	_, err := store.GetSession(context.Background(), "nope")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessions(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()

	// Distinct created_at values so the ordering is observable.
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		instant := base.Add(time.Duration(i) * time.Minute)
		store.now = func() time.Time { return instant }

		params := sampleParams()
		if i == 1 {
			params.EmailAddress = "bob@example.com"
		}
		_, err := store.SaveGeneration(ctx, params)
		require.NoError(t, err)
	}

	all, err := store.ListSessions(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.True(t, all[0].CreatedAt.After(all[2].CreatedAt))

	alice, err := store.ListSessions(ctx, ListFilter{
		EmailAddress: fn.Some("alice@example.com"),
	})
	require.NoError(t, err)
	require.Len(t, alice, 2)

	capped, err := store.ListSessions(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, capped, 1)
	require.Equal(t, all[0].SessionID, capped[0].SessionID)
}

func TestUpdateSession(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()

	created := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return created }

	saved, err := store.SaveGeneration(ctx, sampleParams())
	require.NoError(t, err)

	later := created.Add(time.Hour)
	store.now = func() time.Time { return later }

	updated, err := store.UpdateSession(ctx, saved.SessionID,
		UpdateParams{
			Subject: fn.Some("Re: Quarterly review (updated)"),
			Intent:  fn.Some(intent.IntentFollowUp),
		},
	)
	require.NoError(t, err)

	// Set fields changed, unset fields kept, last_modified bumped.
	require.Equal(t, "Re: Quarterly review (updated)", updated.Subject)
	require.Equal(t, intent.IntentFollowUp, updated.Intent)
	require.Equal(t, saved.EmailBody, updated.EmailBody)
	require.Equal(t, saved.CreatedAt, updated.CreatedAt)
	require.Equal(t, later, updated.LastModified)

	// Even an empty update bumps last_modified.
	evenLater := later.Add(time.Hour)
	store.now = func() time.Time { return evenLater }

	touched, err := store.UpdateSession(
		ctx, saved.SessionID, UpdateParams{},
	)
	require.NoError(t, err)
	require.Equal(t, evenLater, touched.LastModified)

	_, err = store.UpdateSession(ctx, "missing", UpdateParams{
		Subject: fn.Some("x"),
	})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()

	saved, err := store.SaveGeneration(ctx, sampleParams())
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession(ctx, saved.SessionID))

	_, err = store.GetSession(ctx, saved.SessionID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	// Deleting decrements the counter.
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.TotalGenerations)

	require.ErrorIs(t, store.DeleteSession(ctx, saved.SessionID),
		ErrSessionNotFound)
}

func TestClearSessions(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.SaveGeneration(ctx, sampleParams())
		require.NoError(t, err)
	}

	deleted, err := store.ClearSessions(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, deleted)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.TotalGenerations)
	require.EqualValues(t, 0, stats.CurrentSessions)
	require.True(t, stats.LastGeneration.IsNone())
}

func TestStatsBreakdown(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	ctx := context.Background()

	intents := []intent.Intent{
		intent.IntentReply, intent.IntentReply,
		intent.IntentReminder,
	}
	for _, label := range intents {
		params := sampleParams()
		params.Intent = label
		_, err := store.SaveGeneration(ctx, params)
		require.NoError(t, err)
	}

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.TotalGenerations)
	require.EqualValues(t, 2, stats.IntentBreakdown["reply"])
	require.EqualValues(t, 1, stats.IntentBreakdown["reminder"])
	require.True(t, stats.LastGeneration.IsSome())
}

// TestCounterInvariant checks that across any interleaving of saves and
// deletes, the counter equals saves minus deletes and the session count
// matches the live set.
func TestCounterInvariant(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		var live []string
		var saves, deletes int64

		rt.Repeat(map[string]func(*rapid.T){
			"save": func(rt *rapid.T) {
				sess, err := store.SaveGeneration(
					ctx, sampleParams(),
				)
				require.NoError(rt, err)
				live = append(live, sess.SessionID)
				saves++
			},
			"delete": func(rt *rapid.T) {
				if len(live) == 0 {
					rt.Skip()
				}
				idx := rapid.IntRange(
					0, len(live)-1,
				).Draw(rt, "idx")

				err := store.DeleteSession(ctx, live[idx])
				require.NoError(rt, err)
				live = append(
					live[:idx], live[idx+1:]...,
				)
				deletes++
			},
			"": func(rt *rapid.T) {
				stats, err := store.Stats(ctx)
				require.NoError(rt, err)
				require.EqualValues(
					rt, saves-deletes,
					stats.TotalGenerations,
				)
				require.EqualValues(
					rt, len(live),
					stats.CurrentSessions,
				)
			},
		})

		// Reset between property runs.
		_, err := store.ClearSessions(ctx)
		require.NoError(rt, err)
	})
}
