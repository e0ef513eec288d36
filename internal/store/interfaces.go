package store

import (
	"context"
	"errors"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/draftsmith/internal/intent"
)

// ErrSessionNotFound is returned when a session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Session is one persisted draft generation. The id is generated once at
// save time and never reused.
type Session struct {
	SessionID string

	// CreatedAt is the generation time, immutable after save.
	CreatedAt time.Time

	EmailAddress  string
	ThreadSubject string
	Intent        intent.Intent
	Subject       string
	EmailBody     string
	Tone          string

	// SelectedEmailIndex is the focused message index within the
	// thread, when the caller selected one.
	SelectedEmailIndex fn.Option[int64]

	// EmailGoal is the caller's stated goal, when given.
	EmailGoal fn.Option[string]

	ThreadEmailCount int64

	// LastModified is bumped on every update.
	LastModified time.Time

	// IsNewEmail marks drafts written from scratch rather than from a
	// thread.
	IsNewEmail bool
}

// SaveParams carries the fields persisted at generation time.
type SaveParams struct {
	EmailAddress       string
	ThreadSubject      string
	Intent             intent.Intent
	Subject            string
	EmailBody          string
	Tone               string
	SelectedEmailIndex fn.Option[int64]
	EmailGoal          fn.Option[string]
	ThreadEmailCount   int64
	IsNewEmail         bool
}

// UpdateParams is a partial update: only set fields are written, and any
// update bumps last_modified.
type UpdateParams struct {
	Subject   fn.Option[string]
	EmailBody fn.Option[string]
	Tone      fn.Option[string]
	EmailGoal fn.Option[string]
	Intent    fn.Option[intent.Intent]
}

// ListFilter narrows and bounds a session listing. Results are always
// ordered newest first.
type ListFilter struct {
	// EmailAddress restricts results to one address when set.
	EmailAddress fn.Option[string]

	// Limit caps the number of rows; non-positive means no cap.
	Limit int
}

// Stats is a point-in-time snapshot of the store.
type Stats struct {
	// TotalGenerations counts every successful save ever made, less
	// deletions.
	TotalGenerations int64

	// CurrentSessions counts rows currently present.
	CurrentSessions int64

	// IntentBreakdown counts current sessions per intent label.
	IntentBreakdown map[string]int64

	// LastGeneration is the creation time of the newest session.
	LastGeneration fn.Option[time.Time]
}

// SessionStore persists draft generations.
type SessionStore interface {
	// SaveGeneration inserts a session and bumps the generation
	// counter in one atomic transaction.
	SaveGeneration(ctx context.Context, params SaveParams) (Session,
		error)

	// GetSession retrieves a session by id.
	GetSession(ctx context.Context, sessionID string) (Session, error)

	// ListSessions returns sessions matching the filter, newest first.
	ListSessions(ctx context.Context, filter ListFilter) ([]Session,
		error)

	// UpdateSession applies a partial update and returns the new row.
	UpdateSession(ctx context.Context, sessionID string,
		params UpdateParams) (Session, error)

	// DeleteSession removes one session and decrements the counter.
	DeleteSession(ctx context.Context, sessionID string) error

	// ClearSessions removes all sessions, resets the counter, and
	// returns how many rows were deleted.
	ClearSessions(ctx context.Context) (int64, error)

	// Stats returns the current statistics snapshot.
	Stats(ctx context.Context) (Stats, error)
}
