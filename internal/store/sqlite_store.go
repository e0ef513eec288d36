package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/draftsmith/internal/db"
	"github.com/roasbeef/draftsmith/internal/intent"
)

// sessionQueries is the per-transaction query surface used by the
// executor. Every method runs inside the transaction it wraps.
type sessionQueries struct {
	tx *sql.Tx
}

// SQLiteStore implements SessionStore on a migrated SQLite database. All
// writes run through the retrying transaction executor so transient
// serialization errors are absorbed here rather than surfaced to callers.
type SQLiteStore struct {
	db  *sql.DB
	txs *db.TransactionExecutor[*sessionQueries]
	log *slog.Logger

	// now is swappable for timestamp tests.
	now func() time.Time

	// newID generates session ids; swappable for tests.
	newID func() string
}

// NewSQLiteStore wraps an open database connection.
func NewSQLiteStore(database *sql.DB, log *slog.Logger) *SQLiteStore {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "store")

	executor := db.NewTransactionExecutor(
		db.NewBaseDB(database),
		func(tx *sql.Tx) *sessionQueries {
			return &sessionQueries{tx: tx}
		},
		log,
	)

	return &SQLiteStore{
		db:    database,
		txs:   executor,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sessionColumns is the stable select list shared by every session read.
const sessionColumns = `session_id, created_at, email_address,
	thread_subject, intent, subject, email_body, tone,
	selected_email_index, email_goal, thread_email_count,
	last_modified, is_new_email`

// scanSession reads one session row.
func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		sess          Session
		createdAt     int64
		lastModified  int64
		intentLabel   string
		selectedIndex sql.NullInt64
		emailGoal     sql.NullString
	)

	err := row.Scan(
		&sess.SessionID, &createdAt, &sess.EmailAddress,
		&sess.ThreadSubject, &intentLabel, &sess.Subject,
		&sess.EmailBody, &sess.Tone, &selectedIndex, &emailGoal,
		&sess.ThreadEmailCount, &lastModified, &sess.IsNewEmail,
	)
	if err != nil {
		return Session{}, err
	}

	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.LastModified = time.Unix(lastModified, 0).UTC()

	// A label written by an older or newer build still scans; it just
	// degrades to the unknown intent.
	sess.Intent, _ = intent.Parse(intentLabel)

	if selectedIndex.Valid {
		sess.SelectedEmailIndex = fn.Some(selectedIndex.Int64)
	}
	if emailGoal.Valid {
		sess.EmailGoal = fn.Some(emailGoal.String)
	}

	return sess, nil
}

// saveIDAttempts bounds how many fresh ids SaveGeneration tries when an
// insert hits a session_id collision.
const saveIDAttempts = 3

// SaveGeneration inserts the session and bumps the singleton counter in
// one transaction. A session_id collision gets a fresh id rather than
// surfacing the constraint violation.
func (s *SQLiteStore) SaveGeneration(ctx context.Context,
	params SaveParams) (Session, error) {

	now := s.now().Unix()

	var (
		selectedIndex sql.NullInt64
		emailGoal     sql.NullString
	)
	params.SelectedEmailIndex.WhenSome(func(idx int64) {
		selectedIndex = sql.NullInt64{Int64: idx, Valid: true}
	})
	params.EmailGoal.WhenSome(func(goal string) {
		emailGoal = sql.NullString{String: goal, Valid: true}
	})

	var (
		sessionID string
		err       error
	)
	for attempt := 0; attempt < saveIDAttempts; attempt++ {
		sessionID = s.newID()

		err = s.txs.ExecTx(
			ctx, db.WriteTxOption(),
			s.insertSession(ctx, sessionID, now, params,
				selectedIndex, emailGoal),
		)
		if !db.IsUniqueConstraintError(err) {
			break
		}

		s.log.WarnContext(ctx, "Session id collision, retrying "+
			"with a fresh id", "session_id", sessionID)
	}
	if err != nil {
		return Session{}, err
	}

	s.log.InfoContext(ctx, "Saved generation session",
		"session_id", sessionID,
		"email_address", params.EmailAddress,
		"intent", params.Intent,
	)

	return s.GetSession(ctx, sessionID)
}

// insertSession builds the transaction body that inserts one session row
// and bumps the singleton generation counter.
func (s *SQLiteStore) insertSession(ctx context.Context, sessionID string,
	now int64, params SaveParams, selectedIndex sql.NullInt64,
	emailGoal sql.NullString) func(q *sessionQueries) error {

	return func(q *sessionQueries) error {
		_, err := q.tx.ExecContext(ctx, `
			INSERT INTO sessions (
				session_id, created_at, email_address,
				thread_subject, intent, subject,
				email_body, tone,
				selected_email_index, email_goal,
				thread_email_count, last_modified,
				is_new_email
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, now, params.EmailAddress,
			params.ThreadSubject, params.Intent.String(),
			params.Subject, params.EmailBody, params.Tone,
			selectedIndex, emailGoal,
			params.ThreadEmailCount, now,
			params.IsNewEmail,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}

		_, err = q.tx.ExecContext(ctx, `
			UPDATE statistics
			SET total_generations = total_generations + 1
			WHERE id = 1`,
		)
		if err != nil {
			return fmt.Errorf("failed to bump generation "+
				"counter: %w", err)
		}

		return nil
	}
}

// GetSession retrieves one session by id.
func (s *SQLiteStore) GetSession(ctx context.Context,
	sessionID string) (Session, error) {

	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions "+
			"WHERE session_id = ?",
		sessionID,
	)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	return sess, nil
}

// ListSessions returns sessions newest first, optionally filtered by
// address and capped.
func (s *SQLiteStore) ListSessions(ctx context.Context,
	filter ListFilter) ([]Session, error) {

	query := "SELECT " + sessionColumns + " FROM sessions"
	var args []any

	filter.EmailAddress.WhenSome(func(addr string) {
		query += " WHERE email_address = ?"
		args = append(args, addr)
	})

	query += " ORDER BY created_at DESC, session_id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w",
				err)
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

// UpdateSession applies the set fields of params and bumps
// last_modified, returning the updated row.
func (s *SQLiteStore) UpdateSession(ctx context.Context, sessionID string,
	params UpdateParams) (Session, error) {

	setClauses := []string{"last_modified = ?"}
	args := []any{s.now().Unix()}

	params.Subject.WhenSome(func(v string) {
		setClauses = append(setClauses, "subject = ?")
		args = append(args, v)
	})
	params.EmailBody.WhenSome(func(v string) {
		setClauses = append(setClauses, "email_body = ?")
		args = append(args, v)
	})
	params.Tone.WhenSome(func(v string) {
		setClauses = append(setClauses, "tone = ?")
		args = append(args, v)
	})
	params.EmailGoal.WhenSome(func(v string) {
		setClauses = append(setClauses, "email_goal = ?")
		args = append(args, v)
	})
	params.Intent.WhenSome(func(v intent.Intent) {
		setClauses = append(setClauses, "intent = ?")
		args = append(args, v.String())
	})

	args = append(args, sessionID)

	err := s.txs.ExecTx(
		ctx, db.WriteTxOption(), func(q *sessionQueries) error {
			res, err := q.tx.ExecContext(ctx,
				"UPDATE sessions SET "+
					strings.Join(setClauses, ", ")+
					" WHERE session_id = ?",
				args...,
			)
			if err != nil {
				return fmt.Errorf("failed to update "+
					"session: %w", err)
			}

			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return ErrSessionNotFound
			}

			return nil
		},
	)
	if err != nil {
		return Session{}, err
	}

	return s.GetSession(ctx, sessionID)
}

// DeleteSession removes one session and decrements the generation
// counter, flooring at zero.
func (s *SQLiteStore) DeleteSession(ctx context.Context,
	sessionID string) error {

	return s.txs.ExecTx(
		ctx, db.WriteTxOption(), func(q *sessionQueries) error {
			res, err := q.tx.ExecContext(ctx,
				"DELETE FROM sessions WHERE session_id = ?",
				sessionID,
			)
			if err != nil {
				return fmt.Errorf("failed to delete "+
					"session: %w", err)
			}

			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return ErrSessionNotFound
			}

			_, err = q.tx.ExecContext(ctx, `
				UPDATE statistics
				SET total_generations =
					MAX(total_generations - 1, 0)
				WHERE id = 1`,
			)
			return err
		},
	)
}

// ClearSessions deletes every session and resets the counter.
func (s *SQLiteStore) ClearSessions(ctx context.Context) (int64, error) {
	var deleted int64

	err := s.txs.ExecTx(
		ctx, db.WriteTxOption(), func(q *sessionQueries) error {
			res, err := q.tx.ExecContext(
				ctx, "DELETE FROM sessions",
			)
			if err != nil {
				return fmt.Errorf("failed to clear "+
					"sessions: %w", err)
			}

			deleted, err = res.RowsAffected()
			if err != nil {
				return err
			}

			_, err = q.tx.ExecContext(ctx, `
				UPDATE statistics
				SET total_generations = 0
				WHERE id = 1`,
			)
			return err
		},
	)
	if err != nil {
		return 0, err
	}

	s.log.InfoContext(ctx, "Cleared all sessions", "deleted", deleted)

	return deleted, nil
}

// Stats reads the counter and a snapshot of the current sessions.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		IntentBreakdown: make(map[string]int64),
	}

	err := s.txs.ExecTx(
		ctx, db.ReadTxOption(), func(q *sessionQueries) error {
			err := q.tx.QueryRowContext(ctx, `
				SELECT total_generations FROM statistics
				WHERE id = 1`,
			).Scan(&stats.TotalGenerations)
			if err != nil {
				return fmt.Errorf("failed to read "+
					"counter: %w", err)
			}

			err = q.tx.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM sessions",
			).Scan(&stats.CurrentSessions)
			if err != nil {
				return err
			}

			rows, err := q.tx.QueryContext(ctx, `
				SELECT intent, COUNT(*) FROM sessions
				GROUP BY intent`,
			)
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				var (
					label string
					count int64
				)
				if err := rows.Scan(&label, &count); err != nil {
					return err
				}
				stats.IntentBreakdown[label] = count
			}
			if err := rows.Err(); err != nil {
				return err
			}

			var newest sql.NullInt64
			err = q.tx.QueryRowContext(ctx,
				"SELECT MAX(created_at) FROM sessions",
			).Scan(&newest)
			if err != nil {
				return err
			}
			if newest.Valid {
				stats.LastGeneration = fn.Some(
					time.Unix(newest.Int64, 0).UTC(),
				)
			}

			return nil
		},
	)
	if err != nil {
		return Stats{}, err
	}

	return stats, nil
}

// A compile-time assertion that the sqlite store satisfies the interface.
var _ SessionStore = (*SQLiteStore)(nil)
