package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/draftsmith/internal/intent"
)

// MockStore provides an in-memory implementation of SessionStore for
// testing. All data lives in a map protected by a mutex, and the
// generation counter follows the same semantics as the SQLite store.
type MockStore struct {
	mu sync.RWMutex

	sessions map[string]Session

	totalGenerations int64

	// insertion order, used to break created_at ties the way the
	// SQLite store's secondary ordering does.
	order []string

	// SaveErr, when set, fails the next SaveGeneration call. Used to
	// exercise persistence failure paths.
	SaveErr error

	// now is swappable for timestamp tests.
	now func() time.Time
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// SaveGeneration implements SessionStore.
func (m *MockStore) SaveGeneration(_ context.Context,
	params SaveParams) (Session, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return Session{}, m.SaveErr
	}

	now := m.now().UTC().Truncate(time.Second)
	sess := Session{
		SessionID:          uuid.NewString(),
		CreatedAt:          now,
		EmailAddress:       params.EmailAddress,
		ThreadSubject:      params.ThreadSubject,
		Intent:             params.Intent,
		Subject:            params.Subject,
		EmailBody:          params.EmailBody,
		Tone:               params.Tone,
		SelectedEmailIndex: params.SelectedEmailIndex,
		EmailGoal:          params.EmailGoal,
		ThreadEmailCount:   params.ThreadEmailCount,
		LastModified:       now,
		IsNewEmail:         params.IsNewEmail,
	}

	m.sessions[sess.SessionID] = sess
	m.order = append(m.order, sess.SessionID)
	m.totalGenerations++

	return sess, nil
}

// GetSession implements SessionStore.
func (m *MockStore) GetSession(_ context.Context,
	sessionID string) (Session, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// ListSessions implements SessionStore.
func (m *MockStore) ListSessions(_ context.Context,
	filter ListFilter) ([]Session, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []Session
	for _, id := range m.order {
		sess, ok := m.sessions[id]
		if !ok {
			continue
		}
		if addr := filter.EmailAddress.UnwrapOr(""); addr != "" &&
			sess.EmailAddress != addr {

			continue
		}
		sessions = append(sessions, sess)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	if filter.Limit > 0 && len(sessions) > filter.Limit {
		sessions = sessions[:filter.Limit]
	}

	return sessions, nil
}

// UpdateSession implements SessionStore.
func (m *MockStore) UpdateSession(_ context.Context, sessionID string,
	params UpdateParams) (Session, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}

	params.Subject.WhenSome(func(v string) { sess.Subject = v })
	params.EmailBody.WhenSome(func(v string) { sess.EmailBody = v })
	params.Tone.WhenSome(func(v string) { sess.Tone = v })
	params.EmailGoal.WhenSome(func(v string) {
		sess.EmailGoal = fn.Some(v)
	})
	params.Intent.WhenSome(func(v intent.Intent) { sess.Intent = v })

	sess.LastModified = m.now().UTC().Truncate(time.Second)
	m.sessions[sessionID] = sess

	return sess, nil
}

// DeleteSession implements SessionStore.
func (m *MockStore) DeleteSession(_ context.Context,
	sessionID string) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}

	delete(m.sessions, sessionID)
	if m.totalGenerations > 0 {
		m.totalGenerations--
	}

	return nil
}

// ClearSessions implements SessionStore.
func (m *MockStore) ClearSessions(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := int64(len(m.sessions))
	m.sessions = make(map[string]Session)
	m.order = nil
	m.totalGenerations = 0

	return deleted, nil
}

// Stats implements SessionStore.
func (m *MockStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		TotalGenerations: m.totalGenerations,
		CurrentSessions:  int64(len(m.sessions)),
		IntentBreakdown:  make(map[string]int64),
	}

	var newest time.Time
	for _, sess := range m.sessions {
		stats.IntentBreakdown[sess.Intent.String()]++
		if sess.CreatedAt.After(newest) {
			newest = sess.CreatedAt
		}
	}
	if !newest.IsZero() {
		stats.LastGeneration = fn.Some(newest)
	}

	return stats, nil
}

var _ SessionStore = (*MockStore)(nil)
