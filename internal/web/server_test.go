package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/roasbeef/draftsmith/internal/draft"
	"github.com/roasbeef/draftsmith/internal/llm"
	"github.com/roasbeef/draftsmith/internal/provider"
	"github.com/roasbeef/draftsmith/internal/store"
	"github.com/stretchr/testify/require"
)

const cannedDraft = "Subject: Re: roadmap\n\nHi,\n\nThe roadmap is " +
	"confirmed.\n\nThanks"

// staticLLM answers every completion with the same text.
type staticLLM struct {
	resp string
}

func (s *staticLLM) Complete(_ context.Context,
	_ llm.Request) (string, error) {

	return s.resp, nil
}

// staticGateway serves fixed emails for one known address.
type staticGateway struct {
	address string
	emails  []provider.RawEmail
	err     error
}

func (g *staticGateway) FetchEmails(_ context.Context, address string,
	_ int) ([]provider.RawEmail, error) {

	if g.err != nil {
		return nil, g.err
	}
	if address != g.address {
		return nil, nil
	}
	return g.emails, nil
}

func testServer(t *testing.T, gateway provider.Client) (*Server,
	*store.MockStore) {

	t.Helper()

	sessions := store.NewMockStore()
	client := &staticLLM{resp: cannedDraft}
	gen := draft.NewGenerator(draft.DefaultConfig(), client, sessions, nil)
	service := draft.NewService(
		draft.DefaultServiceConfig(), gateway, gen, client, nil,
	)

	return NewServer(Config{}, service, sessions, nil), sessions
}

func defaultGateway() *staticGateway {
	return &staticGateway{
		address: "zoe@example.com",
		emails: []provider.RawEmail{
			{
				ID: "m1", ThreadID: "t1",
				Subject: "Re: roadmap",
				From:    "zoe@example.com",
				To:      "me@example.com",
				Timestamp: 1700000100,
				Body:      "is the roadmap final?",
			},
			{
				ID: "m2", ThreadID: "t1",
				Subject: "roadmap",
				From:    "me@example.com",
				To:      "zoe@example.com",
				Timestamp: 1700000000,
				Body:      "draft attached",
			},
		},
	}
}

// doJSON performs one request against the router and decodes the reply.
func doJSON(t *testing.T, s *Server, method, path string, body any,
	out any) *httptest.ResponseRecorder {

	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	s.Handler().ServeHTTP(recorder, req)

	if out != nil && recorder.Body.Len() > 0 {
		require.NoError(
			t, json.Unmarshal(recorder.Body.Bytes(), out),
		)
	}

	return recorder
}

func TestHealth(t *testing.T) {
	t.Parallel()

	server, _ := testServer(t, defaultGateway())

	var resp map[string]string
	rec := doJSON(t, server, http.MethodGet, "/api/v1/health", nil, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", resp["status"])
}

func TestFetchThreads(t *testing.T) {
	t.Parallel()

	server, _ := testServer(t, defaultGateway())

	var resp struct {
		AddressesData []struct {
			EmailAddress string `json:"email_address"`
			Threads      []struct {
				ThreadID   string `json:"thread_id"`
				Subject    string `json:"subject"`
				EmailCount int    `json:"email_count"`
			} `json:"threads"`
		} `json:"addresses_data"`
		TotalAddresses int `json:"total_addresses"`
	}
	rec := doJSON(t, server, http.MethodPost, "/api/v1/threads/fetch",
		map[string]any{
			"email_addresses": []string{"zoe@example.com"},
		}, &resp)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, resp.TotalAddresses)
	require.Len(t, resp.AddressesData, 1)
	require.Len(t, resp.AddressesData[0].Threads, 1)
	require.Equal(t, "t1", resp.AddressesData[0].Threads[0].ThreadID)
	require.Equal(t, "roadmap", resp.AddressesData[0].Threads[0].Subject)
	require.Equal(t, 2, resp.AddressesData[0].Threads[0].EmailCount)
}

func TestGenerateDraft(t *testing.T) {
	t.Parallel()

	server, sessions := testServer(t, defaultGateway())

	var resp struct {
		Subject   string `json:"subject"`
		Email     string `json:"email"`
		SessionID string `json:"session_id"`
	}
	rec := doJSON(t, server, http.MethodPost, "/api/v1/drafts/generate",
		map[string]any{
			"email_address": "zoe@example.com",
			"thread_id":     "t1",
			"tone":          "professional",
		}, &resp)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Re: roadmap", resp.Subject)
	require.Contains(t, resp.Email, "confirmed")
	require.NotEmpty(t, resp.SessionID)

	_, err := sessions.GetSession(context.Background(), resp.SessionID)
	require.NoError(t, err)
}

func TestGenerateDraftThreadNotFound(t *testing.T) {
	t.Parallel()

	server, _ := testServer(t, defaultGateway())

	rec := doJSON(t, server, http.MethodPost, "/api/v1/drafts/generate",
		map[string]any{
			"email_address": "zoe@example.com",
			"thread_id":     "missing",
		}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateDraftProviderDown(t *testing.T) {
	t.Parallel()

	server, _ := testServer(t, &staticGateway{
		err: &provider.UnavailableError{
			Address: "zoe@example.com",
			Err:     errors.New("gateway down"),
		},
	})

	rec := doJSON(t, server, http.MethodPost, "/api/v1/drafts/generate",
		map[string]any{
			"email_address": "zoe@example.com",
		}, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGenerateBatch(t *testing.T) {
	t.Parallel()

	server, _ := testServer(t, defaultGateway())

	var resp struct {
		Emails []struct {
			EmailAddress string `json:"email_address"`
			Success      bool   `json:"success"`
			Error        string `json:"error"`
		} `json:"emails"`
		TotalGenerated int `json:"total_generated"`
	}
	rec := doJSON(t, server, http.MethodPost,
		"/api/v1/drafts/generate-batch",
		map[string]any{
			"email_addresses": []string{
				"zoe@example.com", "nobody@example.com",
			},
		}, &resp)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, resp.TotalGenerated)
	require.Len(t, resp.Emails, 2)
	require.True(t, resp.Emails[0].Success)
	require.False(t, resp.Emails[1].Success)
	require.NotEmpty(t, resp.Emails[1].Error)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	server, _ := testServer(t, defaultGateway())

	// Create a session through a generation.
	var created struct {
		SessionID string `json:"session_id"`
	}
	rec := doJSON(t, server, http.MethodPost, "/api/v1/drafts/generate",
		map[string]any{
			"email_address": "zoe@example.com",
			"thread_id":     "t1",
		}, &created)
	require.Equal(t, http.StatusOK, rec.Code)

	// List.
	var listed struct {
		Sessions []struct {
			SessionID string `json:"session_id"`
		} `json:"sessions"`
		Total int `json:"total"`
	}
	rec = doJSON(t, server, http.MethodGet, "/api/v1/sessions", nil,
		&listed)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, listed.Total)
	require.Equal(t, created.SessionID, listed.Sessions[0].SessionID)

	// Update.
	var updated struct {
		Subject string `json:"subject"`
		Intent  string `json:"intent"`
	}
	rec = doJSON(t, server, http.MethodPatch,
		"/api/v1/sessions/"+created.SessionID,
		map[string]any{
			"subject": "Edited subject",
			"intent":  "follow_up",
		}, &updated)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Edited subject", updated.Subject)
	require.Equal(t, "follow_up", updated.Intent)

	// Stats reflect the session.
	var stats struct {
		TotalGenerations int64 `json:"total_generations"`
		CurrentSessions  int64 `json:"current_sessions"`
	}
	rec = doJSON(t, server, http.MethodGet, "/api/v1/stats", nil, &stats)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, stats.TotalGenerations)
	require.EqualValues(t, 1, stats.CurrentSessions)

	// Delete, then a second delete is a 404.
	rec = doJSON(t, server, http.MethodDelete,
		"/api/v1/sessions/"+created.SessionID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodDelete,
		"/api/v1/sessions/"+created.SessionID, nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClearSessions(t *testing.T) {
	t.Parallel()

	server, sessions := testServer(t, defaultGateway())

	for i := 0; i < 2; i++ {
		rec := doJSON(t, server, http.MethodPost,
			"/api/v1/drafts/generate",
			map[string]any{
				"email_address": "zoe@example.com",
				"thread_id":     "t1",
			}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	var cleared struct {
		Deleted int64 `json:"deleted"`
	}
	rec := doJSON(t, server, http.MethodPost, "/api/v1/sessions/clear",
		nil, &cleared)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 2, cleared.Deleted)

	stats, err := sessions.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.TotalGenerations)
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()

	server, _ := testServer(t, defaultGateway())

	rec := doJSON(t, server, http.MethodGet, "/api/v1/sessions/nope",
		nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBadRequests(t *testing.T) {
	t.Parallel()

	server, _ := testServer(t, defaultGateway())

	// Missing required field.
	rec := doJSON(t, server, http.MethodPost, "/api/v1/drafts/generate",
		map[string]any{"tone": "casual"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown intent label on update.
	rec = doJSON(t, server, http.MethodPatch, "/api/v1/sessions/x",
		map[string]any{"intent": "bogus"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
