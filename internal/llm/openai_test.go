package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNormalizeBaseURL checks the base URL normalization rules.
func TestNormalizeBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"http://localhost:1234", "http://localhost:1234/v1"},
		{"http://localhost:1234/", "http://localhost:1234/v1"},
		{"http://localhost:1234/v1", "http://localhost:1234/v1"},
		{"http://localhost:1234/v1/", "http://localhost:1234/v1"},
		{"localhost:1234", "http://localhost:1234/v1"},
		{"", ""},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, normalizeBaseURL(tc.in), tc.in)
	}
}

// TestCompleteRoundTrip exercises the full request path against a stub
// chat completions server.
func TestCompleteRoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/chat/completions", r.URL.Path)
			require.Equal(t, "Bearer sekrit",
				r.Header.Get("Authorization"))

			var req chatRequest
			require.NoError(
				t, json.NewDecoder(r.Body).Decode(&req),
			)
			require.Equal(t, "test-model", req.Model)
			require.Len(t, req.Messages, 2)
			require.Equal(t, "system", req.Messages[0].Role)
			require.Equal(t, "user", req.Messages[1].Role)

			resp := chatResponse{}
			resp.Choices = append(resp.Choices, struct {
				Message chatMessage `json:"message"`
			}{
				Message: chatMessage{
					Role:    "assistant",
					Content: "hello there",
				},
			})
			w.Header().Set("Content-Type", "application/json")
			require.NoError(
				t, json.NewEncoder(w).Encode(resp),
			)
		},
	))
	defer srv.Close()

	client := NewOpenAIClient(Config{
		BaseURL: srv.URL,
		APIKey:  "sekrit",
		Model:   "test-model",
	}, nil)

	out, err := client.Complete(context.Background(), Request{
		System: "be brief",
		Prompt: "say hello",
	})
	require.NoError(t, err)
	require.Equal(t, "hello there", out)
}

// TestCompleteErrors covers the failure paths surfaced to callers.
func TestCompleteErrors(t *testing.T) {
	t.Parallel()

	t.Run("non-2xx status", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded",
					http.StatusServiceUnavailable)
			},
		))
		defer srv.Close()

		client := NewOpenAIClient(Config{BaseURL: srv.URL}, nil)
		_, err := client.Complete(
			context.Background(), Request{Prompt: "hi"},
		)
		require.ErrorContains(t, err, "completion status")
	})

	t.Run("empty content", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				resp := chatResponse{}
				resp.Choices = append(resp.Choices, struct {
					Message chatMessage `json:"message"`
				}{
					Message: chatMessage{Content: "  "},
				})
				json.NewEncoder(w).Encode(resp) //nolint:errcheck
			},
		))
		defer srv.Close()

		client := NewOpenAIClient(Config{BaseURL: srv.URL}, nil)
		_, err := client.Complete(
			context.Background(), Request{Prompt: "hi"},
		)
		require.ErrorContains(t, err, "empty completion")
	})

	t.Run("no choices", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode( //nolint:errcheck
					chatResponse{},
				)
			},
		))
		defer srv.Close()

		client := NewOpenAIClient(Config{BaseURL: srv.URL}, nil)
		_, err := client.Complete(
			context.Background(), Request{Prompt: "hi"},
		)
		require.ErrorContains(t, err, "missing choices")
	})
}
