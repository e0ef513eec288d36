package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPClient implements Client against the mailbox gateway's REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewHTTPClient creates a gateway client. timeout bounds each fetch in
// addition to the caller's context.
func NewHTTPClient(baseURL string, timeout time.Duration,
	log *slog.Logger) *HTTPClient {

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With("component", "provider"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchEmails implements Client. Any transport or status failure is
// reported as an UnavailableError.
func (c *HTTPClient) FetchEmails(ctx context.Context, address string,
	maxResults int) ([]RawEmail, error) {

	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	endpoint := fmt.Sprintf("%s/emails/%s",
		c.baseURL, url.PathEscape(address))

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, endpoint, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("max_results", strconv.Itoa(maxResults))
	req.URL.RawQuery = q.Encode()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &UnavailableError{Address: address, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &UnavailableError{
			Address: address,
			Err: fmt.Errorf("unexpected status %d: %s",
				resp.StatusCode, string(body)),
		}
	}

	var emails []RawEmail
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return nil, &UnavailableError{
			Address: address,
			Err: fmt.Errorf("failed to decode response: %w",
				err),
		}
	}

	c.log.DebugContext(ctx, "Fetched emails",
		"address", address, "count", len(emails))

	return emails, nil
}
