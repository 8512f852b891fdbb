// Package ledger provides the client for the append-only instruction event
// store the monitor watches. The monitor only ever reads: it lists sessions
// and fetches their events, newest runs append elsewhere.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ppiankov/vigil/internal/model"
)

// Client is the read surface of the ledger collaborator.
type Client interface {
	// Sessions lists all known session IDs.
	Sessions(ctx context.Context) ([]string, error)
	// Events returns a session's events in append order.
	Events(ctx context.Context, sessionID string) ([]model.Event, error)
}

// HTTPClient talks to the ledger service over HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a ledger client for the given base URL.
func NewHTTPClient(cfg model.LedgerConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type sessionsResponse struct {
	Sessions []string `json:"sessions"`
	Count    int      `json:"count"`
}

// Sessions implements Client.
func (c *HTTPClient) Sessions(ctx context.Context) ([]string, error) {
	var parsed sessionsResponse
	if err := c.getJSON(ctx, "/ledger/sessions", &parsed); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return parsed.Sessions, nil
}

// Events implements Client.
func (c *HTTPClient) Events(ctx context.Context, sessionID string) ([]model.Event, error) {
	var events []model.Event
	path := "/ledger/session/" + url.PathEscape(sessionID)
	if err := c.getJSON(ctx, path, &events); err != nil {
		return nil, fmt.Errorf("list events for %s: %w", sessionID, err)
	}
	return events, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
