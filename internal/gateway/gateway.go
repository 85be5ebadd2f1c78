// Package gateway is the thin HTTP client over the remote system of
// record. The remote exposes PostgREST-style per-collection CRUD under
// /rest/v1; row-level security on the server enforces owner scoping,
// and the gateway additionally passes the owner id explicitly on every
// call so stale local state can never address another owner's rows.
// The gateway never retries; callers decide.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/studiokit/studiokit/internal/types"
)

// FetchOptions narrows a FetchAll call.
type FetchOptions struct {
	// ScheduledOnOrAfter bounds the appointment look-back window
	// (YYYY-MM-DD). Ignored for other collections.
	ScheduledOnOrAfter string

	// ActiveOnly restricts services to is_active rows.
	ActiveOnly bool
}

// Client talks to the remote store over HTTPS.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New creates a gateway client. The API key authenticates the owner's
// session; session acquisition itself is outside this package.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Health checks connectivity to the remote system.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, "health check failed")
	}
	return nil
}

// FetchAll returns every remote row of the collection owned by ownerID,
// optionally narrowed by opts.
func (c *Client) FetchAll(ctx context.Context, collection types.Collection, ownerID string, opts FetchOptions) ([]types.Row, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+ownerID)
	if opts.ScheduledOnOrAfter != "" && collection == types.CollectionAppointments {
		q.Set("scheduled_date", "gte."+opts.ScheduledOnOrAfter)
	}
	if opts.ActiveOnly && collection == types.CollectionServices {
		q.Set("is_active", "eq.true")
	}

	body, err := c.do(ctx, http.MethodGet, c.collectionURL(collection)+"?"+q.Encode(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", collection, err)
	}

	rows, err := types.RowsFromJSON(body)
	if err != nil {
		// A 2xx with a garbage body is a transport-level fault as far
		// as the caller is concerned: retry-eligible, never local.
		return nil, fmt.Errorf("decode %s response: %w", collection, networkError(err))
	}
	return rows, nil
}

// Insert creates a row and returns the server representation, which may
// carry server-assigned fields. The idempotency key lets the remote
// deduplicate a retried insert whose first attempt actually landed.
func (c *Client) Insert(ctx context.Context, collection types.Collection, payload json.RawMessage, idempotencyKey string) (types.Row, error) {
	headers := map[string]string{
		"Prefer":          "return=representation,resolution=merge-duplicates",
		"Idempotency-Key": idempotencyKey,
	}

	body, err := c.do(ctx, http.MethodPost, c.collectionURL(collection), payload, headers)
	if err != nil {
		return types.Row{}, fmt.Errorf("insert %s: %w", collection, err)
	}

	rows, err := types.RowsFromJSON(body)
	if err != nil {
		return types.Row{}, fmt.Errorf("decode %s insert response: %w", collection, networkError(err))
	}
	if len(rows) == 0 {
		return types.Row{}, fmt.Errorf("insert %s: %w", collection,
			&Error{kind: ErrRemoteRejected, Detail: "empty representation"})
	}
	return rows[0], nil
}

// Update patches the row identified by id, scoped to the owner. A patch
// that matches no row reports ErrNotFound.
func (c *Client) Update(ctx context.Context, collection types.Collection, id, ownerID string, payload json.RawMessage) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("user_id", "eq."+ownerID)
	headers := map[string]string{"Prefer": "return=representation"}

	body, err := c.do(ctx, http.MethodPatch, c.collectionURL(collection)+"?"+q.Encode(), payload, headers)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}

	rows, err := types.RowsFromJSON(body)
	if err != nil {
		return fmt.Errorf("decode %s update response: %w", collection, networkError(err))
	}
	if len(rows) == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id,
			&Error{kind: ErrNotFound, Detail: "no row matched"})
	}
	return nil
}

// Delete removes the row identified by id, scoped to the owner.
// Deleting a row that is already gone reports ErrNotFound; the caller's
// policy decides whether that counts as success.
func (c *Client) Delete(ctx context.Context, collection types.Collection, id, ownerID string) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("user_id", "eq."+ownerID)
	headers := map[string]string{"Prefer": "return=representation"}

	body, err := c.do(ctx, http.MethodDelete, c.collectionURL(collection)+"?"+q.Encode(), nil, headers)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}

	rows, err := types.RowsFromJSON(body)
	if err != nil {
		return fmt.Errorf("decode %s delete response: %w", collection, networkError(err))
	}
	if len(rows) == 0 {
		return fmt.Errorf("delete %s/%s: %w", collection, id,
			&Error{kind: ErrNotFound, Detail: "no row matched"})
	}
	return nil
}

func (c *Client) collectionURL(collection types.Collection) string {
	return c.baseURL + "/rest/v1/" + string(collection)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// do executes one request and returns the response body, mapping
// failures onto the gateway taxonomy.
func (c *Client) do(ctx context.Context, method, rawURL string, payload json.RawMessage, headers map[string]string) (json.RawMessage, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(err)
	}

	if resp.StatusCode >= 400 {
		return nil, classifyStatus(resp.StatusCode, remoteDetail(body))
	}
	return body, nil
}

// remoteDetail extracts the message field from a PostgREST error body,
// falling back to a truncated raw body.
func remoteDetail(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return strings.TrimSpace(s)
}
