package reconcile

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/fieldtally/fieldtally/internal/errors"
	"github.com/fieldtally/fieldtally/pkg/resultstore"
)

const defaultTimeout = 30 * time.Second

// Client talks to the numbering authority over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a Client for the authority at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit sends the session's full pending list to the authority in one
// batch. On a 2xx response the local store is cleared and the session
// marked submitted. On any failure the local store is left exactly as
// it was and a ReconcileError is returned for manual retry.
func (c *Client) Submit(ctx context.Context, db *sql.DB, sessionID string) ([]CommittedResult, error) {
	if _, err := resultstore.GetSession(ctx, db, sessionID); err != nil {
		return nil, err
	}

	pending, err := resultstore.List(ctx, db, sessionID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, ErrEmptyBatch
	}

	req := BatchRequest{SessionID: sessionID, Results: make([]BatchResult, 0, len(pending))}
	for _, r := range pending {
		req.Results = append(req.Results, toBatchResult(r))
	}

	resp, err := c.postBatch(ctx, sessionID, req)
	if err != nil {
		return nil, err
	}

	// The authority accepted the whole batch; only now does local
	// state go away.
	if err := resultstore.Clear(ctx, db, sessionID, resultstore.SessionSubmitted); err != nil {
		return resp.Results, fmt.Errorf("batch committed but local clear failed: %w", err)
	}
	return resp.Results, nil
}

// Cancel discards the session's local state. A best-effort delete is
// issued to the authority; its failure does not block the local
// cancel.
func (c *Client) Cancel(ctx context.Context, db *sql.DB, sessionID string) error {
	if _, err := resultstore.GetSession(ctx, db, sessionID); err != nil {
		return err
	}

	// Remote cleanup is advisory. The authority's session may not
	// exist at all when nothing was ever committed.
	_ = c.deleteSession(ctx, sessionID)

	return resultstore.Clear(ctx, db, sessionID, resultstore.SessionCancelled)
}

func (c *Client) postBatch(ctx context.Context, sessionID string, batch BatchRequest) (*BatchResponse, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, &ReconcileError{SessionID: sessionID, Err: err}
	}

	url := fmt.Sprintf("%s/v1/sessions/%s/results:commit", c.baseURL, sessionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &ReconcileError{SessionID: sessionID, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &ReconcileError{SessionID: sessionID, Err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, decodeError(sessionID, httpResp)
	}

	var resp BatchResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &ReconcileError{SessionID: sessionID, StatusCode: httpResp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &resp, nil
}

func (c *Client) deleteSession(ctx context.Context, sessionID string) error {
	url := fmt.Sprintf("%s/v1/sessions/%s", c.baseURL, sessionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = httpResp.Body.Close() }()

	// 404 means the authority never saw the session. Fine.
	if httpResp.StatusCode >= 300 && httpResp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete session %s: authority returned %d", sessionID, httpResp.StatusCode)
	}
	return nil
}

// decodeError turns a non-2xx response into a ReconcileError, keeping
// the authority's error code when the body carries the standard
// envelope.
func decodeError(sessionID string, resp *http.Response) *ReconcileError {
	re := &ReconcileError{SessionID: sessionID, StatusCode: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		re.Err = fmt.Errorf("read error body: %w", err)
		return re
	}

	var envelope apperrors.HTTPErrorResponse
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Code != "" {
		re.Code = envelope.Error.Code
		re.Err = fmt.Errorf("%s", envelope.Error.Message)
		return re
	}

	re.Err = fmt.Errorf("%s", strings.TrimSpace(string(raw)))
	return re
}
