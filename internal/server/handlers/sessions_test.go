package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldtally/fieldtally/internal/authority"
	apperrors "github.com/fieldtally/fieldtally/internal/errors"
	"github.com/fieldtally/fieldtally/pkg/reconcile"
)

// fakeAuthority implements ResultAuthority in memory.
type fakeAuthority struct {
	rows      map[string][]authority.CommittedResult
	commitErr error
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{rows: make(map[string][]authority.CommittedResult)}
}

func (f *fakeAuthority) CommitBatch(ctx context.Context, sessionID string, results []authority.Incoming) ([]authority.CommittedResult, error) {
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	if err := authority.ValidateBatch(results); err != nil {
		return nil, err
	}
	accepted := make([]authority.CommittedResult, 0, len(results))
	for i, r := range results {
		row := authority.CommittedResult{
			ID:          sessionID + "-" + r.LocalID,
			SessionID:   sessionID,
			LocalID:     r.LocalID,
			ItemName:    r.ItemName,
			ItemType:    r.ItemType,
			Category:    r.Category,
			AssetNumber: r.AssetNumber,
			Outcome:     r.Outcome,
			AcceptedAt:  time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}
		accepted = append(accepted, row)
	}
	f.rows[sessionID] = append(f.rows[sessionID], accepted...)
	return accepted, nil
}

func (f *fakeAuthority) ListBySession(ctx context.Context, sessionID string) ([]authority.CommittedResult, error) {
	return f.rows[sessionID], nil
}

func (f *fakeAuthority) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	n := int64(len(f.rows[sessionID]))
	delete(f.rows, sessionID)
	return n, nil
}

func sessionRouter(store ResultAuthority) http.Handler {
	h := NewSessionHandlers(store)
	r := chi.NewRouter()
	r.Post("/v1/sessions/{id}/results:commit", h.CommitBatch)
	r.Get("/v1/sessions/{id}/results", h.ListResults)
	r.Delete("/v1/sessions/{id}", h.DeleteSession)
	return r
}

func commitBody(t *testing.T, req reconcile.BatchRequest) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestCommitBatch_AcceptsBatch(t *testing.T) {
	store := newFakeAuthority()
	router := sessionRouter(store)

	req := reconcile.BatchRequest{
		SessionID: "s1",
		Results: []reconcile.BatchResult{
			{LocalID: "l1", ItemName: "Kettle", ItemType: "appliance", Category: "monthly", AssetNumber: 1, Outcome: "pass"},
			{LocalID: "l2", ItemName: "Heater", ItemType: "appliance", Category: "five_yearly", AssetNumber: 10001, Outcome: "fail"},
		},
	}

	httpReq := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/results:commit", commitBody(t, req))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httpReq)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp reconcile.BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "s1", resp.SessionID)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "l1", resp.Results[0].LocalID)
	assert.Equal(t, 1, resp.Results[0].AssetNumber)
	assert.Equal(t, 10001, resp.Results[1].AssetNumber)
}

func TestCommitBatch_EmptyBatch(t *testing.T) {
	router := sessionRouter(newFakeAuthority())

	req := reconcile.BatchRequest{SessionID: "s1"}
	httpReq := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/results:commit", commitBody(t, req))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httpReq)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeEmptyBatch, body.Error.Code)
}

func TestCommitBatch_MalformedJSON(t *testing.T) {
	router := sessionRouter(newFakeAuthority())

	httpReq := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/results:commit",
		bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httpReq)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeValidationFailure, body.Error.Code)
}

func TestCommitBatch_RowValidationFailure(t *testing.T) {
	router := sessionRouter(newFakeAuthority())

	req := reconcile.BatchRequest{
		SessionID: "s1",
		Results: []reconcile.BatchResult{
			{LocalID: "l1", ItemName: "Kettle", ItemType: "appliance", Category: "monthly", AssetNumber: 1, Outcome: "pass"},
			// Monthly number out of range.
			{LocalID: "l2", ItemName: "Heater", ItemType: "appliance", Category: "monthly", AssetNumber: 10005, Outcome: "pass"},
		},
	}

	httpReq := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/results:commit", commitBody(t, req))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httpReq)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeValidationFailure, body.Error.Code)
	require.NotNil(t, body.Error.Details)
	assert.Equal(t, float64(1), body.Error.Details["index"])
}

func TestListResults(t *testing.T) {
	store := newFakeAuthority()
	router := sessionRouter(store)

	req := reconcile.BatchRequest{
		SessionID: "s1",
		Results: []reconcile.BatchResult{
			{LocalID: "l1", ItemName: "Kettle", ItemType: "appliance", Category: "monthly", AssetNumber: 1, Outcome: "pass"},
		},
	}
	httpReq := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/results:commit", commitBody(t, req))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httpReq)
	require.Equal(t, http.StatusOK, rec.Code)

	httpReq = httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/results", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httpReq)
	require.Equal(t, http.StatusOK, rec.Code)

	httpReq = httptest.NewRequest(http.MethodGet, "/v1/sessions/unknown/results", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httpReq)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSession(t *testing.T) {
	store := newFakeAuthority()
	router := sessionRouter(store)

	req := reconcile.BatchRequest{
		SessionID: "s1",
		Results: []reconcile.BatchResult{
			{LocalID: "l1", ItemName: "Kettle", ItemType: "appliance", Category: "monthly", AssetNumber: 1, Outcome: "pass"},
		},
	}
	httpReq := httptest.NewRequest(http.MethodPost, "/v1/sessions/s1/results:commit", commitBody(t, req))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httpReq)
	require.Equal(t, http.StatusOK, rec.Code)

	httpReq = httptest.NewRequest(http.MethodDelete, "/v1/sessions/s1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httpReq)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Second delete finds nothing.
	httpReq = httptest.NewRequest(http.MethodDelete, "/v1/sessions/s1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httpReq)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
