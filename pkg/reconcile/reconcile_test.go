package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fieldtally/fieldtally/internal/errors"
	"github.com/fieldtally/fieldtally/pkg/numbering"
	"github.com/fieldtally/fieldtally/pkg/resultstore"
)

func openTestStore(t *testing.T) *sql.DB {
	t.Helper()

	db, err := resultstore.Open(context.Background(), resultstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	// Every new :memory: connection is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, resultstore.Migrate(context.Background(), db))
	return db
}

func newSession(t *testing.T, db *sql.DB) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, resultstore.CreateSession(context.Background(), db, resultstore.Session{
		SessionID:  id,
		ClientName: "Acme Holdings",
		SiteName:   "Plant 2",
		Technician: "R. Okafor",
	}))
	return id
}

func appendResults(t *testing.T, db *sql.DB, sessionID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, _, err := resultstore.Append(context.Background(), db, resultstore.PendingResult{
			LocalID:     uuid.NewString(),
			SessionID:   sessionID,
			ItemName:    "Extension Lead " + uuid.NewString()[:8],
			ItemType:    "lead",
			Location:    "Workshop",
			Frequency:   "12-monthly",
			Category:    numbering.CategoryMonthly,
			AssetNumber: i + 1,
			Outcome:     resultstore.OutcomePass,
		}, 0)
		require.NoError(t, err)
	}
}

// fakeAuthority records commit and delete calls and plays back a
// scripted response.
type fakeAuthority struct {
	t *testing.T

	commitStatus int
	commits      []BatchRequest
	deletes      []string
}

func (f *fakeAuthority) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req BatchRequest
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
			f.commits = append(f.commits, req)

			if f.commitStatus != 0 && f.commitStatus != http.StatusOK {
				apperrors.WriteError(w, f.commitStatus, apperrors.CodeInternalError, "scripted failure")
				return
			}

			resp := BatchResponse{SessionID: req.SessionID}
			for _, br := range req.Results {
				resp.Results = append(resp.Results, CommittedResult{
					ID:          uuid.NewString(),
					LocalID:     br.LocalID,
					AssetNumber: br.AssetNumber,
				})
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
		case http.MethodDelete:
			f.deletes = append(f.deletes, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		default:
			apperrors.MethodNotAllowedHandler(w, r)
		}
	})
	return mux
}

func TestSubmit_Success(t *testing.T) {
	db := openTestStore(t)
	sessionID := newSession(t, db)
	appendResults(t, db, sessionID, 3)

	auth := &fakeAuthority{t: t}
	srv := httptest.NewServer(auth.handler())
	defer srv.Close()

	client := NewClient(srv.URL)
	committed, err := client.Submit(context.Background(), db, sessionID)
	require.NoError(t, err)
	assert.Len(t, committed, 3)

	// Full ordered pending list went out in a single POST.
	require.Len(t, auth.commits, 1)
	assert.Len(t, auth.commits[0].Results, 3)
	assert.Equal(t, sessionID, auth.commits[0].SessionID)
	assert.Equal(t, 1, auth.commits[0].Results[0].AssetNumber)
	assert.Equal(t, 3, auth.commits[0].Results[2].AssetNumber)

	// Local store is cleared and the session closed.
	pending, err := resultstore.List(context.Background(), db, sessionID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	sess, err := resultstore.GetSession(context.Background(), db, sessionID)
	require.NoError(t, err)
	assert.Equal(t, resultstore.SessionSubmitted, sess.Status)

	st, err := resultstore.LoadState(context.Background(), db, sessionID)
	require.NoError(t, err)
	assert.Equal(t, numbering.NewState(), st)
}

func TestSubmit_EmptyBatch(t *testing.T) {
	db := openTestStore(t)
	sessionID := newSession(t, db)

	auth := &fakeAuthority{t: t}
	srv := httptest.NewServer(auth.handler())
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Submit(context.Background(), db, sessionID)
	require.ErrorIs(t, err, ErrEmptyBatch)

	// Nothing reached the authority.
	assert.Empty(t, auth.commits)
}

func TestSubmit_AuthorityFailureLeavesLocalStateUntouched(t *testing.T) {
	db := openTestStore(t)
	sessionID := newSession(t, db)
	appendResults(t, db, sessionID, 5)

	auth := &fakeAuthority{t: t, commitStatus: http.StatusInternalServerError}
	srv := httptest.NewServer(auth.handler())
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Submit(context.Background(), db, sessionID)
	require.Error(t, err)

	var recErr *ReconcileError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, http.StatusInternalServerError, recErr.StatusCode)
	assert.Equal(t, apperrors.CodeInternalError, recErr.Code)

	// Every pending result is still there for the retry.
	pending, err := resultstore.List(context.Background(), db, sessionID)
	require.NoError(t, err)
	assert.Len(t, pending, 5)

	sess, err := resultstore.GetSession(context.Background(), db, sessionID)
	require.NoError(t, err)
	assert.Equal(t, resultstore.SessionOpen, sess.Status)
}

func TestSubmit_AuthorityUnreachable(t *testing.T) {
	db := openTestStore(t)
	sessionID := newSession(t, db)
	appendResults(t, db, sessionID, 2)

	// Nothing is listening here.
	client := NewClient("http://127.0.0.1:1")
	_, err := client.Submit(context.Background(), db, sessionID)
	require.Error(t, err)

	var recErr *ReconcileError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, 0, recErr.StatusCode)

	pending, err := resultstore.List(context.Background(), db, sessionID)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestSubmit_UnknownSession(t *testing.T) {
	db := openTestStore(t)

	client := NewClient("http://127.0.0.1:1")
	_, err := client.Submit(context.Background(), db, "no-such-session")
	require.ErrorIs(t, err, resultstore.ErrSessionNotFound)
}

func TestCancel_DiscardsLocalStateAndNotifiesAuthority(t *testing.T) {
	db := openTestStore(t)
	sessionID := newSession(t, db)
	appendResults(t, db, sessionID, 2)

	auth := &fakeAuthority{t: t}
	srv := httptest.NewServer(auth.handler())
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.Cancel(context.Background(), db, sessionID))

	require.Len(t, auth.deletes, 1)
	assert.Equal(t, "/v1/sessions/"+sessionID, auth.deletes[0])

	pending, err := resultstore.List(context.Background(), db, sessionID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	sess, err := resultstore.GetSession(context.Background(), db, sessionID)
	require.NoError(t, err)
	assert.Equal(t, resultstore.SessionCancelled, sess.Status)
}

func TestCancel_SucceedsWhenAuthorityUnreachable(t *testing.T) {
	db := openTestStore(t)
	sessionID := newSession(t, db)
	appendResults(t, db, sessionID, 1)

	client := NewClient("http://127.0.0.1:1")
	require.NoError(t, client.Cancel(context.Background(), db, sessionID))

	sess, err := resultstore.GetSession(context.Background(), db, sessionID)
	require.NoError(t, err)
	assert.Equal(t, resultstore.SessionCancelled, sess.Status)
}

func TestReconcileError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &ReconcileError{SessionID: "s1", StatusCode: 500, Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "500")
}
