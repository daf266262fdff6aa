package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldtally/fieldtally/internal/authority"
	apperrors "github.com/fieldtally/fieldtally/internal/errors"
	"github.com/fieldtally/fieldtally/pkg/reconcile"
)

// ResultAuthority is the persistence surface the session handlers
// need. Satisfied by *authority.Store; tests substitute a fake.
type ResultAuthority interface {
	CommitBatch(ctx context.Context, sessionID string, results []authority.Incoming) ([]authority.CommittedResult, error)
	ListBySession(ctx context.Context, sessionID string) ([]authority.CommittedResult, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

// SessionHandlers serves the /v1/sessions routes.
type SessionHandlers struct {
	store ResultAuthority
}

// NewSessionHandlers wires the session routes to a result authority.
func NewSessionHandlers(store ResultAuthority) *SessionHandlers {
	return &SessionHandlers{store: store}
}

// CommitBatch serves POST /v1/sessions/{id}/results:commit.
func (h *SessionHandlers) CommitBatch(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req reconcile.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeValidationFailure,
			"malformed batch request: "+err.Error())
		return
	}
	if len(req.Results) == 0 {
		apperrors.WriteError(w, http.StatusBadRequest, apperrors.CodeEmptyBatch,
			"batch contains no results")
		return
	}

	incoming := make([]authority.Incoming, 0, len(req.Results))
	for _, br := range req.Results {
		incoming = append(incoming, authority.Incoming{
			LocalID:       br.LocalID,
			ItemName:      br.ItemName,
			ItemType:      br.ItemType,
			Location:      br.Location,
			Frequency:     br.Frequency,
			Category:      br.Category,
			AssetNumber:   br.AssetNumber,
			Outcome:       br.Outcome,
			ReasonCode:    br.ReasonCode,
			RemedialWork:  br.Remedial,
			Note:          br.Note,
			AttachmentKey: br.Attachment,
			CreatedAt:     br.CreatedAt,
		})
	}

	accepted, err := h.store.CommitBatch(r.Context(), sessionID, incoming)
	if err != nil {
		var rowErr *authority.RowError
		if errors.As(err, &rowErr) {
			apperrors.WriteErrorDetails(w, http.StatusUnprocessableEntity,
				apperrors.CodeValidationFailure, rowErr.Error(),
				map[string]interface{}{"index": rowErr.Index, "reason": rowErr.Reason})
			return
		}
		respondWithError(w, r, err)
		return
	}

	resp := reconcile.BatchResponse{SessionID: sessionID}
	for _, row := range accepted {
		resp.Results = append(resp.Results, reconcile.CommittedResult{
			ID:          row.ID,
			LocalID:     row.LocalID,
			AssetNumber: row.AssetNumber,
			Coalesced:   row.Coalesced,
			AcceptedAt:  row.AcceptedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// ListResults serves GET /v1/sessions/{id}/results.
func (h *SessionHandlers) ListResults(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	rows, err := h.store.ListBySession(r.Context(), sessionID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if len(rows) == 0 {
		apperrors.WriteError(w, http.StatusNotFound, apperrors.CodeNotFound,
			"no committed results for session "+sessionID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"session_id": sessionID,
		"results":    rows,
	})
}

// DeleteSession serves DELETE /v1/sessions/{id}.
func (h *SessionHandlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	n, err := h.store.DeleteSession(r.Context(), sessionID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if n == 0 {
		apperrors.WriteError(w, http.StatusNotFound, apperrors.CodeNotFound,
			"no committed results for session "+sessionID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
