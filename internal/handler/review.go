package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/actiontracker/tracker-server-go/internal/audit"
	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/service"
)

type Reviewer interface {
	Review(ctx context.Context, externalID string, req service.ReviewRequest) (*model.Session, error)
}

type ReviewHandler struct {
	reviewer Reviewer
	errs     ErrorRecorder
}

func NewReviewHandler(reviewer Reviewer, errs ErrorRecorder) *ReviewHandler {
	return &ReviewHandler{reviewer: reviewer, errs: errs}
}

// POST /api-clockify/sessions/{externalId}/review
func (h *ReviewHandler) Review(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalId")

	var req service.ReviewRequest
	body, err := decodeBody(r, &req)
	if err != nil {
		writeFailure(w, r, h.errs, err, json.RawMessage(body))
		return
	}

	session, err := h.reviewer.Review(r.Context(), externalID, req)
	if err != nil {
		writeFailure(w, r, h.errs, err, json.RawMessage(body))
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionReview,
		SessionID: externalID,
		Details:   map[string]any{"approved": *req.Approved, "status": string(session.Status)},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"result":  "reviewed",
		"session": session,
	})
}
