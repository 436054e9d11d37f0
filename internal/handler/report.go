package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/actiontracker/tracker-server-go/internal/audit"
	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/service"
)

type Reporter interface {
	SendPeriodic(ctx context.Context, reportType model.ReportType, r model.DateRange) (int, error)
	SendUserReport(ctx context.Context, req service.UserReportRequest) error
}

type ReportHandler struct {
	reporter Reporter
	errs     ErrorRecorder
	now      func() time.Time
}

func NewReportHandler(reporter Reporter, errs ErrorRecorder) *ReportHandler {
	return &ReportHandler{reporter: reporter, errs: errs, now: time.Now}
}

func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/sendAllReports", h.SendAllReports)
	r.Post("/user", h.SendUserReport)

	return r
}

// POST /api-clockify/session-report/sendAllReports
func (h *ReportHandler) SendAllReports(w http.ResponseWriter, r *http.Request) {
	var req service.PeriodicReportRequest
	body, err := decodeBody(r, &req)
	if err != nil {
		writeFailure(w, r, h.errs, err, json.RawMessage(body))
		return
	}

	window, err := service.RangeFor(req, h.now())
	if err != nil {
		writeFailure(w, r, h.errs, err, json.RawMessage(body))
		return
	}

	sent, err := h.reporter.SendPeriodic(r.Context(), req.Type, window)
	if err != nil {
		writeFailure(w, r, h.errs, err, json.RawMessage(body))
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventReportTrigger,
		Details: map[string]any{"type": string(req.Type), "sent": sent},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"result": "queued",
		"type":   req.Type,
		"from":   window.Start.Format(time.RFC3339),
		"to":     window.End.Format(time.RFC3339),
		"sent":   sent,
	})
}

// POST /api-clockify/session-report/user
func (h *ReportHandler) SendUserReport(w http.ResponseWriter, r *http.Request) {
	var req service.UserReportRequest
	body, err := decodeBody(r, &req)
	if err != nil {
		writeFailure(w, r, h.errs, err, json.RawMessage(body))
		return
	}

	if err := h.reporter.SendUserReport(r.Context(), req); err != nil {
		writeFailure(w, r, h.errs, err, json.RawMessage(body))
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventReportTrigger,
		Details: map[string]any{"userId": req.UserID},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"result": "queued",
		"userId": req.UserID,
		"to":     req.EmailToSend,
	})
}
