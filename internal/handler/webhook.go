package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/service"
)

// WebhookProcessor applies one tracker event.
type WebhookProcessor interface {
	Handle(ctx context.Context, kind model.EventKind, ev *model.WebhookEvent) (*service.WebhookResult, error)
}

type WebhookHandler struct {
	processor WebhookProcessor
	errs      ErrorRecorder
}

func NewWebhookHandler(processor WebhookProcessor, errs ErrorRecorder) *WebhookHandler {
	return &WebhookHandler{processor: processor, errs: errs}
}

// Routes mounts one route per event kind. guard wraps each route, usually
// with that kind's signature check.
func (h *WebhookHandler) Routes(guard func(model.EventKind) func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	routes := []struct {
		path string
		kind model.EventKind
	}{
		{"/start", model.EventStart},
		{"/end", model.EventEnd},
		{"/edit", model.EventEdit},
		{"/delete", model.EventDelete},
		{"/manual", model.EventManualCreate},
	}
	for _, rt := range routes {
		r.With(guard(rt.kind)).Post(rt.path, h.Handle(rt.kind))
	}

	return r
}

type webhookResponse struct {
	Result  string         `json:"result"`
	Session *model.Session `json:"session"`
}

// POST /api-clockify/webhook/{start,end,edit,delete,manual}
func (h *WebhookHandler) Handle(kind model.EventKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev model.WebhookEvent
		body, err := decodeBody(r, &ev)
		if err != nil {
			writeFailure(w, r, h.errs, err, json.RawMessage(body))
			return
		}

		result, err := h.processor.Handle(r.Context(), kind, &ev)
		if err != nil {
			writeFailure(w, r, h.errs, err, json.RawMessage(body))
			return
		}

		status := http.StatusOK
		if result.Outcome == service.OutcomeCreated {
			status = http.StatusCreated
		}
		writeJSON(w, status, webhookResponse{
			Result:  string(result.Outcome),
			Session: result.Session,
		})
	}
}
