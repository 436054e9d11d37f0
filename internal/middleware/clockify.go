package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/actiontracker/tracker-server-go/internal/audit"
	apperrors "github.com/actiontracker/tracker-server-go/internal/errors"
	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/service"
)

const ClockifySignatureHeader = "Clockify-Signature"

// FailureRecorder persists rejected requests to the error log.
type FailureRecorder interface {
	Record(ctx context.Context, e service.ErrorEntry)
}

// ClockifySignatureMiddleware checks the per-event shared secret Clockify
// sends in the Clockify-Signature header.
type ClockifySignatureMiddleware struct {
	kind     model.EventKind
	secret   string
	failures FailureRecorder
}

func NewClockifySignatureMiddleware(kind model.EventKind, secret string, failures FailureRecorder) *ClockifySignatureMiddleware {
	return &ClockifySignatureMiddleware{kind: kind, secret: secret, failures: failures}
}

func (m *ClockifySignatureMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received := r.Header.Get(ClockifySignatureHeader)
		if m.secret != "" && received != "" && secretsEqual(received, m.secret) {
			next.ServeHTTP(w, r)
			return
		}

		reason := "invalid signature"
		switch {
		case m.secret == "":
			log.Error().
				Str("kind", string(m.kind)).
				Msg("clockify webhook rejected: webhook secret is not configured")
			reason = "secret not configured"
		case received == "":
			reason = "missing signature"
		}
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventWebhookRejected,
			Details: map[string]any{"kind": string(m.kind), "reason": reason},
		})
		recordFailure(r, m.failures, fmt.Errorf("clockify webhook %s: %s", m.kind, reason), map[string]any{
			"webhookType":  string(m.kind),
			"hasSignature": received != "",
		})
		writeError(w, apperrors.Unauthorized("Invalid webhook signature"))
	})
}

func secretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func recordFailure(r *http.Request, failures FailureRecorder, err error, payload map[string]any) {
	if failures == nil {
		return
	}
	failures.Record(r.Context(), service.ErrorEntry{
		Endpoint: r.URL.Path,
		Method:   r.Method,
		Err:      err,
		Payload:  payload,
		Status:   http.StatusUnauthorized,
	})
}
