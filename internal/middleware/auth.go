package middleware

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/actiontracker/tracker-server-go/internal/audit"
	apperrors "github.com/actiontracker/tracker-server-go/internal/errors"
)

const WebhookTokenHeader = "X-Webhook-Token"

// TokenAuthMiddleware guards the operator routes with SECRET_TOKEN. An
// empty configured token rejects every request.
type TokenAuthMiddleware struct {
	token    string
	failures FailureRecorder
}

func NewTokenAuthMiddleware(token string, failures FailureRecorder) *TokenAuthMiddleware {
	if token == "" {
		log.Warn().Msg("SECRET_TOKEN is not configured: operator routes will reject every request")
	}
	return &TokenAuthMiddleware{token: token, failures: failures}
}

func (m *TokenAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received := r.Header.Get(WebhookTokenHeader)
		if m.token != "" && received != "" && secretsEqual(received, m.token) {
			next.ServeHTTP(w, r)
			return
		}

		log.Warn().Str("path", r.URL.Path).Msg("auth middleware: invalid token attempt")
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventAuthFailure,
			Details: map[string]any{"hasToken": received != ""},
		})
		recordFailure(r, m.failures, errors.New("unauthorized"), map[string]any{
			"hasToken": received != "",
		})
		writeError(w, apperrors.Unauthorized("Unauthorized"))
	})
}
