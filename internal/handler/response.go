package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/actiontracker/tracker-server-go/internal/errors"
	"github.com/actiontracker/tracker-server-go/internal/httputil"
	"github.com/actiontracker/tracker-server-go/internal/service"
)

// ErrorRecorder persists a failed request to the error log.
type ErrorRecorder interface {
	Record(ctx context.Context, e service.ErrorEntry)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// writeFailure logs err, stores it in the error log and answers with the
// status its code maps to.
func writeFailure(w http.ResponseWriter, r *http.Request, errs ErrorRecorder, err error, payload any) {
	status := httputil.StatusFor(err)

	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")

	if errs != nil {
		errs.Record(r.Context(), service.ErrorEntry{
			Endpoint: r.URL.Path,
			Method:   r.Method,
			Err:      err,
			Payload:  payload,
			Status:   status,
		})
	}
	httputil.WriteError(w, err)
}

// decodeBody reads the whole body so it can be kept for the error log even
// when it does not parse.
func decodeBody(r *http.Request, dst any) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apperrors.InvalidInput("body", "could not read request body").WithCause(err)
	}
	if len(body) == 0 {
		return body, apperrors.ValidationError("Invalid payload: empty body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return body, apperrors.ValidationError("Invalid JSON body").WithCause(err)
	}
	return body, nil
}
