package service

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/repository"
)

const errorLogTimeout = 5 * time.Second

// ErrorEntry describes one failure to persist.
type ErrorEntry struct {
	Endpoint string
	Method   string
	Err      error
	// Payload is stored as JSON; raw bytes that are not JSON are wrapped in a string.
	Payload any
	Status  int
}

// ErrorLogService persists failures. Record never fails; a write error is
// logged and swallowed.
type ErrorLogService struct {
	logs  repository.ErrorLogRepository
	users repository.UserRepository
}

func NewErrorLogService(logs repository.ErrorLogRepository, users repository.UserRepository) *ErrorLogService {
	return &ErrorLogService{logs: logs, users: users}
}

func (s *ErrorLogService) Record(ctx context.Context, e ErrorEntry) {
	// The request context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), errorLogTimeout)
	defer cancel()

	message := "unknown error"
	if e.Err != nil {
		message = e.Err.Error()
	}

	params := model.CreateErrorLogParams{
		Endpoint:     e.Endpoint,
		Method:       e.Method,
		Message:      message,
		StackTrace:   fmt.Sprintf("%+v\n\n%s", e.Err, debug.Stack()),
		Payload:      payloadJSON(e.Payload),
		ResponseCode: e.Status,
	}

	if extID := externalUserID(params.Payload); extID != "" {
		params.ExternalUserID = &extID
		if s.users != nil {
			if u, err := s.users.FindByExternalID(ctx, extID); err == nil && u != nil {
				params.UserID = &u.ID
			}
		}
	}

	if err := s.logs.Create(ctx, params); err != nil {
		log.Error().
			Err(err).
			AnErr("original", e.Err).
			Str("endpoint", e.Endpoint).
			Int("status", e.Status).
			Msg("failed to persist error log")
		return
	}

	log.Warn().
		Err(e.Err).
		Str("endpoint", e.Endpoint).
		Str("method", e.Method).
		Int("status", e.Status).
		Msg("error recorded")
}

// RecordAnomalies logs mapping problems that did not stop the event.
func (s *ErrorLogService) RecordAnomalies(ctx context.Context, endpoint string, payload any, anomalies []Anomaly) {
	for _, a := range anomalies {
		s.Record(ctx, ErrorEntry{
			Endpoint: endpoint,
			Method:   "POST",
			Err:      fmt.Errorf("%s: %s", a.Field, a.Reason),
			Payload:  payload,
			Status:   a.Code,
		})
	}
}

func payloadJSON(payload any) *json.RawMessage {
	if payload == nil {
		return nil
	}

	var raw json.RawMessage
	switch v := payload.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		raw = b
	}

	if len(raw) == 0 {
		return nil
	}
	if !json.Valid(raw) {
		b, _ := json.Marshal(string(raw))
		raw = b
	}
	return &raw
}

func externalUserID(payload *json.RawMessage) string {
	if payload == nil {
		return ""
	}
	var probe struct {
		UserID string `json:"userId"`
		User   *struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(*payload, &probe); err != nil {
		return ""
	}
	if probe.User != nil && probe.User.ID != "" {
		return probe.User.ID
	}
	return probe.UserID
}
