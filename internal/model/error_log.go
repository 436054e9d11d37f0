package model

import (
	"encoding/json"
	"time"
)

type ErrorLog struct {
	ID             int64            `db:"id" json:"id"`
	Endpoint       string           `db:"endpoint" json:"endpoint"`
	Method         string           `db:"method" json:"method"`
	Message        string           `db:"message" json:"message"`
	StackTrace     string           `db:"stack_trace" json:"stackTrace"`
	Payload        *json.RawMessage `db:"payload" json:"payload,omitempty"`
	ResponseCode   int              `db:"response_code" json:"responseCode"`
	UserID         *int64           `db:"user_id" json:"userId,omitempty"`
	ExternalUserID *string          `db:"external_user_id" json:"externalUserId,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
}

type CreateErrorLogParams struct {
	Endpoint       string
	Method         string
	Message        string
	StackTrace     string
	Payload        *json.RawMessage
	ResponseCode   int
	UserID         *int64
	ExternalUserID *string
}
