package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Attachment struct {
	Filename      string `json:"filename"`
	ContentBase64 string `json:"content_base64"`
	MimeType      string `json:"mime_type"`
}

// Attachments is stored as a JSONB array.
type Attachments []Attachment

func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

func (a *Attachments) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan attachments: unsupported type %T", src)
	}
	return json.Unmarshal(raw, a)
}

type EmailQueue struct {
	ID          int64       `db:"id" json:"id"`
	ToAddress   string      `db:"to_address" json:"toAddress"`
	Subject     string      `db:"subject" json:"subject"`
	Body        string      `db:"body" json:"body"`
	Attachments Attachments `db:"attachments" json:"attachments"`
	Status      EmailStatus `db:"status" json:"status"`
	Retries     int         `db:"retries" json:"retries"`
	LastError   *string     `db:"last_error" json:"lastError,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	SentAt      *time.Time  `db:"sent_at" json:"sentAt,omitempty"`
}

// EmailMessage is a notification ready to be queued or sent.
type EmailMessage struct {
	To          string
	Subject     string
	Body        string
	Attachments Attachments
}
