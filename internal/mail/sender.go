package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"golang.org/x/time/rate"

	"github.com/actiontracker/tracker-server-go/internal/config"
	"github.com/actiontracker/tracker-server-go/internal/model"
)

// Sender delivers one message. Implementations must honour ctx.
type Sender interface {
	Send(ctx context.Context, msg model.EmailMessage) error
}

type SMTPSender struct {
	cfg     config.MailConfig
	timeout time.Duration
	limiter *rate.Limiter
}

func NewSMTPSender(cfg config.MailConfig, timeout time.Duration) *SMTPSender {
	perMin := cfg.SendRatePerMin
	if perMin <= 0 {
		perMin = 30
	}
	return &SMTPSender{
		cfg:     cfg,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), config.MailBurst),
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg model.EmailMessage) error {
	if s.cfg.Server == "" {
		return fmt.Errorf("smtp server not configured")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}

	m, err := s.buildMessage(msg)
	if err != nil {
		return err
	}

	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTimeout(s.timeout),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}

	client, err := gomail.NewClient(s.cfg.Server, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (s *SMTPSender) buildMessage(msg model.EmailMessage) (*gomail.Msg, error) {
	recipients := Recipients(s.cfg.Recipients(), msg.To)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients")
	}

	m := gomail.NewMsg()
	if err := m.From(s.cfg.DefaultSender); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := m.To(recipients...); err != nil {
		return nil, fmt.Errorf("set recipients: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.Body)

	for _, a := range msg.Attachments {
		data, err := DecodeAttachment(a)
		if err != nil {
			return nil, err
		}
		if err := m.AttachReader(a.Filename, bytes.NewReader(data),
			gomail.WithFileContentType(gomail.ContentType(a.MimeType))); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Filename, err)
		}
	}

	return m, nil
}

// Recipients returns the configured addresses plus extra, without duplicates
// (compared case-insensitively), keeping first-seen order.
func Recipients(configured []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(configured)+len(extra))
	out := make([]string, 0, len(configured)+len(extra))
	for _, addr := range append(append([]string{}, configured...), extra...) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}

func DecodeAttachment(a model.Attachment) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(a.ContentBase64)
	if err != nil {
		return nil, fmt.Errorf("decode attachment %s: %w", a.Filename, err)
	}
	return data, nil
}

// NewAttachment base64-encodes content for queue storage.
func NewAttachment(filename, mimeType string, content []byte) model.Attachment {
	return model.Attachment{
		Filename:      filename,
		ContentBase64: base64.StdEncoding.EncodeToString(content),
		MimeType:      mimeType,
	}
}
