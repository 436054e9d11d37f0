package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/actiontracker/tracker-server-go/internal/config"
	"github.com/actiontracker/tracker-server-go/internal/mail"
	"github.com/actiontracker/tracker-server-go/internal/metrics"
	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/repository"
	"github.com/actiontracker/tracker-server-go/internal/service"
)

const deliveryEndpoint = "/email-sender"

type DeliveryOptions struct {
	Interval    time.Duration
	BatchSize   int
	MaxRetries  int
	SendTimeout time.Duration
}

// DeliveryWorker drains the email queue through the mail sender.
type DeliveryWorker struct {
	queue     repository.EmailQueueRepository
	sender    mail.Sender
	errorLogs *service.ErrorLogService
	metrics   metrics.Recorder
	opts      DeliveryOptions
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewDeliveryWorker(
	queue repository.EmailQueueRepository,
	sender mail.Sender,
	errorLogs *service.ErrorLogService,
	recorder metrics.Recorder,
	opts DeliveryOptions,
) *DeliveryWorker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = config.SMTPTimeout
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &DeliveryWorker{
		queue:     queue,
		sender:    sender,
		errorLogs: errorLogs,
		metrics:   recorder,
		opts:      opts,
		done:      make(chan struct{}),
	}
}

func (w *DeliveryWorker) Start() {
	w.wg.Add(1)
	go w.run()
	log.Info().
		Dur("interval", w.opts.Interval).
		Int("batchSize", w.opts.BatchSize).
		Int("maxRetries", w.opts.MaxRetries).
		Msg("email delivery worker started")
}

// Stop waits for an in-flight batch to finish.
func (w *DeliveryWorker) Stop() {
	close(w.done)
	w.wg.Wait()
	log.Info().Msg("email delivery worker stopped")
}

func (w *DeliveryWorker) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *DeliveryWorker) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), config.DeliveryTickTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			w.metrics.RecordJobError("delivery")
			log.Error().Interface("panic", p).Msg("email delivery tick panicked")
		}
	}()

	if _, err := w.RunOnce(ctx); err != nil {
		w.metrics.RecordJobError("delivery")
		log.Error().Err(err).Msg("email delivery batch failed")
	}
}

// RunOnce sends up to one batch of queued emails, oldest first. Every row
// is settled on its own; it returns how many were sent.
func (w *DeliveryWorker) RunOnce(ctx context.Context) (int, error) {
	rows, err := w.queue.FindQueued(ctx, w.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("load queued emails: %w", err)
	}

	sent := 0
	for i := range rows {
		if w.deliver(ctx, &rows[i]) {
			sent++
		}
	}

	if len(rows) > 0 {
		log.Debug().Int("batch", len(rows)).Int("sent", sent).Msg("email batch processed")
	}
	return sent, nil
}

func (w *DeliveryWorker) deliver(ctx context.Context, row *model.EmailQueue) bool {
	sendCtx, cancel := context.WithTimeout(ctx, w.opts.SendTimeout)
	err := w.sender.Send(sendCtx, model.EmailMessage{
		To:          row.ToAddress,
		Subject:     row.Subject,
		Body:        row.Body,
		Attachments: row.Attachments,
	})
	cancel()

	if err == nil {
		if err := w.queue.MarkSent(ctx, row.ID); err != nil {
			log.Error().Err(err).Int64("emailId", row.ID).Msg("email sent but not marked as sent")
			return false
		}
		w.metrics.RecordEmailSent()
		log.Info().Int64("emailId", row.ID).Str("to", row.ToAddress).Msg("email sent")
		return true
	}

	updated, ferr := w.queue.RecordFailure(ctx, row.ID, err.Error(), w.opts.MaxRetries)
	if ferr != nil {
		log.Error().Err(ferr).Int64("emailId", row.ID).Msg("failed to record email failure")
		return false
	}
	if updated == nil {
		// settled by another worker in the meantime
		return false
	}

	terminal := updated.Status == model.EmailStatusFailed
	w.metrics.RecordEmailFailure(terminal)

	log.Warn().
		Err(err).
		Int64("emailId", row.ID).
		Int("retries", updated.Retries).
		Bool("terminal", terminal).
		Msg("email delivery failed")

	if w.errorLogs != nil {
		w.errorLogs.Record(ctx, service.ErrorEntry{
			Endpoint: deliveryEndpoint,
			Method:   "SYSTEM",
			Err:      err,
			Payload: map[string]any{
				"emailId": row.ID,
				"subject": row.Subject,
				"retries": updated.Retries,
			},
			Status: 500,
		})
	}
	return false
}
