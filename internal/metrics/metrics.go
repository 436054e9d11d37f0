// Package metrics exposes Prometheus counters for webhook handling and the
// background jobs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what services and jobs depend on.
type Recorder interface {
	RecordWebhook(kind, outcome string)
	RecordEmailSent()
	RecordEmailFailure(terminal bool)
	RecordOvertimeFlagged()
	RecordReportRun(reportType string, users int, duration time.Duration)
	RecordJobError(job string)
}

type Collector struct {
	webhooks        *prometheus.CounterVec
	emailsSent      prometheus.Counter
	emailFailures   *prometheus.CounterVec
	overtimeFlagged prometheus.Counter
	reportUsers     *prometheus.CounterVec
	reportLatency   *prometheus.HistogramVec
	jobErrors       *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_webhooks_total",
			Help: "Webhook events processed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		emailsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_emails_sent_total",
			Help: "Queued emails delivered.",
		}),
		emailFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_email_failures_total",
			Help: "Failed delivery attempts; terminal=true when the row gave up.",
		}, []string{"terminal"}),
		overtimeFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_overtime_flagged_total",
			Help: "Open sessions flagged as overtime by the monitor.",
		}),
		reportUsers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_report_users_total",
			Help: "Per-user reports enqueued, by report type.",
		}, []string{"type"}),
		reportLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracker_report_run_seconds",
			Help:    "Duration of a report run.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_job_errors_total",
			Help: "Errors raised inside background job iterations.",
		}, []string{"job"}),
	}

	reg.MustRegister(
		c.webhooks,
		c.emailsSent,
		c.emailFailures,
		c.overtimeFlagged,
		c.reportUsers,
		c.reportLatency,
		c.jobErrors,
	)

	return c
}

func (c *Collector) RecordWebhook(kind, outcome string) {
	c.webhooks.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) RecordEmailSent() {
	c.emailsSent.Inc()
}

func (c *Collector) RecordEmailFailure(terminal bool) {
	label := "false"
	if terminal {
		label = "true"
	}
	c.emailFailures.WithLabelValues(label).Inc()
}

func (c *Collector) RecordOvertimeFlagged() {
	c.overtimeFlagged.Inc()
}

func (c *Collector) RecordReportRun(reportType string, users int, duration time.Duration) {
	c.reportUsers.WithLabelValues(reportType).Add(float64(users))
	c.reportLatency.WithLabelValues(reportType).Observe(duration.Seconds())
}

func (c *Collector) RecordJobError(job string) {
	c.jobErrors.WithLabelValues(job).Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything. Used by tests and tools that do not expose /metrics.
type Nop struct{}

func (Nop) RecordWebhook(string, string)               {}
func (Nop) RecordEmailSent()                           {}
func (Nop) RecordEmailFailure(bool)                    {}
func (Nop) RecordOvertimeFlagged()                     {}
func (Nop) RecordReportRun(string, int, time.Duration) {}
func (Nop) RecordJobError(string)                      {}
