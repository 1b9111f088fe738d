package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/certsentry/certsentry/internal/config"
	"github.com/certsentry/certsentry/internal/core"
)

type Collector struct {
	config *config.RemoteWriteConfig

	// Check metrics
	checkDuration *prometheus.HistogramVec
	checksTotal   *prometheus.CounterVec
	certDaysLeft  *prometheus.GaugeVec
	certExpired   *prometheus.GaugeVec

	// Notification metrics
	notificationsSent   *prometheus.CounterVec
	notificationLatency *prometheus.HistogramVec

	// Batch metrics
	batchRunsTotal *prometheus.CounterVec
	batchDuration  prometheus.Histogram
	batchUsers     *prometheus.GaugeVec
}

func NewCollector(cfg config.RemoteWriteConfig) *Collector {
	return &Collector{
		config: &cfg,

		checkDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "certsentry_check_duration_seconds",
				Help:    "Duration of certificate checks in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 25},
			},
			[]string{"hostname"},
		),

		checksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certsentry_checks_total",
				Help: "Total number of certificate checks performed",
			},
			[]string{"hostname", "result"},
		),

		certDaysLeft: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "certsentry_cert_days_until_expiry",
				Help: "Days until the monitored certificate expires",
			},
			[]string{"user_id", "hostname", "port"},
		),

		certExpired: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "certsentry_cert_expired",
				Help: "Whether the monitored certificate is expired (1) or not (0)",
			},
			[]string{"user_id", "hostname", "port"},
		),

		notificationsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certsentry_notifications_sent_total",
				Help: "Total number of notification emails dispatched",
			},
			[]string{"user_id", "status"},
		),

		notificationLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "certsentry_notification_latency_seconds",
				Help:    "Notification delivery latency",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"user_id"},
		),

		batchRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certsentry_batch_runs_total",
				Help: "Total number of notification batch runs",
			},
			[]string{"trigger"},
		),

		batchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "certsentry_batch_duration_seconds",
				Help:    "Duration of notification batch runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),

		batchUsers: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "certsentry_batch_users",
				Help: "Users processed in the last batch run, by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (c *Collector) RecordCheck(hostname string, seconds float64, ok bool) {
	result := "success"
	if !ok {
		result = "failed"
	}
	c.checkDuration.WithLabelValues(hostname).Observe(seconds)
	c.checksTotal.WithLabelValues(hostname, result).Inc()
}

func (c *Collector) RecordDomainStatus(userID, hostname, port string, daysLeft int, status core.DomainStatus) {
	c.certDaysLeft.WithLabelValues(userID, hostname, port).Set(float64(daysLeft))

	expired := 0.0
	if status == core.StatusExpired {
		expired = 1.0
	}
	c.certExpired.WithLabelValues(userID, hostname, port).Set(expired)
}

func (c *Collector) RecordNotification(userID string, success bool, latencySeconds float64) {
	status := "success"
	if !success {
		status = "failed"
	}
	c.notificationsSent.WithLabelValues(userID, status).Inc()
	c.notificationLatency.WithLabelValues(userID).Observe(latencySeconds)
}

func (c *Collector) RecordBatch(trigger string, seconds float64, report *core.BatchReport) {
	c.batchRunsTotal.WithLabelValues(trigger).Inc()
	c.batchDuration.Observe(seconds)

	for _, outcome := range []core.UserOutcome{core.OutcomeSuccess, core.OutcomeFailed, core.OutcomeSkipped} {
		c.batchUsers.WithLabelValues(string(outcome)).Set(float64(report.Count(outcome)))
	}
}
